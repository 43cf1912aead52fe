package main

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"
)

var (
	apiHost  string
	apiToken string
)

var client = &http.Client{Timeout: 2 * time.Minute}

func main() {
	var rootCmd = &cobra.Command{
		Use:   "queuesync-cli",
		Short: "CLI para administrar QueueSync",
		Long:  `Una herramienta de línea de comandos para sincronizar y revisar las colas de QueueSync de forma remota.`,
	}

	rootCmd.PersistentFlags().StringVar(&apiHost, "host", "http://localhost:8080", "URL base de la API")
	rootCmd.PersistentFlags().StringVar(&apiToken, "token", os.Getenv("QUEUESYNC_TOKEN"), "Token JWT (por defecto el guardado por login)")

	var loginCmd = &cobra.Command{
		Use:   "login",
		Short: "Iniciar sesión y guardar el token",
		Run:   runLogin,
	}
	loginCmd.Flags().String("username", "", "Usuario")
	loginCmd.Flags().String("password", "", "Contraseña")

	var syncCmd = &cobra.Command{
		Use:   "sync",
		Short: "Sincronizar colas con Asterisk",
		Run:   runSync,
	}

	var queuesCmd = &cobra.Command{
		Use:   "queues",
		Short: "Listar colas",
		Run:   runQueues,
	}

	var statusCmd = &cobra.Command{
		Use:   "status",
		Short: "Estado de la última sincronización",
		Run:   runStatus,
	}

	rootCmd.AddCommand(loginCmd, syncCmd, queuesCmd, statusCmd)

	if err := rootCmd.Execute(); err != nil {
		fmt.Println(err)
		os.Exit(1)
	}
}

// --- HANDLERS ---

func runLogin(cmd *cobra.Command, args []string) {
	username := getString(cmd, "username")
	password := getString(cmd, "password")
	if username == "" || password == "" {
		fmt.Println("Error: --username y --password son requeridos")
		return
	}

	body, ok := send(http.MethodPost, "/api/v1/login", map[string]string{
		"username": username,
		"password": password,
	})
	if !ok {
		return
	}

	var resp struct {
		Token     string    `json:"token"`
		ExpiresAt time.Time `json:"expires_at"`
	}
	if err := json.Unmarshal(body, &resp); err != nil {
		fmt.Printf("Respuesta inválida: %v\n", err)
		return
	}
	if err := os.WriteFile(tokenPath(), []byte(resp.Token), 0o600); err != nil {
		fmt.Printf("Error guardando token: %v\n", err)
		return
	}
	fmt.Printf("Sesión iniciada. Token válido hasta %s\n", resp.ExpiresAt.Local().Format(time.RFC1123))
}

func runSync(cmd *cobra.Command, args []string) {
	start := time.Now()
	body, ok := send(http.MethodPost, "/api/v1/queues/sync", nil)
	if !ok {
		return
	}

	var res struct {
		Created     int      `json:"created"`
		Reactivated int      `json:"reactivated"`
		Deactivated int      `json:"deactivated"`
		Unchanged   int      `json:"unchanged"`
		Errors      []string `json:"errors"`
	}
	json.Unmarshal(body, &res)

	w := tabwriter.NewWriter(os.Stdout, 0, 0, 3, ' ', 0)
	fmt.Fprintln(w, "CREADAS\tREACTIVADAS\tDESACTIVADAS\tSIN CAMBIOS")
	fmt.Fprintln(w, "-------\t-----------\t------------\t-----------")
	fmt.Fprintf(w, "%d\t%d\t%d\t%d\n", res.Created, res.Reactivated, res.Deactivated, res.Unchanged)
	w.Flush()
	for _, e := range res.Errors {
		fmt.Printf("  ! %s\n", e)
	}
	fmt.Printf("Tiempo: %v\n", time.Since(start).Round(time.Millisecond))
}

func runQueues(cmd *cobra.Command, args []string) {
	body, ok := send(http.MethodGet, "/api/v1/queues", nil)
	if !ok {
		return
	}

	var colas []map[string]interface{}
	json.Unmarshal(body, &colas)

	w := tabwriter.NewWriter(os.Stdout, 0, 0, 3, ' ', 0)
	fmt.Fprintln(w, "COLA\tNOMBRE\tSLA\tADVERTENCIA\tMONITOREADA\tACTIVA")
	fmt.Fprintln(w, "----\t------\t---\t-----------\t-----------\t------")
	for _, c := range colas {
		fmt.Fprintf(w, "%s\t%s\t%.0f\t%.0f\t%v\t%v\n", c["queue_number"], c["display_name"],
			c["sla_threshold_seconds"], c["warning_threshold_seconds"], c["is_monitored"], c["is_active"])
	}
	w.Flush()
}

func runStatus(cmd *cobra.Command, args []string) {
	body, ok := send(http.MethodGet, "/api/v1/queues/sync/status", nil)
	if !ok {
		return
	}

	var st map[string]interface{}
	json.Unmarshal(body, &st)

	fmt.Printf("Etapa:    %v\n", st["stage"])
	fmt.Printf("En curso: %v\n", st["running"])
	if v, ok := st["started_at"]; ok {
		fmt.Printf("Inicio:   %v\n", v)
	}
	if v, ok := st["finished_at"]; ok {
		fmt.Printf("Fin:      %v\n", v)
	}
	if v, ok := st["error"]; ok {
		fmt.Printf("Error:    [%v/%v] %v\n", st["failed_stage"], st["kind"], v)
	}
}

// Helpers
func getString(cmd *cobra.Command, name string) string {
	v, _ := cmd.Flags().GetString(name)
	return v
}

func tokenPath() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ".queuesync-token"
	}
	return filepath.Join(home, ".queuesync-token")
}

func token() string {
	if apiToken != "" {
		return apiToken
	}
	data, err := os.ReadFile(tokenPath())
	if err != nil {
		return ""
	}
	return strings.TrimSpace(string(data))
}

// send hace la solicitud y muestra el error de la API si lo hay
func send(method, path string, data interface{}) ([]byte, bool) {
	var reader io.Reader
	if data != nil {
		payload, _ := json.Marshal(data)
		reader = bytes.NewReader(payload)
	}

	req, err := http.NewRequest(method, strings.TrimRight(apiHost, "/")+path, reader)
	if err != nil {
		fmt.Printf("Error: %v\n", err)
		return nil, false
	}
	req.Header.Set("Content-Type", "application/json")
	if t := token(); t != "" {
		req.Header.Set("Authorization", "Bearer "+t)
	}

	resp, err := client.Do(req)
	if err != nil {
		fmt.Printf("Error de conexión: %v\n", err)
		return nil, false
	}
	defer resp.Body.Close()

	body, _ := io.ReadAll(resp.Body)
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		var apiErr struct {
			Stage string `json:"stage"`
			Kind  string `json:"kind"`
			Error string `json:"error"`
		}
		if json.Unmarshal(body, &apiErr) == nil && apiErr.Kind != "" {
			fmt.Printf("Error (%s): [%s/%s] %s\n", resp.Status, apiErr.Stage, apiErr.Kind, apiErr.Error)
		} else {
			fmt.Printf("Error (%s): %s\n", resp.Status, strings.TrimSpace(string(body)))
		}
		return nil, false
	}
	return body, true
}
