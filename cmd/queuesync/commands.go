package main

import (
	"errors"
	"fmt"
	"os"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"queuesync/internal/auth"
	"queuesync/internal/database"
	"queuesync/internal/queue"
	"queuesync/internal/syncer"
)

func runSync(cmd *cobra.Command, args []string) error {
	cfg, conn, err := bootstrap()
	if err != nil {
		return err
	}
	defer conn.Close()

	orch, err := newOrchestrator(cfg, database.NewQueueRepository(conn), nil)
	if err != nil {
		return err
	}

	res, err := orch.Run(cmd.Context())
	if err != nil {
		var serr *syncer.StageError
		if errors.As(err, &serr) {
			fmt.Printf("Sincronización fallida en %s (%s): %v\n", serr.Stage, serr.Kind, serr.Err)
		}
		return err
	}

	printResult(res)
	return nil
}

func printResult(res *queue.SyncResult) {
	w := tabwriter.NewWriter(os.Stdout, 0, 0, 3, ' ', 0)
	fmt.Fprintln(w, "CREADAS\tREACTIVADAS\tDESACTIVADAS\tSIN CAMBIOS\tDURACIÓN")
	fmt.Fprintln(w, "-------\t-----------\t------------\t-----------\t--------")
	fmt.Fprintf(w, "%d\t%d\t%d\t%d\t%v\n", res.Created, res.Reactivated, res.Deactivated, res.Unchanged,
		res.FinishedAt.Sub(res.StartedAt).Round(time.Millisecond))
	w.Flush()

	for _, e := range res.Errors {
		fmt.Printf("  ! %s\n", e)
	}
}

func newQueueCmd() *cobra.Command {
	var queueCmd = &cobra.Command{
		Use:   "queue",
		Short: "Gestionar colas",
	}

	var listCmd = &cobra.Command{
		Use:   "list",
		Short: "Listar colas",
		RunE:  runQueueList,
	}

	var editCmd = &cobra.Command{
		Use:   "edit [number]",
		Short: "Editar nombre, umbrales y monitoreo de una cola",
		Args:  cobra.ExactArgs(1),
		RunE:  runQueueEdit,
	}
	editCmd.Flags().String("name", "", "Nombre visible")
	editCmd.Flags().Int("sla", 0, "Umbral SLA en segundos")
	editCmd.Flags().Int("warning", 0, "Umbral de advertencia en segundos")
	editCmd.Flags().Bool("monitored", true, "Mostrar la cola en el panel")

	queueCmd.AddCommand(listCmd, editCmd)
	return queueCmd
}

func runQueueList(cmd *cobra.Command, args []string) error {
	_, conn, err := bootstrap()
	if err != nil {
		return err
	}
	defer conn.Close()

	recs, err := database.NewQueueRepository(conn).ListQueues(cmd.Context())
	if err != nil {
		return err
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 0, 3, ' ', 0)
	fmt.Fprintln(w, "COLA\tNOMBRE\tSLA\tADVERTENCIA\tMONITOREADA\tACTIVA\tVISTA")
	fmt.Fprintln(w, "----\t------\t---\t-----------\t-----------\t------\t-----")
	for _, r := range recs {
		seen := "-"
		if !r.LastSeenAt.IsZero() {
			seen = r.LastSeenAt.Local().Format("2006-01-02 15:04:05")
		}
		fmt.Fprintf(w, "%s\t%s\t%d\t%d\t%v\t%v\t%s\n",
			r.QueueNumber, r.DisplayName, r.SLAThresholdSeconds, r.WarningThresholdSeconds, r.IsMonitored, r.IsActive, seen)
	}
	return w.Flush()
}

func runQueueEdit(cmd *cobra.Command, args []string) error {
	_, conn, err := bootstrap()
	if err != nil {
		return err
	}
	defer conn.Close()

	repo := database.NewQueueRepository(conn)
	current, err := repo.GetQueue(cmd.Context(), args[0])
	if err != nil {
		return err
	}

	// solo se sobrescriben los flags indicados
	settings := queue.Settings{
		DisplayName:             current.DisplayName,
		SLAThresholdSeconds:     current.SLAThresholdSeconds,
		WarningThresholdSeconds: current.WarningThresholdSeconds,
		IsMonitored:             current.IsMonitored,
	}
	flags := cmd.Flags()
	if flags.Changed("name") {
		settings.DisplayName, _ = flags.GetString("name")
	}
	if flags.Changed("sla") {
		settings.SLAThresholdSeconds, _ = flags.GetInt("sla")
	}
	if flags.Changed("warning") {
		settings.WarningThresholdSeconds, _ = flags.GetInt("warning")
	}
	if flags.Changed("monitored") {
		settings.IsMonitored, _ = flags.GetBool("monitored")
	}

	updated, err := repo.UpdateQueueSettings(cmd.Context(), args[0], settings)
	if err != nil {
		return err
	}
	fmt.Printf("Cola %s actualizada: %s (SLA %ds, advertencia %ds, monitoreada=%v)\n",
		updated.QueueNumber, updated.DisplayName, updated.SLAThresholdSeconds, updated.WarningThresholdSeconds, updated.IsMonitored)
	return nil
}

func newUserCmd() *cobra.Command {
	var userCmd = &cobra.Command{
		Use:   "user",
		Short: "Gestionar usuarios de la API",
	}

	var addCmd = &cobra.Command{
		Use:   "add",
		Short: "Crear usuario",
		RunE:  runUserAdd,
	}
	addCmd.Flags().String("username", "", "Usuario (requerido)")
	addCmd.Flags().String("password", "", "Contraseña (requerido)")
	addCmd.Flags().String("role", auth.RoleSupervisor, "Rol: admin o supervisor")
	addCmd.Flags().String("name", "", "Nombre completo")
	addCmd.MarkFlagRequired("username")
	addCmd.MarkFlagRequired("password")

	userCmd.AddCommand(addCmd)
	return userCmd
}

func runUserAdd(cmd *cobra.Command, args []string) error {
	flags := cmd.Flags()
	username, _ := flags.GetString("username")
	password, _ := flags.GetString("password")
	role, _ := flags.GetString("role")
	fullName, _ := flags.GetString("name")

	if !auth.ValidRole(role) {
		return fmt.Errorf("rol desconocido: %s", role)
	}

	hash, err := auth.HashPassword(password)
	if err != nil {
		return err
	}

	_, conn, err := bootstrap()
	if err != nil {
		return err
	}
	defer conn.Close()

	u := &database.User{Username: username, PasswordHash: hash, Role: role, FullName: fullName}
	if err := database.NewUserRepository(conn).CreateUser(cmd.Context(), u); err != nil {
		return err
	}
	fmt.Printf("Usuario %s creado (ID %d, rol %s)\n", u.Username, u.ID, u.Role)
	return nil
}
