package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"queuesync/internal/ami"
	"queuesync/internal/api"
	"queuesync/internal/auth"
	"queuesync/internal/config"
	"queuesync/internal/database"
	"queuesync/internal/logger"
	"queuesync/internal/queue"
	"queuesync/internal/syncer"
	"queuesync/internal/websocket"
)

const defaultConfigPath = "/etc/queuesync/queuesync.yaml"

var configPath string

func main() {
	var rootCmd = &cobra.Command{
		Use:          "queuesync",
		Short:        "Sincronización de colas Asterisk",
		Long:         `Mantiene la tabla de colas del panel alineada con las colas que Asterisk tiene configuradas.`,
		SilenceUsage: true,
	}

	defaultPath := os.Getenv("QUEUESYNC_CONFIG")
	if defaultPath == "" {
		defaultPath = defaultConfigPath
	}
	rootCmd.PersistentFlags().StringVar(&configPath, "config", defaultPath, "Archivo de configuración YAML")

	var serveCmd = &cobra.Command{
		Use:   "serve",
		Short: "Inicia la API REST y el feed websocket",
		RunE:  runServe,
	}

	var syncCmd = &cobra.Command{
		Use:   "sync",
		Short: "Ejecuta una sincronización y muestra el resultado",
		RunE:  runSync,
	}

	var migrateCmd = &cobra.Command{
		Use:   "migrate",
		Short: "Aplica el esquema de base de datos",
		RunE:  runMigrate,
	}

	rootCmd.AddCommand(serveCmd, syncCmd, migrateCmd, newQueueCmd(), newUserCmd())

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	err := rootCmd.ExecuteContext(ctx)
	stop()
	if err != nil {
		os.Exit(1)
	}
}

// bootstrap carga la configuración, inicializa el logger y abre la base
func bootstrap() (*config.Config, *database.Connection, error) {
	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, nil, err
	}
	logger.Init(cfg.Log)

	conn, err := database.NewConnection(cfg.Database)
	if err != nil {
		return nil, nil, err
	}
	return cfg, conn, nil
}

// newOrchestrator conecta transporte, enumerador, motor y repositorio
func newOrchestrator(cfg *config.Config, repo *database.QueueRepository, notifier syncer.Notifier) (*syncer.Orchestrator, error) {
	engine, err := queue.NewEngine(queue.Defaults{
		SLAThresholdSeconds:     cfg.Sync.DefaultSLASeconds,
		WarningThresholdSeconds: cfg.Sync.DefaultWarningSeconds,
		IsMonitored:             cfg.Sync.MonitorNewQueues,
	})
	if err != nil {
		return nil, err
	}

	return syncer.New(syncer.Deps{
		Dialer:        syncer.AMIDialer(ami.NewDialer(cfg.AMI)),
		Enumerator:    ami.NewQueueEnumerator(),
		Reconciler:    engine,
		Store:         repo,
		Notifier:      notifier,
		CommitTimeout: cfg.Sync.CommitTimeout,
	}), nil
}

func runServe(cmd *cobra.Command, args []string) error {
	cfg, conn, err := bootstrap()
	if err != nil {
		return err
	}
	defer conn.Close()

	log := logger.For("main")
	log.Info("QueueSync iniciando", "ami", cfg.AMI.Address(), "driver", cfg.Database.Driver)

	ctx := cmd.Context()
	if err := conn.Migrate(ctx); err != nil {
		return err
	}
	log.Info("base de datos lista")

	tokens, err := auth.NewManager(cfg.Auth)
	if err != nil {
		return err
	}

	hub := websocket.NewHub()
	go hub.Run(ctx)

	repo := database.NewQueueRepository(conn)
	orch, err := newOrchestrator(cfg, repo, hub)
	if err != nil {
		return err
	}

	server := api.NewServer(cfg.API, tokens, repo, database.NewUserRepository(conn), orch, hub)
	log.Info("API REST escuchando", "addr", cfg.API.Address())
	if err := server.Start(ctx); err != nil {
		return fmt.Errorf("error iniciando API: %w", err)
	}

	log.Info("servicio detenido")
	return nil
}

func runMigrate(cmd *cobra.Command, args []string) error {
	_, conn, err := bootstrap()
	if err != nil {
		return err
	}
	defer conn.Close()

	if err := conn.Migrate(cmd.Context()); err != nil {
		return err
	}
	fmt.Println("Esquema actualizado.")
	return nil
}
