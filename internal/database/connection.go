package database

import (
	"context"
	"database/sql"
	"embed"
	"fmt"
	"io/fs"
	"time"

	_ "github.com/go-sql-driver/mysql"
	"github.com/pressly/goose/v3"
	_ "modernc.org/sqlite"

	"queuesync/internal/config"
	"queuesync/internal/logger"
)

//go:embed migrations
var migrationsFS embed.FS

// Connection maneja el pool de conexiones a la base de datos
type Connection struct {
	DB     *sql.DB
	Driver string
}

// NewConnection crea una nueva conexión a la base de datos
func NewConnection(cfg config.DatabaseConfig) (*Connection, error) {
	db, err := sql.Open(cfg.Driver, cfg.DSN())
	if err != nil {
		return nil, fmt.Errorf("error abriendo conexión: %w", err)
	}

	conn := &Connection{DB: db, Driver: cfg.Driver}

	// Configurar pool de conexiones
	if cfg.Driver == "sqlite" {
		// cada conexión SQLite en memoria es una base distinta
		db.SetMaxOpenConns(1)
	} else {
		db.SetMaxOpenConns(cfg.MaxOpenConns)
		db.SetMaxIdleConns(cfg.MaxIdleConns)
		db.SetConnMaxLifetime(time.Hour)
	}

	// Verificar conectividad
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("error conectando a la base de datos: %w", err)
	}

	return conn, nil
}

// Migrate aplica el esquema embebido correspondiente al driver
func (c *Connection) Migrate(ctx context.Context) error {
	dialect, dir := goose.DialectMySQL, "migrations/mysql"
	if c.Driver == "sqlite" {
		dialect, dir = goose.DialectSQLite3, "migrations/sqlite"
	}

	fsys, err := fs.Sub(migrationsFS, dir)
	if err != nil {
		return fmt.Errorf("error leyendo migraciones: %w", err)
	}

	provider, err := goose.NewProvider(dialect, c.DB, fsys)
	if err != nil {
		return fmt.Errorf("error preparando migraciones: %w", err)
	}

	results, err := provider.Up(ctx)
	if err != nil {
		return fmt.Errorf("error ejecutando migraciones: %w", err)
	}

	log := logger.For("database")
	for _, r := range results {
		log.Info("migración aplicada", "source", r.Source.Path, "duration", r.Duration)
	}
	return nil
}

// txIsolation devuelve el aislamiento usado al aplicar planes. SQLite es
// serializable por naturaleza y no acepta niveles explícitos.
func (c *Connection) txIsolation() sql.IsolationLevel {
	if c.Driver == "sqlite" {
		return sql.LevelDefault
	}
	return sql.LevelRepeatableRead
}

// Close cierra la conexión a la base de datos
func (c *Connection) Close() error {
	return c.DB.Close()
}
