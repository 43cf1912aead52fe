package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"
)

const (
	DefaultAMITimeout        = 30 * time.Second
	DefaultAMIConnectTimeout = 5 * time.Second
)

// Config estructura principal de configuración
type Config struct {
	AMI      AMIConfig      `yaml:"ami"`
	API      APIConfig      `yaml:"api"`
	Database DatabaseConfig `yaml:"database"`
	Auth     AuthConfig     `yaml:"auth"`
	Sync     SyncConfig     `yaml:"sync"`
	Log      LogConfig      `yaml:"log"`
}

type AMIConfig struct {
	Host           string        `yaml:"host" validate:"required,hostname_rfc1123|ip"`
	Port           int           `yaml:"port" validate:"required,min=1,max=65535"`
	Username       string        `yaml:"username" validate:"required"`
	Secret         string        `yaml:"secret" validate:"required"`
	Timeout        time.Duration `yaml:"timeout" validate:"gt=0"`
	ConnectTimeout time.Duration `yaml:"connect_timeout" validate:"gt=0"`
}

type APIConfig struct {
	Host       string `yaml:"host"`
	Port       int    `yaml:"port" validate:"min=0,max=65535"`
	EnableCORS bool   `yaml:"enable_cors"`
}

type DatabaseConfig struct {
	Driver       string `yaml:"driver" validate:"omitempty,oneof=mysql sqlite"`
	Host         string `yaml:"host" validate:"required_unless=Driver sqlite"`
	Port         int    `yaml:"port" validate:"omitempty,min=1,max=65535"`
	Username     string `yaml:"username"`
	Password     string `yaml:"password"`
	Database     string `yaml:"database" validate:"required"`
	MaxOpenConns int    `yaml:"max_open_conns" validate:"min=0"`
	MaxIdleConns int    `yaml:"max_idle_conns" validate:"min=0"`
}

type AuthConfig struct {
	JWTSecret string        `yaml:"jwt_secret"`
	TokenTTL  time.Duration `yaml:"token_ttl"`
}

// SyncConfig valores por defecto para colas descubiertas por primera vez
type SyncConfig struct {
	DefaultSLASeconds     int           `yaml:"default_sla_seconds" validate:"min=0"`
	DefaultWarningSeconds int           `yaml:"default_warning_seconds" validate:"min=0,ltefield=DefaultSLASeconds"`
	MonitorNewQueues      bool          `yaml:"monitor_new_queues"`
	CommitTimeout         time.Duration `yaml:"commit_timeout" validate:"min=0"`
}

type LogConfig struct {
	Level      string `yaml:"level" validate:"omitempty,oneof=debug info warn warning error"`
	Format     string `yaml:"format" validate:"omitempty,oneof=text json"`
	OutputPath string `yaml:"output_path"`
	MaxSizeMB  int    `yaml:"max_size_mb" validate:"min=0"`
	MaxBackups int    `yaml:"max_backups" validate:"min=0"`
}

var validate = validator.New()

// Load carga la configuración desde archivo YAML
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("error leyendo archivo de configuración: %w", err)
	}
	return Parse(data)
}

// Parse interpreta el YAML, aplica variables de entorno y valida el resultado
func Parse(data []byte) (*Config, error) {
	cfg := Config{
		API:  APIConfig{Host: "0.0.0.0", Port: 8080},
		Auth: AuthConfig{TokenTTL: 24 * time.Hour},
		Sync: SyncConfig{DefaultSLASeconds: 20, DefaultWarningSeconds: 15, MonitorNewQueues: true, CommitTimeout: 30 * time.Second},
		Log:  LogConfig{Level: "info", Format: "text"},
	}
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("error parseando YAML: %w", err)
	}

	// Permitir sobrescribir con variables de entorno
	if err := overrideWithEnv(&cfg); err != nil {
		return nil, err
	}

	if cfg.AMI.Timeout == 0 {
		cfg.AMI.Timeout = DefaultAMITimeout
	}
	if cfg.AMI.ConnectTimeout == 0 {
		cfg.AMI.ConnectTimeout = DefaultAMIConnectTimeout
	}
	if cfg.Database.Driver == "" {
		cfg.Database.Driver = "mysql"
	}
	if cfg.Database.Driver == "mysql" && cfg.Database.Port == 0 {
		cfg.Database.Port = 3306
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate rechaza valores faltantes o mal formados
func (c *Config) Validate() error {
	if err := validate.Struct(c); err != nil {
		return fmt.Errorf("configuración inválida: %w", err)
	}
	return nil
}

// overrideWithEnv permite sobrescribir configuración con variables de entorno
func overrideWithEnv(cfg *Config) error {
	if v := os.Getenv("QUEUESYNC_AMI_HOST"); v != "" {
		cfg.AMI.Host = v
	}
	if v := os.Getenv("QUEUESYNC_AMI_PORT"); v != "" {
		port, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("QUEUESYNC_AMI_PORT inválido: %w", err)
		}
		cfg.AMI.Port = port
	}
	if v := os.Getenv("QUEUESYNC_AMI_USERNAME"); v != "" {
		cfg.AMI.Username = v
	}
	if v := os.Getenv("QUEUESYNC_AMI_SECRET"); v != "" {
		cfg.AMI.Secret = v
	}
	if v := os.Getenv("QUEUESYNC_DB_USERNAME"); v != "" {
		cfg.Database.Username = v
	}
	if v := os.Getenv("QUEUESYNC_DB_PASSWORD"); v != "" {
		cfg.Database.Password = v
	}
	if v := os.Getenv("QUEUESYNC_DB_HOST"); v != "" {
		cfg.Database.Host = v
	}
	if v := os.Getenv("QUEUESYNC_DB_DATABASE"); v != "" {
		cfg.Database.Database = v
	}
	if v := os.Getenv("QUEUESYNC_JWT_SECRET"); v != "" {
		cfg.Auth.JWTSecret = v
	}
	if v := os.Getenv("QUEUESYNC_LOG_LEVEL"); v != "" {
		cfg.Log.Level = strings.ToLower(v)
	}
	return nil
}

// Address devuelve la dirección completa del servidor API
func (a APIConfig) Address() string {
	return fmt.Sprintf("%s:%d", a.Host, a.Port)
}

// Address devuelve la dirección completa del servidor AMI
func (a AMIConfig) Address() string {
	return fmt.Sprintf("%s:%d", a.Host, a.Port)
}

// DSN devuelve el Data Source Name según el driver configurado.
// clientFoundRows hace que MySQL cuente filas encontradas y no solo modificadas.
func (d DatabaseConfig) DSN() string {
	if d.Driver == "sqlite" {
		return d.Database
	}
	return fmt.Sprintf("%s:%s@tcp(%s:%d)/%s?parseTime=true&charset=utf8mb4&clientFoundRows=true",
		d.Username, d.Password, d.Host, d.Port, d.Database)
}
