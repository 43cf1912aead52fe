package logger

import (
	"io"
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/lmittmann/tint"
	"gopkg.in/natefinch/lumberjack.v2"

	"queuesync/internal/config"
)

var level = new(slog.LevelVar)

// Init configura el logger global. Salida de consola con tint, archivo
// rotado con lumberjack cuando output_path apunta a un fichero.
func Init(cfg config.LogConfig) {
	level.Set(ParseLevel(cfg.Level))

	var writer io.Writer
	toFile := false
	switch strings.ToLower(cfg.OutputPath) {
	case "", "stdout":
		writer = os.Stdout
	case "stderr":
		writer = os.Stderr
	default:
		toFile = true
		writer = &lumberjack.Logger{
			Filename:   cfg.OutputPath,
			MaxSize:    orDefault(cfg.MaxSizeMB, 50),
			MaxBackups: orDefault(cfg.MaxBackups, 5),
			Compress:   true,
		}
	}

	slog.SetDefault(slog.New(NewHandler(writer, cfg.Format, toFile)))
}

// NewHandler crea el handler para un writer dado
func NewHandler(w io.Writer, format string, noColor bool) slog.Handler {
	if strings.ToLower(format) == "json" {
		return slog.NewJSONHandler(w, &slog.HandlerOptions{Level: level})
	}
	return tint.NewHandler(w, &tint.Options{
		Level:      level,
		TimeFormat: time.DateTime,
		NoColor:    noColor,
		ReplaceAttr: func(groups []string, a slog.Attr) slog.Attr {
			if a.Key == "error" && a.Value.Kind() == slog.KindAny {
				if err, ok := a.Value.Any().(error); ok {
					return tint.Err(err)
				}
			}
			return a
		},
	})
}

// For devuelve un logger etiquetado con el componente
func For(component string) *slog.Logger {
	return slog.Default().With("component", component)
}

// ParseLevel convierte el nivel textual de la configuración
func ParseLevel(s string) slog.Level {
	switch strings.ToLower(s) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

func orDefault(v, def int) int {
	if v <= 0 {
		return def
	}
	return v
}
