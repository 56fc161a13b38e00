package logging

import (
	"io"
	"log/slog"
	"time"

	"github.com/lmittmann/tint"

	"github.com/luki/airdash/internal/config"
)

// New builds the process logger. APP_ENV=dev gets tint output; colour is
// dropped when w is not a terminal stream (the dashboard log file). prod
// writes JSON.
func New(cfg config.Config, version, appName string, w io.Writer, color bool) *slog.Logger {
	if cfg.AppEnv == "dev" {
		h := tint.NewHandler(w, &tint.Options{
			Level:      cfg.LogLevel,
			AddSource:  true,
			TimeFormat: time.Kitchen,
			NoColor:    !color,
		})
		return slog.New(h).With("app", appName)
	}

	h := slog.NewJSONHandler(w, &slog.HandlerOptions{
		Level: cfg.LogLevel,
	})
	return slog.New(h).With(
		"app", appName,
		"version", version,
		"env", cfg.AppEnv,
		"device_id", cfg.DeviceID,
	)
}
