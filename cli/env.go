package cli

import (
	"fmt"
	"io"
	"log/slog"

	"github.com/absmach/cohort/pkg/mqtt"
	"github.com/absmach/cohort/pkg/storage"
	"github.com/absmach/cohort/pkg/tracing"
	"github.com/caarlos0/env/v11"
)

const svcName = "cohort"

// EnvConfig holds the process settings read from the environment.
type EnvConfig struct {
	LogLevel   string `env:"COHORT_LOG_LEVEL"   envDefault:"info"`
	InstanceID string `env:"COHORT_INSTANCE_ID"`
	// HTTPPort is where the read-only API listens while a run is in
	// progress. Empty disables the API.
	HTTPPort string `env:"COHORT_HTTP_PORT" envDefault:"9090"`
	MQTT     mqtt.Config
	Tracing  tracing.Config
	Storage  storage.Config
}

func LoadEnv() (EnvConfig, error) {
	var cfg EnvConfig
	if err := env.Parse(&cfg); err != nil {
		return EnvConfig{}, fmt.Errorf("failed to load configuration: %w", err)
	}

	return cfg, nil
}

func newLogger(w io.Writer, level string) (*slog.Logger, error) {
	var lvl slog.Level
	if err := lvl.UnmarshalText([]byte(level)); err != nil {
		return nil, fmt.Errorf("failed to parse log level: %w", err)
	}

	return slog.New(slog.NewJSONHandler(w, &slog.HandlerOptions{Level: lvl})), nil
}
