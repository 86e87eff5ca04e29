package observability

import (
	"strings"

	"github.com/changespage/changespage/internal/config"
)

// Config carries logging and telemetry settings shared across the module.
type Config struct {
	ServiceName string
	Environment string
	Version     string
	LogLevel    string
	LogFormat   string

	OtelEnabled          bool
	OtelExporterEndpoint string
}

func LoadConfig(cfg config.Config) Config {
	return Config{
		ServiceName:          cfg.AppName,
		Environment:          cfg.Environment,
		Version:              cfg.AppVersion,
		LogLevel:             strings.TrimSpace(getenvDefault("LOG_LEVEL", "info")),
		LogFormat:            strings.TrimSpace(getenvDefault("LOG_FORMAT", "json")),
		OtelEnabled:          cfg.OtelEnabled,
		OtelExporterEndpoint: cfg.OTLPEndpoint,
	}
}

func (c Config) Debug() bool {
	return c.Environment != "production"
}
