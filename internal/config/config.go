package config

import (
	"errors"
	"io/fs"
	"os"
	"regexp"
	"strings"
	"time"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"
)

// DefaultPath is the config file Load reads when it exists.
const DefaultPath = "config.yaml"

// EnvPrefix prefixes every environment override. Nested keys use a double
// underscore: RELAY_SERVER__PORT=9000 sets server.port.
const EnvPrefix = "RELAY_"

type Config struct {
	Server     ServerConfig     `koanf:"server"`
	App        AppConfig        `koanf:"app"`
	Seed       SeedConfig       `koanf:"seed"`
	Events     EventsConfig     `koanf:"events"`
	Simulation SimulationConfig `koanf:"simulation"`
	Storage    StorageConfig    `koanf:"storage"`
	Telemetry  TelemetryConfig  `koanf:"telemetry"`
}

type ServerConfig struct {
	Port           int           `koanf:"port"`
	RequestTimeout time.Duration `koanf:"request_timeout"`
}

// AppConfig is reported by the version endpoint.
type AppConfig struct {
	Version     string `koanf:"version"`
	Environment string `koanf:"environment"`
}

type SeedConfig struct {
	Path string `koanf:"path"` // empty uses the embedded document
}

type EventsConfig struct {
	Buffer    int           `koanf:"buffer"`    // per-subscriber backlog
	Keepalive time.Duration `koanf:"keepalive"` // SSE comment interval
}

type SimulationConfig struct {
	ReapplySuccessRate float64 `koanf:"reapply_success_rate"`
}

type StorageConfig struct {
	Type   string       `koanf:"type"` // memory, sqlite (sqlite adds the event journal)
	SQLite SQLiteConfig `koanf:"sqlite"`
}

type SQLiteConfig struct {
	Path string `koanf:"path"`
}

type TelemetryConfig struct {
	Enabled     bool   `koanf:"enabled"`
	ServiceName string `koanf:"service_name"`
}

var defaults = map[string]any{
	"server.port":                     3000,
	"server.request_timeout":          "30s",
	"app.version":                     "1.2.4",
	"app.environment":                 "stable",
	"seed.path":                       "",
	"events.buffer":                   100,
	"events.keepalive":                "5s",
	"simulation.reapply_success_rate": 0.7,
	"storage.type":                    "memory",
	"storage.sqlite.path":             "./data/relaycode.db",
	"telemetry.enabled":               false,
	"telemetry.service_name":          "relaycode",
}

var envVarPattern = regexp.MustCompile(`\$\{([^}]+)\}`)

// Load reads config.yaml from the working directory if present.
func Load() (*Config, error) {
	return LoadFile(DefaultPath)
}

// LoadFile reads path (a missing file is fine), applies RELAY_ environment
// overrides on top and fills defaults for everything still unset.
func LoadFile(path string) (*Config, error) {
	k := koanf.New(".")

	if path != "" {
		if err := k.Load(file.Provider(path), yaml.Parser()); err != nil {
			// File not found is OK, we'll use env vars
			if !errors.Is(err, fs.ErrNotExist) {
				return nil, err
			}
		}
	}

	// Load environment variables (can override file config)
	if err := k.Load(env.Provider(EnvPrefix, ".", func(s string) string {
		return strings.Replace(strings.ToLower(strings.TrimPrefix(s, EnvPrefix)), "__", ".", -1)
	}), nil); err != nil {
		return nil, err
	}

	// Default values
	for key, value := range defaults {
		if !k.Exists(key) {
			k.Set(key, value)
		}
	}

	var cfg Config
	if err := k.Unmarshal("", &cfg); err != nil {
		return nil, err
	}

	cfg.Seed.Path = substituteEnvVars(cfg.Seed.Path)
	cfg.Storage.SQLite.Path = substituteEnvVars(cfg.Storage.SQLite.Path)

	return &cfg, nil
}

func substituteEnvVars(s string) string {
	return envVarPattern.ReplaceAllStringFunc(s, func(match string) string {
		// Extract variable name from ${VAR_NAME}
		varName := envVarPattern.FindStringSubmatch(match)[1]
		return os.Getenv(varName)
	})
}
