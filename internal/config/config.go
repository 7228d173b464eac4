// Package config loads and validates bridge configuration.
//
// Sources are merged in order: built-in defaults, an optional YAML
// file, then environment variables prefixed with BELLHOP_. A double
// underscore separates sections, so BELLHOP_CRM__BASE_URL overrides
// crm.base_url.
package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/confmap"
	"github.com/knadh/koanf/providers/env/v2"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"
)

const envPrefix = "BELLHOP_"

// Config is the root configuration.
type Config struct {
	CRM       CRMConfig       `koanf:"crm" validate:"required"`
	Realtime  RealtimeConfig  `koanf:"realtime"`
	Local     LocalConfig     `koanf:"local"`
	History   HistoryConfig   `koanf:"history"`
	Presenter PresenterConfig `koanf:"presenter"`
	Log       LogConfig       `koanf:"log"`
}

// CRMConfig describes how to reach the LingoDesk backend.
type CRMConfig struct {
	BaseURL        string        `koanf:"base_url" validate:"required,url"`
	SessionToken   string        `koanf:"session_token" validate:"required"`
	RequestTimeout time.Duration `koanf:"request_timeout"`
	MaxRetries     int           `koanf:"max_retries" validate:"min=0,max=10"`
	PrefsTTL       time.Duration `koanf:"prefs_ttl"`
}

// RealtimeConfig tunes the push connection.
type RealtimeConfig struct {
	Endpoint          string        `koanf:"endpoint" validate:"required"`
	HandshakeTimeout  time.Duration `koanf:"handshake_timeout"`
	HeartbeatInterval time.Duration `koanf:"heartbeat_interval"`
	InitialBackoff    time.Duration `koanf:"initial_backoff"`
	MaxBackoff        time.Duration `koanf:"max_backoff"`
	MaxAttempts       int           `koanf:"max_attempts" validate:"min=1"`
}

// LocalConfig configures the loopback control API and metrics listener.
type LocalConfig struct {
	Host        string `koanf:"host"`
	Port        string `koanf:"port" validate:"required"`
	MetricsPort string `koanf:"metrics_port" validate:"required"`
	Token       string `koanf:"token"`
}

// HistoryConfig configures the local notification cache.
type HistoryConfig struct {
	Path string `koanf:"path" validate:"required"`
}

// PresenterConfig tunes local effect policy.
type PresenterConfig struct {
	// InterruptionsPerMinute caps sound and desktop effects.
	InterruptionsPerMinute float64 `koanf:"interruptions_per_minute" validate:"gt=0"`
	InterruptionBurst      int     `koanf:"interruption_burst" validate:"min=1"`
}

// LogConfig configures logging output.
type LogConfig struct {
	Level  string `koanf:"level" validate:"oneof=debug info warn error"`
	Format string `koanf:"format" validate:"oneof=json text"`
}

func defaults() map[string]interface{} {
	return map[string]interface{}{
		"crm.request_timeout":                 "15s",
		"crm.max_retries":                     3,
		"crm.prefs_ttl":                       "5m",
		"realtime.handshake_timeout":          "10s",
		"realtime.heartbeat_interval":         "30s",
		"realtime.initial_backoff":            "1s",
		"realtime.max_backoff":                "30s",
		"realtime.max_attempts":               5,
		"local.host":                          "127.0.0.1",
		"local.port":                          "7831",
		"local.metrics_port":                  "7832",
		"history.path":                        defaultHistoryPath(),
		"presenter.interruptions_per_minute":  12.0,
		"presenter.interruption_burst":        3,
		"log.level":                           "info",
		"log.format":                          "text",
	}
}

func defaultHistoryPath() string {
	dir, err := os.UserCacheDir()
	if err != nil {
		return "bellhop.db"
	}
	return dir + "/bellhop/history.db"
}

// Load reads configuration from defaults, the optional file at path,
// and the environment. A missing file is only an error when the path
// was given explicitly.
func Load(path string) (*Config, error) {
	k := koanf.New(".")

	if err := k.Load(confmap.Provider(defaults(), "."), nil); err != nil {
		return nil, fmt.Errorf("load defaults: %w", err)
	}

	if path != "" {
		if err := k.Load(file.Provider(path), yaml.Parser()); err != nil {
			return nil, fmt.Errorf("load config file %s: %w", path, err)
		}
	}

	if err := k.Load(env.Provider(".", env.Opt{
		Prefix: envPrefix,
		TransformFunc: func(key, value string) (string, any) {
			key = strings.ReplaceAll(strings.ToLower(strings.TrimPrefix(key, envPrefix)), "__", ".")
			return key, value
		},
	}), nil); err != nil {
		return nil, fmt.Errorf("load env: %w", err)
	}

	var cfg Config
	if err := k.Unmarshal("", &cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}

	if err := validator.New().Struct(cfg); err != nil {
		return nil, fmt.Errorf("validate config: %w", err)
	}

	return &cfg, nil
}
