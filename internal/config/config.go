package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"
)

type Config struct {
	Server     ServerConfig               `yaml:"server"`
	Backend    BackendConfig              `yaml:"backend"`
	Responders map[string]ResponderConfig `yaml:"responders"`
	Throttle   ThrottleConfig             `yaml:"throttle"`
	Dispatch   DispatchConfig             `yaml:"dispatch"`
	Store      StoreConfig                `yaml:"store"`
	NATS       NATSConfig                 `yaml:"nats"`
	Telegram   TelegramConfig             `yaml:"telegram"`
}

type ServerConfig struct {
	Port int    `yaml:"port"`
	Auth string `yaml:"auth"`
}

type BackendConfig struct {
	APIKey string `yaml:"api_key"`
	// APIKeySealed holds the API key encrypted with the vault passphrase
	// (see `boardroom seal`). Ignored when APIKey is set.
	APIKeySealed  string  `yaml:"api_key_sealed"`
	Model         string  `yaml:"model"`
	Temperature   float64 `yaml:"temperature"`
	MaxTokens     int     `yaml:"max_tokens"`
	HistoryWindow int     `yaml:"history_window"`
}

type ResponderConfig struct {
	Model       string   `yaml:"model"`
	Temperature *float64 `yaml:"temperature"`
	Disabled    bool     `yaml:"disabled"`
}

type ThrottleConfig struct {
	Window    time.Duration `yaml:"window"`
	Capacity  int           `yaml:"capacity"`
	KeyPrefix int           `yaml:"key_prefix"`
}

type DispatchConfig struct {
	StepTimeout time.Duration `yaml:"step_timeout"`
	PendingWait time.Duration `yaml:"pending_wait"`
}

type StoreConfig struct {
	Path string `yaml:"path"`
}

type NATSConfig struct {
	Port    int    `yaml:"port"`
	DataDir string `yaml:"data_dir"`
}

type TelegramConfig struct {
	Token     string  `yaml:"token"`
	AllowFrom []int64 `yaml:"allow_from"`
}

func defaults() Config {
	return Config{
		Server: ServerConfig{
			Port: 8080,
		},
		Backend: BackendConfig{
			Model:         "claude-sonnet-4-5-20250929",
			Temperature:   0.7,
			MaxTokens:     4096,
			HistoryWindow: 5,
		},
		Throttle: ThrottleConfig{
			Window:    1 * time.Second,
			Capacity:  50,
			KeyPrefix: 100,
		},
		Dispatch: DispatchConfig{
			StepTimeout: 30 * time.Second,
			PendingWait: 1 * time.Second,
		},
		Store: StoreConfig{
			Path: "data/boardroom.db",
		},
		NATS: NATSConfig{
			Port:    4222,
			DataDir: "data/nats",
		},
	}
}

func Load() (*Config, error) {
	cfg := defaults()

	path := os.Getenv("BOARDROOM_CONFIG")
	if path == "" {
		path = "config/boardroom.yaml"
	}

	data, err := os.ReadFile(path)
	if err != nil {
		if !os.IsNotExist(err) {
			return nil, fmt.Errorf("read config: %w", err)
		}
		// Config file not found, use defaults + env
	} else {
		// Expand environment variables in YAML
		expanded := os.ExpandEnv(string(data))
		if err := yaml.Unmarshal([]byte(expanded), &cfg); err != nil {
			return nil, fmt.Errorf("parse config: %w", err)
		}
	}

	applyEnv(&cfg)

	if err := cfg.validate(); err != nil {
		return nil, err
	}

	return &cfg, nil
}

func applyEnv(cfg *Config) {
	if v := os.Getenv("ANTHROPIC_API_KEY"); v != "" {
		cfg.Backend.APIKey = v
	}
	if v := os.Getenv("BOARDROOM_TELEGRAM_TOKEN"); v != "" {
		cfg.Telegram.Token = v
	}
	if v := os.Getenv("BOARDROOM_WEB_PASSWORD"); v != "" {
		cfg.Server.Auth = v
	}
	if v := os.Getenv("BOARDROOM_WEB_PORT"); v != "" {
		if port, err := strconv.Atoi(v); err == nil {
			cfg.Server.Port = port
		}
	}
	if v := os.Getenv("BOARDROOM_NATS_PORT"); v != "" {
		if port, err := strconv.Atoi(v); err == nil {
			cfg.NATS.Port = port
		}
	}
	if v := os.Getenv("BOARDROOM_STORE_PATH"); v != "" {
		cfg.Store.Path = v
	}
}

func (c *Config) validate() error {
	if c.Throttle.Capacity <= 0 {
		return fmt.Errorf("throttle capacity must be positive, got %d", c.Throttle.Capacity)
	}
	if c.Throttle.KeyPrefix <= 0 {
		return fmt.Errorf("throttle key_prefix must be positive, got %d", c.Throttle.KeyPrefix)
	}
	if c.Dispatch.StepTimeout <= 0 {
		return fmt.Errorf("dispatch step_timeout must be positive, got %s", c.Dispatch.StepTimeout)
	}
	return nil
}
