// Package config loads trainer configuration from an optional YAML
// file, with environment variables taking precedence.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"
)

type Config struct {
	Server ServerConfig `yaml:"server"`
	Client ClientConfig `yaml:"client"`
	Engine EngineConfig `yaml:"engine"`
	Log    LogConfig    `yaml:"log"`
}

// ServerConfig is the relay listener surface. AllowedOrigins are host
// patterns matched against the browser Origin header on upgrade.
type ServerConfig struct {
	ListenAddr     string   `yaml:"listen_addr"`
	SocketPath     string   `yaml:"socket_path"`
	AllowedOrigins []string `yaml:"allowed_origins"`
}

type ClientConfig struct {
	ServerURL     string `yaml:"server_url"`
	AckTimeoutSec int    `yaml:"ack_timeout_sec"`
	PlayerName    string `yaml:"player_name"`
}

type EngineConfig struct {
	BinaryPath     string `yaml:"binary_path"`
	MoveTimeMillis int    `yaml:"move_time_millis"`
	SkillLevel     int    `yaml:"skill_level"`
}

type LogConfig struct {
	Level   string `yaml:"level"`
	Format  string `yaml:"format"`
	Console bool   `yaml:"console"`
	File    string `yaml:"file"`
}

// Load reads the YAML file at path when non-empty, then applies env
// overrides on top of the defaults.
func Load(path string) (*Config, error) {
	cfg := &Config{
		Server: ServerConfig{
			ListenAddr:     ":4000",
			SocketPath:     "/socket",
			AllowedOrigins: []string{"localhost:5173"},
		},
		Client: ClientConfig{
			ServerURL:     "http://localhost:4000",
			AckTimeoutSec: 5,
		},
		Engine: EngineConfig{
			MoveTimeMillis: 1000,
			SkillLevel:     10,
		},
		Log: LogConfig{
			Level:   "info",
			Format:  "console",
			Console: true,
		},
	}

	if strings.TrimSpace(path) != "" {
		raw, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("read config file: %w", err)
		}
		if err := yaml.Unmarshal(raw, cfg); err != nil {
			return nil, fmt.Errorf("parse config file: %w", err)
		}
	}

	if v := strings.TrimSpace(os.Getenv("SERVER_PORT")); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.Server.ListenAddr = fmt.Sprintf(":%d", n)
		}
	}
	if v := strings.TrimSpace(os.Getenv("LISTEN_ADDR")); v != "" {
		cfg.Server.ListenAddr = v
	}
	if v := strings.TrimSpace(os.Getenv("SOCKET_PATH")); v != "" {
		cfg.Server.SocketPath = v
	}
	if v := strings.TrimSpace(os.Getenv("CLIENT_ORIGINS")); v != "" {
		cfg.Server.AllowedOrigins = splitList(v)
	}
	if v := strings.TrimSpace(os.Getenv("SERVER_URL")); v != "" {
		cfg.Client.ServerURL = v
	}
	if v := strings.TrimSpace(os.Getenv("PLAYER_NAME")); v != "" {
		cfg.Client.PlayerName = v
	}
	if v := strings.TrimSpace(os.Getenv("STOCKFISH_PATH")); v != "" {
		cfg.Engine.BinaryPath = v
	}
	if v := strings.TrimSpace(os.Getenv("LOG_LEVEL")); v != "" {
		cfg.Log.Level = v
	}
	if v := strings.TrimSpace(os.Getenv("LOG_FORMAT")); v != "" {
		cfg.Log.Format = v
	}
	if v := strings.TrimSpace(os.Getenv("LOG_FILE")); v != "" {
		cfg.Log.File = v
	}

	if cfg.Client.AckTimeoutSec <= 0 {
		cfg.Client.AckTimeoutSec = 5
	}
	return cfg, nil
}

func splitList(v string) []string {
	var out []string
	for _, p := range strings.Split(v, ",") {
		if s := strings.TrimSpace(p); s != "" {
			out = append(out, s)
		}
	}
	return out
}
