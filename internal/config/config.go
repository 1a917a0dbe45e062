package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Config defines server configuration.
type Config struct {
	Server  ServerConfig  `yaml:"server"`
	Auth    AuthConfig    `yaml:"auth"`
	Google  GoogleConfig  `yaml:"google"`
	Handoff HandoffConfig `yaml:"handoff"`
	Log     LogConfig     `yaml:"log"`
}

type ServerConfig struct {
	Host string `yaml:"host"`
	Port int    `yaml:"port"`
}

// AuthConfig holds the shared secret used to sign and verify pairing tokens.
// An empty secret disables token issuance and rejects every bearer credential.
type AuthConfig struct {
	PairingSecret string `yaml:"pairing_secret"`
}

type GoogleConfig struct {
	ClientID     string        `yaml:"client_id"`
	ClientSecret string        `yaml:"client_secret"`
	RedirectURI  string        `yaml:"redirect_uri"`
	Handles      []string      `yaml:"handles"`
	PollInterval time.Duration `yaml:"poll_interval"`
}

// HandoffConfig points at the local capture buffer database. An empty path
// disables the hand-off poller.
type HandoffConfig struct {
	Path         string        `yaml:"path"`
	PollInterval time.Duration `yaml:"poll_interval"`
}

type LogConfig struct {
	Level string `yaml:"level"`
}

// Load reads configuration from an optional YAML file and environment variables.
func Load() (Config, error) {
	cfg := Config{
		Server: ServerConfig{
			Host: "0.0.0.0",
			Port: 4317,
		},
		Google: GoogleConfig{
			Handles:      []string{"@illmedicine", "@illmedicineai"},
			PollInterval: time.Minute,
		},
		Handoff: HandoffConfig{
			PollInterval: 500 * time.Millisecond,
		},
		Log: LogConfig{
			Level: "info",
		},
	}

	if path := os.Getenv("LIVEPAY_CONFIG_PATH"); path != "" {
		if err := loadFromFile(path, &cfg); err != nil {
			return Config{}, err
		}
	}

	if host := os.Getenv("LIVEPAY_SERVER_HOST"); host != "" {
		cfg.Server.Host = host
	}
	if portStr := os.Getenv("LIVEPAY_EVENT_PORT"); portStr != "" {
		port, err := strconv.Atoi(portStr)
		if err != nil {
			return Config{}, fmt.Errorf("invalid LIVEPAY_EVENT_PORT: %w", err)
		}
		cfg.Server.Port = port
	}
	if secret := os.Getenv("LIVEPAY_PAIRING_SECRET"); secret != "" {
		cfg.Auth.PairingSecret = secret
	}
	if id := os.Getenv("GOOGLE_CLIENT_ID"); id != "" {
		cfg.Google.ClientID = id
	}
	if secret := os.Getenv("GOOGLE_CLIENT_SECRET"); secret != "" {
		cfg.Google.ClientSecret = secret
	}
	if uri := os.Getenv("GOOGLE_REDIRECT_URI"); uri != "" {
		cfg.Google.RedirectURI = uri
	}
	if handles := os.Getenv("LIVEPAY_YT_HANDLES"); handles != "" {
		cfg.Google.Handles = splitHandles(handles)
	}
	if path := os.Getenv("LIVEPAY_HANDOFF_PATH"); path != "" {
		cfg.Handoff.Path = path
	}
	if level := os.Getenv("LIVEPAY_LOG_LEVEL"); level != "" {
		cfg.Log.Level = level
	}

	if cfg.Google.RedirectURI == "" {
		cfg.Google.RedirectURI = fmt.Sprintf("http://localhost:%d/oauth/google/callback", cfg.Server.Port)
	}

	return cfg, nil
}

func loadFromFile(path string, cfg *Config) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read config file: %w", err)
	}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return fmt.Errorf("parse config file: %w", err)
	}
	return nil
}

func splitHandles(raw string) []string {
	var handles []string
	for _, h := range strings.Split(raw, ",") {
		h = strings.TrimSpace(h)
		if h != "" {
			handles = append(handles, h)
		}
	}
	return handles
}
