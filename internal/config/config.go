// Package config defines the YAML configuration for the ImageBridge server
// and helpers for loading and hot-reloading it.
package config

import (
	"errors"
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"
)

// Config is the root configuration object, loaded from config.yaml.
type Config struct {
	// Port is the TCP port the HTTP facade listens on.
	Port int `yaml:"port"`

	// Debug enables debug-level logging and gin debug mode.
	Debug bool `yaml:"debug"`

	// LoggingToFile switches log output from stdout to rotating files.
	LoggingToFile bool `yaml:"logging-to-file"`

	// APIKeys lists the static bearer keys accepted by the facade.
	APIKeys []string `yaml:"api-keys"`

	// ProxyURL routes upstream traffic through an http/https/socks5 proxy.
	ProxyURL string `yaml:"proxy-url"`

	Upstream    Upstream    `yaml:"upstream"`
	Storage     Storage     `yaml:"storage"`
	Telegram    Telegram    `yaml:"telegram"`
	ObjectStore ObjectStore `yaml:"object-store"`
}

// Upstream describes the image-generation provider endpoints.
type Upstream struct {
	// BaseURL is the provider API root; the generate endpoint hangs off it.
	BaseURL string `yaml:"base-url"`

	// GeneratePath is the generation endpoint path under BaseURL.
	GeneratePath string `yaml:"generate-path"`

	// AuthorizeURL is the first leg of the token exchange.
	AuthorizeURL string `yaml:"authorize-url"`

	// TokenURL redeems a one-time code for a fresh access token.
	TokenURL string `yaml:"token-url"`

	// AssetPathHint marks provider asset URLs that lack an image extension.
	AssetPathHint string `yaml:"asset-path-hint"`

	// TimeoutSeconds bounds a single generate call. 2K renders can take
	// close to two minutes, so the default is generous.
	TimeoutSeconds int `yaml:"timeout-seconds"`
}

// Storage controls local artifact and session persistence.
type Storage struct {
	// Dir is the directory generated images are written to and served from.
	Dir string `yaml:"dir"`

	// Keep is the number of newest artifacts retained per directory.
	Keep int `yaml:"keep"`

	// SessionFile is the JSON cache holding the current session tokens.
	SessionFile string `yaml:"session-file"`
}

// Telegram configures the optional forwarding sidecar.
type Telegram struct {
	BotToken string `yaml:"bot-token"`
	// ChatID is resolved once at startup; artifacts are forwarded there.
	ChatID int64 `yaml:"chat-id"`
}

// ObjectStore configures the optional S3-compatible artifact mirror.
type ObjectStore struct {
	Endpoint  string `yaml:"endpoint"`
	Bucket    string `yaml:"bucket"`
	AccessKey string `yaml:"access-key"`
	SecretKey string `yaml:"secret-key"`
	UseSSL    bool   `yaml:"use-ssl"`
}

// Enabled reports whether an object-store mirror is configured.
func (o ObjectStore) Enabled() bool {
	return strings.TrimSpace(o.Endpoint) != "" && strings.TrimSpace(o.Bucket) != ""
}

// Enabled reports whether the Telegram sidecar is configured.
func (t Telegram) Enabled() bool {
	return strings.TrimSpace(t.BotToken) != ""
}

// applyDefaults fills zero values with working defaults.
func (c *Config) applyDefaults() {
	if c.Port == 0 {
		c.Port = 8080
	}
	if c.Upstream.GeneratePath == "" {
		c.Upstream.GeneratePath = "/v1/images/generate"
	}
	if c.Upstream.TimeoutSeconds <= 0 {
		c.Upstream.TimeoutSeconds = 180
	}
	if c.Storage.Dir == "" {
		c.Storage.Dir = "generated"
	}
	if c.Storage.Keep <= 0 {
		c.Storage.Keep = 10
	}
	if c.Storage.SessionFile == "" {
		c.Storage.SessionFile = "session.json"
	}
}

// LoadConfig reads and parses the configuration file at path.
func LoadConfig(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("config: read %s failed: %w", path, err)
	}
	cfg := &Config{}
	if err = yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("config: parse %s failed: %w", path, err)
	}
	cfg.applyDefaults()
	return cfg, nil
}

// LoadConfigOptional behaves like LoadConfig but treats a missing file as an
// empty configuration rather than an error.
func LoadConfigOptional(path string) (*Config, error) {
	cfg, err := LoadConfig(path)
	if err == nil {
		return cfg, nil
	}
	if errors.Is(err, os.ErrNotExist) {
		cfg = &Config{}
		cfg.applyDefaults()
		return cfg, nil
	}
	return nil, err
}
