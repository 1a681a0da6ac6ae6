package web

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/goccy/go-yaml"
)

// Config represents the web server configuration
type Config struct {
	Server   ServerConfig  `json:"server" yaml:"server"`
	Auth     AuthConfig    `json:"auth" yaml:"auth"`
	Features FeatureConfig `json:"features" yaml:"features"`
}

// ServerConfig contains HTTP server settings
type ServerConfig struct {
	Port           int      `json:"port" yaml:"port"`
	Host           string   `json:"host" yaml:"host"`
	AllowedOrigins []string `json:"allowed_origins" yaml:"allowed_origins"`
	StaticDir      string   `json:"static_dir" yaml:"static_dir"`
}

// AuthConfig protects the refresh endpoint
type AuthConfig struct {
	APIKey string `json:"api_key" yaml:"api_key"`
}

// FeatureConfig contains feature toggles
type FeatureConfig struct {
	ExportEnabled  bool `json:"export_enabled" yaml:"export_enabled"`
	RefreshEnabled bool `json:"refresh_enabled" yaml:"refresh_enabled"`
}

// LoadConfig loads configuration from a JSON or YAML file. Missing fields keep
// their defaults.
func LoadConfig(filename string) (*Config, error) {
	data, err := os.ReadFile(filename)
	if err != nil {
		return nil, err
	}

	config := DefaultConfig()
	switch strings.ToLower(filepath.Ext(filename)) {
	case ".yaml", ".yml":
		err = yaml.Unmarshal(data, config)
	default:
		err = json.Unmarshal(data, config)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to parse %s: %w", filename, err)
	}

	return config, nil
}

// DefaultConfig returns a default configuration
func DefaultConfig() *Config {
	return &Config{
		Server: ServerConfig{
			Port:           8080,
			Host:           "0.0.0.0",
			AllowedOrigins: []string{"*"},
			StaticDir:      "internal/web/static",
		},
		Features: FeatureConfig{
			ExportEnabled:  true,
			RefreshEnabled: true,
		},
	}
}
