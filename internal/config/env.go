package config

import (
	"os"
	"strconv"
	"strings"

	"github.com/joho/godotenv"
)

// LoadEnv loads environment variables from the first .env file found in the
// current directory or its parents. Variables already set in the process
// environment are never overridden.
func LoadEnv() error {
	envPaths := []string{".env.local", ".env", "../.env", "../../.env"}

	for _, envPath := range envPaths {
		if _, err := os.Stat(envPath); err != nil {
			continue
		}
		return godotenv.Load(envPath)
	}
	return nil
}

// GetEnv gets environment variable with default
func GetEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// GetEnvInt gets integer environment variable with default
func GetEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intValue, err := strconv.Atoi(value); err == nil {
			return intValue
		}
	}
	return defaultValue
}

// GetEnvBool gets boolean environment variable with default
func GetEnvBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		switch strings.ToLower(value) {
		case "true", "1", "yes", "on":
			return true
		case "false", "0", "no", "off":
			return false
		}
	}
	return defaultValue
}

// Settings holds everything a merge run needs to locate its inputs and
// write its outputs.
type Settings struct {
	ProfilesPath   string
	RegistryPath   string
	RegistryDriver string
	RegistryDSN    string
	RegistryTable  string
	BoundariesPath string
	RulesPath      string
	CodeLabel      string
	OutputDir      string
	Workers        int
	WriteWorkbook  bool
	LogLevel       string
	Debug          bool
}

// LoadSettings reads merge settings from the environment. CLI flags are
// applied on top by the caller.
func LoadSettings() Settings {
	return Settings{
		ProfilesPath:   GetEnv("SCHOOLMAP_PROFILES", "data/profiles.json"),
		RegistryPath:   GetEnv("SCHOOLMAP_REGISTRY", "data/registry.csv"),
		RegistryDriver: GetEnv("SCHOOLMAP_REGISTRY_DRIVER", "postgres"),
		RegistryDSN:    GetEnv("SCHOOLMAP_REGISTRY_DSN", ""),
		RegistryTable:  GetEnv("SCHOOLMAP_REGISTRY_TABLE", "school_registry"),
		BoundariesPath: GetEnv("SCHOOLMAP_BOUNDARIES", "data/boundaries.geojson"),
		RulesPath:      GetEnv("SCHOOLMAP_RULES", ""),
		CodeLabel:      GetEnv("SCHOOLMAP_CODE_LABEL", "Centre_code"),
		OutputDir:      GetEnv("SCHOOLMAP_OUTPUT_DIR", "data/output"),
		Workers:        GetEnvInt("SCHOOLMAP_WORKERS", 4),
		WriteWorkbook:  GetEnvBool("SCHOOLMAP_WRITE_WORKBOOK", true),
		LogLevel:       GetEnv("LOG_LEVEL", "info"),
		Debug:          GetEnvBool("SCHOOLMAP_DEBUG", false),
	}
}
