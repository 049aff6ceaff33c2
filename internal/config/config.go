package config

import (
	"os"
	"strconv"
)

// Config holds all application configuration
type Config struct {
	Port         string
	DatabasePath string // SQLite file path for episode state and archive
	StaticDir    string // Directory of the built frontend, served at /

	// Reference data configuration
	DrugGuidePath    string // JSON drug guide (drugs, drips, defi protocols)
	HospitalDataPath string // YAML hospital directory
	HospitalID       string // Preselected hospital, empty means none

	// Archive configuration
	ArchiveLimit int // Maximum number of archived episodes kept

	// Observability
	MetricsEnabled bool
	CORSOrigins    string
}

// Load loads configuration from environment variables with defaults
func Load() *Config {
	return &Config{
		Port:         getEnv("PORT", "3001"),
		DatabasePath: getEnv("DATABASE_PATH", "./data/resusboard.db"),
		StaticDir:    getEnv("STATIC_DIR", ""),

		DrugGuidePath:    getEnv("DRUG_GUIDE_PATH", "./data/drug-guide.json"),
		HospitalDataPath: getEnv("HOSPITAL_DATA_PATH", "./data/hospitals.yaml"),
		HospitalID:       getEnv("HOSPITAL_ID", ""),

		ArchiveLimit: getIntEnv("ARCHIVE_LIMIT", 5),

		MetricsEnabled: getBoolEnv("METRICS_ENABLED", true),
		CORSOrigins:    getEnv("CORS_ORIGINS", "*"),
	}
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getBoolEnv(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		parsed, err := strconv.ParseBool(value)
		if err == nil {
			return parsed
		}
	}
	return defaultValue
}

func getIntEnv(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		parsed, err := strconv.Atoi(value)
		if err == nil {
			return parsed
		}
	}
	return defaultValue
}
