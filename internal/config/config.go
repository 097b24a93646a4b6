package config

import (
	"os"
	"strconv"
	"strings"

	"github.com/joho/godotenv"
)

// Config holds application configuration.
type Config struct {
	AppName     string
	AppVersion  string
	Environment string

	FixtureDir string
	OutputDir  string

	MetricsEnabled  bool
	MetricsEndpoint string
	MetricsProtocol string

	DBType            string
	DBPath            string
	DBHost            string
	DBPort            string
	DBName            string
	DBUser            string
	DBPassword        string
	DBSSLMode         string
	DBMaxIdleConn     int
	DBMaxOpenConn     int
	DBConnMaxLifetime int
	DBConnMaxIdleTime int
}

// Load loads configuration from environment variables and .env file.
func Load() Config {
	_ = godotenv.Load()

	return Config{
		AppName:     getenv("APP_SERVICE", "meterline"),
		AppVersion:  getenv("APP_VERSION", "0.1.0"),
		Environment: getenv("ENVIRONMENT", "development"),

		FixtureDir: getenv("FIXTURE_DIR", "./sample_data"),
		OutputDir:  getenv("OUTPUT_DIR", "./out"),

		MetricsEnabled:  getenvBool("METRICS_ENABLED", false),
		MetricsEndpoint: strings.TrimSpace(getenv("METRICS_ENDPOINT", "localhost:4317")),
		MetricsProtocol: strings.ToLower(getenv("METRICS_PROTOCOL", "grpc")),

		DBType:        getenv("DATABASE_TYPE", "sqlite"),
		DBPath:        getenv("DATABASE_PATH", "meterline.db"),
		DBHost:        getenv("DATABASE_HOST", "localhost"),
		DBPort:        getenv("DATABASE_PORT", "5432"),
		DBName:        getenv("DATABASE_NAME", "postgres"),
		DBUser:        getenv("DATABASE_USER", "postgres"),
		DBPassword:    getenv("DATABASE_PASSWORD", ""),
		DBSSLMode:     getenv("DATABASE_SSLMODE", "disable"),
		DBMaxIdleConn: getenvInt("DATABASE_MAX_IDLE_CONN", 2),
		DBMaxOpenConn: getenvInt("DATABASE_MAX_OPEN_CONN", 8),
	}
}

func getenv(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func getenvBool(key string, def bool) bool {
	value := strings.ToLower(strings.TrimSpace(os.Getenv(key)))
	if value == "" {
		return def
	}
	switch value {
	case "1", "true", "yes", "y", "on":
		return true
	case "0", "false", "no", "n", "off":
		return false
	default:
		return def
	}
}

func getenvInt(key string, def int) int {
	value := strings.TrimSpace(os.Getenv(key))
	if value == "" {
		return def
	}
	parsed, err := strconv.Atoi(value)
	if err != nil {
		return def
	}
	return parsed
}
