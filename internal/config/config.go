package config

import (
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

type Config struct {
	ServerAddress string
	DatabaseURL   string
	JWTSecret     string
	JWTTTL        time.Duration
	ClientOrigin  string
	LogLevel      string

	// Per-IP token bucket settings for the REST surface. Auth endpoints get
	// a stricter bucket.
	APIRateRPS    float64
	APIRateBurst  int
	AuthRateRPS   float64
	AuthRateBurst int
}

// Load reads configuration from the environment. A .env file in the working
// directory is honored when present but never required.
func Load() *Config {
	_ = godotenv.Load()

	cwd, err := os.Getwd()
	if err != nil {
		panic(err)
	}

	dataDir := filepath.Join(cwd, "data")
	os.MkdirAll(dataDir, 0755)
	dbPath := filepath.Join(dataDir, "ripple.db")

	return &Config{
		ServerAddress: getEnv("SERVER_ADDRESS", ":8080"),
		DatabaseURL:   getEnv("DATABASE_URL", "sqlite://"+dbPath),
		JWTSecret:     getEnv("JWT_SECRET", "dev-secret-change-me"),
		JWTTTL:        getDuration("JWT_TTL", 30*24*time.Hour),
		ClientOrigin:  getEnv("CLIENT_ORIGIN", "http://localhost:3000"),
		LogLevel:      getEnv("LOG_LEVEL", "info"),
		APIRateRPS:    getFloat("API_RATE_RPS", 25),
		APIRateBurst:  getInt("API_RATE_BURST", 50),
		AuthRateRPS:   getFloat("AUTH_RATE_RPS", 1),
		AuthRateBurst: getInt("AUTH_RATE_BURST", 5),
	}
}

// CleanDatabasePath returns a clean filesystem path from a database URL.
func (c *Config) CleanDatabasePath() string {
	dbPath := strings.TrimPrefix(c.DatabaseURL, "sqlite://")
	if !filepath.IsAbs(dbPath) {
		cwd, err := os.Getwd()
		if err != nil {
			panic(err)
		}
		dbPath = filepath.Join(cwd, dbPath)
	}
	return dbPath
}

func getEnv(key, fallback string) string {
	if value, exists := os.LookupEnv(key); exists {
		return value
	}
	return fallback
}

func getInt(key string, fallback int) int {
	if value, exists := os.LookupEnv(key); exists {
		if n, err := strconv.Atoi(value); err == nil {
			return n
		}
	}
	return fallback
}

func getFloat(key string, fallback float64) float64 {
	if value, exists := os.LookupEnv(key); exists {
		if f, err := strconv.ParseFloat(value, 64); err == nil {
			return f
		}
	}
	return fallback
}

func getDuration(key string, fallback time.Duration) time.Duration {
	if value, exists := os.LookupEnv(key); exists {
		if d, err := time.ParseDuration(value); err == nil {
			return d
		}
	}
	return fallback
}
