package config

import (
	"fmt"
	"log"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Config stores all the configuration of the application.
// Values are loaded from environment variables with optional
// loading from a .env file via godotenv.
type Config struct {
	// Database settings
	DBHost     string
	DBUser     string
	DBPassword string
	DBName     string
	DBPort     string
	DBSSLMode  string

	// Redis settings
	RedisHost     string
	RedisPort     string
	RedisUsername string
	RedisPassword string

	// Server settings
	ServerPort  string
	FrontendURL string

	// Session settings
	JWTSecret     string
	TokenTTL      time.Duration
	RefreshWindow time.Duration

	// Model endpoint settings
	ModelBaseURL     string
	ModelAPIKey      string
	ModelDefault     string
	ModelTemperature float64
	ModelTimeout     time.Duration
}

// LoadConfig reads configuration from environment variables and .env file.
// It returns the loaded configuration or an error if required values are missing.
func LoadConfig() (*Config, error) {
	// Try to load .env file, but proceed even if it doesn't exist
	if err := godotenv.Load(); err != nil {
		if os.IsNotExist(err) {
			log.Println("No .env file found, using environment variables only")
		} else {
			log.Printf("Warning: Error loading .env file: %v", err)
		}
	} else {
		log.Println("Environment loaded from .env file")
	}

	config := &Config{
		// Database settings
		DBHost:     getEnv("DB_HOST", ""),
		DBUser:     getEnv("DB_USER", ""),
		DBPassword: getEnv("DB_PASSWORD", ""),
		DBName:     getEnv("DB_NAME", ""),
		DBPort:     getEnv("DB_PORT", "5432"),
		DBSSLMode:  getEnv("DB_SSLMODE", "disable"),

		// Redis settings
		RedisHost:     getEnv("REDIS_HOST", ""),
		RedisPort:     getEnv("REDIS_PORT", "6379"),
		RedisUsername: getEnv("REDIS_USERNAME", ""),
		RedisPassword: getEnv("REDIS_PASSWORD", ""),

		// Server settings
		ServerPort:  getEnv("PORT", "8080"),
		FrontendURL: getEnv("FRONTEND_URL", ""),

		// Session settings
		JWTSecret:     getEnv("JWT_SECRET", ""),
		TokenTTL:      getEnvAsDuration("TOKEN_TTL_HOURS", 24, time.Hour),
		RefreshWindow: getEnvAsDuration("TOKEN_REFRESH_WINDOW_HOURS", 6, time.Hour),

		// Model endpoint settings
		ModelBaseURL:     getEnv("MODEL_BASE_URL", ""),
		ModelAPIKey:      getEnv("MODEL_API_KEY", ""),
		ModelDefault:     getEnv("MODEL_DEFAULT", ""),
		ModelTemperature: getEnvAsFloat64("MODEL_TEMPERATURE", 0.7),
		ModelTimeout:     getEnvAsDuration("MODEL_TIMEOUT_SECONDS", 0, time.Second),
	}

	// Validate the configuration
	if err := config.Validate(); err != nil {
		return nil, err
	}

	return config, nil
}

// Validate checks if the required configuration values are set and logs warnings
// for optional values that aren't set.
func (c *Config) Validate() error {
	var missingEnvs []string

	// Check required database configuration
	if c.DBHost == "" {
		missingEnvs = append(missingEnvs, "DB_HOST")
	}
	if c.DBUser == "" {
		missingEnvs = append(missingEnvs, "DB_USER")
	}
	if c.DBName == "" {
		missingEnvs = append(missingEnvs, "DB_NAME")
	}

	// JWT secret is required
	if c.JWTSecret == "" {
		missingEnvs = append(missingEnvs, "JWT_SECRET")
	}

	// Return error if any required env vars are missing
	if len(missingEnvs) > 0 {
		return fmt.Errorf("missing required environment variables: %s", strings.Join(missingEnvs, ", "))
	}

	// Log warnings for optional configurations
	if c.RedisHost == "" || c.RedisPort == "" {
		log.Println("Warning: Redis configuration is incomplete, message caching will be disabled")
	}

	if c.FrontendURL == "" {
		log.Println("Warning: FRONTEND_URL is not set, CORS might not be configured correctly")
	}

	if c.ModelBaseURL == "" {
		log.Println("Warning: MODEL_BASE_URL is not set, chat turns will fail")
	}

	if c.ModelDefault == "" {
		log.Println("Warning: MODEL_DEFAULT is not set, turn requests must carry a model id")
	}

	return nil
}

// GetDSN returns the PostgreSQL data source name (connection string)
func (c *Config) GetDSN() string {
	return fmt.Sprintf("host=%s port=%s user=%s password=%s dbname=%s sslmode=%s",
		c.DBHost, c.DBPort, c.DBUser, c.DBPassword, c.DBName, c.DBSSLMode)
}

// GetRedisAddr returns the Redis address in the format host:port
func (c *Config) GetRedisAddr() string {
	return fmt.Sprintf("%s:%s", c.RedisHost, c.RedisPort)
}

// getEnv retrieves the value of the environment variable named by the key.
// If the variable is not present, the defaultValue is returned.
func getEnv(key, defaultValue string) string {
	if value, exists := os.LookupEnv(key); exists {
		return value
	}
	return defaultValue
}

// getEnvAsFloat64 retrieves the value of the environment variable named by the key as a float64.
// If the variable is not present or cannot be converted to a float64, the defaultValue is returned.
func getEnvAsFloat64(key string, defaultValue float64) float64 {
	valueStr := getEnv(key, "")
	if value, err := strconv.ParseFloat(valueStr, 64); err == nil {
		return value
	}
	return defaultValue
}

// getEnvAsDuration retrieves the value of the environment variable named by the key
// as an integral count of unit and returns the resulting duration.
// If the variable is not present or cannot be converted, the defaultValue count is used.
func getEnvAsDuration(key string, defaultValue int64, unit time.Duration) time.Duration {
	valueStr := getEnv(key, "")
	if value, err := strconv.ParseInt(valueStr, 10, 64); err == nil {
		return time.Duration(value) * unit
	}
	return time.Duration(defaultValue) * unit
}
