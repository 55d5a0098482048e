package config

import (
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
	"github.com/rs/zerolog/log"
)

type Config struct {
	Port                    string
	Env                     string
	LogLevel                string
	DebugSQL                bool
	FirebaseCredentialsPath string
	PostgresConnStr         string
	MongoURI                string
	MongoDatabase           string
	// OpenedIndexLimit caps opened-group aggregation and the opened index.
	OpenedIndexLimit int
	// NotificationTable overrides the notifications table name.
	NotificationTable string
	GroupExpiryDelay  time.Duration
}

// Load reads configuration from the environment, loading a .env file first when present.
func Load() *Config {
	if err := godotenv.Load(); err != nil {
		log.Debug().Msg("No .env file found, assuming environment variables are set.")
	}

	return &Config{
		Port:                    getEnv("PORT", "8080"),
		Env:                     getEnv("ENV", "development"),
		LogLevel:                getEnv("LOG_LEVEL", "info"),
		DebugSQL:                getEnvBool("DEBUG_SQL", false),
		FirebaseCredentialsPath: getEnv("FIREBASE_CREDENTIALS_PATH", ""),
		PostgresConnStr:         getEnv("POSTGRES_CONN_STR", ""),
		MongoURI:                getEnv("MONGO_URI", ""),
		MongoDatabase:           getEnv("MONGO_DATABASE", "notifications"),
		OpenedIndexLimit:        getEnvInt("OPENED_INDEX_LIMIT", 10),
		NotificationTable:       getEnv("NOTIFICATION_TABLE", "notifications"),
		GroupExpiryDelay:        getEnvDuration("GROUP_EXPIRY_DELAY", 0),
	}
}

// IsProduction reports whether ENV is set to production.
func (c *Config) IsProduction() bool {
	return c.Env == "production"
}

// TableOverrides maps model struct names to configured table names.
func (c *Config) TableOverrides() map[string]string {
	return map[string]string{"Notification": c.NotificationTable}
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if n, err := strconv.Atoi(value); err == nil {
			return n
		}
		log.Warn().Str("key", key).Str("value", value).Msg("ignoring non-integer value")
	}
	return defaultValue
}

func getEnvBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if b, err := strconv.ParseBool(value); err == nil {
			return b
		}
	}
	return defaultValue
}

func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if d, err := time.ParseDuration(value); err == nil {
			return d
		}
		log.Warn().Str("key", key).Str("value", value).Msg("ignoring invalid duration")
	}
	return defaultValue
}
