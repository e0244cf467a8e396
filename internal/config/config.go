package config

import (
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

type Config struct {
	DatabaseURL       string
	JWTSecret         string
	Port              string
	FCMServiceAccount string

	StripeSecretKey  string
	Currency         string
	CharityName      string
	ProcessorTimeout time.Duration

	RedisAddress string
	UploadDir    string

	LogDir string
	Debug  bool
}

// Load reads configuration from the environment. A .env file in the working
// directory is honoured when present.
func Load() *Config {
	_ = godotenv.Load()

	return &Config{
		DatabaseURL:       getEnv("DATABASE_URL", "stakeit.db"),
		JWTSecret:         getEnv("JWT_SECRET", "your-secret-key-change-in-production"),
		Port:              getEnv("PORT", "8080"),
		FCMServiceAccount: getEnv("FCM_SERVICE_ACCOUNT", ""),
		StripeSecretKey:   getEnv("STRIPE_SECRET_KEY", ""),
		Currency:          getEnv("PAYMENT_CURRENCY", "usd"),
		CharityName:       getEnv("CHARITY_NAME", "GiveDirectly"),
		ProcessorTimeout:  getDuration("PROCESSOR_TIMEOUT", 10*time.Second),
		RedisAddress:      getEnv("REDIS_ADDRESS", ""),
		UploadDir:         getEnv("UPLOAD_DIR", "uploads"),
		LogDir:            getEnv("LOG_DIR", "logs"),
		Debug:             getBool("DEBUG", false),
	}
}

func getEnv(key, fallback string) string {
	if value, exists := os.LookupEnv(key); exists {
		return value
	}
	return fallback
}

func getDuration(key string, fallback time.Duration) time.Duration {
	value, exists := os.LookupEnv(key)
	if !exists {
		return fallback
	}
	d, err := time.ParseDuration(value)
	if err != nil || d <= 0 {
		return fallback
	}
	return d
}

func getBool(key string, fallback bool) bool {
	value, exists := os.LookupEnv(key)
	if !exists {
		return fallback
	}
	b, err := strconv.ParseBool(value)
	if err != nil {
		return fallback
	}
	return b
}
