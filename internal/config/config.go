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
	HTTPPort    string
	LogLevel    string

	DBType            string
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

	RedisAddr     string
	RedisPassword string

	// Payment gateway (Tripay-compatible hosted payments).
	GatewayMode         string
	GatewayAPIURL       string
	GatewayAPIKey       string
	GatewayPrivateKey   string
	GatewayMerchantCode string

	// WhatsApp delivery provider.
	WhatsAppAPIURL string
	WhatsAppToken  string

	FrontendURL       string
	SchedulerTimezone string
}

// Load loads configuration from environment variables and .env file.
func Load() Config {
	_ = godotenv.Load()

	gatewayMode := strings.ToLower(getenv("GATEWAY_MODE", "sandbox"))
	gatewayURL := getenv("GATEWAY_API_URL", "")
	if gatewayURL == "" {
		if gatewayMode == "production" {
			gatewayURL = "https://tripay.co.id/api"
		} else {
			gatewayURL = "https://tripay.co.id/api-sandbox"
		}
	}

	return Config{
		AppName:     getenv("APP_SERVICE", "tagihin"),
		AppVersion:  getenv("APP_VERSION", "0.1.0"),
		Environment: getenv("ENVIRONMENT", "development"),
		HTTPPort:    getenv("HTTP_PORT", "8080"),
		LogLevel:    getenv("LOG_LEVEL", "info"),

		DBType:            getenv("DATABASE_TYPE", "postgres"),
		DBHost:            getenv("DATABASE_HOST", "localhost"),
		DBPort:            getenv("DATABASE_PORT", "5432"),
		DBName:            getenv("DATABASE_NAME", "tagihin"),
		DBUser:            getenv("DATABASE_USER", "postgres"),
		DBPassword:        getenv("DATABASE_PASSWORD", ""),
		DBSSLMode:         getenv("DATABASE_SSLMODE", "disable"),
		DBMaxIdleConn:     getenvInt("DATABASE_MAX_IDLE_CONN", 5),
		DBMaxOpenConn:     getenvInt("DATABASE_MAX_OPEN_CONN", 25),
		DBConnMaxLifetime: getenvInt("DATABASE_CONN_MAX_LIFETIME", 1800),
		DBConnMaxIdleTime: getenvInt("DATABASE_CONN_MAX_IDLE_TIME", 300),

		RedisAddr:     strings.TrimSpace(getenv("REDIS_ADDR", "")),
		RedisPassword: getenv("REDIS_PASSWORD", ""),

		GatewayMode:         gatewayMode,
		GatewayAPIURL:       gatewayURL,
		GatewayAPIKey:       strings.TrimSpace(getenv("GATEWAY_API_KEY", "")),
		GatewayPrivateKey:   strings.TrimSpace(getenv("GATEWAY_PRIVATE_KEY", "")),
		GatewayMerchantCode: strings.TrimSpace(getenv("GATEWAY_MERCHANT_CODE", "")),

		WhatsAppAPIURL: getenv("WHATSAPP_API_URL", ""),
		WhatsAppToken:  strings.TrimSpace(getenv("WHATSAPP_API_TOKEN", "")),

		FrontendURL:       getenv("FRONTEND_URL", "http://localhost:3000"),
		SchedulerTimezone: getenv("SCHEDULER_TIMEZONE", "Asia/Jakarta"),
	}
}

func getenv(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
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
