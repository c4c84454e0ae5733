package config

import (
	"log"
	"os"

	"github.com/joho/godotenv"
)

type Config struct {
	Port        string
	Environment string
	LogLevel    string

	// WhatsApp Cloud API
	VerifyToken               string
	WhatsAppToken             string
	PhoneNumberID             string
	WhatsAppBusinessAccountID string
	GraphAPIVersion           string

	// Database. Driver is "postgres" or "sqlite"; sqlite uses DBPath.
	DBDriver   string
	DBHost     string
	DBPort     string
	DBUser     string
	DBPassword string
	DBName     string
	DBSSLMode  string
	DBPath     string

	// Auth for the agent-facing API
	JWTSecret string

	// Change-event transport. Empty NATSUrl keeps events in-process.
	NATSUrl string

	// Collaborators
	OpenAIAPIKey string
	CRMBaseURL   string
	CRMToken     string
}

func LoadConfig() *Config {
	if err := godotenv.Load(); err != nil {
		log.Println("Warning: no .env file loaded")
	}

	return &Config{
		Port:        getEnv("PORT", "8080"),
		Environment: getEnv("ENV", "production"),
		LogLevel:    getEnv("LOG_LEVEL", "info"),

		VerifyToken:               getEnv("VERIFY_TOKEN", ""),
		WhatsAppToken:             getEnv("WHATSAPP_TOKEN", ""),
		PhoneNumberID:             getEnv("PHONE_NUMBER_ID", ""),
		WhatsAppBusinessAccountID: getEnv("WABA_ID", ""),
		GraphAPIVersion:           getEnv("GRAPH_API_VERSION", "v22.0"),

		DBDriver:   getEnv("DB_DRIVER", "sqlite"),
		DBHost:     getEnv("DB_HOST", "localhost"),
		DBPort:     getEnv("DB_PORT", "5432"),
		DBUser:     getEnv("DB_USER", "postgres"),
		DBPassword: getEnv("DB_PASSWORD", ""),
		DBName:     getEnv("DB_NAME", "whatsapp_inbox"),
		DBSSLMode:  getEnv("DB_SSLMODE", "disable"),
		DBPath:     getEnv("DB_PATH", "./inbox.db"),

		JWTSecret: getEnv("JWT_SECRET", ""),

		NATSUrl: getEnv("NATS_URL", ""),

		OpenAIAPIKey: getEnv("OPENAI_API_KEY", ""),
		CRMBaseURL:   getEnv("CRM_BASE_URL", ""),
		CRMToken:     getEnv("CRM_TOKEN", ""),
	}
}

func getEnv(key, fallback string) string {
	if value, exists := os.LookupEnv(key); exists {
		return value
	}
	return fallback
}
