package config

import (
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

// Config holds all application configuration.
type Config struct {
	Server    ServerConfig
	DB        DBConfig
	Twilio    TwilioConfig
	Processor ProcessorConfig
	Kafka     KafkaConfig
	History   HistoryConfig
}

type ServerConfig struct {
	Port string
	Env  string
}

type DBConfig struct {
	Path string
}

type TwilioConfig struct {
	AccountSID string
	AuthToken  string
	// AutoReply, when non-empty, is sent back to the counterpart of every
	// carrier-originated inbound message.
	AutoReply string
}

type ProcessorConfig struct {
	// Endpoint is the external conversation-processing URL. Empty means
	// forwarding is disabled.
	Endpoint string
	Timeout  time.Duration
}

type KafkaConfig struct {
	// Brokers is a comma-separated list like "kafka:9092". Empty disables
	// the outbox producer in the API server.
	Brokers string
}

type HistoryConfig struct {
	DefaultLimit int
	MaxLimit     int
}

// Configured reports whether carrier credentials are present. Gateway-backed
// operations degrade to a structured "not configured" error when they are not.
func (t TwilioConfig) Configured() bool {
	return t.AccountSID != "" && t.AuthToken != ""
}

// Load returns application configuration from environment variables.
// A .env file in the working directory is honored when present.
func Load() *Config {
	_ = godotenv.Load()

	return &Config{
		Server: ServerConfig{
			Port: getEnv("PORT", "8080"),
			Env:  getEnv("ENV", "development"),
		},
		DB: DBConfig{
			Path: getEnv("DB_PATH", "smsbridge.db"),
		},
		Twilio: TwilioConfig{
			AccountSID: getEnv("TWILIO_ACCOUNT_SID", ""),
			AuthToken:  getEnv("TWILIO_AUTH_TOKEN", ""),
			AutoReply:  getEnv("TWILIO_AUTO_REPLY", ""),
		},
		Processor: ProcessorConfig{
			Endpoint: getEnv("EXTERNAL_MESSAGE_ENDPOINT", ""),
			Timeout:  time.Duration(getEnvInt("FORWARD_TIMEOUT_SECONDS", 10)) * time.Second,
		},
		Kafka: KafkaConfig{
			Brokers: getEnv("KAFKA_BROKERS", ""),
		},
		History: HistoryConfig{
			DefaultLimit: getEnvInt("HISTORY_DEFAULT_LIMIT", 50),
			MaxLimit:     getEnvInt("HISTORY_MAX_LIMIT", 500),
		},
	}
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intVal, err := strconv.Atoi(value); err == nil {
			return intVal
		}
	}
	return defaultValue
}
