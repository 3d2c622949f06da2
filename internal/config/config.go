package config

import (
	"log"
	"os"

	"github.com/joho/godotenv"
)

type Config struct {
	Port          string
	GinMode       string
	MongoURI      string
	MongoDatabase string
	RabbitMQURI   string
	EventExchange string
	RedisAddr     string
	RedisPassword string
	ASRBaseURL    string
	MinioEndpoint string
	MinioAccess   string
	MinioSecret   string
	MinioUseSSL   bool
	AudioBucket   string
	ServiceName   string
}

var AppConfig *Config

func LoadConfig() {
	if err := godotenv.Load(); err != nil {
		log.Println("No .env file found, using environment variables")
	}

	AppConfig = &Config{
		Port:          getEnvOrDefault("PORT", "8085"),
		GinMode:       getEnvOrDefault("GIN_MODE", "debug"),
		MongoURI:      getEnvOrDefault("MONGO_URI", "mongodb://localhost:27017"),
		MongoDatabase: getEnvOrDefault("MONGO_DATABASE", "learning_chat_service"),
		RabbitMQURI:   getEnvOrDefault("RABBITMQ_URI", ""),
		EventExchange: getEnvOrDefault("RABBITMQ_EXCHANGE", "learning.events"),
		RedisAddr:     getEnvOrDefault("REDIS_ADDR", "localhost:6379"),
		RedisPassword: getEnvOrDefault("REDIS_PASSWORD", ""),
		ASRBaseURL:    getEnvOrDefault("ASR_BASE_URL", "http://localhost:8000"),
		MinioEndpoint: getEnvOrDefault("MINIO_ENDPOINT", "localhost:9000"),
		MinioAccess:   getEnvOrDefault("MINIO_ACCESS_KEY", "minioadmin"),
		MinioSecret:   getEnvOrDefault("MINIO_SECRET_KEY", "minioadmin"),
		MinioUseSSL:   getEnvOrDefault("MINIO_USE_SSL", "false") == "true",
		AudioBucket:   getEnvOrDefault("AUDIO_BUCKET", "pronunciation-audio"),
		ServiceName:   getEnvOrDefault("SERVICE_NAME", "learning-chat-service"),
	}
}

func getEnvOrDefault(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}
