package config

import (
	"log"
	"os"
	"time"

	"github.com/joho/godotenv"

	"github.com/geckom/smartcharge-predictor/internal/models"
)

// Load returns the server configuration from environment variables. A .env
// file in the working directory is read first if present.
func Load() models.Config {
	if err := godotenv.Load(); err == nil {
		log.Println("[Config] loaded .env file")
	}

	return models.Config{
		Port:          getEnv("PORT", "9180"),
		DBPath:        getEnv("DB_PATH", "smartcharge.db"),
		AdminUser:     getEnv("ADMIN_USER", "admin"),
		AdminPass:     getEnv("ADMIN_PASS", ""),
		AuthEnabled:   getEnv("AUTH_ENABLED", "true") == "true",
		FlushInterval: getDuration("FLUSH_INTERVAL", 5*time.Minute),
		MQTTBroker:    getEnv("MQTT_BROKER", ""),
		MQTTUsername:  getEnv("MQTT_USERNAME", ""),
		MQTTPassword:  getEnv("MQTT_PASSWORD", ""),
		MQTTTopic:     getEnv("MQTT_TOPIC", "smartcharge/+/sample"),
	}
}

func getEnv(key, fallback string) string {
	if value, ok := os.LookupEnv(key); ok {
		return value
	}
	return fallback
}

func getDuration(key string, fallback time.Duration) time.Duration {
	value, ok := os.LookupEnv(key)
	if !ok {
		return fallback
	}
	d, err := time.ParseDuration(value)
	if err != nil {
		log.Printf("Warning: invalid %s %q, using %s", key, value, fallback)
		return fallback
	}
	return d
}
