package config

import (
	"os"
)

type Config struct {
	// Port is where the development backend listens.
	Port string

	LogLevel string
	Env      string

	// ServerURL is the base URL of the chat backend's REST surface.
	ServerURL string
	// SocketURL is the websocket endpoint for the live channel.
	SocketURL string

	// JWTSecret signs and verifies session tokens.
	JWTSecret string
}

func LoadConfig() (*Config, error) {
	return &Config{
		Port:      GetEnv("PORT", "8081"),
		ServerURL: GetEnv("SERVER_URL", "http://localhost:8081"),
		SocketURL: GetEnv("SOCKET_URL", "ws://localhost:8081/ws"),
		JWTSecret: GetEnv("JWT_SECRET", "dev-secret-change-me"),
		Env:       GetEnv("ENV", "development"),
		LogLevel:  GetEnv("LOG_LEVEL", "info"),
	}, nil
}

func GetEnv(key, defaultValue string) string {
	if value, exists := os.LookupEnv(key); exists {
		return value
	}
	return defaultValue
}
