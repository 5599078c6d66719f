package config

import (
	"os"
	"strings"
)

type Config struct {
	Port           string
	DatabaseURL    string
	RedisURL       string
	RedisPassword  string
	MigrationsPath string
	IceServerURLs  []string
}

func LoadConfig() *Config {
	return &Config{
		Port:           getEnv("PORT", "8080"),
		DatabaseURL:    os.Getenv("DATABASE_URL"),
		RedisURL:       getEnv("REDIS_URL", "localhost:6379"),
		RedisPassword:  os.Getenv("REDIS_PASSWORD"),
		MigrationsPath: getEnv("MIGRATIONS_PATH", "migrations"),
		IceServerURLs:  splitList(getEnv("ICE_SERVER_URLS", "stun:stun.l.google.com:19302")),
	}
}

func splitList(value string) []string {
	var out []string
	for _, v := range strings.Split(value, ",") {
		if v = strings.TrimSpace(v); v != "" {
			out = append(out, v)
		}
	}
	return out
}

func getEnv(key, fallback string) string {
	if value, ok := os.LookupEnv(key); ok {
		return value
	}
	return fallback
}
