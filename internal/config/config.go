// Package config reads service configuration from environment variables,
// falling back to local-development defaults.
package config

import (
	"os"
	"strings"
)

// Config holds every runtime setting.
type Config struct {
	Port      string
	StoreKind string // "mongo" or "memory"
	MongoURI  string
	DBName    string
	JWTSecret string
	// AdminEmails lists the addresses provisioned with the admin role on
	// first sign-in.
	AdminEmails []string
	QuoteAPIURL string
}

// FromEnv builds a Config from the environment.
func FromEnv() Config {
	return Config{
		Port:        getEnv("PORT", "8080"),
		StoreKind:   getEnv("STORE", "mongo"),
		MongoURI:    getEnv("MONGO_URI", "mongodb://localhost:27017"),
		DBName:      getEnv("DB_NAME", "fuegovibe"),
		JWTSecret:   getEnv("JWT_SECRET", "dev-secret-change-me"),
		AdminEmails: splitList(getEnv("ADMIN_EMAILS", "")),
		QuoteAPIURL: getEnv("QUOTE_API_URL", ""),
	}
}

func getEnv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func splitList(v string) []string {
	var out []string
	for _, part := range strings.Split(v, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
