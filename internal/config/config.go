package config

import (
	"os"
	"strconv"
)

// AuditConfig holds settings for the durable audit trail.
type AuditConfig struct {
	// Path to the SQLite database file. Empty keeps the trail in memory.
	Path string
}

// BlobConfig holds object storage settings for document content. An empty
// endpoint selects the in-memory store.
type BlobConfig struct {
	Endpoint  string
	AccessKey string
	SecretKey string
	Bucket    string
	UseSSL    bool
}

// AppConfig is the centralized configuration struct for the service.
// It is populated from environment variables. Sensitive values are not hardcoded.
type AppConfig struct {
	Listen string
	Audit  AuditConfig
	Blob   BlobConfig
}

// Load reads configuration from environment variables.
// A .env file can be auto-loaded by importing: _ "github.com/joho/godotenv/autoload"
// This function does not require a .env file; real environment variables take precedence.
func Load() *AppConfig {
	return &AppConfig{
		Listen: getEnv("MEROSIGN_LISTEN", ":8080"),
		Audit: AuditConfig{
			Path: getEnv("MEROSIGN_AUDIT_DB", ""),
		},
		Blob: BlobConfig{
			Endpoint:  getEnv("MINIO_ENDPOINT", ""),
			AccessKey: getEnv("MINIO_ACCESS_KEY", ""),
			SecretKey: getEnv("MINIO_SECRET_KEY", ""),
			Bucket:    getEnv("MINIO_BUCKET", "merosign"),
			UseSSL:    getEnvBool("MINIO_USE_SSL", false),
		},
	}
}

func getEnv(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func getEnvBool(key string, def bool) bool {
	if v := os.Getenv(key); v != "" {
		b, err := strconv.ParseBool(v)
		if err == nil {
			return b
		}
	}
	return def
}
