package config

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestLoad_Defaults(t *testing.T) {
	cfg := Load()
	assert.Equal(t, ":8080", cfg.Listen)
	assert.Equal(t, "", cfg.Audit.Path)
	assert.Equal(t, "merosign", cfg.Blob.Bucket)
	assert.False(t, cfg.Blob.UseSSL)
}

func TestLoad_EnvOverrides(t *testing.T) {
	t.Setenv("MEROSIGN_LISTEN", ":9999")
	t.Setenv("MEROSIGN_AUDIT_DB", "/tmp/audit.db")
	t.Setenv("MINIO_ENDPOINT", "minio:9000")
	t.Setenv("MINIO_USE_SSL", "true")

	cfg := Load()
	assert.Equal(t, ":9999", cfg.Listen)
	assert.Equal(t, "/tmp/audit.db", cfg.Audit.Path)
	assert.Equal(t, "minio:9000", cfg.Blob.Endpoint)
	assert.True(t, cfg.Blob.UseSSL)
}

func TestLoad_InvalidBoolFallsBack(t *testing.T) {
	t.Setenv("MINIO_USE_SSL", "not-a-bool")
	assert.False(t, Load().Blob.UseSSL)
}
