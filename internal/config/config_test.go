package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o644))
	return path
}

func TestLoadDefaults(t *testing.T) {
	t.Setenv("PORT", "")

	cfg, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, 8080, cfg.Server.Port)
	assert.Equal(t, int64(16<<20), cfg.MaxUploadBytes())
	assert.Equal(t, int64(178956970), cfg.Server.MaxImagePixels)
	assert.Equal(t, "local", cfg.Storage.Backend)
	assert.Equal(t, "/static/heatmaps", cfg.Storage.Local.URLPrefix)
}

func TestLoadOverridesDefaults(t *testing.T) {
	t.Setenv("PORT", "")
	path := writeConfig(t, `
server:
  port: 5000
  read_timeout: 10s
models:
  dir: /srv/models
  intra_op_threads: 4
storage:
  backend: minio
  minio:
    endpoint: minio:9000
    bucketName: heatmaps
    useSSL: false
log:
  level: debug
cache:
  size: 0
`)

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, 5000, cfg.Server.Port)
	assert.Equal(t, 10*time.Second, cfg.Server.ReadTimeout)
	assert.Equal(t, 120*time.Second, cfg.Server.WriteTimeout, "unset fields keep defaults")
	assert.Equal(t, "/srv/models", cfg.Models.Dir)
	assert.Equal(t, 4, cfg.Models.IntraOpThreads)
	assert.Equal(t, "heatmaps", cfg.Storage.Minio.BucketName)
	assert.Equal(t, "debug", cfg.Log.Level)
	assert.Zero(t, cfg.Cache.Size)
}

func TestLoadPortFromEnv(t *testing.T) {
	t.Setenv("PORT", "9090")
	cfg, err := Load(writeConfig(t, "server:\n  port: 5000\n"))
	require.NoError(t, err)
	assert.Equal(t, ":9090", cfg.Addr())

	t.Setenv("PORT", "abc")
	_, err = Load("")
	assert.Error(t, err)
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(c *Config)
	}{
		{name: "port", mutate: func(c *Config) { c.Server.Port = 0 }},
		{name: "upload limit", mutate: func(c *Config) { c.Server.MaxUploadMB = 0 }},
		{name: "pixel limit", mutate: func(c *Config) { c.Server.MaxImagePixels = 0 }},
		{name: "models dir", mutate: func(c *Config) { c.Models.Dir = "" }},
		{name: "backend", mutate: func(c *Config) { c.Storage.Backend = "s3" }},
		{name: "minio endpoint", mutate: func(c *Config) { c.Storage.Backend = "minio" }},
		{name: "local dir", mutate: func(c *Config) { c.Storage.Local.Dir = "" }},
		{name: "cache size", mutate: func(c *Config) { c.Cache.Size = -1 }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default()
			tt.mutate(cfg)
			assert.Error(t, cfg.Validate())
		})
	}
	assert.NoError(t, Default().Validate())
}

func TestLoadMissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))
	assert.Error(t, err)
}
