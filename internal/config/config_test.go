package config_test

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/glykeria-rk/thesisadmincli/internal/config"
)

func writeFile(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "thesislock.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))
	return path
}

func TestLoad_Defaults(t *testing.T) {
	cfg, err := config.Load("")
	require.NoError(t, err)

	assert.Equal(t, ":8080", cfg.HTTPAddr)
	assert.Equal(t, ":9090", cfg.HealthAddr)
	assert.Equal(t, "dev", cfg.Env)
	assert.Equal(t, "info", cfg.LogLevel)
	assert.Equal(t, "sqlite", cfg.Store.Driver)
	assert.Equal(t, "./data/thesislock.db", cfg.Store.SQLitePath)
	assert.False(t, cfg.SeedDev)
	assert.Equal(t, "UTC", cfg.Location.String())
}

func TestLoad_FileThenEnvOverrides(t *testing.T) {
	path := writeFile(t, `
http_addr: ":8181"
env: PROD
timezone: Europe/Amsterdam
store:
  driver: memory
`)
	t.Setenv("THESISLOCK_HTTP_ADDR", ":9191")
	t.Setenv("THESISLOCK_LOG_LEVEL", "debug")

	cfg, err := config.Load(path)
	require.NoError(t, err)

	assert.Equal(t, ":9191", cfg.HTTPAddr)
	assert.Equal(t, "prod", cfg.Env)
	assert.Equal(t, "debug", cfg.LogLevel)
	assert.Equal(t, "memory", cfg.Store.Driver)
	assert.Equal(t, "Europe/Amsterdam", cfg.Location.String())
}

func TestLoad_NestedEnvKeys(t *testing.T) {
	t.Setenv("THESISLOCK_STORE_DRIVER", "postgres")
	t.Setenv("THESISLOCK_STORE_POSTGRES_DSN", "postgres://lock@localhost/lock")

	cfg, err := config.Load("")
	require.NoError(t, err)
	assert.Equal(t, "postgres", cfg.Store.Driver)
	assert.Equal(t, "postgres://lock@localhost/lock", cfg.Store.PostgresDSN)
}

func TestLoad_Rejects(t *testing.T) {
	cases := map[string]map[string]string{
		"unknown driver":       {"THESISLOCK_STORE_DRIVER": "mongo"},
		"postgres without dsn": {"THESISLOCK_STORE_DRIVER": "postgres"},
		"unknown env":          {"THESISLOCK_ENV": "staging"},
		"bad timezone":         {"THESISLOCK_TIMEZONE": "Mars/Olympus_Mons"},
		"bad log level":        {"THESISLOCK_LOG_LEVEL": "chatty"},
	}
	for name, env := range cases {
		t.Run(name, func(t *testing.T) {
			for k, v := range env {
				t.Setenv(k, v)
			}
			_, err := config.Load("")
			require.Error(t, err)
		})
	}
}

func TestLoad_MissingExplicitFile(t *testing.T) {
	_, err := config.Load(filepath.Join(t.TempDir(), "nope.yaml"))
	require.Error(t, err)
}
