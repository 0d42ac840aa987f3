package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/spf13/viper"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFromViper_Defaults(t *testing.T) {
	v := viper.New()
	require.NoError(t, Bind(v, ""))

	cfg := FromViper(v)

	assert.Equal(t, "8080", cfg.Port)
	assert.Equal(t, "gemini-2.5-flash", cfg.GeminiModel)
	assert.Equal(t, "America/Bogota", cfg.Timezone)
	assert.Equal(t, 10*time.Second, cfg.StoreTimeout)
	assert.Equal(t, 15, cfg.AIParsesLimit)
	assert.Equal(t, 50, cfg.TransactionsLimit)
	assert.Equal(t, 5, cfg.WorkerCount)
}

func TestFromViper_EnvironmentOverrides(t *testing.T) {
	t.Setenv("PORT", "9090")
	t.Setenv("DATABASE_URL", "postgres://localhost/expenses")
	t.Setenv("STORE_TIMEOUT", "2s")
	t.Setenv("AI_PARSES_LIMIT", "100")

	v := viper.New()
	require.NoError(t, Bind(v, ""))
	cfg := FromViper(v)

	assert.Equal(t, "9090", cfg.Port)
	assert.Equal(t, "postgres://localhost/expenses", cfg.DatabaseURL)
	assert.Equal(t, 2*time.Second, cfg.StoreTimeout)
	assert.Equal(t, 100, cfg.AIParsesLimit)
	assert.NoError(t, cfg.Validate())
}

func TestBind_ConfigFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte("gemini_model: gemini-2.0-flash\nworker_count: 2\n"), 0o600))

	v := viper.New()
	require.NoError(t, Bind(v, path))
	cfg := FromViper(v)

	assert.Equal(t, "gemini-2.0-flash", cfg.GeminiModel)
	assert.Equal(t, 2, cfg.WorkerCount)
}

func TestBind_MissingConfigFile(t *testing.T) {
	err := Bind(viper.New(), filepath.Join(t.TempDir(), "nope.yaml"))
	assert.Error(t, err)
}

func TestValidate(t *testing.T) {
	assert.ErrorIs(t, (&Config{}).Validate(), ErrMissingDatabaseURL)
}

func TestLocation(t *testing.T) {
	assert.Equal(t, "America/Bogota", (&Config{Timezone: "America/Bogota"}).Location().String())
	assert.Equal(t, time.UTC, (&Config{Timezone: "Mars/Olympus"}).Location())
}
