package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeFile(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestDefaultsAreValid(t *testing.T) {
	cfg, err := Load(Options{})
	require.NoError(t, err)
	assert.Equal(t, Default(), cfg)
	assert.Equal(t, 5, cfg.Versioning.MaxAppendAttempts)
	assert.Equal(t, 2000, cfg.Comments.MaxLength)
}

func TestYAMLOverridesDefaults(t *testing.T) {
	path := writeFile(t, "promptvault.yaml", `
server:
  grpc_port: 6000
storage:
  driver: sqlite
  path: /tmp/pv.db
versioning:
  max_append_attempts: 3
  retry_backoff: 20ms
log:
  level: debug
`)

	cfg, err := Load(Options{Path: path})
	require.NoError(t, err)
	assert.Equal(t, 6000, cfg.Server.GRPCPort)
	assert.Equal(t, 9090, cfg.Server.ObservabilityPort)
	assert.Equal(t, "sqlite", cfg.Storage.Driver)
	assert.Equal(t, 3, cfg.Versioning.MaxAppendAttempts)
	assert.Equal(t, 20*time.Millisecond, cfg.Versioning.RetryBackoff)
	assert.Equal(t, "debug", cfg.Log.Level)
}

func TestEnvOverridesYAML(t *testing.T) {
	path := writeFile(t, "promptvault.yaml", "comments:\n  max_length: 100\n")
	t.Setenv("PROMPTVAULT_COMMENT_MAX_LENGTH", "50")
	t.Setenv("PROMPTVAULT_STORAGE_IN_MEMORY", "true")
	t.Setenv("PROMPTVAULT_STORAGE_PATH", "")
	t.Setenv("PROMPTVAULT_RETRY_BACKOFF", "1ms")

	cfg, err := Load(Options{Path: path})
	require.NoError(t, err)
	assert.Equal(t, 50, cfg.Comments.MaxLength)
	assert.True(t, cfg.Storage.InMemory)
	assert.Equal(t, time.Millisecond, cfg.Versioning.RetryBackoff)
}

func TestEnvFile(t *testing.T) {
	envFile := writeFile(t, ".env", "PROMPTVAULT_LOG_LEVEL=warn\nPROMPTVAULT_GRPC_PORT=7000\n")
	// Registered so t restores the variables godotenv sets
	t.Setenv("PROMPTVAULT_LOG_LEVEL", "")
	os.Unsetenv("PROMPTVAULT_LOG_LEVEL")
	t.Setenv("PROMPTVAULT_GRPC_PORT", "")
	os.Unsetenv("PROMPTVAULT_GRPC_PORT")

	cfg, err := Load(Options{EnvFile: envFile})
	require.NoError(t, err)
	assert.Equal(t, "warn", cfg.Log.Level)
	assert.Equal(t, 7000, cfg.Server.GRPCPort)

	// A missing env file is not an error
	_, err = Load(Options{EnvFile: filepath.Join(t.TempDir(), "absent.env")})
	assert.NoError(t, err)
}

func TestInvalid(t *testing.T) {
	_, err := Load(Options{Path: filepath.Join(t.TempDir(), "missing.yaml")})
	assert.Error(t, err)

	bad := writeFile(t, "bad.yaml", "storage: [")
	_, err = Load(Options{Path: bad})
	assert.Error(t, err)

	t.Setenv("PROMPTVAULT_MAX_APPEND_ATTEMPTS", "zero")
	_, err = Load(Options{})
	assert.Error(t, err)

	t.Setenv("PROMPTVAULT_MAX_APPEND_ATTEMPTS", "0")
	_, err = Load(Options{})
	assert.Error(t, err)
}

func TestValidate(t *testing.T) {
	cfg := Default()
	cfg.Storage.Driver = "postgres"
	assert.Error(t, cfg.Validate())

	cfg = Default()
	cfg.Storage.Path = ""
	assert.Error(t, cfg.Validate())
	cfg.Storage.InMemory = true
	assert.NoError(t, cfg.Validate())

	cfg = Default()
	cfg.Server.GRPCPort = 70000
	assert.Error(t, cfg.Validate())
}
