package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func TestLoadDefaults(t *testing.T) {
	// Change to temp dir so no config.yaml is found
	dir := t.TempDir()
	origDir, _ := os.Getwd()
	require.NoError(t, os.Chdir(dir))
	t.Cleanup(func() { os.Chdir(origDir) })

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "postgres", cfg.Store.Driver)
	assert.Equal(t, "sourcing.db", cfg.Store.Path)
	assert.Equal(t, int32(10), cfg.Store.Pool.MaxConns)
	assert.Equal(t, int32(2), cfg.Store.Pool.MinConns)
	assert.Equal(t, "https://api.talentdirectory.io/v1", cfg.Directory.BaseURL)
	assert.Equal(t, "claude-haiku-4-5-20251001", cfg.Anthropic.HaikuModel)
	assert.Equal(t, "claude-sonnet-4-5-20250929", cfg.Anthropic.SonnetModel)
	assert.Equal(t, 10, cfg.Pipeline.BatchSize)
	assert.Equal(t, 4, cfg.Pipeline.EnrichFanout)
	assert.Equal(t, 50, cfg.Pipeline.DefaultMaxCandidates)
	assert.Equal(t, 30, cfg.Pipeline.FailureBackoffSecs)
	assert.Equal(t, 10, cfg.Pipeline.StaleAfterMins)
	assert.InDelta(t, 2.0, cfg.Limiter.SearchPerSecond, 0.001)
	assert.InDelta(t, 5.0, cfg.Limiter.EnrichPerSecond, 0.001)
	assert.InDelta(t, 1.0, cfg.Limiter.ScreenPerSecond, 0.001)
	assert.Equal(t, 2, cfg.Limiter.Burst)
	assert.Equal(t, 2, cfg.Stream.PollIntervalSecs)
	assert.Equal(t, 60, cfg.Sweep.IntervalSecs)
	assert.Equal(t, 8080, cfg.Server.Port)
	assert.Equal(t, "info", cfg.Log.Level)
	assert.Equal(t, "json", cfg.Log.Format)
}

func TestLoadFromYAML(t *testing.T) {
	dir := t.TempDir()
	origDir, _ := os.Getwd()
	require.NoError(t, os.Chdir(dir))
	t.Cleanup(func() { os.Chdir(origDir) })

	yaml := `
store:
  driver: sqlite
  path: jobs.db
log:
  level: debug
  format: console
server:
  port: 9090
pipeline:
  batch_size: 25
`
	require.NoError(t, os.WriteFile(filepath.Join(dir, "config.yaml"), []byte(yaml), 0644))

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "sqlite", cfg.Store.Driver)
	assert.Equal(t, "jobs.db", cfg.Store.Path)
	assert.Equal(t, "debug", cfg.Log.Level)
	assert.Equal(t, "console", cfg.Log.Format)
	assert.Equal(t, 9090, cfg.Server.Port)
	assert.Equal(t, 25, cfg.Pipeline.BatchSize)
	// Defaults still apply for unset values
	assert.Equal(t, 4, cfg.Pipeline.EnrichFanout)
}

func TestLoadEnvOverridesFile(t *testing.T) {
	dir := t.TempDir()
	origDir, _ := os.Getwd()
	require.NoError(t, os.Chdir(dir))
	t.Cleanup(func() { os.Chdir(origDir) })

	yaml := `
store:
  driver: sqlite
log:
  level: debug
`
	require.NoError(t, os.WriteFile(filepath.Join(dir, "config.yaml"), []byte(yaml), 0644))

	t.Setenv("SOURCING_STORE_DRIVER", "postgres")
	t.Setenv("SOURCING_LOG_LEVEL", "warn")

	cfg, err := Load()
	require.NoError(t, err)

	// Env overrides file
	assert.Equal(t, "postgres", cfg.Store.Driver)
	assert.Equal(t, "warn", cfg.Log.Level)
}

func TestLoadEnvOverridesDefaults(t *testing.T) {
	dir := t.TempDir()
	origDir, _ := os.Getwd()
	require.NoError(t, os.Chdir(dir))
	t.Cleanup(func() { os.Chdir(origDir) })

	t.Setenv("SOURCING_SERVER_PORT", "3000")

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, 3000, cfg.Server.Port)
}

func TestInitLoggerConsole(t *testing.T) {
	err := InitLogger(LogConfig{Level: "debug", Format: "console"})
	require.NoError(t, err)
	assert.NotNil(t, zap.L())
}

func TestInitLoggerJSON(t *testing.T) {
	err := InitLogger(LogConfig{Level: "info", Format: "json"})
	require.NoError(t, err)
	assert.NotNil(t, zap.L())
}

func TestInitLoggerInvalidLevel(t *testing.T) {
	err := InitLogger(LogConfig{Level: "invalid", Format: "json"})
	assert.Error(t, err)
}

// validDefaults returns a Config with defaults populated for validation
// tests.
func validDefaults() *Config {
	cfg := &Config{}
	cfg.Store.Driver = "sqlite"
	cfg.Store.Path = "sourcing.db"
	cfg.Pipeline.BatchSize = 10
	cfg.Pipeline.EnrichFanout = 4
	cfg.Server.Port = 8080
	return cfg
}

func TestValidateRun_AllPresent(t *testing.T) {
	cfg := validDefaults()
	cfg.Directory.Key = "dir-key"
	cfg.Anthropic.Key = "sk-ant-key"

	assert.NoError(t, cfg.Validate("run"))
}

func TestValidateRun_MissingKeys(t *testing.T) {
	cfg := validDefaults()

	err := cfg.Validate("run")
	assert.Error(t, err)
	assert.Contains(t, err.Error(), "directory.key is required")
	assert.Contains(t, err.Error(), "anthropic.key is required")
}

func TestValidateLocal_StoreOnly(t *testing.T) {
	cfg := validDefaults()
	assert.NoError(t, cfg.Validate("local"))

	cfg.Store.Path = ""
	err := cfg.Validate("local")
	assert.Error(t, err)
	assert.Contains(t, err.Error(), "store.path is required")
}

func TestValidatePostgresNeedsURL(t *testing.T) {
	cfg := validDefaults()
	cfg.Store.Driver = "postgres"

	err := cfg.Validate("local")
	assert.Error(t, err)
	assert.Contains(t, err.Error(), "store.database_url is required")

	cfg.Store.DatabaseURL = "postgres://localhost/sourcing"
	assert.NoError(t, cfg.Validate("local"))
}

func TestValidateUnknownDriver(t *testing.T) {
	cfg := validDefaults()
	cfg.Store.Driver = "mysql"

	err := cfg.Validate("local")
	assert.Error(t, err)
	assert.Contains(t, err.Error(), "store.driver must be postgres or sqlite")
}

func TestValidateServe_InvalidPort(t *testing.T) {
	cfg := validDefaults()
	cfg.Directory.Key = "dir-key"
	cfg.Anthropic.Key = "sk-ant-key"
	cfg.Server.Port = 0

	err := cfg.Validate("serve")
	assert.Error(t, err)
	assert.Contains(t, err.Error(), "server.port must be > 0")
}

func TestValidateUnknownMode(t *testing.T) {
	cfg := validDefaults()
	err := cfg.Validate("unknown")
	assert.Error(t, err)
	assert.Contains(t, err.Error(), "unknown mode")
}

func TestValidatePipelineBounds(t *testing.T) {
	cfg := validDefaults()

	cfg.Pipeline.BatchSize = 0
	err := cfg.Validate("local")
	assert.Error(t, err)
	assert.Contains(t, err.Error(), "batch_size must be between 1 and 100")

	cfg.Pipeline.BatchSize = 101
	err = cfg.Validate("local")
	assert.Error(t, err)

	cfg.Pipeline.BatchSize = 100
	cfg.Pipeline.EnrichFanout = 0
	err = cfg.Validate("local")
	assert.Error(t, err)
	assert.Contains(t, err.Error(), "enrich_fanout must be between 1 and 32")

	cfg.Pipeline.EnrichFanout = 32
	assert.NoError(t, cfg.Validate("local"))
}
