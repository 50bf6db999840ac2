package config_test

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Sumatoshi-tech/symdict/pkg/config"
)

func writeConfigFile(t *testing.T, content string) string {
	t.Helper()

	path := filepath.Join(t.TempDir(), ".symdict.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))

	return path
}

func TestLoad_EmptyFile_UsesDefaults(t *testing.T) {
	t.Parallel()

	cfg, err := config.Load(writeConfigFile(t, ""))
	require.NoError(t, err)
	require.NotNil(t, cfg)

	assert.Equal(t, config.DefaultLogLevel, cfg.LogLevel)
	assert.Equal(t, config.DefaultLogJSON, cfg.LogJSON)
	assert.Equal(t, config.DefaultHibernationThreshold, cfg.HibernationThreshold)
	assert.Equal(t, config.DefaultShards, cfg.Shards)
	assert.Equal(t, config.DefaultCaseSensitive, cfg.CaseSensitive)
	assert.Empty(t, cfg.OTLPEndpoint)
	assert.Empty(t, cfg.DiagAddr)
	assert.Empty(t, cfg.Environment)
}

func TestLoad_ValidFile_Unmarshals(t *testing.T) {
	t.Parallel()

	content := `log_level: debug
log_json: true
environment: staging
otlp_endpoint: "localhost:4317"
otlp_insecure: true
diag_addr: "127.0.0.1:9090"
hibernation_threshold: 1500
shards: 8
case_sensitive: true
`

	cfg, err := config.Load(writeConfigFile(t, content))
	require.NoError(t, err)

	assert.Equal(t, "debug", cfg.LogLevel)
	assert.True(t, cfg.LogJSON)
	assert.Equal(t, "staging", cfg.Environment)
	assert.Equal(t, "localhost:4317", cfg.OTLPEndpoint)
	assert.True(t, cfg.OTLPInsecure)
	assert.Equal(t, "127.0.0.1:9090", cfg.DiagAddr)
	assert.Equal(t, 1500, cfg.HibernationThreshold)
	assert.Equal(t, 8, cfg.Shards)
	assert.True(t, cfg.CaseSensitive)
}

func TestLoad_PartialConfig_MergesDefaults(t *testing.T) {
	t.Parallel()

	cfg, err := config.Load(writeConfigFile(t, "shards: 4\n"))
	require.NoError(t, err)

	assert.Equal(t, 4, cfg.Shards)
	assert.Equal(t, config.DefaultLogLevel, cfg.LogLevel)
	assert.Equal(t, config.DefaultHibernationThreshold, cfg.HibernationThreshold)
}

func TestLoad_UnknownKeys_NoError(t *testing.T) {
	t.Parallel()

	content := `future_block:
  retention: "30d"
shards: 2
`

	cfg, err := config.Load(writeConfigFile(t, content))
	require.NoError(t, err)
	assert.Equal(t, 2, cfg.Shards)
}

func TestLoad_MalformedYAML_ReturnsError(t *testing.T) {
	t.Parallel()

	cfg, err := config.Load(writeConfigFile(t, "shards: [invalid yaml\n"))
	require.ErrorContains(t, err, "read config")
	require.Nil(t, cfg)
}

func TestLoad_InvalidValues_ReturnValidationError(t *testing.T) {
	t.Parallel()

	_, err := config.Load(writeConfigFile(t, "shards: 0\n"))
	require.ErrorIs(t, err, config.ErrInvalidShardCount)

	_, err = config.Load(writeConfigFile(t, "log_level: loud\n"))
	require.ErrorIs(t, err, config.ErrInvalidLogLevel)

	_, err = config.Load(writeConfigFile(t, "hibernation_threshold: -5\n"))
	require.ErrorIs(t, err, config.ErrInvalidHibernation)
}

func TestLoad_EnvOverride(t *testing.T) {
	t.Setenv("SYMDICT_SHARDS", "16")
	t.Setenv("SYMDICT_LOG_LEVEL", "warn")

	cfg, err := config.Load(writeConfigFile(t, ""))
	require.NoError(t, err)

	assert.Equal(t, 16, cfg.Shards)
	assert.Equal(t, "warn", cfg.LogLevel)
}

func TestLoad_ExplicitPath_NotFound_ReturnsError(t *testing.T) {
	t.Parallel()

	cfg, err := config.Load("/nonexistent/path/config.yaml")
	require.Error(t, err)
	require.Nil(t, cfg)
}
