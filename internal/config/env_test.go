package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func clearEnvVars(t *testing.T) {
	t.Helper()
	vars := []string{
		"HOST", "PORT", "DB_URL", "LOG_LEVEL", "LOG_FORMAT", "API_KEYS",
		"EMBEDDING_ENDPOINT_BASE_URL", "EMBEDDING_ENDPOINT_MODEL", "EMBEDDING_ENDPOINT_API_KEY",
		"EMBEDDING_ENDPOINT_PROVIDER",
		"GENERATION_ENDPOINT_BASE_URL", "GENERATION_ENDPOINT_MODEL", "GENERATION_ENDPOINT_API_KEY",
		"GENERATION_ENDPOINT_PROVIDER",
		"PIPELINE_RETRIEVAL_K", "PIPELINE_ROW_CAP", "PIPELINE_QUERY_TIMEOUT_SECONDS",
		"PIPELINE_HISTORY_WINDOW", "PIPELINE_SAMPLE_ROWS", "PIPELINE_MAX_CORRECTIONS",
		"PIPELINE_TEMPERATURE", "PIPELINE_INSIGHT_TEMPERATURE",
	}
	for _, v := range vars {
		t.Setenv(v, "")
		require.NoError(t, os.Unsetenv(v))
	}
}

func TestLoadFromEnv_Defaults(t *testing.T) {
	clearEnvVars(t)

	cfg, err := LoadFromEnv()
	require.NoError(t, err)

	assert.Equal(t, "0.0.0.0", cfg.Host)
	assert.Equal(t, 8080, cfg.Port)
	assert.Equal(t, "", cfg.DBURL)
	assert.Equal(t, "INFO", cfg.LogLevel)
	assert.Equal(t, "pretty", cfg.LogFormat)
	assert.Equal(t, "", cfg.APIKeys)

	assert.Equal(t, 5, cfg.Pipeline.RetrievalK)
	assert.Equal(t, 1000, cfg.Pipeline.RowCap)
	assert.Equal(t, 30.0, cfg.Pipeline.QueryTimeoutSeconds)
	assert.Equal(t, 5, cfg.Pipeline.HistoryWindow)
	assert.Equal(t, 3, cfg.Pipeline.SampleRows)
	assert.Equal(t, 1, cfg.Pipeline.MaxCorrections)
}

func TestEnvDefaults_MatchConfigDefaults(t *testing.T) {
	// Struct tag defaults must be literals, so this test keeps them in
	// sync with the constants in config.go.
	clearEnvVars(t)

	cfg, err := LoadFromEnv()
	require.NoError(t, err)

	assert.Equal(t, DefaultHost, cfg.Host)
	assert.Equal(t, DefaultPort, cfg.Port)
	assert.Equal(t, DefaultLogLevel, cfg.LogLevel)
	assert.Equal(t, DefaultRetrievalK, cfg.Pipeline.RetrievalK)
	assert.Equal(t, DefaultRowCap, cfg.Pipeline.RowCap)
	assert.Equal(t, DefaultQueryTimeout.Seconds(), cfg.Pipeline.QueryTimeoutSeconds)
	assert.Equal(t, DefaultHistoryWindow, cfg.Pipeline.HistoryWindow)
	assert.Equal(t, DefaultSampleRows, cfg.Pipeline.SampleRows)
	assert.Equal(t, DefaultMaxCorrections, cfg.Pipeline.MaxCorrections)
	assert.Equal(t, DefaultEndpointTimeout.Seconds(), cfg.EmbeddingEndpoint.Timeout)
	assert.Equal(t, DefaultEndpointRetries, cfg.EmbeddingEndpoint.MaxRetries)
	assert.Equal(t, DefaultInitialDelay.Seconds(), cfg.EmbeddingEndpoint.InitialDelay)
	assert.Equal(t, DefaultBackoffFactor, cfg.EmbeddingEndpoint.BackoffFactor)
}

func TestLoadFromEnv_OverrideValues(t *testing.T) {
	clearEnvVars(t)

	t.Setenv("HOST", "127.0.0.1")
	t.Setenv("PORT", "9000")
	t.Setenv("DB_URL", "postgres://localhost/retail")
	t.Setenv("LOG_LEVEL", "DEBUG")
	t.Setenv("LOG_FORMAT", "json")
	t.Setenv("API_KEYS", "key1,key2,key3")
	t.Setenv("EMBEDDING_ENDPOINT_API_KEY", "sk-embed")
	t.Setenv("GENERATION_ENDPOINT_API_KEY", "sk-gen")
	t.Setenv("GENERATION_ENDPOINT_MODEL", "gpt-4o")
	t.Setenv("PIPELINE_RETRIEVAL_K", "8")
	t.Setenv("PIPELINE_ROW_CAP", "200")
	t.Setenv("PIPELINE_QUERY_TIMEOUT_SECONDS", "10")

	cfg, err := LoadFromEnv()
	require.NoError(t, err)

	assert.Equal(t, "127.0.0.1", cfg.Host)
	assert.Equal(t, 9000, cfg.Port)
	assert.Equal(t, "postgres://localhost/retail", cfg.DBURL)
	assert.Equal(t, "DEBUG", cfg.LogLevel)
	assert.Equal(t, "json", cfg.LogFormat)
	assert.Equal(t, "sk-embed", cfg.EmbeddingEndpoint.APIKey)
	assert.Equal(t, "gpt-4o", cfg.GenerationEndpoint.Model)
	assert.Equal(t, 8, cfg.Pipeline.RetrievalK)
	assert.Equal(t, 200, cfg.Pipeline.RowCap)
}

func TestToAppConfig(t *testing.T) {
	clearEnvVars(t)

	t.Setenv("DB_URL", "sqlite:///tmp/retail.db")
	t.Setenv("LOG_FORMAT", "json")
	t.Setenv("GENERATION_ENDPOINT_API_KEY", "sk-gen")
	t.Setenv("PIPELINE_QUERY_TIMEOUT_SECONDS", "12.5")

	envCfg, err := LoadFromEnv()
	require.NoError(t, err)

	cfg := envCfg.Normalize().ToAppConfig()

	assert.Equal(t, "sqlite:///tmp/retail.db", cfg.DBURL())
	assert.Equal(t, LogFormatJSON, cfg.LogFormat())
	assert.Equal(t, 12500*time.Millisecond, cfg.Pipeline().QueryTimeout())

	// Embedding endpoint has no API key so it stays unconfigured.
	assert.Nil(t, cfg.EmbeddingEndpoint())

	require.NotNil(t, cfg.GenerationEndpoint())
	assert.Equal(t, DefaultChatModel, cfg.GenerationEndpoint().Model())
	assert.Equal(t, "sk-gen", cfg.GenerationEndpoint().APIKey())
	assert.Equal(t, ProviderOpenAI, cfg.GenerationEndpoint().Provider())
}

func TestToAppConfig_AnthropicProvider(t *testing.T) {
	clearEnvVars(t)

	t.Setenv("GENERATION_ENDPOINT_API_KEY", "sk-gen")
	t.Setenv("GENERATION_ENDPOINT_PROVIDER", "Anthropic")

	envCfg, err := LoadFromEnv()
	require.NoError(t, err)

	cfg := envCfg.Normalize().ToAppConfig()

	require.NotNil(t, cfg.GenerationEndpoint())
	assert.Equal(t, ProviderAnthropic, cfg.GenerationEndpoint().Provider())
	assert.Equal(t, DefaultAnthropicModel, cfg.GenerationEndpoint().Model())
}

func TestLoadConfigWithDotEnv(t *testing.T) {
	clearEnvVars(t)

	dir := t.TempDir()
	envPath := filepath.Join(dir, ".env")
	require.NoError(t, os.WriteFile(envPath, []byte("DB_URL=sqlite:///from-dotenv.db\nPORT=9999\n"), 0o600))

	cfg, err := LoadConfig(envPath)
	require.NoError(t, err)

	assert.Equal(t, "sqlite:///from-dotenv.db", cfg.DBURL())
	assert.Equal(t, 9999, cfg.Port())
}

func TestLoadConfigMissingDotEnv(t *testing.T) {
	clearEnvVars(t)

	cfg, err := LoadConfig("/nonexistent/.env")
	require.NoError(t, err)
	assert.Equal(t, DefaultPort, cfg.Port())
}

func TestYAMLOverlay(t *testing.T) {
	clearEnvVars(t)

	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	content := `
host: 10.0.0.1
db_url: postgres://user:pass@db/retail
pipeline:
  retrieval_k: 7
  row_cap: 50
generation:
  model: gpt-4o-mini
  api_key: sk-from-file
`
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))

	fc, err := LoadYAML(path)
	require.NoError(t, err)

	cfg := fc.Overlay(NewAppConfig())
	assert.Equal(t, "10.0.0.1", cfg.Host())
	assert.Equal(t, "postgres://user:pass@db/retail", cfg.DBURL())
	assert.Equal(t, 7, cfg.Pipeline().RetrievalK())
	assert.Equal(t, 50, cfg.Pipeline().RowCap())
	require.NotNil(t, cfg.GenerationEndpoint())
	assert.Equal(t, "gpt-4o-mini", cfg.GenerationEndpoint().Model())
	assert.Equal(t, "sk-from-file", cfg.GenerationEndpoint().APIKey())
}

func TestLoadYAMLMissingFile(t *testing.T) {
	fc, err := LoadYAML("/nonexistent/config.yaml")
	require.NoError(t, err)
	assert.Nil(t, fc.Host)
}
