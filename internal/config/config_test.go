package config_test

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/utakata/mnemosyne/internal/config"
)

func TestLoad_Defaults(t *testing.T) {
	cfg, err := config.Load("")
	require.NoError(t, err)

	assert.Equal(t, "洛天依", cfg.Agent.Name)
	assert.Equal(t, "./data", cfg.Storage.DataPath)
	assert.Equal(t, "columnar", cfg.Storage.VectorBackend)
	assert.Equal(t, "http://localhost:11434/v1", cfg.LLM.BaseURL)
	assert.Equal(t, 768, cfg.LLM.EmbeddingDims)
	assert.Equal(t, 20, cfg.Memory.RawContextLimit)
	assert.Equal(t, 5, cfg.Memory.RetainCount)
	assert.Equal(t, 30, cfg.Memory.ForgetDays)
	assert.Equal(t, 2, cfg.Memory.SearchIterations)
	assert.Equal(t, time.Hour, cfg.Fetcher.CacheTTL.Std())
}

func TestLoad_YAMLFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
agent:
  name: 言和
storage:
  data_path: /var/lib/mnemosyne
  vector_backend: sqlite
llm:
  model: qwen2.5:14b
  timeout: 30s
memory:
  raw_context_limit: 40
`), 0o644))

	cfg, err := config.Load(path)
	require.NoError(t, err)
	assert.Equal(t, "言和", cfg.Agent.Name)
	assert.Equal(t, "/var/lib/mnemosyne", cfg.Storage.DataPath)
	assert.Equal(t, "sqlite", cfg.Storage.VectorBackend)
	assert.Equal(t, "qwen2.5:14b", cfg.LLM.Model)
	assert.Equal(t, 30*time.Second, cfg.LLM.Timeout.Std())
	assert.Equal(t, 40, cfg.Memory.RawContextLimit)
	// Untouched settings keep defaults.
	assert.Equal(t, "nomic-embed-text", cfg.LLM.EmbeddingModel)
}

func TestLoad_EnvOverridesFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte("agent:\n  name: 言和\n"), 0o644))
	t.Setenv("MNEMOSYNE_AGENT_NAME", "乐正绫")
	t.Setenv("MNEMOSYNE_RAW_CONTEXT_LIMIT", "99")

	cfg, err := config.Load(path)
	require.NoError(t, err)
	assert.Equal(t, "乐正绫", cfg.Agent.Name)
	assert.Equal(t, 99, cfg.Memory.RawContextLimit)
}

func TestLoad_MissingFileUsesDefaults(t *testing.T) {
	cfg, err := config.Load(filepath.Join(t.TempDir(), "nope.yaml"))
	require.NoError(t, err)
	assert.Equal(t, "columnar", cfg.Storage.VectorBackend)
}

func TestLoad_MalformedFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte("agent: [unclosed"), 0o644))

	_, err := config.Load(path)
	assert.Error(t, err)
}

func TestValidate(t *testing.T) {
	cfg, err := config.Load("")
	require.NoError(t, err)
	assert.NoError(t, cfg.Validate())

	cfg.Storage.VectorBackend = "postgres"
	assert.Error(t, cfg.Validate(), "postgres without a DSN must fail")
	cfg.Storage.PostgresDSN = "postgres://localhost/mnemosyne"
	assert.NoError(t, cfg.Validate())

	cfg.Storage.VectorBackend = "leveldb"
	assert.Error(t, cfg.Validate())
}
