// Package config provides configuration for the mnemosyne memory
// subsystem. Settings come from an optional YAML file, overridden by
// environment variables with the MNEMOSYNE_ prefix, with sensible
// defaults for everything.
package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"
)

// Duration is a time.Duration that unmarshals from YAML strings like
// "30s" or "1h".
type Duration time.Duration

func (d *Duration) UnmarshalYAML(value *yaml.Node) error {
	var raw string
	if err := value.Decode(&raw); err != nil {
		return err
	}
	parsed, err := time.ParseDuration(raw)
	if err != nil {
		return fmt.Errorf("config: invalid duration %q: %w", raw, err)
	}
	*d = Duration(parsed)
	return nil
}

// Std returns the wrapped time.Duration.
func (d Duration) Std() time.Duration { return time.Duration(d) }

// Config holds all settings for the memory subsystem.
type Config struct {
	Agent   AgentConfig   `yaml:"agent"`
	Storage StorageConfig `yaml:"storage"`
	LLM     LLMConfig     `yaml:"llm"`
	Memory  MemoryConfig  `yaml:"memory"`
	Fetcher FetcherConfig `yaml:"fetcher"`
}

// AgentConfig names the two sides of the conversation.
type AgentConfig struct {
	Name string `yaml:"name"` // agent persona name (default: 洛天依)
}

// StorageConfig selects where memory lives on disk.
type StorageConfig struct {
	DataPath      string `yaml:"data_path"`      // data directory (default: ./data)
	VectorBackend string `yaml:"vector_backend"` // columnar, chromem, sqlite, postgres (default: columnar)
	PostgresDSN   string `yaml:"postgres_dsn"`   // DSN for the postgres backend
	Collection    string `yaml:"collection"`     // chromem collection name (default: memories)
}

// LLMConfig points at an OpenAI-compatible endpoint.
type LLMConfig struct {
	BaseURL           string   `yaml:"base_url"` // default: http://localhost:11434/v1
	APIKey            string   `yaml:"api_key"`
	Model             string   `yaml:"model"`               // default: qwen2.5:7b
	EmbeddingModel    string   `yaml:"embedding_model"`     // default: nomic-embed-text
	EmbeddingDims     int      `yaml:"embedding_dims"`      // default: 768
	Temperature       float64  `yaml:"temperature"`         // default: 0.7
	Timeout           Duration `yaml:"timeout"`             // default: 60s
	RequestsPerSecond float64  `yaml:"requests_per_second"` // default: 2
}

// MemoryConfig tunes the conversation log, summarizer and retrieval.
type MemoryConfig struct {
	MaxFileLines     int `yaml:"max_file_lines"`    // records per history shard (default: 1000)
	RecentLimit      int `yaml:"recent_limit"`      // records kept hot in memory (default: 50)
	RawContextLimit  int `yaml:"raw_context_limit"` // items before compaction (default: 20)
	RetainCount      int `yaml:"retain_count"`      // items kept after compaction (default: 5)
	ForgetDays       int `yaml:"forget_days"`       // summarizer decay horizon (default: 30)
	MaxVectorHits    int `yaml:"max_vector_hits"`   // default: 5
	MaxGraphHits     int `yaml:"max_graph_hits"`    // default: 5
	SearchIterations int `yaml:"search_iterations"` // activation rounds (default: 2)
	TagFanout        int `yaml:"tag_fanout"`        // tags per activation seed (default: 2)
	MaxPathDepth     int `yaml:"max_path_depth"`    // default: 3
	MaxPaths         int `yaml:"max_paths"`         // default: 5
}

// FetcherConfig points at the external wiki used for unknown entities.
type FetcherConfig struct {
	WikiBaseURL string   `yaml:"wiki_base_url"` // api.php endpoint; empty disables external lookups
	CacheTTL    Duration `yaml:"cache_ttl"`     // default: 1h
}

// Load reads the YAML file at path when it exists, then applies
// environment overrides and defaults. An empty path skips the file.
func Load(path string) (*Config, error) {
	cfg := &Config{}
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil && !os.IsNotExist(err) {
			return nil, fmt.Errorf("config: read %s: %w", path, err)
		}
		if err == nil {
			if err := yaml.Unmarshal(data, cfg); err != nil {
				return nil, fmt.Errorf("config: parse %s: %w", path, err)
			}
		}
	}
	cfg.applyEnv()
	cfg.applyDefaults()
	return cfg, nil
}

func (c *Config) applyEnv() {
	setString(&c.Agent.Name, "MNEMOSYNE_AGENT_NAME")
	setString(&c.Storage.DataPath, "MNEMOSYNE_DATA_PATH")
	setString(&c.Storage.VectorBackend, "MNEMOSYNE_VECTOR_BACKEND")
	setString(&c.Storage.PostgresDSN, "MNEMOSYNE_POSTGRES_DSN")
	setString(&c.Storage.Collection, "MNEMOSYNE_COLLECTION")
	setString(&c.LLM.BaseURL, "MNEMOSYNE_LLM_BASE_URL")
	setString(&c.LLM.APIKey, "MNEMOSYNE_LLM_API_KEY")
	setString(&c.LLM.Model, "MNEMOSYNE_LLM_MODEL")
	setString(&c.LLM.EmbeddingModel, "MNEMOSYNE_EMBEDDING_MODEL")
	setInt(&c.LLM.EmbeddingDims, "MNEMOSYNE_EMBEDDING_DIMS")
	setInt(&c.Memory.RawContextLimit, "MNEMOSYNE_RAW_CONTEXT_LIMIT")
	setInt(&c.Memory.RetainCount, "MNEMOSYNE_RETAIN_COUNT")
	setInt(&c.Memory.ForgetDays, "MNEMOSYNE_FORGET_DAYS")
	setString(&c.Fetcher.WikiBaseURL, "MNEMOSYNE_WIKI_BASE_URL")
}

func (c *Config) applyDefaults() {
	if c.Agent.Name == "" {
		c.Agent.Name = "洛天依"
	}
	if c.Storage.DataPath == "" {
		c.Storage.DataPath = "./data"
	}
	if c.Storage.VectorBackend == "" {
		c.Storage.VectorBackend = "columnar"
	}
	if c.Storage.Collection == "" {
		c.Storage.Collection = "memories"
	}
	if c.LLM.BaseURL == "" {
		c.LLM.BaseURL = "http://localhost:11434/v1"
	}
	if c.LLM.Model == "" {
		c.LLM.Model = "qwen2.5:7b"
	}
	if c.LLM.EmbeddingModel == "" {
		c.LLM.EmbeddingModel = "nomic-embed-text"
	}
	if c.LLM.EmbeddingDims <= 0 {
		c.LLM.EmbeddingDims = 768
	}
	if c.LLM.Temperature <= 0 {
		c.LLM.Temperature = 0.7
	}
	if c.LLM.Timeout <= 0 {
		c.LLM.Timeout = Duration(60 * time.Second)
	}
	if c.LLM.RequestsPerSecond <= 0 {
		c.LLM.RequestsPerSecond = 2
	}
	if c.Memory.MaxFileLines <= 0 {
		c.Memory.MaxFileLines = 1000
	}
	if c.Memory.RecentLimit <= 0 {
		c.Memory.RecentLimit = 50
	}
	if c.Memory.RawContextLimit <= 0 {
		c.Memory.RawContextLimit = 20
	}
	if c.Memory.RetainCount <= 0 {
		c.Memory.RetainCount = 5
	}
	if c.Memory.ForgetDays <= 0 {
		c.Memory.ForgetDays = 30
	}
	if c.Memory.MaxVectorHits <= 0 {
		c.Memory.MaxVectorHits = 5
	}
	if c.Memory.MaxGraphHits <= 0 {
		c.Memory.MaxGraphHits = 5
	}
	if c.Memory.SearchIterations <= 0 {
		c.Memory.SearchIterations = 2
	}
	if c.Memory.TagFanout <= 0 {
		c.Memory.TagFanout = 2
	}
	if c.Memory.MaxPathDepth <= 0 {
		c.Memory.MaxPathDepth = 3
	}
	if c.Memory.MaxPaths <= 0 {
		c.Memory.MaxPaths = 5
	}
	if c.Fetcher.CacheTTL <= 0 {
		c.Fetcher.CacheTTL = Duration(time.Hour)
	}
}

// Validate rejects combinations the binaries cannot start with.
func (c *Config) Validate() error {
	switch c.Storage.VectorBackend {
	case "columnar", "chromem", "sqlite":
	case "postgres":
		if c.Storage.PostgresDSN == "" {
			return fmt.Errorf("config: postgres backend needs storage.postgres_dsn")
		}
	default:
		return fmt.Errorf("config: unknown vector backend %q", c.Storage.VectorBackend)
	}
	return nil
}

func setString(dst *string, key string) {
	if v := os.Getenv(key); v != "" {
		*dst = v
	}
}

func setInt(dst *int, key string) {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			*dst = n
		}
	}
}
