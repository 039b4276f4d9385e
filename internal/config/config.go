package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// ChunkerConfig configures how page text is split into chunks.
type ChunkerConfig struct {
	ChunkSize    int `yaml:"chunk_size"`
	ChunkOverlap int `yaml:"chunk_overlap"`
}

// RetrievalConfig configures search.
type RetrievalConfig struct {
	TopK int `yaml:"top_k"`
}

// GeneratorConfig selects and configures the answer generator.
type GeneratorConfig struct {
	Type        string  `yaml:"type"`
	ModelName   string  `yaml:"model_name"`
	Temperature float32 `yaml:"temperature"`
	APIKeyEnv   string  `yaml:"api_key_env"`
	BaseURL     string  `yaml:"base_url,omitempty"`
}

// APIKey reads the generator key from the configured environment variable.
func (g GeneratorConfig) APIKey() string { return os.Getenv(g.APIKeyEnv) }

// SiglipConfig holds connection details for a SigLIP embedding server.
type SiglipConfig struct {
	BaseURL     string `yaml:"base_url"`
	APIKeyEnv   string `yaml:"api_key_env,omitempty"`
	Model       string `yaml:"model"`
	TimeoutSecs int    `yaml:"timeout_secs"`
}

// EmbedderConfig selects and configures the shared embedder.
type EmbedderConfig struct {
	Type      string        `yaml:"type"`
	MaxTokens int           `yaml:"max_tokens"`
	Dimension int           `yaml:"dimension"`
	Serialize bool          `yaml:"serialize"`
	RateLimit float64       `yaml:"rate_limit"`
	Siglip    *SiglipConfig `yaml:"siglip,omitempty"`
}

// QdrantConfig contains connection details for a Qdrant vector store.
type QdrantConfig struct {
	URL              string `yaml:"url"`
	APIKey           string `yaml:"api_key"`
	CollectionPrefix string `yaml:"collection_prefix"`
	TimeoutSecs      int    `yaml:"timeout_secs"`
}

// VectorStoreConfig selects and configures the vector store implementation.
type VectorStoreConfig struct {
	Type   string        `yaml:"type"`
	Qdrant *QdrantConfig `yaml:"qdrant,omitempty"`
}

// SessionConfig controls uploaded-document sessions.
type SessionConfig struct {
	TTLSecs          int    `yaml:"ttl_secs"`
	DataDir          string `yaml:"data_dir"`
	ReapIntervalSecs int    `yaml:"reap_interval_secs"`
}

func (s SessionConfig) TTL() time.Duration { return time.Duration(s.TTLSecs) * time.Second }

func (s SessionConfig) ReapInterval() time.Duration {
	return time.Duration(s.ReapIntervalSecs) * time.Second
}

type ServerConfig struct {
	Addr string `yaml:"addr"`
}

type LogConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

// SummarizerConfig configures the document overview.
type SummarizerConfig struct {
	MaxSentences int `yaml:"max_sentences"`
}

// AppConfig is the root application configuration structure.
type AppConfig struct {
	Chunker     ChunkerConfig     `yaml:"chunker"`
	Retrieval   RetrievalConfig   `yaml:"retrieval"`
	Generator   GeneratorConfig   `yaml:"generator"`
	Embedder    EmbedderConfig    `yaml:"embedder"`
	VectorStore VectorStoreConfig `yaml:"vector_store"`
	Session     SessionConfig     `yaml:"session"`
	Server      ServerConfig      `yaml:"server"`
	Log         LogConfig         `yaml:"log"`
	Summarizer  SummarizerConfig  `yaml:"summarizer"`
}

// Load reads a config from a specified path. If the file does not exist, returns defaults.
// Environment overrides are applied in both cases.
func Load(path string) (*AppConfig, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			cfg := defaultConfig()
			return cfg, applyEnv(cfg)
		}
		return nil, err
	}
	var cfg AppConfig
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("parse %s: %w", path, err)
	}
	applyConfigDefaults(&cfg)
	if err := applyEnv(&cfg); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// LoadDefault tries ./config.yaml first, then ~/.config/pdfrag/config.yaml.
// If neither exists, it writes defaults to ~/.config/pdfrag/config.yaml and returns them.
func LoadDefault() (*AppConfig, string, error) {
	cwdPath := "config.yaml"
	if _, err := os.Stat(cwdPath); err == nil {
		cfg, err := Load(cwdPath)
		return cfg, cwdPath, err
	}
	userPath, err := defaultUserConfigPath()
	if err != nil {
		return nil, "", err
	}
	if _, err := os.Stat(userPath); err == nil {
		cfg, err := Load(userPath)
		return cfg, userPath, err
	}
	cfg := defaultConfig()
	if err := Save(userPath, cfg); err != nil {
		return nil, "", err
	}
	return cfg, userPath, applyEnv(cfg)
}

// Save writes the config to the given path, creating directories as needed.
func Save(path string, cfg *AppConfig) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	data, err := yaml.Marshal(cfg)
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0o644)
}

// Validate rejects settings no component can run with.
func (c *AppConfig) Validate() error {
	if c.Chunker.ChunkOverlap < 0 || c.Chunker.ChunkOverlap >= c.Chunker.ChunkSize {
		return fmt.Errorf("chunker.chunk_overlap must be in [0, chunk_size), got %d", c.Chunker.ChunkOverlap)
	}
	if c.Retrieval.TopK <= 0 {
		return fmt.Errorf("retrieval.top_k must be positive, got %d", c.Retrieval.TopK)
	}
	switch c.Generator.Type {
	case "gemini", "openai":
	default:
		return fmt.Errorf("unknown generator: %s", c.Generator.Type)
	}
	switch c.Embedder.Type {
	case "hashing", "siglip":
	default:
		return fmt.Errorf("unknown embedder: %s", c.Embedder.Type)
	}
	switch c.VectorStore.Type {
	case "memory", "qdrant":
	default:
		return fmt.Errorf("unknown vector store: %s", c.VectorStore.Type)
	}
	return nil
}

func defaultUserConfigPath() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(home, ".config", "pdfrag", "config.yaml"), nil
}

func defaultConfig() *AppConfig {
	cfg := &AppConfig{}
	applyConfigDefaults(cfg)
	return cfg
}

func applyConfigDefaults(cfg *AppConfig) {
	if cfg.Chunker.ChunkSize == 0 {
		cfg.Chunker.ChunkSize = 500
	}
	if cfg.Chunker.ChunkOverlap == 0 && cfg.Chunker.ChunkSize > 100 {
		cfg.Chunker.ChunkOverlap = 100
	}
	if cfg.Retrieval.TopK == 0 {
		cfg.Retrieval.TopK = 5
	}

	g := &cfg.Generator
	if g.Type == "" {
		g.Type = "gemini"
	}
	if g.Temperature == 0 {
		g.Temperature = 0.2
	}
	switch g.Type {
	case "gemini":
		if g.ModelName == "" {
			g.ModelName = "gemini-2.0-flash"
		}
		if g.APIKeyEnv == "" {
			g.APIKeyEnv = "GEMINI_API_KEY"
		}
	case "openai":
		if g.ModelName == "" {
			g.ModelName = "gpt-4o-mini"
		}
		if g.APIKeyEnv == "" {
			g.APIKeyEnv = "OPENAI_API_KEY"
		}
	}

	e := &cfg.Embedder
	if e.Type == "" {
		e.Type = "hashing"
	}
	if e.MaxTokens == 0 {
		e.MaxTokens = 64
	}
	if e.Type == "hashing" && e.Dimension == 0 {
		e.Dimension = 512
	}
	if e.Type == "siglip" {
		if e.Siglip == nil {
			e.Siglip = &SiglipConfig{}
		}
		if e.Siglip.BaseURL == "" {
			e.Siglip.BaseURL = "http://localhost:8000"
		}
		if e.Siglip.Model == "" {
			e.Siglip.Model = "google/siglip-so400m-patch14-384"
		}
		if e.Siglip.TimeoutSecs == 0 {
			e.Siglip.TimeoutSecs = 30
		}
	}

	v := &cfg.VectorStore
	if v.Type == "" {
		v.Type = "memory"
	}
	if v.Type == "qdrant" {
		if v.Qdrant == nil {
			v.Qdrant = &QdrantConfig{}
		}
		if v.Qdrant.URL == "" {
			v.Qdrant.URL = "http://localhost:6333"
		}
		if v.Qdrant.CollectionPrefix == "" {
			v.Qdrant.CollectionPrefix = "pdfrag"
		}
		if v.Qdrant.TimeoutSecs == 0 {
			v.Qdrant.TimeoutSecs = 15
		}
	}

	if cfg.Session.TTLSecs == 0 {
		cfg.Session.TTLSecs = 3600
	}
	if cfg.Session.DataDir == "" {
		cfg.Session.DataDir = "data"
	}
	if cfg.Session.ReapIntervalSecs == 0 {
		cfg.Session.ReapIntervalSecs = 60
	}
	if cfg.Server.Addr == "" {
		cfg.Server.Addr = ":8080"
	}
	if cfg.Log.Level == "" {
		cfg.Log.Level = "info"
	}
	if cfg.Log.Format == "" {
		cfg.Log.Format = "text"
	}
	if cfg.Summarizer.MaxSentences == 0 {
		cfg.Summarizer.MaxSentences = 3
	}
}

// applyEnv lets the environment override a few frequently tuned keys.
func applyEnv(cfg *AppConfig) error {
	if v := strings.TrimSpace(os.Getenv("PDFRAG_MODEL_NAME")); v != "" {
		cfg.Generator.ModelName = v
	}
	if v := strings.TrimSpace(os.Getenv("PDFRAG_TOP_K")); v != "" {
		k, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("PDFRAG_TOP_K: %w", err)
		}
		cfg.Retrieval.TopK = k
	}
	if v := strings.TrimSpace(os.Getenv("PDFRAG_LOG_LEVEL")); v != "" {
		cfg.Log.Level = v
	}
	return nil
}
