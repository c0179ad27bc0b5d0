package config

import (
	"errors"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"
)

// ServerConfig holds the HTTP surface settings.
type ServerConfig struct {
	Listen string `yaml:"listen"`
	// URL is the base address clients (chat TUI, guardrails command) talk to.
	URL string `yaml:"url"`
}

// StorageConfig locates the persisted artifacts.
type StorageConfig struct {
	// DataDir contains index.gob, chunks.json, guardrails.txt and uploads/.
	DataDir string `yaml:"data_dir"`
}

// ChunkingConfig configures how extracted text is split for embedding.
type ChunkingConfig struct {
	MaxChunkTokens int `yaml:"max_chunk_tokens"`
}

// RetrievalConfig configures query-time nearest-neighbor search.
type RetrievalConfig struct {
	TopK int `yaml:"top_k"`
}

// OpenAIConfig configures the embedding/completion collaborator.
type OpenAIConfig struct {
	BaseURL         string `yaml:"base_url,omitempty"`
	APIKeyEnv       string `yaml:"api_key_env"`
	EmbeddingModel  string `yaml:"embedding_model"`
	CompletionModel string `yaml:"completion_model"`
	TimeoutSecs     int    `yaml:"timeout_secs"`
}

// AppConfig is the root application configuration structure.
type AppConfig struct {
	Server    ServerConfig    `yaml:"server"`
	Storage   StorageConfig   `yaml:"storage"`
	Chunking  ChunkingConfig  `yaml:"chunking"`
	Retrieval RetrievalConfig `yaml:"retrieval"`
	OpenAI    OpenAIConfig    `yaml:"openai"`
}

// Load reads a config from a specified path. If the file does not exist, returns defaults.
func Load(path string) (*AppConfig, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return defaultConfig(), nil
		}
		return nil, err
	}
	var cfg AppConfig
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, err
	}
	applyConfigDefaults(&cfg)
	return &cfg, nil
}

// LoadOrInit loads the config at path. When no file exists yet, it writes the
// defaults there first so operators have a config to edit.
func LoadOrInit(path string) (*AppConfig, error) {
	if _, err := os.Stat(path); errors.Is(err, os.ErrNotExist) {
		cfg := defaultConfig()
		if err := Save(path, cfg); err != nil {
			return nil, err
		}
		return cfg, nil
	}
	return Load(path)
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

func defaultConfig() *AppConfig {
	cfg := &AppConfig{}
	applyConfigDefaults(cfg)
	return cfg
}

func applyConfigDefaults(cfg *AppConfig) {
	if cfg.Server.Listen == "" {
		cfg.Server.Listen = ":8000"
	}
	if cfg.Server.URL == "" {
		cfg.Server.URL = "http://localhost:8000"
	}
	if cfg.Storage.DataDir == "" {
		cfg.Storage.DataDir = "data"
	}
	if cfg.Chunking.MaxChunkTokens == 0 {
		cfg.Chunking.MaxChunkTokens = 500
	}
	if cfg.Retrieval.TopK == 0 {
		cfg.Retrieval.TopK = 5
	}
	if cfg.OpenAI.APIKeyEnv == "" {
		cfg.OpenAI.APIKeyEnv = "OPENAI_API_KEY"
	}
	if cfg.OpenAI.EmbeddingModel == "" {
		cfg.OpenAI.EmbeddingModel = "text-embedding-3-small"
	}
	if cfg.OpenAI.CompletionModel == "" {
		cfg.OpenAI.CompletionModel = "gpt-4o-mini"
	}
	if cfg.OpenAI.TimeoutSecs == 0 {
		cfg.OpenAI.TimeoutSecs = 30
	}
}
