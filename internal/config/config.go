package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/caarlos0/env/v11"
	"gopkg.in/yaml.v3"
)

// EnvPrefix namespaces environment overrides, e.g. PDFCHAT_LLM_MODEL.
const EnvPrefix = "PDFCHAT_"

// ProviderConfig holds connection details shared by the embedding and chat clients.
type ProviderConfig struct {
	BaseURL     string `yaml:"base_url" env:"BASE_URL"`
	APIKeyEnv   string `yaml:"api_key_env" env:"API_KEY_ENV"`
	TimeoutSecs int    `yaml:"timeout_secs" env:"TIMEOUT_SECS"`
}

// Timeout returns the per-request provider timeout.
func (p ProviderConfig) Timeout() time.Duration {
	return time.Duration(p.TimeoutSecs) * time.Second
}

// EmbedderConfig selects and configures the text embedder implementation.
type EmbedderConfig struct {
	Type      string `yaml:"type" env:"TYPE"`
	Model     string `yaml:"model" env:"MODEL"`
	BatchSize int    `yaml:"batch_size" env:"BATCH_SIZE"`
}

// LLMConfig selects and configures the chat model.
type LLMConfig struct {
	Type             string `yaml:"type" env:"TYPE"`
	Model            string `yaml:"model" env:"MODEL"`
	CondenseQuestion *bool  `yaml:"condense_question" env:"CONDENSE_QUESTION"`
}

// ChunkerConfig configures how documents are split into chunks.
type ChunkerConfig struct {
	Size    int `yaml:"size" env:"SIZE"`
	Overlap *int `yaml:"overlap" env:"OVERLAP"`
}

// RetrieverConfig configures nearest-chunk lookup.
type RetrieverConfig struct {
	TopK              int  `yaml:"top_k" env:"TOP_K"`
	QueryCacheTTLSecs *int `yaml:"query_cache_ttl_secs" env:"QUERY_CACHE_TTL_SECS"`
}

// QueryCacheTTL returns the query cache lifetime; zero disables the cache.
func (r RetrieverConfig) QueryCacheTTL() time.Duration {
	if r.QueryCacheTTLSecs == nil || *r.QueryCacheTTLSecs <= 0 {
		return 0
	}
	return time.Duration(*r.QueryCacheTTLSecs) * time.Second
}

// SummarizerConfig selects and configures the summarizer.
type SummarizerConfig struct {
	Type         string `yaml:"type" env:"TYPE"`
	MaxSentences int    `yaml:"max_sentences" env:"MAX_SENTENCES"`
}

// SessionConfig configures the chat session state machine.
type SessionConfig struct {
	UploadPolicy         string `yaml:"upload_policy" env:"UPLOAD_POLICY"`
	ClearHistoryOnUpload *bool  `yaml:"clear_history_on_upload" env:"CLEAR_HISTORY_ON_UPLOAD"`
}

type UIConfig struct {
	ShowSources bool `yaml:"show_sources" env:"SHOW_SOURCES"`
}

type LoggingConfig struct {
	Debug bool   `yaml:"debug" env:"DEBUG"`
	File  string `yaml:"file" env:"FILE"`
}

// AppConfig is the root application configuration structure.
type AppConfig struct {
	Provider   ProviderConfig   `yaml:"provider" envPrefix:"PROVIDER_"`
	Embedder   EmbedderConfig   `yaml:"embedder" envPrefix:"EMBEDDER_"`
	LLM        LLMConfig        `yaml:"llm" envPrefix:"LLM_"`
	Chunker    ChunkerConfig    `yaml:"chunker" envPrefix:"CHUNKER_"`
	Retriever  RetrieverConfig  `yaml:"retriever" envPrefix:"RETRIEVER_"`
	Summarizer SummarizerConfig `yaml:"summarizer" envPrefix:"SUMMARIZER_"`
	Session    SessionConfig    `yaml:"session" envPrefix:"SESSION_"`
	UI         UIConfig         `yaml:"ui" envPrefix:"UI_"`
	Logging    LoggingConfig    `yaml:"logging" envPrefix:"LOGGING_"`
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
		return nil, fmt.Errorf("parse %s: %w", path, err)
	}
	applyConfigDefaults(&cfg)
	return &cfg, nil
}

// LoadDefault tries ./config.yaml first, then ~/.config/pdfchat/config.yaml.
// If neither exists, it writes defaults to ~/.config/pdfchat/config.yaml and returns them.
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
	return cfg, userPath, nil
}

// Resolve loads path, or the default locations when path is empty, then
// applies PDFCHAT_* environment overrides and validates the result.
func Resolve(path string) (*AppConfig, string, error) {
	var (
		cfg *AppConfig
		err error
	)
	if path == "" {
		cfg, path, err = LoadDefault()
	} else {
		cfg, err = Load(path)
	}
	if err != nil {
		return nil, "", err
	}
	if err := ApplyEnv(cfg); err != nil {
		return nil, "", err
	}
	if err := cfg.Validate(); err != nil {
		return nil, "", fmt.Errorf("config validation failed: %w", err)
	}
	return cfg, path, nil
}

// ApplyEnv overlays PDFCHAT_* variables on cfg. Unset variables leave fields untouched.
func ApplyEnv(cfg *AppConfig) error {
	if err := env.ParseWithOptions(cfg, env.Options{Prefix: EnvPrefix}); err != nil {
		return fmt.Errorf("parse environment: %w", err)
	}
	applyConfigDefaults(cfg)
	return nil
}

func (c *AppConfig) Validate() error {
	switch c.Embedder.Type {
	case "openai", "tfidf", "mock":
	default:
		return fmt.Errorf("unknown embedder: %s", c.Embedder.Type)
	}
	switch c.LLM.Type {
	case "openai", "mock":
	default:
		return fmt.Errorf("unknown llm: %s", c.LLM.Type)
	}
	switch c.Summarizer.Type {
	case "frequency", "none":
	default:
		return fmt.Errorf("unknown summarizer: %s", c.Summarizer.Type)
	}
	switch c.Session.UploadPolicy {
	case "reject", "restart":
	default:
		return fmt.Errorf("unknown upload policy: %s", c.Session.UploadPolicy)
	}
	if o := c.Chunker.Overlap; o != nil && (*o < 0 || *o >= c.Chunker.Size) {
		return fmt.Errorf("chunker overlap %d must be in [0, %d)", *o, c.Chunker.Size)
	}
	return nil
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

func defaultUserConfigPath() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(home, ".config", "pdfchat", "config.yaml"), nil
}

func defaultConfig() *AppConfig {
	cfg := &AppConfig{}
	applyConfigDefaults(cfg)
	return cfg
}

func applyConfigDefaults(cfg *AppConfig) {
	if cfg.Provider.BaseURL == "" {
		cfg.Provider.BaseURL = "https://api.openai.com/v1"
	}
	if cfg.Provider.APIKeyEnv == "" {
		cfg.Provider.APIKeyEnv = "OPENAI_API_KEY"
	}
	if cfg.Provider.TimeoutSecs == 0 {
		cfg.Provider.TimeoutSecs = 120
	}
	if cfg.Embedder.Type == "" {
		cfg.Embedder.Type = "openai"
	}
	if cfg.Embedder.Model == "" {
		cfg.Embedder.Model = "text-embedding-3-small"
	}
	if cfg.Embedder.BatchSize == 0 {
		cfg.Embedder.BatchSize = 100
	}
	if cfg.LLM.Type == "" {
		cfg.LLM.Type = "openai"
	}
	if cfg.LLM.Model == "" {
		cfg.LLM.Model = "gpt-4o-mini"
	}
	if cfg.LLM.CondenseQuestion == nil {
		cfg.LLM.CondenseQuestion = ptr(true)
	}
	if cfg.Chunker.Size == 0 {
		cfg.Chunker.Size = 1500
	}
	if cfg.Chunker.Overlap == nil {
		cfg.Chunker.Overlap = ptr(150)
	}
	if cfg.Retriever.TopK == 0 {
		cfg.Retriever.TopK = 4
	}
	if cfg.Retriever.QueryCacheTTLSecs == nil {
		cfg.Retriever.QueryCacheTTLSecs = ptr(600)
	}
	if cfg.Summarizer.Type == "" {
		cfg.Summarizer.Type = "frequency"
	}
	if cfg.Summarizer.MaxSentences == 0 {
		cfg.Summarizer.MaxSentences = 3
	}
	if cfg.Session.UploadPolicy == "" {
		cfg.Session.UploadPolicy = "reject"
	}
	if cfg.Session.ClearHistoryOnUpload == nil {
		cfg.Session.ClearHistoryOnUpload = ptr(true)
	}
	if cfg.Logging.File == "" {
		cfg.Logging.File = filepath.Join(os.TempDir(), "pdfchat.log")
	}
}

func ptr[T any](v T) *T { return &v }
