// Package config holds the engine configuration: YAML file loading, env var
// expansion and overrides, defaults and validation. Configuration is read
// once at startup and is read-only afterwards.
package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/chanakya-ai/chanakya/pkg/observability"
)

// ModelConfig configures the generative model provider.
type ModelConfig struct {
	Provider        string  `yaml:"provider"`
	Name            string  `yaml:"name"`
	APIKey          string  `yaml:"api_key"`
	MaxOutputTokens int     `yaml:"max_output_tokens"`
	Temperature     float64 `yaml:"temperature"`
}

func (c *ModelConfig) SetDefaults() {
	if c.Provider == "" {
		c.Provider = "gemini"
	}
	if c.Name == "" {
		c.Name = "gemini-2.0-flash"
	}
	if c.APIKey == "" {
		c.APIKey = os.Getenv("GEMINI_API_KEY")
	}
	if c.MaxOutputTokens == 0 {
		c.MaxOutputTokens = 32768
	}
	if c.Temperature == 0 {
		c.Temperature = 0.7
	}
}

func (c *ModelConfig) Validate() error {
	if c.Temperature < 0 || c.Temperature > 2 {
		return fmt.Errorf("model.temperature must be in [0, 2], got %v", c.Temperature)
	}
	if c.MaxOutputTokens < 0 {
		return fmt.Errorf("model.max_output_tokens must be >= 0")
	}
	return nil
}

// EngineConfig holds the routing and quality-gate knobs plus the per-call
// deadlines for external services.
type EngineConfig struct {
	ConfidenceMin     float64 `yaml:"confidence_min"`
	MaxRoutingRetries int     `yaml:"max_routing_retries"`
	QualityMin        float64 `yaml:"quality_min"`
	MaxQualityRetries int     `yaml:"max_quality_retries"`
	ContextWindow     int     `yaml:"context_window"`

	RoutingTimeout     time.Duration `yaml:"routing_timeout"`
	ToolTimeout        time.Duration `yaml:"tool_timeout"`
	QualityTimeout     time.Duration `yaml:"quality_timeout"`
	TranslationTimeout time.Duration `yaml:"translation_timeout"`
}

func (c *EngineConfig) SetDefaults() {
	if c.ConfidenceMin == 0 {
		c.ConfidenceMin = 0.6
	}
	if c.MaxRoutingRetries == 0 {
		c.MaxRoutingRetries = 2
	}
	if c.QualityMin == 0 {
		c.QualityMin = 0.7
	}
	if c.MaxQualityRetries == 0 {
		c.MaxQualityRetries = 2
	}
	if c.ContextWindow == 0 {
		c.ContextWindow = 10
	}
	if c.RoutingTimeout == 0 {
		c.RoutingTimeout = 10 * time.Second
	}
	if c.ToolTimeout == 0 {
		c.ToolTimeout = 60 * time.Second
	}
	if c.QualityTimeout == 0 {
		c.QualityTimeout = 15 * time.Second
	}
	if c.TranslationTimeout == 0 {
		c.TranslationTimeout = 10 * time.Second
	}
}

func (c *EngineConfig) Validate() error {
	if c.ConfidenceMin < 0 || c.ConfidenceMin > 1 {
		return fmt.Errorf("engine.confidence_min must be in [0, 1], got %v", c.ConfidenceMin)
	}
	if c.QualityMin < 0 || c.QualityMin > 1 {
		return fmt.Errorf("engine.quality_min must be in [0, 1], got %v", c.QualityMin)
	}
	if c.MaxRoutingRetries < 0 || c.MaxQualityRetries < 0 {
		return fmt.Errorf("engine retry ceilings must be >= 0")
	}
	if c.ContextWindow < 1 {
		return fmt.Errorf("engine.context_window must be >= 1")
	}
	return nil
}

// MemoryConfig configures the conversation memory tiers.
type MemoryConfig struct {
	StorePath           string `yaml:"store_path"`
	SessionCacheMax     int    `yaml:"session_cache_max"`
	SummarizeThreshold  int    `yaml:"summarize_threshold"`
	SummarizeKeepRecent int    `yaml:"summarize_keep_recent"`
	RetentionDays       int    `yaml:"retention_days"`
}

func (c *MemoryConfig) SetDefaults() {
	if c.StorePath == "" {
		c.StorePath = "chanakya.db"
	}
	if c.SessionCacheMax == 0 {
		c.SessionCacheMax = 1000
	}
	if c.SummarizeThreshold == 0 {
		c.SummarizeThreshold = 20
	}
	if c.SummarizeKeepRecent == 0 {
		c.SummarizeKeepRecent = 5
	}
	if c.RetentionDays == 0 {
		c.RetentionDays = 30
	}
}

func (c *MemoryConfig) Validate() error {
	if c.SessionCacheMax < 1 {
		return fmt.Errorf("memory.session_cache_max must be >= 1")
	}
	if c.SummarizeKeepRecent >= c.SummarizeThreshold {
		return fmt.Errorf("memory.summarize_keep_recent must be below summarize_threshold")
	}
	if c.RetentionDays < 1 {
		return fmt.Errorf("memory.retention_days must be >= 1")
	}
	return nil
}

// EmbedderConfig configures the embedding model used by retrieval.
type EmbedderConfig struct {
	Provider  string `yaml:"provider"`
	Model     string `yaml:"model"`
	BaseURL   string `yaml:"base_url"`
	Dimension int    `yaml:"dimension"`
}

func (c *EmbedderConfig) SetDefaults() {
	if c.Provider == "" {
		c.Provider = "ollama"
	}
	if c.Model == "" {
		c.Model = "intfloat/multilingual-e5-base"
	}
	if c.BaseURL == "" {
		c.BaseURL = "http://localhost:11434"
	}
	if c.Dimension == 0 {
		c.Dimension = 768
	}
}

// RetrievalConfig configures the textbook retrieval engine.
type RetrievalConfig struct {
	CorpusPath        string         `yaml:"corpus_path"`
	TopK              int            `yaml:"top_k"`
	Embedder          EmbedderConfig `yaml:"embedder"`
	GenerationTimeout time.Duration  `yaml:"generation_timeout"`
}

func (c *RetrievalConfig) SetDefaults() {
	if c.CorpusPath == "" {
		c.CorpusPath = "corpus.db"
	}
	if c.TopK == 0 {
		c.TopK = 5
	}
	if c.GenerationTimeout == 0 {
		c.GenerationTimeout = 30 * time.Second
	}
	c.Embedder.SetDefaults()
}

// FeedbackConfig configures the teaching-feedback analyzer storage.
type FeedbackConfig struct {
	StorePath string `yaml:"store_path"`
}

func (c *FeedbackConfig) SetDefaults() {
	if c.StorePath == "" {
		c.StorePath = "feedback.db"
	}
}

// ServerConfig configures the HTTP server.
type ServerConfig struct {
	Host string `yaml:"host"`
	Port int    `yaml:"port"`
}

func (c *ServerConfig) SetDefaults() {
	if c.Host == "" {
		c.Host = "0.0.0.0"
	}
	if c.Port == 0 {
		c.Port = 8080
	}
}

// LoggingConfig configures the global logger.
type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

func (c *LoggingConfig) SetDefaults() {
	if c.Level == "" {
		c.Level = "info"
	}
	if c.Format == "" {
		c.Format = "simple"
	}
}

// Config is the root configuration.
type Config struct {
	Model         ModelConfig          `yaml:"model"`
	Engine        EngineConfig         `yaml:"engine"`
	Memory        MemoryConfig         `yaml:"memory"`
	Retrieval     RetrievalConfig      `yaml:"retrieval"`
	Feedback      FeedbackConfig       `yaml:"feedback"`
	Server        ServerConfig         `yaml:"server"`
	Logging       LoggingConfig        `yaml:"logging"`
	Observability observability.Config `yaml:"observability"`
}

func (c *Config) SetDefaults() {
	c.Model.SetDefaults()
	c.Engine.SetDefaults()
	c.Memory.SetDefaults()
	c.Retrieval.SetDefaults()
	c.Feedback.SetDefaults()
	c.Server.SetDefaults()
	c.Logging.SetDefaults()
}

func (c *Config) Validate() error {
	if err := c.Model.Validate(); err != nil {
		return err
	}
	if err := c.Engine.Validate(); err != nil {
		return err
	}
	if err := c.Memory.Validate(); err != nil {
		return err
	}
	return nil
}

// Load reads the config file (optional), applies env overrides, defaults
// and validation. An empty path yields an env-and-defaults config.
func Load(path string) (*Config, error) {
	cfg := &Config{}

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
		expanded := expandEnvVars(string(data))
		if err := yaml.Unmarshal([]byte(expanded), cfg); err != nil {
			return nil, fmt.Errorf("failed to parse config file: %w", err)
		}
	}

	cfg.applyEnvOverrides()
	cfg.SetDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// applyEnvOverrides maps flat environment variables onto config fields.
// Env always wins over the YAML file.
func (c *Config) applyEnvOverrides() {
	setString := func(key string, dst *string) {
		if v := os.Getenv(key); v != "" {
			*dst = v
		}
	}
	setInt := func(key string, dst *int) {
		if v := os.Getenv(key); v != "" {
			if n, err := strconv.Atoi(v); err == nil {
				*dst = n
			}
		}
	}
	setFloat := func(key string, dst *float64) {
		if v := os.Getenv(key); v != "" {
			if f, err := strconv.ParseFloat(v, 64); err == nil {
				*dst = f
			}
		}
	}

	setString("MODEL_NAME", &c.Model.Name)
	setString("GEMINI_API_KEY", &c.Model.APIKey)
	setInt("MAX_OUTPUT_TOKENS", &c.Model.MaxOutputTokens)
	setFloat("TEMPERATURE", &c.Model.Temperature)

	setFloat("CONFIDENCE_MIN", &c.Engine.ConfidenceMin)
	setInt("MAX_ROUTING_RETRIES", &c.Engine.MaxRoutingRetries)
	setFloat("QUALITY_MIN", &c.Engine.QualityMin)
	setInt("MAX_QUALITY_RETRIES", &c.Engine.MaxQualityRetries)
	setInt("CONTEXT_WINDOW", &c.Engine.ContextWindow)

	setString("STORE_PATH", &c.Memory.StorePath)
	setInt("SESSION_CACHE_MAX", &c.Memory.SessionCacheMax)
	setInt("SUMMARIZE_THRESHOLD", &c.Memory.SummarizeThreshold)
	setInt("SUMMARIZE_KEEP_RECENT", &c.Memory.SummarizeKeepRecent)
	setInt("RETENTION_DAYS", &c.Memory.RetentionDays)

	setString("CORPUS_PATH", &c.Retrieval.CorpusPath)
	setInt("RETRIEVAL_TOP_K", &c.Retrieval.TopK)
	setString("EMBEDDER_PROVIDER", &c.Retrieval.Embedder.Provider)
	setString("EMBEDDER_MODEL", &c.Retrieval.Embedder.Model)
	setString("EMBEDDER_BASE_URL", &c.Retrieval.Embedder.BaseURL)

	setString("FEEDBACK_STORE_PATH", &c.Feedback.StorePath)

	setString("SERVER_HOST", &c.Server.Host)
	setInt("SERVER_PORT", &c.Server.Port)

	setString("LOG_LEVEL", &c.Logging.Level)
}
