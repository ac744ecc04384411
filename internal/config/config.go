package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"runtime"
	"strings"

	"gopkg.in/yaml.v3"
)

// Embedding providers.
const (
	ProviderONNX    = "onnx"
	ProviderOpenAI  = "openai"
	ProviderGemini  = "gemini"
	ProviderHashing = "hashing"
)

// Index backends.
const (
	BackendRedis   = "redis"
	BackendValkey  = "valkey"
	BackendQdrant  = "qdrant"
	BackendChromem = "chromem"
	BackendNone    = "none"
)

// Config holds the cardex configuration.
type Config struct {
	HTTP      HTTPConfig      `yaml:"http"`
	Auth      AuthConfig      `yaml:"auth"`
	Embedding EmbeddingConfig `yaml:"embedding"`
	Index     IndexConfig     `yaml:"index"`
	Retrieval RetrievalConfig `yaml:"retrieval"`
	Logging   LoggingConfig   `yaml:"logging"`
}

// LoggingConfig holds logging settings.
type LoggingConfig struct {
	Level string `yaml:"level"` // debug, info, warn, error (default: determined by env)
}

// AuthConfig holds API authentication settings.
type AuthConfig struct {
	JWTSecret     string `yaml:"jwt_secret"`
	AllowedOrigin string `yaml:"allowed_origin"` // empty disables CORS headers
}

// HTTPConfig holds HTTP server settings.
type HTTPConfig struct {
	Port            int `yaml:"port"`
	ReadTimeoutSec  int `yaml:"read_timeout_sec"`
	WriteTimeoutSec int `yaml:"write_timeout_sec"`
	ShutdownSec     int `yaml:"shutdown_timeout_sec"`
}

// EmbeddingConfig selects and configures the embedding model.
type EmbeddingConfig struct {
	Provider   string     `yaml:"provider"` // onnx, openai, gemini, hashing (default: hashing)
	Model      string     `yaml:"model"`
	Dimensions int        `yaml:"dimensions"` // 0 = learned from the model
	APIKey     string     `yaml:"api_key"`
	BaseURL    string     `yaml:"base_url"`
	User       string     `yaml:"user"`
	TaskType   string     `yaml:"task_type"` // gemini only
	ONNX       ONNXConfig `yaml:"onnx"`
}

// ONNXConfig holds local model files for the onnx provider.
type ONNXConfig struct {
	ModelPath      string `yaml:"model_path"`
	TokenizerPath  string `yaml:"tokenizer_path"`
	LibraryPath    string `yaml:"library_path"`
	MaxTokens      int    `yaml:"max_tokens"`
	OutputName     string `yaml:"output_name"`
	NoTokenTypeIDs bool   `yaml:"no_token_type_ids"`
}

// IndexConfig holds vector index settings.
type IndexConfig struct {
	Backend          string        `yaml:"backend"` // redis, valkey, qdrant, chromem, none (default: chromem)
	Addrs            []string      `yaml:"addrs"`
	Password         string        `yaml:"password"`
	Standalone       bool          `yaml:"standalone"` // skip cluster topology discovery
	Collection       string        `yaml:"collection"`
	KeyPrefix        string        `yaml:"key_prefix"`
	HNSWM            int           `yaml:"hnsw_m"`
	HNSWEFConstruct  int           `yaml:"hnsw_ef_construction"`
	ReadinessTimeout int           `yaml:"readiness_timeout_sec"`
	Qdrant           QdrantConfig  `yaml:"qdrant"`
	Chromem          ChromemConfig `yaml:"chromem"`
}

// QdrantConfig holds Qdrant connection settings.
type QdrantConfig struct {
	Host   string `yaml:"host"`
	Port   int    `yaml:"port"`
	APIKey string `yaml:"api_key"`
	UseTLS bool   `yaml:"use_tls"`
}

// ChromemConfig holds embedded store settings. An empty path keeps data in memory.
type ChromemConfig struct {
	Path     string `yaml:"path"`
	Compress bool   `yaml:"compress"`
}

// RetrievalConfig holds the retrieval policy.
type RetrievalConfig struct {
	SkipIfUnconfigured *bool  `yaml:"skip_if_unconfigured"` // default: true
	OnStorageError     string `yaml:"on_storage_error"`     // propagate (default), suppress
}

// SkipUnconfigured resolves the skip flag with its default.
func (r RetrievalConfig) SkipUnconfigured() bool {
	return r.SkipIfUnconfigured == nil || *r.SkipIfUnconfigured
}

// Load reads configuration from a YAML file by environment name (local, dev, prod).
func Load(env string) (Config, error) {
	return LoadFile(findConfigPath(env))
}

// LoadFile reads configuration from an explicit path.
func LoadFile(configPath string) (Config, error) {
	data, err := os.ReadFile(filepath.Clean(configPath))
	if err != nil {
		return Config{}, fmt.Errorf("failed to read config %s: %w", configPath, err)
	}

	// Substitute env variables of the form ${VAR}
	data = expandEnvVars(data)

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return Config{}, fmt.Errorf("failed to parse config: %w", err)
	}

	cfg.ApplyDefaults()

	if err := cfg.Validate(); err != nil {
		return Config{}, fmt.Errorf("invalid config: %w", err)
	}

	return cfg, nil
}

// GetEnv returns the current environment from the ENV variable, defaulting to "local".
func GetEnv() string {
	if env := os.Getenv("ENV"); env != "" {
		return env
	}
	return "local"
}

// ApplyDefaults fills empty fields with default values.
func (c *Config) ApplyDefaults() {
	if c.HTTP.ReadTimeoutSec <= 0 {
		c.HTTP.ReadTimeoutSec = 10
	}
	if c.HTTP.WriteTimeoutSec <= 0 {
		c.HTTP.WriteTimeoutSec = 30
	}
	if c.HTTP.ShutdownSec <= 0 {
		c.HTTP.ShutdownSec = 10
	}
	if c.Embedding.Provider == "" {
		c.Embedding.Provider = ProviderHashing
	}
	if c.Index.Backend == "" {
		c.Index.Backend = BackendChromem
	}
	if c.Index.Collection == "" {
		c.Index.Collection = "content_collection"
	}
	if c.Index.KeyPrefix == "" {
		c.Index.KeyPrefix = "cardex:"
	}
	if c.Index.HNSWM <= 0 {
		c.Index.HNSWM = 16
	}
	if c.Index.HNSWEFConstruct <= 0 {
		c.Index.HNSWEFConstruct = 200
	}
	if c.Index.ReadinessTimeout <= 0 {
		c.Index.ReadinessTimeout = 10
	}
	if c.Index.Qdrant.Port <= 0 {
		c.Index.Qdrant.Port = 6334
	}
	if c.Retrieval.OnStorageError == "" {
		c.Retrieval.OnStorageError = "propagate"
	}
}

// Validate checks the configuration for correctness.
func (c *Config) Validate() error {
	if c.HTTP.Port <= 0 || c.HTTP.Port > 65535 {
		return fmt.Errorf("http.port must be between 1 and 65535, got %d", c.HTTP.Port)
	}
	if c.Embedding.Dimensions < 0 {
		return fmt.Errorf("embedding.dimensions must not be negative, got %d", c.Embedding.Dimensions)
	}
	if err := c.validateEmbedding(); err != nil {
		return err
	}
	if err := c.validateIndex(); err != nil {
		return err
	}
	switch c.Retrieval.OnStorageError {
	case "propagate", "suppress":
		// ok
	default:
		return fmt.Errorf(
			"retrieval.on_storage_error must be \"propagate\" or \"suppress\", got %q",
			c.Retrieval.OnStorageError,
		)
	}
	return nil
}

func (c *Config) validateEmbedding() error {
	e := c.Embedding
	switch e.Provider {
	case ProviderHashing:
		return nil
	case ProviderOpenAI, ProviderGemini:
		if e.Model == "" {
			return fmt.Errorf("embedding.model is required for provider %q", e.Provider)
		}
		if e.APIKey == "" {
			return fmt.Errorf("embedding.api_key is required for provider %q", e.Provider)
		}
		return nil
	case ProviderONNX:
		if e.ONNX.ModelPath == "" || e.ONNX.TokenizerPath == "" {
			return errors.New("embedding.onnx.model_path and embedding.onnx.tokenizer_path are required")
		}
		if e.Dimensions <= 0 {
			return errors.New("embedding.dimensions is required for provider \"onnx\"")
		}
		return nil
	default:
		return fmt.Errorf("embedding.provider must be one of onnx, openai, gemini, hashing, got %q", e.Provider)
	}
}

func (c *Config) validateIndex() error {
	switch c.Index.Backend {
	case BackendRedis, BackendValkey:
		if len(c.Index.Addrs) == 0 {
			return fmt.Errorf("index.addrs is required for backend %q", c.Index.Backend)
		}
	case BackendQdrant:
		if c.Index.Qdrant.Host == "" {
			return errors.New("index.qdrant.host is required for backend \"qdrant\"")
		}
	case BackendChromem, BackendNone:
		// ok
	default:
		return fmt.Errorf(
			"index.backend must be one of redis, valkey, qdrant, chromem, none, got %q", c.Index.Backend,
		)
	}
	return nil
}

// findConfigPath locates the config file.
func findConfigPath(env string) string {
	filename := fmt.Sprintf("%s.yaml", env)

	// 1. Check ./config/
	if path := filepath.Join("config", filename); fileExists(path) {
		return path
	}

	// 2. Check relative to the source file
	_, b, _, _ := runtime.Caller(0)
	projectRoot := filepath.Dir(filepath.Dir(filepath.Dir(b))) // internal/config -> project root
	if path := filepath.Join(projectRoot, "config", filename); fileExists(path) {
		return path
	}

	// 3. Fallback to ./config/
	return filepath.Join("config", filename)
}

func fileExists(path string) bool {
	_, err := os.Stat(path)
	return err == nil
}

// expandEnvVars replaces ${VAR} and ${VAR:-default} with environment variable values.
var envVarRegex = regexp.MustCompile(`\$\{([^}]+)\}`)

func expandEnvVars(data []byte) []byte {
	return envVarRegex.ReplaceAllFunc(data, func(match []byte) []byte {
		expr := string(match[2 : len(match)-1]) // strip ${ and }
		varName, defaultVal, hasDefault := strings.Cut(expr, ":-")
		val := os.Getenv(varName)
		if val == "" && hasDefault {
			val = defaultVal
		}
		return []byte(val)
	})
}
