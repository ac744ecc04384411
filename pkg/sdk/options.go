package cardex

import (
	"context"

	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"

	"github.com/kailas-cloud/cardex/internal/domain"
	"github.com/kailas-cloud/cardex/internal/transport/gemini"
	"github.com/kailas-cloud/cardex/internal/transport/hashing"
	"github.com/kailas-cloud/cardex/internal/transport/onnx"
	"github.com/kailas-cloud/cardex/internal/transport/openai"
)

// Option configures the Client.
type Option interface {
	apply(*clientConfig)
}

// optionFunc adapts a function to the Option interface.
type optionFunc func(*clientConfig)

func (f optionFunc) apply(c *clientConfig) { f(c) }

const (
	backendRedis   = "redis"
	backendValkey  = "valkey"
	backendQdrant  = "qdrant"
	backendChromem = "chromem"
)

type clientConfig struct {
	backend    string
	addrs      []string
	password   string
	standalone bool

	qdrantHost   string
	qdrantPort   int
	qdrantAPIKey string
	qdrantTLS    bool

	chromemPath     string
	chromemCompress bool

	collection      string
	keyPrefix       string
	hnswM           int
	hnswEFConstruct int

	provider   string
	modelName  string
	load       func(ctx context.Context) (domain.Model, error)
	dimensions int

	policy     Policy
	logger     *zap.Logger
	metricsReg prometheus.Registerer
}

// WithValkey stores cards in a valkey-search server.
func WithValkey(addr, password string, seeds ...string) Option {
	return optionFunc(func(c *clientConfig) {
		c.backend = backendValkey
		c.addrs = append([]string{addr}, seeds...)
		c.password = password
	})
}

// WithRedis stores cards in a Redis 8 server with the search module.
// Seeds are further initial addresses of the same deployment.
func WithRedis(addr, password string, seeds ...string) Option {
	return optionFunc(func(c *clientConfig) {
		c.backend = backendRedis
		c.addrs = append([]string{addr}, seeds...)
		c.password = password
	})
}

// WithStandalone disables cluster topology discovery.
// Use for standalone Valkey/Redis instances (not managed by cluster operator).
func WithStandalone() Option {
	return optionFunc(func(c *clientConfig) {
		c.standalone = true
	})
}

// WithQdrant stores cards in a Qdrant collection over gRPC (default port 6334).
func WithQdrant(host string, port int, apiKey string, useTLS bool) Option {
	return optionFunc(func(c *clientConfig) {
		c.backend = backendQdrant
		c.qdrantHost = host
		c.qdrantPort = port
		c.qdrantAPIKey = apiKey
		c.qdrantTLS = useTLS
	})
}

// WithChromem stores cards in an embedded chromem-go database. An empty path
// keeps everything in memory.
func WithChromem(path string, compress bool) Option {
	return optionFunc(func(c *clientConfig) {
		c.backend = backendChromem
		c.chromemPath = path
		c.chromemCompress = compress
	})
}

// WithCollection overrides the collection name. Default: content_collection.
func WithCollection(name string) Option {
	return optionFunc(func(c *clientConfig) {
		c.collection = name
	})
}

// WithKeyPrefix sets the Redis/Valkey key prefix. Default: "cardex:".
func WithKeyPrefix(prefix string) Option {
	return optionFunc(func(c *clientConfig) {
		c.keyPrefix = prefix
	})
}

// WithHNSW configures HNSW index parameters for Redis/Valkey.
// Defaults: M=16, EFConstruct=200.
func WithHNSW(m, efConstruct int) Option {
	return optionFunc(func(c *clientConfig) {
		c.hnswM = m
		c.hnswEFConstruct = efConstruct
	})
}

// WithVectorDimensions fixes the vector length. When unset, Redis, Valkey and
// Qdrant load the model during New to learn it.
func WithVectorDimensions(dim int) Option {
	return optionFunc(func(c *clientConfig) {
		c.dimensions = dim
	})
}

// WithONNX runs a local sentence-transformer model through ONNX Runtime.
// libraryPath may be empty to use the platform default.
func WithONNX(modelPath, tokenizerPath string, dimensions int, libraryPath ...string) Option {
	return optionFunc(func(c *clientConfig) {
		cfg := onnx.Config{
			ModelPath:     modelPath,
			TokenizerPath: tokenizerPath,
			Dimensions:    dimensions,
		}
		if len(libraryPath) > 0 {
			cfg.LibraryPath = libraryPath[0]
		}
		c.provider = "onnx"
		c.modelName = modelPath
		c.dimensions = dimensions
		c.load = func(ctx context.Context) (domain.Model, error) {
			cfg.Logger = c.logger
			return onnx.Load(cfg)(ctx)
		}
	})
}

// WithOpenAI embeds through an OpenAI-compatible API. baseURL may be empty.
func WithOpenAI(apiKey, model, baseURL string) Option {
	return optionFunc(func(c *clientConfig) {
		c.provider = "openai"
		c.modelName = model
		c.load = func(ctx context.Context) (domain.Model, error) {
			return openai.Load(&openai.Config{
				APIKey:     apiKey,
				BaseURL:    baseURL,
				Model:      model,
				Dimensions: c.dimensions,
				Provider:   "openai",
				Logger:     c.logger,
			})(ctx)
		}
	})
}

// WithGemini embeds through the Gemini API.
func WithGemini(apiKey, model string) Option {
	return optionFunc(func(c *clientConfig) {
		c.provider = "gemini"
		c.modelName = model
		c.load = func(ctx context.Context) (domain.Model, error) {
			return gemini.Load(&gemini.Config{
				APIKey:     apiKey,
				Model:      model,
				Dimensions: c.dimensions,
				TaskType:   "SEMANTIC_SIMILARITY",
				Logger:     c.logger,
			})(ctx)
		}
	})
}

// WithHashModel uses a deterministic bag-of-words model. Meant for
// development and tests; it needs no external runtime.
func WithHashModel(dimensions int) Option {
	return optionFunc(func(c *clientConfig) {
		if dimensions <= 0 {
			dimensions = hashing.DefaultDimensions
		}
		c.provider = "hashing"
		c.modelName = "hashing"
		c.dimensions = dimensions
		c.load = hashing.Load(dimensions)
	})
}

// WithModel plugs in a custom model. load runs once, on first use.
func WithModel(name string, load func(ctx context.Context) (Model, error)) Option {
	return optionFunc(func(c *clientConfig) {
		c.provider = "custom"
		c.modelName = name
		c.load = load
	})
}

// WithPolicy replaces DefaultPolicy.
func WithPolicy(p Policy) Option {
	return optionFunc(func(c *clientConfig) {
		c.policy = p
	})
}

// WithLogger enables structured logging for SDK operations.
// Pass nil to disable (default).
func WithLogger(l *zap.Logger) Option {
	return optionFunc(func(c *clientConfig) {
		c.logger = l
	})
}

// WithPrometheus registers SDK metrics (operation counts and durations)
// on the given registerer. Pass nil to disable (default).
func WithPrometheus(reg prometheus.Registerer) Option {
	return optionFunc(func(c *clientConfig) {
		c.metricsReg = reg
	})
}
