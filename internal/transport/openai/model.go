package openai

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	openai "github.com/sashabaranov/go-openai"
	"go.uber.org/zap"

	"github.com/kailas-cloud/cardex/internal/domain"
	"github.com/kailas-cloud/cardex/internal/metrics"
)

const sampleText = "dimension check"

// Model is an embedding model served by an OpenAI-compatible API (OpenAI, Nebius, vLLM, Ollama).
// The server pools tokens, so Encode returns a single row.
type Model struct {
	client     *openai.Client
	model      openai.EmbeddingModel
	dimensions int
	user       string
	provider   string
	logger     *zap.Logger
}

// Config holds the embedding provider settings.
type Config struct {
	APIKey  string
	BaseURL string
	Model   string
	// Dimensions requests a truncated vector when positive; otherwise it is
	// learned from a sample request at load time.
	Dimensions int
	User       string
	Provider   string
	Logger     *zap.Logger
}

// NewModel creates an OpenAI-compatible embedding model without contacting the API.
func NewModel(cfg *Config) *Model {
	clientCfg := openai.DefaultConfig(cfg.APIKey)
	if cfg.BaseURL != "" {
		clientCfg.BaseURL = cfg.BaseURL
	}
	provider := cfg.Provider
	if provider == "" {
		provider = "openai"
	}
	logger := cfg.Logger
	if logger == nil {
		logger = zap.NewNop()
	}

	return &Model{
		client:     openai.NewClientWithConfig(clientCfg),
		model:      openai.EmbeddingModel(cfg.Model),
		dimensions: cfg.Dimensions,
		user:       cfg.User,
		provider:   provider,
		logger:     logger,
	}
}

// Load returns a load function that creates the model and verifies it with one
// embedding request, which also fixes the dimension when it is not configured.
func Load(cfg *Config) func(ctx context.Context) (domain.Model, error) {
	return func(ctx context.Context) (domain.Model, error) {
		m := NewModel(cfg)
		vec, err := m.embed(ctx, sampleText)
		if err != nil {
			return nil, err
		}
		if m.dimensions > 0 && len(vec) != m.dimensions {
			return nil, fmt.Errorf("%w: provider returned %d values, configured %d",
				domain.ErrDimensionMismatch, len(vec), m.dimensions)
		}
		m.dimensions = len(vec)
		m.logger.Info("Embedding provider ready",
			zap.String("provider", m.provider),
			zap.String("model", string(m.model)),
			zap.Int("dimensions", m.dimensions),
		)
		return m, nil
	}
}

// Encode implements domain.Model.
func (m *Model) Encode(ctx context.Context, text string) ([][]float32, error) {
	vec, err := m.embed(ctx, text)
	if err != nil {
		return nil, err
	}
	return [][]float32{vec}, nil
}

// Dimensions implements domain.Model.
func (m *Model) Dimensions() int { return m.dimensions }

// Name implements domain.Model.
func (m *Model) Name() string { return string(m.model) }

// Close implements domain.Model. The HTTP client holds no resources.
func (m *Model) Close() error { return nil }

// HealthCheck verifies API availability via ListModels (free endpoint).
func (m *Model) HealthCheck(ctx context.Context) error {
	if _, err := m.client.ListModels(ctx); err != nil {
		return fmt.Errorf("list models: %w", err)
	}
	return nil
}

func (m *Model) embed(ctx context.Context, text string) ([]float32, error) {
	req := openai.EmbeddingRequest{
		Input:          []string{text},
		Model:          m.model,
		EncodingFormat: openai.EmbeddingEncodingFormatFloat,
		User:           m.user,
	}
	if m.dimensions > 0 {
		req.Dimensions = m.dimensions
	}

	resp, err := m.client.CreateEmbeddings(ctx, req)
	if err != nil {
		return nil, parseAPIError(err)
	}
	if len(resp.Data) == 0 || len(resp.Data[0].Embedding) == 0 {
		return nil, fmt.Errorf("empty embedding response: %w", domain.ErrEmbeddingProviderError)
	}

	if resp.Usage.TotalTokens > 0 {
		metrics.EmbeddingTokensTotal.WithLabelValues(m.provider, string(m.model), "prompt").
			Add(float64(resp.Usage.PromptTokens))
		metrics.EmbeddingTokensTotal.WithLabelValues(m.provider, string(m.model), "total").
			Add(float64(resp.Usage.TotalTokens))
	}

	return resp.Data[0].Embedding, nil
}

// parseAPIError extracts a human-readable error from the API response.
// All errors are wrapped with domain.ErrEmbeddingProviderError for correct 502 mapping.
func parseAPIError(err error) error {
	wrap := domain.ErrEmbeddingProviderError

	var reqErr *openai.RequestError
	if errors.As(err, &reqErr) {
		detail := extractDetail(reqErr.Body)
		if detail != "" {
			return fmt.Errorf("embedding API error %d: %s: %w",
				reqErr.HTTPStatusCode, detail, wrap)
		}
		return fmt.Errorf("embedding API error %d: %s: %w",
			reqErr.HTTPStatusCode, string(reqErr.Body), wrap)
	}

	var apiErr *openai.APIError
	if errors.As(err, &apiErr) {
		return fmt.Errorf("embedding API error %d: %s: %w",
			apiErr.HTTPStatusCode, apiErr.Message, wrap)
	}

	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return fmt.Errorf("embedding request: %w", err)
	}
	return fmt.Errorf("embedding request failed: %w: %w", wrap, err)
}

// extractDetail extracts the "detail" field from a JSON error body (Nebius error format).
func extractDetail(body []byte) string {
	var parsed struct {
		Detail string `json:"detail"`
	}
	if json.Unmarshal(body, &parsed) == nil && parsed.Detail != "" {
		return parsed.Detail
	}
	return ""
}
