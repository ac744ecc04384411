package gemini

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"
	"google.golang.org/genai"

	"github.com/kailas-cloud/cardex/internal/domain"
)

const sampleText = "dimension check"

// Config holds the Gemini embedding settings.
type Config struct {
	APIKey string
	// BaseURL overrides the API endpoint (tests, proxies).
	BaseURL string
	Model   string
	// Dimensions requests a truncated vector when positive.
	Dimensions int
	// TaskType is passed through, e.g. "SEMANTIC_SIMILARITY".
	TaskType string
	Logger   *zap.Logger
}

// Model is an embedding model served by the Gemini API. The server pools
// tokens, so Encode returns a single row.
type Model struct {
	client     *genai.Client
	model      string
	dimensions int
	taskType   string
	logger     *zap.Logger
}

// Load returns a load function that connects to Gemini and verifies the model
// with one embedding request, which also fixes the dimension.
func Load(cfg *Config) func(ctx context.Context) (domain.Model, error) {
	return func(ctx context.Context) (domain.Model, error) {
		m, err := NewModel(ctx, cfg)
		if err != nil {
			return nil, err
		}
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
			zap.String("provider", "gemini"),
			zap.String("model", m.model),
			zap.Int("dimensions", m.dimensions),
		)
		return m, nil
	}
}

// NewModel creates a Gemini client without issuing a request.
func NewModel(ctx context.Context, cfg *Config) (*Model, error) {
	if cfg.Model == "" {
		return nil, errors.New("gemini: model is required")
	}
	cc := &genai.ClientConfig{
		APIKey:  cfg.APIKey,
		Backend: genai.BackendGeminiAPI,
	}
	if cfg.BaseURL != "" {
		cc.HTTPOptions = genai.HTTPOptions{BaseURL: cfg.BaseURL}
	}
	client, err := genai.NewClient(ctx, cc)
	if err != nil {
		return nil, fmt.Errorf("gemini: create client: %w", err)
	}

	logger := cfg.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Model{
		client:     client,
		model:      cfg.Model,
		dimensions: cfg.Dimensions,
		taskType:   cfg.TaskType,
		logger:     logger,
	}, nil
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
func (m *Model) Name() string { return m.model }

// Close implements domain.Model.
func (m *Model) Close() error { return nil }

func (m *Model) embed(ctx context.Context, text string) ([]float32, error) {
	cfg := &genai.EmbedContentConfig{TaskType: m.taskType}
	if m.dimensions > 0 {
		dims := int32(m.dimensions)
		cfg.OutputDimensionality = &dims
	}

	result, err := m.client.Models.EmbedContent(ctx, m.model, genai.Text(text), cfg)
	if err != nil {
		return nil, parseAPIError(err)
	}
	if len(result.Embeddings) == 0 || len(result.Embeddings[0].Values) == 0 {
		return nil, fmt.Errorf("empty embedding response: %w", domain.ErrEmbeddingProviderError)
	}
	return result.Embeddings[0].Values, nil
}

// parseAPIError wraps API failures with domain.ErrEmbeddingProviderError.
func parseAPIError(err error) error {
	var apiErr genai.APIError
	if errors.As(err, &apiErr) {
		return fmt.Errorf("embedding API error %d: %s: %w",
			apiErr.Code, apiErr.Message, domain.ErrEmbeddingProviderError)
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return fmt.Errorf("embedding request: %w", err)
	}
	return fmt.Errorf("embedding request failed: %w: %w", domain.ErrEmbeddingProviderError, err)
}
