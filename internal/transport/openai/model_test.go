package openai

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"os"
	"sync/atomic"
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"go.uber.org/zap"

	"github.com/kailas-cloud/cardex/internal/domain"
	"github.com/kailas-cloud/cardex/internal/metrics"
)

func TestMain(m *testing.M) {
	metrics.RegisterEmbeddingMetrics()
	os.Exit(m.Run())
}

type embeddingData struct {
	Object    string    `json:"object"`
	Embedding []float32 `json:"embedding"`
	Index     int       `json:"index"`
}

// openaiEmbeddingResponse mirrors the OpenAI-compatible API embedding response.
type openaiEmbeddingResponse struct {
	Object string          `json:"object"`
	Data   []embeddingData `json:"data"`
	Model  string          `json:"model"`
	Usage  struct {
		PromptTokens int `json:"prompt_tokens"`
		TotalTokens  int `json:"total_tokens"`
	} `json:"usage"`
}

func embeddingServer(t *testing.T, vec []float32, tokens int, requests *atomic.Int32) *httptest.Server {
	t.Helper()
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if requests != nil {
			requests.Add(1)
		}
		if r.URL.Path != "/embeddings" {
			t.Errorf("unexpected path: %s", r.URL.Path)
		}
		if r.Header.Get("Authorization") != "Bearer test-key" {
			t.Errorf("unexpected auth header: %s", r.Header.Get("Authorization"))
		}

		resp := openaiEmbeddingResponse{Object: "list", Model: "test-model"}
		resp.Data = append(resp.Data, embeddingData{Object: "embedding", Embedding: vec})
		resp.Usage.PromptTokens = tokens
		resp.Usage.TotalTokens = tokens

		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(resp)
	}))
	t.Cleanup(server.Close)
	return server
}

func testConfig(url string, dims int) *Config {
	return &Config{
		APIKey:     "test-key",
		BaseURL:    url,
		Model:      "test-model",
		Dimensions: dims,
		Provider:   "test",
		Logger:     zap.NewNop(),
	}
}

func TestModel_Encode(t *testing.T) {
	expectedVec := []float32{0.1, 0.2, 0.3, 0.4}
	server := embeddingServer(t, expectedVec, 10, nil)

	m := NewModel(testConfig(server.URL, 4))
	rows, err := m.Encode(context.Background(), "hello world")
	if err != nil {
		t.Fatalf("Encode failed: %v", err)
	}

	if len(rows) != 1 {
		t.Fatalf("expected a single pooled row, got %d", len(rows))
	}
	for i, v := range rows[0] {
		if v != expectedVec[i] {
			t.Errorf("vec[%d] = %f, expected %f", i, v, expectedVec[i])
		}
	}
}

func TestModel_RecordsTokens(t *testing.T) {
	server := embeddingServer(t, []float32{0.1, 0.2}, 42, nil)
	counter := metrics.EmbeddingTokensTotal.WithLabelValues("test", "test-model", "total")
	before := testutil.ToFloat64(counter)

	m := NewModel(testConfig(server.URL, 0))
	if _, err := m.Encode(context.Background(), "hello"); err != nil {
		t.Fatalf("Encode failed: %v", err)
	}

	if got := testutil.ToFloat64(counter) - before; got != 42 {
		t.Errorf("total tokens delta = %f, expected 42", got)
	}
}

func TestLoad_LearnsDimensions(t *testing.T) {
	var requests atomic.Int32
	server := embeddingServer(t, []float32{0.1, 0.2, 0.3}, 3, &requests)

	model, err := Load(testConfig(server.URL, 0))(context.Background())
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if model.Dimensions() != 3 {
		t.Errorf("Dimensions() = %d, expected 3", model.Dimensions())
	}
	if model.Name() != "test-model" {
		t.Errorf("Name() = %s", model.Name())
	}
	if requests.Load() != 1 {
		t.Errorf("expected one sample request, got %d", requests.Load())
	}
}

func TestLoad_DimensionMismatch(t *testing.T) {
	server := embeddingServer(t, []float32{0.1, 0.2}, 2, nil)

	_, err := Load(testConfig(server.URL, 8))(context.Background())
	if !errors.Is(err, domain.ErrDimensionMismatch) {
		t.Fatalf("expected ErrDimensionMismatch, got %v", err)
	}
}

func TestModel_EmptyResponse(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(openaiEmbeddingResponse{Object: "list"})
	}))
	defer server.Close()

	_, err := NewModel(testConfig(server.URL, 0)).Encode(context.Background(), "hello")
	if !errors.Is(err, domain.ErrEmbeddingProviderError) {
		t.Fatalf("expected ErrEmbeddingProviderError, got %v", err)
	}
}

func TestModel_APIError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusTooManyRequests)
		json.NewEncoder(w).Encode(map[string]any{
			"error": map[string]any{
				"message": "rate limit exceeded",
				"type":    "rate_limit_error",
			},
		})
	}))
	defer server.Close()

	_, err := NewModel(testConfig(server.URL, 0)).Encode(context.Background(), "hello")
	if err == nil {
		t.Fatal("expected error for 429 response")
	}
	if !errors.Is(err, domain.ErrEmbeddingProviderError) {
		t.Errorf("expected ErrEmbeddingProviderError, got %v", err)
	}
}

func TestExtractDetail(t *testing.T) {
	if got := extractDetail([]byte(`{"detail":"model not found"}`)); got != "model not found" {
		t.Errorf("extractDetail() = %q", got)
	}
	if got := extractDetail([]byte(`not json`)); got != "" {
		t.Errorf("extractDetail() = %q, expected empty", got)
	}
}
