package chi

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/kailas-cloud/cardex/internal/domain"
	healthuc "github.com/kailas-cloud/cardex/internal/usecase/health"
)

const maxBodyBytes = 1 << 20

// Error codes returned in the JSON error body.
const (
	codeBadRequest       = "bad_request"
	codeValidationFailed = "validation_failed"
	codeUnauthorized     = "unauthorized"
	codeForbidden        = "forbidden"
	codeUnavailable      = "index_unavailable"
	codeModelUnavailable = "model_unavailable"
	codeProviderError    = "embedding_provider_error"
	codeInternalError    = "internal_error"
)

// CardService is the retrieval use case behind the card routes.
type CardService interface {
	StoreCardEmbeddings(ctx context.Context, card domain.Card) error
	QueryBestMatch(ctx context.Context, query, ownerID string) (*domain.MatchResult, error)
}

// HealthChecker reports component health.
type HealthChecker interface {
	Check(ctx context.Context) healthuc.Report
}

// errorHandler tries to handle a domain error. Returns true if handled.
type errorHandler func(w http.ResponseWriter, err error, msg string) bool

// Server serves the card API.
type Server struct {
	cards         CardService
	health        HealthChecker
	logger        *zap.Logger
	errorHandlers []errorHandler
}

// NewServer creates an HTTP API server.
func NewServer(cards CardService, health HealthChecker, logger *zap.Logger) *Server {
	if logger == nil {
		logger = zap.NewNop()
	}
	s := &Server{cards: cards, health: health, logger: logger}
	s.errorHandlers = []errorHandler{
		sentinelHandler(domain.ErrInvalidCard, http.StatusBadRequest, codeValidationFailed),
		sentinelHandler(domain.ErrInvalidQuery, http.StatusBadRequest, codeValidationFailed),
		sentinelHandler(domain.ErrOwnerRequired, http.StatusUnauthorized, codeUnauthorized),
		sentinelHandler(domain.ErrModelLoad, http.StatusServiceUnavailable, codeModelUnavailable),
		sentinelHandler(domain.ErrEmbeddingProviderError, http.StatusBadGateway, codeProviderError),
		sentinelHandler(domain.ErrIndexUnavailable, http.StatusServiceUnavailable, codeUnavailable),
		sentinelHandler(domain.ErrIndexNotConfigured, http.StatusServiceUnavailable, codeUnavailable),
	}
	return s
}

// Routes mounts the API on r. auth guards the card routes; health and metrics stay open.
func (s *Server) Routes(r chi.Router, auth func(http.Handler) http.Handler) {
	r.Get("/health", s.HealthCheck)
	r.Handle("/metrics", promhttp.Handler())

	r.Route("/cards", func(r chi.Router) {
		if auth != nil {
			r.Use(auth)
		}
		r.Put("/{id}/embedding", s.StoreCardEmbedding)
		r.Get("/search", s.SearchCards)
	})
}

type storeCardRequest struct {
	Title       string `json:"title"`
	Description string `json:"description"`
	Type        string `json:"type"`
	Link        string `json:"link"`
}

type searchResponse struct {
	Match *domain.MatchResult `json:"match"`
}

type errorResponse struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// StoreCardEmbedding handles PUT /cards/{id}/embedding.
func (s *Server) StoreCardEmbedding(w http.ResponseWriter, r *http.Request) {
	var req storeCardRequest
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes)).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, codeBadRequest, "Invalid request body: "+err.Error())
		return
	}

	ownerID, _ := OwnerFromContext(r.Context())
	card := domain.Card{
		ID:          chi.URLParam(r, "id"),
		Title:       req.Title,
		Description: req.Description,
		Type:        req.Type,
		Link:        req.Link,
		OwnerID:     ownerID,
	}

	if err := s.cards.StoreCardEmbeddings(r.Context(), card); err != nil {
		s.handleDomainError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// SearchCards handles GET /cards/search?q=.
func (s *Server) SearchCards(w http.ResponseWriter, r *http.Request) {
	ownerID, ok := OwnerFromContext(r.Context())
	if !ok {
		writeError(w, http.StatusUnauthorized, codeUnauthorized, "no token provided")
		return
	}

	match, err := s.cards.QueryBestMatch(r.Context(), r.URL.Query().Get("q"), ownerID)
	if err != nil {
		s.handleDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, searchResponse{Match: match})
}

// HealthCheck handles GET /health.
func (s *Server) HealthCheck(w http.ResponseWriter, r *http.Request) {
	report := s.health.Check(r.Context())

	status := http.StatusOK
	if report.Status == healthuc.Unhealthy {
		status = http.StatusServiceUnavailable
	}
	writeJSON(w, status, report)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, code, message string) {
	writeJSON(w, status, errorResponse{Code: code, Message: message})
}

// safeDomainMessage returns a sentinel error message for the client without exposing internals.
func safeDomainMessage(err error) string {
	sentinels := []error{
		domain.ErrInvalidCard,
		domain.ErrInvalidQuery,
		domain.ErrOwnerRequired,
		domain.ErrModelLoad,
		domain.ErrEmbeddingProviderError,
		domain.ErrIndexUnavailable,
		domain.ErrIndexNotConfigured,
	}
	for _, s := range sentinels {
		if errors.Is(err, s) {
			return s.Error()
		}
	}
	return "internal error"
}

// validationMessage keeps the field detail of validation errors, which is safe to show.
func validationMessage(err error) string {
	if errors.Is(err, domain.ErrInvalidCard) || errors.Is(err, domain.ErrInvalidQuery) {
		return err.Error()
	}
	return safeDomainMessage(err)
}

// sentinelHandler returns an errorHandler that matches a single sentinel error.
func sentinelHandler(sentinel error, status int, code string) errorHandler {
	return func(w http.ResponseWriter, err error, msg string) bool {
		if !errors.Is(err, sentinel) {
			return false
		}
		writeError(w, status, code, msg)
		return true
	}
}

func (s *Server) handleDomainError(w http.ResponseWriter, err error) {
	s.logger.Warn("Domain error", zap.Error(err))
	msg := validationMessage(err)
	for _, h := range s.errorHandlers {
		if h(w, err, msg) {
			return
		}
	}
	s.logger.Error("Internal error", zap.Error(err))
	writeError(w, http.StatusInternalServerError, codeInternalError, "internal error")
}
