package retrieval

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/kailas-cloud/cardex/internal/domain"
	"github.com/kailas-cloud/cardex/internal/metrics"
)

const (
	opStore = "store"
	opQuery = "query"
)

var tracer = otel.Tracer("github.com/kailas-cloud/cardex/internal/usecase/retrieval")

// Service stores card embeddings and answers owner-scoped best-match queries.
type Service struct {
	embed  Embedder
	index  Index
	policy Policy
	logger *zap.Logger
}

// New creates a retrieval service. A nil index means no vector store is configured.
func New(embed Embedder, index Index, logger *zap.Logger) *Service {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Service{
		embed:  embed,
		index:  index,
		policy: DefaultPolicy(),
		logger: logger,
	}
}

// WithPolicy replaces the default policy.
func (s *Service) WithPolicy(p Policy) *Service {
	if p.OnStorageError == "" {
		p.OnStorageError = StorageErrorPropagate
	}
	s.policy = p
	return s
}

// Policy returns the active policy.
func (s *Service) Policy() Policy { return s.policy }

// Configured reports whether an index is attached.
func (s *Service) Configured() bool { return s.index != nil }

// StoreCardEmbeddings embeds the card's canonical text and upserts it under the card id.
func (s *Service) StoreCardEmbeddings(ctx context.Context, card domain.Card) (err error) {
	ctx, span := tracer.Start(ctx, "retrieval.StoreCardEmbeddings",
		trace.WithAttributes(
			attribute.String("card.id", card.ID),
			attribute.String("card.owner_id", card.OwnerID),
		))
	start := time.Now()
	outcome := "stored"
	defer func() {
		if err != nil {
			outcome = "error"
		}
		finish(span, opStore, outcome, start, err)
	}()

	if err = card.Validate(); err != nil {
		return err
	}

	if s.index == nil {
		if !s.policy.SkipIfUnconfigured {
			return domain.ErrIndexNotConfigured
		}
		s.logger.Debug("Vector index not configured, skipping card embedding",
			zap.String("card_id", card.ID))
		outcome = "skipped"
		return nil
	}

	text := card.CanonicalText()
	vec, err := s.embed.Embed(ctx, text)
	if err != nil {
		return fmt.Errorf("embed card %s: %w", card.ID, err)
	}

	if serr := s.persist(ctx, domain.NewIndexEntry(card, text, vec)); serr != nil {
		if s.policy.OnStorageError == StorageErrorSuppress && !isContextErr(ctx, serr) {
			s.logger.Warn("Failed to store card embedding, suppressed by policy",
				zap.String("card_id", card.ID),
				zap.Error(serr),
			)
			span.RecordError(serr)
			outcome = "suppressed"
			return nil
		}
		return fmt.Errorf("store card %s: %w", card.ID, serr)
	}

	s.logger.Debug("Card embedding stored",
		zap.String("card_id", card.ID),
		zap.Int("dimensions", len(vec)),
	)
	return nil
}

func (s *Service) persist(ctx context.Context, entry domain.IndexEntry) error {
	if err := s.ensureCollection(ctx); err != nil {
		return err
	}
	err := s.index.Upsert(ctx, entry)
	observeIndex("upsert", err)
	return err
}

// QueryBestMatch returns the owner's card closest to the query, or nil when
// there is none. Index failures on this path resolve to nil.
func (s *Service) QueryBestMatch(ctx context.Context, query, ownerID string) (match *domain.MatchResult, err error) {
	ctx, span := tracer.Start(ctx, "retrieval.QueryBestMatch",
		trace.WithAttributes(attribute.String("owner_id", ownerID)))
	start := time.Now()
	defer func() {
		outcome := "match"
		switch {
		case err != nil:
			outcome = "error"
		case match == nil:
			outcome = "no_match"
		}
		finish(span, opQuery, outcome, start, err)
	}()

	if strings.TrimSpace(query) == "" {
		return nil, fmt.Errorf("%w: query text is empty", domain.ErrInvalidQuery)
	}
	if strings.TrimSpace(ownerID) == "" {
		return nil, domain.ErrOwnerRequired
	}

	if s.index == nil {
		if !s.policy.SkipIfUnconfigured {
			return nil, domain.ErrIndexNotConfigured
		}
		s.logger.Debug("Vector index not configured, no match")
		return nil, nil
	}

	vec, err := s.embed.Embed(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("embed query: %w", err)
	}

	if err := s.ensureCollection(ctx); err != nil {
		if isContextErr(ctx, err) {
			return nil, err
		}
		s.logger.Warn("Collection unavailable, returning no match", zap.Error(err))
		span.RecordError(err)
		return nil, nil
	}

	neighbors, err := s.index.QueryNearest(ctx, vec, ownerID, 1)
	observeIndex("query", err)
	if err != nil {
		if isContextErr(ctx, err) {
			return nil, err
		}
		s.logger.Warn("Nearest-neighbour query failed, returning no match", zap.Error(err))
		span.RecordError(err)
		return nil, nil
	}
	if len(neighbors) == 0 {
		return nil, nil
	}

	best := neighbors[0]
	span.SetAttributes(
		attribute.String("match.id", best.ID),
		attribute.Float64("match.distance", best.Distance),
	)
	return domain.MatchFromNeighbor(best), nil
}

// ensureCollection runs ensure, and when the collection is reported corrupt
// repairs it and ensures once more. At most one repair per call. Connection
// and timeout failures are returned as is: repair deletes every entry.
func (s *Service) ensureCollection(ctx context.Context) error {
	err := s.index.EnsureCollection(ctx)
	observeIndex("ensure", err)
	if err == nil {
		return nil
	}
	if isContextErr(ctx, err) || !errors.Is(err, domain.ErrCollectionCorrupt) {
		return err
	}

	s.logger.Warn("Collection corrupt, repairing", zap.Error(err))
	if rerr := s.index.RepairCollection(ctx); rerr != nil {
		metrics.IndexRepairsTotal.WithLabelValues("error").Inc()
		s.logger.Error("Collection repair failed", zap.Error(rerr))
		return errors.Join(err, rerr)
	}
	metrics.IndexRepairsTotal.WithLabelValues("success").Inc()

	err = s.index.EnsureCollection(ctx)
	observeIndex("ensure", err)
	if err != nil {
		return fmt.Errorf("ensure after repair: %w", err)
	}
	s.logger.Info("Collection repaired")
	return nil
}

func isContextErr(ctx context.Context, err error) bool {
	return ctx.Err() != nil ||
		errors.Is(err, context.Canceled) ||
		errors.Is(err, context.DeadlineExceeded)
}

func observeIndex(op string, err error) {
	status := "ok"
	if err != nil {
		status = "error"
	}
	metrics.IndexOperationsTotal.WithLabelValues(op, status).Inc()
}

func finish(span trace.Span, op, outcome string, start time.Time, err error) {
	metrics.RetrievalRequestsTotal.WithLabelValues(op, outcome).Inc()
	metrics.RetrievalRequestDuration.WithLabelValues(op).Observe(time.Since(start).Seconds())
	span.SetAttributes(attribute.String("outcome", outcome))
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	} else {
		span.SetStatus(codes.Ok, "")
	}
	span.End()
}
