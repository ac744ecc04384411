package cardex

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/kailas-cloud/cardex/internal/db"
	dbRedis "github.com/kailas-cloud/cardex/internal/db/redis"
	"github.com/kailas-cloud/cardex/internal/domain"
	"github.com/kailas-cloud/cardex/internal/repository/chromem"
	indexrepo "github.com/kailas-cloud/cardex/internal/repository/index"
	"github.com/kailas-cloud/cardex/internal/transport/qdrant"
	embeddinguc "github.com/kailas-cloud/cardex/internal/usecase/embedding"
	healthuc "github.com/kailas-cloud/cardex/internal/usecase/health"
	"github.com/kailas-cloud/cardex/internal/usecase/retrieval"
)

const defaultReadinessTimeout = 10 * time.Second

// Internal interfaces for substitution in tests.
type retrievalUseCase interface {
	StoreCardEmbeddings(ctx context.Context, card domain.Card) error
	QueryBestMatch(ctx context.Context, query, ownerID string) (*domain.MatchResult, error)
}

type modelLoader interface {
	EnsureReady(ctx context.Context) (domain.Model, error)
	Close() error
}

// indexBackend is what every index implementation offers besides retrieval.Index.
type indexBackend interface {
	retrieval.Index
	Ping(ctx context.Context) error
}

// Client is the cardex SDK entry point. It is safe for concurrent use.
type Client struct {
	retrievalSvc retrievalUseCase
	healthSvc    healthUseCase
	loader       modelLoader
	closers      []func() error
	obs          *observer
}

// New creates a Client. It connects to the configured index and waits for it
// to be ready; ctx bounds that wait. The model loads lazily unless the index
// needs its dimension up front.
func New(ctx context.Context, opts ...Option) (*Client, error) {
	cfg := &clientConfig{policy: DefaultPolicy()}
	for _, o := range opts {
		o.apply(cfg)
	}
	if cfg.logger == nil {
		cfg.logger = zap.NewNop()
	}
	if cfg.load == nil {
		return nil, errors.New(
			"cardex: embedding model required (use WithONNX, WithOpenAI, WithGemini, WithHashModel or WithModel)",
		)
	}

	obs, err := newObserver(cfg.logger, cfg.metricsReg)
	if err != nil {
		return nil, err
	}

	loader := embeddinguc.NewLoader(cfg.modelName, cfg.load, cfg.logger)
	generator := embeddinguc.NewGenerator(loader)

	c := &Client{loader: loader, obs: obs}

	backend, err := c.openIndex(ctx, cfg, generator)
	if err != nil {
		_ = c.Close()
		_ = loader.Close()
		return nil, err
	}

	embedder := embeddinguc.NewInstrumentedEmbedder(generator, cfg.provider, cfg.modelName, cfg.logger)

	// A nil interface, not a typed nil, marks the index as unconfigured.
	var index retrieval.Index
	var pinger healthuc.IndexPinger
	if backend != nil {
		index = backend
		pinger = backend
	}

	c.retrievalSvc = retrieval.New(embedder, index, cfg.logger).WithPolicy(cfg.policy)
	c.healthSvc = healthuc.New(pinger, loader)
	c.closers = append(c.closers, loader.Close)
	return c, nil
}

func (c *Client) openIndex(ctx context.Context, cfg *clientConfig, gen *embeddinguc.Generator) (indexBackend, error) {
	switch cfg.backend {
	case "":
		cfg.logger.Info("No vector index configured; cards will not be stored")
		return nil, nil
	case backendChromem:
		s, err := chromem.New(chromem.Config{
			Path:       cfg.chromemPath,
			Compress:   cfg.chromemCompress,
			Collection: cfg.collection,
			Dimensions: cfg.dimensions,
		})
		if err != nil {
			return nil, fmt.Errorf("cardex: open chromem: %w", err)
		}
		return s, nil
	}

	dims, err := vectorDimensions(ctx, cfg, gen)
	if err != nil {
		return nil, err
	}

	switch cfg.backend {
	case backendRedis, backendValkey:
		store, err := dbRedis.NewStore(dbRedis.Config{
			Addrs:      cfg.addrs,
			Password:   cfg.password,
			Standalone: cfg.standalone,
		})
		if err != nil {
			return nil, fmt.Errorf("cardex: create %s store: %w", cfg.backend, err)
		}
		if err := store.WaitForReady(ctx, defaultReadinessTimeout); err != nil {
			store.Close()
			return nil, fmt.Errorf("cardex: %s not ready: %w", cfg.backend, err)
		}
		c.closers = append(c.closers, closeStore(store))
		return newRedisIndex(store, cfg, dims), nil
	case backendQdrant:
		x, err := qdrant.New(qdrant.Config{
			Host:       cfg.qdrantHost,
			Port:       cfg.qdrantPort,
			APIKey:     cfg.qdrantAPIKey,
			UseTLS:     cfg.qdrantTLS,
			Collection: cfg.collection,
			Dimensions: dims,
		})
		if err != nil {
			return nil, fmt.Errorf("cardex: %w", err)
		}
		c.closers = append(c.closers, x.Close)
		return x, nil
	default:
		return nil, fmt.Errorf("cardex: unknown index backend %q", cfg.backend)
	}
}

func newRedisIndex(store db.Store, cfg *clientConfig, dims int) *indexrepo.Repo {
	repo := indexrepo.New(store, cfg.collection, cfg.keyPrefix, dims)
	if cfg.hnswM > 0 || cfg.hnswEFConstruct > 0 {
		repo = repo.WithHNSW(indexrepo.HNSWConfig{
			M:           cfg.hnswM,
			EFConstruct: cfg.hnswEFConstruct,
		})
	}
	return repo
}

func closeStore(store db.Store) func() error {
	return func() error {
		store.Close()
		return nil
	}
}

// vectorDimensions returns the configured dimension or loads the model to learn it.
func vectorDimensions(ctx context.Context, cfg *clientConfig, gen *embeddinguc.Generator) (int, error) {
	if cfg.dimensions > 0 {
		return cfg.dimensions, nil
	}
	dims, err := gen.Dimensions(ctx)
	if err != nil {
		return 0, fmt.Errorf("cardex: learn vector dimensions: %w", err)
	}
	return dims, nil
}

// StoreCardEmbeddings embeds the card and upserts it under card.ID.
// Storing the same card twice leaves a single entry.
func (c *Client) StoreCardEmbeddings(ctx context.Context, card Card) (err error) {
	start := time.Now()
	defer func() { c.obs.observe("store_card_embeddings", start, err) }()

	return c.retrievalSvc.StoreCardEmbeddings(ctx, card)
}

// QueryBestMatch returns the owner's closest card to query, or nil.
// Index failures resolve to nil; invalid input and model failures are errors.
func (c *Client) QueryBestMatch(ctx context.Context, query, ownerID string) (match *MatchResult, err error) {
	start := time.Now()
	defer func() { c.obs.observe("query_best_match", start, err) }()

	return c.retrievalSvc.QueryBestMatch(ctx, query, ownerID)
}

// Warmup loads the embedding model now instead of on the first request.
func (c *Client) Warmup(ctx context.Context) (err error) {
	start := time.Now()
	defer func() { c.obs.observe("warmup", start, err) }()

	if _, err = c.loader.EnsureReady(ctx); err != nil {
		return fmt.Errorf("warmup: %w", err)
	}
	return nil
}

// Close releases the model and the index connection.
func (c *Client) Close() error {
	var errs []error
	for i := len(c.closers) - 1; i >= 0; i-- {
		if err := c.closers[i](); err != nil {
			errs = append(errs, err)
		}
	}
	c.closers = nil
	return errors.Join(errs...)
}
