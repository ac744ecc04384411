package index

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/kailas-cloud/cardex/internal/db"
	"github.com/kailas-cloud/cardex/internal/domain"
)

// store is the consumer interface for the card index (ISP).
//
//nolint:interfacebloat // index repo needs hash + index management + search operations
type store interface {
	Ping(ctx context.Context) error
	HSet(ctx context.Context, key string, fields map[string]string) error
	Del(ctx context.Context, keys ...string) error
	Scan(ctx context.Context, pattern string) ([]string, error)
	CreateIndex(ctx context.Context, def *db.IndexDefinition) error
	DropIndex(ctx context.Context, name string) error
	IndexInfo(ctx context.Context, name string) (*db.IndexInfo, error)
	SearchKNN(ctx context.Context, q *db.KNNQuery) (*db.SearchResult, error)
}

// DefaultKeyPrefix namespaces every key written by the repository.
const DefaultKeyPrefix = "cardex:"

// HNSWConfig HNSW index parameters.
type HNSWConfig struct {
	M           int
	EFConstruct int
}

// Repo implements usecase/retrieval.Index on a Redis 8 or valkey-search server.
type Repo struct {
	store      store
	collection string
	prefix     string
	vectorDim  int
	hnsw       HNSWConfig
}

// New creates a card index repository for one collection.
// An empty prefix falls back to DefaultKeyPrefix.
func New(s store, collection, prefix string, vectorDim int) *Repo {
	if prefix == "" {
		prefix = DefaultKeyPrefix
	}
	if collection == "" {
		collection = domain.DefaultCollection
	}
	return &Repo{
		store:      s,
		collection: collection,
		prefix:     prefix,
		vectorDim:  vectorDim,
		hnsw:       HNSWConfig{M: 16, EFConstruct: 200},
	}
}

// WithHNSW configures HNSW index parameters.
func (r *Repo) WithHNSW(cfg HNSWConfig) *Repo {
	if cfg.M > 0 {
		r.hnsw.M = cfg.M
	}
	if cfg.EFConstruct > 0 {
		r.hnsw.EFConstruct = cfg.EFConstruct
	}
	return r
}

// EnsureCollection creates the FT index unless it already exists. An existing
// index with another schema is reported as domain.ErrCollectionCorrupt.
func (r *Repo) EnsureCollection(ctx context.Context) error {
	info, err := r.store.IndexInfo(ctx, r.indexName())
	if errors.Is(err, db.ErrIndexNotFound) {
		return r.createIndex(ctx)
	}
	if err != nil {
		return fmt.Errorf("%w: check index %s: %w", domain.ErrIndexUnavailable, r.indexName(), err)
	}
	return r.checkSchema(info)
}

// RepairCollection drops the index, deletes every card key of the collection
// and creates the index again, empty.
func (r *Repo) RepairCollection(ctx context.Context) error {
	if err := r.store.DropIndex(ctx, r.indexName()); err != nil && !errors.Is(err, db.ErrIndexNotFound) {
		return fmt.Errorf("%w: drop index %s: %w", domain.ErrIndexUnavailable, r.indexName(), err)
	}

	keys, err := r.store.Scan(ctx, r.keyPrefix()+"*")
	if err != nil {
		return fmt.Errorf("%w: scan %s: %w", domain.ErrIndexUnavailable, r.collection, err)
	}
	if err := r.store.Del(ctx, keys...); err != nil {
		return fmt.Errorf("%w: delete %d entries: %w", domain.ErrIndexUnavailable, len(keys), err)
	}

	return r.createIndex(ctx)
}

// Upsert writes every field of the entry in one HSET, replacing the previous entry.
func (r *Repo) Upsert(ctx context.Context, e domain.IndexEntry) error {
	if len(e.Vector) != r.vectorDim {
		return fmt.Errorf("%w: %w: got %d, index dimension is %d",
			domain.ErrIndexUnavailable, domain.ErrDimensionMismatch, len(e.Vector), r.vectorDim)
	}

	if err := r.store.HSet(ctx, r.key(e.ID), entryToHash(e)); err != nil {
		return fmt.Errorf("%w: hset card %s: %w", domain.ErrIndexUnavailable, e.ID, err)
	}
	return nil
}

// QueryNearest returns up to k entries of the owner, nearest first.
func (r *Repo) QueryNearest(ctx context.Context, vector []float32, ownerID string, k int) ([]domain.Neighbor, error) {
	if len(vector) != r.vectorDim {
		return nil, fmt.Errorf("%w: %w: got %d, index dimension is %d",
			domain.ErrIndexUnavailable, domain.ErrDimensionMismatch, len(vector), r.vectorDim)
	}

	result, err := r.store.SearchKNN(ctx, &db.KNNQuery{
		IndexName:    r.indexName(),
		VectorField:  vectorAlias,
		TagFilters:   map[string]string{ownerKeyField: ownerKey(ownerID)},
		Vector:       vector,
		K:            k,
		ReturnFields: returnFields,
	})
	if err != nil {
		return nil, fmt.Errorf("%w: search %s: %w", domain.ErrIndexUnavailable, r.indexName(), err)
	}

	neighbors := make([]domain.Neighbor, 0, len(result.Entries))
	for _, entry := range result.Entries {
		neighbors = append(neighbors, entryToNeighbor(strings.TrimPrefix(entry.Key, r.keyPrefix()), entry))
	}
	return neighbors, nil
}

// Ping checks the server behind the index.
func (r *Repo) Ping(ctx context.Context) error {
	return r.store.Ping(ctx)
}

func (r *Repo) createIndex(ctx context.Context) error {
	def, err := buildIndex(r.indexName(), r.keyPrefix(), r.vectorDim, r.hnsw)
	if err != nil {
		return fmt.Errorf("build index: %w", err)
	}
	if err := r.store.CreateIndex(ctx, def); err != nil && !errors.Is(err, db.ErrIndexExists) {
		return fmt.Errorf("%w: create index %s: %w", domain.ErrIndexUnavailable, def.Name, err)
	}
	return nil
}

// checkSchema compares the live index with the one createIndex builds.
// A reply without attributes is not judged.
func (r *Repo) checkSchema(info *db.IndexInfo) error {
	if len(info.Attributes) == 0 {
		return nil
	}

	var problem string
	owner, hasOwner := info.Attribute(ownerKeyField)
	vec, hasVec := info.Attribute(vectorAlias)
	switch {
	case !hasOwner || (owner.Type != "" && owner.Type != "TAG"):
		problem = "no " + ownerKeyField + " tag"
	case !hasVec || (vec.Type != "" && vec.Type != "VECTOR"):
		problem = "no " + vectorAlias + " field"
	case vec.Dim > 0 && vec.Dim != r.vectorDim:
		problem = fmt.Sprintf("vector dimension %d, want %d", vec.Dim, r.vectorDim)
	default:
		return nil
	}
	return fmt.Errorf("%w: %w: index %s has %s",
		domain.ErrIndexUnavailable, domain.ErrCollectionCorrupt, r.indexName(), problem)
}

// Key patterns: {prefix}{collection}:idx, {prefix}{collection}:{id}

func (r *Repo) indexName() string {
	return fmt.Sprintf("%s%s:idx", r.prefix, r.collection)
}

func (r *Repo) keyPrefix() string {
	return fmt.Sprintf("%s%s:", r.prefix, r.collection)
}

func (r *Repo) key(id string) string {
	return r.keyPrefix() + id
}
