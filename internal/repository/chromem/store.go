package chromem

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync/atomic"

	chromemgo "github.com/philippgille/chromem-go"

	"github.com/kailas-cloud/cardex/internal/domain"
)

var errExternalEmbeddings = errors.New("chromem: embeddings are computed by the caller")

// Config configures the embedded index.
type Config struct {
	// Path of the persistence directory. Empty keeps everything in memory.
	Path       string
	Compress   bool
	Collection string
	// Dimensions rejects vectors of another length when positive.
	Dimensions int
}

// Store implements usecase/retrieval.Index on an embedded chromem-go database.
type Store struct {
	db         *chromemgo.DB
	collection string
	dims       int
	// checked is set once the stored embeddings matched dims.
	checked atomic.Bool
}

// New opens the database described by cfg.
func New(cfg Config) (*Store, error) {
	var db *chromemgo.DB
	if cfg.Path == "" {
		db = chromemgo.NewDB()
	} else {
		path, err := expandPath(cfg.Path)
		if err != nil {
			return nil, fmt.Errorf("expanding path: %w", err)
		}
		if err := os.MkdirAll(path, 0o755); err != nil {
			return nil, fmt.Errorf("creating directory %s: %w", path, err)
		}
		db, err = chromemgo.NewPersistentDB(path, cfg.Compress)
		if err != nil {
			return nil, fmt.Errorf("creating chromem DB: %w", err)
		}
	}
	return NewWithDB(db, cfg.Collection, cfg.Dimensions), nil
}

// NewWithDB wraps an existing database.
func NewWithDB(db *chromemgo.DB, collection string, dims int) *Store {
	if collection == "" {
		collection = domain.DefaultCollection
	}
	return &Store{db: db, collection: collection, dims: dims}
}

// EnsureCollection gets or creates the cosine collection. A persisted
// collection holding embeddings of another length is reported as
// domain.ErrCollectionCorrupt.
func (s *Store) EnsureCollection(ctx context.Context) error {
	col, err := s.db.GetOrCreateCollection(s.collection, collectionMetadata(), noEmbedding)
	if err != nil {
		return fmt.Errorf("%w: get or create collection %s: %w", domain.ErrIndexUnavailable, s.collection, err)
	}
	if s.checked.Load() {
		return nil
	}
	if err := s.checkDimensions(ctx, col); err != nil {
		return err
	}
	s.checked.Store(true)
	return nil
}

// checkDimensions runs one unfiltered query with a vector of the configured
// length. chromem rejects it when any stored embedding has another length.
func (s *Store) checkDimensions(ctx context.Context, col *chromemgo.Collection) error {
	if s.dims <= 0 || col.Count() == 0 {
		return nil
	}
	sample := make([]float32, s.dims)
	sample[0] = 1
	_, err := col.QueryEmbedding(ctx, sample, 1, nil, nil)
	switch {
	case err == nil:
		return nil
	case ctx.Err() != nil:
		return fmt.Errorf("%w: check collection %s: %w", domain.ErrIndexUnavailable, s.collection, err)
	default:
		return fmt.Errorf("%w: %w: collection %s: %w",
			domain.ErrIndexUnavailable, domain.ErrCollectionCorrupt, s.collection, err)
	}
}

// RepairCollection deletes the collection with its documents and creates it empty.
func (s *Store) RepairCollection(_ context.Context) error {
	if err := s.db.DeleteCollection(s.collection); err != nil {
		return fmt.Errorf("%w: delete collection %s: %w", domain.ErrIndexUnavailable, s.collection, err)
	}
	if _, err := s.db.CreateCollection(s.collection, collectionMetadata(), noEmbedding); err != nil {
		return fmt.Errorf("%w: create collection %s: %w", domain.ErrIndexUnavailable, s.collection, err)
	}
	return nil
}

// Upsert adds the entry, replacing any document with the same id.
func (s *Store) Upsert(ctx context.Context, e domain.IndexEntry) error {
	if s.dims > 0 && len(e.Vector) != s.dims {
		return fmt.Errorf("%w: %w: got %d, index dimension is %d",
			domain.ErrIndexUnavailable, domain.ErrDimensionMismatch, len(e.Vector), s.dims)
	}

	col, err := s.getCollection()
	if err != nil {
		return err
	}

	doc := chromemgo.Document{
		ID:        e.ID,
		Metadata:  e.Metadata.Fields(),
		Embedding: e.Vector,
		Content:   e.Document,
	}
	if err := col.AddDocument(ctx, doc); err != nil {
		return fmt.Errorf("%w: add document %s: %w", domain.ErrIndexUnavailable, e.ID, err)
	}
	return nil
}

// QueryNearest returns up to k documents of the owner, nearest first.
func (s *Store) QueryNearest(ctx context.Context, vector []float32, ownerID string, k int) ([]domain.Neighbor, error) {
	if s.dims > 0 && len(vector) != s.dims {
		return nil, fmt.Errorf("%w: %w: got %d, index dimension is %d",
			domain.ErrIndexUnavailable, domain.ErrDimensionMismatch, len(vector), s.dims)
	}

	col, err := s.getCollection()
	if err != nil {
		return nil, err
	}

	// chromem requires nResults <= document count
	count := col.Count()
	if count == 0 || k <= 0 {
		return []domain.Neighbor{}, nil
	}
	k = min(k, count)

	where := map[string]string{domain.FieldOwnerID: ownerID}
	results, err := col.QueryEmbedding(ctx, vector, k, where, nil)
	if err != nil {
		return nil, fmt.Errorf("%w: query collection %s: %w", domain.ErrIndexUnavailable, s.collection, err)
	}

	neighbors := make([]domain.Neighbor, 0, len(results))
	for _, r := range results {
		n := domain.Neighbor{ID: r.ID, Distance: 1 - float64(r.Similarity)}
		if meta, ok := domain.MetadataFromFields(r.Metadata); ok {
			n.Metadata = &meta
		}
		neighbors = append(neighbors, n)
	}
	return neighbors, nil
}

// Ping always succeeds for the embedded database.
func (s *Store) Ping(_ context.Context) error {
	return nil
}

// Count returns the number of documents in the collection, 0 when it does not exist.
func (s *Store) Count() int {
	col := s.db.GetCollection(s.collection, noEmbedding)
	if col == nil {
		return 0
	}
	return col.Count()
}

func (s *Store) getCollection() (*chromemgo.Collection, error) {
	col := s.db.GetCollection(s.collection, noEmbedding)
	if col == nil {
		return nil, fmt.Errorf("%w: collection %s does not exist", domain.ErrIndexUnavailable, s.collection)
	}
	return col, nil
}

func collectionMetadata() map[string]string {
	return map[string]string{"hnsw:space": "cosine"}
}

func noEmbedding(_ context.Context, _ string) ([]float32, error) {
	return nil, errExternalEmbeddings
}

// expandPath expands ~ to the home directory.
func expandPath(path string) (string, error) {
	if strings.HasPrefix(path, "~") {
		home, err := os.UserHomeDir()
		if err != nil {
			return "", err
		}
		return filepath.Join(home, path[1:]), nil
	}
	return path, nil
}
