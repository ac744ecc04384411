package qdrant

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/qdrant/go-client/qdrant"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"github.com/kailas-cloud/cardex/internal/domain"
)

const (
	cardIDField  = "card_id"
	contentField = "content"

	defaultMaxMessageSize = 50 * 1024 * 1024
)

// client is the subset of *qdrant.Client used by the index (ISP).
//
//nolint:interfacebloat // collection lifecycle + points + health
type client interface {
	HealthCheck(ctx context.Context) (*qdrant.HealthCheckReply, error)
	CollectionExists(ctx context.Context, collectionName string) (bool, error)
	GetCollectionInfo(ctx context.Context, collectionName string) (*qdrant.CollectionInfo, error)
	CreateCollection(ctx context.Context, request *qdrant.CreateCollection) error
	DeleteCollection(ctx context.Context, collectionName string) error
	CreateFieldIndex(ctx context.Context, request *qdrant.CreateFieldIndexCollection) (*qdrant.UpdateResult, error)
	Upsert(ctx context.Context, request *qdrant.UpsertPoints) (*qdrant.UpdateResult, error)
	Query(ctx context.Context, request *qdrant.QueryPoints) ([]*qdrant.ScoredPoint, error)
	Close() error
}

// Config holds the Qdrant gRPC connection and collection settings.
type Config struct {
	Host           string
	Port           int
	APIKey         string
	UseTLS         bool
	Collection     string
	Dimensions     int
	MaxMessageSize int
}

// Index implements usecase/retrieval.Index on a Qdrant collection.
type Index struct {
	client     client
	collection string
	dims       int
}

// New connects to Qdrant over gRPC.
func New(cfg Config) (*Index, error) {
	if cfg.Dimensions <= 0 {
		return nil, errors.New("qdrant: dimensions must be positive")
	}
	maxMsg := cfg.MaxMessageSize
	if maxMsg <= 0 {
		maxMsg = defaultMaxMessageSize
	}

	c, err := qdrant.NewClient(&qdrant.Config{
		Host:   cfg.Host,
		Port:   cfg.Port,
		APIKey: cfg.APIKey,
		UseTLS: cfg.UseTLS,
		GrpcOptions: []grpc.DialOption{
			grpc.WithDefaultCallOptions(
				grpc.MaxCallRecvMsgSize(maxMsg),
				grpc.MaxCallSendMsgSize(maxMsg),
			),
		},
	})
	if err != nil {
		return nil, fmt.Errorf("qdrant: connect %s:%d: %w", cfg.Host, cfg.Port, err)
	}
	return newIndex(c, cfg.Collection, cfg.Dimensions), nil
}

func newIndex(c client, collection string, dims int) *Index {
	if collection == "" {
		collection = domain.DefaultCollection
	}
	return &Index{client: c, collection: collection, dims: dims}
}

// EnsureCollection creates the cosine collection and its owner index unless it
// exists. An existing collection with other vector parameters is reported as
// domain.ErrCollectionCorrupt.
func (x *Index) EnsureCollection(ctx context.Context) error {
	exists, err := x.client.CollectionExists(ctx, x.collection)
	if err != nil {
		return fmt.Errorf("%w: check collection %s: %w", domain.ErrIndexUnavailable, x.collection, err)
	}
	if !exists {
		return x.create(ctx)
	}

	info, err := x.client.GetCollectionInfo(ctx, x.collection)
	if err != nil {
		return fmt.Errorf("%w: collection info %s: %w", domain.ErrIndexUnavailable, x.collection, err)
	}
	if err := x.checkVectors(info); err != nil {
		return err
	}
	if _, ok := info.GetPayloadSchema()[domain.FieldOwnerID]; !ok {
		return x.createOwnerIndex(ctx)
	}
	return nil
}

func (x *Index) checkVectors(info *qdrant.CollectionInfo) error {
	params := info.GetConfig().GetParams().GetVectorsConfig().GetParams()
	var problem string
	switch {
	case params == nil:
		problem = "no unnamed vector"
	case params.GetSize() != uint64(x.dims):
		problem = fmt.Sprintf("vector size %d, want %d", params.GetSize(), x.dims)
	case params.GetDistance() != qdrant.Distance_Cosine:
		problem = "distance " + params.GetDistance().String()
	default:
		return nil
	}
	return fmt.Errorf("%w: %w: collection %s has %s",
		domain.ErrIndexUnavailable, domain.ErrCollectionCorrupt, x.collection, problem)
}

// RepairCollection deletes the collection with its points and creates it empty.
func (x *Index) RepairCollection(ctx context.Context) error {
	exists, err := x.client.CollectionExists(ctx, x.collection)
	if err != nil {
		return fmt.Errorf("%w: check collection %s: %w", domain.ErrIndexUnavailable, x.collection, err)
	}
	if exists {
		if err := x.client.DeleteCollection(ctx, x.collection); err != nil {
			return fmt.Errorf("%w: delete collection %s: %w", domain.ErrIndexUnavailable, x.collection, err)
		}
	}
	return x.create(ctx)
}

// Upsert writes the point and waits until it is applied.
func (x *Index) Upsert(ctx context.Context, e domain.IndexEntry) error {
	if len(e.Vector) != x.dims {
		return fmt.Errorf("%w: %w: got %d, index dimension is %d",
			domain.ErrIndexUnavailable, domain.ErrDimensionMismatch, len(e.Vector), x.dims)
	}

	_, err := x.client.Upsert(ctx, &qdrant.UpsertPoints{
		CollectionName: x.collection,
		Wait:           qdrant.PtrOf(true),
		Points:         []*qdrant.PointStruct{entryToPoint(e)},
	})
	if err != nil {
		return fmt.Errorf("%w: upsert point %s: %w", domain.ErrIndexUnavailable, e.ID, err)
	}
	return nil
}

// QueryNearest returns up to k points of the owner, nearest first.
func (x *Index) QueryNearest(ctx context.Context, vector []float32, ownerID string, k int) ([]domain.Neighbor, error) {
	if len(vector) != x.dims {
		return nil, fmt.Errorf("%w: %w: got %d, index dimension is %d",
			domain.ErrIndexUnavailable, domain.ErrDimensionMismatch, len(vector), x.dims)
	}

	points, err := x.client.Query(ctx, &qdrant.QueryPoints{
		CollectionName: x.collection,
		Query:          qdrant.NewQuery(vector...),
		Filter:         ownerFilter(ownerID),
		Limit:          qdrant.PtrOf(uint64(k)),
		WithPayload:    qdrant.NewWithPayload(true),
	})
	if err != nil {
		return nil, fmt.Errorf("%w: query collection %s: %w", domain.ErrIndexUnavailable, x.collection, err)
	}

	neighbors := make([]domain.Neighbor, 0, len(points))
	for _, p := range points {
		neighbors = append(neighbors, pointToNeighbor(p))
	}
	return neighbors, nil
}

// Ping runs the Qdrant health check.
func (x *Index) Ping(ctx context.Context) error {
	if _, err := x.client.HealthCheck(ctx); err != nil {
		return fmt.Errorf("qdrant health check: %w", err)
	}
	return nil
}

// Close closes the gRPC connection.
func (x *Index) Close() error {
	return x.client.Close()
}

// create tolerates a collection or field index created concurrently.
func (x *Index) create(ctx context.Context) error {
	err := x.client.CreateCollection(ctx, &qdrant.CreateCollection{
		CollectionName: x.collection,
		VectorsConfig: qdrant.NewVectorsConfig(&qdrant.VectorParams{
			Size:     uint64(x.dims),
			Distance: qdrant.Distance_Cosine,
		}),
	})
	if err != nil && !isAlreadyExists(err) {
		return fmt.Errorf("%w: create collection %s: %w", domain.ErrIndexUnavailable, x.collection, err)
	}
	return x.createOwnerIndex(ctx)
}

func (x *Index) createOwnerIndex(ctx context.Context) error {
	_, err := x.client.CreateFieldIndex(ctx, &qdrant.CreateFieldIndexCollection{
		CollectionName: x.collection,
		Wait:           qdrant.PtrOf(true),
		FieldName:      domain.FieldOwnerID,
		FieldType:      qdrant.FieldType_FieldTypeKeyword.Enum(),
	})
	if err != nil && !isAlreadyExists(err) {
		return fmt.Errorf("%w: index %s on %s: %w", domain.ErrIndexUnavailable, domain.FieldOwnerID, x.collection, err)
	}
	return nil
}

// isAlreadyExists matches the AlreadyExists status and older servers that
// answer "already exists" with InvalidArgument.
func isAlreadyExists(err error) bool {
	switch status.Code(err) {
	case codes.AlreadyExists:
		return true
	case codes.InvalidArgument:
		return strings.Contains(err.Error(), "already exists")
	default:
		return false
	}
}

// pointID maps a card id onto the UUID space Qdrant accepts.
func pointID(cardID string) string {
	return uuid.NewSHA1(uuid.NameSpaceURL, []byte(cardID)).String()
}

func ownerFilter(ownerID string) *qdrant.Filter {
	return &qdrant.Filter{
		Must: []*qdrant.Condition{{
			ConditionOneOf: &qdrant.Condition_Field{
				Field: &qdrant.FieldCondition{
					Key: domain.FieldOwnerID,
					Match: &qdrant.Match{
						MatchValue: &qdrant.Match_Keyword{Keyword: ownerID},
					},
				},
			},
		}},
	}
}

func entryToPoint(e domain.IndexEntry) *qdrant.PointStruct {
	payload := make(map[string]*qdrant.Value, 7)
	for k, v := range e.Metadata.Fields() {
		payload[k] = stringValue(v)
	}
	payload[cardIDField] = stringValue(e.ID)
	payload[contentField] = stringValue(e.Document)

	return &qdrant.PointStruct{
		Id:      qdrant.NewIDUUID(pointID(e.ID)),
		Vectors: qdrant.NewVectors(e.Vector...),
		Payload: payload,
	}
}

func stringValue(s string) *qdrant.Value {
	return &qdrant.Value{Kind: &qdrant.Value_StringValue{StringValue: s}}
}

func pointToNeighbor(p *qdrant.ScoredPoint) domain.Neighbor {
	fields := make(map[string]string, len(p.GetPayload()))
	for k, v := range p.GetPayload() {
		if s, ok := v.GetKind().(*qdrant.Value_StringValue); ok {
			fields[k] = s.StringValue
		}
	}

	id := fields[cardIDField]
	if id == "" {
		id = p.GetId().GetUuid()
	}
	delete(fields, cardIDField)
	delete(fields, contentField)

	n := domain.Neighbor{ID: id, Distance: 1 - float64(p.GetScore())}
	if meta, ok := domain.MetadataFromFields(fields); ok {
		n.Metadata = &meta
	}
	return n
}
