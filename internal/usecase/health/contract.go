package health

import "context"

// IndexPinger checks vector index availability.
type IndexPinger interface {
	Ping(ctx context.Context) error
}

// ModelChecker checks that the embedding model can serve.
type ModelChecker interface {
	HealthCheck(ctx context.Context) error
}
