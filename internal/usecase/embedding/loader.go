package embedding

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"

	"github.com/kailas-cloud/cardex/internal/domain"
	"github.com/kailas-cloud/cardex/internal/metrics"
)

// LoadFunc builds a ready embedding model. It may be slow (downloads, weights, warmup).
type LoadFunc func(ctx context.Context) (domain.Model, error)

const loadKey = "model"

// Loader lazily initializes one embedding model per process.
// Concurrent callers share a single in-flight load; a failed load leaves the
// loader empty so the next caller starts a fresh attempt.
type Loader struct {
	name   string
	load   LoadFunc
	logger *zap.Logger

	group singleflight.Group

	mu    sync.RWMutex
	model domain.Model
}

// NewLoader creates a loader for the named model.
func NewLoader(name string, load LoadFunc, logger *zap.Logger) *Loader {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Loader{name: name, load: load, logger: logger}
}

// Name returns the configured model name.
func (l *Loader) Name() string { return l.name }

// EnsureReady returns the loaded model, loading it on first use.
// A caller whose ctx ends stops waiting; the shared load keeps running for the others.
func (l *Loader) EnsureReady(ctx context.Context) (domain.Model, error) {
	if m := l.cached(); m != nil {
		return m, nil
	}

	ch := l.group.DoChan(loadKey, func() (any, error) {
		// A load may have completed between the cache check and joining the group.
		if m := l.cached(); m != nil {
			return m, nil
		}
		return l.doLoad(context.WithoutCancel(ctx))
	})

	select {
	case <-ctx.Done():
		return nil, fmt.Errorf("wait for model %s: %w", l.name, ctx.Err())
	case res := <-ch:
		if res.Err != nil {
			return nil, res.Err
		}
		m, ok := res.Val.(domain.Model)
		if !ok {
			return nil, fmt.Errorf("%w: %s: unexpected load result %T", domain.ErrModelLoad, l.name, res.Val)
		}
		return m, nil
	}
}

// Ready reports whether a model is loaded. It never triggers a load.
func (l *Loader) Ready() bool {
	return l.cached() != nil
}

// HealthCheck loads the model if needed; a failure means the model cannot serve.
func (l *Loader) HealthCheck(ctx context.Context) error {
	_, err := l.EnsureReady(ctx)
	return err
}

// Close releases the loaded model, if any.
func (l *Loader) Close() error {
	l.mu.Lock()
	m := l.model
	l.model = nil
	l.mu.Unlock()

	if m == nil {
		return nil
	}
	if err := m.Close(); err != nil {
		return fmt.Errorf("close model %s: %w", l.name, err)
	}
	return nil
}

func (l *Loader) cached() domain.Model {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.model
}

func (l *Loader) doLoad(ctx context.Context) (domain.Model, error) {
	start := time.Now()
	l.logger.Info("Loading embedding model", zap.String("model", l.name))

	m, err := l.load(ctx)
	if err == nil && m == nil {
		err = errors.New("loader returned no model")
	}
	duration := time.Since(start)
	metrics.ModelLoadDuration.WithLabelValues(l.name).Observe(duration.Seconds())

	if err != nil {
		metrics.ModelLoadsTotal.WithLabelValues(l.name, "error").Inc()
		l.logger.Error("Failed to load embedding model",
			zap.String("model", l.name),
			zap.Duration("duration", duration),
			zap.Error(err),
		)
		return nil, fmt.Errorf("%w: %s: %w", domain.ErrModelLoad, l.name, err)
	}

	l.mu.Lock()
	l.model = m
	l.mu.Unlock()

	metrics.ModelLoadsTotal.WithLabelValues(l.name, "success").Inc()
	l.logger.Info("Embedding model loaded",
		zap.String("model", l.name),
		zap.Int("dimensions", m.Dimensions()),
		zap.Duration("duration", duration),
	)
	return m, nil
}
