package embedding

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"

	"go.uber.org/zap"

	"github.com/kailas-cloud/cardex/internal/domain"
)

func TestLoader_SingleFlight(t *testing.T) {
	var calls atomic.Int32
	started := make(chan struct{})
	release := make(chan struct{})
	model := &stubModel{dims: 4}

	l := NewLoader("stub", func(_ context.Context) (domain.Model, error) {
		if calls.Add(1) == 1 {
			close(started)
		}
		<-release
		return model, nil
	}, zap.NewNop())

	const callers = 32
	var wg sync.WaitGroup
	results := make([]domain.Model, callers)
	errs := make([]error, callers)

	for i := range callers {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			results[i], errs[i] = l.EnsureReady(context.Background())
		}(i)
	}

	<-started
	close(release)
	wg.Wait()

	if got := calls.Load(); got != 1 {
		t.Fatalf("expected exactly one load, got %d", got)
	}
	for i := range callers {
		if errs[i] != nil {
			t.Fatalf("caller %d: unexpected error: %v", i, errs[i])
		}
		if results[i] != model {
			t.Errorf("caller %d: got a different model instance", i)
		}
	}
	if !l.Ready() {
		t.Error("expected loader to be ready")
	}
}

func TestLoader_CachesAfterSuccess(t *testing.T) {
	var calls atomic.Int32
	l := NewLoader("stub", func(_ context.Context) (domain.Model, error) {
		calls.Add(1)
		return &stubModel{dims: 2}, nil
	}, nil)

	for range 5 {
		if _, err := l.EnsureReady(context.Background()); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
	}
	if got := calls.Load(); got != 1 {
		t.Errorf("expected 1 load, got %d", got)
	}
}

func TestLoader_RetryAfterFailure(t *testing.T) {
	var calls atomic.Int32
	model := &stubModel{dims: 2}
	l := NewLoader("stub", func(_ context.Context) (domain.Model, error) {
		if calls.Add(1) == 1 {
			return nil, errors.New("weights missing")
		}
		return model, nil
	}, zap.NewNop())

	_, err := l.EnsureReady(context.Background())
	if !errors.Is(err, domain.ErrModelLoad) {
		t.Fatalf("expected ErrModelLoad, got %v", err)
	}
	if l.Ready() {
		t.Fatal("loader must stay unloaded after a failure")
	}

	got, err := l.EnsureReady(context.Background())
	if err != nil {
		t.Fatalf("unexpected error on retry: %v", err)
	}
	if got != model {
		t.Error("expected the model from the second attempt")
	}
	if n := calls.Load(); n != 2 {
		t.Errorf("expected 2 load attempts, got %d", n)
	}
}

func TestLoader_FailureReachesEveryWaiter(t *testing.T) {
	started := make(chan struct{})
	release := make(chan struct{})
	var once sync.Once

	l := NewLoader("stub", func(_ context.Context) (domain.Model, error) {
		once.Do(func() { close(started) })
		<-release
		return nil, errors.New("boom")
	}, zap.NewNop())

	const callers = 8
	var wg sync.WaitGroup
	errs := make([]error, callers)
	for i := range callers {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, errs[i] = l.EnsureReady(context.Background())
		}(i)
	}

	<-started
	close(release)
	wg.Wait()

	for i, err := range errs {
		if !errors.Is(err, domain.ErrModelLoad) {
			t.Errorf("caller %d: expected ErrModelLoad, got %v", i, err)
		}
	}
}

func TestLoader_NilModelIsFailure(t *testing.T) {
	l := NewLoader("stub", func(_ context.Context) (domain.Model, error) {
		return nil, nil
	}, zap.NewNop())

	if _, err := l.EnsureReady(context.Background()); !errors.Is(err, domain.ErrModelLoad) {
		t.Fatalf("expected ErrModelLoad, got %v", err)
	}
}

func TestLoader_CancelledCallerDoesNotAbortLoad(t *testing.T) {
	var calls atomic.Int32
	started := make(chan struct{})
	release := make(chan struct{})
	model := &stubModel{dims: 2}

	l := NewLoader("stub", func(ctx context.Context) (domain.Model, error) {
		calls.Add(1)
		close(started)
		<-release
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		return model, nil
	}, zap.NewNop())

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() {
		_, err := l.EnsureReady(ctx)
		done <- err
	}()

	<-started
	cancel()
	if err := <-done; !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}

	close(release)
	got, err := l.EnsureReady(context.Background())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got != model {
		t.Error("expected the model from the shared load")
	}
	if n := calls.Load(); n != 1 {
		t.Errorf("expected 1 load, got %d", n)
	}
}

func TestLoader_Close(t *testing.T) {
	model := &stubModel{dims: 2}
	l := NewLoader("stub", func(_ context.Context) (domain.Model, error) {
		return model, nil
	}, zap.NewNop())

	if err := l.Close(); err != nil {
		t.Fatalf("close before load: %v", err)
	}
	if _, err := l.EnsureReady(context.Background()); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if err := l.Close(); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !model.closed {
		t.Error("expected model to be closed")
	}
	if l.Ready() {
		t.Error("expected loader to be empty after close")
	}
}
