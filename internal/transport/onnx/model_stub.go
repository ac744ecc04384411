//go:build !cgo

package onnx

import (
	"context"
	"errors"

	"github.com/kailas-cloud/cardex/internal/domain"
)

var errNoCGO = errors.New("onnx: requires CGO; build with CGO_ENABLED=1 and onnxruntime")

// Load returns a load function that fails when built without CGO.
func Load(cfg Config) func(ctx context.Context) (domain.Model, error) {
	return func(_ context.Context) (domain.Model, error) {
		cfg.applyDefaults()
		if err := cfg.validate(); err != nil {
			return nil, err
		}
		return nil, errNoCGO
	}
}
