package main

import (
	"context"
	"fmt"
	"time"

	"github.com/kailas-cloud/cardex/internal/config"
	"github.com/kailas-cloud/cardex/internal/usecase/retrieval"
	cardex "github.com/kailas-cloud/cardex/pkg/sdk"
)

// openClient builds the SDK client described by the configuration.
func (a *app) openClient(ctx context.Context) (*cardex.Client, error) {
	opts, err := clientOptions(a.cfg)
	if err != nil {
		return nil, err
	}
	opts = append(opts, cardex.WithLogger(a.logger))

	ctx, cancel := context.WithTimeout(ctx, time.Duration(a.cfg.Index.ReadinessTimeout)*time.Second)
	defer cancel()

	c, err := cardex.New(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("create client: %w", err)
	}
	return c, nil
}

func clientOptions(cfg config.Config) ([]cardex.Option, error) {
	var opts []cardex.Option

	idx := cfg.Index
	switch idx.Backend {
	case config.BackendRedis:
		opts = append(opts, cardex.WithRedis(idx.Addrs[0], idx.Password, idx.Addrs[1:]...))
	case config.BackendValkey:
		opts = append(opts, cardex.WithValkey(idx.Addrs[0], idx.Password, idx.Addrs[1:]...))
	case config.BackendQdrant:
		opts = append(opts, cardex.WithQdrant(idx.Qdrant.Host, idx.Qdrant.Port, idx.Qdrant.APIKey, idx.Qdrant.UseTLS))
	case config.BackendChromem:
		opts = append(opts, cardex.WithChromem(idx.Chromem.Path, idx.Chromem.Compress))
	case config.BackendNone:
		// no index: the retrieval policy decides
	default:
		return nil, fmt.Errorf("unknown index backend %q", idx.Backend)
	}
	if idx.Standalone {
		opts = append(opts, cardex.WithStandalone())
	}
	opts = append(opts,
		cardex.WithCollection(idx.Collection),
		cardex.WithKeyPrefix(idx.KeyPrefix),
		cardex.WithHNSW(idx.HNSWM, idx.HNSWEFConstruct),
	)

	emb := cfg.Embedding
	if emb.Dimensions > 0 {
		opts = append(opts, cardex.WithVectorDimensions(emb.Dimensions))
	}
	switch emb.Provider {
	case config.ProviderHashing:
		opts = append(opts, cardex.WithHashModel(emb.Dimensions))
	case config.ProviderONNX:
		opts = append(opts, cardex.WithONNX(emb.ONNX.ModelPath, emb.ONNX.TokenizerPath, emb.Dimensions, emb.ONNX.LibraryPath))
	case config.ProviderOpenAI:
		opts = append(opts, cardex.WithOpenAI(emb.APIKey, emb.Model, emb.BaseURL))
	case config.ProviderGemini:
		opts = append(opts, cardex.WithGemini(emb.APIKey, emb.Model))
	default:
		return nil, fmt.Errorf("unknown embedding provider %q", emb.Provider)
	}

	mode, err := retrieval.ParseStorageErrorMode(cfg.Retrieval.OnStorageError)
	if err != nil {
		return nil, err
	}
	opts = append(opts, cardex.WithPolicy(cardex.Policy{
		SkipIfUnconfigured: cfg.Retrieval.SkipUnconfigured(),
		OnStorageError:     mode,
	}))
	return opts, nil
}
