// Package onnx runs a local transformer embedding model through ONNX Runtime.
// The real runtime needs CGO and the onnxruntime shared library; builds without
// CGO get a loader that always fails.
package onnx

import (
	"errors"
	"fmt"
	"os"

	"go.uber.org/zap"
)

const (
	defaultMaxTokens  = 256
	defaultOutputName = "last_hidden_state"
)

// Config describes an exported sentence-transformer model.
type Config struct {
	// ModelPath is the .onnx file.
	ModelPath string
	// TokenizerPath is the HuggingFace tokenizer.json of the same model.
	TokenizerPath string
	// LibraryPath of onnxruntime.so / .dylib. Empty uses the platform default.
	LibraryPath string
	// Dimensions is the hidden size of the model, e.g. 384 for all-MiniLM-L6-v2.
	Dimensions int
	// MaxTokens pads and truncates every input to this length.
	MaxTokens int
	// OutputName is the per-token output tensor.
	OutputName string
	// NoTokenTypeIDs drops the token_type_ids input for models that do not declare it.
	NoTokenTypeIDs bool
	Name           string
	Logger         *zap.Logger
}

func (c *Config) applyDefaults() {
	if c.MaxTokens <= 0 {
		c.MaxTokens = defaultMaxTokens
	}
	if c.OutputName == "" {
		c.OutputName = defaultOutputName
	}
	if c.Name == "" {
		c.Name = c.ModelPath
	}
	if c.Logger == nil {
		c.Logger = zap.NewNop()
	}
}

func (c *Config) validate() error {
	if c.Dimensions <= 0 {
		return errors.New("onnx: dimensions must be positive")
	}
	if c.ModelPath == "" {
		return errors.New("onnx: model path is required")
	}
	if c.TokenizerPath == "" {
		return errors.New("onnx: tokenizer path is required")
	}
	for _, p := range []string{c.ModelPath, c.TokenizerPath} {
		if _, err := os.Stat(p); err != nil {
			return fmt.Errorf("onnx: %w", err)
		}
	}
	return nil
}

// attendedRows returns the rows of a (maxTokens x dims) output whose mask is 1.
func attendedRows(output []float32, mask []int64, dims int) [][]float32 {
	rows := make([][]float32, 0, len(mask))
	for i, m := range mask {
		if m == 0 {
			continue
		}
		row := make([]float32, dims)
		copy(row, output[i*dims:(i+1)*dims])
		rows = append(rows, row)
	}
	return rows
}

// fillInputs copies token ids into fixed-size buffers, truncating and zero padding.
func fillInputs(ids, typeIDs, mask []int, inputIDs, tokenTypeIDs, attention []int64) {
	clear(inputIDs)
	clear(tokenTypeIDs)
	clear(attention)
	n := min(len(ids), len(inputIDs))
	for i := range n {
		inputIDs[i] = int64(ids[i])
		if i < len(typeIDs) {
			tokenTypeIDs[i] = int64(typeIDs[i])
		}
		if i < len(mask) {
			attention[i] = int64(mask[i])
		} else {
			attention[i] = 1
		}
	}
}
