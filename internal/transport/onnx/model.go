//go:build cgo

package onnx

import (
	"context"
	"fmt"
	"sync"

	"github.com/sugarme/tokenizer"
	"github.com/sugarme/tokenizer/pretrained"
	ort "github.com/yalue/onnxruntime_go"
	"go.uber.org/zap"

	"github.com/kailas-cloud/cardex/internal/domain"
)

var envMu sync.Mutex

// Model runs one ONNX session with pre-allocated tensors. Inference is
// serialized because the tensors are shared.
type Model struct {
	name       string
	dimensions int
	maxTokens  int
	tokenizer  *tokenizer.Tokenizer

	session             *ort.AdvancedSession
	inputIDsTensor      *ort.Tensor[int64]
	attentionMaskTensor *ort.Tensor[int64]
	tokenTypeIDsTensor  *ort.Tensor[int64]
	outputTensor        *ort.Tensor[float32]

	mu sync.Mutex
}

// Load returns a load function that initializes ONNX Runtime, the tokenizer and the session.
func Load(cfg Config) func(ctx context.Context) (domain.Model, error) {
	return func(_ context.Context) (domain.Model, error) {
		m, err := NewModel(cfg)
		if err != nil {
			return nil, err
		}
		return m, nil
	}
}

// NewModel creates the session. The onnxruntime environment is initialized once per process.
func NewModel(cfg Config) (*Model, error) {
	cfg.applyDefaults()
	if err := cfg.validate(); err != nil {
		return nil, err
	}

	if err := initEnvironment(cfg.LibraryPath); err != nil {
		return nil, err
	}

	tk, err := pretrained.FromFile(cfg.TokenizerPath)
	if err != nil {
		return nil, fmt.Errorf("onnx: load tokenizer %s: %w", cfg.TokenizerPath, err)
	}

	m := &Model{
		name:       cfg.Name,
		dimensions: cfg.Dimensions,
		maxTokens:  cfg.MaxTokens,
		tokenizer:  tk,
	}
	if err := m.createSession(cfg); err != nil {
		_ = m.Close()
		return nil, err
	}

	cfg.Logger.Info("ONNX model session created",
		zap.String("model", cfg.ModelPath),
		zap.Int("dimensions", cfg.Dimensions),
		zap.Int("max_tokens", cfg.MaxTokens),
	)
	return m, nil
}

func initEnvironment(libraryPath string) error {
	envMu.Lock()
	defer envMu.Unlock()

	if ort.IsInitialized() {
		return nil
	}
	if libraryPath != "" {
		ort.SetSharedLibraryPath(libraryPath)
	}
	if err := ort.InitializeEnvironment(); err != nil {
		return fmt.Errorf("onnx: initialize runtime: %w", err)
	}
	return nil
}

func (m *Model) createSession(cfg Config) error {
	shape := ort.NewShape(1, int64(m.maxTokens))

	var err error
	if m.inputIDsTensor, err = ort.NewTensor(shape, make([]int64, m.maxTokens)); err != nil {
		return fmt.Errorf("onnx: input_ids tensor: %w", err)
	}
	if m.attentionMaskTensor, err = ort.NewTensor(shape, make([]int64, m.maxTokens)); err != nil {
		return fmt.Errorf("onnx: attention_mask tensor: %w", err)
	}
	m.outputTensor, err = ort.NewTensor(
		ort.NewShape(1, int64(m.maxTokens), int64(m.dimensions)),
		make([]float32, m.maxTokens*m.dimensions),
	)
	if err != nil {
		return fmt.Errorf("onnx: output tensor: %w", err)
	}

	inputNames := []string{"input_ids", "attention_mask"}
	inputs := []ort.ArbitraryTensor{m.inputIDsTensor, m.attentionMaskTensor}
	if !cfg.NoTokenTypeIDs {
		if m.tokenTypeIDsTensor, err = ort.NewTensor(shape, make([]int64, m.maxTokens)); err != nil {
			return fmt.Errorf("onnx: token_type_ids tensor: %w", err)
		}
		inputNames = append(inputNames, "token_type_ids")
		inputs = append(inputs, m.tokenTypeIDsTensor)
	}

	m.session, err = ort.NewAdvancedSession(
		cfg.ModelPath,
		inputNames,
		[]string{cfg.OutputName},
		inputs,
		[]ort.ArbitraryTensor{m.outputTensor},
		nil,
	)
	if err != nil {
		return fmt.Errorf("onnx: create session: %w", err)
	}
	return nil
}

// Encode implements domain.Model: one row per attended token.
func (m *Model) Encode(ctx context.Context, text string) ([][]float32, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	enc, err := m.tokenizer.EncodeSingle(text, true)
	if err != nil {
		return nil, fmt.Errorf("tokenize: %w", err)
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if m.session == nil {
		return nil, fmt.Errorf("onnx: model %s is closed", m.name)
	}

	typeIDs := make([]int64, m.maxTokens)
	if m.tokenTypeIDsTensor != nil {
		typeIDs = m.tokenTypeIDsTensor.GetData()
	}
	mask := m.attentionMaskTensor.GetData()
	fillInputs(enc.Ids, enc.TypeIds, enc.AttentionMask, m.inputIDsTensor.GetData(), typeIDs, mask)

	if err := m.session.Run(); err != nil {
		return nil, fmt.Errorf("inference failed: %w", err)
	}

	return attendedRows(m.outputTensor.GetData(), mask, m.dimensions), nil
}

// Dimensions implements domain.Model.
func (m *Model) Dimensions() int { return m.dimensions }

// Name implements domain.Model.
func (m *Model) Name() string { return m.name }

// Close destroys the session and tensors.
func (m *Model) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	var err error
	if m.session != nil {
		err = m.session.Destroy()
		m.session = nil
	}
	if m.inputIDsTensor != nil {
		_ = m.inputIDsTensor.Destroy()
		m.inputIDsTensor = nil
	}
	if m.attentionMaskTensor != nil {
		_ = m.attentionMaskTensor.Destroy()
		m.attentionMaskTensor = nil
	}
	if m.tokenTypeIDsTensor != nil {
		_ = m.tokenTypeIDsTensor.Destroy()
		m.tokenTypeIDsTensor = nil
	}
	if m.outputTensor != nil {
		_ = m.outputTensor.Destroy()
		m.outputTensor = nil
	}
	return err
}
