package core

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"github.com/daulet/tokenizers"
	ort "github.com/yalue/onnxruntime_go"

	"sts-backend/internal/dataset"
	"sts-backend/pkg/api"
)

// OnnxSentenceEncoder runs an exported transformer encoder locally and mean
// pools the last hidden state into sentence embeddings. It cannot train;
// it exists so evaluation runs do not need the trainer sidecar.
type OnnxSentenceEncoder struct {
	session    *ort.DynamicAdvancedSession
	tokenizer  *tokenizers.Tokenizer
	hiddenSize int64
	maxLength  uint32
}

type encoderConfig struct {
	HiddenSize            int64  `json:"hidden_size"`
	MaxPositionEmbeddings uint32 `json:"max_position_embeddings"`
}

func loadEncoderConfig(path string) (encoderConfig, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return encoderConfig{}, err
	}
	var cfg encoderConfig
	if err := json.Unmarshal(data, &cfg); err != nil {
		return encoderConfig{}, err
	}
	if cfg.HiddenSize <= 0 {
		return encoderConfig{}, fmt.Errorf("config %s has no hidden_size", path)
	}
	return cfg, nil
}

func LoadOnnxSentenceEncoder(modelDir string) (Model, error) {
	cfg, err := loadEncoderConfig(filepath.Join(modelDir, "config.json"))
	if err != nil {
		return nil, fmt.Errorf("encoder config load: %w", err)
	}

	tk, err := tokenizers.FromFile(filepath.Join(modelDir, "tokenizer.json"))
	if err != nil {
		return nil, fmt.Errorf("tokenizer load: %w", err)
	}

	onnxBytes, err := os.ReadFile(filepath.Join(modelDir, "model.onnx"))
	if err != nil {
		tk.Close()
		return nil, fmt.Errorf("read onnx model: %w", err)
	}

	session, err := ort.NewDynamicAdvancedSessionWithONNXData(
		onnxBytes,
		[]string{"input_ids", "attention_mask"},
		[]string{"last_hidden_state"},
		nil,
	)
	if err != nil {
		tk.Close()
		return nil, fmt.Errorf("failed to create in-memory session: %w", err)
	}

	maxLength := cfg.MaxPositionEmbeddings
	if maxLength == 0 {
		maxLength = 512
	}

	return &OnnxSentenceEncoder{
		session:    session,
		tokenizer:  tk,
		hiddenSize: cfg.HiddenSize,
		maxLength:  maxLength,
	}, nil
}

func (m *OnnxSentenceEncoder) Fit(_ context.Context, _, _ []dataset.Record, _ api.FitOptions) error {
	return ErrFitNotSupported
}

func (m *OnnxSentenceEncoder) Save(_ context.Context, _ string) error {
	return ErrFitNotSupported
}

func (m *OnnxSentenceEncoder) Encode(ctx context.Context, texts []string) ([][]float32, error) {
	embeddings := make([][]float32, len(texts))
	for i, text := range texts {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		emb, err := m.encodeOne(text)
		if err != nil {
			return nil, fmt.Errorf("encoding text %d: %w", i, err)
		}
		embeddings[i] = emb
	}
	return embeddings, nil
}

func (m *OnnxSentenceEncoder) encodeOne(text string) ([]float32, error) {
	enc := m.tokenizer.EncodeWithOptions(text, true, tokenizers.WithReturnAllAttributes())

	n := len(enc.IDs)
	if n == 0 {
		return nil, fmt.Errorf("tokenizer produced no tokens")
	}
	if uint32(n) > m.maxLength {
		n = int(m.maxLength)
	}

	ids := make([]int64, n)
	mask := make([]int64, n)
	for i := 0; i < n; i++ {
		ids[i] = int64(enc.IDs[i])
		mask[i] = int64(enc.AttentionMask[i])
	}

	B, L, H := int64(1), int64(n), m.hiddenSize
	idsT, err := ort.NewTensor(ort.NewShape(B, L), ids)
	if err != nil {
		return nil, err
	}
	defer idsT.Destroy()
	maskT, err := ort.NewTensor(ort.NewShape(B, L), mask)
	if err != nil {
		return nil, err
	}
	defer maskT.Destroy()
	outT, err := ort.NewEmptyTensor[float32](ort.NewShape(B, L, H))
	if err != nil {
		return nil, err
	}
	defer outT.Destroy()

	if err := m.session.Run([]ort.Value{idsT, maskT}, []ort.Value{outT}); err != nil {
		return nil, fmt.Errorf("session run error: %w", err)
	}

	// Mean pool over tokens with non-zero attention.
	flat := outT.GetData()
	emb := make([]float32, H)
	var count float32
	for t := int64(0); t < L; t++ {
		if mask[t] == 0 {
			continue
		}
		start := t * H
		for j := int64(0); j < H; j++ {
			emb[j] += flat[start+j]
		}
		count++
	}
	if count == 0 {
		return nil, fmt.Errorf("all tokens masked out")
	}
	for j := range emb {
		emb[j] /= count
	}
	return emb, nil
}

func (m *OnnxSentenceEncoder) Release() {
	m.session.Destroy()
	m.tokenizer.Close()
}
