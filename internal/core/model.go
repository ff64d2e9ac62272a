package core

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"sts-backend/internal/dataset"
	"sts-backend/pkg/api"
)

// ModelType selects the embedding-model backend.
type ModelType string

const (
	// RemoteTrainer delegates fit/encode/save to the embedding-trainer
	// sidecar over HTTP.
	RemoteTrainer ModelType = "remote"
	// OnnxEncoder runs an exported sentence encoder locally. Encode only.
	OnnxEncoder ModelType = "onnx"
)

func ParseModelType(s string) (ModelType, error) {
	switch ModelType(strings.ToLower(s)) {
	case RemoteTrainer:
		return RemoteTrainer, nil
	case OnnxEncoder:
		return OnnxEncoder, nil
	default:
		return "", fmt.Errorf("unknown model type %q", s)
	}
}

// ErrFitNotSupported is returned by encode-only backends.
var ErrFitNotSupported = errors.New("model backend does not support training")

// Model is the boundary to the embedding-model library. Everything behind
// it (angle loss, pooling, LoRA injection, quantized loading) is delegated;
// this side only moves normalized records and hyperparameters across.
type Model interface {
	Fit(ctx context.Context, train, valid []dataset.Record, opts api.FitOptions) error

	Encode(ctx context.Context, texts []string) ([][]float32, error)

	Save(ctx context.Context, dir string) error

	Release()
}

type ModelLoader func(modelDir string) (Model, error)

func NewModelLoaders(trainerURL string) map[ModelType]ModelLoader {
	return map[ModelType]ModelLoader{
		RemoteTrainer: func(modelDir string) (Model, error) {
			return NewRemoteModel(trainerURL, modelDir)
		},
		OnnxEncoder: func(modelDir string) (Model, error) {
			return LoadOnnxSentenceEncoder(modelDir)
		},
	}
}
