package core

import (
	"context"
	"fmt"
	"time"

	"github.com/go-resty/resty/v2"

	"sts-backend/internal/dataset"
	"sts-backend/pkg/api"
)

// RemoteModel talks to the embedding-trainer sidecar, which hosts the
// actual sentence-embedding library. The sidecar keeps one model session
// per backend process, so calls on a RemoteModel are not safe to
// interleave across runs.
type RemoteModel struct {
	client   *resty.Client
	modelDir string
}

func NewRemoteModel(trainerURL, modelDir string) (*RemoteModel, error) {
	client := resty.New().SetBaseURL(trainerURL)

	model := &RemoteModel{client: client, modelDir: modelDir}

	res, err := client.R().
		SetBody(map[string]string{"model_dir": modelDir}).
		Post("/load")
	if err != nil {
		return nil, fmt.Errorf("error connecting to trainer: %w", err)
	}
	if !res.IsSuccess() {
		return nil, fmt.Errorf("trainer failed to load model: status %d: %s", res.StatusCode(), res.String())
	}

	return model, nil
}

type fitRequest struct {
	Train   []dataset.Record `json:"train"`
	Valid   []dataset.Record `json:"valid,omitempty"`
	Options api.FitOptions   `json:"options"`
}

func (m *RemoteModel) Fit(ctx context.Context, train, valid []dataset.Record, opts api.FitOptions) error {
	// Training runs for hours; the sidecar streams progress to its own
	// logs, we only wait for the terminal status.
	res, err := m.client.R().
		SetContext(ctx).
		SetBody(fitRequest{Train: train, Valid: valid, Options: opts}).
		Post("/fit")
	if err != nil {
		return fmt.Errorf("error sending fit request to trainer: %w", err)
	}
	if !res.IsSuccess() {
		return fmt.Errorf("trainer fit failed: status %d: %s", res.StatusCode(), res.String())
	}
	return nil
}

type encodeRequest struct {
	Texts []string `json:"texts"`
}

type encodeResponse struct {
	Embeddings [][]float32 `json:"embeddings"`
}

func (m *RemoteModel) Encode(ctx context.Context, texts []string) ([][]float32, error) {
	reqCtx, cancel := context.WithTimeout(ctx, 5*time.Minute)
	defer cancel()

	var parsed encodeResponse
	res, err := m.client.R().
		SetContext(reqCtx).
		SetBody(encodeRequest{Texts: texts}).
		SetResult(&parsed).
		Post("/encode")
	if err != nil {
		return nil, fmt.Errorf("error sending encode request to trainer: %w", err)
	}
	if !res.IsSuccess() {
		return nil, fmt.Errorf("trainer encode failed: status %d: %s", res.StatusCode(), res.String())
	}
	if len(parsed.Embeddings) != len(texts) {
		return nil, fmt.Errorf("trainer returned %d embeddings for %d texts", len(parsed.Embeddings), len(texts))
	}
	return parsed.Embeddings, nil
}

func (m *RemoteModel) Save(ctx context.Context, dir string) error {
	res, err := m.client.R().
		SetContext(ctx).
		SetBody(map[string]string{"save_dir": dir}).
		Post("/save")
	if err != nil {
		return fmt.Errorf("error sending save request to trainer: %w", err)
	}
	if !res.IsSuccess() {
		return fmt.Errorf("trainer save failed: status %d: %s", res.StatusCode(), res.String())
	}
	return nil
}

func (m *RemoteModel) Release() {
	if res, err := m.client.R().Post("/release"); err != nil || !res.IsSuccess() {
		// Best effort, the sidecar also releases on the next /load.
		return
	}
}
