package api

import (
	"time"

	"github.com/google/uuid"
)

// LossWeights are the angle-objective loss parameters. They are passed
// through to the trainer unchanged.
type LossWeights struct {
	W1        float64
	W2        float64
	W3        float64
	CosineTau float64
	IbnTau    float64
	AngleTau  float64
}

type LoraOptions struct {
	Apply         bool
	R             int
	Alpha         int
	Dropout       float64
	TargetModules []string
}

type FitOptions struct {
	Epochs         int
	BatchSize      int
	LearningRate   float64
	WarmupSteps    int
	SaveSteps      int
	EvalSteps      int
	GradAccumSteps int
	MaxLength      int

	// PoolingStrategy is one of `avg`, `cls`, `cls_avg`, `first_last_avg`.
	PoolingStrategy string

	// LoadKbit is 0 (full precision) or one of 4, 8, 16.
	LoadKbit int

	Loss LossWeights
	Lora LoraOptions
}

type TaskInfo struct {
	Name      string
	LabelKind string
	EvalSplit string
}

type Run struct {
	Id   uuid.UUID
	Name string

	Task      string
	ModelType string
	Mode      string
	Status    string

	CreationTime   time.Time
	CompletionTime *time.Time

	CheckpointKey string

	Corrcoef *float64 `json:"Corrcoef,omitempty"`
	Accuracy *float64 `json:"Accuracy,omitempty"`
}

type CreateTrainRunRequest struct {
	Name      string
	Task      string
	ModelType string

	Seed            int64
	Workers         int
	DebugSampleSize int

	Options FitOptions
}

type CreateTrainRunResponse struct {
	RunId uuid.UUID
}

type CreateEvalRunRequest struct {
	Task      string
	ModelType string

	// CheckpointKey locates the trained checkpoint in the checkpoint bucket.
	CheckpointKey string

	BatchSize int
	Workers   int

	// Filter is an optional record filter expression applied to the eval
	// split, e.g. `label > 0.5 AND text1 CONTAINS "dog"`.
	Filter string

	// ConditionalPredictions requests per-example cosine predictions
	// (the C-STS test mode) instead of aggregate scores.
	ConditionalPredictions bool
}

type CreateEvalRunResponse struct {
	RunId uuid.UUID
}

type ListRunsQuery struct {
	Status string `schema:"status"`
	Task   string `schema:"task"`
	Mode   string `schema:"mode"`
	Limit  int    `schema:"limit"`
}
