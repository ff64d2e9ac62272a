package database

import (
	"database/sql"
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
)

const (
	RunQueued    string = "QUEUED"
	RunRunning   string = "RUNNING"
	RunCompleted string = "COMPLETED"
	RunFailed    string = "FAILED"
)

const (
	ModeTrain string = "train"
	ModeEval  string = "eval"
)

// TrainRun records one fine-tuning job: the task to train on, the model
// backend, and the delegated hyperparameters serialized as json.
type TrainRun struct {
	Id uuid.UUID `gorm:"type:uuid;primaryKey"`

	Name      string
	Task      string `gorm:"size:32;not null"`
	ModelType string `gorm:"size:20;not null"`
	Status    string `gorm:"size:20;not null"`

	Seed            int64
	Workers         int
	DebugSampleSize int

	Options datatypes.JSON

	// CheckpointKey is the prefix of the uploaded checkpoint in the
	// checkpoint bucket, set on completion.
	CheckpointKey string

	CreationTime   time.Time
	CompletionTime sql.NullTime

	ErrorMessage string
}

// EvalRun records one evaluation job over a trained checkpoint.
type EvalRun struct {
	Id uuid.UUID `gorm:"type:uuid;primaryKey"`

	Task      string `gorm:"size:32;not null"`
	ModelType string `gorm:"size:20;not null"`
	Status    string `gorm:"size:20;not null"`

	CheckpointKey string

	BatchSize int
	Workers   int

	// Filter is an optional record filter expression applied to the eval
	// split before scoring.
	Filter string

	// ConditionalPredictions switches to the conditional STS test mode,
	// which writes per-example cosine predictions instead of aggregates.
	ConditionalPredictions bool

	Corrcoef sql.NullFloat64
	Accuracy sql.NullFloat64

	// PredictionsKey locates the per-example predictions file when
	// ConditionalPredictions is set.
	PredictionsKey sql.NullString

	CreationTime   time.Time
	CompletionTime sql.NullTime

	ErrorMessage string
}
