package messaging

import (
	"context"
	"time"

	"github.com/google/uuid"
)

const (
	FitQueue        = "fit_queue"
	EvalQueue       = "eval_queue"
	RetryDelay      = 5 * time.Second
	MaxConnectRetry = 5
)

type Task interface {
	Type() string

	Payload() []byte

	Ack() error

	Nack() error

	Reject() error
}

// Payloads carry only the run id; the worker reads the full run
// configuration from the database.

type FitTaskPayload struct {
	RunId uuid.UUID
}

type EvalTaskPayload struct {
	RunId uuid.UUID
}

type Publisher interface {
	PublishFitTask(ctx context.Context, payload FitTaskPayload) error

	PublishEvalTask(ctx context.Context, payload EvalTaskPayload) error

	Close()
}

type Receiver interface {
	Tasks() <-chan Task

	Close()
}
