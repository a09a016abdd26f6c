package shared

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/google/uuid"
)

// Errors returned by TaskQueue implementations
var (
	ErrQueueNotRunning  = errors.New("queue: not running")
	ErrQueueFull        = errors.New("queue: buffer is full")
	ErrNoTaskHandler    = errors.New("queue: no handler registered for task kind")
	ErrTaskKindRequired = errors.New("queue: task kind is required")
)

// Task is a unit of asynchronous work handed off to a TaskQueue
type Task struct {
	ID         string          `json:"id"`
	Kind       string          `json:"kind"`
	Payload    json.RawMessage `json:"payload"`
	Attempt    int             `json:"attempt"`
	EnqueuedAt time.Time       `json:"enqueued_at"`
}

// NewTask creates a task with a JSON-encoded payload
func NewTask(kind string, payload any) (Task, error) {
	if kind == "" {
		return Task{}, ErrTaskKindRequired
	}
	raw, err := json.Marshal(payload)
	if err != nil {
		return Task{}, err
	}
	return Task{
		ID:         uuid.NewString(),
		Kind:       kind,
		Payload:    raw,
		EnqueuedAt: time.Now(),
	}, nil
}

// Decode unmarshals the task payload into v
func (t Task) Decode(v any) error {
	return json.Unmarshal(t.Payload, v)
}

// TaskHandler processes one task. Handlers must tolerate being invoked
// more than once for the same task.
type TaskHandler func(ctx context.Context, task Task) error

// TaskQueue hands work off to background workers. The concrete backend
// (in-process pool, external broker) is a deployment choice.
type TaskQueue interface {
	// Register binds a handler to a task kind; must be called before Start
	Register(kind string, handler TaskHandler)
	// Submit enqueues a task and returns once it is durably accepted by the backend
	Submit(ctx context.Context, task Task) error
	Start(ctx context.Context) error
	Stop(ctx context.Context) error
}
