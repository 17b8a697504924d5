package jobs

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/hibiken/asynq"
)

const (
	TaskCacheSweep  = "cache:sweep"
	TaskGatewayCall = "gateway:call"

	QueueCalls       = "calls"
	QueueMaintenance = "maintenance"
)

// CallPayload is a gateway call queued for a worker.
type CallPayload struct {
	ID      string            `json:"id"`
	Service string            `json:"service"`
	Path    string            `json:"path"`
	Params  map[string]string `json:"params,omitempty"`
	Caller  string            `json:"caller,omitempty"`
}

// NewCallTask builds a gateway:call task. A fresh ID is assigned when the
// payload has none; it doubles as the asynq task ID so duplicates are refused.
func NewCallTask(p CallPayload) (*asynq.Task, error) {
	if p.Service == "" {
		return nil, fmt.Errorf("call task: service is required")
	}
	if p.ID == "" {
		p.ID = uuid.NewString()
	}
	b, err := json.Marshal(p)
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TaskGatewayCall, b,
		asynq.TaskID(p.ID),
		asynq.Queue(QueueCalls),
		asynq.MaxRetry(3),
		asynq.Timeout(2*time.Minute),
	), nil
}

// NewSweepTask builds a cache:sweep task.
func NewSweepTask() *asynq.Task {
	return asynq.NewTask(TaskCacheSweep, nil,
		asynq.Queue(QueueMaintenance),
		asynq.MaxRetry(1),
		asynq.Timeout(5*time.Minute),
	)
}
