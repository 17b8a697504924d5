package jobs

import (
	"context"
	"fmt"

	"github.com/hibiken/asynq"
)

// Registrar is the part of *asynq.Scheduler used to install periodic tasks.
type Registrar interface {
	Register(cronspec string, task *asynq.Task, opts ...asynq.Option) (string, error)
}

// RegisterPeriodic installs the cache sweep on cronspec ("@every 10m",
// "0 * * * *"). An empty cronspec disables the sweep.
func RegisterPeriodic(s Registrar, cronspec string) (string, error) {
	if cronspec == "" {
		return "", nil
	}
	id, err := s.Register(cronspec, NewSweepTask())
	if err != nil {
		return "", fmt.Errorf("register cache sweep %q: %w", cronspec, err)
	}
	return id, nil
}

// Enqueuer is the part of *asynq.Client used by producers.
type Enqueuer interface {
	EnqueueContext(ctx context.Context, task *asynq.Task, opts ...asynq.Option) (*asynq.TaskInfo, error)
}

// EnqueueCall queues a gateway call and returns its ID.
func EnqueueCall(ctx context.Context, q Enqueuer, p CallPayload) (string, error) {
	task, err := NewCallTask(p)
	if err != nil {
		return "", err
	}
	info, err := q.EnqueueContext(ctx, task)
	if err != nil {
		return "", fmt.Errorf("enqueue %s: %w", TaskGatewayCall, err)
	}
	return info.ID, nil
}
