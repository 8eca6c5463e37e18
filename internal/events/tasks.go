package events

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/hibiken/asynq"
)

// TaskPushDeliver is the asynq task type carrying an event to the push endpoint.
const TaskPushDeliver = "push:deliver"

// Enqueuer is the subset of *asynq.Client used by TaskNotifier.
type Enqueuer interface {
	EnqueueContext(ctx context.Context, task *asynq.Task, opts ...asynq.Option) (*asynq.TaskInfo, error)
}

// TaskNotifier enqueues push deliveries for subscribed topics.
type TaskNotifier struct {
	Client   Enqueuer
	MaxRetry int
	Timeout  time.Duration
}

// Notify implements Notifier.
func (n TaskNotifier) Notify(ctx context.Context, event Event) error {
	if n.Client == nil || !Subscribed(event.Topic) {
		return nil
	}
	task, err := NewPushTask(event)
	if err != nil {
		return err
	}
	opts := []asynq.Option{asynq.TaskID(event.ID)}
	if n.MaxRetry > 0 {
		opts = append(opts, asynq.MaxRetry(n.MaxRetry))
	}
	if n.Timeout > 0 {
		opts = append(opts, asynq.Timeout(n.Timeout))
	}
	if _, err := n.Client.EnqueueContext(ctx, task, opts...); err != nil {
		if errors.Is(err, asynq.ErrTaskIDConflict) {
			return nil
		}
		return fmt.Errorf("enqueue push task: %w", err)
	}
	return nil
}

// NewPushTask encodes the event as a push delivery task.
func NewPushTask(event Event) (*asynq.Task, error) {
	body, err := json.Marshal(event)
	if err != nil {
		return nil, fmt.Errorf("encode push task: %w", err)
	}
	return asynq.NewTask(TaskPushDeliver, body), nil
}

// DecodePushTask reverses NewPushTask.
func DecodePushTask(task *asynq.Task) (Event, error) {
	var event Event
	if task == nil {
		return event, errors.New("nil task")
	}
	if err := json.Unmarshal(task.Payload(), &event); err != nil {
		return event, fmt.Errorf("decode push task: %w", err)
	}
	if event.ID == "" {
		return event, errors.New("push task without event id")
	}
	return event, nil
}
