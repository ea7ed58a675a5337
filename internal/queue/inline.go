package queue

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/hibiken/asynq"
)

// Inline runs tasks in-process when no Redis is configured. Each task runs
// in its own goroutine with a single attempt.
type Inline struct {
	handlers *Handlers
	timeout  time.Duration
	wg       sync.WaitGroup
}

// NewInline creates an in-process publisher
func NewInline(h *Handlers, timeout time.Duration) *Inline {
	if timeout <= 0 {
		timeout = 2 * time.Minute
	}
	return &Inline{handlers: h, timeout: timeout}
}

// Publish implements tasks.Publisher
func (in *Inline) Publish(ctx context.Context, taskType string, payload interface{}) error {
	fn, ok := in.handlers.Routes()[taskType]
	if !ok {
		return fmt.Errorf("no handler for task type %s", taskType)
	}
	data, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("failed to marshal %s payload: %w", taskType, err)
	}

	in.wg.Add(1)
	go func() {
		defer in.wg.Done()
		defer func() {
			if r := recover(); r != nil {
				slog.Error("Task panicked", "task_type", taskType, "panic", r)
			}
		}()

		// detached from the request that published the task
		runCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), in.timeout)
		defer cancel()

		if err := fn(runCtx, data); err != nil {
			level := slog.LevelError
			if errors.Is(err, asynq.SkipRetry) {
				level = slog.LevelWarn
			}
			slog.Log(runCtx, level, "Task execution failed", "task_type", taskType, "error", err)
		}
	}()
	return nil
}

// Wait blocks until every published task has finished
func (in *Inline) Wait() {
	in.wg.Wait()
}
