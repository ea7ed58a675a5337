// Package queue runs the outbound work of lifecycle operations (AI analysis
// and notifications) on an asynq task queue backed by Redis.
package queue

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/hibiken/asynq"

	"standup-desk/internal/config"
)

// Client enqueues tasks for the worker
type Client struct {
	client *asynq.Client
	opts   []asynq.Option
}

// NewClient creates a queue client for the Redis instance at redisURL
func NewClient(redisURL string, cfg config.QueueConfig) (*Client, error) {
	redisOpt, err := asynq.ParseRedisURI(redisURL)
	if err != nil {
		return nil, fmt.Errorf("failed to parse Redis URL: %w", err)
	}

	return &Client{
		client: asynq.NewClient(redisOpt),
		opts:   taskOptions(cfg),
	}, nil
}

func taskOptions(cfg config.QueueConfig) []asynq.Option {
	maxRetry := cfg.MaxRetry
	if maxRetry < 0 {
		maxRetry = 0
	}
	timeout := cfg.TaskTimeout
	if timeout <= 0 {
		timeout = 2 * time.Minute
	}
	retention := cfg.Retention
	if retention <= 0 {
		retention = 24 * time.Hour
	}
	return []asynq.Option{
		asynq.MaxRetry(maxRetry),
		asynq.Timeout(timeout),
		asynq.Retention(retention),
	}
}

// Publish implements tasks.Publisher
func (c *Client) Publish(ctx context.Context, taskType string, payload interface{}) error {
	data, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("failed to marshal %s payload: %w", taskType, err)
	}

	info, err := c.client.EnqueueContext(ctx, asynq.NewTask(taskType, data, c.opts...))
	if err != nil {
		return fmt.Errorf("failed to enqueue %s: %w", taskType, err)
	}

	slog.Debug("Task enqueued", "type", taskType, "task_id", info.ID, "queue", info.Queue)
	return nil
}

// Close closes the Redis connection
func (c *Client) Close() error {
	return c.client.Close()
}
