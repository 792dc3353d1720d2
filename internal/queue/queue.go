// Package queue carries orchestrator triggers over a Redis list so the
// frame-extraction collaborator can hand off work without calling the API.
package queue

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/pffise-create/PinhighAI-sub003/pkg/models"
	"github.com/redis/go-redis/v9"
)

// Handler processes one trigger. Returned errors are logged; the message is not requeued.
type Handler func(ctx context.Context, t models.Trigger) error

// RedisQueue is a FIFO list: producers LPUSH, the consumer BRPOPs.
type RedisQueue struct {
	client      *redis.Client
	key         string
	pollTimeout time.Duration
}

// NewRedisQueue creates a queue on the given list key.
func NewRedisQueue(client *redis.Client, key string, pollTimeout time.Duration) *RedisQueue {
	if pollTimeout <= 0 {
		pollTimeout = 5 * time.Second
	}
	return &RedisQueue{client: client, key: key, pollTimeout: pollTimeout}
}

// Publish enqueues a trigger.
func (q *RedisQueue) Publish(ctx context.Context, t models.Trigger) error {
	payload, err := json.Marshal(t)
	if err != nil {
		return fmt.Errorf("encode trigger: %w", err)
	}
	if err := q.client.LPush(ctx, q.key, payload).Err(); err != nil {
		return fmt.Errorf("publish trigger: %w", err)
	}
	return nil
}

// Len returns the number of pending triggers.
func (q *RedisQueue) Len(ctx context.Context) (int64, error) {
	return q.client.LLen(ctx, q.key).Result()
}

// Consume blocks, handing each trigger to h, until ctx is cancelled.
func (q *RedisQueue) Consume(ctx context.Context, h Handler) error {
	slog.Info("queue consumer started", "key", q.key)
	for {
		if ctx.Err() != nil {
			slog.Info("queue consumer stopped", "key", q.key)
			return nil
		}

		res, err := q.client.BRPop(ctx, q.pollTimeout, q.key).Result()
		if errors.Is(err, redis.Nil) {
			continue
		}
		if err != nil {
			if ctx.Err() != nil {
				continue
			}
			slog.Error("queue receive failed", "key", q.key, "error", err)
			select {
			case <-ctx.Done():
			case <-time.After(time.Second):
			}
			continue
		}

		// BRPOP returns [key, value].
		if len(res) != 2 {
			continue
		}
		var t models.Trigger
		if err := json.Unmarshal([]byte(res[1]), &t); err != nil {
			slog.Warn("dropping malformed trigger", "key", q.key, "error", err)
			continue
		}
		t.Source = models.TriggerQueue
		// Claims are only handed over in-process by the recovery monitor.
		t.ClaimedVersion = 0

		if err := h(ctx, t); err != nil {
			slog.Warn("trigger rejected", "job_id", t.JobID, "error", err)
		}
	}
}
