package queue

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"
)

// Queue is the shared work queue carrying edit ids from the API to the
// workers, backed by a Redis list. Delivery is at-least-once: a redelivered
// or duplicate id only re-invokes the processor, which treats terminal
// edits as a no-op.
type Queue struct {
	rdb *redis.Client
	key string
}

// New creates a queue scoped by deployment environment, mirroring the cache
// key scheme so parallel deployments never steal each other's jobs.
func New(rdb *redis.Client, env string) *Queue {
	return &Queue{rdb: rdb, key: fmt.Sprintf("%s:queue:edit_jobs", env)}
}

// Enqueue pushes one edit id onto the queue. Called exactly once per
// submission.
func (q *Queue) Enqueue(ctx context.Context, editID int64) error {
	if err := q.rdb.LPush(ctx, q.key, strconv.FormatInt(editID, 10)).Err(); err != nil {
		return fmt.Errorf("queue: enqueue edit %d: %w", editID, err)
	}
	return nil
}

// Dequeue blocks up to timeout for the next edit id. The second return is
// false when the wait timed out without a job.
func (q *Queue) Dequeue(ctx context.Context, timeout time.Duration) (int64, bool, error) {
	res, err := q.rdb.BRPop(ctx, timeout, q.key).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return 0, false, nil
		}
		return 0, false, fmt.Errorf("queue: dequeue: %w", err)
	}
	// BRPop returns [key, value].
	if len(res) != 2 {
		return 0, false, fmt.Errorf("queue: unexpected brpop reply of length %d", len(res))
	}
	id, err := strconv.ParseInt(res[1], 10, 64)
	if err != nil {
		return 0, false, fmt.Errorf("queue: malformed edit id %q: %w", res[1], err)
	}
	return id, true, nil
}

// Key exposes the underlying list key, used in logs.
func (q *Queue) Key() string {
	return q.key
}
