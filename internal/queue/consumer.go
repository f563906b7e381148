package queue

import (
	"context"
	"errors"
	"time"

	"github.com/rs/zerolog"
)

const dequeueWait = 2 * time.Second

// Handler processes one dequeued edit id to completion.
type Handler func(ctx context.Context, editID int64) error

// Source is the dequeue side of the work queue.
type Source interface {
	Dequeue(ctx context.Context, timeout time.Duration) (int64, bool, error)
	Key() string
}

// Consumer pulls edit ids off the queue and runs the handler for each. All
// retry decisions live inside the handler; the consumer never pushes a
// failed id back onto the queue, so a handler error ends that delivery.
type Consumer struct {
	queue   Source
	handler Handler
	log     zerolog.Logger

	// softLimit begins graceful wind-down logging; hardLimit cancels the
	// job's context outright to bound occupancy from a hung external call.
	softLimit time.Duration
	hardLimit time.Duration
}

func NewConsumer(q Source, handler Handler, softLimit, hardLimit time.Duration, log zerolog.Logger) *Consumer {
	return &Consumer{
		queue:     q,
		handler:   handler,
		log:       log,
		softLimit: softLimit,
		hardLimit: hardLimit,
	}
}

// Run blocks, consuming jobs until ctx is cancelled.
func (c *Consumer) Run(ctx context.Context) error {
	c.log.Info().Str("queue", c.queue.Key()).Msg("consumer: started")
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}

		editID, ok, err := c.queue.Dequeue(ctx, dequeueWait)
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			c.log.Error().Err(err).Msg("consumer: dequeue failed")
			time.Sleep(dequeueWait)
			continue
		}
		if !ok {
			continue
		}

		c.process(ctx, editID)
	}
}

func (c *Consumer) process(parent context.Context, editID int64) {
	ctx, cancel := context.WithTimeout(parent, c.hardLimit)
	defer cancel()

	windDown := time.AfterFunc(c.softLimit, func() {
		c.log.Warn().
			Int64("edit_id", editID).
			Dur("soft_limit", c.softLimit).
			Msg("consumer: job exceeded soft time limit, winding down")
	})
	defer windDown.Stop()

	start := time.Now()
	c.log.Info().Int64("edit_id", editID).Msg("consumer: picked job")
	if err := c.handler(ctx, editID); err != nil {
		if errors.Is(err, context.DeadlineExceeded) {
			c.log.Error().
				Int64("edit_id", editID).
				Dur("hard_limit", c.hardLimit).
				Msg("consumer: job force-terminated at hard time limit")
			return
		}
		c.log.Error().Err(err).Int64("edit_id", editID).Msg("consumer: job failed")
		return
	}
	c.log.Info().Int64("edit_id", editID).Dur("took", time.Since(start)).Msg("consumer: job done")
}
