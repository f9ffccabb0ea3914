package registry

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
)

// Client provides deployment-scoped Redis operations for the run registry.
// The client is thread-safe and can be used concurrently from multiple goroutines.
type Client struct {
	rdb        *redis.Client
	deployment string
}

// NewClient creates a registry client for the specified deployment.
// Returns an error if deployment is empty.
func NewClient(redisOpts *redis.Options, deployment string) (*Client, error) {
	if deployment == "" {
		return nil, fmt.Errorf("deployment name cannot be empty")
	}

	return &Client{
		rdb:        redis.NewClient(redisOpts),
		deployment: deployment,
	}, nil
}

// NewClientFromURL parses a redis:// URL and creates a client
func NewClientFromURL(redisURL, deployment string) (*Client, error) {
	opts, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, fmt.Errorf("invalid Redis URL: %w", err)
	}
	return NewClient(opts, deployment)
}

// Close closes the Redis connection. Implements io.Closer.
func (c *Client) Close() error {
	return c.rdb.Close()
}

// Ping verifies Redis connectivity
func (c *Client) Ping(ctx context.Context) error {
	return c.rdb.Ping(ctx).Err()
}

// RecordPrepared stores a newly prepared run, indexes it by creation time and
// publishes it on the run events channel.
func (c *Client) RecordPrepared(ctx context.Context, r *Run) error {
	if r.Deployment != c.deployment {
		return fmt.Errorf("run belongs to deployment '%s', client is scoped to '%s'", r.Deployment, c.deployment)
	}
	if err := r.Validate(); err != nil {
		return fmt.Errorf("invalid run: %w", err)
	}

	hash, err := RunToHash(r)
	if err != nil {
		return fmt.Errorf("failed to serialize run: %w", err)
	}

	_, err = c.rdb.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.HSet(ctx, RunKey(c.deployment, r.ID), hash)
		pipe.ZAdd(ctx, RunsIndexKey(c.deployment), redis.Z{
			Score:  float64(r.CreatedAtMs),
			Member: r.ID,
		})
		return nil
	})
	if err != nil {
		return fmt.Errorf("failed to write run to Redis: %w", err)
	}

	return c.publish(ctx, r)
}

// Outcome is the final state reported for a run
type Outcome struct {
	Status     Status
	ExitCode   int
	Duration   time.Duration
	Error      string
	FinishedAt time.Time
}

// RecordOutcome updates a prepared run with its final state.
// Returns redis.Nil if the run doesn't exist.
func (c *Client) RecordOutcome(ctx context.Context, runID string, o Outcome) (*Run, error) {
	if err := o.Status.Validate(); err != nil {
		return nil, err
	}
	if !o.Status.Terminal() {
		return nil, fmt.Errorf("outcome status must be terminal, got %s", o.Status)
	}

	r, err := c.GetRun(ctx, runID)
	if err != nil {
		return nil, err
	}

	finishedAt := o.FinishedAt
	if finishedAt.IsZero() {
		finishedAt = time.Now()
	}

	r.Status = o.Status
	r.ExitCode = o.ExitCode
	r.DurationMs = o.Duration.Milliseconds()
	r.Error = o.Error
	r.FinishedAtMs = finishedAt.UnixMilli()

	err = c.rdb.HSet(ctx, RunKey(c.deployment, runID), map[string]interface{}{
		"status":         string(r.Status),
		"exit_code":      r.ExitCode,
		"duration_ms":    r.DurationMs,
		"error":          r.Error,
		"finished_at_ms": r.FinishedAtMs,
	}).Err()
	if err != nil {
		return nil, fmt.Errorf("failed to update run in Redis: %w", err)
	}

	if err := c.publish(ctx, r); err != nil {
		return nil, err
	}
	return r, nil
}

// GetRun retrieves a run by ID.
// Returns (nil, redis.Nil) if the run doesn't exist. Use IsNotFound() to check.
func (c *Client) GetRun(ctx context.Context, runID string) (*Run, error) {
	hashData, err := c.rdb.HGetAll(ctx, RunKey(c.deployment, runID)).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to read run from Redis: %w", err)
	}

	// HGetAll returns an empty map for missing keys
	if len(hashData) == 0 {
		return nil, redis.Nil
	}

	r, err := HashToRun(hashData)
	if err != nil {
		return nil, fmt.Errorf("failed to deserialize run: %w", err)
	}
	return r, nil
}

// ListRuns returns the deployment's runs created within [since, until], oldest first.
// A zero time leaves that end of the range open.
func (c *Client) ListRuns(ctx context.Context, since, until time.Time) ([]*Run, error) {
	rangeBy := &redis.ZRangeBy{Min: "-inf", Max: "+inf"}
	if !since.IsZero() {
		rangeBy.Min = strconv.FormatInt(since.UnixMilli(), 10)
	}
	if !until.IsZero() {
		rangeBy.Max = strconv.FormatInt(until.UnixMilli(), 10)
	}

	ids, err := c.rdb.ZRangeByScore(ctx, RunsIndexKey(c.deployment), rangeBy).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to read run index: %w", err)
	}
	if len(ids) == 0 {
		return []*Run{}, nil
	}

	cmds := make([]*redis.MapStringStringCmd, len(ids))
	_, err = c.rdb.Pipelined(ctx, func(pipe redis.Pipeliner) error {
		for i, id := range ids {
			cmds[i] = pipe.HGetAll(ctx, RunKey(c.deployment, id))
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("failed to read runs from Redis: %w", err)
	}

	runs := make([]*Run, 0, len(ids))
	for i, cmd := range cmds {
		hash := cmd.Val()
		if len(hash) == 0 {
			log.Printf("[WARN] Run %s is indexed but has no record; skipping", ids[i])
			continue
		}
		r, err := HashToRun(hash)
		if err != nil {
			return nil, fmt.Errorf("failed to deserialize run %s: %w", ids[i], err)
		}
		runs = append(runs, r)
	}

	return runs, nil
}

// ScanRuns returns the IDs of the deployment's runs whose ID starts with prefix.
// Order is unspecified.
func (c *Client) ScanRuns(ctx context.Context, prefix string) ([]string, error) {
	keyPrefix := RunKey(c.deployment, "")
	pattern := keyPrefix + escapeGlob(prefix) + "*"

	var ids []string
	iter := c.rdb.Scan(ctx, 0, pattern, 100).Iterator()
	for iter.Next(ctx) {
		ids = append(ids, strings.TrimPrefix(iter.Val(), keyPrefix))
	}
	if err := iter.Err(); err != nil {
		return nil, fmt.Errorf("failed to scan runs: %w", err)
	}
	return ids, nil
}

// escapeGlob quotes the characters Redis MATCH treats as pattern syntax
func escapeGlob(s string) string {
	var b strings.Builder
	for _, r := range s {
		switch r {
		case '*', '?', '[', ']', '\\':
			b.WriteByte('\\')
		}
		b.WriteRune(r)
	}
	return b.String()
}

func (c *Client) publish(ctx context.Context, r *Run) error {
	runJSON, err := json.Marshal(r)
	if err != nil {
		return fmt.Errorf("failed to marshal run for event: %w", err)
	}
	if err := c.rdb.Publish(ctx, RunEventsChannel(c.deployment), runJSON).Err(); err != nil {
		return fmt.Errorf("failed to publish run event: %w", err)
	}
	return nil
}

// Subscription represents an active Pub/Sub subscription to run events.
// Caller must call Close() when done to clean up resources.
type Subscription struct {
	events <-chan *Run
	errors <-chan error
	cancel func()
	once   sync.Once
}

// Events returns the channel of run events.
// The channel is closed when the subscription is closed or the context is cancelled.
func (s *Subscription) Events() <-chan *Run {
	return s.events
}

// Errors returns the channel of non-fatal subscription errors
func (s *Subscription) Errors() <-chan error {
	return s.errors
}

// Close stops the subscription. Safe to call multiple times.
func (s *Subscription) Close() error {
	s.once.Do(s.cancel)
	return nil
}

// SubscribeRunEvents subscribes to run changes for this deployment.
// Delivery is at-most-once; slow subscribers may miss events.
func (c *Client) SubscribeRunEvents(ctx context.Context) (*Subscription, error) {
	pubsub := c.rdb.Subscribe(ctx, RunEventsChannel(c.deployment))

	// Wait for the subscription to be confirmed so no event published afterwards is lost
	if _, err := pubsub.Receive(ctx); err != nil {
		pubsub.Close()
		return nil, fmt.Errorf("failed to subscribe to run events: %w", err)
	}

	eventsChan := make(chan *Run, 10)
	errorsChan := make(chan error, 10)
	subCtx, cancelFunc := context.WithCancel(ctx)

	go func() {
		defer close(eventsChan)
		defer close(errorsChan)
		defer pubsub.Close()

		ch := pubsub.Channel()
		for {
			select {
			case <-subCtx.Done():
				return
			case msg, ok := <-ch:
				if !ok {
					return
				}

				var r Run
				if err := json.Unmarshal([]byte(msg.Payload), &r); err != nil {
					select {
					case errorsChan <- fmt.Errorf("failed to unmarshal run event: %w", err):
					case <-subCtx.Done():
						return
					}
					continue
				}

				select {
				case eventsChan <- &r:
				case <-subCtx.Done():
					return
				}
			}
		}
	}()

	return &Subscription{
		events: eventsChan,
		errors: errorsChan,
		cancel: cancelFunc,
	}, nil
}

// IsNotFound returns true if the error is a Redis "key not found" error (redis.Nil)
func IsNotFound(err error) bool {
	return errors.Is(err, redis.Nil)
}
