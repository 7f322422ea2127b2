package queue

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"github.com/hochfrequenz/pep8bot/internal/domain"
)

// KeyPrefix is prepended to queue names to form the Redis list key
const KeyPrefix = "retaskqueue-"

// envelope is the message format shared with producers: the task is stored
// as a JSON string inside the envelope.
type envelope struct {
	Data string `json:"_data"`
	URN  string `json:"urn"`
}

// Redis is a queue stored in a Redis list. Producers LPUSH and the worker
// BRPOPs, so messages are delivered oldest first.
type Redis struct {
	client *redis.Client
	key    string
	poll   time.Duration
}

// NewRedis creates a queue named name. poll bounds each blocking pop so
// cancellation is noticed; values under a second are rounded up by Redis.
func NewRedis(client *redis.Client, name string, poll time.Duration) *Redis {
	if poll <= 0 {
		poll = 5 * time.Second
	}
	return &Redis{
		client: client,
		key:    KeyPrefix + name,
		poll:   poll,
	}
}

// Key returns the Redis list key
func (r *Redis) Key() string {
	return r.key
}

// Enqueue pushes task onto the queue
func (r *Redis) Enqueue(ctx context.Context, task *domain.Task) (string, error) {
	data, err := json.Marshal(task)
	if err != nil {
		return "", fmt.Errorf("encoding task: %w", err)
	}
	env := envelope{
		Data: string(data),
		URN:  "urn:uuid:" + uuid.New().String(),
	}
	msg, err := json.Marshal(env)
	if err != nil {
		return "", fmt.Errorf("encoding message: %w", err)
	}
	if err := r.client.LPush(ctx, r.key, msg).Err(); err != nil {
		return "", fmt.Errorf("pushing to %s: %w", r.key, err)
	}
	return env.URN, nil
}

// Wait pops the oldest task, blocking until one arrives or ctx is done
func (r *Redis) Wait(ctx context.Context) (*domain.Task, error) {
	for {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		res, err := r.client.BRPop(ctx, r.poll, r.key).Result()
		if errors.Is(err, redis.Nil) {
			continue
		}
		if err != nil {
			if ctx.Err() != nil {
				return nil, ctx.Err()
			}
			return nil, fmt.Errorf("popping from %s: %w", r.key, err)
		}
		// res is [key, value]
		return decode(res[1])
	}
}

// Len returns the number of queued messages
func (r *Redis) Len(ctx context.Context) (int64, error) {
	return r.client.LLen(ctx, r.key).Result()
}

func decode(msg string) (*domain.Task, error) {
	var env envelope
	if err := json.Unmarshal([]byte(msg), &env); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformed, err)
	}
	var task domain.Task
	if err := json.Unmarshal([]byte(env.Data), &task); err != nil {
		return nil, fmt.Errorf("%w: %s: %v", ErrMalformed, env.URN, err)
	}
	if err := task.Validate(); err != nil {
		return nil, fmt.Errorf("%w: %s: %v", ErrMalformed, env.URN, err)
	}
	return &task, nil
}
