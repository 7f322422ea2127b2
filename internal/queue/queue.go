// Package queue delivers tasks to the worker.
package queue

import (
	"context"
	"errors"

	"github.com/hochfrequenz/pep8bot/internal/domain"
)

// ErrMalformed marks a message that could not be decoded into a task.
// The message has been consumed and should be skipped.
var ErrMalformed = errors.New("malformed task message")

// Queue is a blocking FIFO of tasks
type Queue interface {
	// Wait blocks until a task is available or ctx is done
	Wait(ctx context.Context) (*domain.Task, error)
	// Enqueue adds a task and returns its message id
	Enqueue(ctx context.Context, task *domain.Task) (string, error)
}
