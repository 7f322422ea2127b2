package queue

import (
	"context"
	"sync"

	"github.com/google/uuid"

	"github.com/hochfrequenz/pep8bot/internal/domain"
)

// Memory is an in-process queue. The worker's tests drive it in place of Redis.
type Memory struct {
	mu    sync.Mutex
	tasks []*domain.Task
	ready chan struct{}
}

// NewMemory creates an empty in-memory queue
func NewMemory() *Memory {
	return &Memory{ready: make(chan struct{}, 1)}
}

// Enqueue appends task
func (m *Memory) Enqueue(ctx context.Context, task *domain.Task) (string, error) {
	m.mu.Lock()
	m.tasks = append(m.tasks, task)
	m.mu.Unlock()

	select {
	case m.ready <- struct{}{}:
	default:
	}
	return "urn:uuid:" + uuid.New().String(), nil
}

// Wait removes the oldest task, blocking until one is available
func (m *Memory) Wait(ctx context.Context) (*domain.Task, error) {
	for {
		m.mu.Lock()
		if len(m.tasks) > 0 {
			task := m.tasks[0]
			m.tasks = m.tasks[1:]
			more := len(m.tasks) > 0
			m.mu.Unlock()
			if more {
				select {
				case m.ready <- struct{}{}:
				default:
				}
			}
			return task, nil
		}
		m.mu.Unlock()

		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-m.ready:
		}
	}
}

// Len returns the number of queued tasks
func (m *Memory) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.tasks)
}
