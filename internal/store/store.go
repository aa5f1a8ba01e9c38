package store

import (
	"context"
	"errors"

	"todolist/internal/models"
)

// ErrNotFound is returned when an id does not reference an existing task.
var ErrNotFound = errors.New("todo not found")

// Store defines the interface for data persistence operations.
type Store interface {
	// CreateTask inserts the task and sets its ID and timestamps.
	CreateTask(ctx context.Context, task *models.Task) error
	GetTask(ctx context.Context, id string) (*models.Task, error)
	// ListTasks returns every task ordered by position.
	ListTasks(ctx context.Context) ([]models.Task, error)
	// MaxPosition returns the largest stored position, or 0 when empty.
	MaxPosition(ctx context.Context) (int, error)
	UpdateTaskContent(ctx context.Context, id, text string, priority models.Priority) (*models.Task, error)
	UpdateTaskStatus(ctx context.Context, id, status string) (*models.Task, error)
	// SetTaskPosition reports whether a task with the id existed.
	SetTaskPosition(ctx context.Context, id string, position int) (bool, error)
	// DeleteTask removes the task and returns it as it was before deletion.
	DeleteTask(ctx context.Context, id string) (*models.Task, error)

	// Lifecycle
	Ping(ctx context.Context) error
	Close() error
}
