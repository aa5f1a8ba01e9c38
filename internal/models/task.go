package models

import (
	"fmt"
	"strings"
	"time"
)

// Conventional status values. Status is free-form; these are the ones the
// browser client sends.
const (
	StatusPending    = "pending"
	StatusInProgress = "in-progress"
	StatusDone       = "done"
)

// Priority is the importance of a task. Only the three declared values are valid.
type Priority string

const (
	PriorityHigh   Priority = "high"
	PriorityMedium Priority = "medium"
	PriorityLow    Priority = "low"
)

// DefaultPriority is what legacy records without a stored priority read back as.
const DefaultPriority = PriorityMedium

// ParsePriority converts caller input into a Priority. Matching is exact.
func ParsePriority(s string) (Priority, error) {
	switch p := Priority(s); p {
	case PriorityHigh, PriorityMedium, PriorityLow:
		return p, nil
	case "":
		return "", &ValidationError{Field: "priority", Message: "priority is required"}
	default:
		return "", &ValidationError{Field: "priority", Message: "priority must be 'high', 'medium', or 'low'"}
	}
}

// Valid reports whether p is one of the declared priorities.
func (p Priority) Valid() bool {
	return p == PriorityHigh || p == PriorityMedium || p == PriorityLow
}

// Task is a single todo-list record.
type Task struct {
	ID        string    `json:"_id"`
	Text      string    `json:"text"`
	Status    string    `json:"status"`
	Priority  Priority  `json:"priority"`
	Position  int       `json:"position"`
	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
}

// NewTask builds a pending task from raw caller input. Position and ID are
// left for the task store and gateway to assign.
func NewTask(text, priority string) (*Task, error) {
	text, err := ParseText(text)
	if err != nil {
		return nil, err
	}
	p, err := ParsePriority(priority)
	if err != nil {
		return nil, err
	}
	return &Task{
		Text:     text,
		Status:   StatusPending,
		Priority: p,
	}, nil
}

// ParseText rejects blank task text. Non-blank text is returned as given.
func ParseText(s string) (string, error) {
	if strings.TrimSpace(s) == "" {
		return "", &ValidationError{Field: "text", Message: "text is required"}
	}
	return s, nil
}

// Validate checks that the task has valid field values.
func (t *Task) Validate() error {
	if _, err := ParseText(t.Text); err != nil {
		return err
	}
	if !t.Priority.Valid() {
		return &ValidationError{Field: "priority", Message: "priority must be 'high', 'medium', or 'low'"}
	}
	if t.Position < 0 {
		return &ValidationError{Field: "position", Message: "position must not be negative"}
	}
	return nil
}

// ValidationError describes malformed or missing input for a single field.
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	if e.Message == "" {
		return fmt.Sprintf("invalid %s", e.Field)
	}
	return e.Message
}
