// Package tasks owns the task list semantics: position assignment on create,
// content and status edits, deletion, and bulk reordering. Persistence is
// delegated to an injected store.Store.
package tasks

import (
	"context"
	"errors"

	log "github.com/sirupsen/logrus"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/sync/errgroup"

	"todolist/internal/models"
	"todolist/internal/store"
)

const (
	tracerName = "todolist/internal/tasks"

	// DefaultReorderConcurrency bounds in-flight position updates per reorder.
	DefaultReorderConcurrency = 8
)

// Service is the task store. It performs no locking of its own; concurrent
// callers get whatever per-record guarantees the underlying store gives.
type Service struct {
	store       store.Store
	concurrency int
	tracer      trace.TracerProvider
	logger      *log.Logger
}

// Option configures a Service.
type Option func(*Service)

// WithReorderConcurrency sets how many position updates a reorder may have in
// flight at once. Values below 1 are ignored.
func WithReorderConcurrency(n int) Option {
	return func(s *Service) {
		if n > 0 {
			s.concurrency = n
		}
	}
}

// WithTracerProvider overrides the global OpenTelemetry tracer provider.
func WithTracerProvider(tp trace.TracerProvider) Option {
	return func(s *Service) { s.tracer = tp }
}

// WithLogger sets the logger; the logrus standard logger is used otherwise.
func WithLogger(logger *log.Logger) Option {
	return func(s *Service) {
		if logger != nil {
			s.logger = logger
		}
	}
}

// NewService creates a task store backed by st. The caller owns st's lifecycle.
func NewService(st store.Store, opts ...Option) *Service {
	if st == nil {
		panic("tasks.NewService: store is nil")
	}
	s := &Service{
		store:       st,
		concurrency: DefaultReorderConcurrency,
		logger:      log.StandardLogger(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// ReorderResult reports the outcome of a reorder.
type ReorderResult struct {
	Updated int      `json:"updated"`
	Missing []string `json:"missing"`
}

// Create validates input, appends the task after the current last position
// and persists it with status pending.
func (s *Service) Create(ctx context.Context, text, priority string) (task *models.Task, err error) {
	ctx, span := s.start(ctx, "tasks.create")
	defer func() { s.end(span, err) }()

	task, err = models.NewTask(text, priority)
	if err != nil {
		return nil, err
	}

	last, err := s.store.MaxPosition(ctx)
	if err != nil {
		return nil, translate("create task", err)
	}
	task.Position = last + 1

	if err := s.store.CreateTask(ctx, task); err != nil {
		return nil, translate("create task", err)
	}
	span.SetAttributes(attribute.String("task.id", task.ID), attribute.Int("task.position", task.Position))
	return task, nil
}

// List returns every task ascending by position.
func (s *Service) List(ctx context.Context) (list []models.Task, err error) {
	ctx, span := s.start(ctx, "tasks.list")
	defer func() { s.end(span, err) }()

	list, err = s.store.ListTasks(ctx)
	if err != nil {
		return nil, translate("list tasks", err)
	}
	span.SetAttributes(attribute.Int("tasks.count", len(list)))
	return list, nil
}

// UpdateContent replaces a task's text and, when priority is non-empty, its
// priority. Status and position are left untouched.
func (s *Service) UpdateContent(ctx context.Context, id, text, priority string) (task *models.Task, err error) {
	ctx, span := s.start(ctx, "tasks.update_content", attribute.String("task.id", id))
	defer func() { s.end(span, err) }()

	text, err = models.ParseText(text)
	if err != nil {
		return nil, err
	}
	var p models.Priority
	if priority != "" {
		if p, err = models.ParsePriority(priority); err != nil {
			return nil, err
		}
	}

	task, err = s.store.UpdateTaskContent(ctx, id, text, p)
	if err != nil {
		return nil, translate("update task", err)
	}
	return task, nil
}

// UpdateStatus replaces a task's status. Any string is accepted.
func (s *Service) UpdateStatus(ctx context.Context, id, status string) (task *models.Task, err error) {
	ctx, span := s.start(ctx, "tasks.update_status", attribute.String("task.id", id))
	defer func() { s.end(span, err) }()

	task, err = s.store.UpdateTaskStatus(ctx, id, status)
	if err != nil {
		return nil, translate("update status", err)
	}
	return task, nil
}

// Delete removes a task and returns it. Positions of the remaining tasks are
// not renumbered.
func (s *Service) Delete(ctx context.Context, id string) (task *models.Task, err error) {
	ctx, span := s.start(ctx, "tasks.delete", attribute.String("task.id", id))
	defer func() { s.end(span, err) }()

	task, err = s.store.DeleteTask(ctx, id)
	if err != nil {
		return nil, translate("delete task", err)
	}
	return task, nil
}

// Reorder sets the position of ids[i] to i+1. Each id is written
// independently and concurrently; ids that match no task are reported in
// Missing. Tasks not named keep their current position. On the first storage
// failure no further updates are issued and applied ones are not rolled back.
func (s *Service) Reorder(ctx context.Context, ids []string) (result ReorderResult, err error) {
	ctx, span := s.start(ctx, "tasks.reorder", attribute.Int("tasks.count", len(ids)))
	defer func() { s.end(span, err) }()

	result.Missing = []string{}
	if err := validateOrdering(ids); err != nil {
		return result, err
	}

	found := make([]bool, len(ids))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(s.concurrency)
	for i, id := range ids {
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			ok, err := s.store.SetTaskPosition(gctx, id, i+1)
			if err != nil {
				return err
			}
			found[i] = ok
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return result, translate("reorder tasks", err)
	}

	for i, ok := range found {
		if ok {
			result.Updated++
		} else {
			result.Missing = append(result.Missing, ids[i])
		}
	}
	if len(result.Missing) > 0 {
		s.logger.WithFields(log.Fields{
			"missing": result.Missing,
			"updated": result.Updated,
		}).Warn("reorder referenced unknown tasks")
	}
	span.SetAttributes(attribute.Int("tasks.updated", result.Updated), attribute.Int("tasks.missing", len(result.Missing)))
	return result, nil
}

func validateOrdering(ids []string) error {
	seen := make(map[string]struct{}, len(ids))
	for _, id := range ids {
		if id == "" {
			return &models.ValidationError{Field: "reorderedTodos", Message: "reorderedTodos must not contain empty ids"}
		}
		if _, dup := seen[id]; dup {
			return &models.ValidationError{Field: "reorderedTodos", Message: "reorderedTodos contains duplicate id " + id}
		}
		seen[id] = struct{}{}
	}
	return nil
}

// translate keeps ErrNotFound and validation errors as is and wraps
// everything else.
func translate(op string, err error) error {
	if errors.Is(err, store.ErrNotFound) {
		return ErrNotFound
	}
	var verr *ValidationError
	if errors.As(err, &verr) {
		return err
	}
	return &PersistenceError{Op: op, Err: err}
}

func (s *Service) start(ctx context.Context, name string, attrs ...attribute.KeyValue) (context.Context, trace.Span) {
	tp := s.tracer
	if tp == nil {
		tp = otel.GetTracerProvider()
	}
	return tp.Tracer(tracerName).Start(ctx, name, trace.WithAttributes(attrs...))
}

func (s *Service) end(span trace.Span, err error) {
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	} else {
		span.SetStatus(codes.Ok, "")
	}
	span.End()
}
