package tasks

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"

	"github.com/sirupsen/logrus/hooks/test"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"

	"todolist/internal/models"
	"todolist/internal/store"
)

func setupService(t *testing.T, opts ...Option) (*Service, *store.SQLiteStore) {
	t.Helper()
	st, err := store.NewSQLiteStore(":memory:")
	if err != nil {
		t.Fatalf("failed to create test store: %v", err)
	}
	t.Cleanup(func() { st.Close() })

	logger, _ := test.NewNullLogger()
	opts = append([]Option{WithLogger(logger)}, opts...)
	return NewService(st, opts...), st
}

func mustCreate(t *testing.T, s *Service, text, priority string) *models.Task {
	t.Helper()
	task, err := s.Create(context.Background(), text, priority)
	if err != nil {
		t.Fatalf("Create(%q, %q) failed: %v", text, priority, err)
	}
	return task
}

func positions(t *testing.T, s *Service) map[string]int {
	t.Helper()
	list, err := s.List(context.Background())
	if err != nil {
		t.Fatalf("List failed: %v", err)
	}
	out := make(map[string]int, len(list))
	for _, task := range list {
		out[task.ID] = task.Position
	}
	return out
}

func TestCreate_SequentialPositions(t *testing.T) {
	s, _ := setupService(t)

	const n = 5
	created := make([]*models.Task, n)
	for i := range n {
		created[i] = mustCreate(t, s, fmt.Sprintf("Task %d", i+1), "medium")
	}

	for i, task := range created {
		if task.Position != i+1 {
			t.Errorf("task %d: expected position %d, got %d", i, i+1, task.Position)
		}
		if task.Status != models.StatusPending {
			t.Errorf("task %d: expected pending status, got %q", i, task.Status)
		}
		if task.ID == "" {
			t.Errorf("task %d: expected id to be assigned", i)
		}
	}
}

func TestCreate_AfterGapUsesMaxPlusOne(t *testing.T) {
	s, _ := setupService(t)
	ctx := context.Background()

	mustCreate(t, s, "A", "low")
	b := mustCreate(t, s, "B", "low")
	mustCreate(t, s, "C", "low")
	if _, err := s.Delete(ctx, b.ID); err != nil {
		t.Fatalf("Delete failed: %v", err)
	}

	d := mustCreate(t, s, "D", "low")
	if d.Position != 4 {
		t.Errorf("expected position 4 after gap, got %d", d.Position)
	}
}

func TestCreate_InvalidInputNeverPersists(t *testing.T) {
	s, _ := setupService(t)
	ctx := context.Background()

	tests := []struct {
		name      string
		text      string
		priority  string
		wantField string
	}{
		{name: "unknown priority", text: "Task", priority: "urgent", wantField: "priority"},
		{name: "missing priority", text: "Task", priority: "", wantField: "priority"},
		{name: "upper case priority", text: "Task", priority: "HIGH", wantField: "priority"},
		{name: "padded priority", text: "Task", priority: " low ", wantField: "priority"},
		{name: "empty text", text: "", priority: "high", wantField: "text"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			task, err := s.Create(ctx, tt.text, tt.priority)
			if task != nil {
				t.Fatalf("expected no task, got %+v", task)
			}
			var verr *ValidationError
			if !errors.As(err, &verr) {
				t.Fatalf("expected ValidationError, got %v", err)
			}
			if verr.Field != tt.wantField {
				t.Errorf("expected field %q, got %q", tt.wantField, verr.Field)
			}
		})
	}

	list, err := s.List(ctx)
	if err != nil {
		t.Fatalf("List failed: %v", err)
	}
	if len(list) != 0 {
		t.Fatalf("expected nothing persisted, got %d tasks", len(list))
	}
}

func TestList_SortedByPosition(t *testing.T) {
	s, st := setupService(t)
	ctx := context.Background()

	a := mustCreate(t, s, "A", "high")
	b := mustCreate(t, s, "B", "high")
	c := mustCreate(t, s, "C", "high")
	st.SetTaskPosition(ctx, a.ID, 30)
	st.SetTaskPosition(ctx, b.ID, 10)
	st.SetTaskPosition(ctx, c.ID, 20)

	list, err := s.List(ctx)
	if err != nil {
		t.Fatalf("List failed: %v", err)
	}
	want := []string{"B", "C", "A"}
	for i, text := range want {
		if list[i].Text != text {
			t.Errorf("index %d: expected %q, got %q", i, text, list[i].Text)
		}
	}
	for i := 1; i < len(list); i++ {
		if list[i-1].Position > list[i].Position {
			t.Fatalf("list not ascending: %+v", list)
		}
	}
}

func TestUpdateContent(t *testing.T) {
	s, _ := setupService(t)
	ctx := context.Background()

	task := mustCreate(t, s, "Original", "low")
	if _, err := s.UpdateStatus(ctx, task.ID, models.StatusInProgress); err != nil {
		t.Fatalf("UpdateStatus failed: %v", err)
	}

	got, err := s.UpdateContent(ctx, task.ID, "Updated", "high")
	if err != nil {
		t.Fatalf("UpdateContent failed: %v", err)
	}
	if got.Text != "Updated" || got.Priority != models.PriorityHigh {
		t.Errorf("unexpected content: %+v", got)
	}
	if got.Status != models.StatusInProgress || got.Position != task.Position {
		t.Errorf("expected status and position untouched, got %+v", got)
	}
}

func TestUpdateContent_Validation(t *testing.T) {
	s, _ := setupService(t)
	ctx := context.Background()
	task := mustCreate(t, s, "Original", "low")

	var verr *ValidationError
	if _, err := s.UpdateContent(ctx, task.ID, "  ", "high"); !errors.As(err, &verr) || verr.Field != "text" {
		t.Errorf("expected text ValidationError, got %v", err)
	}
	if _, err := s.UpdateContent(ctx, task.ID, "Text", "someday"); !errors.As(err, &verr) || verr.Field != "priority" {
		t.Errorf("expected priority ValidationError, got %v", err)
	}

	got, err := s.UpdateContent(ctx, task.ID, "Renamed", "")
	if err != nil {
		t.Fatalf("UpdateContent without priority failed: %v", err)
	}
	if got.Priority != models.PriorityLow {
		t.Errorf("expected priority to be kept, got %q", got.Priority)
	}
}

func TestUpdateContent_NotFound(t *testing.T) {
	s, _ := setupService(t)

	_, err := s.UpdateContent(context.Background(), "missing", "Text", "low")
	if !errors.Is(err, ErrNotFound) {
		t.Errorf("expected ErrNotFound, got %v", err)
	}
}

func TestUpdateStatus_NotFoundLeavesCollectionUnchanged(t *testing.T) {
	s, _ := setupService(t)
	ctx := context.Background()

	mustCreate(t, s, "A", "high")
	mustCreate(t, s, "B", "low")
	before, _ := s.List(ctx)

	_, err := s.UpdateStatus(ctx, "does-not-exist", models.StatusDone)
	if !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}

	after, _ := s.List(ctx)
	if len(after) != len(before) {
		t.Fatalf("expected %d tasks, got %d", len(before), len(after))
	}
	for i := range before {
		if after[i].ID != before[i].ID || after[i].Status != before[i].Status || after[i].Position != before[i].Position {
			t.Errorf("task %d changed: before %+v after %+v", i, before[i], after[i])
		}
	}
}

func TestUpdateStatus_AcceptsAnyString(t *testing.T) {
	s, _ := setupService(t)

	task := mustCreate(t, s, "A", "high")
	got, err := s.UpdateStatus(context.Background(), task.ID, "blocked-on-review")
	if err != nil {
		t.Fatalf("UpdateStatus failed: %v", err)
	}
	if got.Status != "blocked-on-review" {
		t.Errorf("expected free-form status, got %q", got.Status)
	}
}

func TestDelete_RemovesOneAndKeepsPositions(t *testing.T) {
	s, _ := setupService(t)
	ctx := context.Background()

	a := mustCreate(t, s, "A", "high")
	b := mustCreate(t, s, "B", "high")
	c := mustCreate(t, s, "C", "high")

	deleted, err := s.Delete(ctx, b.ID)
	if err != nil {
		t.Fatalf("Delete failed: %v", err)
	}
	if deleted.ID != b.ID {
		t.Errorf("expected deleted task %q, got %q", b.ID, deleted.ID)
	}

	got := positions(t, s)
	if len(got) != 2 {
		t.Fatalf("expected 2 tasks, got %d", len(got))
	}
	if got[a.ID] != 1 || got[c.ID] != 3 {
		t.Errorf("expected positions unchanged, got %v", got)
	}

	if _, err := s.Delete(ctx, b.ID); !errors.Is(err, ErrNotFound) {
		t.Errorf("expected ErrNotFound deleting twice, got %v", err)
	}
}

func TestReorder_TwoTasks(t *testing.T) {
	s, _ := setupService(t)
	ctx := context.Background()

	id1 := mustCreate(t, s, "One", "high").ID
	id2 := mustCreate(t, s, "Two", "high").ID

	result, err := s.Reorder(ctx, []string{id2, id1})
	if err != nil {
		t.Fatalf("Reorder failed: %v", err)
	}
	if result.Updated != 2 || len(result.Missing) != 0 {
		t.Errorf("unexpected result: %+v", result)
	}

	got := positions(t, s)
	if got[id2] != 1 || got[id1] != 2 {
		t.Errorf("expected id2=1 id1=2, got %v", got)
	}
}

func TestScenario_CreateCreateReorder(t *testing.T) {
	s, _ := setupService(t)
	ctx := context.Background()

	first := mustCreate(t, s, "Buy milk", "high")
	if first.Position != 1 {
		t.Fatalf("expected Buy milk at 1, got %d", first.Position)
	}
	second := mustCreate(t, s, "Clean house", "low")
	if second.Position != 2 {
		t.Fatalf("expected Clean house at 2, got %d", second.Position)
	}

	if _, err := s.Reorder(ctx, []string{second.ID, first.ID}); err != nil {
		t.Fatalf("Reorder failed: %v", err)
	}

	list, err := s.List(ctx)
	if err != nil {
		t.Fatalf("List failed: %v", err)
	}
	if len(list) != 2 {
		t.Fatalf("expected 2 tasks, got %d", len(list))
	}
	if list[0].Text != "Clean house" || list[0].Position != 1 {
		t.Errorf("expected Clean house at 1, got %+v", list[0])
	}
	if list[1].Text != "Buy milk" || list[1].Position != 2 {
		t.Errorf("expected Buy milk at 2, got %+v", list[1])
	}
}

func TestReorder_PartialListLeavesOthersUnchanged(t *testing.T) {
	s, _ := setupService(t)
	ctx := context.Background()

	a := mustCreate(t, s, "A", "high")
	b := mustCreate(t, s, "B", "high")
	c := mustCreate(t, s, "C", "high")

	if _, err := s.Reorder(ctx, []string{c.ID}); err != nil {
		t.Fatalf("Reorder failed: %v", err)
	}

	got := positions(t, s)
	// Tasks left out keep their position, so A and C now share 1.
	if got[c.ID] != 1 || got[a.ID] != 1 || got[b.ID] != 2 {
		t.Errorf("unexpected positions: %v", got)
	}
}

func TestReorder_ReportsMissingIDs(t *testing.T) {
	s, _ := setupService(t)
	ctx := context.Background()

	a := mustCreate(t, s, "A", "high")

	result, err := s.Reorder(ctx, []string{"ghost", a.ID})
	if err != nil {
		t.Fatalf("Reorder failed: %v", err)
	}
	if result.Updated != 1 {
		t.Errorf("expected 1 updated, got %d", result.Updated)
	}
	if len(result.Missing) != 1 || result.Missing[0] != "ghost" {
		t.Errorf("expected ghost to be missing, got %v", result.Missing)
	}
	if got := positions(t, s); got[a.ID] != 2 {
		t.Errorf("expected A at position 2, got %d", got[a.ID])
	}
}

func TestReorder_RejectsBadInputWithoutWriting(t *testing.T) {
	s, _ := setupService(t)
	ctx := context.Background()

	a := mustCreate(t, s, "A", "high")
	b := mustCreate(t, s, "B", "high")

	for name, ids := range map[string][]string{
		"duplicate": {b.ID, a.ID, b.ID},
		"empty id":  {b.ID, ""},
	} {
		t.Run(name, func(t *testing.T) {
			_, err := s.Reorder(ctx, ids)
			var verr *ValidationError
			if !errors.As(err, &verr) || verr.Field != "reorderedTodos" {
				t.Fatalf("expected reorderedTodos ValidationError, got %v", err)
			}
			got := positions(t, s)
			if got[a.ID] != 1 || got[b.ID] != 2 {
				t.Errorf("expected no writes, got %v", got)
			}
		})
	}
}

func TestReorder_EmptyListIsNoop(t *testing.T) {
	s, _ := setupService(t)

	result, err := s.Reorder(context.Background(), nil)
	if err != nil {
		t.Fatalf("Reorder failed: %v", err)
	}
	if result.Updated != 0 || result.Missing == nil || len(result.Missing) != 0 {
		t.Errorf("unexpected result: %+v", result)
	}
}

func TestReorder_ManyTasksConcurrently(t *testing.T) {
	s, _ := setupService(t, WithReorderConcurrency(4))
	ctx := context.Background()

	const n = 25
	ids := make([]string, n)
	for i := range n {
		ids[n-1-i] = mustCreate(t, s, fmt.Sprintf("Task %d", i), "medium").ID
	}

	result, err := s.Reorder(ctx, ids)
	if err != nil {
		t.Fatalf("Reorder failed: %v", err)
	}
	if result.Updated != n {
		t.Fatalf("expected %d updated, got %d", n, result.Updated)
	}

	list, _ := s.List(ctx)
	for i, task := range list {
		if task.ID != ids[i] || task.Position != i+1 {
			t.Fatalf("index %d: expected %s at %d, got %s at %d", i, ids[i], i+1, task.ID, task.Position)
		}
	}
}

// flakyStore fails SetTaskPosition for one id and counts the calls it sees.
type flakyStore struct {
	store.Store
	failID string

	mu    sync.Mutex
	calls int
}

func (f *flakyStore) SetTaskPosition(ctx context.Context, id string, position int) (bool, error) {
	f.mu.Lock()
	f.calls++
	f.mu.Unlock()
	if id == f.failID {
		return false, errors.New("disk full")
	}
	return f.Store.SetTaskPosition(ctx, id, position)
}

func TestReorder_PersistenceFailure(t *testing.T) {
	_, st := setupService(t)
	logger, _ := test.NewNullLogger()
	flaky := &flakyStore{Store: st, failID: "bad"}
	s := NewService(flaky, WithLogger(logger), WithReorderConcurrency(1))

	a := mustCreate(t, s, "A", "high")
	b := mustCreate(t, s, "B", "high")

	_, err := s.Reorder(context.Background(), []string{b.ID, "bad", a.ID})
	var perr *PersistenceError
	if !errors.As(err, &perr) {
		t.Fatalf("expected PersistenceError, got %v", err)
	}
	if perr.Op != "reorder tasks" {
		t.Errorf("unexpected op %q", perr.Op)
	}
	if errors.Is(err, ErrNotFound) {
		t.Error("persistence failure must not look like not found")
	}
	// The update issued before the failure stays applied; later ones never run.
	got := positions(t, s)
	if got[b.ID] != 1 || got[a.ID] != 1 {
		t.Errorf("expected B moved to 1 and A untouched, got %v", got)
	}
	if flaky.calls != 2 {
		t.Errorf("expected 2 position writes before stopping, got %d", flaky.calls)
	}
}

// brokenStore fails every call.
type brokenStore struct{ store.Store }

func (brokenStore) MaxPosition(context.Context) (int, error) {
	return 0, errors.New("connection refused")
}

func (brokenStore) ListTasks(context.Context) ([]models.Task, error) {
	return nil, errors.New("connection refused")
}

func TestPersistenceErrorsAreWrapped(t *testing.T) {
	logger, _ := test.NewNullLogger()
	s := NewService(brokenStore{}, WithLogger(logger))
	ctx := context.Background()

	_, err := s.Create(ctx, "A", "high")
	var perr *PersistenceError
	if !errors.As(err, &perr) || perr.Op != "create task" {
		t.Fatalf("expected create PersistenceError, got %v", err)
	}
	if perr.Unwrap() == nil || perr.Unwrap().Error() != "connection refused" {
		t.Errorf("expected wrapped cause, got %v", perr.Unwrap())
	}

	if _, err := s.List(ctx); !errors.As(err, &perr) || perr.Op != "list tasks" {
		t.Fatalf("expected list PersistenceError, got %v", err)
	}
}

func TestNewService_NilStorePanics(t *testing.T) {
	defer func() {
		if recover() == nil {
			t.Fatal("expected panic for nil store")
		}
	}()
	NewService(nil)
}

func setupTestTracer(t *testing.T) (*sdktrace.TracerProvider, *tracetest.InMemoryExporter) {
	t.Helper()

	exporter := tracetest.NewInMemoryExporter()
	tp := sdktrace.NewTracerProvider(
		sdktrace.WithSpanProcessor(sdktrace.NewSimpleSpanProcessor(exporter)),
	)
	t.Cleanup(func() {
		if err := tp.Shutdown(context.Background()); err != nil {
			t.Logf("shutdown tracer provider: %v", err)
		}
	})
	return tp, exporter
}

func attributesToMap(attrs []attribute.KeyValue) map[string]any {
	out := make(map[string]any, len(attrs))
	for _, kv := range attrs {
		out[string(kv.Key)] = kv.Value.AsInterface()
	}
	return out
}

func TestSpansRecordOperations(t *testing.T) {
	tp, exporter := setupTestTracer(t)
	s, _ := setupService(t, WithTracerProvider(tp))
	ctx := context.Background()

	task := mustCreate(t, s, "Traced", "high")
	if _, err := s.UpdateStatus(ctx, "missing", models.StatusDone); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
	if _, err := s.Reorder(ctx, []string{task.ID}); err != nil {
		t.Fatalf("Reorder failed: %v", err)
	}

	spans := exporter.GetSpans()
	if len(spans) != 3 {
		t.Fatalf("expected 3 spans, got %d", len(spans))
	}

	create, status, reorder := spans[0], spans[1], spans[2]
	if create.Name != "tasks.create" || create.Status.Code != codes.Ok {
		t.Errorf("unexpected create span: %s %v", create.Name, create.Status.Code)
	}
	if attrs := attributesToMap(create.Attributes); attrs["task.id"] != task.ID || attrs["task.position"] != int64(1) {
		t.Errorf("unexpected create attributes: %v", attrs)
	}

	if status.Name != "tasks.update_status" || status.Status.Code != codes.Error {
		t.Errorf("unexpected status span: %s %v", status.Name, status.Status.Code)
	}
	if attrs := attributesToMap(status.Attributes); attrs["task.id"] != "missing" {
		t.Errorf("unexpected status attributes: %v", attrs)
	}

	if reorder.Name != "tasks.reorder" {
		t.Errorf("unexpected reorder span name: %s", reorder.Name)
	}
	if attrs := attributesToMap(reorder.Attributes); attrs["tasks.count"] != int64(1) || attrs["tasks.updated"] != int64(1) {
		t.Errorf("unexpected reorder attributes: %v", attrs)
	}
}
