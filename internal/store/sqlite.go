package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	_ "github.com/mattn/go-sqlite3"
	_ "modernc.org/sqlite"

	"todolist/internal/models"
)

// Supported database/sql driver names.
const (
	DriverCGO  = "sqlite3" // github.com/mattn/go-sqlite3
	DriverPure = "sqlite"  // modernc.org/sqlite
)

const taskColumns = `id, text, status, priority, position, created_at, updated_at`

// SQLiteStore implements the Store interface using SQLite.
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLiteStore creates a new SQLite store at dbPath using the mattn driver.
func NewSQLiteStore(dbPath string) (*SQLiteStore, error) {
	return OpenSQLite(DriverCGO, dbPath)
}

// OpenSQLite opens dbPath with the named driver and applies pending migrations.
func OpenSQLite(driver, dbPath string) (*SQLiteStore, error) {
	dsn, err := sqliteDSN(driver, dbPath)
	if err != nil {
		return nil, err
	}

	db, err := sql.Open(driver, dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	// One connection keeps ":memory:" databases shared and avoids SQLITE_BUSY.
	db.SetMaxOpenConns(1)

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	store := &SQLiteStore{db: db}
	if err := runMigrations(db); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to migrate database: %w", err)
	}

	return store, nil
}

func sqliteDSN(driver, dbPath string) (string, error) {
	sep := "?"
	if strings.Contains(dbPath, "?") {
		sep = "&"
	}
	switch driver {
	case DriverCGO:
		return dbPath + sep + "_foreign_keys=on&_busy_timeout=5000", nil
	case DriverPure:
		return dbPath + sep + "_pragma=foreign_keys(1)&_pragma=busy_timeout(5000)", nil
	default:
		return "", fmt.Errorf("unsupported sqlite driver %q", driver)
	}
}

// Close closes the database connection.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

// Ping verifies the database is reachable.
func (s *SQLiteStore) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// CreateTask creates a new task in the database. Invalid tasks are rejected
// with a *models.ValidationError before anything is written.
func (s *SQLiteStore) CreateTask(ctx context.Context, task *models.Task) error {
	if err := task.Validate(); err != nil {
		return err
	}

	now := time.Now().UTC()
	id := uuid.NewString()

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO tasks (id, text, status, priority, position, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)
	`, id, task.Text, task.Status, string(task.Priority), task.Position, now, now)
	if err != nil {
		return fmt.Errorf("failed to create task: %w", err)
	}

	task.ID = id
	task.CreatedAt = now
	task.UpdatedAt = now
	return nil
}

// GetTask retrieves a task by ID.
func (s *SQLiteStore) GetTask(ctx context.Context, id string) (*models.Task, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+taskColumns+` FROM tasks WHERE id = ?`, id)
	task, err := scanTask(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("failed to get task: %w", err)
	}
	return task, nil
}

// ListTasks retrieves all tasks ordered by position.
func (s *SQLiteStore) ListTasks(ctx context.Context) ([]models.Task, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT `+taskColumns+`
		FROM tasks ORDER BY position ASC, created_at ASC, id ASC
	`)
	if err != nil {
		return nil, fmt.Errorf("failed to list tasks: %w", err)
	}
	defer rows.Close()

	tasks := []models.Task{}
	for rows.Next() {
		task, err := scanTask(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan task: %w", err)
		}
		tasks = append(tasks, *task)
	}

	return tasks, rows.Err()
}

// MaxPosition returns the highest position in use, or 0 for an empty table.
func (s *SQLiteStore) MaxPosition(ctx context.Context) (int, error) {
	var maxPos sql.NullInt64
	if err := s.db.QueryRowContext(ctx, `SELECT MAX(position) FROM tasks`).Scan(&maxPos); err != nil {
		return 0, fmt.Errorf("failed to get max position: %w", err)
	}
	if !maxPos.Valid {
		return 0, nil
	}
	return int(maxPos.Int64), nil
}

// UpdateTaskContent replaces text and priority of a task. An empty priority
// keeps the stored one.
func (s *SQLiteStore) UpdateTaskContent(ctx context.Context, id, text string, priority models.Priority) (*models.Task, error) {
	res, err := s.db.ExecContext(ctx, `
		UPDATE tasks
		SET text = ?, priority = COALESCE(NULLIF(?, ''), priority), updated_at = ?
		WHERE id = ?
	`, text, string(priority), time.Now().UTC(), id)
	if err != nil {
		return nil, fmt.Errorf("failed to update task: %w", err)
	}
	if err := requireAffected(res); err != nil {
		return nil, err
	}
	return s.GetTask(ctx, id)
}

// UpdateTaskStatus replaces the status of a task.
func (s *SQLiteStore) UpdateTaskStatus(ctx context.Context, id, status string) (*models.Task, error) {
	res, err := s.db.ExecContext(ctx, `
		UPDATE tasks SET status = ?, updated_at = ? WHERE id = ?
	`, status, time.Now().UTC(), id)
	if err != nil {
		return nil, fmt.Errorf("failed to update task status: %w", err)
	}
	if err := requireAffected(res); err != nil {
		return nil, err
	}
	return s.GetTask(ctx, id)
}

// SetTaskPosition writes a single task's position.
func (s *SQLiteStore) SetTaskPosition(ctx context.Context, id string, position int) (bool, error) {
	res, err := s.db.ExecContext(ctx, `
		UPDATE tasks SET position = ?, updated_at = ? WHERE id = ?
	`, position, time.Now().UTC(), id)
	if err != nil {
		return false, fmt.Errorf("failed to update position: %w", err)
	}
	if err := requireAffected(res); err != nil {
		if errors.Is(err, ErrNotFound) {
			return false, nil
		}
		return false, err
	}
	return true, nil
}

// DeleteTask deletes a task by ID. Remaining positions are left as they are.
func (s *SQLiteStore) DeleteTask(ctx context.Context, id string) (*models.Task, error) {
	task, err := s.GetTask(ctx, id)
	if err != nil {
		return nil, err
	}

	res, err := s.db.ExecContext(ctx, `DELETE FROM tasks WHERE id = ?`, id)
	if err != nil {
		return nil, fmt.Errorf("failed to delete task: %w", err)
	}
	if err := requireAffected(res); err != nil {
		return nil, err
	}
	return task, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanTask(row rowScanner) (*models.Task, error) {
	var (
		task     models.Task
		priority sql.NullString
		status   sql.NullString
	)
	err := row.Scan(
		&task.ID,
		&task.Text,
		&status,
		&priority,
		&task.Position,
		&task.CreatedAt,
		&task.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}

	task.Status = models.StatusPending
	if status.Valid {
		task.Status = status.String
	}
	task.Priority = models.DefaultPriority
	if p := models.Priority(priority.String); priority.Valid && p.Valid() {
		task.Priority = p
	}
	return &task, nil
}

func requireAffected(res sql.Result) error {
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to read rows affected: %w", err)
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}
