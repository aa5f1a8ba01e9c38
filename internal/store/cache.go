package store

import (
	"context"
	"errors"
	"time"

	"github.com/bytedance/sonic"
	"github.com/redis/go-redis/v9"
	log "github.com/sirupsen/logrus"

	"todolist/internal/models"
)

const (
	// TasksCacheKey is the Redis key holding the ordered task list.
	TasksCacheKey = "todolist:tasks"
	// TasksGenerationKey is bumped by every write. A list read from the store
	// is cached only if the generation did not move while it was being read.
	TasksGenerationKey = "todolist:tasks:gen"
)

// Cache wraps a Store with a Redis-backed read-through cache of ListTasks.
// Every write evicts the cached list. Redis failures fall back to the
// wrapped store and never fail the call.
type Cache struct {
	Store
	redis  *redis.Client
	ttl    time.Duration
	logger *log.Logger
}

// NewCache creates a caching Store wrapper using the provided Redis client and TTL.
func NewCache(base Store, client *redis.Client, ttl time.Duration, logger *log.Logger) *Cache {
	if base == nil {
		panic("store.NewCache: base store is nil")
	}
	if ttl < 0 {
		ttl = 0
	}
	if logger == nil {
		logger = log.StandardLogger()
	}
	return &Cache{
		Store:  base,
		redis:  client,
		ttl:    ttl,
		logger: logger,
	}
}

// ListTasks serves the ordered list from Redis when present.
func (c *Cache) ListTasks(ctx context.Context) ([]models.Task, error) {
	if tasks, ok := c.loadTasks(ctx); ok {
		return tasks, nil
	}

	gen, genOK := c.generation(ctx)
	tasks, err := c.Store.ListTasks(ctx)
	if err != nil {
		return nil, err
	}

	if genOK {
		c.storeTasks(ctx, gen, tasks)
	}
	return tasks, nil
}

// CreateTask creates the task in the wrapped store and evicts the cached list.
func (c *Cache) CreateTask(ctx context.Context, task *models.Task) error {
	err := c.Store.CreateTask(ctx, task)
	c.evict(ctx)
	return err
}

// UpdateTaskContent updates the task in the wrapped store and evicts the cached list.
func (c *Cache) UpdateTaskContent(ctx context.Context, id, text string, priority models.Priority) (*models.Task, error) {
	task, err := c.Store.UpdateTaskContent(ctx, id, text, priority)
	c.evict(ctx)
	return task, err
}

// UpdateTaskStatus updates the task in the wrapped store and evicts the cached list.
func (c *Cache) UpdateTaskStatus(ctx context.Context, id, status string) (*models.Task, error) {
	task, err := c.Store.UpdateTaskStatus(ctx, id, status)
	c.evict(ctx)
	return task, err
}

// SetTaskPosition moves the task in the wrapped store and evicts the cached list.
func (c *Cache) SetTaskPosition(ctx context.Context, id string, position int) (bool, error) {
	found, err := c.Store.SetTaskPosition(ctx, id, position)
	c.evict(ctx)
	return found, err
}

// DeleteTask deletes the task from the wrapped store and evicts the cached list.
func (c *Cache) DeleteTask(ctx context.Context, id string) (*models.Task, error) {
	task, err := c.Store.DeleteTask(ctx, id)
	c.evict(ctx)
	return task, err
}

// Close closes the wrapped store and the Redis client.
func (c *Cache) Close() error {
	err := c.Store.Close()
	if c.redis != nil {
		if rerr := c.redis.Close(); rerr != nil && err == nil {
			err = rerr
		}
	}
	return err
}

func (c *Cache) loadTasks(ctx context.Context) ([]models.Task, bool) {
	if c.redis == nil {
		return nil, false
	}
	data, err := c.redis.Get(ctx, TasksCacheKey).Bytes()
	if err != nil {
		if !errors.Is(err, redis.Nil) {
			c.logger.WithError(err).Warn("tasks cache read failed")
			_ = c.redis.Del(ctx, TasksCacheKey).Err()
		}
		return nil, false
	}
	var tasks []models.Task
	if err := sonic.Unmarshal(data, &tasks); err != nil {
		_ = c.redis.Del(ctx, TasksCacheKey).Err()
		return nil, false
	}
	return tasks, true
}

// generation reads the current write generation. A missing key is generation 0.
func (c *Cache) generation(ctx context.Context) (int64, bool) {
	if c.redis == nil || c.ttl == 0 {
		return 0, false
	}
	gen, err := c.redis.Get(ctx, TasksGenerationKey).Int64()
	if err != nil && !errors.Is(err, redis.Nil) {
		c.logger.WithError(err).Warn("tasks cache generation read failed")
		return 0, false
	}
	return gen, true
}

// storeTasks caches tasks only while the generation still equals gen. The
// generation key is watched so a write landing between the check and the SET
// aborts the transaction.
func (c *Cache) storeTasks(ctx context.Context, gen int64, tasks []models.Task) {
	data, err := sonic.Marshal(tasks)
	if err != nil {
		return
	}

	err = c.redis.Watch(ctx, func(tx *redis.Tx) error {
		cur, err := tx.Get(ctx, TasksGenerationKey).Int64()
		if err != nil && !errors.Is(err, redis.Nil) {
			return err
		}
		if cur != gen {
			return redis.TxFailedErr
		}
		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.Set(ctx, TasksCacheKey, data, c.ttl)
			return nil
		})
		return err
	}, TasksGenerationKey)

	switch {
	case err == nil:
	case errors.Is(err, redis.TxFailedErr):
		c.logger.Debug("tasks changed during list, skipping cache write")
	default:
		c.logger.WithError(err).Warn("tasks cache write failed")
	}
}

// evict runs after every write attempt, failed or not. It bumps the
// generation before dropping the list so in-flight reads do not repopulate it.
func (c *Cache) evict(ctx context.Context) {
	if c.redis == nil {
		return
	}
	ctx = context.WithoutCancel(ctx)
	_, err := c.redis.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Incr(ctx, TasksGenerationKey)
		pipe.Del(ctx, TasksCacheKey)
		return nil
	})
	if err != nil {
		c.logger.WithError(err).Warn("tasks cache eviction failed")
	}
}
