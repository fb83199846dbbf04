package services

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"tasks-api/internal/cache"
	"tasks-api/internal/logging"
	"tasks-api/internal/models"
)

const allTasksKey = "tasks:all"

// TaskCache is the subset of cache.RedisCache the decorator needs.
type TaskCache interface {
	Get(ctx context.Context, key string, dest interface{}) error
	Set(ctx context.Context, key string, value interface{}, ttl time.Duration) error
	Delete(ctx context.Context, keys ...string) error
	Stats() map[string]interface{}
}

// CachedTaskService adds a read-through cache in front of another TaskService.
// Writes always reach storage and then invalidate; cache failures are logged
// and never fail the request.
//
// Keys whose invalidation failed are kept in pending. While pending is not
// empty the cache is bypassed, and every lookup first retries the deletes.
// writes counts started writes; a read-through only stores its result if no
// write started since it read from storage.
type CachedTaskService struct {
	next    TaskService
	cache   TaskCache
	taskTTL time.Duration
	listTTL time.Duration

	mu      sync.Mutex
	pending map[string]struct{}
	writes  uint64
}

func NewCachedTaskService(next TaskService, c TaskCache, taskTTL, listTTL time.Duration) *CachedTaskService {
	return &CachedTaskService{
		next:    next,
		cache:   c,
		taskTTL: taskTTL,
		listTTL: listTTL,
		pending: make(map[string]struct{}),
	}
}

func taskKey(id int64) string {
	return fmt.Sprintf("task:%d", id)
}

func (s *CachedTaskService) ListTasks(ctx context.Context) ([]models.Task, error) {
	var cached []models.Task
	if s.lookup(ctx, allTasksKey, &cached) {
		return cached, nil
	}

	gen := s.generation()
	tasks, err := s.next.ListTasks(ctx)
	if err != nil {
		return nil, err
	}

	s.store(ctx, gen, allTasksKey, tasks, s.listTTL)
	return tasks, nil
}

func (s *CachedTaskService) GetTask(ctx context.Context, id int64) (models.Task, error) {
	var cached models.Task
	if s.lookup(ctx, taskKey(id), &cached) {
		return cached, nil
	}

	gen := s.generation()
	task, err := s.next.GetTask(ctx, id)
	if err != nil {
		return task, err
	}

	s.store(ctx, gen, taskKey(id), task, s.taskTTL)
	return task, nil
}

func (s *CachedTaskService) CreateTask(ctx context.Context, input models.TaskInput) (models.Task, error) {
	s.beginWrite(ctx, allTasksKey)
	task, err := s.next.CreateTask(ctx, input)
	if err != nil {
		return task, err
	}

	s.invalidate(ctx, allTasksKey)
	return task, nil
}

func (s *CachedTaskService) UpdateTask(ctx context.Context, id int64, input models.TaskInput) (models.Task, error) {
	s.beginWrite(ctx, taskKey(id), allTasksKey)
	task, err := s.next.UpdateTask(ctx, id, input)
	if err != nil {
		return task, err
	}

	s.invalidate(ctx, taskKey(id), allTasksKey)
	return task, nil
}

func (s *CachedTaskService) DeleteTask(ctx context.Context, id int64) (models.Task, error) {
	s.beginWrite(ctx, taskKey(id), allTasksKey)
	task, err := s.next.DeleteTask(ctx, id)
	if err != nil {
		return task, err
	}

	s.invalidate(ctx, taskKey(id), allTasksKey)
	return task, nil
}

func (s *CachedTaskService) CacheStats() map[string]interface{} {
	stats := s.cache.Stats()
	s.mu.Lock()
	stats["pending_invalidations"] = len(s.pending)
	s.mu.Unlock()
	return stats
}

func (s *CachedTaskService) generation() uint64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.writes
}

func (s *CachedTaskService) beginWrite(ctx context.Context, keys ...string) {
	s.mu.Lock()
	s.writes++
	s.mu.Unlock()

	s.invalidate(ctx, keys...)
}

func (s *CachedTaskService) lookup(ctx context.Context, key string, dest interface{}) bool {
	if !s.settle(ctx) {
		return false
	}

	err := s.cache.Get(ctx, key, dest)
	if err == nil {
		return true
	}
	if !errors.Is(err, cache.ErrCacheMiss) && !errors.Is(err, cache.ErrCircuitBreakerOpen) {
		logging.Warn().Err(err).Str("key", key).Msg("cache read failed")
	}
	return false
}

// settle retries pending invalidations and reports whether the cache can be
// read.
func (s *CachedTaskService) settle(ctx context.Context) bool {
	s.mu.Lock()
	keys := make([]string, 0, len(s.pending))
	for k := range s.pending {
		keys = append(keys, k)
	}
	s.mu.Unlock()

	if len(keys) == 0 {
		return true
	}
	if err := s.cache.Delete(ctx, keys...); err != nil {
		return false
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	for _, k := range keys {
		delete(s.pending, k)
	}
	if len(s.pending) == 0 {
		logging.Info().Strs("keys", keys).Msg("pending cache invalidations applied")
		return true
	}
	return false
}

// store holds mu across the Set so no write can start between the
// generation check and the write to redis.
func (s *CachedTaskService) store(ctx context.Context, gen uint64, key string, value interface{}, ttl time.Duration) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.writes != gen || len(s.pending) > 0 {
		return
	}
	if err := s.cache.Set(ctx, key, value, ttl); err != nil && !errors.Is(err, cache.ErrCircuitBreakerOpen) {
		logging.Warn().Err(err).Str("key", key).Msg("cache write failed")
	}
}

func (s *CachedTaskService) invalidate(ctx context.Context, keys ...string) {
	err := s.cache.Delete(ctx, keys...)

	s.mu.Lock()
	defer s.mu.Unlock()
	for _, k := range keys {
		if err != nil {
			s.pending[k] = struct{}{}
		} else {
			delete(s.pending, k)
		}
	}
	if err != nil && !errors.Is(err, cache.ErrCircuitBreakerOpen) {
		logging.Warn().Err(err).Strs("keys", keys).Msg("cache invalidation failed, bypassing cache until it is retried")
	}
}
