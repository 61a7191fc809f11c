package services

import (
	"context"
	"errors"
	"fmt"
	"log"
	"time"

	"task-tracker/backend/internal/cache"
	"task-tracker/backend/internal/models"
	"task-tracker/backend/internal/policy"
	"task-tracker/backend/internal/repositories"

	"github.com/gofrs/uuid"
)

// CachedTaskService serves GetTask projections from the cache. Authorization is never
// cached: the caller is resolved and the policy applied on every read. A projection read
// before a mutation's eviction is never written back.
type CachedTaskService struct {
	TaskService
	store repositories.Store
	cache cache.VersionedCache
	ttl   time.Duration
}

func NewCachedTaskService(inner TaskService, store repositories.Store, c cache.VersionedCache, ttl time.Duration) *CachedTaskService {
	if ttl <= 0 {
		ttl = 5 * time.Minute
	}
	return &CachedTaskService{TaskService: inner, store: store, cache: c, ttl: ttl}
}

func taskCacheKey(id uuid.UUID) string {
	return fmt.Sprintf("task:%s", id)
}

func (s *CachedTaskService) GetTask(ctx context.Context, caller Caller, id uuid.UUID) (*TaskResponse, error) {
	if _, err := authorize(ctx, s.store, caller, nil, policy.ActionReadTask); err != nil {
		return nil, err
	}

	key := taskCacheKey(id)
	var cached TaskResponse
	err := s.cache.Get(key, &cached)
	if err == nil {
		return &cached, nil
	}
	if !errors.Is(err, cache.ErrCacheMiss) {
		log.Printf("⚠️  Cache read for task %s failed: %v", id, err)
	}

	version, verr := s.cache.Version(key)

	resp, err := s.TaskService.GetTask(ctx, caller, id)
	if err != nil {
		return nil, err
	}

	if verr != nil {
		log.Printf("⚠️  Skipping cache fill for task %s: %v", id, verr)
		return resp, nil
	}
	if _, err := s.cache.SetIfVersion(key, *resp, s.ttl, version); err != nil {
		log.Printf("⚠️  Cache write for task %s failed: %v", id, err)
	}
	return resp, nil
}

func (s *CachedTaskService) UpdateTask(ctx context.Context, caller Caller, id uuid.UUID, req TaskToUpdate) (*TaskResponse, error) {
	resp, err := s.TaskService.UpdateTask(ctx, caller, id, req)
	s.evict(ctx, id, err)
	return resp, err
}

func (s *CachedTaskService) DeleteTask(ctx context.Context, caller Caller, id uuid.UUID) (*TaskResponse, error) {
	resp, err := s.TaskService.DeleteTask(ctx, caller, id)
	s.evict(ctx, id, err)
	return resp, err
}

func (s *CachedTaskService) UpdateStatus(ctx context.Context, caller Caller, id uuid.UUID, status models.Status) (*TaskResponse, error) {
	resp, err := s.TaskService.UpdateStatus(ctx, caller, id, status)
	s.evict(ctx, id, err)
	return resp, err
}

// Invalidate drops the cached projection of one task.
func (s *CachedTaskService) Invalidate(_ context.Context, taskID uuid.UUID) error {
	return s.cache.Invalidate(taskCacheKey(taskID))
}

func (s *CachedTaskService) evict(ctx context.Context, id uuid.UUID, opErr error) {
	if opErr != nil {
		return
	}
	if err := s.Invalidate(ctx, id); err != nil {
		log.Printf("⚠️  Failed to invalidate cached task %s: %v", id, err)
	}
}
