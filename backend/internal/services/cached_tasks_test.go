package services

import (
	"context"
	"testing"
	"time"

	"task-tracker/backend/internal/cache"
	"task-tracker/backend/internal/models"

	"github.com/alicebob/miniredis/v2"
	"github.com/gofrs/uuid"
	"github.com/redis/go-redis/v9"
)

func newCachedServices(t *testing.T) (*CachedTaskService, *CommentServiceImpl, *cache.MultiLevelCache) {
	t.Helper()
	store, tasks, _ := newTestServices(t)

	mr := miniredis.RunT(t)
	cfg := cache.DefaultCacheConfig()
	cfg.Addr = mr.Addr()
	rc := cache.NewRedisCache(cfg)
	c := cache.NewMultiLevelCache(rc)
	t.Cleanup(func() { c.Close() })

	cached := NewCachedTaskService(tasks, store, c, time.Minute)
	return cached, NewCommentService(store, nil, cached), c
}

func TestCachedTaskService_GetServesFromCache(t *testing.T) {
	ctx := context.Background()
	cached, _, c := newCachedServices(t)
	task := createTestTask(t, cached)

	if _, err := cached.GetTask(ctx, adminCaller, task.ID); err != nil {
		t.Fatalf("GetTask failed: %v", err)
	}
	if ok, _ := c.Exists(taskCacheKey(task.ID)); !ok {
		t.Fatal("GetTask should populate the cache")
	}

	if _, err := cached.GetTask(ctx, adminCaller, task.ID); err != nil {
		t.Fatalf("Cached GetTask failed: %v", err)
	}
	if hits := c.GetMetrics().GetStats().Hits; hits < 1 {
		t.Errorf("Expected a cache hit, got %d", hits)
	}
}

func TestCachedTaskService_AuthorizesBeforeHit(t *testing.T) {
	ctx := context.Background()
	cached, _, _ := newCachedServices(t)
	task := createTestTask(t, cached)

	cached.GetTask(ctx, adminCaller, task.ID)

	if _, err := cached.GetTask(ctx, assigneeCaller, task.ID); !IsUnauthorizedError(err) {
		t.Errorf("A cached task must not be served to a non-admin, got %v", err)
	}
}

func TestCachedTaskService_MutationsEvict(t *testing.T) {
	ctx := context.Background()
	cached, comments, c := newCachedServices(t)
	task := createTestTask(t, cached)
	key := taskCacheKey(task.ID)

	prime := func() {
		t.Helper()
		if _, err := cached.GetTask(ctx, adminCaller, task.ID); err != nil {
			t.Fatalf("GetTask failed: %v", err)
		}
	}
	assertEvicted := func(step string) {
		t.Helper()
		if ok, _ := c.Exists(key); ok {
			t.Errorf("%s should evict the cached task", step)
		}
	}

	prime()
	cached.UpdateTask(ctx, adminCaller, task.ID, TaskToUpdate{Title: strPtr("New title")})
	assertEvicted("UpdateTask")
	got, _ := cached.GetTask(ctx, adminCaller, task.ID)
	if got.Title != "New title" {
		t.Errorf("Expected fresh title after update, got %q", got.Title)
	}

	cached.UpdateStatus(ctx, assigneeCaller, task.ID, models.StatusDone)
	assertEvicted("UpdateStatus")

	prime()
	comments.AddAssigneeComment(ctx, assigneeCaller, task.ID, "done")
	assertEvicted("AddAssigneeComment")
	got, _ = cached.GetTask(ctx, adminCaller, task.ID)
	if len(got.Comments) != 1 {
		t.Errorf("Expected comment to be visible after eviction, got %d", len(got.Comments))
	}

	cached.DeleteTask(ctx, adminCaller, task.ID)
	assertEvicted("DeleteTask")
	if _, err := cached.GetTask(ctx, adminCaller, task.ID); !IsNotFoundError(err) {
		t.Errorf("Expected NotFoundError after delete, got %v", err)
	}
}

// pausingTaskService holds the first GetTask after it has read the task, until released.
type pausingTaskService struct {
	TaskService
	read    chan struct{}
	release chan struct{}
}

func (p *pausingTaskService) GetTask(ctx context.Context, caller Caller, id uuid.UUID) (*TaskResponse, error) {
	resp, err := p.TaskService.GetTask(ctx, caller, id)
	if p.read != nil {
		p.read <- struct{}{}
		<-p.release
		p.read = nil
	}
	return resp, err
}

func newNodeCache(t *testing.T, mr *miniredis.Miniredis) *cache.MultiLevelCache {
	t.Helper()
	if mr == nil {
		return cache.NewMultiLevelCache(nil)
	}
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { client.Close() })
	return cache.NewMultiLevelCache(cache.NewRedisCacheWithClient(client, "tt:", time.Second))
}

func TestCachedTaskService_ReadRacingUpdateIsNotCached(t *testing.T) {
	tests := []struct {
		name  string
		redis bool
	}{
		{"memory only", false},
		{"memory and redis", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ctx := context.Background()
			store, tasks, _ := newTestServices(t)
			var mr *miniredis.Miniredis
			if tt.redis {
				mr = miniredis.RunT(t)
			}
			inner := &pausingTaskService{TaskService: tasks, read: make(chan struct{}), release: make(chan struct{})}
			cached := NewCachedTaskService(inner, store, newNodeCache(t, mr), time.Minute)
			task := createTestTask(t, cached)

			done := make(chan error, 1)
			go func() {
				_, err := cached.GetTask(ctx, adminCaller, task.ID)
				done <- err
			}()

			<-inner.read
			if _, err := cached.UpdateTask(ctx, adminCaller, task.ID, TaskToUpdate{Title: strPtr("Updated Task 1")}); err != nil {
				t.Fatalf("UpdateTask failed: %v", err)
			}
			close(inner.release)
			if err := <-done; err != nil {
				t.Fatalf("racing GetTask failed: %v", err)
			}

			got, err := cached.GetTask(ctx, adminCaller, task.ID)
			if err != nil {
				t.Fatalf("GetTask failed: %v", err)
			}
			if got.Title != "Updated Task 1" {
				t.Errorf("Expected committed title, got %q", got.Title)
			}
		})
	}
}

func TestCachedTaskService_EvictionReachesOtherNodes(t *testing.T) {
	ctx := context.Background()
	store, tasks, _ := newTestServices(t)
	mr := miniredis.RunT(t)

	nodeA := NewCachedTaskService(tasks, store, newNodeCache(t, mr).WithLocalTTL(0), time.Minute)
	nodeB := NewCachedTaskService(tasks, store, newNodeCache(t, mr).WithLocalTTL(0), time.Minute)
	task := createTestTask(t, nodeA)

	for _, node := range []*CachedTaskService{nodeA, nodeB} {
		if _, err := node.GetTask(ctx, adminCaller, task.ID); err != nil {
			t.Fatalf("GetTask failed: %v", err)
		}
	}

	if _, err := nodeB.UpdateTask(ctx, adminCaller, task.ID, TaskToUpdate{Title: strPtr("Changed on B")}); err != nil {
		t.Fatalf("UpdateTask failed: %v", err)
	}

	got, err := nodeA.GetTask(ctx, adminCaller, task.ID)
	if err != nil {
		t.Fatalf("GetTask failed: %v", err)
	}
	if got.Title != "Changed on B" {
		t.Errorf("Node A served a stale projection: %q", got.Title)
	}
}
