package services

import (
	"context"
	"testing"

	"task-tracker/backend/internal/models"
	"task-tracker/backend/internal/repositories"
)

var (
	adminCaller    = Caller{Email: "admin@example.com", Role: models.RoleAdmin}
	assigneeCaller = Caller{Email: "assignee@example.com", Role: models.RoleUser}
	otherCaller    = Caller{Email: "other@example.com", Role: models.RoleUser}
)

func seedUsers(t *testing.T, store repositories.Store) {
	t.Helper()
	users := []models.User{
		{Email: adminCaller.Email, FirstName: "Ada", LastName: "Admin", Role: models.RoleAdmin, PasswordHash: "x"},
		{Email: "second-admin@example.com", FirstName: "Sam", LastName: "Second", Role: models.RoleAdmin, PasswordHash: "x"},
		{Email: assigneeCaller.Email, FirstName: "Alex", LastName: "Assignee", Role: models.RoleUser, PasswordHash: "x"},
		{Email: otherCaller.Email, FirstName: "Olga", LastName: "Other", Role: models.RoleUser, PasswordHash: "x"},
	}
	for i := range users {
		if err := store.Users().Save(context.Background(), &users[i]); err != nil {
			t.Fatalf("failed to seed user %s: %v", users[i].Email, err)
		}
	}
}

func newTestServices(t *testing.T) (*repositories.MemoryStore, *TaskServiceImpl, *CommentServiceImpl) {
	t.Helper()
	store := repositories.NewMemoryStore()
	seedUsers(t, store)
	gate := NewValidationGate()
	return store, NewTaskService(store, gate), NewCommentService(store, gate, nil)
}

func createTestTask(t *testing.T, tasks TaskService) *TaskResponse {
	t.Helper()
	resp, err := tasks.CreateTask(context.Background(), adminCaller, TaskToCreate{
		Title:         "Task 1",
		Description:   "Task description",
		Priority:      models.PriorityHigh,
		AssigneeEmail: assigneeCaller.Email,
	})
	if err != nil {
		t.Fatalf("CreateTask failed: %v", err)
	}
	return resp
}

func strPtr(s string) *string { return &s }
