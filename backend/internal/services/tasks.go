package services

import (
	"context"
	"errors"
	"log"

	"task-tracker/backend/internal/models"
	"task-tracker/backend/internal/policy"
	"task-tracker/backend/internal/repositories"

	"github.com/gofrs/uuid"
)

type TaskService interface {
	CreateTask(ctx context.Context, caller Caller, req TaskToCreate) (*TaskResponse, error)
	GetTask(ctx context.Context, caller Caller, id uuid.UUID) (*TaskResponse, error)
	ListTasks(ctx context.Context, caller Caller, p repositories.Pageable) (repositories.Page[TaskResponse], error)
	ListByAuthor(ctx context.Context, caller Caller, email string, p repositories.Pageable) (repositories.Page[TaskResponse], error)
	ListByAssignee(ctx context.Context, caller Caller, email string, p repositories.Pageable) (repositories.Page[TaskResponse], error)
	ListOwnTasks(ctx context.Context, caller Caller, p repositories.Pageable) (repositories.Page[TaskResponse], error)
	UpdateTask(ctx context.Context, caller Caller, id uuid.UUID, req TaskToUpdate) (*TaskResponse, error)
	DeleteTask(ctx context.Context, caller Caller, id uuid.UUID) (*TaskResponse, error)
	UpdateStatus(ctx context.Context, caller Caller, id uuid.UUID, status models.Status) (*TaskResponse, error)
}

type TaskServiceImpl struct {
	store repositories.Store
	gate  *ValidationGate
}

func NewTaskService(store repositories.Store, gate *ValidationGate) *TaskServiceImpl {
	if gate == nil {
		gate = NewValidationGate()
	}
	return &TaskServiceImpl{store: store, gate: gate}
}

// authorize resolves the caller's user record and applies the policy to it.
func authorize(ctx context.Context, store repositories.Store, caller Caller, task *models.Task, action policy.Action) (*models.User, error) {
	user, err := NewIdentityResolver(store).ResolveCaller(ctx, caller)
	if err != nil {
		return nil, err
	}
	if decision := policy.Evaluate(*user, task, action); !decision.Allowed {
		return nil, NewUnauthorizedError("%s", decision.Reason)
	}
	return user, nil
}

func findTask(ctx context.Context, store repositories.Store, id uuid.UUID, forUpdate bool) (*models.Task, error) {
	var (
		task *models.Task
		err  error
	)
	if forUpdate {
		task, err = store.Tasks().FindByIDForUpdate(ctx, id)
	} else {
		task, err = store.Tasks().FindByID(ctx, id)
	}
	if errors.Is(err, repositories.ErrNotFound) {
		return nil, NewNotFoundError("task %s not found", id)
	}
	if err != nil {
		return nil, err
	}
	return task, nil
}

// project builds the caller-facing view. A dangling assignee leaves the name fields empty.
func project(ctx context.Context, store repositories.Store, task models.Task) (TaskResponse, error) {
	assignee, err := store.Users().FindByEmail(ctx, task.AssigneeEmail)
	if err != nil && !errors.Is(err, repositories.ErrNotFound) {
		return TaskResponse{}, err
	}
	return toTaskResponse(task, assignee), nil
}

func projectPage(ctx context.Context, store repositories.Store, page repositories.Page[models.Task]) (repositories.Page[TaskResponse], error) {
	assignees := make(map[string]*models.User)
	return repositories.MapPage(page, func(task models.Task) (TaskResponse, error) {
		assignee, seen := assignees[task.AssigneeEmail]
		if !seen {
			user, err := store.Users().FindByEmail(ctx, task.AssigneeEmail)
			if err != nil && !errors.Is(err, repositories.ErrNotFound) {
				return TaskResponse{}, err
			}
			assignee = user
			assignees[task.AssigneeEmail] = user
		}
		return toTaskResponse(task, assignee), nil
	})
}

func (s *TaskServiceImpl) CreateTask(ctx context.Context, caller Caller, req TaskToCreate) (*TaskResponse, error) {
	var resp TaskResponse
	err := s.store.WithinTx(ctx, func(tx repositories.Store) error {
		author, err := authorize(ctx, tx, caller, nil, policy.ActionCreateTask)
		if err != nil {
			return err
		}

		resolver := NewIdentityResolver(tx)
		exists := func(email string) (bool, error) { return resolver.Exists(ctx, email) }
		if err := s.gate.ValidateCreate(req, exists); err != nil {
			return err
		}

		assignee, err := resolver.ResolveByEmail(ctx, req.AssigneeEmail, SubjectAssignee)
		if err != nil {
			return err
		}

		task := &models.Task{
			Title:         req.Title,
			Description:   req.Description,
			Status:        models.StatusPending,
			Priority:      req.Priority,
			AuthorEmail:   author.Email,
			AssigneeEmail: assignee.Email,
		}
		if err := tx.Tasks().Save(ctx, task); err != nil {
			return err
		}

		resp = toTaskResponse(*task, assignee)
		return nil
	})
	if err != nil {
		return nil, err
	}

	log.Printf("📝 Task %s created by %s for %s", resp.ID, resp.AuthorEmail, resp.AssigneeEmail)
	return &resp, nil
}

func (s *TaskServiceImpl) GetTask(ctx context.Context, caller Caller, id uuid.UUID) (*TaskResponse, error) {
	if _, err := authorize(ctx, s.store, caller, nil, policy.ActionReadTask); err != nil {
		return nil, err
	}

	task, err := findTask(ctx, s.store, id, false)
	if err != nil {
		return nil, err
	}

	resp, err := project(ctx, s.store, *task)
	if err != nil {
		return nil, err
	}
	return &resp, nil
}

func (s *TaskServiceImpl) ListTasks(ctx context.Context, caller Caller, p repositories.Pageable) (repositories.Page[TaskResponse], error) {
	if _, err := authorize(ctx, s.store, caller, nil, policy.ActionListTasks); err != nil {
		return repositories.Page[TaskResponse]{}, err
	}

	page, err := s.store.Tasks().FindAll(ctx, p)
	if err != nil {
		return repositories.Page[TaskResponse]{}, err
	}
	return projectPage(ctx, s.store, page)
}

func (s *TaskServiceImpl) ListByAuthor(ctx context.Context, caller Caller, email string, p repositories.Pageable) (repositories.Page[TaskResponse], error) {
	if _, err := authorize(ctx, s.store, caller, nil, policy.ActionListTasks); err != nil {
		return repositories.Page[TaskResponse]{}, err
	}

	author, err := NewIdentityResolver(s.store).ResolveByEmail(ctx, email, SubjectAuthor)
	if err != nil {
		return repositories.Page[TaskResponse]{}, err
	}

	page, err := s.store.Tasks().FindByAuthor(ctx, author.Email, p)
	if err != nil {
		return repositories.Page[TaskResponse]{}, err
	}
	return projectPage(ctx, s.store, page)
}

func (s *TaskServiceImpl) ListByAssignee(ctx context.Context, caller Caller, email string, p repositories.Pageable) (repositories.Page[TaskResponse], error) {
	if _, err := authorize(ctx, s.store, caller, nil, policy.ActionListTasks); err != nil {
		return repositories.Page[TaskResponse]{}, err
	}

	assignee, err := NewIdentityResolver(s.store).ResolveByEmail(ctx, email, SubjectAssignee)
	if err != nil {
		return repositories.Page[TaskResponse]{}, err
	}

	page, err := s.store.Tasks().FindByAssignee(ctx, assignee.Email, p)
	if err != nil {
		return repositories.Page[TaskResponse]{}, err
	}
	return projectPage(ctx, s.store, page)
}

// ListOwnTasks pages through the tasks assigned to the caller.
func (s *TaskServiceImpl) ListOwnTasks(ctx context.Context, caller Caller, p repositories.Pageable) (repositories.Page[TaskResponse], error) {
	user, err := authorize(ctx, s.store, caller, nil, policy.ActionListOwnTasks)
	if err != nil {
		return repositories.Page[TaskResponse]{}, err
	}

	page, err := s.store.Tasks().FindByAssignee(ctx, user.Email, p)
	if err != nil {
		return repositories.Page[TaskResponse]{}, err
	}
	return projectPage(ctx, s.store, page)
}

// UpdateTask applies a patch. Every update re-attributes authorship to the acting admin.
// An assignee email that matches no user leaves the assignee unchanged without error.
func (s *TaskServiceImpl) UpdateTask(ctx context.Context, caller Caller, id uuid.UUID, req TaskToUpdate) (*TaskResponse, error) {
	var resp TaskResponse
	err := s.store.WithinTx(ctx, func(tx repositories.Store) error {
		admin, err := authorize(ctx, tx, caller, nil, policy.ActionUpdateTask)
		if err != nil {
			return err
		}

		task, err := findTask(ctx, tx, id, true)
		if err != nil {
			return err
		}

		if err := s.gate.ValidatePatch(req); err != nil {
			return err
		}

		var newAssignee *models.User
		if req.AssigneeEmail != nil && !isBlank(*req.AssigneeEmail) {
			user, err := NewIdentityResolver(tx).ResolveByEmail(ctx, *req.AssigneeEmail, SubjectAssignee)
			switch {
			case err == nil:
				newAssignee = user
			case IsNotFoundError(err):
				log.Printf("⚠️  Task %s: assignee %s not found, keeping %s", id, *req.AssigneeEmail, task.AssigneeEmail)
			default:
				return err
			}
		}

		task.AuthorEmail = admin.Email
		if req.Title != nil && !isBlank(*req.Title) {
			task.Title = *req.Title
		}
		if req.Description != nil && !isBlank(*req.Description) {
			task.Description = *req.Description
		}
		if req.Priority != nil {
			task.Priority = *req.Priority
		}
		if req.Status != nil {
			task.Status = *req.Status
		}
		if newAssignee != nil {
			task.AssigneeEmail = newAssignee.Email
		}

		if err := tx.Tasks().Save(ctx, task); err != nil {
			return err
		}

		resp, err = project(ctx, tx, *task)
		return err
	})
	if err != nil {
		return nil, err
	}

	log.Printf("✏️  Task %s updated by %s", id, caller.Email)
	return &resp, nil
}

// DeleteTask removes the task and every comment it owns, returning the task as it was.
func (s *TaskServiceImpl) DeleteTask(ctx context.Context, caller Caller, id uuid.UUID) (*TaskResponse, error) {
	var resp TaskResponse
	err := s.store.WithinTx(ctx, func(tx repositories.Store) error {
		if _, err := authorize(ctx, tx, caller, nil, policy.ActionDeleteTask); err != nil {
			return err
		}

		task, err := findTask(ctx, tx, id, true)
		if err != nil {
			return err
		}

		resp, err = project(ctx, tx, *task)
		if err != nil {
			return err
		}

		if err := tx.Comments().DeleteByTask(ctx, task.ID); err != nil {
			return err
		}
		if err := tx.Tasks().DeleteByID(ctx, task.ID); err != nil {
			if errors.Is(err, repositories.ErrNotFound) {
				return NewNotFoundError("task %s not found", id)
			}
			return err
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	log.Printf("🗑️  Task %s deleted by %s", id, caller.Email)
	return &resp, nil
}

// UpdateStatus is the assignee path: only the task's assignee may move it, to any status.
func (s *TaskServiceImpl) UpdateStatus(ctx context.Context, caller Caller, id uuid.UUID, status models.Status) (*TaskResponse, error) {
	var resp TaskResponse
	err := s.store.WithinTx(ctx, func(tx repositories.Store) error {
		task, err := findTask(ctx, tx, id, true)
		if err != nil {
			return err
		}

		if _, err := authorize(ctx, tx, caller, task, policy.ActionUpdateStatus); err != nil {
			return err
		}

		if err := s.gate.ValidateStatus(status); err != nil {
			return err
		}

		task.Status = status
		if err := tx.Tasks().Save(ctx, task); err != nil {
			return err
		}

		resp, err = project(ctx, tx, *task)
		return err
	})
	if err != nil {
		return nil, err
	}

	log.Printf("🔁 Task %s moved to %s by %s", id, status, caller.Email)
	return &resp, nil
}
