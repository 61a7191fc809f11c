package services

import (
	"context"
	"log"

	"task-tracker/backend/internal/models"
	"task-tracker/backend/internal/policy"
	"task-tracker/backend/internal/repositories"

	"github.com/gofrs/uuid"
)

type CommentService interface {
	// AddComment is the admin path: any task, text validated.
	AddComment(ctx context.Context, caller Caller, taskID uuid.UUID, text string) (*CommentResponse, error)
	// AddAssigneeComment is the assignee path: own tasks only, text stored as given.
	AddAssigneeComment(ctx context.Context, caller Caller, taskID uuid.UUID, text string) (*CommentResponse, error)
}

// TaskInvalidator is told whenever a task's comment thread changes.
type TaskInvalidator interface {
	Invalidate(ctx context.Context, taskID uuid.UUID) error
}

type CommentServiceImpl struct {
	store       repositories.Store
	gate        *ValidationGate
	invalidator TaskInvalidator
}

func NewCommentService(store repositories.Store, gate *ValidationGate, invalidator TaskInvalidator) *CommentServiceImpl {
	if gate == nil {
		gate = NewValidationGate()
	}
	return &CommentServiceImpl{store: store, gate: gate, invalidator: invalidator}
}

func (s *CommentServiceImpl) AddComment(ctx context.Context, caller Caller, taskID uuid.UUID, text string) (*CommentResponse, error) {
	return s.addComment(ctx, caller, taskID, text, policy.ActionCommentAny)
}

// AddAssigneeComment deliberately skips the blank/length checks applied on the admin path.
func (s *CommentServiceImpl) AddAssigneeComment(ctx context.Context, caller Caller, taskID uuid.UUID, text string) (*CommentResponse, error) {
	return s.addComment(ctx, caller, taskID, text, policy.ActionCommentOwn)
}

func (s *CommentServiceImpl) addComment(ctx context.Context, caller Caller, taskID uuid.UUID, text string, action policy.Action) (*CommentResponse, error) {
	var resp CommentResponse
	err := s.store.WithinTx(ctx, func(tx repositories.Store) error {
		// The admin decision does not depend on the task, so it runs before validation.
		var author *models.User
		if action == policy.ActionCommentAny {
			user, err := authorize(ctx, tx, caller, nil, action)
			if err != nil {
				return err
			}
			if err := s.gate.ValidateCommentText(text); err != nil {
				return err
			}
			author = user
		}

		task, err := findTask(ctx, tx, taskID, true)
		if err != nil {
			return err
		}

		if author == nil {
			if author, err = authorize(ctx, tx, caller, task, action); err != nil {
				return err
			}
		}

		comment := &models.Comment{
			TaskID:      task.ID,
			AuthorEmail: author.Email,
			Text:        text,
		}
		if err := tx.Comments().Save(ctx, comment); err != nil {
			return err
		}

		resp = toCommentResponse(*comment)
		return nil
	})
	if err != nil {
		return nil, err
	}

	if s.invalidator != nil {
		if err := s.invalidator.Invalidate(ctx, taskID); err != nil {
			log.Printf("⚠️  Failed to invalidate cached task %s: %v", taskID, err)
		}
	}

	log.Printf("💬 Comment %s added to task %s by %s", resp.ID, taskID, resp.AuthorEmail)
	return &resp, nil
}
