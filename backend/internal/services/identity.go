package services

import (
	"context"
	"errors"

	"task-tracker/backend/internal/models"
	"task-tracker/backend/internal/repositories"
)

// Subjects name the role a looked-up user plays, for "<subject> not found" messages.
const (
	SubjectUser     = "user"
	SubjectAuthor   = "author"
	SubjectAssignee = "assignee"
)

type IdentityResolver interface {
	ResolveCaller(ctx context.Context, caller Caller) (*models.User, error)
	ResolveByEmail(ctx context.Context, email, subject string) (*models.User, error)
}

// IdentityResolverImpl maps emails to user records through whatever store it is given,
// including a transaction-scoped one.
type IdentityResolverImpl struct {
	users repositories.UserRepository
}

func NewIdentityResolver(store repositories.Store) *IdentityResolverImpl {
	return &IdentityResolverImpl{users: store.Users()}
}

func (r *IdentityResolverImpl) ResolveCaller(ctx context.Context, caller Caller) (*models.User, error) {
	return r.ResolveByEmail(ctx, caller.Email, SubjectUser)
}

func (r *IdentityResolverImpl) ResolveByEmail(ctx context.Context, email, subject string) (*models.User, error) {
	if email == "" {
		return nil, NewNotFoundError("%s not found", subject)
	}
	user, err := r.users.FindByEmail(ctx, email)
	if errors.Is(err, repositories.ErrNotFound) {
		return nil, NewNotFoundError("%s not found", subject)
	}
	if err != nil {
		return nil, err
	}
	return user, nil
}

// Exists reports whether a user with this email is registered.
func (r *IdentityResolverImpl) Exists(ctx context.Context, email string) (bool, error) {
	_, err := r.users.FindByEmail(ctx, email)
	if errors.Is(err, repositories.ErrNotFound) {
		return false, nil
	}
	return err == nil, err
}
