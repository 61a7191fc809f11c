package services

import (
	"context"
	"errors"
	"log"
	"strings"

	"task-tracker/backend/internal/config"
	"task-tracker/backend/internal/models"
	"task-tracker/backend/internal/repositories"
)

type RegistrationRequest struct {
	Email     string `json:"email" binding:"required,email"`
	Password  string `json:"password" binding:"required,min=8"`
	FirstName string `json:"first_name" binding:"required,min=1,max=50"`
	LastName  string `json:"last_name" binding:"required,min=1,max=50"`
}

type RegisterService interface {
	RegisterUser(ctx context.Context, req RegistrationRequest) (*models.User, error)
	EnsureAdmin(ctx context.Context, admin config.AdminConfig) error
}

type RegisterServiceImpl struct {
	store repositories.Store
	gate  *ValidationGate
}

func NewRegisterService(store repositories.Store, gate *ValidationGate) *RegisterServiceImpl {
	if gate == nil {
		gate = NewValidationGate()
	}
	return &RegisterServiceImpl{store: store, gate: gate}
}

// RegisterUser creates a USER account. Emails are compared exactly as stored.
func (s *RegisterServiceImpl) RegisterUser(ctx context.Context, req RegistrationRequest) (*models.User, error) {
	user, err := s.create(ctx, req, models.RoleUser)
	if err != nil {
		return nil, err
	}
	log.Printf("👤 Registered user %s", user.Email)
	return user, nil
}

// EnsureAdmin seeds the configured administrator; an existing account is left untouched.
func (s *RegisterServiceImpl) EnsureAdmin(ctx context.Context, admin config.AdminConfig) error {
	if admin.Email == "" {
		return nil
	}

	_, err := s.create(ctx, RegistrationRequest{
		Email:     admin.Email,
		Password:  admin.Password,
		FirstName: admin.FirstName,
		LastName:  admin.LastName,
	}, models.RoleAdmin)
	if errors.Is(err, ErrEmailTaken) {
		log.Printf("ℹ️  Admin %s already exists", admin.Email)
		return nil
	}
	if err != nil {
		return err
	}

	log.Printf("🛡️  Seeded admin %s", admin.Email)
	return nil
}

func (s *RegisterServiceImpl) create(ctx context.Context, req RegistrationRequest, role models.Role) (*models.User, error) {
	req.Email = strings.TrimSpace(req.Email)
	if err := s.gate.ValidateEmail(req.Email); err != nil {
		return nil, err
	}
	if isBlank(req.Password) {
		return nil, NewValidationError("password must not be blank")
	}

	hashed, err := HashPassword(req.Password)
	if err != nil {
		return nil, err
	}

	user := &models.User{
		Email:        req.Email,
		FirstName:    req.FirstName,
		LastName:     req.LastName,
		Role:         role,
		PasswordHash: hashed,
	}

	err = s.store.WithinTx(ctx, func(tx repositories.Store) error {
		_, err := tx.Users().FindByEmail(ctx, user.Email)
		if err == nil {
			return ErrEmailTaken
		}
		if !errors.Is(err, repositories.ErrNotFound) {
			return err
		}
		return tx.Users().Save(ctx, user)
	})
	if err != nil {
		return nil, err
	}
	return user, nil
}
