package services

import (
	"strings"
	"unicode/utf8"

	"task-tracker/backend/internal/models"

	"github.com/go-playground/validator/v10"
)

// MaxTextLength bounds titles, descriptions and admin comments, in characters.
const MaxTextLength = 256

func IsWithinLengthLimit(text string) bool {
	return utf8.RuneCountInString(text) <= MaxTextLength
}

func isBlank(s string) bool {
	return strings.TrimSpace(s) == ""
}

// ValidationGate checks field presence, length and format before any mutation.
type ValidationGate struct {
	validate *validator.Validate
}

func NewValidationGate() *ValidationGate {
	return &ValidationGate{validate: validator.New()}
}

func (g *ValidationGate) requireText(field, value string) error {
	if isBlank(value) {
		return NewValidationError("task %s must not be blank", field)
	}
	if !IsWithinLengthLimit(value) {
		return NewValidationError("task %s must be at most %d characters", field, MaxTextLength)
	}
	return nil
}

func (g *ValidationGate) ValidateEmail(email string) error {
	if err := g.validate.Var(email, "required,email"); err != nil {
		return NewValidationError("invalid email format: %q", email)
	}
	return nil
}

// ValidateCreate checks a new task. assigneeExists reports whether the email belongs to a user.
func (g *ValidationGate) ValidateCreate(req TaskToCreate, assigneeExists func(email string) (bool, error)) error {
	if err := g.requireText("title", req.Title); err != nil {
		return err
	}
	if err := g.requireText("description", req.Description); err != nil {
		return err
	}
	if req.Priority == "" {
		return NewValidationError("task priority must be set")
	}
	if !req.Priority.IsValid() {
		return NewValidationError("unknown task priority %q", req.Priority)
	}
	if err := g.ValidateEmail(req.AssigneeEmail); err != nil {
		return err
	}

	ok, err := assigneeExists(req.AssigneeEmail)
	if err != nil {
		return err
	}
	if !ok {
		return NewValidationError("assignee %s does not exist", req.AssigneeEmail)
	}
	return nil
}

// ValidatePatch checks only the fields that will be applied. Absent or blank text fields
// are "no change" and never fail; the assignee is resolved separately.
func (g *ValidationGate) ValidatePatch(req TaskToUpdate) error {
	if req.Title != nil && !isBlank(*req.Title) {
		if err := g.requireText("title", *req.Title); err != nil {
			return err
		}
	}
	if req.Description != nil && !isBlank(*req.Description) {
		if err := g.requireText("description", *req.Description); err != nil {
			return err
		}
	}
	if req.Priority != nil && !req.Priority.IsValid() {
		return NewValidationError("unknown task priority %q", *req.Priority)
	}
	if req.Status != nil {
		if err := g.ValidateStatus(*req.Status); err != nil {
			return err
		}
	}
	return nil
}

func (g *ValidationGate) ValidateStatus(status models.Status) error {
	if !status.IsValid() {
		return NewValidationError("unknown task status %q", status)
	}
	return nil
}

func (g *ValidationGate) ValidateCommentText(text string) error {
	if isBlank(text) {
		return NewValidationError("comment text must not be blank")
	}
	if !IsWithinLengthLimit(text) {
		return NewValidationError("comment text must be at most %d characters", MaxTextLength)
	}
	return nil
}
