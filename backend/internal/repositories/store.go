package repositories

import (
	"context"
	"errors"
	"math"
	"strconv"
	"strings"
	"time"

	"task-tracker/backend/internal/models"

	"github.com/gofrs/uuid"
)

var ErrNotFound = errors.New("record not found")

// Store groups the repositories that share one transaction boundary.
type Store interface {
	Users() UserRepository
	Tasks() TaskRepository
	Comments() CommentRepository
	Tokens() TokenRepository

	// WithinTx runs fn atomically. Every repository reached through the Store passed to fn
	// takes part in the same transaction; a non-nil error rolls everything back.
	WithinTx(ctx context.Context, fn func(Store) error) error
}

type UserRepository interface {
	Save(ctx context.Context, user *models.User) error
	FindByEmail(ctx context.Context, email string) (*models.User, error)
}

// TaskRepository returns tasks with their comments loaded, oldest comment first.
type TaskRepository interface {
	Save(ctx context.Context, task *models.Task) error
	FindByID(ctx context.Context, id uuid.UUID) (*models.Task, error)
	// FindByIDForUpdate also locks the row until the surrounding transaction ends.
	FindByIDForUpdate(ctx context.Context, id uuid.UUID) (*models.Task, error)
	FindAll(ctx context.Context, p Pageable) (Page[models.Task], error)
	FindByAuthor(ctx context.Context, email string, p Pageable) (Page[models.Task], error)
	FindByAssignee(ctx context.Context, email string, p Pageable) (Page[models.Task], error)
	DeleteByID(ctx context.Context, id uuid.UUID) error
}

type CommentRepository interface {
	Save(ctx context.Context, comment *models.Comment) error
	FindByTask(ctx context.Context, taskID uuid.UUID) ([]models.Comment, error)
	DeleteByTask(ctx context.Context, taskID uuid.UUID) error
}

type TokenRepository interface {
	Save(ctx context.Context, token *models.Token) error
	FindActive(ctx context.Context, jti uuid.UUID, email string, now time.Time) (*models.Token, error)
	DeleteByJTI(ctx context.Context, jti uuid.UUID) error
}

const (
	DefaultPageSize = 10
	MaxPageSize     = 100
	// MaxPage keeps Page*Size inside an int32 offset.
	MaxPage = math.MaxInt32 / MaxPageSize
)

var allowedSort = map[string]bool{
	"id":         true,
	"title":      true,
	"priority":   true,
	"status":     true,
	"created_at": true,
	"updated_at": true,
}

// Pageable is a zero-based page request.
type Pageable struct {
	Page   int
	Size   int
	SortBy string
	Order  string
}

// NewPageable parses raw query values, falling back to defaults for anything unusable.
func NewPageable(page, size, sortBy, order string) Pageable {
	p := Pageable{Page: 0, Size: DefaultPageSize, SortBy: strings.ToLower(sortBy), Order: strings.ToLower(order)}
	if v, err := strconv.Atoi(page); err == nil && v >= 0 {
		p.Page = v
	}
	if v, err := strconv.Atoi(size); err == nil {
		p.Size = v
	}
	return p.Normalize()
}

func (p Pageable) Normalize() Pageable {
	if p.Page < 0 {
		p.Page = 0
	}
	if p.Page > MaxPage {
		p.Page = MaxPage
	}
	if p.Size <= 0 {
		p.Size = DefaultPageSize
	}
	if p.Size > MaxPageSize {
		p.Size = MaxPageSize
	}
	if !allowedSort[p.SortBy] {
		p.SortBy = "created_at"
	}
	if p.Order != "asc" && p.Order != "desc" {
		p.Order = "desc"
	}
	return p
}

func (p Pageable) Offset() int {
	return min(max(p.Page, 0), MaxPage) * min(max(p.Size, 0), MaxPageSize)
}

func (p Pageable) OrderClause() string {
	return p.SortBy + " " + p.Order
}

type Page[T any] struct {
	Content       []T   `json:"content"`
	Page          int   `json:"page"`
	Size          int   `json:"size"`
	TotalElements int64 `json:"total_elements"`
	TotalPages    int   `json:"total_pages"`
}

func NewPage[T any](content []T, p Pageable, total int64) Page[T] {
	if content == nil {
		content = []T{}
	}
	pages := 0
	if p.Size > 0 {
		pages = int((total + int64(p.Size) - 1) / int64(p.Size))
	}
	return Page[T]{
		Content:       content,
		Page:          p.Page,
		Size:          p.Size,
		TotalElements: total,
		TotalPages:    pages,
	}
}

// MapPage converts the content of a page, stopping at the first error.
func MapPage[T, R any](page Page[T], fn func(T) (R, error)) (Page[R], error) {
	out := make([]R, 0, len(page.Content))
	for _, item := range page.Content {
		r, err := fn(item)
		if err != nil {
			return Page[R]{}, err
		}
		out = append(out, r)
	}
	return Page[R]{
		Content:       out,
		Page:          page.Page,
		Size:          page.Size,
		TotalElements: page.TotalElements,
		TotalPages:    page.TotalPages,
	}, nil
}
