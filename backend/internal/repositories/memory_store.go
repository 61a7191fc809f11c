package repositories

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"

	"task-tracker/backend/internal/models"

	"github.com/gofrs/uuid"
)

// MemoryStore keeps users in an email-keyed arena and tasks/comments in id-keyed maps.
// A single mutex serializes transactions; a transaction works on a copy that replaces the
// live data only when it commits.
type MemoryStore struct {
	mu   *sync.Mutex
	data *memoryData
	inTx bool
}

type memoryData struct {
	users    map[string]models.User
	tasks    map[uuid.UUID]models.Task
	comments map[uuid.UUID]models.Comment
	tokens   map[uuid.UUID]models.Token
	seq      map[uuid.UUID]int64
	next     int64
}

func newMemoryData() *memoryData {
	return &memoryData{
		users:    make(map[string]models.User),
		tasks:    make(map[uuid.UUID]models.Task),
		comments: make(map[uuid.UUID]models.Comment),
		tokens:   make(map[uuid.UUID]models.Token),
		seq:      make(map[uuid.UUID]int64),
	}
}

func (d *memoryData) clone() *memoryData {
	c := newMemoryData()
	for k, v := range d.users {
		c.users[k] = v
	}
	for k, v := range d.tasks {
		c.tasks[k] = v
	}
	for k, v := range d.comments {
		c.comments[k] = v
	}
	for k, v := range d.tokens {
		c.tokens[k] = v
	}
	for k, v := range d.seq {
		c.seq[k] = v
	}
	c.next = d.next
	return c
}

func (d *memoryData) order(id uuid.UUID) int64 {
	if n, ok := d.seq[id]; ok {
		return n
	}
	d.next++
	d.seq[id] = d.next
	return d.next
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{mu: &sync.Mutex{}, data: newMemoryData()}
}

// lock is a no-op inside a transaction, which already holds the mutex.
func (s *MemoryStore) lock() func() {
	if s.inTx {
		return func() {}
	}
	s.mu.Lock()
	return s.mu.Unlock
}

func (s *MemoryStore) Users() UserRepository       { return &memoryUserRepository{s} }
func (s *MemoryStore) Tasks() TaskRepository       { return &memoryTaskRepository{s} }
func (s *MemoryStore) Comments() CommentRepository { return &memoryCommentRepository{s} }
func (s *MemoryStore) Tokens() TokenRepository     { return &memoryTokenRepository{s} }

func (s *MemoryStore) WithinTx(ctx context.Context, fn func(Store) error) error {
	if s.inTx {
		return fn(s)
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	tx := &MemoryStore{mu: s.mu, data: s.data.clone(), inTx: true}
	if err := fn(tx); err != nil {
		return err
	}
	s.data = tx.data
	return nil
}

type memoryUserRepository struct{ s *MemoryStore }

func (r *memoryUserRepository) Save(_ context.Context, user *models.User) error {
	defer r.s.lock()()
	now := time.Now()
	if existing, ok := r.s.data.users[user.Email]; ok {
		user.CreatedAt = existing.CreatedAt
	} else if user.CreatedAt.IsZero() {
		user.CreatedAt = now
	}
	user.UpdatedAt = now
	r.s.data.users[user.Email] = *user
	return nil
}

func (r *memoryUserRepository) FindByEmail(_ context.Context, email string) (*models.User, error) {
	defer r.s.lock()()
	user, ok := r.s.data.users[email]
	if !ok {
		return nil, ErrNotFound
	}
	return &user, nil
}

type memoryTaskRepository struct{ s *MemoryStore }

func (r *memoryTaskRepository) Save(_ context.Context, task *models.Task) error {
	defer r.s.lock()()
	now := time.Now()
	task.AssignID()
	if existing, ok := r.s.data.tasks[task.ID]; ok {
		task.CreatedAt = existing.CreatedAt
	} else if task.CreatedAt.IsZero() {
		task.CreatedAt = now
	}
	task.UpdatedAt = now
	r.s.data.order(task.ID)

	stored := *task
	stored.Comments = nil
	r.s.data.tasks[task.ID] = stored
	return nil
}

func (r *memoryTaskRepository) FindByID(_ context.Context, id uuid.UUID) (*models.Task, error) {
	defer r.s.lock()()
	return r.load(id)
}

// FindByIDForUpdate needs no row lock: transactions already run one at a time.
func (r *memoryTaskRepository) FindByIDForUpdate(ctx context.Context, id uuid.UUID) (*models.Task, error) {
	return r.FindByID(ctx, id)
}

func (r *memoryTaskRepository) load(id uuid.UUID) (*models.Task, error) {
	task, ok := r.s.data.tasks[id]
	if !ok {
		return nil, ErrNotFound
	}
	task.Comments = commentsOf(r.s.data, id)
	return &task, nil
}

func (r *memoryTaskRepository) FindAll(_ context.Context, p Pageable) (Page[models.Task], error) {
	return r.findPage(p, func(models.Task) bool { return true })
}

func (r *memoryTaskRepository) FindByAuthor(_ context.Context, email string, p Pageable) (Page[models.Task], error) {
	return r.findPage(p, func(t models.Task) bool { return t.AuthorEmail == email })
}

func (r *memoryTaskRepository) FindByAssignee(_ context.Context, email string, p Pageable) (Page[models.Task], error) {
	return r.findPage(p, func(t models.Task) bool { return t.AssigneeEmail == email })
}

func (r *memoryTaskRepository) findPage(p Pageable, match func(models.Task) bool) (Page[models.Task], error) {
	defer r.s.lock()()
	p = p.Normalize()

	var matched []models.Task
	for _, t := range r.s.data.tasks {
		if match(t) {
			matched = append(matched, t)
		}
	}

	data := r.s.data
	sort.SliceStable(matched, func(i, j int) bool {
		c := compareTasks(matched[i], matched[j], p.SortBy)
		if c == 0 {
			return data.seq[matched[i].ID] < data.seq[matched[j].ID]
		}
		if p.Order == "asc" {
			return c < 0
		}
		return c > 0
	})

	total := int64(len(matched))
	start := p.Offset()
	if start < 0 {
		start = 0
	}
	if start > len(matched) {
		start = len(matched)
	}
	end := start + p.Size
	if end > len(matched) {
		end = len(matched)
	}

	content := make([]models.Task, 0, end-start)
	for _, t := range matched[start:end] {
		t.Comments = commentsOf(data, t.ID)
		content = append(content, t)
	}
	return NewPage(content, p, total), nil
}

func compareTasks(a, b models.Task, field string) int {
	switch field {
	case "id":
		return strings.Compare(a.ID.String(), b.ID.String())
	case "title":
		return strings.Compare(a.Title, b.Title)
	case "priority":
		return strings.Compare(string(a.Priority), string(b.Priority))
	case "status":
		return strings.Compare(string(a.Status), string(b.Status))
	case "updated_at":
		return a.UpdatedAt.Compare(b.UpdatedAt)
	default:
		return a.CreatedAt.Compare(b.CreatedAt)
	}
}

func (r *memoryTaskRepository) DeleteByID(_ context.Context, id uuid.UUID) error {
	defer r.s.lock()()
	if _, ok := r.s.data.tasks[id]; !ok {
		return ErrNotFound
	}
	delete(r.s.data.tasks, id)
	delete(r.s.data.seq, id)
	return nil
}

func commentsOf(data *memoryData, taskID uuid.UUID) []models.Comment {
	var comments []models.Comment
	for _, c := range data.comments {
		if c.TaskID == taskID {
			comments = append(comments, c)
		}
	}
	sort.SliceStable(comments, func(i, j int) bool {
		return data.seq[comments[i].ID] < data.seq[comments[j].ID]
	})
	return comments
}

type memoryCommentRepository struct{ s *MemoryStore }

func (r *memoryCommentRepository) Save(_ context.Context, comment *models.Comment) error {
	defer r.s.lock()()
	comment.AssignID()
	if comment.CreatedAt.IsZero() {
		comment.CreatedAt = time.Now()
	}
	r.s.data.order(comment.ID)
	r.s.data.comments[comment.ID] = *comment
	return nil
}

func (r *memoryCommentRepository) FindByTask(_ context.Context, taskID uuid.UUID) ([]models.Comment, error) {
	defer r.s.lock()()
	return commentsOf(r.s.data, taskID), nil
}

func (r *memoryCommentRepository) DeleteByTask(_ context.Context, taskID uuid.UUID) error {
	defer r.s.lock()()
	for id, c := range r.s.data.comments {
		if c.TaskID == taskID {
			delete(r.s.data.comments, id)
			delete(r.s.data.seq, id)
		}
	}
	return nil
}

type memoryTokenRepository struct{ s *MemoryStore }

func (r *memoryTokenRepository) Save(_ context.Context, token *models.Token) error {
	defer r.s.lock()()
	if token.ID == uuid.Nil {
		token.ID = uuid.Must(uuid.NewV4())
	}
	if token.CreatedAt.IsZero() {
		token.CreatedAt = time.Now()
	}
	r.s.data.tokens[token.JTI] = *token
	return nil
}

func (r *memoryTokenRepository) FindActive(_ context.Context, jti uuid.UUID, email string, now time.Time) (*models.Token, error) {
	defer r.s.lock()()
	token, ok := r.s.data.tokens[jti]
	if !ok || token.UserEmail != email || !token.ExpiresAt.After(now) {
		return nil, ErrNotFound
	}
	return &token, nil
}

func (r *memoryTokenRepository) DeleteByJTI(_ context.Context, jti uuid.UUID) error {
	defer r.s.lock()()
	delete(r.s.data.tokens, jti)
	return nil
}
