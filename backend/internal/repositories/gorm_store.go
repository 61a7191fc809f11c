package repositories

import (
	"context"
	"errors"
	"time"

	"task-tracker/backend/internal/models"

	"github.com/gofrs/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// GormStore persists through GORM. Postgres in production, SQLite in tests.
type GormStore struct {
	db *gorm.DB
}

func NewGormStore(db *gorm.DB) *GormStore {
	return &GormStore{db: db}
}

func (s *GormStore) Users() UserRepository       { return &gormUserRepository{db: s.db} }
func (s *GormStore) Tasks() TaskRepository       { return &gormTaskRepository{db: s.db} }
func (s *GormStore) Comments() CommentRepository { return &gormCommentRepository{db: s.db} }
func (s *GormStore) Tokens() TokenRepository     { return &gormTokenRepository{db: s.db} }

func (s *GormStore) WithinTx(ctx context.Context, fn func(Store) error) error {
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		return fn(&GormStore{db: tx})
	})
}

// AutoMigrate creates the schema without golang-migrate; used by tests and the SQLite path.
func (s *GormStore) AutoMigrate() error {
	return s.db.AutoMigrate(&models.User{}, &models.Task{}, &models.Comment{}, &models.Token{})
}

func translate(err error) error {
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return ErrNotFound
	}
	return err
}

type gormUserRepository struct {
	db *gorm.DB
}

func (r *gormUserRepository) Save(ctx context.Context, user *models.User) error {
	return r.db.WithContext(ctx).Save(user).Error
}

func (r *gormUserRepository) FindByEmail(ctx context.Context, email string) (*models.User, error) {
	var user models.User
	if err := r.db.WithContext(ctx).Where("email = ?", email).First(&user).Error; err != nil {
		return nil, translate(err)
	}
	return &user, nil
}

type gormTaskRepository struct {
	db *gorm.DB
}

func orderedComments(db *gorm.DB) *gorm.DB {
	return db.Order("created_at asc")
}

func (r *gormTaskRepository) Save(ctx context.Context, task *models.Task) error {
	db := r.db.WithContext(ctx).Omit(clause.Associations)
	if task.ID == uuid.Nil {
		return db.Create(task).Error
	}
	return db.Save(task).Error
}

func (r *gormTaskRepository) FindByID(ctx context.Context, id uuid.UUID) (*models.Task, error) {
	var task models.Task
	err := r.db.WithContext(ctx).
		Preload("Comments", orderedComments).
		Where("id = ?", id).
		First(&task).Error
	if err != nil {
		return nil, translate(err)
	}
	return &task, nil
}

func (r *gormTaskRepository) FindByIDForUpdate(ctx context.Context, id uuid.UUID) (*models.Task, error) {
	db := r.db.WithContext(ctx)

	var task models.Task
	err := db.Clauses(clause.Locking{Strength: "UPDATE"}).Where("id = ?", id).First(&task).Error
	if err != nil {
		return nil, translate(err)
	}
	if err := db.Where("task_id = ?", id).Order("created_at asc").Find(&task.Comments).Error; err != nil {
		return nil, err
	}
	return &task, nil
}

func (r *gormTaskRepository) FindAll(ctx context.Context, p Pageable) (Page[models.Task], error) {
	return r.findPage(ctx, p, nil)
}

func (r *gormTaskRepository) FindByAuthor(ctx context.Context, email string, p Pageable) (Page[models.Task], error) {
	return r.findPage(ctx, p, func(db *gorm.DB) *gorm.DB { return db.Where("author_email = ?", email) })
}

func (r *gormTaskRepository) FindByAssignee(ctx context.Context, email string, p Pageable) (Page[models.Task], error) {
	return r.findPage(ctx, p, func(db *gorm.DB) *gorm.DB { return db.Where("assignee_email = ?", email) })
}

func (r *gormTaskRepository) findPage(ctx context.Context, p Pageable, scope func(*gorm.DB) *gorm.DB) (Page[models.Task], error) {
	p = p.Normalize()

	query := r.db.WithContext(ctx).Model(&models.Task{})
	if scope != nil {
		query = query.Scopes(scope)
	}

	var total int64
	if err := query.Session(&gorm.Session{}).Count(&total).Error; err != nil {
		return Page[models.Task]{}, err
	}

	var tasks []models.Task
	err := query.Session(&gorm.Session{}).
		Preload("Comments", orderedComments).
		Order(p.OrderClause()).
		Order("id asc").
		Offset(p.Offset()).
		Limit(p.Size).
		Find(&tasks).Error
	if err != nil {
		return Page[models.Task]{}, err
	}
	return NewPage(tasks, p, total), nil
}

func (r *gormTaskRepository) DeleteByID(ctx context.Context, id uuid.UUID) error {
	result := r.db.WithContext(ctx).Where("id = ?", id).Delete(&models.Task{})
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}

type gormCommentRepository struct {
	db *gorm.DB
}

func (r *gormCommentRepository) Save(ctx context.Context, comment *models.Comment) error {
	db := r.db.WithContext(ctx)
	if comment.ID == uuid.Nil {
		return db.Create(comment).Error
	}
	return db.Save(comment).Error
}

func (r *gormCommentRepository) FindByTask(ctx context.Context, taskID uuid.UUID) ([]models.Comment, error) {
	var comments []models.Comment
	err := r.db.WithContext(ctx).Where("task_id = ?", taskID).Order("created_at asc").Find(&comments).Error
	return comments, err
}

func (r *gormCommentRepository) DeleteByTask(ctx context.Context, taskID uuid.UUID) error {
	return r.db.WithContext(ctx).Where("task_id = ?", taskID).Delete(&models.Comment{}).Error
}

type gormTokenRepository struct {
	db *gorm.DB
}

func (r *gormTokenRepository) Save(ctx context.Context, token *models.Token) error {
	if token.ID == uuid.Nil {
		token.ID = uuid.Must(uuid.NewV4())
	}
	return r.db.WithContext(ctx).Create(token).Error
}

func (r *gormTokenRepository) FindActive(ctx context.Context, jti uuid.UUID, email string, now time.Time) (*models.Token, error) {
	var token models.Token
	err := r.db.WithContext(ctx).
		Where("jti = ? AND user_email = ? AND expires_at > ?", jti, email, now).
		First(&token).Error
	if err != nil {
		return nil, translate(err)
	}
	return &token, nil
}

func (r *gormTokenRepository) DeleteByJTI(ctx context.Context, jti uuid.UUID) error {
	return r.db.WithContext(ctx).Where("jti = ?", jti).Delete(&models.Token{}).Error
}
