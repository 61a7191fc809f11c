package models

import (
	"time"

	"github.com/gofrs/uuid"
	"gorm.io/gorm"
)

type Task struct {
	ID            uuid.UUID `json:"id" gorm:"primaryKey;type:uuid"`
	Title         string    `json:"title" gorm:"type:varchar(256);not null"`
	Description   string    `json:"description" gorm:"type:varchar(256);not null"`
	Status        Status    `json:"status" gorm:"type:varchar(32);not null;default:'PENDING'"`
	Priority      Priority  `json:"priority" gorm:"type:varchar(32);not null"`
	AuthorEmail   string    `json:"author_email" gorm:"type:varchar(255);not null;index"`
	AssigneeEmail string    `json:"assignee_email" gorm:"type:varchar(255);not null;index"`
	Comments      []Comment `json:"comments" gorm:"foreignKey:TaskID;constraint:OnDelete:CASCADE"`
	CreatedAt     time.Time `json:"created_at"`
	UpdatedAt     time.Time `json:"updated_at"`
}

// AssignID gives the task a fresh id unless it already has one.
func (t *Task) AssignID() {
	if t.ID == uuid.Nil {
		t.ID = uuid.Must(uuid.NewV4())
	}
}

func (t *Task) BeforeCreate(*gorm.DB) error {
	t.AssignID()
	return nil
}

// IsAssignedTo compares by the user's stable key.
func (t *Task) IsAssignedTo(email string) bool {
	return t.AssigneeEmail != "" && t.AssigneeEmail == email
}
