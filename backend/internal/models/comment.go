package models

import (
	"time"

	"github.com/gofrs/uuid"
	"gorm.io/gorm"
)

type Comment struct {
	ID          uuid.UUID `json:"id" gorm:"primaryKey;type:uuid"`
	TaskID      uuid.UUID `json:"task_id" gorm:"type:uuid;not null;index"`
	AuthorEmail string    `json:"author_email" gorm:"type:varchar(255);not null"`
	Text        string    `json:"text" gorm:"type:text;not null"`
	CreatedAt   time.Time `json:"created_at"`
}

func (c *Comment) AssignID() {
	if c.ID == uuid.Nil {
		c.ID = uuid.Must(uuid.NewV4())
	}
}

func (c *Comment) BeforeCreate(*gorm.DB) error {
	c.AssignID()
	return nil
}
