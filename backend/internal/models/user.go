package models

import "time"

// User is keyed by email; tasks and comments reference it by that key only.
type User struct {
	Email        string    `json:"email" gorm:"primaryKey;type:varchar(255)"`
	FirstName    string    `json:"first_name" gorm:"not null"`
	LastName     string    `json:"last_name" gorm:"not null"`
	Role         Role      `json:"role" gorm:"type:varchar(16);not null;default:'USER'"`
	PasswordHash string    `json:"-" gorm:"not null"`
	CreatedAt    time.Time `json:"created_at"`
	UpdatedAt    time.Time `json:"updated_at"`
}

func (u User) IsAdmin() bool {
	return u.Role == RoleAdmin
}
