package models

import (
	"time"

	"github.com/gofrs/uuid"
)

// Token records an issued refresh token so it can be rotated or revoked.
type Token struct {
	ID        uuid.UUID `json:"id" gorm:"primaryKey;type:uuid"`
	UserEmail string    `json:"user_email" gorm:"type:varchar(255);not null;index"`
	JTI       uuid.UUID `json:"jti" gorm:"type:uuid;uniqueIndex"`
	ExpiresAt time.Time `json:"expires_at"`
	CreatedAt time.Time `json:"created_at"`
}
