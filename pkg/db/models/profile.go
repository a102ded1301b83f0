package models

import (
	"time"

	"github.com/google/uuid"
)

// Profile is the account row for an authenticated user. ID equals the auth subject.
type Profile struct {
	ID          uuid.UUID `gorm:"column:id;type:uuid;primaryKey"`
	Username    string    `gorm:"column:username;not null;uniqueIndex"`
	DisplayName string    `gorm:"column:display_name;not null"`
	AvatarURL   *string   `gorm:"column:avatar_url"`
	Bio         *string   `gorm:"column:bio"`
	CreatedAt   time.Time `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt   time.Time `gorm:"column:updated_at;autoUpdateTime"`
}
