package models

import (
	"time"

	"github.com/google/uuid"
)

// Campaign is a donation target owned by a profile.
type Campaign struct {
	ID          uuid.UUID `gorm:"column:id;type:uuid;primaryKey"`
	OwnerID     uuid.UUID `gorm:"column:owner_id;type:uuid;not null"`
	Title       string    `gorm:"column:title;not null"`
	Description *string   `gorm:"column:description"`
	GoalOP      int64     `gorm:"column:goal_op;not null;default:0"`
	Active      bool      `gorm:"column:active;not null"`
	CreatedAt   time.Time `gorm:"column:created_at;autoCreateTime"`
}
