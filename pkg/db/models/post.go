package models

import (
	"time"

	"github.com/google/uuid"
)

// Post is a feed item; the ledger only needs its author to route tips.
type Post struct {
	ID        uuid.UUID `gorm:"column:id;type:uuid;primaryKey"`
	AuthorID  uuid.UUID `gorm:"column:author_id;type:uuid;not null"`
	Body      string    `gorm:"column:body;not null"`
	CreatedAt time.Time `gorm:"column:created_at;autoCreateTime"`
}
