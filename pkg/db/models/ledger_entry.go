package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/onenesskingdom/oneness-ledger/pkg/enums"
)

// LedgerEntry is one immutable signed point movement for one account.
type LedgerEntry struct {
	ID                uuid.UUID             `gorm:"column:id;type:uuid;primaryKey"`
	UserID            uuid.UUID             `gorm:"column:user_id;type:uuid;not null"`
	Amount            int64                 `gorm:"column:amount;not null"`
	Type              enums.LedgerEntryType `gorm:"column:type;type:ledger_entry_type_enum;not null"`
	CorrelationID     uuid.UUID             `gorm:"column:correlation_id;type:uuid;not null"`
	RelatedUserID     *uuid.UUID            `gorm:"column:related_user_id;type:uuid"`
	RelatedPostID     *uuid.UUID            `gorm:"column:related_post_id;type:uuid"`
	RelatedCampaignID *uuid.UUID            `gorm:"column:related_campaign_id;type:uuid"`
	RelatedExchangeID *uuid.UUID            `gorm:"column:related_exchange_id;type:uuid"`
	IdempotencyKey    *string               `gorm:"column:idempotency_key"`
	CreatedAt         time.Time             `gorm:"column:created_at;autoCreateTime"`
}

func (LedgerEntry) TableName() string { return "ledger_entries" }

func (e *LedgerEntry) BeforeCreate(*gorm.DB) error {
	if e.ID == uuid.Nil {
		e.ID = uuid.New()
	}
	return nil
}
