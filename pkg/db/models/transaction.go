package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	"github.com/onenesskingdom/oneness-ledger/pkg/enums"
)

// Transaction is the denormalized display log. Exchange rows double as the
// pending payout record worked by admins; balances never read from here.
type Transaction struct {
	ID              uuid.UUID             `gorm:"column:id;type:uuid;primaryKey"`
	UserID          uuid.UUID             `gorm:"column:user_id;type:uuid;not null"`
	Type            enums.TransactionType `gorm:"column:type;type:transaction_type_enum;not null"`
	OPAmount        int64                 `gorm:"column:op_amount;not null"`
	Currency        *enums.Currency       `gorm:"column:currency"`
	Amount          decimal.NullDecimal   `gorm:"column:amount;type:numeric(20,8)"`
	Rate            decimal.NullDecimal   `gorm:"column:rate;type:numeric(20,8)"`
	FeeOP           *int64                `gorm:"column:fee_op"`
	Status          string                `gorm:"column:status;not null"`
	CorrelationID   uuid.UUID             `gorm:"column:correlation_id;type:uuid;not null"`
	CounterpartyID  *uuid.UUID            `gorm:"column:counterparty_id;type:uuid"`
	PayoutAddress   *string               `gorm:"column:payout_address"`
	ReviewedBy      *uuid.UUID            `gorm:"column:reviewed_by;type:uuid"`
	ReviewedAt      *time.Time            `gorm:"column:reviewed_at"`
	RejectionReason *string               `gorm:"column:rejection_reason"`
	CreatedAt       time.Time             `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt       time.Time             `gorm:"column:updated_at;autoUpdateTime"`
}

func (t *Transaction) BeforeCreate(*gorm.DB) error {
	if t.ID == uuid.Nil {
		t.ID = uuid.New()
	}
	return nil
}
