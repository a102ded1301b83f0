package payloads

import (
	"github.com/google/uuid"

	"github.com/onenesskingdom/oneness-ledger/pkg/enums"
)

// TransferEvent is emitted for every committed tip or donation.
type TransferEvent struct {
	CorrelationID uuid.UUID          `json:"correlation_id"`
	Kind          enums.TransferKind `json:"kind"`
	SenderID      uuid.UUID          `json:"sender_id"`
	RecipientID   uuid.UUID          `json:"recipient_id"`
	Amount        int64              `json:"amount"`
	PostID        *uuid.UUID         `json:"post_id,omitempty"`
	CampaignID    *uuid.UUID         `json:"campaign_id,omitempty"`
}

// ExchangeRequestedEvent tells the payout desk a new request is waiting.
type ExchangeRequestedEvent struct {
	RequestID    uuid.UUID      `json:"request_id"`
	UserID       uuid.UUID      `json:"user_id"`
	OPAmount     int64          `json:"op_amount"`
	FeeOP        int64          `json:"fee_op"`
	Currency     enums.Currency `json:"currency"`
	Rate         string         `json:"rate"`
	PayoutAmount string         `json:"payout_amount"`
}

// ExchangeStatusChangedEvent records an admin transition.
type ExchangeStatusChangedEvent struct {
	RequestID  uuid.UUID            `json:"request_id"`
	UserID     uuid.UUID            `json:"user_id"`
	From       enums.ExchangeStatus `json:"from"`
	To         enums.ExchangeStatus `json:"to"`
	ReviewerID uuid.UUID            `json:"reviewer_id"`
	Reason     string               `json:"reason,omitempty"`
	// RefundedOP is set when a rejection credited the points back.
	RefundedOP int64 `json:"refunded_op,omitempty"`
}

// ProfileCreatedEvent is emitted once per onboarding.
type ProfileCreatedEvent struct {
	UserID         uuid.UUID `json:"user_id"`
	Username       string    `json:"username"`
	WelcomeBonusOP int64     `json:"welcome_bonus_op"`
}
