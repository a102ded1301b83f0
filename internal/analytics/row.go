package analytics

import (
	"encoding/json"
	"fmt"
	"time"

	"cloud.google.com/go/bigquery"
	"github.com/google/uuid"

	"github.com/onenesskingdom/oneness-ledger/pkg/enums"
	"github.com/onenesskingdom/oneness-ledger/pkg/outbox/payloads"
)

// LedgerEventRow is one row of the ledger_events table.
type LedgerEventRow struct {
	EventID        string              `bigquery:"event_id"`
	EventType      string              `bigquery:"event_type"`
	AggregateID    string              `bigquery:"aggregate_id"`
	OccurredAt     time.Time           `bigquery:"occurred_at"`
	UserID         bigquery.NullString `bigquery:"user_id"`
	CounterpartyID bigquery.NullString `bigquery:"counterparty_id"`
	OPAmount       bigquery.NullInt64  `bigquery:"op_amount"`
	Currency       bigquery.NullString `bigquery:"currency"`
	Status         bigquery.NullString `bigquery:"status"`
	Payload        bigquery.NullJSON   `bigquery:"payload"`
}

// BuildRow flattens the typed payload of env into a row.
func BuildRow(env Envelope) (*LedgerEventRow, error) {
	row := &LedgerEventRow{
		EventID:     env.EventID.String(),
		EventType:   string(env.EventType),
		AggregateID: env.AggregateID.String(),
		OccurredAt:  env.OccurredAt,
	}
	if len(env.Data) > 0 {
		row.Payload = bigquery.NullJSON{JSONVal: string(env.Data), Valid: true}
	}

	switch env.EventType {
	case enums.EventTipSent, enums.EventDonationMade:
		var p payloads.TransferEvent
		if err := decode(env.Data, &p); err != nil {
			return nil, err
		}
		row.UserID = nullUUID(p.SenderID)
		row.CounterpartyID = nullUUID(p.RecipientID)
		row.OPAmount = bigquery.NullInt64{Int64: p.Amount, Valid: true}
	case enums.EventExchangeRequested:
		var p payloads.ExchangeRequestedEvent
		if err := decode(env.Data, &p); err != nil {
			return nil, err
		}
		row.UserID = nullUUID(p.UserID)
		row.OPAmount = bigquery.NullInt64{Int64: p.OPAmount, Valid: true}
		row.Currency = bigquery.NullString{StringVal: string(p.Currency), Valid: p.Currency != ""}
		row.Status = bigquery.NullString{StringVal: string(enums.ExchangeStatusPending), Valid: true}
	case enums.EventExchangeStatusChanged:
		var p payloads.ExchangeStatusChangedEvent
		if err := decode(env.Data, &p); err != nil {
			return nil, err
		}
		row.UserID = nullUUID(p.UserID)
		row.CounterpartyID = nullUUID(p.ReviewerID)
		row.Status = bigquery.NullString{StringVal: string(p.To), Valid: p.To != ""}
		if p.RefundedOP != 0 {
			row.OPAmount = bigquery.NullInt64{Int64: p.RefundedOP, Valid: true}
		}
	case enums.EventProfileCreated:
		var p payloads.ProfileCreatedEvent
		if err := decode(env.Data, &p); err != nil {
			return nil, err
		}
		row.UserID = nullUUID(p.UserID)
		row.OPAmount = bigquery.NullInt64{Int64: p.WelcomeBonusOP, Valid: true}
	default:
		return nil, fmt.Errorf("unsupported event type %q", env.EventType)
	}
	return row, nil
}

func decode(data json.RawMessage, dst any) error {
	if len(data) == 0 {
		return fmt.Errorf("payload missing")
	}
	if err := json.Unmarshal(data, dst); err != nil {
		return fmt.Errorf("decode payload: %w", err)
	}
	return nil
}

func nullUUID(id uuid.UUID) bigquery.NullString {
	if id == uuid.Nil {
		return bigquery.NullString{}
	}
	return bigquery.NullString{StringVal: id.String(), Valid: true}
}
