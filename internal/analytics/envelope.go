package analytics

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/onenesskingdom/oneness-ledger/pkg/enums"
	"github.com/onenesskingdom/oneness-ledger/pkg/outbox"
)

// Envelope is a decoded ledger event as delivered by the outbox publisher.
type Envelope struct {
	EventID       uuid.UUID
	EventType     enums.OutboxEventType
	AggregateType enums.OutboxAggregateType
	AggregateID   uuid.UUID
	OccurredAt    time.Time
	Data          json.RawMessage
}

// DecodeMessage combines the message body with its attributes. Attributes win
// for routing fields; the stored envelope supplies the event id fallback and
// the occurrence time.
func DecodeMessage(data []byte, attrs map[string]string) (Envelope, error) {
	var stored outbox.PayloadEnvelope
	if err := json.Unmarshal(data, &stored); err != nil {
		return Envelope{}, fmt.Errorf("decode payload envelope: %w", err)
	}

	rawID := strings.TrimSpace(attrs["event_id"])
	if rawID == "" {
		rawID = stored.EventID
	}
	if rawID == "" {
		return Envelope{}, errors.New("event_id missing")
	}
	eventID, err := uuid.Parse(rawID)
	if err != nil {
		return Envelope{}, fmt.Errorf("event_id: %w", err)
	}

	eventType, err := enums.ParseOutboxEventType(strings.TrimSpace(attrs["event_type"]))
	if err != nil {
		return Envelope{}, fmt.Errorf("event_type: %w", err)
	}
	aggregateType, err := enums.ParseOutboxAggregateType(strings.TrimSpace(attrs["aggregate_type"]))
	if err != nil {
		return Envelope{}, fmt.Errorf("aggregate_type: %w", err)
	}
	aggregateID, err := uuid.Parse(strings.TrimSpace(attrs["aggregate_id"]))
	if err != nil {
		return Envelope{}, fmt.Errorf("aggregate_id: %w", err)
	}

	occurredAt := stored.OccurredAt
	if occurredAt.IsZero() {
		if occurredAt, err = time.Parse(time.RFC3339Nano, attrs["created_at"]); err != nil {
			return Envelope{}, fmt.Errorf("created_at: %w", err)
		}
	}

	return Envelope{
		EventID:       eventID,
		EventType:     eventType,
		AggregateType: aggregateType,
		AggregateID:   aggregateID,
		OccurredAt:    occurredAt.UTC(),
		Data:          stored.Data,
	}, nil
}
