package enums

import "fmt"

// OutboxAggregateType maps to the aggregate_type enum in Postgres.
type OutboxAggregateType string

const (
	AggregateLedgerTransfer  OutboxAggregateType = "ledger_transfer"
	AggregateExchangeRequest OutboxAggregateType = "exchange_request"
	AggregateProfile         OutboxAggregateType = "profile"
)

var validAggregateTypes = []OutboxAggregateType{
	AggregateLedgerTransfer,
	AggregateExchangeRequest,
	AggregateProfile,
}

// IsValid reports whether the value matches the canonical aggregate_type enum.
func (a OutboxAggregateType) IsValid() bool {
	for _, candidate := range validAggregateTypes {
		if candidate == a {
			return true
		}
	}
	return false
}

// ParseOutboxAggregateType converts raw input into OutboxAggregateType.
func ParseOutboxAggregateType(value string) (OutboxAggregateType, error) {
	for _, candidate := range validAggregateTypes {
		if string(candidate) == value {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid aggregate type %q", value)
}

// OutboxEventType maps to the event_type enum in Postgres.
type OutboxEventType string

const (
	EventTipSent               OutboxEventType = "tip_sent"
	EventDonationMade          OutboxEventType = "donation_made"
	EventExchangeRequested     OutboxEventType = "exchange_requested"
	EventExchangeStatusChanged OutboxEventType = "exchange_status_changed"
	EventProfileCreated        OutboxEventType = "profile_created"
)

var validOutboxEventTypes = []OutboxEventType{
	EventTipSent,
	EventDonationMade,
	EventExchangeRequested,
	EventExchangeStatusChanged,
	EventProfileCreated,
}

// IsValid reports whether the value matches the canonical event_type enum.
func (e OutboxEventType) IsValid() bool {
	for _, candidate := range validOutboxEventTypes {
		if candidate == e {
			return true
		}
	}
	return false
}

// ParseOutboxEventType converts raw input into OutboxEventType.
func ParseOutboxEventType(value string) (OutboxEventType, error) {
	for _, candidate := range validOutboxEventTypes {
		if string(candidate) == value {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid event type %q", value)
}
