package enums

import "fmt"

// ExchangeStatus tracks a payout request through admin review.
type ExchangeStatus string

const (
	ExchangeStatusPending    ExchangeStatus = "pending"
	ExchangeStatusApproved   ExchangeStatus = "approved"
	ExchangeStatusProcessing ExchangeStatus = "processing"
	ExchangeStatusCompleted  ExchangeStatus = "completed"
	ExchangeStatusRejected   ExchangeStatus = "rejected"
)

var validExchangeStatuses = []ExchangeStatus{
	ExchangeStatusPending,
	ExchangeStatusApproved,
	ExchangeStatusProcessing,
	ExchangeStatusCompleted,
	ExchangeStatusRejected,
}

var exchangeTransitions = map[ExchangeStatus][]ExchangeStatus{
	ExchangeStatusPending:    {ExchangeStatusApproved, ExchangeStatusRejected},
	ExchangeStatusApproved:   {ExchangeStatusProcessing},
	ExchangeStatusProcessing: {ExchangeStatusCompleted},
}

// IsValid reports whether the status is recognized.
func (s ExchangeStatus) IsValid() bool {
	for _, candidate := range validExchangeStatuses {
		if candidate == s {
			return true
		}
	}
	return false
}

// IsTerminal reports whether no further transitions are possible.
func (s ExchangeStatus) IsTerminal() bool {
	return s == ExchangeStatusCompleted || s == ExchangeStatusRejected
}

// CanTransitionTo reports whether next is a legal successor of s.
func (s ExchangeStatus) CanTransitionTo(next ExchangeStatus) bool {
	for _, candidate := range exchangeTransitions[s] {
		if candidate == next {
			return true
		}
	}
	return false
}

// ParseExchangeStatus converts raw input into ExchangeStatus.
func ParseExchangeStatus(value string) (ExchangeStatus, error) {
	for _, candidate := range validExchangeStatuses {
		if string(candidate) == value {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid exchange status %q", value)
}
