package enums

import "fmt"

// TransactionType labels rows of the display transaction log.
type TransactionType string

const (
	TransactionTip          TransactionType = "tip"
	TransactionDonation     TransactionType = "donation"
	TransactionExchange     TransactionType = "exchange"
	TransactionWelcomeBonus TransactionType = "welcome_bonus"
)

var validTransactionTypes = []TransactionType{
	TransactionTip,
	TransactionDonation,
	TransactionExchange,
	TransactionWelcomeBonus,
}

func (t TransactionType) IsValid() bool {
	for _, candidate := range validTransactionTypes {
		if candidate == t {
			return true
		}
	}
	return false
}

func ParseTransactionType(value string) (TransactionType, error) {
	for _, candidate := range validTransactionTypes {
		if string(candidate) == value {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid transaction type %q", value)
}

// TransactionStatusCompleted is the display status for transfers and bonuses.
const TransactionStatusCompleted = "completed"
