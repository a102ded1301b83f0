package enums

import "fmt"

// LedgerEntryType maps to the ledger_entry_type_enum enum in Postgres.
type LedgerEntryType string

const (
	LedgerEntryWelcomeBonus      LedgerEntryType = "welcome_bonus"
	LedgerEntryTipSent           LedgerEntryType = "tip_sent"
	LedgerEntryTipReceived       LedgerEntryType = "tip_received"
	LedgerEntryDonation          LedgerEntryType = "donation"
	LedgerEntryDonationReceived  LedgerEntryType = "donation_received"
	LedgerEntryExchange          LedgerEntryType = "exchange"
	LedgerEntryPurchase          LedgerEntryType = "purchase"
	LedgerEntryExchangeRejection LedgerEntryType = "exchange_rejection"
)

var validLedgerEntryTypes = []LedgerEntryType{
	LedgerEntryWelcomeBonus,
	LedgerEntryTipSent,
	LedgerEntryTipReceived,
	LedgerEntryDonation,
	LedgerEntryDonationReceived,
	LedgerEntryExchange,
	LedgerEntryPurchase,
	LedgerEntryExchangeRejection,
}

// IsValid reports whether the value matches the canonical ledger entry enum.
func (t LedgerEntryType) IsValid() bool {
	for _, candidate := range validLedgerEntryTypes {
		if candidate == t {
			return true
		}
	}
	return false
}

// Sign returns +1 for credit types and -1 for debit types.
func (t LedgerEntryType) Sign() int64 {
	switch t {
	case LedgerEntryTipSent, LedgerEntryDonation, LedgerEntryExchange, LedgerEntryPurchase:
		return -1
	default:
		return 1
	}
}

// ParseLedgerEntryType converts raw input into LedgerEntryType.
func ParseLedgerEntryType(value string) (LedgerEntryType, error) {
	for _, candidate := range validLedgerEntryTypes {
		if string(candidate) == value {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid ledger entry type %q", value)
}

// TransferKind names the two-sided ledger movements.
type TransferKind string

const (
	TransferTip      TransferKind = "tip"
	TransferDonation TransferKind = "donation"
)

// IsValid reports whether the transfer kind is recognized.
func (k TransferKind) IsValid() bool {
	return k == TransferTip || k == TransferDonation
}

// EntryTypes returns the debit and credit entry types written for the kind.
func (k TransferKind) EntryTypes() (debit, credit LedgerEntryType) {
	if k == TransferDonation {
		return LedgerEntryDonation, LedgerEntryDonationReceived
	}
	return LedgerEntryTipSent, LedgerEntryTipReceived
}
