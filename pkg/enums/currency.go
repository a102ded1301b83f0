package enums

import (
	"fmt"
	"strings"
)

// Currency represents the payout denominations an exchange can target.
type Currency string

const (
	CurrencyJPY  Currency = "JPY"
	CurrencyUSD  Currency = "USD"
	CurrencyUSDT Currency = "USDT"
	CurrencyUSDC Currency = "USDC"
)

var validCurrencies = []Currency{
	CurrencyJPY,
	CurrencyUSD,
	CurrencyUSDT,
	CurrencyUSDC,
}

// String implements fmt.Stringer.
func (c Currency) String() string {
	return string(c)
}

// IsValid reports whether the currency is recognized.
func (c Currency) IsValid() bool {
	for _, candidate := range validCurrencies {
		if candidate == c {
			return true
		}
	}
	return false
}

// Decimals is the number of fractional digits shown for payouts.
func (c Currency) Decimals() int32 {
	if c == CurrencyJPY {
		return 0
	}
	return 2
}

// ParseCurrency converts a raw string into a Currency. Matching ignores case.
func ParseCurrency(value string) (Currency, error) {
	normalized := strings.ToUpper(strings.TrimSpace(value))
	for _, candidate := range validCurrencies {
		if string(candidate) == normalized {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid currency %q", value)
}
