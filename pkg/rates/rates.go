package rates

import (
	"context"
	"fmt"
	"strings"

	"github.com/shopspring/decimal"

	"github.com/onenesskingdom/oneness-ledger/pkg/enums"
	pkgerrors "github.com/onenesskingdom/oneness-ledger/pkg/errors"
)

// Provider returns the value of one OP in the requested currency.
type Provider interface {
	Rate(ctx context.Context, currency enums.Currency) (decimal.Decimal, error)
}

// StaticProvider serves fixed rates loaded from configuration.
type StaticProvider struct {
	rates map[enums.Currency]decimal.Decimal
}

// NewStaticProvider parses a currency -> rate map such as {"JPY": "1.5"}.
// Unknown currencies and non-positive rates are rejected.
func NewStaticProvider(raw map[string]string) (*StaticProvider, error) {
	if len(raw) == 0 {
		return nil, fmt.Errorf("at least one rate is required")
	}
	parsed := make(map[enums.Currency]decimal.Decimal, len(raw))
	for code, value := range raw {
		currency, err := enums.ParseCurrency(code)
		if err != nil {
			return nil, err
		}
		rate, err := decimal.NewFromString(strings.TrimSpace(value))
		if err != nil {
			return nil, fmt.Errorf("rate for %s: %w", currency, err)
		}
		if !rate.IsPositive() {
			return nil, fmt.Errorf("rate for %s must be positive", currency)
		}
		parsed[currency] = rate
	}
	return &StaticProvider{rates: parsed}, nil
}

func (p *StaticProvider) Rate(_ context.Context, currency enums.Currency) (decimal.Decimal, error) {
	rate, ok := p.rates[currency]
	if !ok {
		return decimal.Zero, unsupported(currency)
	}
	return rate, nil
}

func unsupported(currency enums.Currency) error {
	return pkgerrors.New(pkgerrors.CodeValidation, "unsupported currency").
		WithDetails(map[string]any{"currency": string(currency)})
}
