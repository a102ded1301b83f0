package exchange

import (
	"github.com/shopspring/decimal"

	"github.com/onenesskingdom/oneness-ledger/pkg/enums"
)

var hundred = decimal.NewFromInt(100)

// Policy holds the fee and reserve percentages applied to every request.
type Policy struct {
	FeePercent         decimal.Decimal
	MaxExchangePercent decimal.Decimal
}

// NewPolicy falls back to a 5% fee and a 95% ceiling when values are unset.
func NewPolicy(feePercent, maxExchangePercent float64) Policy {
	fee := decimal.NewFromFloat(feePercent)
	if feePercent <= 0 {
		fee = decimal.NewFromInt(5)
	}
	ceiling := decimal.NewFromFloat(maxExchangePercent)
	if maxExchangePercent <= 0 || maxExchangePercent > 100 {
		ceiling = decimal.NewFromInt(95)
	}
	return Policy{FeePercent: fee, MaxExchangePercent: ceiling}
}

// MaxExchangeable is floor(balance * ceiling / 100).
func (p Policy) MaxExchangeable(balance int64) int64 {
	if balance <= 0 {
		return 0
	}
	return decimal.NewFromInt(balance).Mul(p.MaxExchangePercent).Div(hundred).Floor().IntPart()
}

// Quote is the priced view of converting an OP amount.
type Quote struct {
	OPAmount int64
	Currency enums.Currency
	Rate     decimal.Decimal
	FeeOP    int64
	Gross    decimal.Decimal
	Payout   decimal.Decimal
}

// Price computes gross = op * rate and payout = gross * (1 - fee), rounded
// half-up to the currency's decimals. The fee shrinks the payout only; the
// ledger debit stays at the full OP amount.
func (p Policy) Price(opAmount int64, currency enums.Currency, rate decimal.Decimal) Quote {
	places := currency.Decimals()
	op := decimal.NewFromInt(opAmount)
	gross := op.Mul(rate)
	keep := hundred.Sub(p.FeePercent).Div(hundred)
	return Quote{
		OPAmount: opAmount,
		Currency: currency,
		Rate:     rate,
		FeeOP:    op.Mul(p.FeePercent).Div(hundred).Round(0).IntPart(),
		Gross:    gross.Round(places),
		Payout:   gross.Mul(keep).Round(places),
	}
}
