package ledger

import (
	"time"

	"github.com/shopspring/decimal"
)

// Limits is the redemption picture for one account in one calendar month.
type Limits struct {
	Balance            int64 `json:"total"`
	MonthlyRedeemed    int64 `json:"monthly_redeemed_op"`
	MonthlyLimit       int64 `json:"monthly_limit_op"`
	AvailableThisMonth int64 `json:"available_to_redeem_op"`
}

// ComputeLimits derives the cap as floor((balance + redeemed) / divisor).
// Available never drops below zero even when the balance shrank after redeeming.
func ComputeLimits(balance, redeemed, divisor int64) Limits {
	if divisor <= 0 {
		divisor = 1
	}
	base := balance + redeemed
	limit := int64(0)
	if base > 0 {
		limit = decimal.NewFromInt(base).Div(decimal.NewFromInt(divisor)).Floor().IntPart()
	}
	available := limit - redeemed
	if available < 0 {
		available = 0
	}
	return Limits{
		Balance:            balance,
		MonthlyRedeemed:    redeemed,
		MonthlyLimit:       limit,
		AvailableThisMonth: available,
	}
}

// MonthWindow returns [first of month, first of next month) in UTC.
func MonthWindow(now time.Time) (time.Time, time.Time) {
	now = now.UTC()
	start := time.Date(now.Year(), now.Month(), 1, 0, 0, 0, 0, time.UTC)
	return start, start.AddDate(0, 1, 0)
}
