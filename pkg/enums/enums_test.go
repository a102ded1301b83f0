package enums

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLedgerEntryTypeSign(t *testing.T) {
	debits := []LedgerEntryType{LedgerEntryTipSent, LedgerEntryDonation, LedgerEntryExchange, LedgerEntryPurchase}
	credits := []LedgerEntryType{LedgerEntryWelcomeBonus, LedgerEntryTipReceived, LedgerEntryDonationReceived, LedgerEntryExchangeRejection}

	for _, d := range debits {
		assert.Equal(t, int64(-1), d.Sign(), d)
	}
	for _, c := range credits {
		assert.Equal(t, int64(1), c.Sign(), c)
	}
}

func TestParseLedgerEntryType(t *testing.T) {
	got, err := ParseLedgerEntryType("exchange_rejection")
	require.NoError(t, err)
	assert.Equal(t, LedgerEntryExchangeRejection, got)

	_, err = ParseLedgerEntryType("refund")
	assert.Error(t, err)
}

func TestTransferKindEntryTypes(t *testing.T) {
	debit, credit := TransferTip.EntryTypes()
	assert.Equal(t, LedgerEntryTipSent, debit)
	assert.Equal(t, LedgerEntryTipReceived, credit)

	debit, credit = TransferDonation.EntryTypes()
	assert.Equal(t, LedgerEntryDonation, debit)
	assert.Equal(t, LedgerEntryDonationReceived, credit)

	assert.False(t, TransferKind("gift").IsValid())
}

func TestExchangeStatusTransitions(t *testing.T) {
	cases := []struct {
		from, to ExchangeStatus
		ok       bool
	}{
		{ExchangeStatusPending, ExchangeStatusApproved, true},
		{ExchangeStatusPending, ExchangeStatusRejected, true},
		{ExchangeStatusApproved, ExchangeStatusProcessing, true},
		{ExchangeStatusProcessing, ExchangeStatusCompleted, true},
		{ExchangeStatusPending, ExchangeStatusCompleted, false},
		{ExchangeStatusApproved, ExchangeStatusRejected, false},
		{ExchangeStatusCompleted, ExchangeStatusPending, false},
		{ExchangeStatusRejected, ExchangeStatusApproved, false},
	}
	for _, tc := range cases {
		assert.Equal(t, tc.ok, tc.from.CanTransitionTo(tc.to), "%s -> %s", tc.from, tc.to)
	}
	assert.True(t, ExchangeStatusRejected.IsTerminal())
	assert.False(t, ExchangeStatusProcessing.IsTerminal())
}

func TestCurrencyDecimals(t *testing.T) {
	assert.Equal(t, int32(0), CurrencyJPY.Decimals())
	assert.Equal(t, int32(2), CurrencyUSDT.Decimals())
	assert.Equal(t, int32(2), CurrencyUSD.Decimals())

	c, err := ParseCurrency(" usdt ")
	require.NoError(t, err)
	assert.Equal(t, CurrencyUSDT, c)

	_, err = ParseCurrency("BTC")
	assert.Error(t, err)
}

func TestParseRole(t *testing.T) {
	for _, raw := range []string{"", "authenticated", "USER"} {
		got, err := ParseRole(raw)
		require.NoError(t, err, raw)
		assert.Equal(t, RoleUser, got)
	}
	got, err := ParseRole("admin")
	require.NoError(t, err)
	assert.Equal(t, RoleAdmin, got)

	_, err = ParseRole("service_role")
	assert.Error(t, err)
}
