package ledger

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/onenesskingdom/oneness-ledger/internal/transactions"
	dbpkg "github.com/onenesskingdom/oneness-ledger/pkg/db"
	"github.com/onenesskingdom/oneness-ledger/pkg/db/dbtest"
	"github.com/onenesskingdom/oneness-ledger/pkg/db/models"
	"github.com/onenesskingdom/oneness-ledger/pkg/enums"
	pkgerrors "github.com/onenesskingdom/oneness-ledger/pkg/errors"
	"github.com/onenesskingdom/oneness-ledger/pkg/logger"
	"github.com/onenesskingdom/oneness-ledger/pkg/outbox"
	"github.com/onenesskingdom/oneness-ledger/pkg/pagination"
)

var fixedNow = time.Date(2026, time.October, 14, 9, 30, 0, 0, time.UTC)

type fixture struct {
	db   *gorm.DB
	svc  Service
	repo Repository
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	conn := dbtest.Open(t)
	logg := logger.Nop()
	repo := NewRepository(conn)
	svc, err := NewService(ServiceParams{
		DB:                  dbpkg.NewFromGorm(conn),
		Repository:          repo,
		Transactions:        transactions.NewRepository(conn),
		Outbox:              outbox.NewService(outbox.NewRepository(conn), logg),
		Logger:              logg,
		MonthlyLimitDivisor: 3,
		Now:                 func() time.Time { return fixedNow },
	})
	require.NoError(t, err)
	return &fixture{db: conn, svc: svc, repo: repo}
}

// seedAccount creates a profile holding the given opening balance.
func (f *fixture) seedAccount(t *testing.T, name string, opening int64) uuid.UUID {
	t.Helper()
	id := uuid.New()
	require.NoError(t, f.db.Create(&models.Profile{
		ID:          id,
		Username:    name,
		DisplayName: name,
		CreatedAt:   fixedNow,
		UpdatedAt:   fixedNow,
	}).Error)
	if opening > 0 {
		f.insert(t, id, opening, enums.LedgerEntryWelcomeBonus, fixedNow.Add(-48*time.Hour))
	}
	return id
}

func (f *fixture) insert(t *testing.T, userID uuid.UUID, amount int64, typ enums.LedgerEntryType, at time.Time) {
	t.Helper()
	require.NoError(t, f.repo.Insert(context.Background(), models.LedgerEntry{
		UserID:        userID,
		Amount:        amount,
		Type:          typ,
		CorrelationID: uuid.New(),
		CreatedAt:     at.UTC(),
	}))
}

func (f *fixture) balance(t *testing.T, userID uuid.UUID) int64 {
	t.Helper()
	total, err := f.svc.Balance(context.Background(), userID)
	require.NoError(t, err)
	return total
}

func (f *fixture) entryCount(t *testing.T, userID uuid.UUID) int64 {
	t.Helper()
	var count int64
	require.NoError(t, f.db.Model(&models.LedgerEntry{}).Where("user_id = ?", userID).Count(&count).Error)
	return count
}

func requireCode(t *testing.T, err error, code pkgerrors.Code) {
	t.Helper()
	require.Error(t, err)
	typed := pkgerrors.As(err)
	require.NotNil(t, typed, "expected typed error, got %v", err)
	assert.Equal(t, code, typed.Code(), err.Error())
}

func TestTransferTipMovesPointsBetweenAccounts(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	sender := f.seedAccount(t, "aiko", 100)
	recipient := f.seedAccount(t, "ben", 15)
	postID := uuid.New()

	result, err := f.svc.Transfer(ctx, TransferInput{
		Kind:        enums.TransferTip,
		SenderID:    sender,
		RecipientID: recipient,
		Amount:      30,
		PostID:      &postID,
	})
	require.NoError(t, err)

	assert.Equal(t, int64(70), f.balance(t, sender))
	assert.Equal(t, int64(45), f.balance(t, recipient))
	assert.Equal(t, int64(70), result.SenderBalance)

	var entries []models.LedgerEntry
	require.NoError(t, f.db.Where("correlation_id = ?", result.CorrelationID).Find(&entries).Error)
	require.Len(t, entries, 2)
	sum := int64(0)
	for _, entry := range entries {
		sum += entry.Amount
		require.NotNil(t, entry.RelatedPostID)
		assert.Equal(t, postID, *entry.RelatedPostID)
		if entry.UserID == sender {
			assert.Equal(t, enums.LedgerEntryTipSent, entry.Type)
			assert.Equal(t, recipient, *entry.RelatedUserID)
		} else {
			assert.Equal(t, enums.LedgerEntryTipReceived, entry.Type)
			assert.Equal(t, sender, *entry.RelatedUserID)
		}
	}
	assert.Zero(t, sum, "a transfer must conserve points")

	var logRows int64
	require.NoError(t, f.db.Model(&models.Transaction{}).Where("correlation_id = ?", result.CorrelationID).Count(&logRows).Error)
	assert.Equal(t, int64(2), logRows)

	var events []models.OutboxEvent
	require.NoError(t, f.db.Find(&events).Error)
	require.Len(t, events, 1)
	assert.Equal(t, enums.EventTipSent, events[0].EventType)
	assert.Equal(t, result.CorrelationID, events[0].AggregateID)
}

func TestTransferRejectsInsufficientBalance(t *testing.T) {
	f := newFixture(t)
	sender := f.seedAccount(t, "aiko", 50)
	recipient := f.seedAccount(t, "ben", 0)

	_, err := f.svc.Transfer(context.Background(), TransferInput{
		Kind:        enums.TransferTip,
		SenderID:    sender,
		RecipientID: recipient,
		Amount:      60,
	})
	requireCode(t, err, pkgerrors.CodeInsufficientBalance)

	details, ok := pkgerrors.As(err).Details().(map[string]any)
	require.True(t, ok)
	assert.Equal(t, int64(50), details["balance"])

	assert.Equal(t, int64(50), f.balance(t, sender))
	assert.Equal(t, int64(1), f.entryCount(t, sender))
	assert.Equal(t, int64(0), f.entryCount(t, recipient))
}

func TestTransferRejectsInvalidAmounts(t *testing.T) {
	f := newFixture(t)
	sender := f.seedAccount(t, "aiko", 100)
	recipient := f.seedAccount(t, "ben", 0)

	for _, amount := range []int64{0, -5} {
		_, err := f.svc.Transfer(context.Background(), TransferInput{
			Kind:        enums.TransferTip,
			SenderID:    sender,
			RecipientID: recipient,
			Amount:      amount,
		})
		requireCode(t, err, pkgerrors.CodeInvalidAmount)
	}
	assert.Equal(t, int64(100), f.balance(t, sender))
}

func TestTransferRejectsSelfTransfer(t *testing.T) {
	f := newFixture(t)
	sender := f.seedAccount(t, "aiko", 100)

	_, err := f.svc.Transfer(context.Background(), TransferInput{
		Kind:        enums.TransferTip,
		SenderID:    sender,
		RecipientID: sender,
		Amount:      10,
	})
	requireCode(t, err, pkgerrors.CodeValidation)
	assert.Equal(t, int64(1), f.entryCount(t, sender))
}

func TestTransferUnknownRecipientWritesNothing(t *testing.T) {
	f := newFixture(t)
	sender := f.seedAccount(t, "aiko", 100)
	ghost := uuid.New()

	_, err := f.svc.Transfer(context.Background(), TransferInput{
		Kind:        enums.TransferDonation,
		SenderID:    sender,
		RecipientID: ghost,
		Amount:      25,
	})
	requireCode(t, err, pkgerrors.CodeRecipientNotFound)

	var total int64
	require.NoError(t, f.db.Model(&models.LedgerEntry{}).Count(&total).Error)
	assert.Equal(t, int64(1), total, "only the seed entry should exist")
	var events int64
	require.NoError(t, f.db.Model(&models.OutboxEvent{}).Count(&events).Error)
	assert.Zero(t, events)
}

func TestTransferSenderWithoutProfileHasNothingToSpend(t *testing.T) {
	f := newFixture(t)
	recipient := f.seedAccount(t, "ben", 0)

	_, err := f.svc.Transfer(context.Background(), TransferInput{
		Kind:        enums.TransferTip,
		SenderID:    uuid.New(),
		RecipientID: recipient,
		Amount:      1,
	})
	requireCode(t, err, pkgerrors.CodeInsufficientBalance)
}

func TestTransferConcurrentTipsCannotOverdraw(t *testing.T) {
	f := newFixture(t)
	sender := f.seedAccount(t, "aiko", 100)
	recipient := f.seedAccount(t, "ben", 0)

	var (
		wg        sync.WaitGroup
		mu        sync.Mutex
		succeeded int
		rejected  int
	)
	for i := 0; i < 2; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := f.svc.Transfer(context.Background(), TransferInput{
				Kind:        enums.TransferTip,
				SenderID:    sender,
				RecipientID: recipient,
				Amount:      80,
			})
			mu.Lock()
			defer mu.Unlock()
			if err == nil {
				succeeded++
				return
			}
			if pkgerrors.Is(err, pkgerrors.CodeInsufficientBalance) {
				rejected++
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, 1, succeeded)
	assert.Equal(t, 1, rejected)
	assert.Equal(t, int64(20), f.balance(t, sender))
	assert.Equal(t, int64(80), f.balance(t, recipient))
}

func TestTransferManyConcurrentHalfBalanceTips(t *testing.T) {
	f := newFixture(t)
	sender := f.seedAccount(t, "aiko", 100)
	recipients := make([]uuid.UUID, 8)
	for i := range recipients {
		recipients[i] = f.seedAccount(t, "r"+uuid.NewString()[:8], 0)
	}

	var (
		wg        sync.WaitGroup
		mu        sync.Mutex
		succeeded int
	)
	for _, recipient := range recipients {
		wg.Add(1)
		go func(recipient uuid.UUID) {
			defer wg.Done()
			_, err := f.svc.Transfer(context.Background(), TransferInput{
				Kind:        enums.TransferTip,
				SenderID:    sender,
				RecipientID: recipient,
				Amount:      51,
			})
			if err == nil {
				mu.Lock()
				succeeded++
				mu.Unlock()
			}
		}(recipient)
	}
	wg.Wait()

	assert.LessOrEqual(t, succeeded, 1)
	final := f.balance(t, sender)
	assert.GreaterOrEqual(t, final, int64(0))
	assert.Equal(t, int64(100-51*succeeded), final)

	var total int64
	require.NoError(t, f.db.Model(&models.LedgerEntry{}).Select("COALESCE(SUM(amount), 0)").Scan(&total).Error)
	assert.Equal(t, int64(100), total, "transfers never create or destroy points")
}

func TestTransferIdempotencyKeyReplayIsRejected(t *testing.T) {
	f := newFixture(t)
	sender := f.seedAccount(t, "aiko", 100)
	recipient := f.seedAccount(t, "ben", 0)
	input := TransferInput{
		Kind:           enums.TransferTip,
		SenderID:       sender,
		RecipientID:    recipient,
		Amount:         10,
		IdempotencyKey: "tip-123",
	}

	_, err := f.svc.Transfer(context.Background(), input)
	require.NoError(t, err)
	_, err = f.svc.Transfer(context.Background(), input)
	requireCode(t, err, pkgerrors.CodeIdempotency)

	assert.Equal(t, int64(90), f.balance(t, sender))
	assert.Equal(t, int64(10), f.balance(t, recipient))
}

func TestTransferDonationIsAttributedToCampaign(t *testing.T) {
	f := newFixture(t)
	donor := f.seedAccount(t, "aiko", 100)
	owner := f.seedAccount(t, "ben", 0)
	campaignID := uuid.New()

	_, err := f.svc.Transfer(context.Background(), TransferInput{
		Kind:        enums.TransferDonation,
		SenderID:    donor,
		RecipientID: owner,
		Amount:      25,
		CampaignID:  &campaignID,
	})
	require.NoError(t, err)

	raised, err := f.repo.SumByCampaign(context.Background(), campaignID, enums.LedgerEntryDonationReceived)
	require.NoError(t, err)
	assert.Equal(t, int64(25), raised)

	var debit models.LedgerEntry
	require.NoError(t, f.db.Where("user_id = ? AND type = ?", donor, enums.LedgerEntryDonation).Take(&debit).Error)
	assert.Equal(t, int64(-25), debit.Amount)
}

func TestMonthlyRedeemedUsesUTCCalendarMonth(t *testing.T) {
	f := newFixture(t)
	user := f.seedAccount(t, "aiko", 1000)

	f.insert(t, user, -200, enums.LedgerEntryExchange, time.Date(2026, time.October, 1, 0, 0, 0, 0, time.UTC))
	f.insert(t, user, -50, enums.LedgerEntryExchange, time.Date(2026, time.October, 31, 23, 59, 59, 0, time.UTC))
	f.insert(t, user, -70, enums.LedgerEntryExchange, time.Date(2026, time.September, 30, 23, 59, 59, 0, time.UTC))
	f.insert(t, user, -90, enums.LedgerEntryExchange, time.Date(2026, time.November, 1, 0, 0, 0, 0, time.UTC))
	f.insert(t, user, -30, enums.LedgerEntryTipSent, time.Date(2026, time.October, 10, 0, 0, 0, 0, time.UTC))

	// 08:00 on Oct 1 in Tokyo is still Sep 30 in UTC.
	tokyo := time.FixedZone("JST", 9*60*60)
	redeemed, err := f.svc.MonthlyRedeemed(context.Background(), user, time.Date(2026, time.October, 1, 8, 0, 0, 0, tokyo))
	require.NoError(t, err)
	assert.Equal(t, int64(70), redeemed)

	redeemed, err = f.svc.MonthlyRedeemed(context.Background(), user, fixedNow)
	require.NoError(t, err)
	assert.Equal(t, int64(250), redeemed)
}

func TestLimitsScenarioCapReached(t *testing.T) {
	f := newFixture(t)
	user := f.seedAccount(t, "aiko", 600)
	f.insert(t, user, -200, enums.LedgerEntryExchange, fixedNow.Add(-time.Hour))

	limits, err := f.svc.Limits(context.Background(), user, fixedNow)
	require.NoError(t, err)
	assert.Equal(t, Limits{Balance: 400, MonthlyRedeemed: 200, MonthlyLimit: 200, AvailableThisMonth: 0}, limits)
}

func TestRejectedExchangeFreesMonthlyAllowance(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	user := f.seedAccount(t, "aiko", 300)

	exchangeEntry := func(amount int64, typ enums.LedgerEntryType, requestID uuid.UUID) {
		t.Helper()
		require.NoError(t, f.repo.Insert(ctx, models.LedgerEntry{
			UserID:            user,
			Amount:            amount,
			Type:              typ,
			CorrelationID:     uuid.New(),
			RelatedExchangeID: &requestID,
			CreatedAt:         fixedNow.Add(-time.Hour),
		}))
	}

	rejected := uuid.New()
	exchangeEntry(-100, enums.LedgerEntryExchange, rejected)
	exchangeEntry(100, enums.LedgerEntryExchangeRejection, rejected)

	limits, err := f.svc.Limits(ctx, user, fixedNow)
	require.NoError(t, err)
	assert.Equal(t, Limits{Balance: 300, MonthlyRedeemed: 0, MonthlyLimit: 100, AvailableThisMonth: 100}, limits)

	// A request that stays open keeps counting.
	exchangeEntry(-60, enums.LedgerEntryExchange, uuid.New())
	limits, err = f.svc.Limits(ctx, user, fixedNow)
	require.NoError(t, err)
	assert.Equal(t, Limits{Balance: 240, MonthlyRedeemed: 60, MonthlyLimit: 100, AvailableThisMonth: 40}, limits)
}

func TestComputeLimits(t *testing.T) {
	cases := []struct {
		name              string
		balance, redeemed int64
		want              Limits
	}{
		{"fresh account", 100, 0, Limits{100, 0, 33, 33}},
		{"cap reached", 400, 200, Limits{400, 200, 200, 0}},
		{"partially used", 900, 100, Limits{900, 100, 333, 233}},
		{"over cap after spending", 10, 200, Limits{10, 200, 70, 0}},
		{"empty", 0, 0, Limits{}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.want, ComputeLimits(tc.balance, tc.redeemed, 3))
		})
	}
}

func TestMonthWindow(t *testing.T) {
	from, to := MonthWindow(time.Date(2026, time.December, 31, 23, 0, 0, 0, time.UTC))
	assert.True(t, from.Equal(time.Date(2026, time.December, 1, 0, 0, 0, 0, time.UTC)))
	assert.True(t, to.Equal(time.Date(2027, time.January, 1, 0, 0, 0, 0, time.UTC)))
}

func TestBalanceReadsAreStable(t *testing.T) {
	f := newFixture(t)
	user := f.seedAccount(t, "aiko", 100)
	assert.Equal(t, f.balance(t, user), f.balance(t, user))
	assert.Equal(t, int64(0), f.balance(t, uuid.New()), "unknown accounts hold nothing")
}

func TestLedgerEntriesAreAppendOnly(t *testing.T) {
	f := newFixture(t)
	user := f.seedAccount(t, "aiko", 100)

	err := f.db.Model(&models.LedgerEntry{}).Where("user_id = ?", user).Update("amount", 1000).Error
	assert.Error(t, err)
	err = f.db.Where("user_id = ?", user).Delete(&models.LedgerEntry{}).Error
	assert.Error(t, err)

	assert.Equal(t, int64(100), f.balance(t, user))
	assert.Equal(t, int64(1), f.entryCount(t, user))
}

func TestRecordValidatesSign(t *testing.T) {
	f := newFixture(t)
	user := f.seedAccount(t, "aiko", 0)

	err := f.db.Transaction(func(tx *gorm.DB) error {
		return f.svc.Record(context.Background(), tx, models.LedgerEntry{
			UserID: user,
			Amount: -100,
			Type:   enums.LedgerEntryWelcomeBonus,
		})
	})
	requireCode(t, err, pkgerrors.CodeInvalidAmount)

	require.NoError(t, f.db.Transaction(func(tx *gorm.DB) error {
		return f.svc.Record(context.Background(), tx, models.LedgerEntry{
			UserID: user,
			Amount: 100,
			Type:   enums.LedgerEntryWelcomeBonus,
		})
	}))
	assert.Equal(t, int64(100), f.balance(t, user))
}

func TestHistoryPaginatesNewestFirst(t *testing.T) {
	f := newFixture(t)
	user := f.seedAccount(t, "aiko", 0)
	for i := 0; i < 3; i++ {
		f.insert(t, user, int64(10*(i+1)), enums.LedgerEntryTipReceived, fixedNow.Add(time.Duration(i)*time.Minute))
	}

	page, err := f.svc.History(context.Background(), user, pagination.Params{Limit: 2})
	require.NoError(t, err)
	require.Len(t, page.Items, 2)
	assert.Equal(t, int64(30), page.Items[0].Amount)
	assert.Equal(t, int64(20), page.Items[1].Amount)
	require.NotEmpty(t, page.NextCursor)

	page, err = f.svc.History(context.Background(), user, pagination.Params{Limit: 2, Cursor: page.NextCursor})
	require.NoError(t, err)
	require.Len(t, page.Items, 1)
	assert.Equal(t, int64(10), page.Items[0].Amount)
	assert.Empty(t, page.NextCursor)
}

type fakeRepository struct {
	Repository
	sumFn func(ctx context.Context, userID uuid.UUID) (int64, error)
}

func (f *fakeRepository) WithTx(*gorm.DB) Repository { return f }

func (f *fakeRepository) SumByUser(ctx context.Context, userID uuid.UUID) (int64, error) {
	return f.sumFn(ctx, userID)
}

func TestBalanceStorageFailureIsNotZero(t *testing.T) {
	logg := logger.Nop()
	repo := &fakeRepository{sumFn: func(context.Context, uuid.UUID) (int64, error) {
		return 0, errors.New("connection refused")
	}}
	conn := dbtest.Open(t)
	svc, err := NewService(ServiceParams{
		DB:           dbpkg.NewFromGorm(conn),
		Repository:   repo,
		Transactions: transactions.NewRepository(conn),
		Outbox:       outbox.NewService(outbox.NewRepository(conn), logg),
		Logger:       logg,
	})
	require.NoError(t, err)

	_, err = svc.Balance(context.Background(), uuid.New())
	requireCode(t, err, pkgerrors.CodeStorage)
	assert.True(t, pkgerrors.MetadataFor(pkgerrors.CodeStorage).Retryable)
}

func TestNewServiceRequiresDependencies(t *testing.T) {
	_, err := NewService(ServiceParams{})
	assert.Error(t, err)
}
