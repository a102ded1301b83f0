package ledger

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/onenesskingdom/oneness-ledger/pkg/db/models"
	"github.com/onenesskingdom/oneness-ledger/pkg/enums"
	"github.com/onenesskingdom/oneness-ledger/pkg/pagination"
)

// Repository manages persistence for ledger entries. Entries are only ever inserted.
type Repository interface {
	WithTx(tx *gorm.DB) Repository
	Insert(ctx context.Context, entries ...models.LedgerEntry) error
	SumByUser(ctx context.Context, userID uuid.UUID) (int64, error)
	SumExchangedBetween(ctx context.Context, userID uuid.UUID, from, to time.Time) (int64, error)
	SumByCampaign(ctx context.Context, campaignID uuid.UUID, entryType enums.LedgerEntryType) (int64, error)
	ListByUser(ctx context.Context, userID uuid.UUID, params pagination.Params) ([]models.LedgerEntry, string, error)
	LockAccount(ctx context.Context, userID uuid.UUID) (bool, error)
	AccountExists(ctx context.Context, userID uuid.UUID) (bool, error)
	UnbalancedTransfers(ctx context.Context, since time.Time, limit int) ([]TransferImbalance, error)
}

// TransferImbalance is a tip or donation correlation whose entries do not net to zero.
type TransferImbalance struct {
	CorrelationID uuid.UUID `gorm:"column:correlation_id"`
	Entries       int64     `gorm:"column:entries"`
	Net           int64     `gorm:"column:net"`
}

type repository struct {
	db *gorm.DB
}

// NewRepository returns a ledger repository bound to the provided database.
func NewRepository(db *gorm.DB) Repository {
	return &repository{db: db}
}

func (r *repository) WithTx(tx *gorm.DB) Repository {
	if tx == nil {
		return r
	}
	return &repository{db: tx}
}

// Insert writes all entries in one statement so a transfer's two sides land together.
func (r *repository) Insert(ctx context.Context, entries ...models.LedgerEntry) error {
	if len(entries) == 0 {
		return nil
	}
	return r.db.WithContext(ctx).Create(&entries).Error
}

func (r *repository) SumByUser(ctx context.Context, userID uuid.UUID) (int64, error) {
	var total int64
	err := r.db.WithContext(ctx).
		Model(&models.LedgerEntry{}).
		Select("COALESCE(SUM(amount), 0)").
		Where("user_id = ?", userID).
		Scan(&total).Error
	return total, err
}

// SumExchangedBetween returns the positive number of points redeemed through
// exchange debits created in [from, to). Debits whose request was rejected
// carry an exchange_rejection credit and no longer count.
func (r *repository) SumExchangedBetween(ctx context.Context, userID uuid.UUID, from, to time.Time) (int64, error) {
	rejected := r.db.WithContext(ctx).
		Table("ledger_entries AS rej").
		Select("1").
		Where("rej.user_id = e.user_id").
		Where("rej.type = ?", enums.LedgerEntryExchangeRejection).
		Where("rej.related_exchange_id = e.related_exchange_id")

	var total int64
	err := r.db.WithContext(ctx).
		Table("ledger_entries AS e").
		Select("COALESCE(SUM(-e.amount), 0)").
		Where("e.user_id = ?", userID).
		Where("e.type = ?", enums.LedgerEntryExchange).
		Where("e.created_at >= ? AND e.created_at < ?", from.UTC(), to.UTC()).
		Where("NOT EXISTS (?)", rejected).
		Scan(&total).Error
	return total, err
}

func (r *repository) SumByCampaign(ctx context.Context, campaignID uuid.UUID, entryType enums.LedgerEntryType) (int64, error) {
	var total int64
	err := r.db.WithContext(ctx).
		Model(&models.LedgerEntry{}).
		Select("COALESCE(SUM(amount), 0)").
		Where("related_campaign_id = ?", campaignID).
		Where("type = ?", entryType).
		Scan(&total).Error
	return total, err
}

func (r *repository) ListByUser(ctx context.Context, userID uuid.UUID, params pagination.Params) ([]models.LedgerEntry, string, error) {
	cursor, err := pagination.ParseCursor(params.Cursor)
	if err != nil {
		return nil, "", err
	}

	query := r.db.WithContext(ctx).
		Where("user_id = ?", userID).
		Order("created_at DESC").
		Order("id DESC").
		Limit(pagination.LimitWithBuffer(params.Limit))
	if cursor != nil {
		query = query.Where("((created_at < ?) OR (created_at = ? AND id < ?))", cursor.CreatedAt, cursor.CreatedAt, cursor.ID)
	}

	var rows []models.LedgerEntry
	if err := query.Find(&rows).Error; err != nil {
		return nil, "", err
	}

	limit := pagination.NormalizeLimit(params.Limit)
	next := ""
	if len(rows) > limit {
		rows = rows[:limit]
		last := rows[len(rows)-1]
		next = pagination.EncodeCursor(pagination.Cursor{CreatedAt: last.CreatedAt, ID: last.ID})
	}
	return rows, next, nil
}

// LockAccount takes a row lock on the profile so concurrent writers for the
// same account queue behind each other until the transaction ends. NO KEY
// UPDATE leaves the KEY SHARE locks taken by ledger_entries foreign keys free,
// so two users tipping each other do not deadlock.
func (r *repository) LockAccount(ctx context.Context, userID uuid.UUID) (bool, error) {
	var profile models.Profile
	err := r.db.WithContext(ctx).
		Clauses(clause.Locking{Strength: "NO KEY UPDATE"}).
		Select("id").
		Where("id = ?", userID).
		Take(&profile).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return false, nil
		}
		return false, err
	}
	return true, nil
}

func (r *repository) AccountExists(ctx context.Context, userID uuid.UUID) (bool, error) {
	var count int64
	err := r.db.WithContext(ctx).
		Model(&models.Profile{}).
		Where("id = ?", userID).
		Count(&count).Error
	return count > 0, err
}

// UnbalancedTransfers scans transfer entries created since the cutoff and
// returns correlations that are missing a side or do not sum to zero.
func (r *repository) UnbalancedTransfers(ctx context.Context, since time.Time, limit int) ([]TransferImbalance, error) {
	if limit <= 0 {
		limit = 100
	}
	var rows []TransferImbalance
	err := r.db.WithContext(ctx).
		Model(&models.LedgerEntry{}).
		Select("correlation_id, COUNT(*) AS entries, COALESCE(SUM(amount), 0) AS net").
		Where("type IN ?", []enums.LedgerEntryType{
			enums.LedgerEntryTipSent,
			enums.LedgerEntryTipReceived,
			enums.LedgerEntryDonation,
			enums.LedgerEntryDonationReceived,
		}).
		Where("created_at >= ?", since.UTC()).
		Group("correlation_id").
		Having("COUNT(*) <> 2 OR COALESCE(SUM(amount), 0) <> 0").
		Order("correlation_id").
		Limit(limit).
		Scan(&rows).Error
	return rows, err
}
