package cron

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/onenesskingdom/oneness-ledger/pkg/db/models"
	"github.com/onenesskingdom/oneness-ledger/pkg/logger"
)

const (
	defaultStaleExchangeAfter = 72 * time.Hour
	staleExchangeScanLimit    = 200
)

type openExchangeLister interface {
	ListOpenExchangesBefore(ctx context.Context, cutoff time.Time, limit int) ([]models.Transaction, error)
}

type StaleExchangeJobParams struct {
	Logger       *logger.Logger
	Transactions openExchangeLister
	After        time.Duration
	Now          func() time.Time
}

// staleExchangeJob flags payout requests that sat in a non-terminal status
// longer than After so an admin can work them.
type staleExchangeJob struct {
	logg  *logger.Logger
	txns  openExchangeLister
	after time.Duration
	now   func() time.Time
}

func NewStaleExchangeJob(params StaleExchangeJobParams) (Job, error) {
	if params.Logger == nil {
		return nil, errors.New("logger required")
	}
	if params.Transactions == nil {
		return nil, errors.New("transactions repository required")
	}
	after := params.After
	if after <= 0 {
		after = defaultStaleExchangeAfter
	}
	now := params.Now
	if now == nil {
		now = time.Now
	}
	return &staleExchangeJob{logg: params.Logger, txns: params.Transactions, after: after, now: now}, nil
}

func (j *staleExchangeJob) Name() string { return "stale-exchange" }

func (j *staleExchangeJob) Run(ctx context.Context) (int, error) {
	now := j.now().UTC()
	rows, err := j.txns.ListOpenExchangesBefore(ctx, now.Add(-j.after), staleExchangeScanLimit)
	if err != nil {
		return 0, fmt.Errorf("stale exchange scan: %w", err)
	}
	for _, row := range rows {
		j.logg.Warn(j.logg.WithFields(ctx, map[string]any{
			"exchange_id": row.ID.String(),
			"user_id":     row.UserID.String(),
			"status":      row.Status,
			"age_hours":   int(now.Sub(row.CreatedAt).Hours()),
		}), "cron.stale_exchange.flagged")
	}
	return len(rows), nil
}
