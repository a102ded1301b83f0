package cron

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/onenesskingdom/oneness-ledger/internal/ledger"
	"github.com/onenesskingdom/oneness-ledger/pkg/logger"
)

const (
	defaultAuditLookback = 48 * time.Hour
	auditScanLimit       = 500
)

type imbalanceFinder interface {
	UnbalancedTransfers(ctx context.Context, since time.Time, limit int) ([]ledger.TransferImbalance, error)
}

type TransferAuditJobParams struct {
	Logger   *logger.Logger
	Ledger   imbalanceFinder
	Lookback time.Duration
	Now      func() time.Time
}

// transferAuditJob re-checks that every recent tip and donation wrote exactly
// one debit and one matching credit. It only reports; entries are never edited.
type transferAuditJob struct {
	logg     *logger.Logger
	ledger   imbalanceFinder
	lookback time.Duration
	now      func() time.Time
}

func NewTransferAuditJob(params TransferAuditJobParams) (Job, error) {
	if params.Logger == nil {
		return nil, errors.New("logger required")
	}
	if params.Ledger == nil {
		return nil, errors.New("ledger repository required")
	}
	lookback := params.Lookback
	if lookback <= 0 {
		lookback = defaultAuditLookback
	}
	now := params.Now
	if now == nil {
		now = time.Now
	}
	return &transferAuditJob{logg: params.Logger, ledger: params.Ledger, lookback: lookback, now: now}, nil
}

func (j *transferAuditJob) Name() string { return "transfer-audit" }

func (j *transferAuditJob) Run(ctx context.Context) (int, error) {
	since := j.now().UTC().Add(-j.lookback)
	found, err := j.ledger.UnbalancedTransfers(ctx, since, auditScanLimit)
	if err != nil {
		return 0, fmt.Errorf("transfer audit: %w", err)
	}
	for _, row := range found {
		j.logg.Warn(j.logg.WithFields(ctx, map[string]any{
			"correlation_id": row.CorrelationID.String(),
			"entries":        row.Entries,
			"net":            row.Net,
		}), "cron.transfer_audit.imbalance")
	}
	return len(found), nil
}
