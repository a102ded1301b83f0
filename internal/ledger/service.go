package ledger

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/onenesskingdom/oneness-ledger/internal/transactions"
	dbpkg "github.com/onenesskingdom/oneness-ledger/pkg/db"
	"github.com/onenesskingdom/oneness-ledger/pkg/db/models"
	"github.com/onenesskingdom/oneness-ledger/pkg/enums"
	pkgerrors "github.com/onenesskingdom/oneness-ledger/pkg/errors"
	"github.com/onenesskingdom/oneness-ledger/pkg/logger"
	"github.com/onenesskingdom/oneness-ledger/pkg/metrics"
	"github.com/onenesskingdom/oneness-ledger/pkg/outbox"
	"github.com/onenesskingdom/oneness-ledger/pkg/outbox/payloads"
	"github.com/onenesskingdom/oneness-ledger/pkg/pagination"
)

// IdempotencyConstraint is the unique index on (user_id, idempotency_key).
const IdempotencyConstraint = "ux_ledger_entries_user_idempotency"

type txRunner interface {
	WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error
}

type outboxPublisher interface {
	Emit(ctx context.Context, tx *gorm.DB, event outbox.DomainEvent) error
}

// Service is the balance calculator, redemption tracker and transfer engine.
type Service interface {
	Balance(ctx context.Context, userID uuid.UUID) (int64, error)
	MonthlyRedeemed(ctx context.Context, userID uuid.UUID, now time.Time) (int64, error)
	Limits(ctx context.Context, userID uuid.UUID, now time.Time) (Limits, error)
	Transfer(ctx context.Context, input TransferInput) (*TransferResult, error)
	Record(ctx context.Context, tx *gorm.DB, entry models.LedgerEntry) error
	History(ctx context.Context, userID uuid.UUID, params pagination.Params) (*pagination.Page[Entry], error)
}

// TransferInput describes a tip or a donation.
type TransferInput struct {
	Kind           enums.TransferKind
	SenderID       uuid.UUID
	RecipientID    uuid.UUID
	Amount         int64
	PostID         *uuid.UUID
	CampaignID     *uuid.UUID
	IdempotencyKey string
}

// TransferResult is returned once both entries are committed.
type TransferResult struct {
	CorrelationID uuid.UUID
	Kind          enums.TransferKind
	SenderID      uuid.UUID
	RecipientID   uuid.UUID
	Amount        int64
	SenderBalance int64
	Entries       []models.LedgerEntry
}

// Entry is the API shape of one ledger row.
type Entry struct {
	ID                uuid.UUID             `json:"id"`
	Type              enums.LedgerEntryType `json:"type"`
	Amount            int64                 `json:"amount"`
	CorrelationID     uuid.UUID             `json:"correlation_id"`
	RelatedUserID     *uuid.UUID            `json:"related_user_id,omitempty"`
	RelatedPostID     *uuid.UUID            `json:"related_post_id,omitempty"`
	RelatedCampaignID *uuid.UUID            `json:"related_campaign_id,omitempty"`
	CreatedAt         time.Time             `json:"created_at"`
}

// ServiceParams wires the ledger service.
type ServiceParams struct {
	DB                  txRunner
	Repository          Repository
	Transactions        transactions.Repository
	Outbox              outboxPublisher
	Logger              *logger.Logger
	Metrics             *metrics.LedgerMetrics
	MonthlyLimitDivisor int64
	Now                 func() time.Time
}

type service struct {
	tx      txRunner
	repo    Repository
	txns    transactions.Repository
	outbox  outboxPublisher
	logg    *logger.Logger
	metrics *metrics.LedgerMetrics
	divisor int64
	now     func() time.Time
}

// NewService validates the dependencies and builds the ledger service.
func NewService(params ServiceParams) (Service, error) {
	if params.DB == nil {
		return nil, fmt.Errorf("transaction runner required")
	}
	if params.Repository == nil {
		return nil, fmt.Errorf("ledger repository required")
	}
	if params.Transactions == nil {
		return nil, fmt.Errorf("transactions repository required")
	}
	if params.Outbox == nil {
		return nil, fmt.Errorf("outbox publisher required")
	}
	if params.Logger == nil {
		return nil, fmt.Errorf("logger required")
	}
	divisor := params.MonthlyLimitDivisor
	if divisor <= 0 {
		divisor = 3
	}
	now := params.Now
	if now == nil {
		now = func() time.Time { return time.Now().UTC() }
	}
	return &service{
		tx:      params.DB,
		repo:    params.Repository,
		txns:    params.Transactions,
		outbox:  params.Outbox,
		logg:    params.Logger,
		metrics: params.Metrics,
		divisor: divisor,
		now:     now,
	}, nil
}

// Balance never reports 0 on a storage failure; callers get CodeStorage instead.
func (s *service) Balance(ctx context.Context, userID uuid.UUID) (int64, error) {
	total, err := s.repo.SumByUser(ctx, userID)
	if err != nil {
		return 0, pkgerrors.Wrap(pkgerrors.CodeStorage, err, "balance unknown")
	}
	return total, nil
}

func (s *service) MonthlyRedeemed(ctx context.Context, userID uuid.UUID, now time.Time) (int64, error) {
	from, to := MonthWindow(now)
	total, err := s.repo.SumExchangedBetween(ctx, userID, from, to)
	if err != nil {
		return 0, pkgerrors.Wrap(pkgerrors.CodeStorage, err, "monthly redeemed unknown")
	}
	return total, nil
}

func (s *service) Limits(ctx context.Context, userID uuid.UUID, now time.Time) (Limits, error) {
	balance, err := s.Balance(ctx, userID)
	if err != nil {
		return Limits{}, err
	}
	redeemed, err := s.MonthlyRedeemed(ctx, userID, now)
	if err != nil {
		return Limits{}, err
	}
	return ComputeLimits(balance, redeemed, s.divisor), nil
}

func (s *service) Transfer(ctx context.Context, input TransferInput) (result *TransferResult, err error) {
	started := time.Now()
	defer func() {
		s.metrics.ObserveDuration("transfer", time.Since(started))
		s.metrics.IncTransfer(string(input.Kind), outcomeOf(err))
	}()

	if err := validateTransfer(input); err != nil {
		return nil, err
	}

	correlationID := uuid.New()
	ctx = s.logg.WithCorrelationID(ctx, correlationID.String())
	debitType, creditType := input.Kind.EntryTypes()
	createdAt := s.now().UTC()
	var idemKey *string
	if key := strings.TrimSpace(input.IdempotencyKey); key != "" {
		idemKey = &key
	}

	entries := []models.LedgerEntry{
		{
			ID:                uuid.New(),
			UserID:            input.SenderID,
			Amount:            -input.Amount,
			Type:              debitType,
			CorrelationID:     correlationID,
			RelatedUserID:     &input.RecipientID,
			RelatedPostID:     input.PostID,
			RelatedCampaignID: input.CampaignID,
			IdempotencyKey:    idemKey,
			CreatedAt:         createdAt,
		},
		{
			ID:                uuid.New(),
			UserID:            input.RecipientID,
			Amount:            input.Amount,
			Type:              creditType,
			CorrelationID:     correlationID,
			RelatedUserID:     &input.SenderID,
			RelatedPostID:     input.PostID,
			RelatedCampaignID: input.CampaignID,
			CreatedAt:         createdAt,
		},
	}

	var senderBalance int64
	err = s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		repo := s.repo.WithTx(tx)

		found, err := repo.LockAccount(ctx, input.SenderID)
		if err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeStorage, err, "lock sender account")
		}
		balance := int64(0)
		if found {
			if balance, err = repo.SumByUser(ctx, input.SenderID); err != nil {
				return pkgerrors.Wrap(pkgerrors.CodeStorage, err, "balance unknown")
			}
		}
		if input.Amount > balance {
			return pkgerrors.New(pkgerrors.CodeInsufficientBalance, "amount exceeds balance").
				WithDetails(map[string]any{
					"reason":  "insufficient_balance",
					"balance": balance,
					"amount":  input.Amount,
				})
		}

		exists, err := repo.AccountExists(ctx, input.RecipientID)
		if err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeStorage, err, "resolve recipient")
		}
		if !exists {
			return pkgerrors.New(pkgerrors.CodeRecipientNotFound, "recipient account does not exist")
		}

		if err := repo.Insert(ctx, entries...); err != nil {
			if dbpkg.IsUniqueViolation(err, IdempotencyConstraint) {
				return pkgerrors.Wrap(pkgerrors.CodeIdempotency, err, "transfer already recorded for this idempotency key")
			}
			return pkgerrors.Wrap(pkgerrors.CodeStorage, err, "insert transfer entries")
		}

		txType := enums.TransactionTip
		eventType := enums.EventTipSent
		if input.Kind == enums.TransferDonation {
			txType = enums.TransactionDonation
			eventType = enums.EventDonationMade
		}
		if err := s.txns.WithTx(tx).Create(ctx,
			displayRow(input.SenderID, input.RecipientID, txType, -input.Amount, correlationID, createdAt),
			displayRow(input.RecipientID, input.SenderID, txType, input.Amount, correlationID, createdAt),
		); err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeStorage, err, "record transaction log")
		}

		if err := s.outbox.Emit(ctx, tx, outbox.DomainEvent{
			EventType:     eventType,
			AggregateType: enums.AggregateLedgerTransfer,
			AggregateID:   correlationID,
			Actor:         &outbox.ActorRef{UserID: input.SenderID},
			Data: payloads.TransferEvent{
				CorrelationID: correlationID,
				Kind:          input.Kind,
				SenderID:      input.SenderID,
				RecipientID:   input.RecipientID,
				Amount:        input.Amount,
				PostID:        input.PostID,
				CampaignID:    input.CampaignID,
			},
			OccurredAt: createdAt,
		}); err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeStorage, err, "emit transfer event")
		}

		senderBalance = balance - input.Amount
		return nil
	})
	if err != nil {
		if pkgerrors.As(err) == nil {
			err = pkgerrors.Wrap(pkgerrors.CodeStorage, err, "commit transfer")
		}
		return nil, err
	}

	s.logg.Info(s.logg.WithFields(ctx, map[string]any{
		"kind":         input.Kind,
		"sender_id":    input.SenderID.String(),
		"recipient_id": input.RecipientID.String(),
		"amount":       input.Amount,
	}), "ledger transfer committed")

	return &TransferResult{
		CorrelationID: correlationID,
		Kind:          input.Kind,
		SenderID:      input.SenderID,
		RecipientID:   input.RecipientID,
		Amount:        input.Amount,
		SenderBalance: senderBalance,
		Entries:       entries,
	}, nil
}

func validateTransfer(input TransferInput) error {
	if !input.Kind.IsValid() {
		return pkgerrors.New(pkgerrors.CodeValidation, fmt.Sprintf("unknown transfer kind %q", input.Kind))
	}
	if input.SenderID == uuid.Nil {
		return pkgerrors.New(pkgerrors.CodeUnauthorized, "sender identity required")
	}
	if input.Amount <= 0 {
		return pkgerrors.New(pkgerrors.CodeInvalidAmount, "amount must be greater than zero").
			WithDetails(map[string]any{"amount": input.Amount})
	}
	if input.RecipientID == uuid.Nil {
		return pkgerrors.New(pkgerrors.CodeRecipientNotFound, "recipient id required")
	}
	if input.SenderID == input.RecipientID {
		return pkgerrors.New(pkgerrors.CodeValidation, "cannot transfer points to yourself").
			WithDetails(map[string]any{"reason": "self_transfer"})
	}
	return nil
}

func displayRow(userID, counterparty uuid.UUID, txType enums.TransactionType, amount int64, correlationID uuid.UUID, createdAt time.Time) models.Transaction {
	cp := counterparty
	return models.Transaction{
		ID:             uuid.New(),
		UserID:         userID,
		Type:           txType,
		OPAmount:       amount,
		Status:         enums.TransactionStatusCompleted,
		CorrelationID:  correlationID,
		CounterpartyID: &cp,
		CreatedAt:      createdAt,
		UpdatedAt:      createdAt,
	}
}

// Record appends a single system entry on tx. The sign must agree with the type.
func (s *service) Record(ctx context.Context, tx *gorm.DB, entry models.LedgerEntry) error {
	if tx == nil {
		return fmt.Errorf("transaction required")
	}
	if !entry.Type.IsValid() {
		return pkgerrors.New(pkgerrors.CodeValidation, fmt.Sprintf("invalid ledger entry type %q", entry.Type))
	}
	if entry.Amount == 0 || (entry.Amount > 0) != (entry.Type.Sign() > 0) {
		return pkgerrors.New(pkgerrors.CodeInvalidAmount, "amount sign does not match entry type").
			WithDetails(map[string]any{"type": entry.Type, "amount": entry.Amount})
	}
	if entry.UserID == uuid.Nil {
		return pkgerrors.New(pkgerrors.CodeValidation, "user id required")
	}
	if entry.CorrelationID == uuid.Nil {
		entry.CorrelationID = uuid.New()
	}
	if entry.CreatedAt.IsZero() {
		entry.CreatedAt = s.now().UTC()
	}
	if err := s.repo.WithTx(tx).Insert(ctx, entry); err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeStorage, err, "insert ledger entry")
	}
	return nil
}

func (s *service) History(ctx context.Context, userID uuid.UUID, params pagination.Params) (*pagination.Page[Entry], error) {
	rows, next, err := s.repo.ListByUser(ctx, userID, params)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeStorage, err, "list ledger entries")
	}
	items := make([]Entry, 0, len(rows))
	for _, row := range rows {
		items = append(items, Entry{
			ID:                row.ID,
			Type:              row.Type,
			Amount:            row.Amount,
			CorrelationID:     row.CorrelationID,
			RelatedUserID:     row.RelatedUserID,
			RelatedPostID:     row.RelatedPostID,
			RelatedCampaignID: row.RelatedCampaignID,
			CreatedAt:         row.CreatedAt.UTC(),
		})
	}
	return &pagination.Page[Entry]{Items: items, NextCursor: next}, nil
}

// outcomeOf buckets an error into a metrics outcome label.
func outcomeOf(err error) string {
	if err == nil {
		return metrics.OutcomeSuccess
	}
	if typed := pkgerrors.As(err); typed != nil && pkgerrors.MetadataFor(typed.Code()).HTTPStatus < 500 {
		return metrics.OutcomeRejected
	}
	return metrics.OutcomeError
}
