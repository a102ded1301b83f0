package exchange

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	"github.com/onenesskingdom/oneness-ledger/internal/ledger"
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
	"github.com/onenesskingdom/oneness-ledger/pkg/rates"
)

type txRunner interface {
	WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error
}

type outboxPublisher interface {
	Emit(ctx context.Context, tx *gorm.DB, event outbox.DomainEvent) error
}

// Service converts points into external currency payouts.
type Service interface {
	Preview(ctx context.Context, userID uuid.UUID, opAmount int64, currency enums.Currency) (*Preview, error)
	Request(ctx context.Context, input RequestInput) (*Request, error)
	Transition(ctx context.Context, input TransitionInput) (*Request, error)
	List(ctx context.Context, userID uuid.UUID, params pagination.Params) (*pagination.Page[Request], error)
	Get(ctx context.Context, userID, requestID uuid.UUID) (*Request, error)
}

type RequestInput struct {
	UserID         uuid.UUID
	OPAmount       int64
	Currency       enums.Currency
	PayoutAddress  string
	IdempotencyKey string
}

type TransitionInput struct {
	RequestID  uuid.UUID
	Next       enums.ExchangeStatus
	ReviewerID uuid.UUID
	Reason     string
}

// Preview is the priced request plus the limits it will be checked against.
type Preview struct {
	OPAmount          int64          `json:"op_amount"`
	Currency          enums.Currency `json:"currency"`
	Rate              string         `json:"rate"`
	FeePercent        string         `json:"fee_percent"`
	FeeOP             int64          `json:"fee_op"`
	GrossAmount       string         `json:"gross_amount"`
	PayoutAmount      string         `json:"payout_amount"`
	MaxExchangeableOP int64          `json:"max_exchangeable_op"`
	Limits            ledger.Limits  `json:"limits"`
}

// Request is the API shape of an exchange payout record.
type Request struct {
	ID              uuid.UUID            `json:"id"`
	UserID          uuid.UUID            `json:"user_id"`
	Status          enums.ExchangeStatus `json:"status"`
	OPAmount        int64                `json:"op_amount"`
	FeeOP           int64                `json:"fee_op"`
	Currency        enums.Currency       `json:"currency"`
	Rate            string               `json:"rate"`
	PayoutAmount    string               `json:"payout_amount"`
	PayoutAddress   *string              `json:"payout_address,omitempty"`
	ReviewedBy      *uuid.UUID           `json:"reviewed_by,omitempty"`
	ReviewedAt      *time.Time           `json:"reviewed_at,omitempty"`
	RejectionReason *string              `json:"rejection_reason,omitempty"`
	CreatedAt       time.Time            `json:"created_at"`
	UpdatedAt       time.Time            `json:"updated_at"`
}

type ServiceParams struct {
	DB                  txRunner
	Ledger              ledger.Repository
	Transactions        transactions.Repository
	Outbox              outboxPublisher
	Rates               rates.Provider
	Logger              *logger.Logger
	Metrics             *metrics.LedgerMetrics
	Policy              Policy
	MonthlyLimitDivisor int64
	Now                 func() time.Time
}

type service struct {
	tx      txRunner
	ledger  ledger.Repository
	txns    transactions.Repository
	outbox  outboxPublisher
	rates   rates.Provider
	logg    *logger.Logger
	metrics *metrics.LedgerMetrics
	policy  Policy
	divisor int64
	now     func() time.Time
}

func NewService(params ServiceParams) (Service, error) {
	if params.DB == nil {
		return nil, fmt.Errorf("transaction runner required")
	}
	if params.Ledger == nil {
		return nil, fmt.Errorf("ledger repository required")
	}
	if params.Transactions == nil {
		return nil, fmt.Errorf("transactions repository required")
	}
	if params.Outbox == nil {
		return nil, fmt.Errorf("outbox publisher required")
	}
	if params.Rates == nil {
		return nil, fmt.Errorf("rate provider required")
	}
	if params.Logger == nil {
		return nil, fmt.Errorf("logger required")
	}
	policy := params.Policy
	if policy.FeePercent.IsZero() && policy.MaxExchangePercent.IsZero() {
		policy = NewPolicy(0, 0)
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
		ledger:  params.Ledger,
		txns:    params.Transactions,
		outbox:  params.Outbox,
		rates:   params.Rates,
		logg:    params.Logger,
		metrics: params.Metrics,
		policy:  policy,
		divisor: divisor,
		now:     now,
	}, nil
}

func (s *service) Preview(ctx context.Context, userID uuid.UUID, opAmount int64, currency enums.Currency) (*Preview, error) {
	if err := validateAmount(opAmount, currency); err != nil {
		return nil, err
	}
	rate, err := s.rate(ctx, currency)
	if err != nil {
		return nil, err
	}
	limits, err := s.limits(ctx, s.ledger, userID, s.now())
	if err != nil {
		return nil, err
	}
	quote := s.policy.Price(opAmount, currency, rate)
	return &Preview{
		OPAmount:          opAmount,
		Currency:          currency,
		Rate:              rate.String(),
		FeePercent:        s.policy.FeePercent.String(),
		FeeOP:             quote.FeeOP,
		GrossAmount:       quote.Gross.StringFixed(currency.Decimals()),
		PayoutAmount:      quote.Payout.StringFixed(currency.Decimals()),
		MaxExchangeableOP: s.policy.MaxExchangeable(limits.Balance),
		Limits:            limits,
	}, nil
}

func (s *service) Request(ctx context.Context, input RequestInput) (result *Request, err error) {
	started := time.Now()
	defer func() {
		s.metrics.ObserveDuration("exchange_request", time.Since(started))
		s.metrics.IncExchange(string(input.Currency), outcomeOf(err))
	}()

	if input.UserID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeUnauthorized, "user identity required")
	}
	if err := validateAmount(input.OPAmount, input.Currency); err != nil {
		return nil, err
	}
	rate, err := s.rate(ctx, input.Currency)
	if err != nil {
		return nil, err
	}
	quote := s.policy.Price(input.OPAmount, input.Currency, rate)

	now := s.now().UTC()
	requestID := uuid.New()
	correlationID := uuid.New()
	ctx = s.logg.WithCorrelationID(ctx, correlationID.String())

	var idemKey *string
	if key := strings.TrimSpace(input.IdempotencyKey); key != "" {
		idemKey = &key
	}
	var payoutAddress *string
	if addr := strings.TrimSpace(input.PayoutAddress); addr != "" {
		payoutAddress = &addr
	}

	currency := input.Currency
	feeOP := quote.FeeOP
	row := models.Transaction{
		ID:            requestID,
		UserID:        input.UserID,
		Type:          enums.TransactionExchange,
		OPAmount:      -input.OPAmount,
		Currency:      &currency,
		Amount:        decimal.NewNullDecimal(quote.Payout),
		Rate:          decimal.NewNullDecimal(rate),
		FeeOP:         &feeOP,
		Status:        string(enums.ExchangeStatusPending),
		CorrelationID: correlationID,
		PayoutAddress: payoutAddress,
		CreatedAt:     now,
		UpdatedAt:     now,
	}

	err = s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		repo := s.ledger.WithTx(tx)
		if _, err := repo.LockAccount(ctx, input.UserID); err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeStorage, err, "lock account")
		}
		limits, err := s.limits(ctx, repo, input.UserID, now)
		if err != nil {
			return err
		}
		if err := s.checkLimits(input.OPAmount, limits); err != nil {
			return err
		}

		entry := models.LedgerEntry{
			ID:                uuid.New(),
			UserID:            input.UserID,
			Amount:            -input.OPAmount,
			Type:              enums.LedgerEntryExchange,
			CorrelationID:     correlationID,
			RelatedExchangeID: &requestID,
			IdempotencyKey:    idemKey,
			CreatedAt:         now,
		}
		if err := repo.Insert(ctx, entry); err != nil {
			if dbpkg.IsUniqueViolation(err, ledger.IdempotencyConstraint) {
				return pkgerrors.Wrap(pkgerrors.CodeIdempotency, err, "exchange already recorded for this idempotency key")
			}
			return pkgerrors.Wrap(pkgerrors.CodeStorage, err, "insert exchange debit")
		}
		if err := s.txns.WithTx(tx).Create(ctx, row); err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeStorage, err, "record exchange request")
		}

		return s.emit(ctx, tx, enums.EventExchangeRequested, requestID, input.UserID, payloads.ExchangeRequestedEvent{
			RequestID:    requestID,
			UserID:       input.UserID,
			OPAmount:     input.OPAmount,
			FeeOP:        feeOP,
			Currency:     currency,
			Rate:         rate.String(),
			PayoutAmount: quote.Payout.StringFixed(currency.Decimals()),
		}, now)
	})
	if err != nil {
		if pkgerrors.As(err) == nil {
			err = pkgerrors.Wrap(pkgerrors.CodeStorage, err, "commit exchange request")
		}
		return nil, err
	}

	s.logg.Info(s.logg.WithFields(ctx, map[string]any{
		"request_id": requestID.String(),
		"user_id":    input.UserID.String(),
		"op_amount":  input.OPAmount,
		"currency":   currency,
	}), "exchange request created")

	out := toRequest(row)
	return &out, nil
}

// checkLimits applies the reserve ceiling before the monthly cap so a balance
// problem is reported as such even when the cap is also exhausted.
func (s *service) checkLimits(opAmount int64, limits ledger.Limits) error {
	maxOP := s.policy.MaxExchangeable(limits.Balance)
	if opAmount > maxOP {
		return pkgerrors.New(pkgerrors.CodeInsufficientBalance, "amount exceeds exchangeable balance").
			WithDetails(map[string]any{
				"reason":              "exceeds_balance",
				"balance":             limits.Balance,
				"max_exchangeable_op": maxOP,
				"amount":              opAmount,
			})
	}
	if opAmount > limits.AvailableThisMonth {
		return pkgerrors.New(pkgerrors.CodeMonthlyLimitExceeded, "amount exceeds this month's redemption limit").
			WithDetails(map[string]any{
				"reason":                 "exceeds_monthly_limit",
				"monthly_limit_op":       limits.MonthlyLimit,
				"monthly_redeemed_op":    limits.MonthlyRedeemed,
				"available_to_redeem_op": limits.AvailableThisMonth,
				"amount":                 opAmount,
			})
	}
	return nil
}

func (s *service) Transition(ctx context.Context, input TransitionInput) (*Request, error) {
	if input.ReviewerID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeUnauthorized, "reviewer identity required")
	}
	if !input.Next.IsValid() {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, fmt.Sprintf("unknown exchange status %q", input.Next))
	}
	reason := strings.TrimSpace(input.Reason)
	now := s.now().UTC()

	var updated models.Transaction
	err := s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		txns := s.txns.WithTx(tx)
		row, err := txns.FindByIDForUpdate(ctx, input.RequestID)
		if err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeStorage, err, "load exchange request")
		}
		if row == nil || row.Type != enums.TransactionExchange {
			return pkgerrors.New(pkgerrors.CodeNotFound, "exchange request not found")
		}
		current, err := enums.ParseExchangeStatus(row.Status)
		if err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "stored exchange status")
		}
		if !current.CanTransitionTo(input.Next) {
			return pkgerrors.New(pkgerrors.CodeStateConflict, "exchange request cannot move to the requested status").
				WithDetails(map[string]any{"from": current, "to": input.Next})
		}

		reviewer := input.ReviewerID
		fields := map[string]any{
			"reviewed_by": reviewer,
			"reviewed_at": now,
			"updated_at":  now,
		}
		var refund int64
		if input.Next == enums.ExchangeStatusRejected {
			if reason != "" {
				fields["rejection_reason"] = reason
			}
			refund = -row.OPAmount
			requestID := row.ID
			if err := s.ledger.WithTx(tx).Insert(ctx, models.LedgerEntry{
				ID:                uuid.New(),
				UserID:            row.UserID,
				Amount:            refund,
				Type:              enums.LedgerEntryExchangeRejection,
				CorrelationID:     row.CorrelationID,
				RelatedExchangeID: &requestID,
				CreatedAt:         now,
			}); err != nil {
				return pkgerrors.Wrap(pkgerrors.CodeStorage, err, "credit rejected exchange")
			}
		}

		ok, err := txns.UpdateStatus(ctx, row.ID, string(current), string(input.Next), fields)
		if err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeStorage, err, "update exchange status")
		}
		if !ok {
			return pkgerrors.New(pkgerrors.CodeStateConflict, "exchange request changed concurrently")
		}

		updated = *row
		updated.Status = string(input.Next)
		updated.ReviewedBy = &reviewer
		updated.ReviewedAt = &now
		updated.UpdatedAt = now
		if input.Next == enums.ExchangeStatusRejected && reason != "" {
			updated.RejectionReason = &reason
		}

		return s.emit(ctx, tx, enums.EventExchangeStatusChanged, row.ID, reviewer, payloads.ExchangeStatusChangedEvent{
			RequestID:  row.ID,
			UserID:     row.UserID,
			From:       current,
			To:         input.Next,
			ReviewerID: reviewer,
			Reason:     reason,
			RefundedOP: refund,
		}, now)
	})
	if err != nil {
		if pkgerrors.As(err) == nil {
			err = pkgerrors.Wrap(pkgerrors.CodeStorage, err, "commit exchange transition")
		}
		return nil, err
	}

	s.logg.Info(s.logg.WithFields(ctx, map[string]any{
		"request_id":  updated.ID.String(),
		"status":      updated.Status,
		"reviewer_id": input.ReviewerID.String(),
	}), "exchange request transitioned")

	out := toRequest(updated)
	return &out, nil
}

func (s *service) List(ctx context.Context, userID uuid.UUID, params pagination.Params) (*pagination.Page[Request], error) {
	rows, next, err := s.txns.ListByUser(ctx, userID, transactions.ListFilter{
		Types: []enums.TransactionType{enums.TransactionExchange},
	}, params)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeStorage, err, "list exchange requests")
	}
	items := make([]Request, 0, len(rows))
	for _, row := range rows {
		items = append(items, toRequest(row))
	}
	return &pagination.Page[Request]{Items: items, NextCursor: next}, nil
}

// Get returns a request owned by userID. Other users' requests read as missing.
func (s *service) Get(ctx context.Context, userID, requestID uuid.UUID) (*Request, error) {
	row, err := s.txns.FindByID(ctx, requestID)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeStorage, err, "load exchange request")
	}
	if row == nil || row.Type != enums.TransactionExchange || row.UserID != userID {
		return nil, pkgerrors.New(pkgerrors.CodeNotFound, "exchange request not found")
	}
	out := toRequest(*row)
	return &out, nil
}

func (s *service) rate(ctx context.Context, currency enums.Currency) (decimal.Decimal, error) {
	rate, err := s.rates.Rate(ctx, currency)
	if err != nil {
		if pkgerrors.As(err) != nil {
			return decimal.Zero, err
		}
		return decimal.Zero, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "exchange rate unavailable")
	}
	return rate, nil
}

func (s *service) limits(ctx context.Context, repo ledger.Repository, userID uuid.UUID, now time.Time) (ledger.Limits, error) {
	balance, err := repo.SumByUser(ctx, userID)
	if err != nil {
		return ledger.Limits{}, pkgerrors.Wrap(pkgerrors.CodeStorage, err, "balance unknown")
	}
	from, to := ledger.MonthWindow(now)
	redeemed, err := repo.SumExchangedBetween(ctx, userID, from, to)
	if err != nil {
		return ledger.Limits{}, pkgerrors.Wrap(pkgerrors.CodeStorage, err, "monthly redeemed unknown")
	}
	return ledger.ComputeLimits(balance, redeemed, s.divisor), nil
}

func (s *service) emit(ctx context.Context, tx *gorm.DB, eventType enums.OutboxEventType, requestID, actor uuid.UUID, data any, at time.Time) error {
	if err := s.outbox.Emit(ctx, tx, outbox.DomainEvent{
		EventType:     eventType,
		AggregateType: enums.AggregateExchangeRequest,
		AggregateID:   requestID,
		Actor:         &outbox.ActorRef{UserID: actor},
		Data:          data,
		OccurredAt:    at,
	}); err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeStorage, err, "emit exchange event")
	}
	return nil
}

func validateAmount(opAmount int64, currency enums.Currency) error {
	if opAmount <= 0 {
		return pkgerrors.New(pkgerrors.CodeInvalidAmount, "op amount must be greater than zero").
			WithDetails(map[string]any{"amount": opAmount})
	}
	if !currency.IsValid() {
		return pkgerrors.New(pkgerrors.CodeValidation, "unsupported currency").
			WithDetails(map[string]any{"currency": string(currency)})
	}
	return nil
}

func toRequest(row models.Transaction) Request {
	out := Request{
		ID:              row.ID,
		UserID:          row.UserID,
		Status:          enums.ExchangeStatus(row.Status),
		OPAmount:        -row.OPAmount,
		PayoutAddress:   row.PayoutAddress,
		ReviewedBy:      row.ReviewedBy,
		ReviewedAt:      row.ReviewedAt,
		RejectionReason: row.RejectionReason,
		CreatedAt:       row.CreatedAt.UTC(),
		UpdatedAt:       row.UpdatedAt.UTC(),
	}
	places := int32(2)
	if row.Currency != nil {
		out.Currency = *row.Currency
		places = row.Currency.Decimals()
	}
	if row.FeeOP != nil {
		out.FeeOP = *row.FeeOP
	}
	if row.Rate.Valid {
		out.Rate = row.Rate.Decimal.String()
	}
	if row.Amount.Valid {
		out.PayoutAmount = row.Amount.Decimal.StringFixed(places)
	}
	return out
}

func outcomeOf(err error) string {
	if err == nil {
		return metrics.OutcomeSuccess
	}
	if typed := pkgerrors.As(err); typed != nil && pkgerrors.MetadataFor(typed.Code()).HTTPStatus < 500 {
		return metrics.OutcomeRejected
	}
	return metrics.OutcomeError
}
