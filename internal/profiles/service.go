package profiles

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/onenesskingdom/oneness-ledger/internal/ledger"
	"github.com/onenesskingdom/oneness-ledger/internal/transactions"
	dbpkg "github.com/onenesskingdom/oneness-ledger/pkg/db"
	"github.com/onenesskingdom/oneness-ledger/pkg/db/models"
	"github.com/onenesskingdom/oneness-ledger/pkg/enums"
	pkgerrors "github.com/onenesskingdom/oneness-ledger/pkg/errors"
	"github.com/onenesskingdom/oneness-ledger/pkg/logger"
	"github.com/onenesskingdom/oneness-ledger/pkg/outbox"
	"github.com/onenesskingdom/oneness-ledger/pkg/outbox/payloads"
)

type txRunner interface {
	WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error
}

type ledgerService interface {
	Record(ctx context.Context, tx *gorm.DB, entry models.LedgerEntry) error
	Limits(ctx context.Context, userID uuid.UUID, now time.Time) (ledger.Limits, error)
}

type outboxPublisher interface {
	Emit(ctx context.Context, tx *gorm.DB, event outbox.DomainEvent) error
}

type Service interface {
	Create(ctx context.Context, input CreateInput) (*ProfileDTO, error)
	Get(ctx context.Context, id uuid.UUID) (*ProfileDTO, error)
	Exists(ctx context.Context, id uuid.UUID) (bool, error)
	Summary(ctx context.Context, id uuid.UUID, now time.Time) (*SummaryDTO, error)
}

type ServiceParams struct {
	DB             txRunner
	Repository     *Repository
	Ledger         ledgerService
	Transactions   transactions.Repository
	Outbox         outboxPublisher
	Logger         *logger.Logger
	WelcomeBonusOP int64
	Now            func() time.Time
}

type service struct {
	tx     txRunner
	repo   *Repository
	ledger ledgerService
	txns   transactions.Repository
	outbox outboxPublisher
	logg   *logger.Logger
	bonus  int64
	now    func() time.Time
}

func NewService(params ServiceParams) (Service, error) {
	if params.DB == nil {
		return nil, fmt.Errorf("transaction runner required")
	}
	if params.Repository == nil {
		return nil, fmt.Errorf("profiles repository required")
	}
	if params.Ledger == nil {
		return nil, fmt.Errorf("ledger service required")
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
	if params.WelcomeBonusOP < 0 {
		return nil, fmt.Errorf("welcome bonus must not be negative")
	}
	now := params.Now
	if now == nil {
		now = func() time.Time { return time.Now().UTC() }
	}
	return &service{
		tx:     params.DB,
		repo:   params.Repository,
		ledger: params.Ledger,
		txns:   params.Transactions,
		outbox: params.Outbox,
		logg:   params.Logger,
		bonus:  params.WelcomeBonusOP,
		now:    now,
	}, nil
}

// Create onboards a user: the profile row and the welcome bonus commit together.
func (s *service) Create(ctx context.Context, input CreateInput) (*ProfileDTO, error) {
	if input.UserID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeUnauthorized, "user identity required")
	}
	now := s.now().UTC()
	profile := input.ToModel(now)
	if profile.Username == "" {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "username is required")
	}

	correlationID := uuid.New()
	err := s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		if err := s.repo.WithTx(tx).Create(ctx, profile); err != nil {
			if dbpkg.IsUniqueViolation(err, "") {
				return pkgerrors.Wrap(pkgerrors.CodeConflict, err, "profile already exists")
			}
			return pkgerrors.Wrap(pkgerrors.CodeStorage, err, "create profile")
		}

		if s.bonus > 0 {
			if err := s.ledger.Record(ctx, tx, models.LedgerEntry{
				ID:            uuid.New(),
				UserID:        profile.ID,
				Amount:        s.bonus,
				Type:          enums.LedgerEntryWelcomeBonus,
				CorrelationID: correlationID,
				CreatedAt:     now,
			}); err != nil {
				return err
			}
			if err := s.txns.WithTx(tx).Create(ctx, models.Transaction{
				ID:            uuid.New(),
				UserID:        profile.ID,
				Type:          enums.TransactionWelcomeBonus,
				OPAmount:      s.bonus,
				Status:        enums.TransactionStatusCompleted,
				CorrelationID: correlationID,
				CreatedAt:     now,
				UpdatedAt:     now,
			}); err != nil {
				return pkgerrors.Wrap(pkgerrors.CodeStorage, err, "record welcome bonus")
			}
		}

		if err := s.outbox.Emit(ctx, tx, outbox.DomainEvent{
			EventType:     enums.EventProfileCreated,
			AggregateType: enums.AggregateProfile,
			AggregateID:   profile.ID,
			Actor:         &outbox.ActorRef{UserID: profile.ID},
			Data: payloads.ProfileCreatedEvent{
				UserID:         profile.ID,
				Username:       profile.Username,
				WelcomeBonusOP: s.bonus,
			},
			OccurredAt: now,
		}); err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeStorage, err, "emit profile event")
		}
		return nil
	})
	if err != nil {
		if pkgerrors.As(err) == nil {
			err = pkgerrors.Wrap(pkgerrors.CodeStorage, err, "commit profile")
		}
		return nil, err
	}

	s.logg.Info(s.logg.WithFields(ctx, map[string]any{
		"user_id":  profile.ID.String(),
		"username": profile.Username,
		"bonus_op": s.bonus,
	}), "profile created")
	return FromModel(profile), nil
}

func (s *service) Get(ctx context.Context, id uuid.UUID) (*ProfileDTO, error) {
	profile, err := s.repo.FindByID(ctx, id)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeStorage, err, "load profile")
	}
	if profile == nil {
		return nil, pkgerrors.New(pkgerrors.CodeNotFound, "profile not found")
	}
	return FromModel(profile), nil
}

func (s *service) Exists(ctx context.Context, id uuid.UUID) (bool, error) {
	ok, err := s.repo.Exists(ctx, id)
	if err != nil {
		return false, pkgerrors.Wrap(pkgerrors.CodeStorage, err, "resolve profile")
	}
	return ok, nil
}

func (s *service) Summary(ctx context.Context, id uuid.UUID, now time.Time) (*SummaryDTO, error) {
	profile, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	limits, err := s.ledger.Limits(ctx, id, now)
	if err != nil {
		return nil, err
	}
	return &SummaryDTO{Profile: *profile, Points: limits}, nil
}
