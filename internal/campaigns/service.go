package campaigns

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/onenesskingdom/oneness-ledger/internal/ledger"
	"github.com/onenesskingdom/oneness-ledger/pkg/db/models"
	"github.com/onenesskingdom/oneness-ledger/pkg/enums"
	pkgerrors "github.com/onenesskingdom/oneness-ledger/pkg/errors"
)

type transferer interface {
	Transfer(ctx context.Context, input ledger.TransferInput) (*ledger.TransferResult, error)
}

type raisedSummer interface {
	SumByCampaign(ctx context.Context, campaignID uuid.UUID, entryType enums.LedgerEntryType) (int64, error)
}

// CampaignDTO is a campaign with the points raised so far.
type CampaignDTO struct {
	ID          uuid.UUID `json:"id"`
	OwnerID     uuid.UUID `json:"owner_id"`
	Title       string    `json:"title"`
	Description *string   `json:"description,omitempty"`
	GoalOP      int64     `json:"goal_op"`
	RaisedOP    int64     `json:"raised_op"`
	Active      bool      `json:"active"`
	CreatedAt   time.Time `json:"created_at"`
}

type DonateInput struct {
	DonorID        uuid.UUID
	CampaignID     uuid.UUID
	Amount         int64
	IdempotencyKey string
}

type Service interface {
	Get(ctx context.Context, id uuid.UUID) (*CampaignDTO, error)
	Raised(ctx context.Context, id uuid.UUID) (int64, error)
	Donate(ctx context.Context, input DonateInput) (*ledger.TransferResult, error)
}

type service struct {
	repo    Repository
	entries raisedSummer
	ledger  transferer
}

func NewService(repo Repository, entries raisedSummer, ledgerSvc transferer) (Service, error) {
	if repo == nil {
		return nil, fmt.Errorf("campaigns repository required")
	}
	if entries == nil {
		return nil, fmt.Errorf("ledger repository required")
	}
	if ledgerSvc == nil {
		return nil, fmt.Errorf("ledger service required")
	}
	return &service{repo: repo, entries: entries, ledger: ledgerSvc}, nil
}

func (s *service) Get(ctx context.Context, id uuid.UUID) (*CampaignDTO, error) {
	campaign, err := s.repo.FindByID(ctx, id)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeStorage, err, "load campaign")
	}
	if campaign == nil {
		return nil, pkgerrors.New(pkgerrors.CodeNotFound, "campaign not found")
	}
	raised, err := s.Raised(ctx, id)
	if err != nil {
		return nil, err
	}
	return toDTO(campaign, raised), nil
}

// Raised sums the donation_received side so the figure matches what the owner was credited.
func (s *service) Raised(ctx context.Context, id uuid.UUID) (int64, error) {
	total, err := s.entries.SumByCampaign(ctx, id, enums.LedgerEntryDonationReceived)
	if err != nil {
		return 0, pkgerrors.Wrap(pkgerrors.CodeStorage, err, "sum campaign donations")
	}
	return total, nil
}

// Donate moves points from the donor to the campaign owner. Unknown or
// inactive campaigns fail before anything is written.
func (s *service) Donate(ctx context.Context, input DonateInput) (*ledger.TransferResult, error) {
	if input.Amount <= 0 {
		return nil, pkgerrors.New(pkgerrors.CodeInvalidAmount, "amount must be greater than zero").
			WithDetails(map[string]any{"amount": input.Amount})
	}
	campaign, err := s.repo.FindByID(ctx, input.CampaignID)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeStorage, err, "load campaign")
	}
	if campaign == nil || !campaign.Active {
		return nil, pkgerrors.New(pkgerrors.CodeRecipientNotFound, "campaign not found").
			WithDetails(map[string]any{"campaign_id": input.CampaignID.String()})
	}

	campaignID := campaign.ID
	return s.ledger.Transfer(ctx, ledger.TransferInput{
		Kind:           enums.TransferDonation,
		SenderID:       input.DonorID,
		RecipientID:    campaign.OwnerID,
		Amount:         input.Amount,
		CampaignID:     &campaignID,
		IdempotencyKey: input.IdempotencyKey,
	})
}

func toDTO(c *models.Campaign, raised int64) *CampaignDTO {
	return &CampaignDTO{
		ID:          c.ID,
		OwnerID:     c.OwnerID,
		Title:       c.Title,
		Description: c.Description,
		GoalOP:      c.GoalOP,
		RaisedOP:    raised,
		Active:      c.Active,
		CreatedAt:   c.CreatedAt.UTC(),
	}
}
