package posts

import (
	"context"
	"fmt"

	"github.com/google/uuid"

	"github.com/onenesskingdom/oneness-ledger/internal/ledger"
	"github.com/onenesskingdom/oneness-ledger/pkg/enums"
	pkgerrors "github.com/onenesskingdom/oneness-ledger/pkg/errors"
)

type transferer interface {
	Transfer(ctx context.Context, input ledger.TransferInput) (*ledger.TransferResult, error)
}

// TipInput is a tip on a post. RecipientID defaults to the post author.
type TipInput struct {
	SenderID       uuid.UUID
	PostID         uuid.UUID
	RecipientID    *uuid.UUID
	Amount         int64
	IdempotencyKey string
}

type Service interface {
	Tip(ctx context.Context, input TipInput) (*ledger.TransferResult, error)
}

type service struct {
	repo   Repository
	ledger transferer
}

func NewService(repo Repository, ledgerSvc transferer) (Service, error) {
	if repo == nil {
		return nil, fmt.Errorf("posts repository required")
	}
	if ledgerSvc == nil {
		return nil, fmt.Errorf("ledger service required")
	}
	return &service{repo: repo, ledger: ledgerSvc}, nil
}

func (s *service) Tip(ctx context.Context, input TipInput) (*ledger.TransferResult, error) {
	if input.Amount <= 0 {
		return nil, pkgerrors.New(pkgerrors.CodeInvalidAmount, "amount must be greater than zero").
			WithDetails(map[string]any{"amount": input.Amount})
	}
	post, err := s.repo.FindByID(ctx, input.PostID)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeStorage, err, "load post")
	}
	if post == nil {
		return nil, pkgerrors.New(pkgerrors.CodeNotFound, "post not found")
	}
	if input.RecipientID != nil && *input.RecipientID != post.AuthorID {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "recipient must be the post author").
			WithDetails(map[string]any{"reason": "recipient_mismatch"})
	}

	postID := post.ID
	return s.ledger.Transfer(ctx, ledger.TransferInput{
		Kind:           enums.TransferTip,
		SenderID:       input.SenderID,
		RecipientID:    post.AuthorID,
		Amount:         input.Amount,
		PostID:         &postID,
		IdempotencyKey: input.IdempotencyKey,
	})
}
