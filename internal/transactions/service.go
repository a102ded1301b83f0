package transactions

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/onenesskingdom/oneness-ledger/pkg/db/models"
	"github.com/onenesskingdom/oneness-ledger/pkg/enums"
	pkgerrors "github.com/onenesskingdom/oneness-ledger/pkg/errors"
	"github.com/onenesskingdom/oneness-ledger/pkg/pagination"
)

// Summary is the row shape shown in the wallet history.
type Summary struct {
	ID       uuid.UUID             `json:"id"`
	Type     enums.TransactionType `json:"type"`
	Date     time.Time             `json:"date"`
	OPAmount int64                 `json:"op_amount"`
	Currency *enums.Currency       `json:"currency"`
	Amount   *string               `json:"amount"`
	Status   string                `json:"status"`
}

type Service interface {
	List(ctx context.Context, userID uuid.UUID, filter ListFilter, params pagination.Params) (*pagination.Page[Summary], error)
}

type service struct {
	repo Repository
}

func NewService(repo Repository) (Service, error) {
	if repo == nil {
		return nil, fmt.Errorf("transactions repository required")
	}
	return &service{repo: repo}, nil
}

func (s *service) List(ctx context.Context, userID uuid.UUID, filter ListFilter, params pagination.Params) (*pagination.Page[Summary], error) {
	if userID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeUnauthorized, "user id required")
	}
	rows, next, err := s.repo.ListByUser(ctx, userID, filter, params)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeStorage, err, "list transactions")
	}
	items := make([]Summary, 0, len(rows))
	for _, row := range rows {
		items = append(items, ToSummary(row))
	}
	return &pagination.Page[Summary]{Items: items, NextCursor: next}, nil
}

// ToSummary maps a stored row to its display shape.
func ToSummary(row models.Transaction) Summary {
	summary := Summary{
		ID:       row.ID,
		Type:     row.Type,
		Date:     row.CreatedAt.UTC(),
		OPAmount: row.OPAmount,
		Currency: row.Currency,
		Status:   row.Status,
	}
	if row.Amount.Valid {
		places := int32(2)
		if row.Currency != nil {
			places = row.Currency.Decimals()
		}
		amount := row.Amount.Decimal.StringFixed(places)
		summary.Amount = &amount
	}
	return summary
}
