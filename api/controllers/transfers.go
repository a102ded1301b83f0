package controllers

import (
	"net/http"

	"github.com/google/uuid"

	"github.com/onenesskingdom/oneness-ledger/api/responses"
	"github.com/onenesskingdom/oneness-ledger/api/validators"
	"github.com/onenesskingdom/oneness-ledger/internal/campaigns"
	"github.com/onenesskingdom/oneness-ledger/internal/posts"
	"github.com/onenesskingdom/oneness-ledger/pkg/logger"
)

type tipRequest struct {
	Amount      int64      `json:"amount"`
	RecipientID *uuid.UUID `json:"recipientId"`
}

type tipResponse struct {
	Success     bool      `json:"success"`
	Amount      int64     `json:"amount"`
	RecipientID uuid.UUID `json:"recipientId"`
	Balance     int64     `json:"balance"`
}

// TipPost moves points from the caller to the post author.
func TipPost(svc posts.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		senderID, err := callerID(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		postID, err := validators.ParseUUIDParam(r, "postId")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		var req tipRequest
		if err := validators.DecodeJSONBody(r, &req); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		result, err := svc.Tip(r.Context(), posts.TipInput{
			SenderID:       senderID,
			PostID:         postID,
			RecipientID:    req.RecipientID,
			Amount:         req.Amount,
			IdempotencyKey: idempotencyKey(r),
		})
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, tipResponse{
			Success:     true,
			Amount:      result.Amount,
			RecipientID: result.RecipientID,
			Balance:     result.SenderBalance,
		})
	}
}

type donateRequest struct {
	CampaignID uuid.UUID `json:"campaignId" validate:"required"`
	Amount     int64     `json:"amount"`
}

type donateResponse struct {
	Success bool  `json:"success"`
	Amount  int64 `json:"amount"`
	Balance int64 `json:"balance"`
}

// Donate moves points from the caller to the campaign owner.
func Donate(svc campaigns.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		donorID, err := callerID(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		var req donateRequest
		if err := validators.DecodeJSONBody(r, &req); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		result, err := svc.Donate(r.Context(), campaigns.DonateInput{
			DonorID:        donorID,
			CampaignID:     req.CampaignID,
			Amount:         req.Amount,
			IdempotencyKey: idempotencyKey(r),
		})
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, donateResponse{Success: true, Amount: result.Amount, Balance: result.SenderBalance})
	}
}

func GetCampaign(svc campaigns.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		campaignID, err := validators.ParseUUIDParam(r, "campaignId")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		campaign, err := svc.Get(r.Context(), campaignID)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, campaign)
	}
}
