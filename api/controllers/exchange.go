package controllers

import (
	"net/http"

	"github.com/onenesskingdom/oneness-ledger/api/responses"
	"github.com/onenesskingdom/oneness-ledger/api/validators"
	"github.com/onenesskingdom/oneness-ledger/internal/exchange"
	"github.com/onenesskingdom/oneness-ledger/pkg/enums"
	pkgerrors "github.com/onenesskingdom/oneness-ledger/pkg/errors"
	"github.com/onenesskingdom/oneness-ledger/pkg/logger"
)

type exchangeRequest struct {
	OPAmount      int64  `json:"op_amount"`
	Currency      string `json:"currency" validate:"required"`
	PayoutAddress string `json:"payout_address" validate:"omitempty,max=256"`
}

func (req exchangeRequest) currency() (enums.Currency, error) {
	currency, err := enums.ParseCurrency(req.Currency)
	if err != nil {
		return "", pkgerrors.Wrap(pkgerrors.CodeValidation, err, "unsupported currency").WithDetails(map[string]any{"field": "currency"})
	}
	return currency, nil
}

// PreviewExchange prices a request against the caller's balance without writing.
func PreviewExchange(svc exchange.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		userID, err := callerID(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		var req exchangeRequest
		if err := validators.DecodeJSONBody(r, &req); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		currency, err := req.currency()
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		preview, err := svc.Preview(r.Context(), userID, req.OPAmount, currency)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, preview)
	}
}

// CreateExchange debits the points and files a pending payout record.
func CreateExchange(svc exchange.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		userID, err := callerID(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		var req exchangeRequest
		if err := validators.DecodeJSONBody(r, &req); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		currency, err := req.currency()
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		request, err := svc.Request(r.Context(), exchange.RequestInput{
			UserID:         userID,
			OPAmount:       req.OPAmount,
			Currency:       currency,
			PayoutAddress:  req.PayoutAddress,
			IdempotencyKey: idempotencyKey(r),
		})
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccessStatus(w, http.StatusCreated, request)
	}
}

func ListExchanges(svc exchange.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		userID, err := callerID(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		params, err := validators.ParsePagination(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		page, err := svc.List(r.Context(), userID, params)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, page)
	}
}

func GetExchange(svc exchange.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		userID, err := callerID(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		requestID, err := validators.ParseUUIDParam(r, "requestId")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		request, err := svc.Get(r.Context(), userID, requestID)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, request)
	}
}

type transitionRequest struct {
	Status string `json:"status" validate:"required,oneof=approved processing completed rejected"`
	Reason string `json:"reason" validate:"omitempty,max=500"`
}

// TransitionExchange moves a payout record along its state machine. Admin only.
func TransitionExchange(svc exchange.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		reviewerID, err := callerID(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		requestID, err := validators.ParseUUIDParam(r, "requestId")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		var req transitionRequest
		if err := validators.DecodeJSONBody(r, &req); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		next, err := enums.ParseExchangeStatus(req.Status)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid status"))
			return
		}
		request, err := svc.Transition(r.Context(), exchange.TransitionInput{
			RequestID:  requestID,
			Next:       next,
			ReviewerID: reviewerID,
			Reason:     req.Reason,
		})
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, request)
	}
}
