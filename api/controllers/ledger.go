package controllers

import (
	"net/http"

	"github.com/onenesskingdom/oneness-ledger/api/responses"
	"github.com/onenesskingdom/oneness-ledger/api/validators"
	"github.com/onenesskingdom/oneness-ledger/internal/ledger"
	"github.com/onenesskingdom/oneness-ledger/internal/transactions"
	"github.com/onenesskingdom/oneness-ledger/pkg/enums"
	pkgerrors "github.com/onenesskingdom/oneness-ledger/pkg/errors"
	"github.com/onenesskingdom/oneness-ledger/pkg/logger"
)

// ListLedger returns the caller's raw entries, newest first.
func ListLedger(svc ledger.Service, logg *logger.Logger) http.HandlerFunc {
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
		page, err := svc.History(r.Context(), userID, params)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, page)
	}
}

// ListTransactions returns the wallet history. ?type= may repeat to filter.
func ListTransactions(svc transactions.Service, logg *logger.Logger) http.HandlerFunc {
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

		var filter transactions.ListFilter
		for _, raw := range r.URL.Query()["type"] {
			txType, err := enums.ParseTransactionType(raw)
			if err != nil {
				responses.WriteError(r.Context(), logg, w, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid type filter").WithDetails(map[string]any{"field": "type"}))
				return
			}
			filter.Types = append(filter.Types, txType)
		}

		page, err := svc.List(r.Context(), userID, filter, params)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, page)
	}
}
