package controllers

import (
	"net/http"
	"strings"

	"github.com/google/uuid"

	"github.com/onenesskingdom/oneness-ledger/api/middleware"
	pkgerrors "github.com/onenesskingdom/oneness-ledger/pkg/errors"
)

func callerID(r *http.Request) (uuid.UUID, error) {
	identity, ok := middleware.IdentityFromContext(r.Context())
	if !ok {
		return uuid.Nil, pkgerrors.New(pkgerrors.CodeUnauthorized, "authentication required")
	}
	return identity.UserID, nil
}

func idempotencyKey(r *http.Request) string {
	return strings.TrimSpace(r.Header.Get(middleware.IdempotencyKeyHeader))
}
