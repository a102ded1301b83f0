package middleware

import (
	"context"

	"github.com/google/uuid"

	"github.com/onenesskingdom/oneness-ledger/pkg/auth"
	"github.com/onenesskingdom/oneness-ledger/pkg/enums"
)

type contextKey string

const ctxIdentity contextKey = "identity"

// IdentityFromContext returns the caller resolved by Auth.
func IdentityFromContext(ctx context.Context) (auth.Identity, bool) {
	if ctx == nil {
		return auth.Identity{}, false
	}
	id, ok := ctx.Value(ctxIdentity).(auth.Identity)
	if !ok || id.UserID == uuid.Nil {
		return auth.Identity{}, false
	}
	return id, true
}

func UserIDFromContext(ctx context.Context) string {
	if id, ok := IdentityFromContext(ctx); ok {
		return id.UserID.String()
	}
	return ""
}

func RoleFromContext(ctx context.Context) enums.Role {
	if id, ok := IdentityFromContext(ctx); ok {
		return id.Role
	}
	return ""
}

// WithIdentity injects the caller into the context.
func WithIdentity(ctx context.Context, id auth.Identity) context.Context {
	if ctx == nil {
		ctx = context.Background()
	}
	return context.WithValue(ctx, ctxIdentity, id)
}
