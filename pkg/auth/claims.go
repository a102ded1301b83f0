package auth

import (
	"github.com/golang-jwt/jwt/v5"
)

// AppMetadata mirrors the app_metadata object of Supabase access tokens.
type AppMetadata struct {
	Role string `json:"role,omitempty"`
}

// AccessTokenClaims is the subset of the Supabase access token the ledger reads.
// The user id travels in the registered "sub" claim.
type AccessTokenClaims struct {
	Email       string      `json:"email,omitempty"`
	Role        string      `json:"role,omitempty"`
	AppMetadata AppMetadata `json:"app_metadata"`
	jwt.RegisteredClaims
}

// AccessTokenPayload captures the data available when minting a JWT.
type AccessTokenPayload struct {
	UserID string
	Email  string
	Role   string
	// AppRole lands in app_metadata.role, which takes precedence over Role.
	AppRole string
	JTI     string
}
