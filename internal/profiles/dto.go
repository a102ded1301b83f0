package profiles

import (
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/onenesskingdom/oneness-ledger/internal/ledger"
	"github.com/onenesskingdom/oneness-ledger/pkg/db/models"
)

// ProfileDTO is the transport shape of an account.
type ProfileDTO struct {
	ID          uuid.UUID `json:"id"`
	Username    string    `json:"username"`
	DisplayName string    `json:"display_name"`
	AvatarURL   *string   `json:"avatar_url,omitempty"`
	Bio         *string   `json:"bio,omitempty"`
	CreatedAt   time.Time `json:"created_at"`
}

// SummaryDTO backs GET /profile.
type SummaryDTO struct {
	Profile ProfileDTO    `json:"profile"`
	Points  ledger.Limits `json:"points"`
}

// CreateInput is the onboarding payload. UserID is the auth subject.
type CreateInput struct {
	UserID      uuid.UUID
	Username    string
	DisplayName string
	AvatarURL   *string
	Bio         *string
}

func FromModel(p *models.Profile) *ProfileDTO {
	if p == nil {
		return nil
	}
	return &ProfileDTO{
		ID:          p.ID,
		Username:    p.Username,
		DisplayName: p.DisplayName,
		AvatarURL:   p.AvatarURL,
		Bio:         p.Bio,
		CreatedAt:   p.CreatedAt.UTC(),
	}
}

func (c CreateInput) ToModel(now time.Time) *models.Profile {
	display := strings.TrimSpace(c.DisplayName)
	username := strings.TrimSpace(c.Username)
	if display == "" {
		display = username
	}
	return &models.Profile{
		ID:          c.UserID,
		Username:    username,
		DisplayName: display,
		AvatarURL:   trimmed(c.AvatarURL),
		Bio:         trimmed(c.Bio),
		CreatedAt:   now,
		UpdatedAt:   now,
	}
}

func trimmed(v *string) *string {
	if v == nil {
		return nil
	}
	s := strings.TrimSpace(*v)
	if s == "" {
		return nil
	}
	return &s
}
