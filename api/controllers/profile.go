package controllers

import (
	"net/http"
	"time"

	"github.com/onenesskingdom/oneness-ledger/api/responses"
	"github.com/onenesskingdom/oneness-ledger/api/validators"
	"github.com/onenesskingdom/oneness-ledger/internal/profiles"
	"github.com/onenesskingdom/oneness-ledger/pkg/logger"
)

const (
	maxUsernameLen    = 32
	maxDisplayNameLen = 64
	maxBioLen         = 280
)

type createProfileRequest struct {
	Username    string  `json:"username" validate:"required,min=3,max=32"`
	DisplayName string  `json:"display_name" validate:"omitempty,max=64"`
	AvatarURL   *string `json:"avatar_url" validate:"omitempty,url"`
	Bio         *string `json:"bio" validate:"omitempty,max=280"`
}

// CreateProfile onboards the caller and grants the welcome bonus.
func CreateProfile(svc profiles.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		userID, err := callerID(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		var req createProfileRequest
		if err := validators.DecodeJSONBody(r, &req); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		input := profiles.CreateInput{
			UserID:      userID,
			Username:    validators.SanitizeString(req.Username, maxUsernameLen),
			DisplayName: validators.SanitizeString(req.DisplayName, maxDisplayNameLen),
			AvatarURL:   req.AvatarURL,
		}
		if req.Bio != nil {
			bio := validators.SanitizeString(*req.Bio, maxBioLen)
			input.Bio = &bio
		}

		profile, err := svc.Create(r.Context(), input)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccessStatus(w, http.StatusCreated, profile)
	}
}

// GetProfile returns the caller's profile and point figures for the current month.
func GetProfile(svc profiles.Service, now func() time.Time, logg *logger.Logger) http.HandlerFunc {
	if now == nil {
		now = time.Now
	}
	return func(w http.ResponseWriter, r *http.Request) {
		userID, err := callerID(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		summary, err := svc.Summary(r.Context(), userID, now().UTC())
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, summary)
	}
}
