package handler

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/google/uuid"
	mw "github.com/kiranshivaraju/pulseboard/internal/api/middleware"
	"github.com/kiranshivaraju/pulseboard/internal/api/response"
	"github.com/kiranshivaraju/pulseboard/internal/auth"
	"github.com/kiranshivaraju/pulseboard/internal/store"
	"github.com/kiranshivaraju/pulseboard/pkg/models"
)

// Authenticator defines the registration operations the auth handlers use.
type Authenticator interface {
	RequestOTP(ctx context.Context, phone string) error
	Verify(ctx context.Context, phone, code string, interests []string) (*auth.Issued, error)
}

// Accounts is the slice of the store the account handlers need.
type Accounts interface {
	GetUser(ctx context.Context, id uuid.UUID) (*models.User, error)
	RevokeAPIToken(ctx context.Context, id uuid.UUID, userID uuid.UUID) error
}

// QuotaReporter reports a user's daily search usage.
type QuotaReporter interface {
	Usage(ctx context.Context, userID uuid.UUID) (auth.Usage, error)
}

// NewRequestOTPHandler returns an http.HandlerFunc for POST /api/v1/auth/otp.
func NewRequestOTPHandler(svc Authenticator) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var body struct {
			Phone string `json:"phone"`
		}
		if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
			response.Error(w, http.StatusBadRequest, "INVALID_REQUEST", "Invalid JSON body", nil)
			return
		}

		if err := svc.RequestOTP(r.Context(), body.Phone); err != nil {
			switch {
			case errors.Is(err, auth.ErrInvalidPhone):
				response.Error(w, http.StatusBadRequest, "INVALID_PHONE",
					"phone must be a valid phone number", nil)
			case errors.Is(err, auth.ErrOTPDelivery):
				response.Error(w, http.StatusBadGateway, "OTP_DELIVERY_FAILED",
					"The verification code could not be sent", nil)
			default:
				slog.Error("requesting otp", "error", err)
				internalError(w)
			}
			return
		}

		response.Accepted(w, map[string]string{"status": "sent"})
	}
}

type verifyResponse struct {
	Token string       `json:"token"`
	User  *models.User `json:"user"`
}

// NewVerifyOTPHandler returns an http.HandlerFunc for POST /api/v1/auth/verify.
// The issued token is returned once and cannot be retrieved later.
func NewVerifyOTPHandler(svc Authenticator) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var body struct {
			Phone     string   `json:"phone"`
			Code      string   `json:"code"`
			Interests []string `json:"interests"`
		}
		if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
			response.Error(w, http.StatusBadRequest, "INVALID_REQUEST", "Invalid JSON body", nil)
			return
		}
		if body.Code == "" {
			response.Error(w, http.StatusBadRequest, "INVALID_REQUEST", "code is required", nil)
			return
		}

		issued, err := svc.Verify(r.Context(), body.Phone, body.Code, body.Interests)
		if err != nil {
			switch {
			case errors.Is(err, auth.ErrInvalidPhone):
				response.Error(w, http.StatusBadRequest, "INVALID_PHONE",
					"phone must be a valid phone number", nil)
			case errors.Is(err, auth.ErrInvalidCode):
				response.Error(w, http.StatusUnauthorized, "INVALID_CODE",
					"The verification code is invalid or has expired", nil)
			case errors.Is(err, auth.ErrTooManyAttempts):
				response.Error(w, http.StatusTooManyRequests, "TOO_MANY_ATTEMPTS",
					"Too many attempts; request a new code", nil)
			default:
				slog.Error("verifying otp", "error", err)
				internalError(w)
			}
			return
		}

		response.Created(w, verifyResponse{Token: issued.Token, User: issued.User})
	}
}

// NewLogoutHandler returns an http.HandlerFunc for POST /api/v1/auth/logout.
// It revokes the token that authenticated the request.
func NewLogoutHandler(accounts Accounts) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		userID, okUser := mw.GetUserID(r)
		tokenID, okToken := mw.GetTokenID(r)
		if !okUser || !okToken {
			response.Error(w, http.StatusUnauthorized, "INVALID_TOKEN", "Missing token", nil)
			return
		}

		if err := accounts.RevokeAPIToken(r.Context(), tokenID, userID); err != nil && !errors.Is(err, store.ErrNotFound) {
			slog.Error("revoking token", "token_id", tokenID, "error", err)
			internalError(w)
			return
		}

		response.NoContent(w)
	}
}

// NewMeHandler returns an http.HandlerFunc for GET /api/v1/me.
func NewMeHandler(accounts Accounts) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		userID, ok := mw.GetUserID(r)
		if !ok {
			response.Error(w, http.StatusUnauthorized, "INVALID_TOKEN", "Missing user", nil)
			return
		}

		user, err := accounts.GetUser(r.Context(), userID)
		if err != nil {
			if errors.Is(err, store.ErrNotFound) {
				response.Error(w, http.StatusNotFound, "USER_NOT_FOUND", "User not found", nil)
				return
			}
			slog.Error("loading user", "user_id", userID, "error", err)
			internalError(w)
			return
		}

		response.JSON(w, user)
	}
}

// NewQuotaHandler returns an http.HandlerFunc for GET /api/v1/me/quota.
func NewQuotaHandler(q QuotaReporter) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		userID, ok := mw.GetUserID(r)
		if !ok {
			response.Error(w, http.StatusUnauthorized, "INVALID_TOKEN", "Missing user", nil)
			return
		}

		usage, err := q.Usage(r.Context(), userID)
		if err != nil {
			slog.Error("loading quota", "user_id", userID, "error", err)
			internalError(w)
			return
		}

		response.JSON(w, usage)
	}
}
