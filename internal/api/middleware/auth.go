package middleware

import (
	"context"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/kiranshivaraju/pulseboard/internal/api/response"
	"github.com/kiranshivaraju/pulseboard/internal/auth"
	"github.com/kiranshivaraju/pulseboard/internal/store"
	"golang.org/x/crypto/bcrypt"
)

// Auth authenticates requests carrying an API token issued at verification.
type Auth struct {
	store store.Store
}

// NewAuth creates a new Auth middleware.
func NewAuth(s store.Store) *Auth {
	return &Auth{store: s}
}

// Authenticate validates the Bearer token, looks up the API token by prefix,
// and sets user_id, token_prefix and token_id in the request context.
func (a *Auth) Authenticate(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		raw := extractBearerToken(r)
		if raw == "" {
			response.Error(w, http.StatusUnauthorized,
				"INVALID_TOKEN", "Missing or invalid Authorization header", nil)
			return
		}

		if len(raw) < auth.TokenPrefixLen || !strings.HasPrefix(raw, auth.TokenPrefix) {
			response.Error(w, http.StatusUnauthorized,
				"INVALID_TOKEN", "Invalid token format", nil)
			return
		}

		prefix := raw[:auth.TokenPrefixLen]

		tokens, err := a.store.GetAPITokensByPrefix(r.Context(), prefix)
		if err != nil {
			slog.Error("token lookup failed", "error", err)
			response.Error(w, http.StatusInternalServerError,
				"INTERNAL_ERROR", "Failed to validate token", nil)
			return
		}

		for _, tok := range tokens {
			if bcrypt.CompareHashAndPassword([]byte(tok.TokenHash), []byte(raw)) != nil {
				continue
			}

			ctx := SetUserID(r.Context(), tok.UserID)
			ctx = SetTokenPrefix(ctx, prefix)
			ctx = SetTokenID(ctx, tok.ID)

			go func() {
				ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
				defer cancel()
				if err := a.store.UpdateAPITokenLastUsed(ctx, tok.ID); err != nil {
					slog.Warn("failed to record token use", "token_id", tok.ID, "error", err)
				}
			}()

			next.ServeHTTP(w, r.WithContext(ctx))
			return
		}

		response.Error(w, http.StatusUnauthorized,
			"INVALID_TOKEN", "Invalid token", nil)
	})
}

func extractBearerToken(r *http.Request) string {
	h := r.Header.Get("Authorization")
	if h == "" {
		return ""
	}
	parts := strings.SplitN(h, " ", 2)
	if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") {
		return ""
	}
	return strings.TrimSpace(parts[1])
}
