package middleware

import (
	"context"
	"net/http"

	"github.com/google/uuid"
)

type contextKey string

const (
	userIDKey      contextKey = "user_id"
	tokenPrefixKey contextKey = "token_prefix"
	tokenIDKey     contextKey = "token_id"
)

func SetUserID(ctx context.Context, id uuid.UUID) context.Context {
	return context.WithValue(ctx, userIDKey, id)
}

func GetUserID(r *http.Request) (uuid.UUID, bool) {
	id, ok := r.Context().Value(userIDKey).(uuid.UUID)
	return id, ok
}

// SetTokenPrefix records which token authenticated the request. Rate limits
// are keyed on it.
func SetTokenPrefix(ctx context.Context, prefix string) context.Context {
	return context.WithValue(ctx, tokenPrefixKey, prefix)
}

func getTokenPrefix(r *http.Request) (string, bool) {
	prefix, ok := r.Context().Value(tokenPrefixKey).(string)
	return prefix, ok
}

func SetTokenID(ctx context.Context, id uuid.UUID) context.Context {
	return context.WithValue(ctx, tokenIDKey, id)
}

// GetTokenID returns the ID of the token that authenticated the request.
func GetTokenID(r *http.Request) (uuid.UUID, bool) {
	id, ok := r.Context().Value(tokenIDKey).(uuid.UUID)
	return id, ok
}
