package handler

import (
	"context"
	"net/http"
	"strings"

	"github.com/kiranshivaraju/pulseboard/internal/api/response"
)

// SuggestionSource returns autocomplete entries for a prefix. It never fails;
// an unavailable backend yields a fallback list.
type SuggestionSource interface {
	Suggestions(ctx context.Context, prefix string) []string
}

// NewSuggestionsHandler returns an http.HandlerFunc for GET /api/v1/suggestions?q=.
func NewSuggestionsHandler(src SuggestionSource) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		prefix := strings.TrimSpace(r.URL.Query().Get("q"))

		list := src.Suggestions(r.Context(), prefix)
		if list == nil {
			list = []string{}
		}
		response.JSON(w, map[string]any{"suggestions": list})
	}
}
