package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	mw "github.com/kiranshivaraju/pulseboard/internal/api/middleware"
	"github.com/kiranshivaraju/pulseboard/internal/api/response"
)

// Dependencies holds all handler and middleware dependencies for the router.
type Dependencies struct {
	Auth      *mw.Auth
	RateLimit *mw.RateLimit
	Quota     *mw.Quota

	HealthHandler  http.HandlerFunc
	MetricsHandler http.Handler

	RequestOTPHandler http.HandlerFunc
	VerifyOTPHandler  http.HandlerFunc
	LogoutHandler     http.HandlerFunc

	CreateSearchHandler http.HandlerFunc
	ListSearchesHandler http.HandlerFunc
	GetSearchHandler    http.HandlerFunc
	JobResultsHandler   http.HandlerFunc
	SuggestionsHandler  http.HandlerFunc

	MeHandler    http.HandlerFunc
	QuotaHandler http.HandlerFunc
}

// NewRouter builds the Chi router with middleware stack and all routes.
func NewRouter(deps Dependencies) http.Handler {
	r := chi.NewRouter()

	// Global middleware
	r.Use(mw.Logger)
	r.Use(mw.Recovery)

	// Public routes
	r.Get("/api/v1/health", orNotImplemented(deps.HealthHandler))
	if deps.MetricsHandler != nil {
		r.Method(http.MethodGet, "/metrics", deps.MetricsHandler)
	}
	r.Post("/api/v1/auth/otp", orNotImplemented(deps.RequestOTPHandler))
	r.Post("/api/v1/auth/verify", orNotImplemented(deps.VerifyOTPHandler))

	// Protected routes
	r.Group(func(r chi.Router) {
		r.Use(deps.Auth.Authenticate)
		r.Use(deps.RateLimit.Limit)

		r.Post("/api/v1/auth/logout", orNotImplemented(deps.LogoutHandler))

		r.With(deps.Quota.Enforce).Post("/api/v1/searches", orNotImplemented(deps.CreateSearchHandler))
		r.Get("/api/v1/searches", orNotImplemented(deps.ListSearchesHandler))
		r.Get("/api/v1/searches/{runID}", orNotImplemented(deps.GetSearchHandler))
		r.Get("/api/v1/jobs/{jobID}/results", orNotImplemented(deps.JobResultsHandler))
		r.Get("/api/v1/suggestions", orNotImplemented(deps.SuggestionsHandler))

		r.Get("/api/v1/me", orNotImplemented(deps.MeHandler))
		r.Get("/api/v1/me/quota", orNotImplemented(deps.QuotaHandler))
	})

	return r
}

// orNotImplemented returns the handler if non-nil, or a 501 placeholder.
func orNotImplemented(h http.HandlerFunc) http.HandlerFunc {
	if h != nil {
		return h
	}
	return func(w http.ResponseWriter, r *http.Request) {
		response.Error(w, http.StatusNotImplemented, "NOT_IMPLEMENTED", "Endpoint not yet implemented", nil)
	}
}
