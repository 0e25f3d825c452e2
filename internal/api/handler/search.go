package handler

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	mw "github.com/kiranshivaraju/pulseboard/internal/api/middleware"
	"github.com/kiranshivaraju/pulseboard/internal/api/response"
	"github.com/kiranshivaraju/pulseboard/internal/search"
	"github.com/kiranshivaraju/pulseboard/pkg/models"
)

// MaxItemsLimit is the largest max_items a caller may request. Zero selects
// the server default.
const MaxItemsLimit = 1000

// Searcher defines the run operations the search handlers depend on.
type Searcher interface {
	Start(ctx context.Context, userID uuid.UUID, req search.Request) (*models.SearchRun, error)
	Status(ctx context.Context, userID, runID uuid.UUID) (*models.RunStatus, error)
	List(ctx context.Context, userID uuid.UUID, page, limit int) ([]*models.SearchRun, int, error)
	Results(ctx context.Context, jobID string) (*models.SearchOutcome, error)
}

// NewCreateSearchHandler returns an http.HandlerFunc for POST /api/v1/searches.
// The body carries either a query or a job_id, or a single free-text input
// that is a job ID when purely numeric.
func NewCreateSearchHandler(svc Searcher) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		userID, ok := mw.GetUserID(r)
		if !ok {
			response.Error(w, http.StatusUnauthorized, "INVALID_TOKEN", "Missing user", nil)
			return
		}

		var body struct {
			Input    string `json:"input"`
			Query    string `json:"query"`
			JobID    string `json:"job_id"`
			MaxItems int    `json:"max_items"`
		}
		if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
			response.Error(w, http.StatusBadRequest, "INVALID_REQUEST", "Invalid JSON body", nil)
			return
		}

		if body.MaxItems < 0 || body.MaxItems > MaxItemsLimit {
			response.Error(w, http.StatusBadRequest, "INVALID_REQUEST",
				fmt.Sprintf("max_items must be between 0 and %d; 0 uses the default", MaxItemsLimit), nil)
			return
		}

		req := search.Request{Query: body.Query, JobID: body.JobID, MaxItems: body.MaxItems}
		if strings.TrimSpace(body.Input) != "" {
			if req.Query != "" || req.JobID != "" {
				response.Error(w, http.StatusBadRequest, "INVALID_REQUEST",
					"input cannot be combined with query or job_id", nil)
				return
			}
			req = search.ParseInput(body.Input, body.MaxItems)
		}

		run, err := svc.Start(r.Context(), userID, req)
		if err != nil {
			if errors.Is(err, search.ErrInvalidRequest) {
				response.Error(w, http.StatusBadRequest, "INVALID_REQUEST", err.Error(), nil)
				return
			}
			slog.Error("starting search", "user_id", userID, "error", err)
			internalError(w)
			return
		}

		response.Accepted(w, run)
	}
}

// NewGetSearchHandler returns an http.HandlerFunc for GET /api/v1/searches/{runID}.
func NewGetSearchHandler(svc Searcher) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		userID, ok := mw.GetUserID(r)
		if !ok {
			response.Error(w, http.StatusUnauthorized, "INVALID_TOKEN", "Missing user", nil)
			return
		}

		runID, err := uuid.Parse(chi.URLParam(r, "runID"))
		if err != nil {
			response.Error(w, http.StatusBadRequest, "INVALID_REQUEST", "runID must be a valid UUID", nil)
			return
		}

		status, err := svc.Status(r.Context(), userID, runID)
		if err != nil {
			if errors.Is(err, search.ErrRunNotFound) {
				response.Error(w, http.StatusNotFound, "RUN_NOT_FOUND", "Search run not found", nil)
				return
			}
			slog.Error("loading search status", "run_id", runID, "error", err)
			internalError(w)
			return
		}

		response.JSON(w, status)
	}
}

// NewListSearchesHandler returns an http.HandlerFunc for GET /api/v1/searches.
func NewListSearchesHandler(svc Searcher) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		userID, ok := mw.GetUserID(r)
		if !ok {
			response.Error(w, http.StatusUnauthorized, "INVALID_TOKEN", "Missing user", nil)
			return
		}

		page, limit, err := pagination(r)
		if err != nil {
			response.Error(w, http.StatusBadRequest, "INVALID_REQUEST", err.Error(), nil)
			return
		}

		runs, total, err := svc.List(r.Context(), userID, page, limit)
		if err != nil {
			slog.Error("listing searches", "user_id", userID, "error", err)
			internalError(w)
			return
		}
		if runs == nil {
			runs = []*models.SearchRun{}
		}

		response.Collection(w, runs, response.Page(page, limit, total))
	}
}

// NewJobResultsHandler returns an http.HandlerFunc for
// GET /api/v1/jobs/{jobID}/results, which reads a job's stored posts and
// latest analysis without running the pipeline.
func NewJobResultsHandler(svc Searcher) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		jobID := strings.TrimSpace(chi.URLParam(r, "jobID"))
		if jobID == "" {
			response.Error(w, http.StatusBadRequest, "INVALID_REQUEST", "jobID is required", nil)
			return
		}

		outcome, err := svc.Results(r.Context(), jobID)
		if err != nil {
			switch {
			case errors.Is(err, search.ErrAnalysisNotFound):
				response.Error(w, http.StatusNotFound, "ANALYSIS_NOT_FOUND",
					"No analysis has been stored for this job", nil)
			case errors.Is(err, search.ErrTransport):
				response.Error(w, http.StatusBadGateway, "BACKEND_UNAVAILABLE",
					"The analysis service is unavailable", nil)
			default:
				slog.Error("loading job results", "job_id", jobID, "error", err)
				internalError(w)
			}
			return
		}

		response.JSON(w, outcome)
	}
}
