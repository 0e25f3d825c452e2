package handler

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/kiranshivaraju/pulseboard/internal/api/response"
)

const (
	defaultPageLimit = 20
	maxPageLimit     = 100
)

var errBadPagination = errors.New("page and limit must be positive integers")

// pagination reads ?page= and ?limit=, applying defaults and clamping limit.
func pagination(r *http.Request) (page, limit int, err error) {
	page, limit = 1, defaultPageLimit
	if v := r.URL.Query().Get("page"); v != "" {
		page, err = strconv.Atoi(v)
		if err != nil || page < 1 {
			return 0, 0, errBadPagination
		}
	}
	if v := r.URL.Query().Get("limit"); v != "" {
		limit, err = strconv.Atoi(v)
		if err != nil || limit < 1 {
			return 0, 0, errBadPagination
		}
	}
	return page, min(limit, maxPageLimit), nil
}

func internalError(w http.ResponseWriter) {
	response.Error(w, http.StatusInternalServerError, "INTERNAL_ERROR",
		"An unexpected error occurred", nil)
}
