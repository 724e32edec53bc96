package httpx

import (
	"errors"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/counsel-pm/counsel/internal/shared"
)

var errInvalidID = errors.New("invalid id")

// PathID parses a positive integer URL parameter.
func PathID(r *http.Request, name string) (int64, error) {
	return parseID(chi.URLParam(r, name))
}

// QueryID parses an optional positive integer query parameter. A missing
// parameter yields zero.
func QueryID(r *http.Request, name string) (int64, error) {
	raw := strings.TrimSpace(r.URL.Query().Get(name))
	if raw == "" {
		return 0, nil
	}
	return parseID(raw)
}

// QueryInt parses an integer query parameter, falling back to def.
func QueryInt(r *http.Request, name string, def int) int {
	v, err := strconv.Atoi(r.URL.Query().Get(name))
	if err != nil || v < 1 {
		return def
	}
	return v
}

// ListParams reads page, limit and search from the query string. The limit is
// clamped to shared.MaxPageSize.
func ListParams(r *http.Request) shared.ListFilters {
	return shared.ListFilters{
		Page:   QueryInt(r, "page", 1),
		Limit:  QueryInt(r, "limit", shared.DefaultPageSize),
		Search: strings.TrimSpace(r.URL.Query().Get("search")),
	}.Normalize()
}

func parseID(raw string) (int64, error) {
	id, err := strconv.ParseInt(strings.TrimSpace(raw), 10, 64)
	if err != nil || id <= 0 {
		return 0, errInvalidID
	}
	return id, nil
}

// BadID writes a 400 problem for a malformed identifier.
func BadID(w http.ResponseWriter, name string) {
	Problem(w, http.StatusBadRequest, http.StatusText(http.StatusBadRequest), "invalid "+name)
}
