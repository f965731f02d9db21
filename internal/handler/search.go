package handler

import (
	"log/slog"
	"net/http"
	"strconv"

	"github.com/studentfolio/studentfolio/internal/apperror"
	"github.com/studentfolio/studentfolio/internal/directory"
)

// defaultSearchRows is the page size when the client does not ask for one.
const defaultSearchRows = 20

// SearchHandler serves the public discovery endpoints: student search, tag
// lists and the university list. All of them run on the administrator
// session since they only read public records.
type SearchHandler struct {
	search *directory.Search
	logger *slog.Logger
}

func NewSearchHandler(search *directory.Search, logger *slog.Logger) *SearchHandler {
	return &SearchHandler{search: search, logger: logger}
}

// HandleStudents searches student portfolios.
//
// HTTP: GET /api/search?tags=go&tags=sql&universities=lut&start=0&rows=20
func (h *SearchHandler) HandleStudents(w http.ResponseWriter, r *http.Request) {
	query := r.URL.Query()

	start, err := queryInt(query.Get("start"), 0)
	if err != nil {
		writeError(w, apperror.ValidationFailed("start", "start must be a non-negative integer"))
		return
	}
	rows, err := queryInt(query.Get("rows"), defaultSearchRows)
	if err != nil {
		writeError(w, apperror.ValidationFailed("rows", "rows must be a non-negative integer"))
		return
	}

	res, err := h.search.Students(r.Context(), query["tags"], query["universities"], start, rows)
	if err != nil {
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"total":   res.Total,
		"results": res.Results,
	})
}

// HandleTags lists every known tag.
//
// HTTP: GET /api/tags
func (h *SearchHandler) HandleTags(w http.ResponseWriter, r *http.Request) {
	tags, err := h.search.TagsList(r.Context())
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"tags": tags})
}

// HandleTopTags lists the most used tags.
//
// HTTP: GET /api/tags/top?limit=10
func (h *SearchHandler) HandleTopTags(w http.ResponseWriter, r *http.Request) {
	limit, err := queryInt(r.URL.Query().Get("limit"), 10)
	if err != nil || limit <= 0 {
		writeError(w, apperror.ValidationFailed("limit", "limit must be a positive integer"))
		return
	}

	top, err := h.search.TopTags(r.Context(), limit)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"tags": top})
}

// HandleUniversities lists all registered universities.
//
// HTTP: GET /api/universities
func (h *SearchHandler) HandleUniversities(w http.ResponseWriter, r *http.Request) {
	universities, err := h.search.UniversityList(r.Context())
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"universities": universities})
}

func queryInt(value string, fallback int) (int, error) {
	if value == "" {
		return fallback, nil
	}
	n, err := strconv.Atoi(value)
	if err != nil || n < 0 {
		return 0, apperror.ValidationFailed("", "not a non-negative integer")
	}
	return n, nil
}
