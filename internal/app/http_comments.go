package app

import (
	"errors"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"

	"mapchat/api/internal/comments"
	"mapchat/api/internal/export"
	"mapchat/api/internal/search"
)

func (s *HTTPServer) handleListComments(w http.ResponseWriter, r *http.Request) {
	list, err := s.deps.Comments.List(r.Context(), chi.URLParam(r, "featureID"))
	if err != nil {
		writeDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"comments": list})
}

func (s *HTTPServer) handleCreateComment(w http.ResponseWriter, r *http.Request) {
	userID := userFromContext(r.Context())
	if userID == "" {
		writeDomainError(w, r, comments.ErrUnauthenticated)
		return
	}

	var in comments.CreateInput
	if err := decodeBody(r, &in); err != nil {
		writeError(w, http.StatusBadRequest, "INVALID_BODY", err.Error(), nil)
		return
	}
	in.FeatureID = chi.URLParam(r, "featureID")

	comment, t, err := s.deps.Comments.Create(r.Context(), userID, in)
	if err != nil {
		writeDomainError(w, r, err)
		return
	}
	title, description := comments.Notice(t)
	writeJSON(w, http.StatusCreated, map[string]any{
		"comment": comment,
		"notice":  Notice{Title: title, Description: description},
	})
}

func (s *HTTPServer) handleExportComments(w http.ResponseWriter, r *http.Request) {
	if userFromContext(r.Context()) == "" {
		writeDomainError(w, r, comments.ErrUnauthenticated)
		return
	}

	res, err := s.deps.Exports.ExportComments(r.Context(), s.tierOf(r), s.deps.Comments)
	if errors.Is(err, export.ErrAuthorizationDenied) {
		_, _, _, details := mapError(err)
		writeError(w, http.StatusForbidden, "UPGRADE_REQUIRED", "Pro subscription required", details)
		return
	}
	if err != nil {
		writeDomainError(w, r, err)
		return
	}
	writeFile(w, res)
}

func (s *HTTPServer) handleSearchComments(w http.ResponseWriter, r *http.Request) {
	query := r.URL.Query()
	q := search.Query{
		Text:      strings.TrimSpace(query.Get("q")),
		FeatureID: strings.TrimSpace(query.Get("feature_id")),
	}
	if q.Text == "" {
		writeError(w, http.StatusBadRequest, "VALIDATION_ERROR", "q is required", nil)
		return
	}
	var err error
	if q.Limit, err = intParam(query.Get("limit")); err != nil {
		writeError(w, http.StatusBadRequest, "VALIDATION_ERROR", "limit must be a number", nil)
		return
	}
	if q.Offset, err = intParam(query.Get("offset")); err != nil {
		writeError(w, http.StatusBadRequest, "VALIDATION_ERROR", "offset must be a number", nil)
		return
	}
	writeJSON(w, http.StatusOK, s.deps.Search.Search(r.Context(), q))
}

func intParam(raw string) (int, error) {
	if raw == "" {
		return 0, nil
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n < 0 {
		return 0, errors.New("invalid number")
	}
	return n, nil
}
