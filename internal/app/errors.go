package app

import (
	"errors"
	"fmt"
	"net/http"
	"strings"

	"mapchat/api/internal/auth"
	"mapchat/api/internal/comments"
	"mapchat/api/internal/drawing"
	"mapchat/api/internal/export"
	"mapchat/api/internal/ingest"
	"mapchat/api/internal/session"
	"mapchat/api/internal/tier"
)

type DomainError struct {
	Status  int
	Code    string
	Message string
	Details any
}

func (e *DomainError) Error() string {
	if e == nil {
		return ""
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func domainError(status int, code, message string, details any) *DomainError {
	return &DomainError{
		Status:  status,
		Code:    code,
		Message: message,
		Details: details,
	}
}

// Notice is a short user-facing message, rendered by the client as a toast.
type Notice struct {
	Title       string `json:"title"`
	Description string `json:"description"`
}

func mapError(err error) (status int, code, message string, details any) {
	var domainErr *DomainError
	if errors.As(err, &domainErr) {
		return domainErr.Status, domainErr.Code, domainErr.Message, domainErr.Details
	}

	var denied *export.DeniedError
	if errors.As(err, &denied) {
		return http.StatusForbidden, "UPGRADE_REQUIRED", denied.Message, Notice{Title: denied.Title, Description: denied.Message}
	}

	switch {
	case errors.Is(err, ingest.ErrUnsupportedFormat):
		return http.StatusUnprocessableEntity, "UNSUPPORTED_FORMAT", "Unsupported file",
			Notice{Title: "Unsupported file", Description: "Use CSV or GeoJSON for now."}
	case errors.Is(err, ingest.ErrMalformedJSON):
		return http.StatusUnprocessableEntity, "MALFORMED_JSON", "Invalid GeoJSON",
			Notice{Title: "Invalid GeoJSON", Description: "Please check the file format."}
	case errors.Is(err, ingest.ErrMalformedCSV):
		return http.StatusUnprocessableEntity, "MALFORMED_CSV", "CSV error",
			Notice{Title: "CSV error", Description: "Could not parse rows."}
	case errors.Is(err, export.ErrUnsupportedFormat):
		return http.StatusUnprocessableEntity, "UNSUPPORTED_FORMAT", "Unsupported export format", nil
	case errors.Is(err, export.ErrRenderInFlight):
		return http.StatusConflict, "RENDER_IN_FLIGHT", "An export of this region is already running", nil
	case errors.Is(err, export.ErrRenderDependencyMissing):
		return http.StatusServiceUnavailable, "RENDER_UNAVAILABLE", "Rendering is not available on this server", nil
	case errors.Is(err, export.ErrRenderFailure):
		return http.StatusBadGateway, "RENDER_FAILED", "Export failed",
			Notice{Title: "Export failed", Description: "The map could not be rendered."}
	case errors.Is(err, session.ErrPointLimit):
		return http.StatusForbidden, "POINT_LIMIT", tier.FreeLimitNotice, nil
	case errors.Is(err, session.ErrNotDrawable):
		return http.StatusUnprocessableEntity, "INVALID_SHAPE", "Drawn shapes must be a Point, LineString or Polygon", nil
	case errors.Is(err, session.ErrNotFound):
		return http.StatusNotFound, "NOT_FOUND", "Session not found", nil
	case errors.Is(err, drawing.ErrHandleNotFound):
		return http.StatusNotFound, "NOT_FOUND", "Layer not found", nil
	case errors.Is(err, comments.ErrUnauthenticated):
		return http.StatusUnauthorized, "UNAUTHORIZED", "Authentication required", nil
	case errors.Is(err, comments.ErrFeatureRequired):
		return http.StatusBadRequest, "VALIDATION_ERROR", "feature_id is required", nil
	case errors.Is(err, comments.ErrInvalid):
		return http.StatusBadRequest, "VALIDATION_ERROR", validationMessage(err), nil
	case errors.Is(err, auth.ErrInvalidToken), errors.Is(err, auth.ErrExpiredToken):
		return http.StatusUnauthorized, "UNAUTHORIZED", "Unauthorized", nil
	}
	return http.StatusInternalServerError, "SERVER_ERROR", "Server error", nil
}

// validationMessage strips the sentinel prefix from a wrapped comments.ErrInvalid.
func validationMessage(err error) string {
	if rest, ok := strings.CutPrefix(err.Error(), comments.ErrInvalid.Error()+": "); ok && rest != "" {
		return rest
	}
	return "comment_text and feature_id are required"
}
