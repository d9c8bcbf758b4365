// Package export turns the canonical feature collection into downloadable
// files: CSV, KML, GeoJSON and JSON text, plus rendered PNG and PDF artifacts.
package export

import (
	"errors"
	"fmt"
	"time"

	"mapchat/api/internal/geo"
	"mapchat/api/internal/tier"
)

// Format represents the export output format
type Format string

const (
	FormatCSV     Format = "csv"
	FormatKML     Format = "kml"
	FormatGeoJSON Format = "geojson"
	FormatJSON    Format = "json"
	FormatPNG     Format = "png"
	FormatPDF     Format = "pdf"
)

// ParseFormat validates a format name from a request path.
func ParseFormat(raw string) (Format, error) {
	switch f := Format(raw); f {
	case FormatCSV, FormatKML, FormatGeoJSON, FormatJSON, FormatPNG, FormatPDF:
		return f, nil
	default:
		return "", fmt.Errorf("%w: %q", ErrUnsupportedFormat, raw)
	}
}

// Request contains parameters for an export operation
type Request struct {
	Format   Format
	Tier     tier.Tier
	Features []geo.Feature
	// FileBase names PNG and JSON downloads.
	FileBase string
	// Data is the JSON export payload. When nil the features are exported.
	Data any
	// Region is rasterized for PNG and PDF exports.
	Region Region
}

// CommentRecord is one stored comment as it appears in the comment export.
type CommentRecord struct {
	ID                  string
	FeatureID           string
	Text                string
	UserID              string
	CreatedAt           time.Time
	UpdatedAt           time.Time
	FeatureCoordinates  []byte // raw JSON, may be empty
	SentimentCategory   string
	SentimentConfidence *float64
}

// Result contains the export output
type Result struct {
	Data     []byte
	Filename string
	MimeType string
}

const (
	featuresCSVName     = "features.csv"
	featuresKMLName     = "features.kml"
	featuresGeoJSONName = "features.geojson"
	dashboardPDFName    = "ai-analytics-dashboard.pdf"

	mimeCSV     = "text/csv;charset=utf-8"
	mimeKML     = "application/vnd.google-earth.kml+xml"
	mimeGeoJSON = "application/geo+json"
	mimeJSON    = "application/json"
	mimePNG     = "image/png"
	mimePDF     = "application/pdf"
)

var (
	// ErrUnsupportedFormat indicates an unknown export format was requested.
	ErrUnsupportedFormat = errors.New("export unsupported format")
	// ErrAuthorizationDenied indicates the caller's tier may not export.
	ErrAuthorizationDenied = errors.New("export authorization denied")
	// ErrRenderFailure indicates the rendering backend failed to produce an image.
	ErrRenderFailure = errors.New("export render failure")
	// ErrRenderDependencyMissing indicates rendering runtime dependencies are unavailable.
	ErrRenderDependencyMissing = errors.New("export render dependency missing")
	// ErrRenderInFlight indicates the same region is already being rendered.
	ErrRenderInFlight = errors.New("export render in flight")
)
