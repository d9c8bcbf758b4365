// Package ingest parses uploaded CSV and GeoJSON payloads into features.
package ingest

import (
	"errors"
	"fmt"
	"path/filepath"
	"strings"

	"mapchat/api/internal/geo"
	"mapchat/api/internal/util"
)

// Format identifies which parser handled an upload.
type Format string

const (
	FormatGeoJSON Format = "geojson"
	FormatCSV     Format = "csv"
)

var (
	// ErrUnsupportedFormat indicates the file extension is not .csv, .geojson or .json.
	ErrUnsupportedFormat = errors.New("ingest unsupported format")
	// ErrMalformedJSON indicates a GeoJSON upload could not be parsed.
	ErrMalformedJSON = errors.New("ingest malformed json")
	// ErrMalformedCSV indicates a CSV upload could not be tokenized.
	ErrMalformedCSV = errors.New("ingest malformed csv")
)

// idPrefix namespaces identifiers synthesized for features that arrive without one.
const idPrefix = "ingest"

// Result is the outcome of one upload. Dropped counts CSV rows whose
// coordinates could not be resolved; they are never reported as errors.
type Result struct {
	Format   Format
	Features []geo.Feature
	Dropped  int
}

// Summary returns the notice shown to the user after a successful upload.
func (r Result) Summary() (title, description string) {
	switch r.Format {
	case FormatCSV:
		return "CSV loaded", fmt.Sprintf("%d points added.", len(r.Features))
	default:
		return "GeoJSON loaded", fmt.Sprintf("%d features added.", len(r.Features))
	}
}

// Ingest dispatches on the extension of fileName and parses content.
// The returned features are meant to be appended to the session collection.
func Ingest(content []byte, fileName string) (Result, error) {
	switch strings.ToLower(filepath.Ext(fileName)) {
	case ".geojson", ".json":
		features, err := parseGeoJSON(content)
		if err != nil {
			return Result{}, err
		}
		return Result{Format: FormatGeoJSON, Features: assignIDs(features)}, nil
	case ".csv":
		features, dropped, err := parseCSV(content)
		if err != nil {
			return Result{}, err
		}
		return Result{Format: FormatCSV, Features: assignIDs(features), Dropped: dropped}, nil
	default:
		return Result{}, fmt.Errorf("%w: %q", ErrUnsupportedFormat, fileName)
	}
}

func assignIDs(features []geo.Feature) []geo.Feature {
	for i := range features {
		if features[i].ID == "" {
			features[i].ID = util.NewID(idPrefix)
		}
	}
	return features
}
