package export

import (
	"encoding/json"
	"fmt"

	"mapchat/api/internal/geo"
)

const jsonIndent = "  "

// FeaturesGeoJSON writes the collection as a GeoJSON FeatureCollection.
func FeaturesGeoJSON(features []geo.Feature) (*Result, error) {
	data, err := json.MarshalIndent(geo.ToFeatureCollection(features), "", jsonIndent)
	if err != nil {
		return nil, fmt.Errorf("encode geojson: %w", err)
	}
	return &Result{
		Data:     append(data, '\n'),
		Filename: featuresGeoJSONName,
		MimeType: mimeGeoJSON,
	}, nil
}

// JSON serializes arbitrary data with two-space indentation.
func JSON(data any, fileBase string) (*Result, error) {
	out, err := json.MarshalIndent(data, "", jsonIndent)
	if err != nil {
		return nil, fmt.Errorf("encode json: %w", err)
	}
	return &Result{
		Data:     append(out, '\n'),
		Filename: sanitizeFilename(fileBase) + ".json",
		MimeType: mimeJSON,
	}, nil
}
