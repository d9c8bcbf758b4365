package ingest

import (
	"bytes"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/paulmach/orb"

	"mapchat/api/internal/geo"
)

// Coordinate columns, probed case-sensitively in priority order.
var (
	latitudeKeys  = []string{"lat", "latitude", "Latitude"}
	longitudeKeys = []string{"lng", "lon", "longitude", "Longitude"}
)

var utf8BOM = []byte{0xEF, 0xBB, 0xBF}

func parseCSV(content []byte) ([]geo.Feature, int, error) {
	reader := csv.NewReader(bytes.NewReader(bytes.TrimPrefix(content, utf8BOM)))
	reader.FieldsPerRecord = -1
	reader.LazyQuotes = true

	header, err := reader.Read()
	if errors.Is(err, io.EOF) {
		return []geo.Feature{}, 0, nil
	}
	if err != nil {
		return nil, 0, fmt.Errorf("%w: %v", ErrMalformedCSV, err)
	}

	features := []geo.Feature{}
	dropped := 0
	for {
		record, err := reader.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, 0, fmt.Errorf("%w: %v", ErrMalformedCSV, err)
		}
		if blankRecord(record) {
			continue
		}

		row := make(map[string]string, len(header))
		for i, key := range header {
			if i < len(record) {
				row[key] = record[i]
			}
		}

		feature, ok := rowToPoint(row)
		if !ok {
			dropped++
			continue
		}
		features = append(features, feature)
	}
	return features, dropped, nil
}

// rowToPoint resolves the coordinate columns of row. Every spelling variant
// is removed from the properties, not only the ones that were used.
func rowToPoint(row map[string]string) (geo.Feature, bool) {
	lat, ok := resolveCoordinate(row, latitudeKeys)
	if !ok {
		return geo.Feature{}, false
	}
	lng, ok := resolveCoordinate(row, longitudeKeys)
	if !ok {
		return geo.Feature{}, false
	}

	properties := make(map[string]any, len(row))
	for key, value := range row {
		properties[key] = value
	}
	for _, key := range latitudeKeys {
		delete(properties, key)
	}
	for _, key := range longitudeKeys {
		delete(properties, key)
	}

	return geo.Feature{Geometry: orb.Point{lng, lat}, Properties: properties}, true
}

// resolveCoordinate parses the first column in keys that is present on the
// row. A present but unparsable value does not fall through to later keys.
func resolveCoordinate(row map[string]string, keys []string) (float64, bool) {
	for _, key := range keys {
		raw, ok := row[key]
		if !ok {
			continue
		}
		v, err := strconv.ParseFloat(strings.TrimSpace(raw), 64)
		if err != nil || !geo.Finite(v) {
			return 0, false
		}
		return v, true
	}
	return 0, false
}

func blankRecord(record []string) bool {
	return len(record) == 1 && strings.TrimSpace(record[0]) == ""
}
