package export

import (
	"bytes"
	"encoding/csv"
	"encoding/json"
	"fmt"
	"sort"
	"strconv"

	"mapchat/api/internal/geo"
)

var featureBaseColumns = []string{"id", "type", "coordinates"}

// FeaturesCSV writes one row per feature. The id column is the 1-based row
// index, not the feature id. Property columns are the union of all property
// keys in first-seen order; a property never overrides a base column.
func FeaturesCSV(features []geo.Feature) (*Result, error) {
	columns := append([]string{}, featureBaseColumns...)
	seen := map[string]struct{}{}
	for _, c := range featureBaseColumns {
		seen[c] = struct{}{}
	}
	for _, f := range features {
		for _, key := range sortedKeys(f.Properties) {
			if _, ok := seen[key]; ok {
				continue
			}
			seen[key] = struct{}{}
			columns = append(columns, key)
		}
	}

	var buf bytes.Buffer
	w := csv.NewWriter(&buf)
	if err := w.Write(columns); err != nil {
		return nil, fmt.Errorf("write csv header: %w", err)
	}

	for i, f := range features {
		coords, err := geo.CoordinatesJSON(f.Geometry)
		if err != nil {
			return nil, fmt.Errorf("encode coordinates of feature %d: %w", i+1, err)
		}
		row := make([]string, len(columns))
		row[0] = strconv.Itoa(i + 1)
		row[1] = string(f.Type())
		row[2] = coords
		for c := len(featureBaseColumns); c < len(columns); c++ {
			if v, ok := f.Properties[columns[c]]; ok {
				row[c] = cellValue(v)
			}
		}
		if err := w.Write(row); err != nil {
			return nil, fmt.Errorf("write csv row %d: %w", i+1, err)
		}
	}

	w.Flush()
	if err := w.Error(); err != nil {
		return nil, fmt.Errorf("flush csv: %w", err)
	}

	return &Result{
		Data:     buf.Bytes(),
		Filename: featuresCSVName,
		MimeType: mimeCSV,
	}, nil
}

// cellValue renders a property value. Strings are written as-is, nested
// values as JSON.
func cellValue(v any) string {
	switch value := v.(type) {
	case nil:
		return ""
	case string:
		return value
	case float64:
		return strconv.FormatFloat(value, 'f', -1, 64)
	case bool:
		return strconv.FormatBool(value)
	default:
		b, err := json.Marshal(value)
		if err != nil {
			return fmt.Sprint(value)
		}
		return string(b)
	}
}

func sortedKeys(m map[string]any) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
