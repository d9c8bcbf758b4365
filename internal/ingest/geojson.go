package ingest

import (
	"encoding/json"
	"fmt"

	"github.com/paulmach/orb/geojson"

	"mapchat/api/internal/geo"
)

// parseGeoJSON accepts a FeatureCollection, a single Feature or a bare
// geometry. Only a JSON syntax error fails the upload: any other value,
// including one whose geometry orb cannot read, becomes a feature with
// whatever could be salvaged and a nil geometry otherwise.
func parseGeoJSON(content []byte) ([]geo.Feature, error) {
	var value any
	if err := json.Unmarshal(content, &value); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedJSON, err)
	}
	object, ok := value.(map[string]any)
	if !ok {
		return []geo.Feature{emptyFeature()}, nil
	}

	switch object["type"] {
	case "FeatureCollection":
		var fc struct {
			Features []json.RawMessage `json:"features"`
		}
		if err := json.Unmarshal(content, &fc); err != nil || fc.Features == nil {
			// No usable features member: the collection itself is the element.
			return []geo.Feature{emptyFeature()}, nil
		}
		features := make([]geo.Feature, 0, len(fc.Features))
		for _, raw := range fc.Features {
			features = append(features, featureFromRaw(raw))
		}
		return features, nil
	case "Feature":
		return []geo.Feature{featureFromRaw(content)}, nil
	case "Point", "MultiPoint", "LineString", "MultiLineString", "Polygon", "MultiPolygon", "GeometryCollection":
		f := emptyFeature()
		if g, err := geojson.UnmarshalGeometry(content); err == nil {
			f.Geometry = g.Geometry()
		}
		return []geo.Feature{f}, nil
	default:
		return []geo.Feature{emptyFeature()}, nil
	}
}

// featureFromRaw converts one Feature object. When orb rejects it, the id
// and properties are read member by member and the geometry is kept only if
// it decodes on its own.
func featureFromRaw(raw json.RawMessage) geo.Feature {
	if gf, err := geojson.UnmarshalFeature(raw); err == nil {
		return geo.FromGeoJSON(gf)
	}

	f := emptyFeature()
	var members map[string]json.RawMessage
	if err := json.Unmarshal(raw, &members); err != nil {
		return f
	}
	if g, ok := members["geometry"]; ok {
		if geometry, err := geojson.UnmarshalGeometry(g); err == nil {
			f.Geometry = geometry.Geometry()
		}
	}
	if p, ok := members["properties"]; ok {
		var props map[string]any
		if err := json.Unmarshal(p, &props); err == nil {
			for k, v := range props {
				f.Properties[k] = v
			}
		}
	}
	if id, ok := members["id"]; ok {
		var v any
		if err := json.Unmarshal(id, &v); err == nil {
			switch v := v.(type) {
			case nil:
			case string:
				f.ID = v
			case float64:
				f.ID = fmt.Sprint(v)
			}
		}
	}
	return f
}

func emptyFeature() geo.Feature {
	return geo.Feature{Properties: map[string]any{}}
}
