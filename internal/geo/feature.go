// Package geo holds the canonical feature model shared by ingestion, the
// drawing-layer reconciler and the exporters.
package geo

import (
	"encoding/json"
	"math"

	"github.com/paulmach/orb"
)

// GeometryType names the geometry of a feature using GeoJSON type names.
type GeometryType string

const (
	TypePoint      GeometryType = "Point"
	TypeLineString GeometryType = "LineString"
	TypePolygon    GeometryType = "Polygon"
)

// Drawable reports whether t belongs to the closed set produced by the drawing layer.
func (t GeometryType) Drawable() bool {
	switch t {
	case TypePoint, TypeLineString, TypePolygon:
		return true
	default:
		return false
	}
}

// Feature is one geometry plus its attribute properties.
//
// Geometry may be nil or of a type outside the drawable set when the feature
// came from an uploaded GeoJSON file; consumers must tolerate both.
type Feature struct {
	ID         string
	Geometry   orb.Geometry
	Properties map[string]any
}

// Type returns the GeoJSON type of the geometry, or "" when there is none.
func (f Feature) Type() GeometryType {
	if f.Geometry == nil {
		return ""
	}
	return GeometryType(f.Geometry.GeoJSONType())
}

// Name returns the "name" property in string form, if present.
func (f Feature) Name() (string, bool) {
	raw, ok := f.Properties["name"]
	if !ok || raw == nil {
		return "", false
	}
	switch v := raw.(type) {
	case string:
		return v, v != ""
	default:
		b, err := json.Marshal(v)
		if err != nil {
			return "", false
		}
		return string(b), true
	}
}

// Clone returns a copy whose properties map can be mutated independently.
func (f Feature) Clone() Feature {
	out := Feature{ID: f.ID, Geometry: f.Geometry}
	if f.Properties != nil {
		out.Properties = make(map[string]any, len(f.Properties))
		for k, v := range f.Properties {
			out.Properties[k] = v
		}
	}
	if f.Geometry != nil {
		out.Geometry = orb.Clone(f.Geometry)
	}
	return out
}

// CoordinatesJSON serializes the coordinate structure of the geometry, the
// same nesting GeoJSON uses for the "coordinates" member.
func CoordinatesJSON(g orb.Geometry) (string, error) {
	if g == nil {
		return "null", nil
	}
	b, err := json.Marshal(g)
	if err != nil {
		return "", err
	}
	return string(b), nil
}

// Finite reports whether every value is a finite number.
func Finite(values ...float64) bool {
	for _, v := range values {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return false
		}
	}
	return true
}
