package geo

import (
	"encoding/json"
	"fmt"

	"github.com/paulmach/orb/geojson"
)

// GeoJSON converts the feature to its orb/geojson form.
func (f Feature) GeoJSON() *geojson.Feature {
	gf := geojson.NewFeature(f.Geometry)
	if f.ID != "" {
		gf.ID = f.ID
	}
	gf.Properties = geojson.Properties{}
	for k, v := range f.Properties {
		gf.Properties[k] = v
	}
	return gf
}

// MarshalJSON encodes the feature as a GeoJSON Feature object.
func (f Feature) MarshalJSON() ([]byte, error) {
	return json.Marshal(f.GeoJSON())
}

// UnmarshalJSON decodes a GeoJSON Feature object.
func (f *Feature) UnmarshalJSON(data []byte) error {
	gf, err := geojson.UnmarshalFeature(data)
	if err != nil {
		return err
	}
	*f = FromGeoJSON(gf)
	return nil
}

// FromGeoJSON converts an orb/geojson feature into the canonical model.
// Numeric ids are kept in their decimal string form.
func FromGeoJSON(gf *geojson.Feature) Feature {
	if gf == nil {
		return Feature{Properties: map[string]any{}}
	}
	f := Feature{
		Geometry:   gf.Geometry,
		Properties: map[string]any{},
	}
	for k, v := range gf.Properties {
		f.Properties[k] = v
	}
	switch id := gf.ID.(type) {
	case nil:
	case string:
		f.ID = id
	default:
		f.ID = fmt.Sprint(id)
	}
	return f
}

// ToFeatureCollection wraps features in a GeoJSON FeatureCollection.
func ToFeatureCollection(features []Feature) *geojson.FeatureCollection {
	fc := geojson.NewFeatureCollection()
	for _, f := range features {
		fc.Append(f.GeoJSON())
	}
	return fc
}
