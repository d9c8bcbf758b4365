package drawing

import (
	"encoding/json"
	"sync"

	"github.com/paulmach/orb"
	"github.com/paulmach/orb/geojson"

	"mapchat/api/internal/geo"
)

// SelectedFeature is a weak reference to the clicked shape, handed to the
// comment collaborator. It never owns geometry beyond a copy for display.
type SelectedFeature struct {
	ID          string
	Coordinates json.RawMessage
	Geometry    orb.Geometry
}

// MarshalJSON emits {id, coordinates, geometry} with the geometry in GeoJSON form.
func (s SelectedFeature) MarshalJSON() ([]byte, error) {
	payload := struct {
		ID          string            `json:"id"`
		Coordinates json.RawMessage   `json:"coordinates"`
		Geometry    *geojson.Geometry `json:"geometry"`
	}{ID: s.ID, Coordinates: s.Coordinates}
	if s.Geometry != nil {
		payload.Geometry = geojson.NewGeometry(s.Geometry)
	}
	if payload.Coordinates == nil {
		payload.Coordinates = json.RawMessage("null")
	}
	return json.Marshal(payload)
}

func newSelectedFeature(id string, g orb.Geometry) SelectedFeature {
	sel := SelectedFeature{ID: id, Geometry: g}
	if coords, err := geo.CoordinatesJSON(g); err == nil {
		sel.Coordinates = json.RawMessage(coords)
	}
	return sel
}

// Selection holds at most one selected feature.
type Selection struct {
	mu      sync.RWMutex
	current *SelectedFeature
}

// Set replaces the selection.
func (s *Selection) Set(sel SelectedFeature) {
	s.mu.Lock()
	s.current = &sel
	s.mu.Unlock()
}

// Clear drops the selection.
func (s *Selection) Clear() {
	s.mu.Lock()
	s.current = nil
	s.mu.Unlock()
}

// Current returns the selection, if any.
func (s *Selection) Current() (SelectedFeature, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.current == nil {
		return SelectedFeature{}, false
	}
	return *s.current, true
}

// retain clears the selection unless its id is in keep.
func (s *Selection) retain(keep map[string]struct{}) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.current == nil {
		return
	}
	if _, ok := keep[s.current.ID]; !ok {
		s.current = nil
	}
}
