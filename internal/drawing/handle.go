// Package drawing keeps the canonical feature collection in step with the
// shapes on a drawing layer.
//
// Handles are opaque, host-owned objects. The reconciler only talks to them
// through the Handle capability interface and never stores a handle inside
// the feature model; every rebuild materializes plain geo.Feature values.
package drawing

import (
	"strconv"

	"github.com/paulmach/orb"

	"mapchat/api/internal/geo"
)

// Handle is one live shape on a drawing layer.
//
// Implementations must be comparable (typically a pointer) because the
// reconciler remembers identifiers it assigned to handles without one.
type Handle interface {
	// StableID returns the identifier the drawing layer stamped on the shape.
	StableID() (string, bool)
	// ToGeometry converts the shape into its feature representation.
	ToGeometry() (Shape, error)
	// OnClick registers fn as the click listener.
	OnClick(fn func())
	// OffClick removes every click listener.
	OffClick()
}

// ReadyNotifier is implemented by handles that finish initializing
// asynchronously after they were created. The channel is closed once
// ToGeometry can be called safely.
type ReadyNotifier interface {
	Ready() <-chan struct{}
}

// Layer enumerates the handles currently on the map, in display order.
type Layer interface {
	Handles() []Handle
}

// Shape is what a handle converts to: one feature, or a group of features
// that is flattened into the collection.
type Shape struct {
	Feature geo.Feature
	Members []geo.Feature
	Group   bool
}

// Single wraps one feature.
func Single(f geo.Feature) Shape {
	return Shape{Feature: f}
}

// Group wraps a feature collection.
func Group(members ...geo.Feature) Shape {
	return Shape{Members: members, Group: true}
}

// Geometry returns the geometry shown when the shape is selected. Groups
// are reported as a geometry collection of their members.
func (s Shape) Geometry() orb.Geometry {
	if !s.Group {
		return s.Feature.Geometry
	}
	collection := orb.Collection{}
	for _, m := range s.Members {
		if m.Geometry != nil {
			collection = append(collection, m.Geometry)
		}
	}
	return collection
}

// Features returns the flattened feature list with ids resolved against
// handleID: a single feature takes handleID, group members keep their own id
// or get handleID.<n> (1-based).
func (s Shape) Features(handleID string) []geo.Feature {
	if !s.Group {
		f := s.Feature.Clone()
		f.ID = handleID
		if f.Properties == nil {
			f.Properties = map[string]any{}
		}
		return []geo.Feature{f}
	}
	out := make([]geo.Feature, 0, len(s.Members))
	for i, m := range s.Members {
		f := m.Clone()
		if f.ID == "" {
			f.ID = handleID + "." + strconv.Itoa(i+1)
		}
		if f.Properties == nil {
			f.Properties = map[string]any{}
		}
		out = append(out, f)
	}
	return out
}

// Kind reports the geometry type of a single-feature shape, or "" for groups.
func (s Shape) Kind() geo.GeometryType {
	if s.Group {
		return ""
	}
	return s.Feature.Type()
}

// Drawable reports whether every feature of the shape is a Point,
// LineString or Polygon. An empty group is not drawable.
func (s Shape) Drawable() bool {
	if !s.Group {
		return s.Feature.Type().Drawable()
	}
	if len(s.Members) == 0 {
		return false
	}
	for _, m := range s.Members {
		if !m.Type().Drawable() {
			return false
		}
	}
	return true
}

// Points is the number of Point features the shape contributes.
func (s Shape) Points() int {
	if !s.Group {
		if s.Feature.Type() == geo.TypePoint {
			return 1
		}
		return 0
	}
	n := 0
	for _, m := range s.Members {
		if m.Type() == geo.TypePoint {
			n++
		}
	}
	return n
}
