package tier

import "mapchat/api/internal/geo"

// FreePointLimit is the number of Point features a free session may hold.
const FreePointLimit = 20

// FreeLimitNotice is shown once a free session reaches FreePointLimit.
const FreeLimitNotice = "You reached the Free tier limit of 20 markers. Upgrade on the Pricing page for unlimited markers."

// CanAddPoint reports whether one more Point feature may be drawn.
func CanAddPoint(features []geo.Feature, t Tier) bool {
	return CanAddPoints(features, 1, t)
}

// CanAddPoints reports whether n more Point features fit next to features.
func CanAddPoints(features []geo.Feature, n int, t Tier) bool {
	if t != Free || n <= 0 {
		return true
	}
	return geo.CountFeatures(features).Points+n <= FreePointLimit
}

// DrawOptions lists the drawing tools offered for the current collection.
type DrawOptions struct {
	Marker       bool   `json:"marker"`
	Polyline     bool   `json:"polyline"`
	Polygon      bool   `json:"polygon"`
	Circle       bool   `json:"circle"`
	Rectangle    bool   `json:"rectangle"`
	CircleMarker bool   `json:"circlemarker"`
	Notice       string `json:"notice,omitempty"`
}

// DrawOptionsFor derives the tool set. It must be recomputed after every
// collection change so crossing the limit disables markers immediately.
func DrawOptionsFor(features []geo.Feature, t Tier) DrawOptions {
	opts := DrawOptions{
		Marker:   CanAddPoint(features, t),
		Polyline: true,
		Polygon:  true,
	}
	if !opts.Marker {
		opts.Notice = FreeLimitNotice
	}
	return opts
}
