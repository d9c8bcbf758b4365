package export

import (
	"context"
	"math"
	"sync"

	"github.com/paulmach/orb"

	"mapchat/api/internal/geo"
)

// RenderScale is the device pixel ratio of rendered images.
const RenderScale = 2

const (
	defaultRegionWidth  = 960
	defaultRegionHeight = 600
	regionPadding       = 24
)

// Region is an on-screen panel to rasterize. Width and Height are CSS pixels;
// the rendered image is RenderScale times larger.
type Region struct {
	// ID identifies the region for the in-flight guard.
	ID       string
	Title    string
	Width    int
	Height   int
	Features []geo.Feature
}

func (r Region) size() (int, int) {
	w, h := r.Width, r.Height
	if w <= 0 {
		w = defaultRegionWidth
	}
	if h <= 0 {
		h = defaultRegionHeight
	}
	return w, h
}

// Renderer rasterizes a region to PNG bytes at RenderScale with an opaque
// white background.
type Renderer interface {
	Render(ctx context.Context, region Region) ([]byte, error)
}

// RegionLocks refuses to start a second render of a region that is still
// rendering.
type RegionLocks struct {
	mu   sync.Mutex
	busy map[string]struct{}
}

// NewRegionLocks creates an empty lock set.
func NewRegionLocks() *RegionLocks {
	return &RegionLocks{busy: map[string]struct{}{}}
}

// Acquire marks id busy. The returned release must be called when the render ends.
func (l *RegionLocks) Acquire(id string) (func(), error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if _, ok := l.busy[id]; ok {
		return nil, ErrRenderInFlight
	}
	l.busy[id] = struct{}{}
	return func() {
		l.mu.Lock()
		delete(l.busy, id)
		l.mu.Unlock()
	}, nil
}

// viewport maps lon/lat onto region pixels with Web Mercator, fitting the
// bounds of the features inside the padded region.
type viewport struct {
	minX, minY float64
	scale      float64
	offsetX    float64
	offsetY    float64
}

func newViewport(features []geo.Feature, width, height float64) viewport {
	minX, minY := math.Inf(1), math.Inf(1)
	maxX, maxY := math.Inf(-1), math.Inf(-1)
	for _, f := range features {
		if f.Geometry == nil {
			continue
		}
		b := f.Geometry.Bound()
		for _, p := range []orb.Point{b.Min, b.Max} {
			x, y := geo.LonLatToWorld(p[0], p[1])
			minX, maxX = math.Min(minX, x), math.Max(maxX, x)
			minY, maxY = math.Min(minY, y), math.Max(maxY, y)
		}
	}
	if math.IsInf(minX, 1) {
		// Nothing to show: frame the whole world.
		minX, minY, maxX, maxY = 0, 0, 1, 1
	}

	spanX, spanY := maxX-minX, maxY-minY
	if spanX < 1e-9 && spanY < 1e-9 {
		// A single point: zoom to a small neighbourhood around it.
		const pad = 1e-4
		minX, maxX = minX-pad, maxX+pad
		minY, maxY = minY-pad, maxY+pad
		spanX, spanY = 2*pad, 2*pad
	}

	innerW := math.Max(width-2*regionPadding, 1)
	innerH := math.Max(height-2*regionPadding, 1)
	scale := math.Min(innerW/math.Max(spanX, 1e-9), innerH/math.Max(spanY, 1e-9))

	return viewport{
		minX:    minX,
		minY:    minY,
		scale:   scale,
		offsetX: (width - spanX*scale) / 2,
		offsetY: (height - spanY*scale) / 2,
	}
}

func (v viewport) pixel(p orb.Point) (float64, float64) {
	x, y := geo.LonLatToWorld(p[0], p[1])
	return v.offsetX + (x-v.minX)*v.scale, v.offsetY + (y-v.minY)*v.scale
}
