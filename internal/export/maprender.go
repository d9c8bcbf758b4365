package export

import (
	"bytes"
	"context"
	"fmt"
	"image"
	"image/color"
	"image/draw"
	"image/png"
	"math"
	"sync"

	"github.com/paulmach/orb"
	"golang.org/x/image/font"
	"golang.org/x/image/font/basicfont"
	"golang.org/x/image/font/gofont/goregular"
	"golang.org/x/image/font/opentype"
	"golang.org/x/image/math/fixed"
	"golang.org/x/image/vector"

	"mapchat/api/internal/geo"
)

var (
	mapBackground = color.RGBA{0xFF, 0xFF, 0xFF, 0xFF}
	polygonFill   = color.RGBA{0x33, 0x88, 0xFF, 0x33}
	featureStroke = color.RGBA{0x33, 0x88, 0xFF, 0xFF}
	markerFill    = color.RGBA{0x2A, 0x81, 0xCB, 0xFF}
	markerOutline = color.RGBA{0xFF, 0xFF, 0xFF, 0xFF}
	labelColor    = color.RGBA{0x1F, 0x29, 0x37, 0xFF}
	titleColor    = color.RGBA{0x11, 0x18, 0x27, 0xFF}
)

const (
	strokeWidth  = 3.0
	markerRadius = 6.0
	labelSize    = 12.0
	titleSize    = 16.0
)

// MapRenderer draws the features of a region directly, without a browser.
type MapRenderer struct{}

// NewMapRenderer creates a pure Go renderer.
func NewMapRenderer() *MapRenderer {
	return &MapRenderer{}
}

// Render implements Renderer.
func (MapRenderer) Render(ctx context.Context, region Region) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrRenderFailure, err)
	}

	w, h := region.size()
	width, height := w*RenderScale, h*RenderScale
	img := image.NewRGBA(image.Rect(0, 0, width, height))
	draw.Draw(img, img.Bounds(), &image.Uniform{C: mapBackground}, image.Point{}, draw.Src)

	view := newViewport(region.Features, float64(w), float64(h))
	c := &canvas{img: img, view: view, scale: RenderScale}

	// Polygons first so lines and markers stay visible on top.
	for _, f := range region.Features {
		if p, ok := f.Geometry.(orb.Polygon); ok {
			c.polygon(p)
		}
	}
	for _, f := range region.Features {
		if l, ok := f.Geometry.(orb.LineString); ok {
			c.polyline(l)
		}
	}
	for _, f := range region.Features {
		if p, ok := f.Geometry.(orb.Point); ok {
			c.marker(p)
		}
	}
	for _, f := range region.Features {
		c.label(f)
	}
	if region.Title != "" {
		c.text(region.Title, 12*RenderScale, 22*RenderScale, titleSize*RenderScale, titleColor)
	}

	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		return nil, fmt.Errorf("%w: encode png: %v", ErrRenderFailure, err)
	}
	return buf.Bytes(), nil
}

type canvas struct {
	img   *image.RGBA
	view  viewport
	scale float64
}

func (c *canvas) pixel(p orb.Point) (float32, float32) {
	x, y := c.view.pixel(p)
	return float32(x * c.scale), float32(y * c.scale)
}

func (c *canvas) fill(z *vector.Rasterizer, col color.Color) {
	z.DrawOp = draw.Over
	z.Draw(c.img, c.img.Bounds(), image.NewUniform(col), image.Point{})
}

func (c *canvas) newRasterizer() *vector.Rasterizer {
	b := c.img.Bounds()
	return vector.NewRasterizer(b.Dx(), b.Dy())
}

func (c *canvas) polygon(p orb.Polygon) {
	z := c.newRasterizer()
	for _, ring := range p {
		if len(ring) < 3 {
			continue
		}
		x, y := c.pixel(ring[0])
		z.MoveTo(x, y)
		for _, pt := range ring[1:] {
			x, y = c.pixel(pt)
			z.LineTo(x, y)
		}
		z.ClosePath()
	}
	c.fill(z, polygonFill)
	for _, ring := range p {
		c.polyline(orb.LineString(ring))
	}
}

// polyline strokes each segment as a quad with square joints.
func (c *canvas) polyline(l orb.LineString) {
	if len(l) < 2 {
		return
	}
	half := float32(strokeWidth * c.scale / 2)
	z := c.newRasterizer()
	for i := 0; i+1 < len(l); i++ {
		x0, y0 := c.pixel(l[i])
		x1, y1 := c.pixel(l[i+1])
		dx, dy := x1-x0, y1-y0
		length := float32(math.Hypot(float64(dx), float64(dy)))
		if length == 0 {
			continue
		}
		nx, ny := -dy/length*half, dx/length*half
		z.MoveTo(x0+nx, y0+ny)
		z.LineTo(x1+nx, y1+ny)
		z.LineTo(x1-nx, y1-ny)
		z.LineTo(x0-nx, y0-ny)
		z.ClosePath()
	}
	for _, pt := range l {
		x, y := c.pixel(pt)
		z.MoveTo(x-half, y-half)
		z.LineTo(x+half, y-half)
		z.LineTo(x+half, y+half)
		z.LineTo(x-half, y+half)
		z.ClosePath()
	}
	c.fill(z, featureStroke)
}

func (c *canvas) marker(p orb.Point) {
	x, y := c.pixel(p)
	r := float32(markerRadius * c.scale)
	c.circle(x, y, r+float32(c.scale), markerOutline)
	c.circle(x, y, r, markerFill)
}

func (c *canvas) circle(cx, cy, r float32, col color.Color) {
	const segments = 24
	z := c.newRasterizer()
	for i := 0; i <= segments; i++ {
		a := 2 * math.Pi * float64(i) / segments
		x := cx + r*float32(math.Cos(a))
		y := cy + r*float32(math.Sin(a))
		if i == 0 {
			z.MoveTo(x, y)
		} else {
			z.LineTo(x, y)
		}
	}
	z.ClosePath()
	c.fill(z, col)
}

func (c *canvas) label(f geo.Feature) {
	name, ok := f.Name()
	if !ok || f.Geometry == nil {
		return
	}
	var anchor orb.Point
	switch g := f.Geometry.(type) {
	case orb.Point:
		anchor = g
	case orb.LineString, orb.Polygon:
		anchor = g.Bound().Center()
	default:
		return
	}
	x, y := c.pixel(anchor)
	offset := (markerRadius + 4) * c.scale
	c.text(name, int(float64(x)+offset), int(float64(y)+offset/2), labelSize*c.scale, labelColor)
}

func (c *canvas) text(s string, x, y int, size float64, col color.RGBA) {
	d := &font.Drawer{
		Dst:  c.img,
		Src:  image.NewUniform(col),
		Face: resolveFontFace(size),
		Dot:  fixed.P(x, y),
	}
	d.DrawString(s)
}

var (
	fontOnce  sync.Once
	fontData  *opentype.Font
	fontErr   error
	fontMu    sync.Mutex
	fontFaces = map[float64]font.Face{}
)

// resolveFontFace returns Go Regular at size, falling back to the built-in
// bitmap face if the TrueType font cannot be loaded.
func resolveFontFace(size float64) font.Face {
	fontOnce.Do(func() {
		fontData, fontErr = opentype.Parse(goregular.TTF)
	})
	if fontErr != nil || fontData == nil {
		return basicfont.Face7x13
	}
	fontMu.Lock()
	defer fontMu.Unlock()
	if face, ok := fontFaces[size]; ok {
		return face
	}
	face, err := opentype.NewFace(fontData, &opentype.FaceOptions{
		Size:    size,
		DPI:     72,
		Hinting: font.HintingFull,
	})
	if err != nil {
		return basicfont.Face7x13
	}
	fontFaces[size] = face
	return face
}
