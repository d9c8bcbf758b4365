package export

import (
	"bytes"
	"embed"
	"fmt"
	"html/template"
	"strconv"
	"strings"

	"github.com/paulmach/orb"
)

//go:embed templates/*.html
var templateFS embed.FS

var (
	regionTemplate *template.Template
	pageTemplate   *template.Template
)

func init() {
	funcMap := template.FuncMap{
		"px": func(v float64) string { return strconv.FormatFloat(v, 'f', 2, 64) },
	}
	regionTemplate = mustParseTemplate("region", "templates/region.html", fallbackRegionTemplate, funcMap)
	pageTemplate = mustParseTemplate("page", "templates/page.html", fallbackPageTemplate, funcMap)
}

func mustParseTemplate(name, path, fallback string, funcMap template.FuncMap) *template.Template {
	content, err := templateFS.ReadFile(path)
	if err != nil {
		// Fallback to built-in template if file not found
		return template.Must(template.New(name).Funcs(funcMap).Parse(fallback))
	}
	return template.Must(template.New(name).Funcs(funcMap).Parse(string(content)))
}

// RegionTemplateData holds data for the region page rendered by the browser.
type RegionTemplateData struct {
	Title    string
	Width    int
	Height   int
	Polygons []string
	Lines    []string
	Markers  []TemplateMarker
}

// TemplateMarker is a point feature in region pixels.
type TemplateMarker struct {
	X     float64
	Y     float64
	Label string
}

// PageTemplateData positions one image on a landscape A4 page, in points.
type PageTemplateData struct {
	ImageURL template.URL
	X        float64
	Y        float64
	Width    float64
	Height   float64
}

// RenderRegionHTML draws the region features as inline SVG.
func RenderRegionHTML(region Region) (string, error) {
	w, h := region.size()
	view := newViewport(region.Features, float64(w), float64(h))
	data := RegionTemplateData{Title: region.Title, Width: w, Height: h}

	for _, f := range region.Features {
		label, _ := f.Name()
		switch g := f.Geometry.(type) {
		case orb.Point:
			x, y := view.pixel(g)
			data.Markers = append(data.Markers, TemplateMarker{X: x, Y: y, Label: label})
		case orb.LineString:
			data.Lines = append(data.Lines, svgPath(view, g, false))
		case orb.Polygon:
			var rings []string
			for _, ring := range g {
				rings = append(rings, svgPath(view, orb.LineString(ring), true))
			}
			data.Polygons = append(data.Polygons, strings.Join(rings, " "))
		}
	}

	var buf bytes.Buffer
	if err := regionTemplate.Execute(&buf, data); err != nil {
		return "", err
	}
	return buf.String(), nil
}

// RenderPageHTML renders the PDF page wrapping a PNG image.
func RenderPageHTML(data PageTemplateData) (string, error) {
	var buf bytes.Buffer
	if err := pageTemplate.Execute(&buf, data); err != nil {
		return "", err
	}
	return buf.String(), nil
}

func svgPath(view viewport, points orb.LineString, closed bool) string {
	var b strings.Builder
	for i, p := range points {
		x, y := view.pixel(p)
		if i == 0 {
			b.WriteString("M")
		} else {
			b.WriteString(" L")
		}
		fmt.Fprintf(&b, "%.2f %.2f", x, y)
	}
	if closed && len(points) > 0 {
		b.WriteString(" Z")
	}
	return b.String()
}

// fallbackRegionTemplate is used if the embedded template fails to load
const fallbackRegionTemplate = `<!DOCTYPE html>
<html><head><meta charset="UTF-8"><title>{{.Title}}</title>
<style>html,body{margin:0;background:#fff}</style></head>
<body><div id="region" style="width:{{.Width}}px;height:{{.Height}}px">
<svg xmlns="http://www.w3.org/2000/svg" width="{{.Width}}" height="{{.Height}}">
{{range .Polygons}}<path d="{{.}}" fill="#3388ff" fill-opacity="0.2" stroke="#3388ff" stroke-width="3" fill-rule="evenodd"/>{{end}}
{{range .Lines}}<path d="{{.}}" fill="none" stroke="#3388ff" stroke-width="3"/>{{end}}
{{range .Markers}}<circle cx="{{px .X}}" cy="{{px .Y}}" r="6" fill="#2a81cb" stroke="#fff" stroke-width="1"/>{{end}}
</svg></div></body></html>`

// fallbackPageTemplate is used if the embedded template fails to load
const fallbackPageTemplate = `<!DOCTYPE html>
<html><head><meta charset="UTF-8"><style>@page{size:A4 landscape;margin:0}html,body{margin:0}</style></head>
<body><img src="{{.ImageURL}}" style="position:absolute;left:{{px .X}}pt;top:{{px .Y}}pt;width:{{px .Width}}pt;height:{{px .Height}}pt"></body></html>`
