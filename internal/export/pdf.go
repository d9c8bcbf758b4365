package export

import (
	"bytes"
	"context"
	"encoding/base64"
	"fmt"
	"html/template"
	"image/png"
	"math"
	"strings"
)

// A4 landscape in PostScript points.
const (
	PageWidthPt  = 841.89
	PageHeightPt = 595.28
	// DefaultPageMargin is the blank border kept around the image.
	DefaultPageMargin = 24.0
)

// Rect is a placement on the page, in points.
type Rect struct {
	X, Y, Width, Height float64
}

// FitRect scales a width x height image to fit inside the page minus margin
// on every side, preserving aspect ratio, and centers it.
func FitRect(width, height, pageWidth, pageHeight, margin float64) Rect {
	if width <= 0 || height <= 0 {
		return Rect{X: pageWidth / 2, Y: pageHeight / 2}
	}
	innerW := math.Max(pageWidth-2*margin, 0)
	innerH := math.Max(pageHeight-2*margin, 0)
	ratio := math.Min(innerW/width, innerH/height)
	w, h := width*ratio, height*ratio
	return Rect{
		X:      (pageWidth - w) / 2,
		Y:      (pageHeight - h) / 2,
		Width:  w,
		Height: h,
	}
}

// Printer prints an HTML page to PDF.
type Printer interface {
	PrintPDF(ctx context.Context, html string) ([]byte, error)
}

// ComposePDF places a rendered PNG on one landscape A4 page.
func ComposePDF(ctx context.Context, printer Printer, pngData []byte, margin float64) (*Result, error) {
	cfg, err := png.DecodeConfig(bytes.NewReader(pngData))
	if err != nil {
		return nil, fmt.Errorf("%w: decode rendered image: %v", ErrRenderFailure, err)
	}

	rect := FitRect(float64(cfg.Width), float64(cfg.Height), PageWidthPt, PageHeightPt, margin)
	html, err := RenderPageHTML(PageTemplateData{
		ImageURL: template.URL("data:image/png;base64," + base64.StdEncoding.EncodeToString(pngData)),
		X:        rect.X,
		Y:        rect.Y,
		Width:    rect.Width,
		Height:   rect.Height,
	})
	if err != nil {
		return nil, fmt.Errorf("render page template: %w", err)
	}

	pdfData, err := printer.PrintPDF(ctx, html)
	if err != nil {
		return nil, err
	}

	return &Result{
		Data:     pdfData,
		Filename: dashboardPDFName,
		MimeType: mimePDF,
	}, nil
}

// percentEncodeForDataURL encodes a string for use in a data URL
// Unlike url.QueryEscape, this properly encodes spaces as %20 for data URLs
func percentEncodeForDataURL(s string) string {
	var result strings.Builder
	for _, r := range s {
		switch {
		case r >= 'a' && r <= 'z',
			r >= 'A' && r <= 'Z',
			r >= '0' && r <= '9',
			r == '-', r == '_', r == '.', r == '~':
			result.WriteRune(r)
		case r == ' ':
			result.WriteString("%20")
		default:
			for _, b := range []byte(string(r)) {
				fmt.Fprintf(&result, "%%%02X", b)
			}
		}
	}
	return result.String()
}

// sanitizeFilename creates a safe file base name
func sanitizeFilename(name string) string {
	var result strings.Builder
	for _, r := range name {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9':
			result.WriteRune(r)
		case r == ' ':
			result.WriteRune('-')
		case r == '-', r == '_':
			result.WriteRune(r)
		}
	}

	out := result.String()
	if len(out) > 50 {
		out = out[:50]
	}
	if out == "" {
		out = "map"
	}
	return out
}
