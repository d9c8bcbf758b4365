package export

import (
	"bytes"
	"encoding/xml"
	"fmt"
	"strconv"
	"strings"

	"github.com/paulmach/orb"

	"mapchat/api/internal/geo"
)

type kmlRoot struct {
	XMLName  xml.Name    `xml:"http://www.opengis.net/kml/2.2 kml"`
	Document kmlDocument `xml:"Document"`
}

type kmlDocument struct {
	Placemarks []kmlPlacemark `xml:"Placemark"`
}

type kmlPlacemark struct {
	Name       string          `xml:"name"`
	Point      *kmlCoordinates `xml:"Point,omitempty"`
	LineString *kmlCoordinates `xml:"LineString,omitempty"`
	Polygon    *kmlPolygon     `xml:"Polygon,omitempty"`
}

type kmlCoordinates struct {
	Coordinates string `xml:"coordinates"`
}

type kmlPolygon struct {
	Rings []kmlCoordinates `xml:"LinearRing"`
}

// FeaturesKML writes one Placemark per feature inside a single Document.
// Geometries outside Point, LineString and Polygon produce a Placemark with
// only a name.
func FeaturesKML(features []geo.Feature) (*Result, error) {
	root := kmlRoot{Document: kmlDocument{Placemarks: make([]kmlPlacemark, 0, len(features))}}
	for i, f := range features {
		root.Document.Placemarks = append(root.Document.Placemarks, placemark(i, f))
	}

	var buf bytes.Buffer
	buf.WriteString(xml.Header)
	enc := xml.NewEncoder(&buf)
	enc.Indent("", "  ")
	if err := enc.Encode(root); err != nil {
		return nil, fmt.Errorf("encode kml: %w", err)
	}
	buf.WriteByte('\n')

	return &Result{
		Data:     buf.Bytes(),
		Filename: featuresKMLName,
		MimeType: mimeKML,
	}, nil
}

func placemark(index int, f geo.Feature) kmlPlacemark {
	pm := kmlPlacemark{Name: fmt.Sprintf("Feature %d", index+1)}
	if name, ok := f.Name(); ok {
		pm.Name = name
	}

	switch g := f.Geometry.(type) {
	case orb.Point:
		pm.Point = &kmlCoordinates{Coordinates: kmlCoordinate(g)}
	case orb.LineString:
		pm.LineString = &kmlCoordinates{Coordinates: kmlCoordinateList(g)}
	case orb.Polygon:
		pm.Polygon = &kmlPolygon{Rings: make([]kmlCoordinates, 0, len(g))}
		for _, ring := range g {
			pm.Polygon.Rings = append(pm.Polygon.Rings, kmlCoordinates{Coordinates: kmlCoordinateList(ring)})
		}
	}
	return pm
}

// kmlCoordinate formats lon,lat,0.
func kmlCoordinate(p orb.Point) string {
	return strconv.FormatFloat(p[0], 'f', -1, 64) + "," + strconv.FormatFloat(p[1], 'f', -1, 64) + ",0"
}

func kmlCoordinateList(points []orb.Point) string {
	parts := make([]string, len(points))
	for i, p := range points {
		parts[i] = kmlCoordinate(p)
	}
	return strings.Join(parts, " ")
}
