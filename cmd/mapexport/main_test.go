package main

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/paulmach/orb"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gopkg.in/yaml.v3"

	"mapchat/api/internal/export"
	"mapchat/api/internal/geo"
)

func TestRunCSVToKML(t *testing.T) {
	dir := t.TempDir()
	in := filepath.Join(dir, "stores.csv")
	out := filepath.Join(dir, "stores.kml")
	require.NoError(t, os.WriteFile(in, []byte("name,lat,lng\nRome,41.9,12.5\n"), 0o644))

	err := run(context.Background(), Options{Input: in, Output: out, Format: "kml", Tier: "pro"})
	require.NoError(t, err)

	data, err := os.ReadFile(out)
	require.NoError(t, err)
	assert.Contains(t, string(data), "<name>Rome</name>")
	assert.Contains(t, string(data), "12.5,41.9,0")
}

func TestRunFreeTierIsDenied(t *testing.T) {
	dir := t.TempDir()
	in := filepath.Join(dir, "points.geojson")
	out := filepath.Join(dir, "points.csv")
	require.NoError(t, os.WriteFile(in, []byte(`{"type":"Point","coordinates":[1,2]}`), 0o644))

	err := run(context.Background(), Options{Input: in, Output: out, Format: "csv", Tier: "free"})
	var denied *export.DeniedError
	require.True(t, errors.As(err, &denied))
	assert.Equal(t, "Pro feature", denied.Title)
	_, statErr := os.Stat(out)
	assert.True(t, os.IsNotExist(statErr), "nothing is written when the gate refuses")
}

func TestConvertYAML(t *testing.T) {
	features := []geo.Feature{{ID: "a", Geometry: orb.Point{12.5, 41.9}, Properties: map[string]any{"name": "Rome"}}}

	res, err := convert(context.Background(), features, Options{Format: "yaml", Tier: "pro"})
	require.NoError(t, err)

	var doc map[string]any
	require.NoError(t, yaml.Unmarshal(res.Data, &doc))
	assert.Equal(t, "FeatureCollection", doc["type"])
	assert.Len(t, doc["features"], 1)
}

func TestConvertPNGUsesOutputName(t *testing.T) {
	features := []geo.Feature{{Geometry: orb.Point{0, 0}}}

	res, err := convert(context.Background(), features, Options{Format: "png", Tier: "pro", Output: "/tmp/heat map.png", Width: 100, Height: 50})
	require.NoError(t, err)
	assert.True(t, strings.HasSuffix(res.Filename, ".png"))
	assert.Equal(t, "image/png", res.MimeType)
}
