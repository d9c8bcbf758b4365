package session

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/paulmach/orb"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"mapchat/api/internal/drawing"
	"mapchat/api/internal/geo"
	"mapchat/api/internal/ingest"
	"mapchat/api/internal/tier"
)

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

func marker(lng, lat float64) drawing.Shape {
	return drawing.Single(geo.Feature{Geometry: orb.Point{lng, lat}})
}

func newTestManager() *Manager {
	return NewManager(Options{CreateDelay: 5 * time.Millisecond})
}

func TestManagerLifecycle(t *testing.T) {
	m := newTestManager()
	ws := m.Create()
	if m.Len() != 1 {
		t.Fatalf("expected 1 session, got %d", m.Len())
	}

	got, err := m.Get(ws.ID)
	if err != nil {
		t.Fatalf("Get failed: %v", err)
	}
	if got != ws {
		t.Fatal("Get returned a different workspace")
	}

	if err := m.Delete(ws.ID); err != nil {
		t.Fatalf("Delete failed: %v", err)
	}
	if _, err := m.Get(ws.ID); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound after delete, got %v", err)
	}
	if err := m.Delete(ws.ID); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound on second delete, got %v", err)
	}
}

func TestSweepRemovesIdleSessions(t *testing.T) {
	clock := &fakeClock{now: time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)}
	m := NewManager(Options{IdleTTL: time.Hour, Now: clock.Now})

	idle := m.Create()
	active := m.Create()

	clock.Advance(50 * time.Minute)
	if _, err := m.Get(active.ID); err != nil {
		t.Fatalf("Get active failed: %v", err)
	}
	clock.Advance(20 * time.Minute)

	if n := m.Sweep(); n != 1 {
		t.Fatalf("expected 1 expired session, got %d", n)
	}
	if _, err := m.Get(idle.ID); !errors.Is(err, ErrNotFound) {
		t.Fatalf("idle session should be gone, got %v", err)
	}
	if _, err := m.Get(active.ID); err != nil {
		t.Fatalf("active session should survive: %v", err)
	}
}

func TestRunStopsWithContext(t *testing.T) {
	m := newTestManager()
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		m.Run(ctx, time.Millisecond)
		close(done)
	}()
	cancel()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Run did not return after cancel")
	}
}

func TestUploadAppendsAndSurvivesRebuild(t *testing.T) {
	ws := newTestManager().Create()

	csv := "name,lat,lng\nA,41.9,12.5\nB,45.4,\nC,48.8,2.3\n"
	res, err := ws.Upload([]byte(csv), "points.csv")
	require.NoError(t, err)
	assert.Len(t, res.Features, 2)
	assert.Equal(t, 1, res.Dropped)

	_, err = ws.Draw(drawing.Single(geo.Feature{Geometry: orb.LineString{{0, 0}, {1, 1}}}), tier.Free)
	require.NoError(t, err)
	ws.Reconciler.Rebuild()

	state := ws.State(tier.Free)
	assert.Equal(t, geo.Counts{Total: 3, Points: 2, Lines: 1}, state.Counts)
	assert.True(t, state.DrawOptions.Marker)
}

func TestUploadRejectsUnsupportedFormatWithoutChange(t *testing.T) {
	ws := newTestManager().Create()
	_, err := ws.Upload([]byte("x"), "map.shp")
	assert.ErrorIs(t, err, ingest.ErrUnsupportedFormat)
	assert.Equal(t, 0, ws.Collection.Len())
}

func TestDrawCreatesAfterDebounce(t *testing.T) {
	ws := newTestManager().Create()
	h, err := ws.Draw(marker(12.5, 41.9), tier.Free)
	require.NoError(t, err)

	require.Eventually(t, func() bool {
		_, ok := ws.Collection.Find(h.ID())
		return ok
	}, time.Second, 5*time.Millisecond)
}

func TestFreePointLimitCountsPendingShapes(t *testing.T) {
	ws := newTestManager().Create()
	for i := 0; i < tier.FreePointLimit; i++ {
		_, err := ws.Draw(marker(float64(i), 0), tier.Free)
		require.NoError(t, err, "marker %d", i)
	}

	_, err := ws.Draw(marker(99, 0), tier.Free)
	assert.ErrorIs(t, err, ErrPointLimit)

	_, err = ws.Draw(drawing.Single(geo.Feature{Geometry: orb.Polygon{{{0, 0}, {1, 0}, {1, 1}, {0, 0}}}}), tier.Free)
	assert.NoError(t, err, "polygons are not limited")

	_, err = ws.Draw(marker(99, 0), tier.Pro)
	assert.NoError(t, err, "pro is unlimited")

	ws.Reconciler.Rebuild()
	state := ws.State(tier.Free)
	assert.False(t, state.DrawOptions.Marker)
	assert.Equal(t, tier.FreeLimitNotice, state.DrawOptions.Notice)
}

func TestFreePointLimitCountsGroupMembers(t *testing.T) {
	ws := newTestManager().Create()
	for i := 0; i < tier.FreePointLimit-1; i++ {
		_, err := ws.Draw(marker(float64(i), 0), tier.Free)
		require.NoError(t, err, "marker %d", i)
	}

	group := drawing.Group(
		marker(1, 1).Feature, marker(2, 2).Feature, marker(3, 3).Feature,
		marker(4, 4).Feature, marker(5, 5).Feature,
	)
	_, err := ws.Draw(group, tier.Free)
	assert.ErrorIs(t, err, ErrPointLimit)

	_, err = ws.Draw(drawing.Group(marker(1, 1).Feature), tier.Free)
	require.NoError(t, err, "a one-point group still fits")

	_, err = ws.Draw(group, tier.Pro)
	assert.NoError(t, err)

	ws.Reconciler.Rebuild()
	assert.Equal(t, tier.FreePointLimit+5, ws.State(tier.Free).Counts.Points)
}

func TestDrawRejectsMultiGeometries(t *testing.T) {
	ws := newTestManager().Create()

	_, err := ws.Draw(drawing.Single(geo.Feature{Geometry: orb.MultiPoint{{0, 0}, {1, 1}, {2, 2}}}), tier.Free)
	assert.ErrorIs(t, err, ErrNotDrawable)

	_, err = ws.Draw(drawing.Group(marker(0, 0).Feature, geo.Feature{Geometry: orb.MultiPolygon{}}), tier.Pro)
	assert.ErrorIs(t, err, ErrNotDrawable)
	assert.Equal(t, 0, ws.Layer.Len())
}

func TestEditChecksPointQuota(t *testing.T) {
	ws := newTestManager().Create()
	for i := 0; i < tier.FreePointLimit; i++ {
		_, err := ws.Draw(marker(float64(i), 0), tier.Free)
		require.NoError(t, err)
	}
	line, err := ws.Draw(drawing.Single(geo.Feature{Geometry: orb.LineString{{0, 0}, {1, 1}}}), tier.Free)
	require.NoError(t, err)
	ws.Reconciler.Rebuild()

	assert.ErrorIs(t, ws.Edit(line.ID(), marker(7, 7), tier.Free), ErrPointLimit)
	shape, err := line.ToGeometry()
	require.NoError(t, err)
	assert.Equal(t, geo.TypeLineString, shape.Kind(), "refused edit leaves the shape alone")

	// Moving an existing point adds nothing.
	first := ws.Layer.Handles()[0].(*drawing.MemoryHandle)
	assert.NoError(t, ws.Edit(first.ID(), marker(50, 50), tier.Free))

	assert.NoError(t, ws.Edit(line.ID(), marker(7, 7), tier.Pro))
	assert.ErrorIs(t, ws.Edit(line.ID(), drawing.Single(geo.Feature{Geometry: orb.MultiPoint{{0, 0}}}), tier.Pro), ErrNotDrawable)
}

func TestUploadedPointsCountTowardQuota(t *testing.T) {
	ws := newTestManager().Create()
	csv := "lat,lng\n"
	for i := 0; i < tier.FreePointLimit; i++ {
		csv += fmt.Sprintf("%d,%d\n", i, i)
	}
	_, err := ws.Upload([]byte(csv), "many.csv")
	require.NoError(t, err)

	_, err = ws.Draw(marker(1, 1), tier.Free)
	assert.ErrorIs(t, err, ErrPointLimit)
}

func TestEditRemoveAndClick(t *testing.T) {
	ws := newTestManager().Create()
	h, err := ws.Draw(marker(1, 1), tier.Pro)
	require.NoError(t, err)
	ws.Reconciler.Rebuild()

	require.NoError(t, ws.Click(h.ID()))
	sel, ok := ws.Selected()
	require.True(t, ok)
	assert.Equal(t, h.ID(), sel.ID)

	require.NoError(t, ws.Edit(h.ID(), marker(2, 2), tier.Pro))
	f, ok := ws.Collection.Find(h.ID())
	require.True(t, ok)
	assert.Equal(t, orb.Point{2, 2}, f.Geometry)

	require.NoError(t, ws.Remove(h.ID()))
	_, ok = ws.Selected()
	assert.False(t, ok, "removing the selected shape clears the selection")
	assert.Equal(t, 0, ws.Collection.Len())

	assert.ErrorIs(t, ws.Edit("404", marker(0, 0), tier.Pro), drawing.ErrHandleNotFound)
	assert.ErrorIs(t, ws.Remove("404"), drawing.ErrHandleNotFound)
	assert.ErrorIs(t, ws.Click("404"), drawing.ErrHandleNotFound)
}

func TestOnRebuildReceivesSessionID(t *testing.T) {
	var mu sync.Mutex
	seen := map[string]int{}
	m := NewManager(Options{OnRebuild: func(id string, features []geo.Feature) {
		mu.Lock()
		seen[id] = len(features)
		mu.Unlock()
	}})
	ws := m.Create()
	_, err := ws.Draw(marker(0, 0), tier.Free)
	require.NoError(t, err)
	ws.Reconciler.Rebuild()

	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, 1, seen[ws.ID])
}
