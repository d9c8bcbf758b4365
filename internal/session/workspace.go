// Package session holds the per-view map workspaces: the feature collection,
// the drawing layer mirror and its reconciler. Workspaces live in memory only
// and are discarded when the view unmounts or goes idle.
package session

import (
	"errors"
	"sync"
	"sync/atomic"
	"time"

	"mapchat/api/internal/drawing"
	"mapchat/api/internal/geo"
	"mapchat/api/internal/ingest"
	"mapchat/api/internal/tier"
)

var (
	ErrPointLimit = errors.New("point limit reached")
	// ErrNotDrawable rejects shapes outside Point, LineString and Polygon.
	ErrNotDrawable = errors.New("shape is not drawable")
)

// Workspace is one mounted map view.
type Workspace struct {
	ID        string
	CreatedAt time.Time

	Collection *geo.Collection
	Layer      *drawing.MemoryLayer
	Selection  *drawing.Selection
	Reconciler *drawing.Reconciler

	// mu serializes layer writes so the point quota is checked against the
	// layer it is about to change.
	mu       sync.Mutex
	lastSeen atomic.Int64
}

// State is the snapshot returned to the client after every change.
type State struct {
	Features    []geo.Feature    `json:"features"`
	Counts      geo.Counts       `json:"counts"`
	DrawOptions tier.DrawOptions `json:"draw_options"`
}

func newWorkspace(id string, now time.Time, opts drawing.Options) *Workspace {
	ws := &Workspace{
		ID:         id,
		CreatedAt:  now,
		Collection: geo.NewCollection(),
		Layer:      drawing.NewMemoryLayer(),
		Selection:  &drawing.Selection{},
	}
	ws.Reconciler = drawing.NewReconciler(ws.Layer, ws.Collection, ws.Selection, opts)
	ws.touch(now)
	return ws
}

func (w *Workspace) touch(now time.Time) {
	w.lastSeen.Store(now.UnixNano())
}

// LastSeen is the time of the last lookup through the manager.
func (w *Workspace) LastSeen() time.Time {
	return time.Unix(0, w.lastSeen.Load())
}

// State derives features, counts and draw options for tier t.
func (w *Workspace) State(t tier.Tier) State {
	features := w.Collection.Snapshot()
	return State{
		Features:    features,
		Counts:      geo.CountFeatures(features),
		DrawOptions: tier.DrawOptionsFor(features, t),
	}
}

// Upload ingests a file and appends its features.
func (w *Workspace) Upload(content []byte, fileName string) (ingest.Result, error) {
	res, err := ingest.Ingest(content, fileName)
	if err != nil {
		return ingest.Result{}, err
	}
	w.Collection.Append(res.Features...)
	return res, nil
}

// Draw puts a new shape on the layer and schedules the create rebuild.
// Free sessions are refused a shape whose points do not fit in the quota;
// the count includes shapes whose rebuild is still pending.
func (w *Workspace) Draw(shape drawing.Shape, t tier.Tier) (*drawing.MemoryHandle, error) {
	if !shape.Drawable() {
		return nil, ErrNotDrawable
	}
	w.mu.Lock()
	defer w.mu.Unlock()

	if !tier.CanAddPoints(w.projectedLocked(), shape.Points(), t) {
		return nil, ErrPointLimit
	}
	h := w.Layer.Add(shape)
	w.Reconciler.OnCreated(h)
	return h, nil
}

// Edit replaces a shape and rebuilds. Only the points the new shape adds
// over the old one are checked against the quota.
func (w *Workspace) Edit(layerID string, shape drawing.Shape, t tier.Tier) error {
	if !shape.Drawable() {
		return ErrNotDrawable
	}
	w.mu.Lock()
	defer w.mu.Unlock()

	h, ok := w.Layer.Get(layerID)
	if !ok {
		return drawing.ErrHandleNotFound
	}
	added := shape.Points()
	if old, err := h.ToGeometry(); err == nil {
		added -= old.Points()
	}
	if !tier.CanAddPoints(w.projectedLocked(), added, t) {
		return ErrPointLimit
	}
	if err := w.Layer.Edit(layerID, shape); err != nil {
		return err
	}
	w.Reconciler.OnEdited()
	return nil
}

// Remove deletes a shape and rebuilds.
func (w *Workspace) Remove(layerID string) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if err := w.Layer.Remove(layerID); err != nil {
		return err
	}
	w.Reconciler.OnDeleted()
	return nil
}

// Click forwards a click on a shape to its listener.
func (w *Workspace) Click(layerID string) error {
	return w.Layer.Click(layerID)
}

// Selected returns the current selection.
func (w *Workspace) Selected() (drawing.SelectedFeature, bool) {
	return w.Selection.Current()
}

// Close stops pending rebuilds.
func (w *Workspace) Close() {
	w.Reconciler.Close()
}

// projectedLocked is the collection as it will look once pending create
// rebuilds have run.
func (w *Workspace) projectedLocked() []geo.Feature {
	features := w.Collection.Ingested()
	for _, h := range w.Layer.Handles() {
		shape, err := h.ToGeometry()
		if err != nil {
			continue
		}
		id, _ := h.StableID()
		features = append(features, shape.Features(id)...)
	}
	return features
}
