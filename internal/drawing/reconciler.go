package drawing

import (
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog/log"

	"mapchat/api/internal/geo"
)

// DefaultCreateDelay is how long a create event waits before rebuilding when
// the handle cannot signal that it is ready.
const DefaultCreateDelay = 100 * time.Millisecond

// Options configures a Reconciler.
type Options struct {
	CreateDelay time.Duration
	// Now is the clock used for fallback identifiers.
	Now func() time.Time
	// OnRebuild, if set, is called with the new collection after every rebuild.
	OnRebuild func([]geo.Feature)
}

// Reconciler derives the canonical collection from the drawing layer.
// Every structural change triggers a full rebuild; nothing is patched
// incrementally.
type Reconciler struct {
	layer      Layer
	collection *geo.Collection
	selection  *Selection
	opts       Options

	mu       sync.Mutex
	assigned map[Handle]string
	pending  *time.Timer
	closed   bool
	done     chan struct{}
}

// NewReconciler creates a reconciler writing into collection and selection.
func NewReconciler(layer Layer, collection *geo.Collection, selection *Selection, opts Options) *Reconciler {
	if opts.CreateDelay <= 0 {
		opts.CreateDelay = DefaultCreateDelay
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	return &Reconciler{
		layer:      layer,
		collection: collection,
		selection:  selection,
		opts:       opts,
		assigned:   map[Handle]string{},
		done:       make(chan struct{}),
	}
}

// Rebuild enumerates every handle, converts and flattens it, replaces the
// collection and re-wires exactly one click listener per handle. Handles
// whose conversion fails are skipped.
func (r *Reconciler) Rebuild() []geo.Feature {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.rebuildLocked()
}

func (r *Reconciler) rebuildLocked() []geo.Feature {
	handles := r.layer.Handles()
	features := make([]geo.Feature, 0, len(handles))
	live := make(map[Handle]struct{}, len(handles))
	keep := make(map[string]struct{}, len(handles))

	for _, h := range handles {
		live[h] = struct{}{}
		id := r.identifyLocked(h)
		keep[id] = struct{}{}

		shape, err := h.ToGeometry()
		if err != nil {
			log.Warn().Err(err).Str("handle", id).Msg("Skipping drawing handle: geometry conversion failed")
		} else {
			for _, f := range shape.Features(id) {
				keep[f.ID] = struct{}{}
				features = append(features, f)
			}
		}

		h.OffClick()
		h.OnClick(r.clickListener(h))
	}

	for h := range r.assigned {
		if _, ok := live[h]; !ok {
			delete(r.assigned, h)
		}
	}

	r.collection.Replace(features)
	r.selection.retain(keep)
	if r.opts.OnRebuild != nil {
		r.opts.OnRebuild(features)
	}
	return features
}

// identifyLocked returns the handle's stable id, or a remembered fallback of
// the form feature_<unix millis>.
func (r *Reconciler) identifyLocked(h Handle) string {
	if id, ok := h.StableID(); ok && id != "" {
		return id
	}
	if id, ok := r.assigned[h]; ok {
		return id
	}
	base := fmt.Sprintf("feature_%d", r.opts.Now().UnixMilli())
	id := base
	for n := 2; r.idTakenLocked(id); n++ {
		id = fmt.Sprintf("%s_%d", base, n)
	}
	r.assigned[h] = id
	return id
}

func (r *Reconciler) idTakenLocked(id string) bool {
	for _, assigned := range r.assigned {
		if assigned == id {
			return true
		}
	}
	return false
}

func (r *Reconciler) clickListener(h Handle) func() {
	return func() {
		r.Select(h)
	}
}

// Select makes h the selected feature. The geometry is read from the handle
// at click time.
func (r *Reconciler) Select(h Handle) {
	r.mu.Lock()
	id := r.identifyLocked(h)
	r.mu.Unlock()

	shape, err := h.ToGeometry()
	if err != nil {
		log.Warn().Err(err).Str("handle", id).Msg("Selected handle has no geometry")
		r.selection.Set(newSelectedFeature(id, nil))
		return
	}
	r.selection.Set(newSelectedFeature(id, shape.Geometry()))
}

// OnCreated schedules a rebuild for a newly drawn handle. Handles that
// implement ReadyNotifier rebuild as soon as they report ready; all others
// wait CreateDelay. Consecutive create events collapse into one rebuild.
func (r *Reconciler) OnCreated(h Handle) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.closed {
		return
	}

	if notifier, ok := h.(ReadyNotifier); ok {
		ready := notifier.Ready()
		go func() {
			select {
			case <-ready:
				r.rebuildIfOpen()
			case <-r.done:
			}
		}()
		return
	}

	if r.pending != nil {
		r.pending.Stop()
	}
	r.pending = time.AfterFunc(r.opts.CreateDelay, r.rebuildIfOpen)
}

// OnEdited rebuilds synchronously.
func (r *Reconciler) OnEdited() []geo.Feature {
	return r.Rebuild()
}

// OnDeleted rebuilds synchronously.
func (r *Reconciler) OnDeleted() []geo.Feature {
	return r.Rebuild()
}

func (r *Reconciler) rebuildIfOpen() {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.closed {
		return
	}
	r.pending = nil
	r.rebuildLocked()
}

// Close cancels pending create rebuilds. Later events are ignored.
func (r *Reconciler) Close() {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.closed {
		return
	}
	r.closed = true
	if r.pending != nil {
		r.pending.Stop()
		r.pending = nil
	}
	close(r.done)
}
