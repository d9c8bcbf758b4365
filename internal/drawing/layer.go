package drawing

import (
	"errors"
	"strconv"
	"sync"
)

// ErrHandleNotFound is returned when a layer id does not name a shape on the layer.
var ErrHandleNotFound = errors.New("drawing handle not found")

// MemoryLayer is the server-side mirror of a client drawing layer. Shapes
// are stamped with increasing numeric ids the way the browser map library
// stamps its layers.
type MemoryLayer struct {
	mu      sync.RWMutex
	nextID  int64
	handles []*MemoryHandle
}

// NewMemoryLayer creates an empty layer.
func NewMemoryLayer() *MemoryLayer {
	return &MemoryLayer{}
}

// Add puts a new shape on the layer and returns its handle.
func (l *MemoryLayer) Add(shape Shape) *MemoryHandle {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.nextID++
	h := &MemoryHandle{id: strconv.FormatInt(l.nextID, 10), shape: shape}
	l.handles = append(l.handles, h)
	return h
}

// Edit replaces the shape of an existing handle.
func (l *MemoryLayer) Edit(id string, shape Shape) error {
	h, ok := l.Get(id)
	if !ok {
		return ErrHandleNotFound
	}
	h.mu.Lock()
	h.shape = shape
	h.mu.Unlock()
	return nil
}

// Remove takes a shape off the layer and detaches its listeners.
func (l *MemoryLayer) Remove(id string) error {
	l.mu.Lock()
	var removed *MemoryHandle
	for i, h := range l.handles {
		if h.id == id {
			removed = h
			l.handles = append(l.handles[:i:i], l.handles[i+1:]...)
			break
		}
	}
	l.mu.Unlock()
	if removed == nil {
		return ErrHandleNotFound
	}
	removed.OffClick()
	return nil
}

// Get looks a handle up by id.
func (l *MemoryLayer) Get(id string) (*MemoryHandle, bool) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	for _, h := range l.handles {
		if h.id == id {
			return h, true
		}
	}
	return nil, false
}

// Click fires the click listener of a handle, if one is attached.
func (l *MemoryLayer) Click(id string) error {
	h, ok := l.Get(id)
	if !ok {
		return ErrHandleNotFound
	}
	h.fire()
	return nil
}

// Handles implements Layer.
func (l *MemoryLayer) Handles() []Handle {
	l.mu.RLock()
	defer l.mu.RUnlock()
	out := make([]Handle, len(l.handles))
	for i, h := range l.handles {
		out[i] = h
	}
	return out
}

// Len returns the number of shapes on the layer.
func (l *MemoryLayer) Len() int {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return len(l.handles)
}

// MemoryHandle is a shape held by a MemoryLayer.
type MemoryHandle struct {
	mu       sync.Mutex
	id       string
	shape    Shape
	listener func()
}

// ID returns the layer id.
func (h *MemoryHandle) ID() string {
	return h.id
}

// StableID implements Handle.
func (h *MemoryHandle) StableID() (string, bool) {
	return h.id, h.id != ""
}

// ToGeometry implements Handle.
func (h *MemoryHandle) ToGeometry() (Shape, error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if !h.shape.Group && h.shape.Feature.Geometry == nil {
		return Shape{}, errors.New("shape has no geometry")
	}
	shape := Shape{Group: h.shape.Group, Feature: h.shape.Feature.Clone()}
	for _, m := range h.shape.Members {
		shape.Members = append(shape.Members, m.Clone())
	}
	return shape, nil
}

// OnClick implements Handle.
func (h *MemoryHandle) OnClick(fn func()) {
	h.mu.Lock()
	h.listener = fn
	h.mu.Unlock()
}

// OffClick implements Handle.
func (h *MemoryHandle) OffClick() {
	h.mu.Lock()
	h.listener = nil
	h.mu.Unlock()
}

func (h *MemoryHandle) fire() {
	h.mu.Lock()
	fn := h.listener
	h.mu.Unlock()
	if fn != nil {
		fn()
	}
}
