package geo

import "sync"

// Counts summarizes a collection by geometry type.
type Counts struct {
	Total    int `json:"total"`
	Points   int `json:"points"`
	Lines    int `json:"lines"`
	Polygons int `json:"polygons"`
}

// Collection is the ordered, session-scoped set of features currently on the map.
//
// It has two partitions. Drawn features are written only by the reconciler,
// always as a full replace. Ingested features are written only by ingestion,
// always as an append, and stay until the session ends. Each write swaps the
// slices under the lock, so readers see either the old or the new state,
// never a partial one.
type Collection struct {
	mu       sync.RWMutex
	drawn    []Feature
	ingested []Feature
}

// NewCollection creates an empty collection.
func NewCollection() *Collection {
	return &Collection{drawn: []Feature{}, ingested: []Feature{}}
}

// Replace swaps the drawn partition for features.
func (c *Collection) Replace(features []Feature) {
	next := make([]Feature, len(features))
	copy(next, features)
	c.mu.Lock()
	c.drawn = next
	c.mu.Unlock()
}

// Append adds ingested features and returns the new total length.
func (c *Collection) Append(features ...Feature) int {
	c.mu.Lock()
	defer c.mu.Unlock()
	next := make([]Feature, 0, len(c.ingested)+len(features))
	next = append(next, c.ingested...)
	next = append(next, features...)
	c.ingested = next
	return len(c.drawn) + len(next)
}

// Snapshot returns drawn features followed by ingested ones. The returned
// slice is not shared with the collection.
func (c *Collection) Snapshot() []Feature {
	c.mu.RLock()
	defer c.mu.RUnlock()
	out := make([]Feature, 0, len(c.drawn)+len(c.ingested))
	out = append(out, c.drawn...)
	return append(out, c.ingested...)
}

// Ingested returns only the appended partition.
func (c *Collection) Ingested() []Feature {
	c.mu.RLock()
	defer c.mu.RUnlock()
	out := make([]Feature, len(c.ingested))
	copy(out, c.ingested)
	return out
}

// Len returns the number of features.
func (c *Collection) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.drawn) + len(c.ingested)
}

// Find looks a feature up by id.
func (c *Collection) Find(id string) (Feature, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	for _, part := range [][]Feature{c.drawn, c.ingested} {
		for _, f := range part {
			if f.ID == id {
				return f, true
			}
		}
	}
	return Feature{}, false
}

// Counts returns the per-type summary of the collection.
func (c *Collection) Counts() Counts {
	return CountFeatures(c.Snapshot())
}

// CountFeatures summarizes features by geometry type.
func CountFeatures(features []Feature) Counts {
	counts := Counts{Total: len(features)}
	for _, f := range features {
		switch f.Type() {
		case TypePoint:
			counts.Points++
		case TypeLineString:
			counts.Lines++
		case TypePolygon:
			counts.Polygons++
		}
	}
	return counts
}
