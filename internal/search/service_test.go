package search

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeEngine struct {
	healthy  bool
	searchFn func(q Query) ([]Result, int, error)

	mu      sync.Mutex
	indexed []CommentRecord
	deleted []string
}

func (f *fakeEngine) Healthy() bool { return f.healthy }

func (f *fakeEngine) Search(_ context.Context, q Query) ([]Result, int, error) {
	return f.searchFn(q)
}

func (f *fakeEngine) IndexComment(c CommentRecord) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.indexed = append(f.indexed, c)
	return nil
}

func (f *fakeEngine) IndexComments(cs []CommentRecord) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.indexed = append(f.indexed, cs...)
	return nil
}

func (f *fakeEngine) DeleteComment(id string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.deleted = append(f.deleted, id)
	return nil
}

type fakeSearcher struct {
	calls   int
	results []Result
	err     error
}

func (f *fakeSearcher) Healthy() bool { return true }

func (f *fakeSearcher) Search(context.Context, Query) ([]Result, int, error) {
	f.calls++
	return f.results, len(f.results), f.err
}

type fakeLoader struct{ records []CommentRecord }

func (f fakeLoader) LoadAllRecords(context.Context) ([]CommentRecord, error) {
	return f.records, nil
}

func TestSearchPrefersHealthyEngine(t *testing.T) {
	engine := &fakeEngine{healthy: true, searchFn: func(q Query) ([]Result, int, error) {
		return []Result{{Type: ResultComment, ID: "c1", FeatureID: q.FeatureID}}, 1, nil
	}}
	fallback := &fakeSearcher{}
	svc := NewService(engine, fallback, nil)

	resp := svc.Search(context.Background(), Query{Text: "park", FeatureID: "f1"})
	require.Len(t, resp.Results, 1)
	assert.Equal(t, "f1", resp.Results[0].FeatureID)
	assert.Equal(t, "park", resp.Query)
	assert.Zero(t, fallback.calls)
}

func TestSearchFallsBackOnEngineError(t *testing.T) {
	engine := &fakeEngine{healthy: true, searchFn: func(Query) ([]Result, int, error) {
		return nil, 0, errors.New("boom")
	}}
	fallback := &fakeSearcher{results: []Result{{Type: ResultComment, ID: "c2"}}}
	svc := NewService(engine, fallback, nil)

	resp := svc.Search(context.Background(), Query{Text: "park"})
	assert.Equal(t, 1, fallback.calls)
	assert.Equal(t, 1, resp.Total)
}

func TestSearchSkipsUnhealthyEngineAndNeverFails(t *testing.T) {
	engine := &fakeEngine{healthy: false}
	fallback := &fakeSearcher{err: errors.New("db down")}
	svc := NewService(engine, fallback, nil)

	resp := svc.Search(context.Background(), Query{Text: "park"})
	assert.NotNil(t, resp.Results)
	assert.Empty(t, resp.Results)
	assert.Equal(t, 1, fallback.calls)
}

func TestIndexingIsFireAndForget(t *testing.T) {
	engine := &fakeEngine{healthy: true}
	svc := NewService(engine, nil, nil)

	svc.IndexComment(CommentRecord{ID: "c1", Text: "nice"})
	svc.DeleteComment("c0")
	svc.Wait()

	assert.Len(t, engine.indexed, 1)
	assert.Equal(t, []string{"c0"}, engine.deleted)

	down := &fakeEngine{healthy: false}
	NewService(down, nil, nil).IndexComment(CommentRecord{ID: "c1"})
	assert.Empty(t, down.indexed)
}

func TestReindexAll(t *testing.T) {
	engine := &fakeEngine{healthy: true}
	svc := NewService(engine, nil, fakeLoader{records: []CommentRecord{{ID: "a"}, {ID: "b"}}})
	svc.ReindexAll(context.Background())
	assert.Len(t, engine.indexed, 2)
}
