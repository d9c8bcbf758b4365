package search

import (
	"context"
	"sync"

	"github.com/rs/zerolog/log"
)

// Service is the facade that tries the search engine first and falls back to
// Postgres FTS.
type Service struct {
	engine   Engine
	fallback Searcher
	loader   RecordLoader
	pending  sync.WaitGroup
}

// NewService creates a search service. engine may be nil if Meilisearch is
// not configured; loader may be nil to disable reindexing.
func NewService(engine Engine, fallback Searcher, loader RecordLoader) *Service {
	return &Service{engine: engine, fallback: fallback, loader: loader}
}

func (s *Service) engineReady() bool {
	return s.engine != nil && s.engine.Healthy()
}

// Search tries the engine if healthy, otherwise falls back to FTS. It never
// fails; errors yield an empty response.
func (s *Service) Search(ctx context.Context, q Query) Response {
	if s.engineReady() {
		results, total, err := s.engine.Search(ctx, q)
		if err == nil {
			return Response{Results: nonNil(results), Total: total, Query: q.Text}
		}
		log.Warn().Err(err).Msg("Search engine error, falling back to Postgres FTS")
	}

	if s.fallback == nil {
		return Response{Results: []Result{}, Query: q.Text}
	}
	results, total, err := s.fallback.Search(ctx, q)
	if err != nil {
		log.Error().Err(err).Msg("Postgres FTS error")
		return Response{Results: []Result{}, Total: 0, Query: q.Text}
	}
	return Response{Results: nonNil(results), Total: total, Query: q.Text}
}

// IndexComment indexes a comment (fire-and-forget).
func (s *Service) IndexComment(c CommentRecord) {
	if !s.engineReady() {
		return
	}
	s.pending.Add(1)
	go func() {
		defer s.pending.Done()
		if err := s.engine.IndexComment(c); err != nil {
			log.Warn().Err(err).Str("comment_id", c.ID).Msg("Index comment failed")
		}
	}()
}

// DeleteComment removes a comment from the index (fire-and-forget).
func (s *Service) DeleteComment(id string) {
	if !s.engineReady() {
		return
	}
	s.pending.Add(1)
	go func() {
		defer s.pending.Done()
		if err := s.engine.DeleteComment(id); err != nil {
			log.Warn().Err(err).Str("comment_id", id).Msg("Delete comment from index failed")
		}
	}()
}

// ReindexAll reads every comment from the loader and pushes it to the engine.
func (s *Service) ReindexAll(ctx context.Context) {
	if !s.engineReady() || s.loader == nil {
		return
	}
	records, err := s.loader.LoadAllRecords(ctx)
	if err != nil {
		log.Error().Err(err).Msg("Reindex load failed")
		return
	}
	if err := s.engine.IndexComments(records); err != nil {
		log.Error().Err(err).Int("count", len(records)).Msg("Reindex comments failed")
		return
	}
	log.Info().Int("count", len(records)).Msg("Reindexed comments")
}

// Wait blocks until in-flight index writes have finished.
func (s *Service) Wait() {
	s.pending.Wait()
}

func nonNil(r []Result) []Result {
	if r == nil {
		return []Result{}
	}
	return r
}
