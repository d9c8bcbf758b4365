// Package search indexes feature comments and answers free-text queries over
// them, preferring Meilisearch and falling back to Postgres full-text search.
package search

import "context"

// ResultType identifies the kind of entity in a search result.
type ResultType string

const ResultComment ResultType = "comment"

// Result is a single search hit returned to the caller.
type Result struct {
	Type      ResultType `json:"type"`
	ID        string     `json:"id"`
	FeatureID string     `json:"feature_id"`
	Snippet   string     `json:"snippet"`
	Sentiment string     `json:"sentiment_category,omitempty"`
}

// Query describes a search request.
type Query struct {
	Text      string
	FeatureID string // empty = all features
	Limit     int
	Offset    int
}

// Response is the envelope returned by the search endpoint.
type Response struct {
	Results []Result `json:"results"`
	Total   int      `json:"total"`
	Query   string   `json:"query"`
}

// Searcher can execute a full-text search.
type Searcher interface {
	Search(ctx context.Context, q Query) ([]Result, int, error)
	Healthy() bool
}

// Engine is a searcher that also accepts index writes.
type Engine interface {
	Searcher
	IndexComment(c CommentRecord) error
	IndexComments(cs []CommentRecord) error
	DeleteComment(id string) error
}

// RecordLoader reads every indexable record from the system of record.
type RecordLoader interface {
	LoadAllRecords(ctx context.Context) ([]CommentRecord, error)
}

// CommentRecord is the data we index for a comment.
type CommentRecord struct {
	ID        string `json:"id"`
	FeatureID string `json:"featureId"`
	Text      string `json:"text"`
	UserID    string `json:"userId"`
	Sentiment string `json:"sentiment"`
	CreatedAt int64  `json:"createdAt"`
}

const defaultLimit = 20

func normalizePage(q Query) (limit, offset int) {
	limit = q.Limit
	if limit <= 0 {
		limit = defaultLimit
	}
	offset = q.Offset
	if offset < 0 {
		offset = 0
	}
	return limit, offset
}
