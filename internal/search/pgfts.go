package search

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
)

// PgFTS implements Searcher using PostgreSQL full-text search as a fallback.
type PgFTS struct {
	db *sql.DB
}

// NewPgFTS creates a PostgreSQL FTS searcher.
func NewPgFTS(db *sql.DB) *PgFTS {
	return &PgFTS{db: db}
}

// Healthy always returns true; if Postgres is down, the whole app is down.
func (p *PgFTS) Healthy() bool {
	return true
}

// Search matches comment text with plainto_tsquery, ranks with ts_rank and
// builds snippets with ts_headline.
func (p *PgFTS) Search(ctx context.Context, q Query) ([]Result, int, error) {
	if strings.TrimSpace(q.Text) == "" {
		return nil, 0, nil
	}
	limit, offset := normalizePage(q)

	tsQuery := "plainto_tsquery('english', $1)"
	where := "c.fts @@ " + tsQuery
	args := []any{q.Text}
	if q.FeatureID != "" {
		where += " AND c.feature_id = $2"
		args = append(args, q.FeatureID)
	}

	var total int
	countSQL := "SELECT count(*) FROM feature_comments c WHERE " + where
	if err := p.db.QueryRowContext(ctx, countSQL, args...).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("pgfts count: %w", err)
	}

	dataSQL := fmt.Sprintf(`
		SELECT c.id, c.feature_id,
			ts_headline('english', c.comment_text, %s, 'MaxFragments=1,MaxWords=30,StartSel=<mark>,StopSel=</mark>') AS snippet,
			coalesce(c.sentiment_category, '')
		FROM feature_comments c
		WHERE %s
		ORDER BY ts_rank(c.fts, %s) DESC, c.created_at DESC
		LIMIT %d OFFSET %d`, tsQuery, where, tsQuery, limit, offset)

	rows, err := p.db.QueryContext(ctx, dataSQL, args...)
	if err != nil {
		return nil, 0, fmt.Errorf("pgfts query: %w", err)
	}
	defer rows.Close()

	var results []Result
	for rows.Next() {
		r := Result{Type: ResultComment}
		if err := rows.Scan(&r.ID, &r.FeatureID, &r.Snippet, &r.Sentiment); err != nil {
			return nil, 0, fmt.Errorf("pgfts scan: %w", err)
		}
		results = append(results, r)
	}

	return results, total, rows.Err()
}

// LoadAllRecords returns all comments for full reindexing.
func (p *PgFTS) LoadAllRecords(ctx context.Context) ([]CommentRecord, error) {
	rows, err := p.db.QueryContext(ctx, `
		SELECT id, feature_id, comment_text, user_id, coalesce(sentiment_category, ''),
			(extract(epoch FROM created_at) * 1000)::bigint
		FROM feature_comments
	`)
	if err != nil {
		return nil, fmt.Errorf("load comments: %w", err)
	}
	defer rows.Close()

	records := make([]CommentRecord, 0)
	for rows.Next() {
		var c CommentRecord
		if err := rows.Scan(&c.ID, &c.FeatureID, &c.Text, &c.UserID, &c.Sentiment, &c.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan comment: %w", err)
		}
		records = append(records, c)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate comments: %w", err)
	}
	return records, nil
}
