package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"mapchat/api/internal/tier"
)

// ErrNotFound is returned when a row addressed by id does not exist.
var ErrNotFound = errors.New("not found")

type PostgresStore struct {
	db *sql.DB
}

func NewPostgresStore(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

func (s *PostgresStore) DB() *sql.DB {
	return s.db
}

func (s *PostgresStore) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// SubscriptionTier implements tier.Lookup.
func (s *PostgresStore) SubscriptionTier(ctx context.Context, userID string) (string, error) {
	var raw string
	err := s.db.QueryRowContext(ctx, `SELECT tier FROM user_subscriptions WHERE user_id=$1`, userID).Scan(&raw)
	if errors.Is(err, sql.ErrNoRows) {
		return "", tier.ErrNoSubscription
	}
	if err != nil {
		return "", fmt.Errorf("lookup subscription: %w", err)
	}
	return raw, nil
}

func (s *PostgresStore) UpsertSubscription(ctx context.Context, userID, tierName string) (Subscription, error) {
	var sub Subscription
	err := s.db.QueryRowContext(ctx, `
		INSERT INTO user_subscriptions (user_id, tier)
		VALUES ($1, $2)
		ON CONFLICT (user_id) DO UPDATE SET tier = EXCLUDED.tier, updated_at = NOW()
		RETURNING user_id, tier, created_at, updated_at
	`, userID, tierName).Scan(&sub.UserID, &sub.Tier, &sub.CreatedAt, &sub.UpdatedAt)
	if err != nil {
		return Subscription{}, fmt.Errorf("upsert subscription: %w", err)
	}
	return sub, nil
}

const commentColumns = `id, feature_id, comment_text, user_id, feature_coordinates, feature_geometry,
	sentiment_category, sentiment_confidence, created_at, updated_at`

func (s *PostgresStore) InsertComment(ctx context.Context, in NewComment) (Comment, error) {
	row := s.db.QueryRowContext(ctx, `
		INSERT INTO feature_comments (id, feature_id, comment_text, user_id, feature_coordinates, feature_geometry)
		VALUES ($1, $2, $3, $4, $5, $6)
		RETURNING `+commentColumns,
		in.ID, in.FeatureID, in.Text, in.UserID, nullableJSON(in.FeatureCoordinates), nullableJSON(in.FeatureGeometry),
	)
	comment, err := scanComment(row)
	if err != nil {
		return Comment{}, fmt.Errorf("insert comment: %w", err)
	}
	return comment, nil
}

// ListComments returns the comments on one feature, newest first.
func (s *PostgresStore) ListComments(ctx context.Context, featureID string) ([]Comment, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT `+commentColumns+`
		FROM feature_comments
		WHERE feature_id = $1
		ORDER BY created_at DESC, id DESC
	`, featureID)
	if err != nil {
		return nil, fmt.Errorf("list comments: %w", err)
	}
	return collectComments(rows)
}

// ListAllComments returns every comment, newest first.
func (s *PostgresStore) ListAllComments(ctx context.Context) ([]Comment, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT `+commentColumns+`
		FROM feature_comments
		ORDER BY created_at DESC, id DESC
	`)
	if err != nil {
		return nil, fmt.Errorf("list all comments: %w", err)
	}
	return collectComments(rows)
}

func (s *PostgresStore) UpdateCommentSentiment(ctx context.Context, id, category string, confidence float64) error {
	res, err := s.db.ExecContext(ctx, `
		UPDATE feature_comments
		SET sentiment_category = $2, sentiment_confidence = $3, updated_at = NOW()
		WHERE id = $1
	`, id, category, confidence)
	if err != nil {
		return fmt.Errorf("update comment sentiment: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("update comment sentiment: %w", err)
	}
	if affected == 0 {
		return ErrNotFound
	}
	return nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanComment(row rowScanner) (Comment, error) {
	var (
		c           Comment
		coordinates []byte
		geometry    []byte
		category    sql.NullString
		confidence  sql.NullFloat64
	)
	if err := row.Scan(&c.ID, &c.FeatureID, &c.Text, &c.UserID, &coordinates, &geometry,
		&category, &confidence, &c.CreatedAt, &c.UpdatedAt); err != nil {
		return Comment{}, err
	}
	c.FeatureCoordinates = coordinates
	c.FeatureGeometry = geometry
	if category.Valid {
		c.SentimentCategory = &category.String
	}
	if confidence.Valid {
		c.SentimentConfidence = &confidence.Float64
	}
	return c, nil
}

func collectComments(rows *sql.Rows) ([]Comment, error) {
	defer rows.Close()
	comments := make([]Comment, 0)
	for rows.Next() {
		c, err := scanComment(rows)
		if err != nil {
			return nil, fmt.Errorf("scan comment: %w", err)
		}
		comments = append(comments, c)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate comments: %w", err)
	}
	return comments, nil
}

func nullableJSON(raw []byte) any {
	if len(raw) == 0 {
		return nil
	}
	return string(raw)
}
