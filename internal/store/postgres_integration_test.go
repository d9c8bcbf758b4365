package store

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"mapchat/api/db"
	"mapchat/api/internal/tier"
)

func TestPostgresStoreCommentsAndSubscriptions(t *testing.T) {
	conn := openTestDB(t)
	ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
	defer cancel()

	require.NoError(t, resetPublicSchema(ctx, conn))
	require.NoError(t, ApplyMigrations(ctx, conn, db.Migrations()))
	s := NewPostgresStore(conn)

	_, err := s.SubscriptionTier(ctx, "nobody")
	assert.True(t, errors.Is(err, tier.ErrNoSubscription))

	_, err = s.UpsertSubscription(ctx, "u1", "pro")
	require.NoError(t, err)
	raw, err := s.SubscriptionTier(ctx, "u1")
	require.NoError(t, err)
	assert.Equal(t, "pro", raw)

	first, err := s.InsertComment(ctx, NewComment{
		ID: "c1", FeatureID: "f1", Text: "great park", UserID: "u1",
		FeatureCoordinates: json.RawMessage(`[12.5,41.9]`),
	})
	require.NoError(t, err)
	assert.Nil(t, first.SentimentCategory)
	assert.JSONEq(t, `[12.5,41.9]`, string(first.FeatureCoordinates))

	_, err = conn.ExecContext(ctx, `UPDATE feature_comments SET created_at = NOW() - interval '1 hour' WHERE id = 'c1'`)
	require.NoError(t, err)

	_, err = s.InsertComment(ctx, NewComment{ID: "c2", FeatureID: "f1", Text: "terrible parking", UserID: "u2"})
	require.NoError(t, err)

	list, err := s.ListComments(ctx, "f1")
	require.NoError(t, err)
	require.Len(t, list, 2)
	assert.Equal(t, "c2", list[0].ID)

	require.NoError(t, s.UpdateCommentSentiment(ctx, "c1", "Positive", 0.9))
	assert.ErrorIs(t, s.UpdateCommentSentiment(ctx, "missing", "Neutral", 0.5), ErrNotFound)

	all, err := s.ListAllComments(ctx)
	require.NoError(t, err)
	require.Len(t, all, 2)
	require.NotNil(t, all[1].SentimentConfidence)
	assert.InDelta(t, 0.9, *all[1].SentimentConfidence, 1e-9)
}
