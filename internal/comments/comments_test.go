package comments

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"mapchat/api/internal/search"
	"mapchat/api/internal/sentiment"
	"mapchat/api/internal/store"
	"mapchat/api/internal/tier"
)

type fakeStore struct {
	mu       sync.Mutex
	inserted []store.NewComment
	updates  map[string]sentiment.Result

	listFn    func(featureID string) ([]store.Comment, error)
	listAllFn func() ([]store.Comment, error)
	insertErr error
}

func (f *fakeStore) InsertComment(_ context.Context, in store.NewComment) (store.Comment, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.insertErr != nil {
		return store.Comment{}, f.insertErr
	}
	f.inserted = append(f.inserted, in)
	now := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	return store.Comment{
		ID: in.ID, FeatureID: in.FeatureID, Text: in.Text, UserID: in.UserID,
		FeatureCoordinates: in.FeatureCoordinates, CreatedAt: now, UpdatedAt: now,
	}, nil
}

func (f *fakeStore) ListComments(_ context.Context, featureID string) ([]store.Comment, error) {
	return f.listFn(featureID)
}

func (f *fakeStore) ListAllComments(context.Context) ([]store.Comment, error) {
	return f.listAllFn()
}

func (f *fakeStore) UpdateCommentSentiment(_ context.Context, id, category string, confidence float64) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.updates == nil {
		f.updates = map[string]sentiment.Result{}
	}
	f.updates[id] = sentiment.Result{Category: sentiment.Category(category), Confidence: confidence}
	return nil
}

type analyzerFunc func(ctx context.Context, text string) (sentiment.Result, error)

func (fn analyzerFunc) Analyze(ctx context.Context, text string) (sentiment.Result, error) {
	return fn(ctx, text)
}

type recordingIndex struct {
	mu      sync.Mutex
	records []search.CommentRecord
}

func (r *recordingIndex) IndexComment(c search.CommentRecord) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.records = append(r.records, c)
}

func validInput() CreateInput {
	return CreateInput{
		FeatureID:          "14.1",
		Text:               "Great spot for a bench",
		FeatureCoordinates: json.RawMessage(`[12.5,41.9]`),
	}
}

func TestCreateRequiresUser(t *testing.T) {
	svc := NewService(Options{Store: &fakeStore{}})
	_, _, err := svc.Create(context.Background(), "", validInput())
	assert.ErrorIs(t, err, ErrUnauthenticated)
}

func TestCreateValidatesInput(t *testing.T) {
	svc := NewService(Options{Store: &fakeStore{}})

	tests := []struct {
		name    string
		mutate  func(*CreateInput)
		message string
	}{
		{"missing text", func(in *CreateInput) { in.Text = "" }, "comment_text and feature_id are required"},
		{"blank text", func(in *CreateInput) { in.Text = "   " }, "comment_text and feature_id are required"},
		{"missing feature", func(in *CreateInput) { in.FeatureID = "" }, "comment_text and feature_id are required"},
		{"too long", func(in *CreateInput) { in.Text = strings.Repeat("a", MaxTextLength+1) }, "comment_text must be at most 4000 characters"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			in := validInput()
			tt.mutate(&in)
			_, _, err := svc.Create(context.Background(), "u1", in)
			require.ErrorIs(t, err, ErrInvalid)
			assert.Contains(t, err.Error(), tt.message)
		})
	}
}

func TestValidatorKnowsNotBlank(t *testing.T) {
	v := newValidator()
	assert.Error(t, v.Var(" \t ", "notblank"))
	assert.NoError(t, v.Var("hi", "notblank"))
}

func TestCreateFreeUserSkipsSentiment(t *testing.T) {
	st := &fakeStore{}
	called := false
	index := &recordingIndex{}
	svc := NewService(Options{
		Store: st,
		Tiers: tier.Static(tier.Free),
		Analyzer: analyzerFunc(func(context.Context, string) (sentiment.Result, error) {
			called = true
			return sentiment.Result{}, nil
		}),
		Index: index,
	})

	c, got, err := svc.Create(context.Background(), "u1", validInput())
	require.NoError(t, err)
	svc.Wait()

	assert.Equal(t, tier.Free, got)
	assert.False(t, called)
	assert.NotEmpty(t, c.ID)
	assert.Equal(t, "u1", c.UserID)
	assert.JSONEq(t, `[12.5,41.9]`, string(c.FeatureCoordinates))
	require.Len(t, index.records, 1)
	assert.Equal(t, "14.1", index.records[0].FeatureID)

	title, description := Notice(got)
	assert.Equal(t, "Comment added", title)
	assert.Equal(t, "Comment saved successfully", description)
}

func TestCreateProUserAnalyzesInBackground(t *testing.T) {
	st := &fakeStore{}
	release := make(chan struct{})
	var observed []sentiment.Result
	index := &recordingIndex{}
	svc := NewService(Options{
		Store: st,
		Tiers: tier.Static(tier.Pro),
		Analyzer: analyzerFunc(func(_ context.Context, text string) (sentiment.Result, error) {
			<-release
			return sentiment.Keywords(text), nil
		}),
		Index:      index,
		OnAnalyzed: func(r sentiment.Result, err error) { observed = append(observed, r) },
	})

	c, got, err := svc.Create(context.Background(), "u1", validInput())
	require.NoError(t, err, "create must not wait for the analyzer")
	assert.Equal(t, tier.Pro, got)

	close(release)
	svc.Wait()

	assert.Equal(t, sentiment.Result{Category: sentiment.Positive, Confidence: 0.7}, st.updates[c.ID])
	require.Len(t, observed, 1)
	require.Len(t, index.records, 2)
	assert.Equal(t, "Positive", index.records[1].Sentiment)

	_, description := Notice(got)
	assert.Equal(t, "Sentiment analysis will be processed shortly", description)
}

func TestCreateSurvivesAnalyzerFailure(t *testing.T) {
	st := &fakeStore{}
	svc := NewService(Options{
		Store: st,
		Tiers: tier.Static(tier.Pro),
		Analyzer: analyzerFunc(func(context.Context, string) (sentiment.Result, error) {
			return sentiment.Result{}, errors.New("upstream down")
		}),
	})

	_, _, err := svc.Create(context.Background(), "u1", validInput())
	require.NoError(t, err)
	svc.Wait()
	assert.Empty(t, st.updates)
}

func TestCreatePropagatesStoreError(t *testing.T) {
	svc := NewService(Options{Store: &fakeStore{insertErr: errors.New("db down")}})
	_, _, err := svc.Create(context.Background(), "u1", validInput())
	assert.EqualError(t, err, "db down")
}

func TestListRequiresFeatureID(t *testing.T) {
	svc := NewService(Options{Store: &fakeStore{}})
	_, err := svc.List(context.Background(), " ")
	assert.ErrorIs(t, err, ErrFeatureRequired)
}

func TestListMapsRows(t *testing.T) {
	category := "Negative"
	st := &fakeStore{listFn: func(featureID string) ([]store.Comment, error) {
		return []store.Comment{
			{ID: "c2", FeatureID: featureID, Text: "newer", SentimentCategory: &category},
			{ID: "c1", FeatureID: featureID, Text: "older"},
		}, nil
	}}
	svc := NewService(Options{Store: st})

	got, err := svc.List(context.Background(), "f1")
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, "c2", got[0].ID)
	require.NotNil(t, got[0].SentimentCategory)
	assert.Nil(t, got[1].SentimentCategory)

	data, err := json.Marshal(got[1])
	require.NoError(t, err)
	assert.Contains(t, string(data), `"sentiment_category":null`)
}

func TestListAllCommentsForExport(t *testing.T) {
	category := "Positive"
	confidence := 0.8
	st := &fakeStore{listAllFn: func() ([]store.Comment, error) {
		return []store.Comment{
			{ID: "c1", FeatureID: "f1", Text: "nice", UserID: "u1", SentimentCategory: &category, SentimentConfidence: &confidence},
			{ID: "c0", FeatureID: "f2", Text: "meh", UserID: "u2"},
		}, nil
	}}
	svc := NewService(Options{Store: st})

	records, err := svc.ListAllComments(context.Background())
	require.NoError(t, err)
	require.Len(t, records, 2)
	assert.Equal(t, "Positive", records[0].SentimentCategory)
	assert.Equal(t, &confidence, records[0].SentimentConfidence)
	assert.Equal(t, "", records[1].SentimentCategory)
	assert.Nil(t, records[1].SentimentConfidence)
}
