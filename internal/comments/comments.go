// Package comments stores discussion threads attached to map features and
// schedules sentiment analysis for pro users.
package comments

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/rs/zerolog/log"

	"mapchat/api/internal/export"
	"mapchat/api/internal/search"
	"mapchat/api/internal/sentiment"
	"mapchat/api/internal/store"
	"mapchat/api/internal/tier"
	"mapchat/api/internal/util"
)

var (
	ErrUnauthenticated = errors.New("authentication required")
	ErrFeatureRequired = errors.New("feature_id is required")
	ErrInvalid         = errors.New("invalid comment")
)

const MaxTextLength = 4000

// Comment is the API shape of a stored comment.
type Comment struct {
	ID                  string          `json:"id"`
	FeatureID           string          `json:"feature_id"`
	Text                string          `json:"comment_text"`
	UserID              string          `json:"user_id"`
	FeatureCoordinates  json.RawMessage `json:"feature_coordinates"`
	FeatureGeometry     json.RawMessage `json:"feature_geometry"`
	SentimentCategory   *string         `json:"sentiment_category"`
	SentimentConfidence *float64        `json:"sentiment_confidence"`
	CreatedAt           time.Time       `json:"created_at"`
	UpdatedAt           time.Time       `json:"updated_at"`
}

// CreateInput is the body of a create request.
type CreateInput struct {
	FeatureID          string          `json:"feature_id" validate:"required,notblank,max=256"`
	Text               string          `json:"comment_text" validate:"required,notblank,max=4000"`
	FeatureCoordinates json.RawMessage `json:"feature_coordinates"`
	FeatureGeometry    json.RawMessage `json:"feature_geometry"`
}

// Store persists comments.
type Store interface {
	InsertComment(ctx context.Context, in store.NewComment) (store.Comment, error)
	ListComments(ctx context.Context, featureID string) ([]store.Comment, error)
	ListAllComments(ctx context.Context) ([]store.Comment, error)
	UpdateCommentSentiment(ctx context.Context, id, category string, confidence float64) error
}

// Indexer receives comments for free-text search.
type Indexer interface {
	IndexComment(c search.CommentRecord)
}

type Options struct {
	Store    Store
	Tiers    tier.Resolver
	Analyzer sentiment.Analyzer
	Index    Indexer
	// AnalysisTimeout bounds one background sentiment call.
	AnalysisTimeout time.Duration
	// OnAnalyzed observes every finished background analysis.
	OnAnalyzed func(sentiment.Result, error)
}

type Service struct {
	store    Store
	tiers    tier.Resolver
	analyzer sentiment.Analyzer
	index    Indexer
	timeout  time.Duration
	observe  func(sentiment.Result, error)
	validate *validator.Validate
	pending  sync.WaitGroup
}

func NewService(opts Options) *Service {
	if opts.Tiers == nil {
		opts.Tiers = tier.Static(tier.Free)
	}
	if opts.AnalysisTimeout <= 0 {
		opts.AnalysisTimeout = 30 * time.Second
	}
	return &Service{
		store:    opts.Store,
		tiers:    opts.Tiers,
		analyzer: opts.Analyzer,
		index:    opts.Index,
		timeout:  opts.AnalysisTimeout,
		observe:  opts.OnAnalyzed,
		validate: newValidator(),
	}
}

// newValidator panics when a custom tag cannot be registered; every later
// Struct call would fail on the unknown tag otherwise.
func newValidator() *validator.Validate {
	v := validator.New()
	if err := v.RegisterValidation("notblank", notBlank); err != nil {
		panic(fmt.Sprintf("comments: register notblank validation: %v", err))
	}
	return v
}

func notBlank(fl validator.FieldLevel) bool {
	return strings.TrimSpace(fl.Field().String()) != ""
}

// List returns the comments on a feature, newest first.
func (s *Service) List(ctx context.Context, featureID string) ([]Comment, error) {
	if strings.TrimSpace(featureID) == "" {
		return nil, ErrFeatureRequired
	}
	rows, err := s.store.ListComments(ctx, featureID)
	if err != nil {
		return nil, err
	}
	out := make([]Comment, 0, len(rows))
	for _, row := range rows {
		out = append(out, fromStore(row))
	}
	return out, nil
}

// Create stores a comment for userID and, for tiers allowed to, schedules a
// sentiment analysis that never blocks or fails the create. The resolved
// tier is returned so callers can pick the confirmation text.
func (s *Service) Create(ctx context.Context, userID string, in CreateInput) (Comment, tier.Tier, error) {
	if userID == "" {
		return Comment{}, tier.Free, ErrUnauthenticated
	}
	if err := s.validate.Struct(in); err != nil {
		return Comment{}, tier.Free, validationError(err)
	}

	row, err := s.store.InsertComment(ctx, store.NewComment{
		ID:                 util.NewID(""),
		FeatureID:          in.FeatureID,
		Text:               in.Text,
		UserID:             userID,
		FeatureCoordinates: in.FeatureCoordinates,
		FeatureGeometry:    in.FeatureGeometry,
	})
	if err != nil {
		return Comment{}, tier.Free, err
	}
	comment := fromStore(row)
	s.indexComment(comment)

	t := s.tiers.Resolve(ctx, userID)
	if tier.Can(t, tier.ActionSentiment) && s.analyzer != nil {
		s.analyzeAsync(comment)
	}
	return comment, t, nil
}

// Notice is the confirmation shown after a comment is created.
func Notice(t tier.Tier) (title, description string) {
	if tier.Can(t, tier.ActionSentiment) {
		return "Comment added", "Sentiment analysis will be processed shortly"
	}
	return "Comment added", "Comment saved successfully"
}

func (s *Service) analyzeAsync(c Comment) {
	s.pending.Add(1)
	go func() {
		defer s.pending.Done()
		ctx, cancel := context.WithTimeout(context.Background(), s.timeout)
		defer cancel()

		result, err := s.analyzer.Analyze(ctx, c.Text)
		if err == nil {
			err = s.store.UpdateCommentSentiment(ctx, c.ID, string(result.Category), result.Confidence)
		}
		if s.observe != nil {
			s.observe(result, err)
		}
		if err != nil {
			log.Warn().Err(err).Str("comment_id", c.ID).Msg("Sentiment analysis failed (non-blocking)")
			return
		}

		category := string(result.Category)
		c.SentimentCategory = &category
		c.SentimentConfidence = &result.Confidence
		s.indexComment(c)
	}()
}

func (s *Service) indexComment(c Comment) {
	if s.index == nil {
		return
	}
	record := search.CommentRecord{
		ID:        c.ID,
		FeatureID: c.FeatureID,
		Text:      c.Text,
		UserID:    c.UserID,
		CreatedAt: c.CreatedAt.UnixMilli(),
	}
	if c.SentimentCategory != nil {
		record.Sentiment = *c.SentimentCategory
	}
	s.index.IndexComment(record)
}

// ListAllComments implements export.CommentSource.
func (s *Service) ListAllComments(ctx context.Context) ([]export.CommentRecord, error) {
	rows, err := s.store.ListAllComments(ctx)
	if err != nil {
		return nil, err
	}
	out := make([]export.CommentRecord, 0, len(rows))
	for _, row := range rows {
		rec := export.CommentRecord{
			ID:                  row.ID,
			FeatureID:           row.FeatureID,
			Text:                row.Text,
			UserID:              row.UserID,
			CreatedAt:           row.CreatedAt,
			UpdatedAt:           row.UpdatedAt,
			FeatureCoordinates:  row.FeatureCoordinates,
			SentimentConfidence: row.SentimentConfidence,
		}
		if row.SentimentCategory != nil {
			rec.SentimentCategory = *row.SentimentCategory
		}
		out = append(out, rec)
	}
	return out, nil
}

// Wait blocks until background analyses have finished.
func (s *Service) Wait() {
	s.pending.Wait()
}

func fromStore(row store.Comment) Comment {
	return Comment{
		ID:                  row.ID,
		FeatureID:           row.FeatureID,
		Text:                row.Text,
		UserID:              row.UserID,
		FeatureCoordinates:  row.FeatureCoordinates,
		FeatureGeometry:     row.FeatureGeometry,
		SentimentCategory:   row.SentimentCategory,
		SentimentConfidence: row.SentimentConfidence,
		CreatedAt:           row.CreatedAt,
		UpdatedAt:           row.UpdatedAt,
	}
}

func validationError(err error) error {
	var fieldErrs validator.ValidationErrors
	if !errors.As(err, &fieldErrs) {
		return fmt.Errorf("%w: %v", ErrInvalid, err)
	}
	for _, fe := range fieldErrs {
		if fe.Tag() == "max" {
			return fmt.Errorf("%w: %s must be at most %s characters", ErrInvalid, jsonName(fe.Field()), fe.Param())
		}
	}
	return fmt.Errorf("%w: comment_text and feature_id are required", ErrInvalid)
}

func jsonName(field string) string {
	switch field {
	case "FeatureID":
		return "feature_id"
	case "Text":
		return "comment_text"
	default:
		return strings.ToLower(field)
	}
}
