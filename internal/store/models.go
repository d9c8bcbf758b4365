package store

import (
	"encoding/json"
	"time"
)

type Subscription struct {
	UserID    string
	Tier      string
	CreatedAt time.Time
	UpdatedAt time.Time
}

// Comment is one row of feature_comments.
type Comment struct {
	ID                  string
	FeatureID           string
	Text                string
	UserID              string
	FeatureCoordinates  json.RawMessage
	FeatureGeometry     json.RawMessage
	SentimentCategory   *string
	SentimentConfidence *float64
	CreatedAt           time.Time
	UpdatedAt           time.Time
}

type NewComment struct {
	ID                 string
	FeatureID          string
	Text               string
	UserID             string
	FeatureCoordinates json.RawMessage
	FeatureGeometry    json.RawMessage
}
