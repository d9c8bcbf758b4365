package export

import (
	"bytes"
	"encoding/csv"
	"fmt"
	"strconv"
	"time"
)

var commentColumns = []string{
	"Comment ID",
	"Feature ID",
	"Comment Text",
	"User ID",
	"Created At",
	"Updated At",
	"Feature Coordinates",
	"Sentiment Category",
	"Sentiment Confidence",
}

// CommentsFilename names the comment export after the UTC date of now.
func CommentsFilename(now time.Time) string {
	return "spatial-comments-" + now.UTC().Format("2006-01-02") + ".csv"
}

// CommentsCSV writes comments in the order given; callers pass them newest first.
func CommentsCSV(comments []CommentRecord, now time.Time) (*Result, error) {
	var buf bytes.Buffer
	w := csv.NewWriter(&buf)
	if err := w.Write(commentColumns); err != nil {
		return nil, fmt.Errorf("write comments header: %w", err)
	}

	for _, c := range comments {
		confidence := ""
		if c.SentimentConfidence != nil {
			confidence = strconv.FormatFloat(*c.SentimentConfidence, 'f', -1, 64)
		}
		row := []string{
			c.ID,
			c.FeatureID,
			c.Text,
			c.UserID,
			formatTimestamp(c.CreatedAt),
			formatTimestamp(c.UpdatedAt),
			string(c.FeatureCoordinates),
			c.SentimentCategory,
			confidence,
		}
		if err := w.Write(row); err != nil {
			return nil, fmt.Errorf("write comment %s: %w", c.ID, err)
		}
	}

	w.Flush()
	if err := w.Error(); err != nil {
		return nil, fmt.Errorf("flush comments csv: %w", err)
	}

	return &Result{
		Data:     buf.Bytes(),
		Filename: CommentsFilename(now),
		MimeType: mimeCSV,
	}, nil
}

func formatTimestamp(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.UTC().Format(time.RFC3339Nano)
}
