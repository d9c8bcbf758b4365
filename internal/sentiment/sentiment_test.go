package sentiment

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNormalize(t *testing.T) {
	tests := []struct {
		label      string
		confidence float64
		want       Result
	}{
		{"Positive", 0.9, Result{Positive, 0.9}},
		{"negative", 0.2, Result{Negative, 0.2}},
		{"MIXED", 0.4, Result{Neutral, 0.4}},
		{"", 0, Result{Neutral, DefaultConfidence}},
		{"Positive", 1.7, Result{Positive, 1}},
		{"Negative", -0.3, Result{Negative, 0}},
		{"Neutral", math.NaN(), Result{Neutral, DefaultConfidence}},
	}
	for _, tt := range tests {
		t.Run(fmt.Sprintf("%s/%v", tt.label, tt.confidence), func(t *testing.T) {
			assert.Equal(t, tt.want, Normalize(tt.label, tt.confidence))
		})
	}
}

func TestKeywords(t *testing.T) {
	assert.Equal(t, Result{Positive, 0.7}, Keywords("I LOVE this trail"))
	assert.Equal(t, Result{Negative, 0.7}, Keywords("awful traffic"))
	assert.Equal(t, Result{Neutral, 0.5}, Keywords("a bench by the river"))
	// positive words are checked first
	assert.Equal(t, Positive, Keywords("good food, bad parking").Category)
}

func completionServer(t *testing.T, status int, content string, calls *atomic.Int32) *httptest.Server {
	t.Helper()
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if calls != nil {
			calls.Add(1)
		}
		assert.Equal(t, "Bearer test-key", r.Header.Get("Authorization"))

		var req chatRequest
		if assert.NoError(t, json.NewDecoder(r.Body).Decode(&req)) {
			assert.Equal(t, 50, req.MaxTokens)
			assert.InDelta(t, 0.1, req.Temperature, 1e-9)
			if assert.Len(t, req.Messages, 2) {
				assert.Equal(t, "system", req.Messages[0].Role)
				assert.Contains(t, req.Messages[1].Content, `"nice view"`)
			}
		}

		if status != http.StatusOK {
			http.Error(w, "upstream down", status)
			return
		}
		_ = json.NewEncoder(w).Encode(map[string]any{
			"choices": []any{map[string]any{"message": map[string]string{"role": "assistant", "content": content}}},
		})
	}))
}

func TestHTTPAnalyzerParsesVerdict(t *testing.T) {
	srv := completionServer(t, http.StatusOK, `{"sentiment":"Positive","confidence":0.92}`, nil)
	defer srv.Close()

	a := NewHTTPAnalyzer(HTTPOptions{Endpoint: srv.URL, APIKey: "test-key"})
	got, err := a.Analyze(context.Background(), "nice view")
	require.NoError(t, err)
	assert.Equal(t, Result{Positive, 0.92}, got)
}

func TestHTTPAnalyzerFallsBackToKeywordsOnProse(t *testing.T) {
	srv := completionServer(t, http.StatusOK, "The comment seems upbeat.", nil)
	defer srv.Close()

	a := NewHTTPAnalyzer(HTTPOptions{Endpoint: srv.URL, APIKey: "test-key"})
	got, err := a.Analyze(context.Background(), "nice view")
	require.NoError(t, err)
	assert.Equal(t, Result{Neutral, DefaultConfidence}, got)
}

func TestHTTPAnalyzerOpensBreaker(t *testing.T) {
	var calls atomic.Int32
	srv := completionServer(t, http.StatusInternalServerError, "", &calls)
	defer srv.Close()

	a := NewHTTPAnalyzer(HTTPOptions{Endpoint: srv.URL, APIKey: "test-key", BreakerFailures: 2})
	for i := 0; i < 2; i++ {
		_, err := a.Analyze(context.Background(), "nice view")
		require.Error(t, err)
		assert.False(t, errors.Is(err, ErrUnavailable))
	}

	_, err := a.Analyze(context.Background(), "nice view")
	require.ErrorIs(t, err, ErrUnavailable)
	assert.Equal(t, int32(2), calls.Load())
}

func TestKeywordAnalyzer(t *testing.T) {
	got, err := KeywordAnalyzer{}.Analyze(context.Background(), "terrible")
	require.NoError(t, err)
	assert.Equal(t, Negative, got.Category)
}
