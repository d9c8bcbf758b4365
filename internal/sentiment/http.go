package sentiment

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/sony/gobreaker"
)

const (
	DefaultEndpoint = "https://api.openai.com/v1/chat/completions"
	DefaultModel    = "gpt-4.1-mini-2025-04-14"

	systemPrompt = `You are a sentiment analysis expert. Analyze the given text and respond with ONLY a JSON object containing "sentiment" (Positive, Neutral, or Negative) and "confidence" (a number between 0 and 1). No additional text.`
)

// HTTPOptions configures an HTTPAnalyzer.
type HTTPOptions struct {
	Endpoint string
	APIKey   string
	Model    string
	Timeout  time.Duration
	Client   *http.Client
	// Breaker settings; zero values take the defaults below.
	BreakerTimeout  time.Duration
	BreakerFailures uint32
}

// HTTPAnalyzer calls an OpenAI-compatible chat completions endpoint behind a
// circuit breaker.
type HTTPAnalyzer struct {
	endpoint string
	apiKey   string
	model    string
	client   *http.Client
	breaker  *gobreaker.CircuitBreaker
}

func NewHTTPAnalyzer(opts HTTPOptions) *HTTPAnalyzer {
	if opts.Endpoint == "" {
		opts.Endpoint = DefaultEndpoint
	}
	if opts.Model == "" {
		opts.Model = DefaultModel
	}
	if opts.Timeout <= 0 {
		opts.Timeout = 15 * time.Second
	}
	if opts.Client == nil {
		opts.Client = &http.Client{Timeout: opts.Timeout}
	}
	if opts.BreakerTimeout <= 0 {
		opts.BreakerTimeout = 60 * time.Second
	}
	if opts.BreakerFailures == 0 {
		opts.BreakerFailures = 5
	}

	failures := opts.BreakerFailures
	breaker := gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:        "sentiment",
		MaxRequests: 1,
		Interval:    30 * time.Second,
		Timeout:     opts.BreakerTimeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= failures
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			log.Warn().Str("breaker", name).Str("from", from.String()).Str("to", to.String()).Msg("Circuit breaker state changed")
		},
	})

	return &HTTPAnalyzer{
		endpoint: opts.Endpoint,
		apiKey:   opts.APIKey,
		model:    opts.Model,
		client:   opts.Client,
		breaker:  breaker,
	}
}

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type chatRequest struct {
	Model       string        `json:"model"`
	Messages    []chatMessage `json:"messages"`
	MaxTokens   int           `json:"max_tokens"`
	Temperature float64       `json:"temperature"`
}

type chatResponse struct {
	Choices []struct {
		Message chatMessage `json:"message"`
	} `json:"choices"`
}

type modelVerdict struct {
	Sentiment  string  `json:"sentiment"`
	Confidence float64 `json:"confidence"`
}

// Analyze asks the model for a verdict. Transport failures and non-2xx
// answers are errors; an answer that is not the expected JSON object falls
// back to Keywords.
func (a *HTTPAnalyzer) Analyze(ctx context.Context, text string) (Result, error) {
	out, err := a.breaker.Execute(func() (any, error) {
		return a.complete(ctx, text)
	})
	if err != nil {
		if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
			return Result{}, fmt.Errorf("%w: %v", ErrUnavailable, err)
		}
		return Result{}, err
	}

	content := out.(string)
	var verdict modelVerdict
	if err := json.Unmarshal([]byte(strings.TrimSpace(content)), &verdict); err != nil {
		log.Warn().Err(err).Str("response", content).Msg("Unparsable sentiment response, using keyword fallback")
		return Keywords(text), nil
	}
	return Normalize(verdict.Sentiment, verdict.Confidence), nil
}

func (a *HTTPAnalyzer) complete(ctx context.Context, text string) (string, error) {
	body, err := json.Marshal(chatRequest{
		Model: a.model,
		Messages: []chatMessage{
			{Role: "system", Content: systemPrompt},
			{Role: "user", Content: fmt.Sprintf("Analyze the sentiment of this comment: %q", text)},
		},
		MaxTokens:   50,
		Temperature: 0.1,
	})
	if err != nil {
		return "", fmt.Errorf("encode sentiment request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, a.endpoint, bytes.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("build sentiment request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if a.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+a.apiKey)
	}

	resp, err := a.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("sentiment request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		snippet, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return "", fmt.Errorf("sentiment request: status %d: %s", resp.StatusCode, strings.TrimSpace(string(snippet)))
	}

	var decoded chatResponse
	if err := json.NewDecoder(resp.Body).Decode(&decoded); err != nil {
		return "", fmt.Errorf("decode sentiment response: %w", err)
	}
	if len(decoded.Choices) == 0 {
		return "", errors.New("decode sentiment response: no choices")
	}
	return decoded.Choices[0].Message.Content, nil
}
