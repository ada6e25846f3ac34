package analysis

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/rs/zerolog"

	"github.com/Sh0oya/Jour/internal/resilience"
)

const defaultBaseURL = "https://generativelanguage.googleapis.com/v1beta"

const analysisPrompt = `Analyze the following conversation between a user and their journaling companion.
Produce a JSON object with:
1. 'summary': a concise first-person summary of the user's day and thoughts (max 2 sentences).
2. 'mood': one of [GREAT, GOOD, NEUTRAL, BAD, TERRIBLE] best matching the user's sentiment.
3. 'tags': an array of 3-5 short tags extracted from the content.
4. 'actionItems': an array of concrete follow-ups the user mentioned (may be empty).

Transcript:
%s`

// GeminiAnalyzer implements Analyzer against the generateContent REST API.
type GeminiAnalyzer struct {
	apiKey     string
	model      string
	baseURL    string
	httpClient *http.Client
	breaker    *resilience.CircuitBreaker
	retry      *resilience.RetryConfig
	logger     zerolog.Logger
}

// GeminiOption customizes the analyzer.
type GeminiOption func(*GeminiAnalyzer)

// WithBaseURL overrides the API base URL. Used by tests.
func WithBaseURL(u string) GeminiOption {
	return func(a *GeminiAnalyzer) { a.baseURL = u }
}

// WithRetryConfig overrides the bounded retry policy.
func WithRetryConfig(cfg *resilience.RetryConfig) GeminiOption {
	return func(a *GeminiAnalyzer) { a.retry = cfg }
}

// NewGeminiAnalyzer creates an analyzer for the given model.
func NewGeminiAnalyzer(apiKey, model string, logger zerolog.Logger, opts ...GeminiOption) *GeminiAnalyzer {
	a := &GeminiAnalyzer{
		apiKey:     apiKey,
		model:      model,
		baseURL:    defaultBaseURL,
		httpClient: &http.Client{Timeout: 30 * time.Second},
		breaker:    resilience.NewCircuitBreaker("analysis", 5, 30*time.Second),
		retry:      resilience.DefaultRetryConfig(),
		logger:     logger,
	}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

type generateRequest struct {
	Contents         []requestContent  `json:"contents"`
	GenerationConfig *generationConfig `json:"generationConfig,omitempty"`
}

type requestContent struct {
	Parts []requestPart `json:"parts"`
}

type requestPart struct {
	Text string `json:"text"`
}

type generationConfig struct {
	ResponseMimeType string          `json:"responseMimeType,omitempty"`
	ResponseSchema   *responseSchema `json:"responseSchema,omitempty"`
}

type responseSchema struct {
	Type       string                     `json:"type"`
	Properties map[string]*responseSchema `json:"properties,omitempty"`
	Items      *responseSchema            `json:"items,omitempty"`
	Enum       []string                   `json:"enum,omitempty"`
	Required   []string                   `json:"required,omitempty"`
}

type generateResponse struct {
	Candidates []struct {
		Content struct {
			Parts []struct {
				Text string `json:"text"`
			} `json:"parts"`
		} `json:"content"`
	} `json:"candidates"`
}

// Analyze sends the transcript for structured analysis. One bounded retry
// on transient failure; a breaker keeps a failing endpoint from stacking
// requests across sessions.
func (a *GeminiAnalyzer) Analyze(ctx context.Context, transcript string) (Result, error) {
	var result Result

	err := resilience.Retry(ctx, func() error {
		return a.breaker.Call(func() error {
			r, err := a.generate(ctx, transcript)
			if err != nil {
				return err
			}
			result = r
			return nil
		})
	}, a.retry)
	if err != nil {
		return Result{}, err
	}
	return result, nil
}

func (a *GeminiAnalyzer) generate(ctx context.Context, transcript string) (Result, error) {
	reqBody := generateRequest{
		Contents: []requestContent{
			{Parts: []requestPart{{Text: fmt.Sprintf(analysisPrompt, transcript)}}},
		},
		GenerationConfig: &generationConfig{
			ResponseMimeType: "application/json",
			ResponseSchema: &responseSchema{
				Type: "OBJECT",
				Properties: map[string]*responseSchema{
					"summary": {Type: "STRING"},
					"mood": {Type: "STRING", Enum: []string{
						string(MoodGreat), string(MoodGood), string(MoodNeutral),
						string(MoodBad), string(MoodTerrible),
					}},
					"tags":        {Type: "ARRAY", Items: &responseSchema{Type: "STRING"}},
					"actionItems": {Type: "ARRAY", Items: &responseSchema{Type: "STRING"}},
				},
				Required: []string{"summary", "mood", "tags"},
			},
		},
	}

	payload, err := json.Marshal(reqBody)
	if err != nil {
		return Result{}, fmt.Errorf("marshal analysis request: %w", err)
	}

	url := fmt.Sprintf("%s/models/%s:generateContent?key=%s", a.baseURL, a.model, a.apiKey)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(payload))
	if err != nil {
		return Result{}, fmt.Errorf("create analysis request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := a.httpClient.Do(req)
	if err != nil {
		return Result{}, fmt.Errorf("analysis request: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return Result{}, fmt.Errorf("read analysis response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return Result{}, fmt.Errorf("analysis API returned status %d: %s", resp.StatusCode, body)
	}

	var gr generateResponse
	if err := json.Unmarshal(body, &gr); err != nil {
		return Result{}, fmt.Errorf("decode analysis response: %w", err)
	}
	if len(gr.Candidates) == 0 || len(gr.Candidates[0].Content.Parts) == 0 {
		return Result{}, fmt.Errorf("analysis response has no candidates")
	}

	var result Result
	if err := json.Unmarshal([]byte(gr.Candidates[0].Content.Parts[0].Text), &result); err != nil {
		return Result{}, fmt.Errorf("decode analysis payload: %w", err)
	}
	if !result.Mood.Valid() {
		a.logger.Warn().Str("mood", string(result.Mood)).Msg("Analysis returned unknown mood, using neutral")
		result.Mood = MoodNeutral
	}
	return result, nil
}
