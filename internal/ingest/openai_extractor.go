package ingest

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"
	"time"

	openai "github.com/sashabaranov/go-openai"
	"github.com/sony/gobreaker/v2"
)

const extractorSystemPrompt = `You extract scheduling intent from a short personal note.
Respond with a single JSON object matching this shape, no prose:
{"title":"","estimated_minutes":30,
 "deadline":{"datetime":"RFC3339","kind":"time|date","source":""},
 "scheduled_time":{"datetime":"RFC3339","precision":"exact|approximate","source":""},
 "execution_window":{"relation":"within|before_deadline","start":"RFC3339","end":"RFC3339","source":""},
 "time_preferences":{"time_of_day":"","day":""},
 "importance":{"urgency":3,"impact":3,"reschedule_penalty":0,"blocking":false,"rationale":""},
 "flexibility":{"cannot_overlap":false,"start_flexibility":"anytime","duration_flexibility":"fixed","min_chunk_minutes":15,"max_splits":1},
 "kind":"task|meeting|routine.sleep|routine.meal",
 "missing":[],"clarifying_question":"","notes":[]}
Omit deadline, scheduled_time and execution_window when the note names none.
All datetimes are absolute, resolved against the provided reference time and timezone.`

// OpenAIExtractor interprets capture text with a chat-completion model behind
// a circuit breaker. While the breaker is open, Extract degrades to the no-op
// result instead of failing ingestion.
type OpenAIExtractor struct {
	client  *openai.Client
	model   string
	breaker *gobreaker.CircuitBreaker[*Extraction]
	logger  *slog.Logger
}

// NewOpenAIExtractor creates the extractor. An empty model selects gpt-4o-mini.
func NewOpenAIExtractor(apiKey, baseURL, model string, logger *slog.Logger) *OpenAIExtractor {
	if logger == nil {
		logger = slog.Default()
	}
	if model == "" {
		model = openai.GPT4oMini
	}
	cfg := openai.DefaultConfig(apiKey)
	if baseURL != "" {
		cfg.BaseURL = baseURL
	}
	breaker := gobreaker.NewCircuitBreaker[*Extraction](gobreaker.Settings{
		Name:    "extractor",
		Timeout: 30 * time.Second,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= 3
		},
	})
	return &OpenAIExtractor{
		client:  openai.NewClientWithConfig(cfg),
		model:   model,
		breaker: breaker,
		logger:  logger,
	}
}

// Extract asks the model for a structured interpretation of the note.
// Extraction failures are soft: the capture is still ingested with defaults.
func (e *OpenAIExtractor) Extract(ctx context.Context, text, timezone string, now time.Time) (*Extraction, error) {
	result, err := e.breaker.Execute(func() (*Extraction, error) {
		return e.extract(ctx, text, timezone, now)
	})
	if err != nil {
		e.logger.Warn("extraction unavailable, using defaults", "error", err)
		return nil, nil
	}
	return result, nil
}

func (e *OpenAIExtractor) extract(ctx context.Context, text, timezone string, now time.Time) (*Extraction, error) {
	userPrompt := fmt.Sprintf("Reference time: %s\nTimezone: %s\nNote: %s",
		now.UTC().Format(time.RFC3339), timezone, text)

	resp, err := e.client.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model:       e.model,
		Temperature: 0,
		ResponseFormat: &openai.ChatCompletionResponseFormat{
			Type: openai.ChatCompletionResponseFormatTypeJSONObject,
		},
		Messages: []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleSystem, Content: extractorSystemPrompt},
			{Role: openai.ChatMessageRoleUser, Content: userPrompt},
		},
	})
	if err != nil {
		return nil, fmt.Errorf("extractor completion: %w", err)
	}
	if len(resp.Choices) == 0 {
		return nil, fmt.Errorf("extractor returned no choices")
	}

	raw := strings.TrimSpace(resp.Choices[0].Message.Content)
	raw = strings.TrimPrefix(raw, "```json")
	raw = strings.TrimPrefix(raw, "```")
	raw = strings.TrimSuffix(raw, "```")

	var extraction Extraction
	if err := json.Unmarshal([]byte(raw), &extraction); err != nil {
		return nil, fmt.Errorf("extractor payload: %w", err)
	}
	return &extraction, nil
}
