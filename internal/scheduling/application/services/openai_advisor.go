package services

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"
	"time"

	openai "github.com/sashabaranov/go-openai"
	"github.com/sony/gobreaker/v2"

	"github.com/diaguru/diaguru/internal/scheduling/domain"
)

const advisorSystemPrompt = `You advise a scheduling assistant when a requested slot conflicts with existing events.
Reply with a single JSON object: {"action": "suggest_slot"|"ask_overlap"|"defer", "message": "<one short friendly sentence>", "slot": {"start": "<RFC3339>", "end": "<RFC3339>"}}.
The slot field is optional and only accompanies suggest_slot. The facts are fixed; never invent events.`

// OpenAIAdvisor shapes conflict decisions with a chat-completion model behind
// a circuit breaker. While the breaker is open the default decision is kept.
type OpenAIAdvisor struct {
	client  *openai.Client
	model   string
	breaker *gobreaker.CircuitBreaker[Advice]
	logger  *slog.Logger
}

// NewOpenAIAdvisor creates the advisor. An empty model selects gpt-4o-mini.
func NewOpenAIAdvisor(apiKey, baseURL, model string, logger *slog.Logger) *OpenAIAdvisor {
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
	breaker := gobreaker.NewCircuitBreaker[Advice](gobreaker.Settings{
		Name:    "advisor",
		Timeout: 30 * time.Second,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= 3
		},
	})
	return &OpenAIAdvisor{
		client:  openai.NewClientWithConfig(cfg),
		model:   model,
		breaker: breaker,
		logger:  logger,
	}
}

// Advise asks the model for a structured reply to the conflict. The caller
// re-validates any proposed slot before trusting it.
func (a *OpenAIAdvisor) Advise(ctx context.Context, in AdviceInput) (Advice, error) {
	return a.breaker.Execute(func() (Advice, error) {
		var sb strings.Builder
		fmt.Fprintf(&sb, "Task: %s\nSituation: %s\n", in.CaptureContent, in.Code)
		if in.Preferred != nil {
			fmt.Fprintf(&sb, "Requested slot: %s to %s\n",
				in.Preferred.Start.Format(time.RFC3339), in.Preferred.End.Format(time.RFC3339))
		}
		for _, conflict := range in.Conflicts {
			kind := "external event"
			if conflict.DiaGuru {
				kind = "managed task"
			}
			fmt.Fprintf(&sb, "Conflict: %q (%s) %s to %s\n", conflict.Summary, kind,
				conflict.Start.Format(time.RFC3339), conflict.End.Format(time.RFC3339))
		}
		if in.Suggestion != nil {
			fmt.Fprintf(&sb, "Next free slot: %s to %s\n",
				in.Suggestion.Start.Format(time.RFC3339), in.Suggestion.End.Format(time.RFC3339))
		}

		resp, err := a.client.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
			Model:       a.model,
			Temperature: 0.2,
			MaxTokens:   200,
			ResponseFormat: &openai.ChatCompletionResponseFormat{
				Type: openai.ChatCompletionResponseFormatTypeJSONObject,
			},
			Messages: []openai.ChatCompletionMessage{
				{Role: openai.ChatMessageRoleSystem, Content: advisorSystemPrompt},
				{Role: openai.ChatMessageRoleUser, Content: sb.String()},
			},
		})
		if err != nil {
			return Advice{}, fmt.Errorf("advisor completion: %w", err)
		}
		if len(resp.Choices) == 0 {
			return Advice{}, fmt.Errorf("advisor returned no choices")
		}
		return parseAdvice(resp.Choices[0].Message.Content)
	})
}

type advicePayload struct {
	Action  string `json:"action"`
	Message string `json:"message"`
	Slot    *struct {
		Start time.Time `json:"start"`
		End   time.Time `json:"end"`
	} `json:"slot"`
}

func parseAdvice(raw string) (Advice, error) {
	raw = strings.TrimSpace(raw)
	raw = strings.TrimPrefix(raw, "```json")
	raw = strings.TrimPrefix(raw, "```")
	raw = strings.TrimSuffix(raw, "```")

	var payload advicePayload
	if err := json.Unmarshal([]byte(strings.TrimSpace(raw)), &payload); err != nil {
		return Advice{}, fmt.Errorf("parse advisor reply: %w", err)
	}
	advice := Advice{Action: payload.Action, Message: strings.TrimSpace(payload.Message)}
	if payload.Slot != nil {
		advice.Slot = &domain.Slot{Start: payload.Slot.Start, End: payload.Slot.End}
	}
	return advice, nil
}
