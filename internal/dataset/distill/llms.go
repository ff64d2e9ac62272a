package distill

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/openai/openai-go"
)

// LLM produces the raw completion text for a scoring prompt.
type LLM interface {
	Generate(systemPrompt, userPrompt string) (string, error)
}

const scoreRequestTimeout = 30 * time.Second

// maxScoreTokens bounds each completion; a similarity score is a single
// number and anything longer is already malformed.
const maxScoreTokens = 8

// scoreSamplingSeed pins sampling so re-running a distillation over the same
// pairs reproduces the same jsonl file.
const scoreSamplingSeed = 42

type OpenAI struct {
	client openai.Client
	model  string
	temp   float64
}

// NewOpenAI builds a scoring client. Annotation wants near-deterministic
// output, so the temperature is clamped to [0, 1].
func NewOpenAI(model string, temp float64) *OpenAI {
	if temp < 0 {
		temp = 0
	}
	if temp > 1 {
		temp = 1
	}
	return &OpenAI{
		client: openai.NewClient(),
		model:  model,
		temp:   temp,
	}
}

func (o *OpenAI) Generate(systemPrompt, prompt string) (string, error) {
	ctx, cancel := context.WithTimeout(context.Background(), scoreRequestTimeout)
	defer cancel()

	res, err := o.client.Chat.Completions.New(ctx, openai.ChatCompletionNewParams{
		Messages: []openai.ChatCompletionMessageParamUnion{
			openai.SystemMessage(systemPrompt),
			openai.UserMessage(prompt),
		},
		Model:       o.model,
		Temperature: openai.Float(o.temp),
		MaxTokens:   openai.Int(maxScoreTokens),
		Seed:        openai.Int(scoreSamplingSeed),
	})
	if err != nil {
		slog.Error("scoring request failed", "model", o.model, "error", err)
		return "", fmt.Errorf("scoring request to %s failed: %w", o.model, err)
	}
	if len(res.Choices) == 0 {
		return "", fmt.Errorf("model %s returned no completion", o.model)
	}

	return res.Choices[0].Message.Content, nil
}
