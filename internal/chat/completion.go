package chat

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/openai/openai-go/v2"
	"github.com/openai/openai-go/v2/option"

	"github.com/voxcast/charchat/internal/metrics"
)

const oneShotSystemPrompt = "You are a helpful AI assistant. Keep your responses concise and conversational. " +
	"Answer in the same language as the user's message. Prefer to use short answers. " +
	"Do not include any other text than the answer. Avoid using emojis and markdown formatting."

// OneShotClient is the plain request/response completion capability behind
// the non-streaming chat endpoint. It keeps its own in-process history,
// separate from any voice session.
type OneShotClient struct {
	client openai.Client
	model  string

	mu      sync.Mutex
	history []openai.ChatCompletionMessageParamUnion
}

// NewOneShotClient creates a single-shot completion client against an
// OpenAI-compatible endpoint.
func NewOneShotClient(baseURL, apiKey, model string) *OneShotClient {
	return &OneShotClient{
		client: openai.NewClient(
			option.WithAPIKey(apiKey),
			option.WithBaseURL(baseURL),
		),
		model: model,
		history: []openai.ChatCompletionMessageParamUnion{
			openai.SystemMessage(oneShotSystemPrompt),
		},
	}
}

// Complete sends one user message and returns the assistant reply.
func (c *OneShotClient) Complete(ctx context.Context, message string) (string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	start := time.Now()
	msgs := append(c.history, openai.UserMessage(message))

	resp, err := c.client.Chat.Completions.New(ctx, openai.ChatCompletionNewParams{
		Model:    openai.ChatModel(c.model),
		Messages: msgs,
	})
	if err != nil {
		metrics.Errors.WithLabelValues("completion", "oneshot").Inc()
		return "", fmt.Errorf("completion: %w", err)
	}
	if len(resp.Choices) == 0 {
		metrics.Errors.WithLabelValues("completion", "oneshot").Inc()
		return "", fmt.Errorf("completion returned no choices")
	}

	text := resp.Choices[0].Message.Content
	c.history = append(msgs, openai.AssistantMessage(text))

	metrics.StageDuration.WithLabelValues("completion").Observe(time.Since(start).Seconds())
	return text, nil
}
