package chat

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/voxcast/charchat/internal/httpx"
	"github.com/voxcast/charchat/internal/metrics"
)

// EventKind discriminates turn events.
type EventKind int

const (
	EventEmotion EventKind = iota
	EventSentence
	EventComplete
	EventError
)

// Event is one entry of a turn's event stream: the first valid emotion,
// each delimited sentence, then exactly one of complete or error. An
// abandoned (cancelled) turn ends without a terminal event.
type Event struct {
	Kind     EventKind
	Emotion  Emotion
	Sentence Sentence
	FullText string
	Err      error
}

// responseSchema is the structured-output schema requested from the model.
var responseSchema = map[string]any{
	"type": "object",
	"properties": map[string]any{
		"text":    map[string]any{"type": "string"},
		"emotion": map[string]any{"type": "string", "enum": Emotions},
	},
	"required": []string{"text", "emotion"},
}

// StreamClient drives streaming structured-output exchanges with the
// upstream completion service (an OpenAI-compatible SSE endpoint).
type StreamClient struct {
	apiKey  string
	baseURL string
	model   string
	client  *http.Client
}

// NewStreamClient creates a streaming completion client.
func NewStreamClient(baseURL, apiKey, model string, poolSize int) *StreamClient {
	return &StreamClient{
		apiKey:  apiKey,
		baseURL: strings.TrimSuffix(baseURL, "/"),
		model:   model,
		client:  httpx.NewPooledClient(poolSize, 120*time.Second),
	}
}

// StreamTurn opens one streaming exchange for a turn and returns its typed
// event stream. The channel is closed when the turn finishes or is
// abandoned; cancelling ctx abandons the turn without a terminal event.
// msgs is the full request message list; the caller owns history.
func (c *StreamClient) StreamTurn(ctx context.Context, msgs []Message) <-chan Event {
	events := make(chan Event, 8)
	go func() {
		defer close(events)
		c.run(ctx, msgs, events)
	}()
	return events
}

func (c *StreamClient) run(ctx context.Context, msgs []Message, events chan<- Event) {
	start := time.Now()

	body, err := json.Marshal(map[string]any{
		"model":    c.model,
		"messages": msgs,
		"stream":   true,
		"response_format": map[string]any{
			"type": "json_schema",
			"json_schema": map[string]any{
				"name":   "chat_response",
				"schema": responseSchema,
			},
		},
	})
	if err != nil {
		c.fail(ctx, events, "marshal", fmt.Errorf("marshal completion request: %w", err))
		return
	}

	req, err := http.NewRequestWithContext(ctx, "POST", c.baseURL+"/chat/completions", bytes.NewReader(body))
	if err != nil {
		c.fail(ctx, events, "request", fmt.Errorf("create completion request: %w", err))
		return
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+c.apiKey)

	resp, err := c.client.Do(req)
	if err != nil {
		c.fail(ctx, events, "http", fmt.Errorf("completion request: %w", err))
		return
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		errBody, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		c.fail(ctx, events, "status", fmt.Errorf("completion status %d: %s", resp.StatusCode, errBody))
		return
	}

	st := newTurnState(events)
	err = consumeSSE(ctx, resp.Body, st)
	if ctx.Err() != nil {
		// Abandoned turn: no finalization, no terminal event.
		return
	}
	if err != nil {
		// Connection dropped mid-body: the accumulated text is partial and
		// must not be finalized.
		c.fail(ctx, events, "stream", fmt.Errorf("completion stream: %w", err))
		return
	}
	// A natural body close without the [DONE] terminator still completes
	// the turn; the terminator is not guaranteed by every upstream.
	st.finish()

	metrics.StageDuration.WithLabelValues("completion").Observe(time.Since(start).Seconds())
}

func (c *StreamClient) fail(ctx context.Context, events chan<- Event, kind string, err error) {
	if ctx.Err() != nil {
		return
	}
	metrics.Errors.WithLabelValues("completion", kind).Inc()
	events <- Event{Kind: EventError, Err: err}
}

// turnState accumulates the raw structured payload of one reply and derives
// emotion and sentence events from it.
type turnState struct {
	out          chan<- Event
	raw          strings.Builder
	lastText     string
	foundEmotion bool
	seg          *SentenceSegmenter
}

func newTurnState(out chan<- Event) *turnState {
	st := &turnState{out: out}
	st.seg = NewSentenceSegmenter(func(u Sentence) {
		st.out <- Event{Kind: EventSentence, Sentence: u}
	})
	return st
}

// observe folds one raw delta into the turn. The emotion check runs before
// sentence feeding so an emotion event precedes or coincides with the first
// sentence it could accompany.
func (st *turnState) observe(delta string) {
	st.raw.WriteString(delta)
	st.checkEmotion()

	text := ExtractText(st.raw.String())
	if len(text) > len(st.lastText) && strings.HasPrefix(text, st.lastText) {
		st.seg.Feed(text[len(st.lastText):])
		st.lastText = text
	}
}

// checkEmotion honors at most one emotion per reply: the first valid tag
// found while the payload accumulates.
func (st *turnState) checkEmotion() {
	if st.foundEmotion {
		return
	}
	if emo, ok := ExtractEmotion(st.raw.String()); ok {
		st.foundEmotion = true
		metrics.EmotionsDetected.WithLabelValues(string(emo)).Inc()
		st.out <- Event{Kind: EventEmotion, Emotion: emo}
	}
}

// finish flushes the segmenter and emits the completion event.
func (st *turnState) finish() {
	st.checkEmotion()
	st.seg.Finalize()

	full := ExtractText(st.raw.String())
	if full == "" {
		full = st.raw.String()
	}
	st.out <- Event{Kind: EventComplete, FullText: full}
}

// consumeSSE reads "data:" lines until the [DONE] terminator, the context is
// cancelled, or the body closes. A non-nil return means the body failed
// mid-stream and the accumulated payload is truncated.
func consumeSSE(ctx context.Context, body io.Reader, st *turnState) error {
	scanner := bufio.NewScanner(body)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)

	for scanner.Scan() {
		if ctx.Err() != nil {
			return nil
		}
		line := strings.TrimSpace(scanner.Text())
		if !strings.HasPrefix(line, "data:") {
			continue
		}
		data := strings.TrimSpace(strings.TrimPrefix(line, "data:"))
		if data == "[DONE]" {
			return nil
		}
		var chunk struct {
			Choices []struct {
				Delta struct {
					Content string `json:"content"`
				} `json:"delta"`
			} `json:"choices"`
		}
		if json.Unmarshal([]byte(data), &chunk) != nil {
			continue
		}
		if len(chunk.Choices) == 0 || chunk.Choices[0].Delta.Content == "" {
			continue
		}
		st.observe(chunk.Choices[0].Delta.Content)
	}
	return scanner.Err()
}
