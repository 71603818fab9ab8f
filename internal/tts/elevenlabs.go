package tts

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"

	"github.com/voxcast/charchat/internal/metrics"
)

// Synthesizer converts text to a stream of audio chunks. Implementations
// must call onChunk for each chunk as it arrives, not after buffering.
type Synthesizer interface {
	Synthesize(ctx context.Context, text string, onChunk func(chunk []byte)) error
}

// ElevenLabs streams audio from the ElevenLabs text-to-speech API.
type ElevenLabs struct {
	apiKey  string
	baseURL string
	voiceID string
	modelID string
	client  *http.Client
}

// NewElevenLabs creates a streaming ElevenLabs synthesizer. baseURL is
// overridable for testing; pass "" for the public API.
func NewElevenLabs(apiKey, voiceID, modelID, baseURL string, client *http.Client) *ElevenLabs {
	if baseURL == "" {
		baseURL = "https://api.elevenlabs.io"
	}
	return &ElevenLabs{
		apiKey:  apiKey,
		baseURL: baseURL,
		voiceID: voiceID,
		modelID: modelID,
		client:  client,
	}
}

// Synthesize streams synthesized speech for text, chunk by chunk.
func (e *ElevenLabs) Synthesize(ctx context.Context, text string, onChunk func(chunk []byte)) error {
	body, err := json.Marshal(struct {
		Text    string `json:"text"`
		ModelID string `json:"model_id"`
	}{Text: text, ModelID: e.modelID})
	if err != nil {
		return fmt.Errorf("marshal synthesis request: %w", err)
	}

	url := fmt.Sprintf("%s/v1/text-to-speech/%s/stream", e.baseURL, e.voiceID)
	req, err := http.NewRequestWithContext(ctx, "POST", url, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("create synthesis request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("xi-api-key", e.apiKey)
	req.Header.Set("Accept", "audio/mpeg")

	resp, err := e.client.Do(req)
	if err != nil {
		metrics.Errors.WithLabelValues("synthesis", "http").Inc()
		return fmt.Errorf("synthesis request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		metrics.Errors.WithLabelValues("synthesis", "status").Inc()
		errBody, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return fmt.Errorf("synthesis status %d: %s", resp.StatusCode, errBody)
	}

	buf := make([]byte, 32*1024)
	for {
		n, readErr := resp.Body.Read(buf)
		if n > 0 {
			chunk := make([]byte, n)
			copy(chunk, buf[:n])
			onChunk(chunk)
		}
		if readErr == io.EOF {
			return nil
		}
		if readErr != nil {
			metrics.Errors.WithLabelValues("synthesis", "stream").Inc()
			return fmt.Errorf("synthesis stream: %w", readErr)
		}
	}
}
