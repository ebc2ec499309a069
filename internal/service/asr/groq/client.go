// Package groq implements the Groq Whisper speech-to-text backend.
package groq

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"mime/multipart"
	"net/http"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/rebble-dev/asr-gateway/internal/service/asr"
	"github.com/rebble-dev/asr-gateway/internal/service/codec"
)

const (
	defaultEndpoint = "https://api.groq.com/openai/v1/audio/transcriptions"

	// Fixed per provider; Groq's hosted Whisper model.
	model = "whisper-large-v3"
)

// Client is the Groq recognition backend.
type Client struct {
	apiKey     string
	endpoint   string
	httpClient *http.Client
}

// New creates a Groq client. The API key is required.
func New(apiKey string) (*Client, error) {
	if apiKey == "" {
		return nil, errors.New("groq: API key not configured")
	}
	return &Client{
		apiKey:     apiKey,
		endpoint:   defaultEndpoint,
		httpClient: &http.Client{},
	}, nil
}

// Name returns the provider name.
func (c *Client) Name() string { return "groq" }

// Transcribe uploads the utterance as an in-memory WAV file to Groq's
// OpenAI-compatible transcription endpoint.
func (c *Client) Transcribe(ctx context.Context, pcm []int16, sampleRate int) (string, error) {
	body, contentType, err := buildForm(pcm, sampleRate)
	if err != nil {
		return "", err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint, body)
	if err != nil {
		return "", fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+c.apiKey)
	req.Header.Set("Content-Type", contentType)

	start := time.Now()
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return "", asr.TransportError(err)
	}
	defer resp.Body.Close()

	respBody, err := asr.ReadBounded(resp.Body)
	if err != nil {
		return "", err
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		log.Debug().
			Str("provider", "groq").
			Int("status", resp.StatusCode).
			Dur("elapsed", time.Since(start)).
			Msg("Transcription request failed")
		return "", asr.StatusError(resp.StatusCode, respBody)
	}

	var out struct {
		Text string `json:"text"`
	}
	if err := json.Unmarshal(respBody, &out); err != nil {
		return "", fmt.Errorf("%w: decoding response: %s", asr.ErrServer, err)
	}

	log.Debug().
		Str("provider", "groq").
		Dur("elapsed", time.Since(start)).
		Int("transcriptLength", len(out.Text)).
		Msg("Transcription request completed")
	return out.Text, nil
}

func buildForm(pcm []int16, sampleRate int) (*bytes.Buffer, string, error) {
	wavBytes, err := codec.EncodeWAV(codec.PCM{Samples: pcm, SampleRate: sampleRate})
	if err != nil {
		return nil, "", fmt.Errorf("encode upload: %w", err)
	}

	var buf bytes.Buffer
	w := multipart.NewWriter(&buf)

	part, err := w.CreateFormFile("file", "audio.wav")
	if err != nil {
		return nil, "", fmt.Errorf("create form file: %w", err)
	}
	if _, err := part.Write(wavBytes); err != nil {
		return nil, "", fmt.Errorf("write form file: %w", err)
	}
	if err := w.WriteField("model", model); err != nil {
		return nil, "", fmt.Errorf("write model field: %w", err)
	}
	if err := w.WriteField("response_format", "json"); err != nil {
		return nil, "", fmt.Errorf("write response_format field: %w", err)
	}
	if err := w.Close(); err != nil {
		return nil, "", fmt.Errorf("close multipart writer: %w", err)
	}
	return &buf, w.FormDataContentType(), nil
}
