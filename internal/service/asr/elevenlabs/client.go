// Package elevenlabs implements the ElevenLabs speech-to-text backend.
package elevenlabs

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"mime/multipart"
	"net/http"
	"net/textproto"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/rebble-dev/asr-gateway/internal/service/asr"
	"github.com/rebble-dev/asr-gateway/internal/service/codec"
)

const (
	defaultEndpoint = "https://api.elevenlabs.io/v1/speech-to-text"

	// Recognition parameters are provider identity, not configuration.
	modelID = "scribe_v1"
)

// Client is the ElevenLabs recognition backend.
type Client struct {
	apiKey     string
	endpoint   string
	httpClient *http.Client
}

// New creates an ElevenLabs client. The API key is required.
func New(apiKey string) (*Client, error) {
	if apiKey == "" {
		return nil, errors.New("elevenlabs: API key not configured")
	}
	return &Client{
		apiKey:     apiKey,
		endpoint:   defaultEndpoint,
		httpClient: &http.Client{},
	}, nil
}

// Name returns the provider name.
func (c *Client) Name() string { return "elevenlabs" }

// Transcribe uploads the utterance as an in-memory WAV file and parses the
// transcript out of the JSON response.
func (c *Client) Transcribe(ctx context.Context, pcm []int16, sampleRate int) (string, error) {
	body, contentType, err := buildForm(pcm, sampleRate)
	if err != nil {
		return "", err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint, body)
	if err != nil {
		return "", fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("xi-api-key", c.apiKey)
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
			Str("provider", "elevenlabs").
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
		Str("provider", "elevenlabs").
		Dur("elapsed", time.Since(start)).
		Int("transcriptLength", len(out.Text)).
		Msg("Transcription request completed")
	return out.Text, nil
}

// buildForm packages the PCM as the multipart body ElevenLabs expects.
func buildForm(pcm []int16, sampleRate int) (*bytes.Buffer, string, error) {
	wavBytes, err := codec.EncodeWAV(codec.PCM{Samples: pcm, SampleRate: sampleRate})
	if err != nil {
		return nil, "", fmt.Errorf("encode upload: %w", err)
	}

	var buf bytes.Buffer
	w := multipart.NewWriter(&buf)

	hdr := textproto.MIMEHeader{}
	hdr.Set("Content-Disposition", `form-data; name="file"; filename="audio.wav"`)
	hdr.Set("Content-Type", "audio/wav")
	part, err := w.CreatePart(hdr)
	if err != nil {
		return nil, "", fmt.Errorf("create form file: %w", err)
	}
	if _, err := part.Write(wavBytes); err != nil {
		return nil, "", fmt.Errorf("write form file: %w", err)
	}

	fields := map[string]string{
		"model_id":               modelID,
		"tag_audio_events":       "false",
		"timestamps_granularity": "none",
	}
	for name, value := range fields {
		if err := w.WriteField(name, value); err != nil {
			return nil, "", fmt.Errorf("write field %s: %w", name, err)
		}
	}
	if err := w.Close(); err != nil {
		return nil, "", fmt.Errorf("close multipart writer: %w", err)
	}
	return &buf, w.FormDataContentType(), nil
}
