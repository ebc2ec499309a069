// Package wyoming implements the client for a Wyoming-compatible local
// recognition service: a length-framed JSON+binary event exchange over
// TCP. Every request runs the same exchange — announce the transcription,
// declare the audio format, stream bounded PCM chunks, signal stop, then
// wait for a transcript event.
package wyoming

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"strconv"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/rebble-dev/asr-gateway/internal/service/asr"
)

const (
	sampleWidth = 2 // bytes per sample, 16-bit PCM
	channels    = 1

	// maxChunkSamples keeps audio-chunk payloads at 32 KiB so a long
	// utterance never produces one oversized frame.
	maxChunkSamples = 16 * 1024
)

// Client is the Wyoming recognition backend. It opens a fresh connection
// per request; the service keeps decode state per stream, so pooling
// would leak state across utterances.
type Client struct {
	addr   string
	dialer net.Dialer
}

// New creates a Wyoming client for the given service address.
func New(host string, port int) *Client {
	return &Client{addr: net.JoinHostPort(host, strconv.Itoa(port))}
}

// Name returns the provider name.
func (c *Client) Name() string { return "wyoming-whisper" }

// Transcribe streams the utterance to the service and waits for its
// transcript event. The socket is always closed on return, and every read
// and write is bounded by the ctx deadline.
func (c *Client) Transcribe(ctx context.Context, pcm []int16, sampleRate int) (string, error) {
	start := time.Now()

	conn, err := c.dialer.DialContext(ctx, "tcp", c.addr)
	if err != nil {
		return "", asr.TransportError(err)
	}
	defer conn.Close()
	if deadline, ok := ctx.Deadline(); ok {
		if err := conn.SetDeadline(deadline); err != nil {
			return "", asr.TransportError(err)
		}
	}

	s := &session{conn: conn, reader: bufio.NewReader(conn)}
	if err := s.announce(); err != nil {
		return "", err
	}
	if err := s.audioStart(sampleRate); err != nil {
		return "", err
	}
	if err := s.audioChunks(pcm, sampleRate); err != nil {
		return "", err
	}
	if err := s.audioStop(); err != nil {
		return "", err
	}
	text, err := s.awaitTranscript()
	if err != nil {
		return "", err
	}

	log.Debug().
		Str("provider", "wyoming-whisper").
		Str("addr", c.addr).
		Int("samples", len(pcm)).
		Dur("elapsed", time.Since(start)).
		Msg("Transcription exchange completed")
	return text, nil
}

// session holds the state for one protocol exchange. Each method is one
// transition of the exchange's state machine.
type session struct {
	conn   net.Conn
	reader *bufio.Reader
}

// audioFormat mirrors the data fields of audio-start and audio-chunk.
type audioFormat struct {
	Rate     int `json:"rate"`
	Width    int `json:"width"`
	Channels int `json:"channels"`
}

// announce declares the intent to transcribe. Header only, no payload.
func (s *session) announce() error {
	return classifyIO(writeEvent(s.conn, eventTranscribe, struct{}{}, nil))
}

// audioStart declares the format of the PCM that follows.
func (s *session) audioStart(sampleRate int) error {
	format := audioFormat{Rate: sampleRate, Width: sampleWidth, Channels: channels}
	return classifyIO(writeEvent(s.conn, eventAudioStart, format, nil))
}

// audioChunks streams the PCM as bounded-size binary payload frames.
func (s *session) audioChunks(pcm []int16, sampleRate int) error {
	format := audioFormat{Rate: sampleRate, Width: sampleWidth, Channels: channels}
	for len(pcm) > 0 {
		n := len(pcm)
		if n > maxChunkSamples {
			n = maxChunkSamples
		}
		payload := make([]byte, n*sampleWidth)
		for i, sample := range pcm[:n] {
			payload[i*2] = byte(sample)
			payload[i*2+1] = byte(sample >> 8)
		}
		if err := classifyIO(writeEvent(s.conn, eventAudioChunk, format, payload)); err != nil {
			return err
		}
		pcm = pcm[n:]
	}
	return nil
}

// audioStop signals the end of the utterance.
func (s *session) audioStop() error {
	return classifyIO(writeEvent(s.conn, eventAudioStop, nil, nil))
}

// awaitTranscript reads frames until a transcript event arrives. Event
// types this client does not know are skipped for forward compatibility.
func (s *session) awaitTranscript() (string, error) {
	for {
		ev, err := readEvent(s.reader)
		if err != nil {
			if errors.Is(err, asr.ErrProtocol) {
				return "", err
			}
			if err == io.EOF {
				return "", fmt.Errorf("%w: connection closed before transcript", asr.ErrConnection)
			}
			return "", asr.TransportError(err)
		}
		if ev.Type != eventTranscript {
			continue
		}

		var data struct {
			Text string `json:"text"`
		}
		if len(ev.Data) > 0 {
			if err := json.Unmarshal(ev.Data, &data); err != nil {
				return "", fmt.Errorf("%w: malformed transcript data: %s", asr.ErrProtocol, err)
			}
		}
		// Some engines carry the text as the frame payload instead of an
		// inline data field.
		if data.Text == "" && len(ev.Payload) > 0 {
			return string(ev.Payload), nil
		}
		return data.Text, nil
	}
}

// classifyIO maps raw socket failures into the shared taxonomy while
// passing protocol violations through untouched.
func classifyIO(err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, asr.ErrProtocol) {
		return err
	}
	return asr.TransportError(err)
}
