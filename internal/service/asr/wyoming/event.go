package wyoming

import (
	"bufio"
	"encoding/json"
	"fmt"
	"io"

	"github.com/rebble-dev/asr-gateway/internal/service/asr"
)

// Event type names on the wire.
const (
	eventTranscribe = "transcribe"
	eventAudioStart = "audio-start"
	eventAudioChunk = "audio-chunk"
	eventAudioStop  = "audio-stop"
	eventTranscript = "transcript"
)

// maxPayloadBytes bounds how large a declared payload may be before the
// frame is rejected as a protocol violation.
const maxPayloadBytes = 8 << 20

// event is one decoded protocol frame.
type event struct {
	Type    string
	Data    json.RawMessage
	Payload []byte
}

// header is the single UTF-8 JSON line that leads every frame. When
// PayloadLength is nonzero, exactly that many raw bytes follow the
// newline.
type header struct {
	Type          string          `json:"type"`
	Data          json.RawMessage `json:"data,omitempty"`
	PayloadLength int             `json:"payload_length,omitempty"`
}

// writeEvent emits one frame: header line, newline, then the payload.
func writeEvent(w io.Writer, typ string, data any, payload []byte) error {
	h := header{Type: typ, PayloadLength: len(payload)}
	if data != nil {
		raw, err := json.Marshal(data)
		if err != nil {
			return fmt.Errorf("marshal event data: %w", err)
		}
		h.Data = raw
	}
	line, err := json.Marshal(h)
	if err != nil {
		return fmt.Errorf("marshal event header: %w", err)
	}
	line = append(line, '\n')
	if _, err := w.Write(line); err != nil {
		return err
	}
	if len(payload) > 0 {
		if _, err := w.Write(payload); err != nil {
			return err
		}
	}
	return nil
}

// readEvent reads one frame. A header that is not valid JSON, or that
// declares a payload the connection cannot satisfy, is a protocol
// violation; raw I/O failures are returned unwrapped for the caller to
// classify.
func readEvent(r *bufio.Reader) (*event, error) {
	line, err := r.ReadBytes('\n')
	if err != nil {
		if err == io.EOF && len(line) > 0 {
			return nil, fmt.Errorf("%w: truncated header", asr.ErrProtocol)
		}
		return nil, err
	}

	var h header
	if err := json.Unmarshal(line, &h); err != nil {
		return nil, fmt.Errorf("%w: malformed header: %s", asr.ErrProtocol, err)
	}
	if h.PayloadLength < 0 || h.PayloadLength > maxPayloadBytes {
		return nil, fmt.Errorf("%w: payload length %d out of range", asr.ErrProtocol, h.PayloadLength)
	}

	ev := &event{Type: h.Type, Data: h.Data}
	if h.PayloadLength > 0 {
		ev.Payload = make([]byte, h.PayloadLength)
		if _, err := io.ReadFull(r, ev.Payload); err != nil {
			return nil, fmt.Errorf("%w: payload truncated: %s", asr.ErrProtocol, err)
		}
	}
	return ev, nil
}
