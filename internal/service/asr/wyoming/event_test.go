package wyoming

import (
	"bufio"
	"bytes"
	"errors"
	"io"
	"strings"
	"testing"

	"github.com/rebble-dev/asr-gateway/internal/service/asr"
)

func TestEventRoundTrip_HeaderOnly(t *testing.T) {
	var buf bytes.Buffer
	if err := writeEvent(&buf, eventAudioStop, nil, nil); err != nil {
		t.Fatalf("writeEvent: %v", err)
	}

	ev, err := readEvent(bufio.NewReader(&buf))
	if err != nil {
		t.Fatalf("readEvent: %v", err)
	}
	if ev.Type != eventAudioStop {
		t.Errorf("expected type %q, got %q", eventAudioStop, ev.Type)
	}
	if len(ev.Payload) != 0 {
		t.Errorf("expected no payload, got %d bytes", len(ev.Payload))
	}
}

func TestEventRoundTrip_DataAndPayload(t *testing.T) {
	var buf bytes.Buffer
	format := audioFormat{Rate: 16000, Width: 2, Channels: 1}
	payload := []byte{0x01, 0x02, 0x03, 0x04}
	if err := writeEvent(&buf, eventAudioChunk, format, payload); err != nil {
		t.Fatalf("writeEvent: %v", err)
	}

	ev, err := readEvent(bufio.NewReader(&buf))
	if err != nil {
		t.Fatalf("readEvent: %v", err)
	}
	if ev.Type != eventAudioChunk {
		t.Errorf("expected type %q, got %q", eventAudioChunk, ev.Type)
	}
	if !bytes.Equal(ev.Payload, payload) {
		t.Errorf("payload mismatch: %v", ev.Payload)
	}
	if !strings.Contains(string(ev.Data), `"rate":16000`) {
		t.Errorf("data field lost: %s", ev.Data)
	}
}

func TestReadEvent_MalformedHeader(t *testing.T) {
	r := bufio.NewReader(strings.NewReader("this is not json\n"))
	_, err := readEvent(r)
	if !errors.Is(err, asr.ErrProtocol) {
		t.Fatalf("expected ErrProtocol, got %v", err)
	}
}

func TestReadEvent_TruncatedHeader(t *testing.T) {
	// Stream ends mid-line, before the header's terminating newline.
	r := bufio.NewReader(strings.NewReader(`{"type":"transcri`))
	_, err := readEvent(r)
	if !errors.Is(err, asr.ErrProtocol) {
		t.Fatalf("expected ErrProtocol, got %v", err)
	}
}

func TestReadEvent_PayloadLengthOutOfRange(t *testing.T) {
	for _, line := range []string{
		`{"type":"transcript","payload_length":-1}` + "\n",
		`{"type":"transcript","payload_length":999999999}` + "\n",
	} {
		_, err := readEvent(bufio.NewReader(strings.NewReader(line)))
		if !errors.Is(err, asr.ErrProtocol) {
			t.Errorf("line %q: expected ErrProtocol, got %v", line, err)
		}
	}
}

func TestReadEvent_TruncatedPayload(t *testing.T) {
	// Header promises 100 bytes but only 5 follow.
	r := bufio.NewReader(strings.NewReader(`{"type":"audio-chunk","payload_length":100}` + "\nhello"))
	_, err := readEvent(r)
	if !errors.Is(err, asr.ErrProtocol) {
		t.Fatalf("expected ErrProtocol, got %v", err)
	}
}

func TestReadEvent_CleanEOF(t *testing.T) {
	_, err := readEvent(bufio.NewReader(strings.NewReader("")))
	if err != io.EOF {
		t.Fatalf("expected raw io.EOF at frame boundary, got %v", err)
	}
}
