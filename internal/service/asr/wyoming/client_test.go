package wyoming

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"net"
	"strconv"
	"sync"
	"testing"
	"time"

	"github.com/rebble-dev/asr-gateway/internal/service/asr"
)

// fakeServer accepts a single connection and hands each incoming event to
// the script, which decides what to write back.
type fakeServer struct {
	listener net.Listener

	mu       sync.Mutex
	received []string
}

// startFakeServer runs script against the first accepted connection.
// script gets the connection after the full audio-stop sequence arrived.
func startFakeServer(t *testing.T, script func(conn net.Conn, events []*event)) *fakeServer {
	t.Helper()
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	srv := &fakeServer{listener: ln}
	t.Cleanup(func() { ln.Close() })

	go func() {
		conn, err := ln.Accept()
		if err != nil {
			return
		}
		defer conn.Close()

		reader := bufio.NewReader(conn)
		var events []*event
		for {
			ev, err := readEvent(reader)
			if err != nil {
				return
			}
			srv.mu.Lock()
			srv.received = append(srv.received, ev.Type)
			srv.mu.Unlock()
			events = append(events, ev)
			if ev.Type == eventAudioStop {
				break
			}
		}
		script(conn, events)
	}()
	return srv
}

func (s *fakeServer) receivedTypes() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.received...)
}

func (s *fakeServer) client() *Client {
	addr := s.listener.Addr().(*net.TCPAddr)
	return New("127.0.0.1", addr.Port)
}

func shortCtx(t *testing.T) context.Context {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	t.Cleanup(cancel)
	return ctx
}

func TestTranscribe_Success(t *testing.T) {
	srv := startFakeServer(t, func(conn net.Conn, events []*event) {
		writeEvent(conn, eventTranscript, map[string]string{"text": "hello pebble"}, nil)
	})

	pcm := make([]int16, 3200)
	text, err := srv.client().Transcribe(shortCtx(t), pcm, 16000)
	if err != nil {
		t.Fatalf("Transcribe: %v", err)
	}
	if text != "hello pebble" {
		t.Errorf("expected 'hello pebble', got %q", text)
	}

	want := []string{eventTranscribe, eventAudioStart, eventAudioChunk, eventAudioStop}
	got := srv.receivedTypes()
	if len(got) != len(want) {
		t.Fatalf("expected event sequence %v, got %v", want, got)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("expected event sequence %v, got %v", want, got)
		}
	}
}

func TestTranscribe_ChunksLongAudio(t *testing.T) {
	srv := startFakeServer(t, func(conn net.Conn, events []*event) {
		writeEvent(conn, eventTranscript, map[string]string{"text": "ok"}, nil)
	})

	// Three chunk frames: two full plus a remainder.
	pcm := make([]int16, maxChunkSamples*2+100)
	if _, err := srv.client().Transcribe(shortCtx(t), pcm, 16000); err != nil {
		t.Fatalf("Transcribe: %v", err)
	}

	chunks := 0
	for _, typ := range srv.receivedTypes() {
		if typ == eventAudioChunk {
			chunks++
		}
	}
	if chunks != 3 {
		t.Errorf("expected 3 audio-chunk frames, got %d", chunks)
	}
}

func TestTranscribe_AudioStartDeclaresFormat(t *testing.T) {
	var gotFormat audioFormat
	done := make(chan struct{})
	srv := startFakeServer(t, func(conn net.Conn, events []*event) {
		for _, ev := range events {
			if ev.Type == eventAudioStart {
				json.Unmarshal(ev.Data, &gotFormat)
			}
		}
		close(done)
		writeEvent(conn, eventTranscript, map[string]string{"text": "ok"}, nil)
	})

	if _, err := srv.client().Transcribe(shortCtx(t), make([]int16, 160), 16000); err != nil {
		t.Fatalf("Transcribe: %v", err)
	}
	<-done
	if gotFormat.Rate != 16000 || gotFormat.Width != 2 || gotFormat.Channels != 1 {
		t.Errorf("unexpected declared format: %+v", gotFormat)
	}
}

func TestTranscribe_SkipsUnknownEvents(t *testing.T) {
	srv := startFakeServer(t, func(conn net.Conn, events []*event) {
		writeEvent(conn, "voice-started", map[string]int{"timestamp": 10}, nil)
		writeEvent(conn, "voice-stopped", map[string]int{"timestamp": 950}, nil)
		writeEvent(conn, eventTranscript, map[string]string{"text": "after chatter"}, nil)
	})

	text, err := srv.client().Transcribe(shortCtx(t), make([]int16, 160), 16000)
	if err != nil {
		t.Fatalf("Transcribe: %v", err)
	}
	if text != "after chatter" {
		t.Errorf("expected 'after chatter', got %q", text)
	}
}

func TestTranscribe_PayloadCarriedTranscript(t *testing.T) {
	srv := startFakeServer(t, func(conn net.Conn, events []*event) {
		writeEvent(conn, eventTranscript, nil, []byte("payload text"))
	})

	text, err := srv.client().Transcribe(shortCtx(t), make([]int16, 160), 16000)
	if err != nil {
		t.Fatalf("Transcribe: %v", err)
	}
	if text != "payload text" {
		t.Errorf("expected 'payload text', got %q", text)
	}
}

func TestTranscribe_TruncatedTranscriptPayload(t *testing.T) {
	srv := startFakeServer(t, func(conn net.Conn, events []*event) {
		// Promise 100 payload bytes but close after 50.
		conn.Write([]byte(`{"type":"transcript","payload_length":100}` + "\n"))
		conn.Write(make([]byte, 50))
	})

	_, err := srv.client().Transcribe(shortCtx(t), make([]int16, 160), 16000)
	if !errors.Is(err, asr.ErrProtocol) {
		t.Fatalf("expected ErrProtocol, got %v", err)
	}
}

func TestTranscribe_ServerClosesBeforeTranscript(t *testing.T) {
	srv := startFakeServer(t, func(conn net.Conn, events []*event) {
		// Close without answering.
	})

	_, err := srv.client().Transcribe(shortCtx(t), make([]int16, 160), 16000)
	if !errors.Is(err, asr.ErrConnection) {
		t.Fatalf("expected ErrConnection, got %v", err)
	}
}

func TestTranscribe_ConnectionRefused(t *testing.T) {
	// Grab a free port, then close the listener so nothing accepts.
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	port := ln.Addr().(*net.TCPAddr).Port
	ln.Close()

	c := New("127.0.0.1", port)
	_, err = c.Transcribe(shortCtx(t), make([]int16, 160), 16000)
	if !errors.Is(err, asr.ErrConnection) {
		t.Fatalf("expected ErrConnection, got %v", err)
	}
}

func TestTranscribe_Timeout(t *testing.T) {
	srv := startFakeServer(t, func(conn net.Conn, events []*event) {
		time.Sleep(2 * time.Second)
	})

	ctx, cancel := context.WithTimeout(context.Background(), 100*time.Millisecond)
	defer cancel()

	_, err := srv.client().Transcribe(ctx, make([]int16, 160), 16000)
	if !errors.Is(err, asr.ErrTimeout) {
		t.Fatalf("expected ErrTimeout, got %v", err)
	}
}

func TestNew_JoinsHostPort(t *testing.T) {
	c := New("speech.local", 10300)
	if c.addr != net.JoinHostPort("speech.local", strconv.Itoa(10300)) {
		t.Errorf("unexpected addr %q", c.addr)
	}
}
