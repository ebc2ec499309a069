package dispatch

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/rebble-dev/asr-gateway/internal/events"
	"github.com/rebble-dev/asr-gateway/internal/service/asr"
	"github.com/rebble-dev/asr-gateway/internal/service/asr/mock"
	"github.com/rebble-dev/asr-gateway/internal/service/codec"
)

func testDispatcher(provider asr.Provider, timeout time.Duration) *Dispatcher {
	d := New(provider, events.New(&events.Config{Enabled: false}), timeout)
	// Feed PCM straight through so pipeline tests need no encoded audio.
	d.decode = func(data []byte) (codec.PCM, error) {
		if len(data) == 0 {
			return codec.PCM{}, codec.ErrEmptyAudio
		}
		samples := make([]int16, len(data))
		for i, b := range data {
			samples[i] = int16(b)
		}
		return codec.PCM{Samples: samples, SampleRate: codec.TargetSampleRate}, nil
	}
	return d
}

func TestTranscribe_Success(t *testing.T) {
	provider := mock.NewScripted(mock.Response{Text: "note to self"})
	d := testDispatcher(provider, time.Second)

	result := d.Transcribe(context.Background(), "req-1", []byte{1, 2, 3})
	if !result.Success {
		t.Fatalf("expected success, got %+v", result)
	}
	if result.Text != "note to self" {
		t.Errorf("expected transcript 'note to self', got %q", result.Text)
	}
	if got := provider.Calls(); got != 1 {
		t.Errorf("expected 1 backend call, got %d", got)
	}
}

func TestTranscribe_EmptyAudioNeverReachesBackend(t *testing.T) {
	provider := mock.New()
	d := testDispatcher(provider, time.Second)

	result := d.Transcribe(context.Background(), "req-1", nil)
	if result.Success {
		t.Fatal("expected failure for empty audio")
	}
	if result.ErrorDetail != "empty audio" {
		t.Errorf("expected detail 'empty audio', got %q", result.ErrorDetail)
	}
	if got := provider.Calls(); got != 0 {
		t.Errorf("backend called %d times for empty audio", got)
	}
}

func TestTranscribe_MalformedAudio(t *testing.T) {
	provider := mock.New()
	d := testDispatcher(provider, time.Second)
	d.decode = func([]byte) (codec.PCM, error) {
		return codec.PCM{}, fmt.Errorf("%w: not a valid stream", codec.ErrMalformed)
	}

	result := d.Transcribe(context.Background(), "req-1", []byte{1, 2, 3})
	if result.Success || result.ErrorDetail != "invalid audio" {
		t.Fatalf("expected 'invalid audio' failure, got %+v", result)
	}
	if got := provider.Calls(); got != 0 {
		t.Errorf("backend called %d times for undecodable audio", got)
	}
}

func TestTranscribe_RetriesTransientFailureOnce(t *testing.T) {
	provider := mock.NewScripted(
		mock.Response{Err: fmt.Errorf("%w: dial tcp: refused", asr.ErrConnection)},
		mock.Response{Text: "second time lucky"},
	)
	d := testDispatcher(provider, time.Second)

	result := d.Transcribe(context.Background(), "req-1", []byte{1})
	if !result.Success || result.Text != "second time lucky" {
		t.Fatalf("expected retried success, got %+v", result)
	}
	if got := provider.Calls(); got != 2 {
		t.Errorf("expected exactly 2 backend calls, got %d", got)
	}
}

func TestTranscribe_RetryExhausted(t *testing.T) {
	provider := mock.NewScripted(
		mock.Response{Err: fmt.Errorf("%w: status 503", asr.ErrServer)},
	)
	d := testDispatcher(provider, time.Second)

	result := d.Transcribe(context.Background(), "req-1", []byte{1})
	if result.Success {
		t.Fatal("expected failure after retry exhausted")
	}
	if result.ErrorDetail != "recognition failed" {
		t.Errorf("expected detail 'recognition failed', got %q", result.ErrorDetail)
	}
	if got := provider.Calls(); got != 2 {
		t.Errorf("expected exactly 2 backend calls, got %d", got)
	}
}

func TestTranscribe_ClientErrorNotRetried(t *testing.T) {
	provider := mock.NewScripted(
		mock.Response{Err: fmt.Errorf("%w: status 401: Invalid API Key", asr.ErrClient)},
	)
	d := testDispatcher(provider, time.Second)

	result := d.Transcribe(context.Background(), "req-1", []byte{1})
	if result.Success {
		t.Fatal("expected failure")
	}
	if !strings.Contains(result.ErrorDetail, "401") {
		t.Errorf("expected client detail to carry the rejection, got %q", result.ErrorDetail)
	}
	if got := provider.Calls(); got != 1 {
		t.Errorf("client rejection retried: %d calls", got)
	}
}

// slowProvider blocks until its context is cancelled.
type slowProvider struct {
	calls int
}

func (p *slowProvider) Transcribe(ctx context.Context, pcm []int16, sampleRate int) (string, error) {
	p.calls++
	<-ctx.Done()
	return "", ctx.Err()
}

func (p *slowProvider) Name() string { return "slow" }

func TestTranscribe_TimeoutNotRetried(t *testing.T) {
	provider := &slowProvider{}
	d := testDispatcher(provider, 50*time.Millisecond)

	start := time.Now()
	result := d.Transcribe(context.Background(), "req-1", []byte{1})
	if result.Success {
		t.Fatal("expected failure")
	}
	if result.ErrorDetail != "timeout" {
		t.Errorf("expected detail 'timeout', got %q", result.ErrorDetail)
	}
	if provider.calls != 1 {
		t.Errorf("timeout retried: %d calls", provider.calls)
	}
	if elapsed := time.Since(start); elapsed > time.Second {
		t.Errorf("timeout path took %v, deadline not enforced", elapsed)
	}
}

func TestTranscribe_ProtocolError(t *testing.T) {
	provider := mock.NewScripted(
		mock.Response{Err: fmt.Errorf("%w: malformed header", asr.ErrProtocol)},
	)
	d := testDispatcher(provider, time.Second)

	result := d.Transcribe(context.Background(), "req-1", []byte{1})
	if result.Success || result.ErrorDetail != "protocol error" {
		t.Fatalf("expected 'protocol error' failure, got %+v", result)
	}
	if got := provider.Calls(); got != 1 {
		t.Errorf("protocol error retried: %d calls", got)
	}
}

func TestErrorDetail(t *testing.T) {
	cases := []struct {
		err  error
		want string
	}{
		{fmt.Errorf("%w: read tcp: i/o timeout", asr.ErrTimeout), "timeout"},
		{fmt.Errorf("%w: bad frame", asr.ErrProtocol), "protocol error"},
		{fmt.Errorf("%w: dial tcp: refused", asr.ErrConnection), "connection failed"},
		{fmt.Errorf("%w: status 500", asr.ErrServer), "recognition failed"},
		{errors.New("something odd"), "recognition failed"},
	}
	for _, tc := range cases {
		if got := errorDetail(tc.err); got != tc.want {
			t.Errorf("errorDetail(%v) = %q, want %q", tc.err, got, tc.want)
		}
	}
}

func TestClassLabel(t *testing.T) {
	cases := []struct {
		err  error
		want string
	}{
		{nil, ""},
		{codec.ErrEmptyAudio, "empty_audio"},
		{fmt.Errorf("%w: junk", codec.ErrMalformed), "decode"},
		{asr.ErrTimeout, "timeout"},
		{asr.ErrProtocol, "protocol"},
		{asr.ErrConnection, "connection"},
		{asr.ErrClient, "client"},
		{asr.ErrServer, "server"},
		{errors.New("other"), "internal"},
	}
	for _, tc := range cases {
		if got := classLabel(tc.err); got != tc.want {
			t.Errorf("classLabel(%v) = %q, want %q", tc.err, got, tc.want)
		}
	}
}

func TestProvider_Name(t *testing.T) {
	d := testDispatcher(mock.New(), time.Second)
	if got := d.Provider(); got != "mock" {
		t.Errorf("expected provider name mock, got %q", got)
	}
}
