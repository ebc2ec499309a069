// Package mock provides a scriptable recognition backend for tests and
// for running the gateway without credentials or a local ASR engine.
package mock

import (
	"context"
	"sync"
)

// Response is one scripted outcome.
type Response struct {
	Text string
	Err  error
}

// Provider implements asr.Provider with scripted responses. Responses are
// consumed in order; the last one repeats once the script is exhausted.
// Safe for concurrent use.
type Provider struct {
	mu        sync.Mutex
	calls     int
	responses []Response
}

// New creates a mock provider returning a fixed transcript.
func New() *Provider {
	return &Provider{responses: []Response{{Text: "mock transcript"}}}
}

// NewScripted creates a mock provider that plays back the given responses.
func NewScripted(responses ...Response) *Provider {
	return &Provider{responses: responses}
}

// Transcribe returns the next scripted response.
func (p *Provider) Transcribe(ctx context.Context, pcm []int16, sampleRate int) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	idx := p.calls
	if idx >= len(p.responses) {
		idx = len(p.responses) - 1
	}
	p.calls++

	if idx < 0 {
		return "", nil
	}
	r := p.responses[idx]
	return r.Text, r.Err
}

// Name returns the provider name.
func (p *Provider) Name() string { return "mock" }

// Calls reports how many times Transcribe was invoked.
func (p *Provider) Calls() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.calls
}
