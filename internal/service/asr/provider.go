// Package asr defines the interface recognition backends implement and the
// failure classification shared by all of them.
package asr

import "context"

// Provider is a recognition backend able to turn one utterance of PCM
// audio into text. Implementations must be safe for concurrent use: the
// gateway resolves a single Provider at startup and shares it across
// request workers.
type Provider interface {
	// Transcribe converts 16-bit mono PCM samples to text. Blocking work
	// is bounded by ctx; errors are classified with the sentinels in this
	// package so the dispatcher can apply its retry policy.
	Transcribe(ctx context.Context, pcm []int16, sampleRate int) (string, error)

	// Name returns the provider name (e.g. "groq").
	Name() string
}
