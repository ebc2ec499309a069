// Package dispatch owns the uniform request pipeline: decode the utterance,
// call the one resolved recognition backend, and apply the shared timeout,
// retry and error-normalization policy so callers see a single result
// contract regardless of which backend is active.
package dispatch

import (
	"context"
	"errors"
	"time"

	"github.com/rs/zerolog"

	"github.com/rebble-dev/asr-gateway/internal/events"
	"github.com/rebble-dev/asr-gateway/internal/models"
	"github.com/rebble-dev/asr-gateway/internal/observability/logging"
	"github.com/rebble-dev/asr-gateway/internal/observability/metrics"
	"github.com/rebble-dev/asr-gateway/internal/service/asr"
	"github.com/rebble-dev/asr-gateway/internal/service/codec"
)

const (
	// retryDelay is the fixed backoff before the single retry of a
	// transient backend failure. Long enough to ride out a connection
	// blip, short enough not to matter to the device's own timeout.
	retryDelay = 250 * time.Millisecond
)

// Dispatcher resolves to one recognition backend at startup and is
// read-only afterwards, so it is safe for concurrent use by all request
// workers.
type Dispatcher struct {
	provider  asr.Provider
	publisher *events.Publisher
	timeout   time.Duration

	// decode is swappable so pipeline tests can feed PCM directly.
	decode func([]byte) (codec.PCM, error)

	metrics *metrics.Metrics
	log     zerolog.Logger
}

// New constructs a Dispatcher around the resolved provider.
func New(provider asr.Provider, publisher *events.Publisher, timeout time.Duration) *Dispatcher {
	return &Dispatcher{
		provider:  provider,
		publisher: publisher,
		timeout:   timeout,
		decode:    codec.Decode,
		metrics:   metrics.DefaultMetrics,
		log:       logging.WithComponent("dispatcher"),
	}
}

// NewWithDecoder constructs a Dispatcher whose decode step is supplied by
// the caller, for surfaces that accept audio in a different container.
func NewWithDecoder(provider asr.Provider, publisher *events.Publisher, timeout time.Duration, decode func([]byte) (codec.PCM, error)) *Dispatcher {
	d := New(provider, publisher, timeout)
	d.decode = decode
	return d
}

// Provider returns the name of the active backend.
func (d *Dispatcher) Provider() string {
	return d.provider.Name()
}

// Transcribe runs one utterance through the pipeline. It always returns a
// result object: every failure is folded into the normalized shape and no
// error type, stack trace or credential ever crosses this boundary.
func (d *Dispatcher) Transcribe(ctx context.Context, requestID string, audio []byte) models.TranscriptionResult {
	start := time.Now()
	d.metrics.RecordRequestStart(len(audio))

	reqLog := d.log.With().
		Str("requestId", requestID).
		Str("provider", d.provider.Name()).
		Int("audioBytes", len(audio)).
		Logger()

	pcm, err := d.decode(audio)
	if err != nil {
		d.metrics.RecordDecodeFailure(classLabel(err))
		return d.fail(reqLog, start, decodeDetail(err), err)
	}

	reqLog.Debug().
		Int("samples", len(pcm.Samples)).
		Int("sampleRate", pcm.SampleRate).
		Dur("audioDuration", pcm.Duration()).
		Msg("Decoded utterance")

	text, err := d.callWithRetry(ctx, pcm)
	if err != nil {
		return d.fail(reqLog, start, errorDetail(err), err)
	}

	elapsed := time.Since(start)
	d.metrics.RecordRequestEnd("", elapsed)
	reqLog.Debug().
		Dur("elapsed", elapsed).
		Int("transcriptLength", len(text)).
		Msg("Transcription succeeded")

	d.publishFinal(ctx, requestID, text, elapsed)

	return models.TranscriptionResult{Text: text, Success: true}
}

// callWithRetry performs the bounded backend call, retrying exactly once
// on a transient failure. Timeouts are never retried: a slow recognition
// pass must not be silently duplicated against a paid API.
func (d *Dispatcher) callWithRetry(ctx context.Context, pcm codec.PCM) (string, error) {
	text, err := d.call(ctx, pcm)
	if err == nil || !asr.Retryable(err) {
		return text, err
	}

	d.metrics.RecordRetry()
	d.log.Debug().Err(err).Msg("Transient backend failure, retrying once")

	select {
	case <-time.After(retryDelay):
	case <-ctx.Done():
		return "", asr.TransportError(ctx.Err())
	}
	return d.call(ctx, pcm)
}

func (d *Dispatcher) call(ctx context.Context, pcm codec.PCM) (string, error) {
	callCtx, cancel := context.WithTimeout(ctx, d.timeout)
	defer cancel()

	start := time.Now()
	text, err := d.provider.Transcribe(callCtx, pcm.Samples, pcm.SampleRate)
	if err != nil {
		// Backends classify their own failures, but a deadline that
		// fired between calls surfaces as a bare context error.
		if errors.Is(err, context.DeadlineExceeded) && !errors.Is(err, asr.ErrTimeout) {
			err = asr.TransportError(err)
		}
		d.metrics.RecordProviderCall(d.provider.Name(), classLabel(err), time.Since(start))
		return "", err
	}
	d.metrics.RecordProviderCall(d.provider.Name(), "ok", time.Since(start))
	return text, nil
}

// publishFinal emits the transcript event. Best-effort: the result has
// already been produced, so a publish failure only logs.
func (d *Dispatcher) publishFinal(ctx context.Context, requestID, text string, elapsed time.Duration) {
	if d.publisher == nil {
		return
	}
	ev := models.TranscriptFinal{
		EventType:  "asr.transcript.final",
		RequestID:  requestID,
		Provider:   d.provider.Name(),
		Text:       text,
		DurationMs: elapsed.Milliseconds(),
		Timestamp:  time.Now().UnixMilli(),
	}
	// The request may be about to complete; don't let its cancellation
	// drop the event.
	_ = d.publisher.Publish(context.WithoutCancel(ctx), requestID, ev)
}

func (d *Dispatcher) fail(reqLog zerolog.Logger, start time.Time, detail string, err error) models.TranscriptionResult {
	elapsed := time.Since(start)
	d.metrics.RecordRequestEnd(classLabel(err), elapsed)
	reqLog.Debug().
		Err(err).
		Dur("elapsed", elapsed).
		Str("detail", detail).
		Msg("Transcription failed")
	return models.TranscriptionResult{Success: false, ErrorDetail: detail}
}

// decodeDetail maps decode-layer failures to their user-visible detail.
func decodeDetail(err error) string {
	if errors.Is(err, codec.ErrEmptyAudio) {
		return "empty audio"
	}
	return "invalid audio"
}

// errorDetail maps backend failures to a short human-readable string.
// Client rejections keep the backend's own summary; everything else is a
// fixed phrase so no internal detail leaks to the device.
func errorDetail(err error) string {
	switch {
	case errors.Is(err, asr.ErrTimeout):
		return "timeout"
	case errors.Is(err, asr.ErrProtocol):
		return "protocol error"
	case errors.Is(err, asr.ErrConnection):
		return "connection failed"
	case errors.Is(err, asr.ErrClient):
		return err.Error()
	default:
		return "recognition failed"
	}
}

// classLabel names the failure class for metrics.
func classLabel(err error) string {
	switch {
	case err == nil:
		return ""
	case errors.Is(err, codec.ErrEmptyAudio):
		return "empty_audio"
	case errors.Is(err, codec.ErrMalformed):
		return "decode"
	case errors.Is(err, asr.ErrTimeout):
		return "timeout"
	case errors.Is(err, asr.ErrProtocol):
		return "protocol"
	case errors.Is(err, asr.ErrConnection):
		return "connection"
	case errors.Is(err, asr.ErrClient):
		return "client"
	case errors.Is(err, asr.ErrServer):
		return "server"
	default:
		return "internal"
	}
}
