package asr

import (
	"fmt"
	"io"
)

// MaxResponseBytes caps how much of a provider response body is read.
// Anything larger is treated as a backend failure rather than buffered.
const MaxResponseBytes = 1 << 20

// ReadBounded reads at most MaxResponseBytes from r. An oversized body or
// a read failure comes back already classified.
func ReadBounded(r io.Reader) ([]byte, error) {
	body, err := io.ReadAll(io.LimitReader(r, MaxResponseBytes+1))
	if err != nil {
		return nil, TransportError(err)
	}
	if len(body) > MaxResponseBytes {
		return nil, fmt.Errorf("%w: response body exceeds %d bytes", ErrServer, MaxResponseBytes)
	}
	return body, nil
}
