package asr

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
)

// Classification sentinels for backend failures. Concrete clients wrap one
// of these into every error they return; the dispatcher inspects them with
// errors.Is to decide retry eligibility and the user-facing error detail.
//
// Only ErrConnection and ErrServer are transient: they are retried exactly
// once. Everything else is terminal for the request.
var (
	// ErrConnection - the backend could not be reached (dial, DNS, TLS).
	ErrConnection = errors.New("connection failed")
	// ErrTimeout - the backend did not answer within the request deadline.
	ErrTimeout = errors.New("timeout")
	// ErrClient - the backend rejected the request (bad key, bad payload).
	ErrClient = errors.New("recognition rejected")
	// ErrServer - the backend failed on its side.
	ErrServer = errors.New("recognition failed")
	// ErrProtocol - the backend violated its wire protocol.
	ErrProtocol = errors.New("protocol error")
)

// Retryable reports whether err is worth one more attempt.
func Retryable(err error) bool {
	return errors.Is(err, ErrConnection) || errors.Is(err, ErrServer)
}

// TransportError classifies a transport-level failure (from net/http or a
// raw socket) into the shared taxonomy. Deadline expiry maps to ErrTimeout,
// everything else to ErrConnection.
func TransportError(err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return fmt.Errorf("%w: %s", ErrTimeout, err)
	}
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return fmt.Errorf("%w: %s", ErrTimeout, err)
	}
	return fmt.Errorf("%w: %s", ErrConnection, err)
}

// StatusError classifies a non-2xx HTTP response. Client errors carry a
// short summary of the backend's own message so the caller can see why the
// request was rejected; 5xx responses are retry-eligible server failures.
func StatusError(status int, body []byte) error {
	if status >= 400 && status < 500 {
		if msg := apiMessage(body); msg != "" {
			return fmt.Errorf("%w: status %d: %s", ErrClient, status, msg)
		}
		return fmt.Errorf("%w: status %d", ErrClient, status)
	}
	return fmt.Errorf("%w: status %d", ErrServer, status)
}

// apiMessage pulls a human-readable message out of a provider error body.
// Groq uses OpenAI's {"error":{"message":...}} shape, ElevenLabs reports
// {"detail":{"message":...}} (sometimes a bare string).
func apiMessage(body []byte) string {
	var openai struct {
		Error struct {
			Message string `json:"message"`
		} `json:"error"`
	}
	if json.Unmarshal(body, &openai) == nil && openai.Error.Message != "" {
		return openai.Error.Message
	}
	var eleven struct {
		Detail json.RawMessage `json:"detail"`
	}
	if json.Unmarshal(body, &eleven) == nil && len(eleven.Detail) > 0 {
		var s string
		if json.Unmarshal(eleven.Detail, &s) == nil {
			return s
		}
		var obj struct {
			Message string `json:"message"`
		}
		if json.Unmarshal(eleven.Detail, &obj) == nil && obj.Message != "" {
			return obj.Message
		}
	}
	return ""
}
