// Package models defines the data structures shared across the gateway.
package models

// TranscriptionResult is the single normalized shape every recognition
// backend produces, regardless of its native response schema.
type TranscriptionResult struct {
	Text        string `json:"text"`
	Success     bool   `json:"success"`
	ErrorDetail string `json:"errorDetail,omitempty"`
}

// Word is one recognized word in the device-facing response payload.
type Word struct {
	Word       string  `json:"word"`
	Confidence float64 `json:"confidence"`
}

// TranscriptFinal is the event published when a request produces text.
type TranscriptFinal struct {
	EventType  string `json:"eventType"`
	RequestID  string `json:"requestId"`
	Provider   string `json:"provider"`
	Text       string `json:"text"`
	DurationMs int64  `json:"durationMs"`
	Timestamp  int64  `json:"timestamp"`
}
