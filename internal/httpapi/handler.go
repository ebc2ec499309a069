package httpapi

import (
	"encoding/json"
	"io"
	"net/http"

	"github.com/go-chi/chi/v5/middleware"
	"github.com/rs/zerolog"

	"github.com/rebble-dev/asr-gateway/internal/models"
	"github.com/rebble-dev/asr-gateway/internal/observability/logging"
	"github.com/rebble-dev/asr-gateway/internal/service/dispatch"
)

// maxUploadBytes bounds the device upload. Utterances are a few seconds
// of compressed voice audio; anything near this limit is garbage.
const maxUploadBytes = 10 << 20

// Handler serves the transcription endpoints.
type Handler struct {
	dispatcher *dispatch.Dispatcher
	log        zerolog.Logger
}

// NewHandler constructs the HTTP handler around the dispatcher.
func NewHandler(dispatcher *dispatch.Dispatcher) *Handler {
	return &Handler{
		dispatcher: dispatcher,
		log:        logging.WithComponent("httpapi"),
	}
}

// Heartbeat answers the device's liveness probe.
func (h *Handler) Heartbeat(w http.ResponseWriter, _ *http.Request) {
	w.Write([]byte("asr"))
}

// Recognize handles the device's NMSP-style multipart upload and answers
// in the multipart shape the firmware parses.
func (h *Handler) Recognize(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxUploadBytes))
	if err != nil {
		h.log.Debug().Err(err).Msg("Rejected oversized or unreadable upload")
		http.Error(w, "invalid request body", http.StatusRequestEntityTooLarge)
		return
	}

	audio, err := extractAudio(body, r.Header.Get("Content-Type"))
	if err != nil {
		h.log.Debug().Err(err).Msg("Rejected unparseable upload")
		http.Error(w, "invalid request body", http.StatusBadRequest)
		return
	}

	requestID := middleware.GetReqID(r.Context())
	result := h.dispatcher.Transcribe(r.Context(), requestID, audio)

	// The firmware retries on an empty result but chokes on errors, so
	// a silent utterance gets the retry prompt rather than a 5xx.
	if !result.Success && result.ErrorDetail != "empty audio" {
		http.Error(w, "transcription failed", http.StatusInternalServerError)
		return
	}
	if err := writeDeviceResponse(w, result.Text); err != nil {
		h.log.Error().Err(err).Msg("Failed to render device response")
	}
}

// Transcribe is the plain surface: raw codec payload in, JSON result out.
func (h *Handler) Transcribe(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxUploadBytes))
	if err != nil {
		http.Error(w, "invalid request body", http.StatusRequestEntityTooLarge)
		return
	}

	requestID := middleware.GetReqID(r.Context())
	result := h.dispatcher.Transcribe(r.Context(), requestID, body)

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusFor(result))
	if err := json.NewEncoder(w).Encode(result); err != nil {
		h.log.Error().Err(err).Msg("Failed to encode result")
	}
}

func statusFor(result models.TranscriptionResult) int {
	switch {
	case result.Success:
		return http.StatusOK
	case result.ErrorDetail == "empty audio" || result.ErrorDetail == "invalid audio":
		return http.StatusBadRequest
	default:
		return http.StatusBadGateway
	}
}
