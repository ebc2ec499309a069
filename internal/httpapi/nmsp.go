package httpapi

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"mime"
	"mime/multipart"
	"net/http"
	"net/textproto"
	"strings"
	"unicode"
	"unicode/utf8"

	"github.com/rebble-dev/asr-gateway/internal/models"
)

// nmspBoundary is the fixed response boundary the firmware expects.
const nmspBoundary = "--Nuance_NMSP_vutc5w1XobDdefsYG3wq"

// extractAudio pulls the codec payload out of the request body. The
// device posts an NMSP-style multipart stream whose audio parts carry the
// compressed voice payload; anything else is treated as a raw payload.
func extractAudio(body []byte, contentType string) ([]byte, error) {
	mediaType, params, err := mime.ParseMediaType(contentType)
	if err != nil || !strings.HasPrefix(mediaType, "multipart/") {
		return body, nil
	}
	boundary := params["boundary"]
	if boundary == "" {
		return nil, errors.New("multipart content without boundary")
	}

	parts := splitNMSPParts(body, boundary)

	// The first three parts are session metadata. Longer uploads carry
	// extra bookkeeping parts around the audio; the firmware's framing
	// puts the voice payload at parts 12..len-3 in that case.
	if len(parts) > 3 {
		parts = parts[3:]
	} else {
		parts = nil
	}
	if len(parts) > 15 {
		parts = parts[12 : len(parts)-3]
	}

	var audio []byte
	for _, part := range parts {
		audio = append(audio, part...)
	}
	return audio, nil
}

// splitNMSPParts performs the lenient boundary split the device framing
// needs. The NMSP stream is not strict RFC 2046 multipart, so the stdlib
// reader rejects it; part headers are skipped and each part's trailing
// CRLF is stripped.
func splitNMSPParts(body []byte, boundary string) [][]byte {
	marker := []byte("--" + boundary)
	var parts [][]byte
	for _, frame := range bytes.Split(body, marker) {
		if len(frame) == 0 {
			continue
		}
		_, content, found := bytes.Cut(frame, []byte("\r\n\r\n"))
		if !found {
			continue
		}
		parts = append(parts, bytes.TrimSuffix(content, []byte("\r\n")))
	}
	return parts
}

// writeDeviceResponse renders the transcript in the multipart shape the
// firmware parses: a QueryResult part with the recognized words, or a
// QueryRetry part when nothing was recognized.
func writeDeviceResponse(w http.ResponseWriter, text string) error {
	words := shapeWords(text)

	var (
		partName string
		payload  []byte
		err      error
	)
	if len(words) > 0 {
		partName = "QueryResult"
		payload, err = json.Marshal(map[string][][]models.Word{"words": {words}})
	} else {
		partName = "QueryRetry"
		payload, err = json.Marshal(map[string]any{
			"Cause":  1,
			"Name":   "AUDIO_INFO",
			"Prompt": "Sorry, speech not recognized. Please try again.",
		})
	}
	if err != nil {
		return fmt.Errorf("marshal payload: %w", err)
	}

	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	if err := mw.SetBoundary(nmspBoundary); err != nil {
		return fmt.Errorf("set boundary: %w", err)
	}

	hdr := textproto.MIMEHeader{}
	hdr.Set("Content-Type", "application/JSON; charset=utf-8")
	hdr.Set("Content-Disposition", fmt.Sprintf(`form-data; name=%q`, partName))
	part, err := mw.CreatePart(hdr)
	if err != nil {
		return fmt.Errorf("create part: %w", err)
	}
	if _, err := part.Write(payload); err != nil {
		return fmt.Errorf("write part: %w", err)
	}
	if err := mw.Close(); err != nil {
		return fmt.Errorf("close writer: %w", err)
	}

	w.Header().Set("Content-Type", "multipart/form-data; boundary="+nmspBoundary)
	_, err = w.Write(buf.Bytes())
	return err
}

// shapeWords converts a transcript to the device's word list. The first
// word carries the no-space marker and sentence case; the firmware
// renders words verbatim otherwise.
func shapeWords(text string) []models.Word {
	fields := strings.Fields(text)
	if len(fields) == 0 {
		return nil
	}
	words := make([]models.Word, len(fields))
	for i, f := range fields {
		words[i] = models.Word{Word: f, Confidence: 1.0}
	}
	words[0].Word += `\*no-space-before`
	r, size := utf8.DecodeRuneInString(words[0].Word)
	words[0].Word = string(unicode.ToUpper(r)) + words[0].Word[size:]
	return words
}
