package ai

import (
	"context"
	"errors"
	"strings"
)

// ============================================================================
// MODEL — Boundary to the hosted completion / vision service
// ============================================================================
// Everything that talks to the AI service goes through Model. Extractors send
// image bytes or page text and expect JSON back; the assistant sends a table
// projection plus a question and expects prose.
//
// The service is a black box with three documented failure modes:
//   - unavailable (timeout, 5xx, quota)  → ErrUnavailable, retried once
//   - rejected (bad key, bad request)    → ErrRejected, never retried
//   - malformed (no candidates, no text) → ErrMalformed, never retried
// ============================================================================

var (
	// ErrUnavailable marks transient failures: timeouts, 5xx, 429/quota.
	ErrUnavailable = errors.New("ai service unavailable")
	// ErrRejected marks permanent request failures (4xx other than 408/429).
	ErrRejected = errors.New("ai service rejected the request")
	// ErrMalformed marks responses with no usable content.
	ErrMalformed = errors.New("ai service returned a malformed response")
)

// Part is one piece of a multimodal prompt. Exactly one of Text or Data is set.
type Part struct {
	Text     string
	Data     []byte
	MIMEType string
}

// Text wraps a string prompt part.
func Text(s string) Part { return Part{Text: s} }

// Blob wraps binary content (an image) with its MIME type.
func Blob(data []byte, mimeType string) Part { return Part{Data: data, MIMEType: mimeType} }

// Request is a single-turn generation request.
type Request struct {
	System string // system instruction, may be empty
	Parts  []Part
	JSON   bool // ask the service for application/json output
}

// Response carries the model's text output.
type Response struct {
	Text  string
	Model string
}

// Model generates content for a request.
type Model interface {
	Generate(ctx context.Context, req Request) (*Response, error)
}

// ModelFunc adapts a function to the Model interface.
type ModelFunc func(ctx context.Context, req Request) (*Response, error)

// Generate calls f.
func (f ModelFunc) Generate(ctx context.Context, req Request) (*Response, error) {
	return f(ctx, req)
}

// IsTransient reports whether err is worth one more attempt.
func IsTransient(err error) bool {
	if err == nil {
		return false
	}
	return errors.Is(err, ErrUnavailable) || errors.Is(err, context.DeadlineExceeded)
}

// StripCodeFence removes the markdown code fence models like to wrap JSON in.
func StripCodeFence(s string) string {
	s = strings.TrimSpace(s)
	s = strings.TrimPrefix(s, "```json")
	s = strings.TrimPrefix(s, "```JSON")
	s = strings.TrimPrefix(s, "```")
	s = strings.TrimSuffix(s, "```")
	return strings.TrimSpace(s)
}
