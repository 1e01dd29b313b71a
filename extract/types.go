package extract

import (
	"context"
	"errors"
	"fmt"
)

// ============================================================================
// EXTRACTOR ADAPTERS — One input modality in, loosely typed rows out
// ============================================================================
// Three adapters, no shared state between them:
//   Tabular — CSV / XLSX bytes            (encoding/csv, excelize)
//   Vision  — photo of a receipt or table (AI model, JSON mode)
//   Web     — URL of a page with tables   (x/net/html, AI fallback)
//
// Adapters never type or rename anything; that is schema.Normalize's job.
// ============================================================================

// RawRecordSet is the unnormalized output of one extraction call.
// Header may be nil or contain empty cells. Rows may be ragged. Values are
// string, float64, bool, json.Number or nil.
type RawRecordSet struct {
	Source string   `json:"source"`
	Header []string `json:"header,omitempty"`
	Rows   [][]any  `json:"rows"`
}

// Width returns the widest of the header and every row.
func (r *RawRecordSet) Width() int {
	if r == nil {
		return 0
	}
	w := len(r.Header)
	for _, row := range r.Rows {
		if len(row) > w {
			w = len(row)
		}
	}
	return w
}

// Input is one thing to extract from: file or image bytes, or a URL.
type Input struct {
	Name     string // file name, used for format detection and messages
	Data     []byte
	URL      string
	MIMEType string
}

// Label names the input in logs and error messages.
func (in Input) Label() string {
	if in.URL != "" {
		return in.URL
	}
	if in.Name != "" {
		return in.Name
	}
	return "input"
}

// Extractor turns one Input into a RawRecordSet.
type Extractor interface {
	Extract(ctx context.Context, in Input) (*RawRecordSet, error)
}

// ErrorKind classifies extraction failures.
type ErrorKind string

const (
	KindUnreadable  ErrorKind = "unreadable"
	KindUnsupported ErrorKind = "unsupported_format"
	KindNetwork     ErrorKind = "network"
	KindAIService   ErrorKind = "ai_service"
)

// Error is returned by every adapter. Source names the offending input.
type Error struct {
	Kind   ErrorKind
	Source string
	Err    error
}

func (e *Error) Error() string {
	return fmt.Sprintf("extract %q: %s: %v", e.Source, e.Kind, e.Err)
}

func (e *Error) Unwrap() error { return e.Err }

func newError(kind ErrorKind, source string, err error) *Error {
	return &Error{Kind: kind, Source: source, Err: err}
}

func newErrorf(kind ErrorKind, source string, format string, args ...any) *Error {
	return &Error{Kind: kind, Source: source, Err: fmt.Errorf(format, args...)}
}

// KindOf returns the kind of an extraction error, or "" if err is not one.
func KindOf(err error) ErrorKind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return ""
}
