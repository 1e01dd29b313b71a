package assistant

import (
	"errors"
	"fmt"
)

var (
	// ErrEmptyQuestion is returned for blank questions.
	ErrEmptyQuestion = errors.New("question is empty")
	// ErrNoTable is returned when the chat context has no table loaded.
	ErrNoTable = errors.New("no table loaded")
)

// UnavailableError reports an AI-service failure that survived the single
// bounded retry. Err is the last underlying failure.
type UnavailableError struct {
	Question string
	Err      error
}

func (e *UnavailableError) Error() string {
	return fmt.Sprintf("assistant unavailable for %q: %v", truncate(e.Question, 80), e.Err)
}

func (e *UnavailableError) Unwrap() error { return e.Err }
