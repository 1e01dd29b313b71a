package schema

import (
	"errors"
	"fmt"
)

// ErrEmptyInput matches every *EmptyInputError via errors.Is.
var ErrEmptyInput = errors.New("empty input")

// EmptyInputError reports an extraction that produced no rows or no columns.
type EmptyInputError struct {
	Source string
	Reason string
}

func (e *EmptyInputError) Error() string {
	src := e.Source
	if src == "" {
		src = "input"
	}
	return fmt.Sprintf("%s: no data to normalize (%s)", src, e.Reason)
}

// Is reports ErrEmptyInput as a match.
func (e *EmptyInputError) Is(target error) bool { return target == ErrEmptyInput }
