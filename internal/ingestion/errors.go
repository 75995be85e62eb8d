package ingestion

import (
	"errors"
	"fmt"
)

var (
	// ErrInvalidNumber is returned when a numeric cell cannot be parsed.
	ErrInvalidNumber = errors.New("invalid number")

	// ErrInvalidDate is returned when a date cell matches no known layout.
	ErrInvalidDate = errors.New("invalid date")

	// ErrInvalidVolume is returned when a volume cell has an unknown suffix or body.
	ErrInvalidVolume = errors.New("invalid volume")

	// ErrInvalidPercent is returned when a change cell is not a percentage.
	ErrInvalidPercent = errors.New("invalid percent")

	// ErrDuplicateDate is returned when two rows share the same calendar day.
	ErrDuplicateDate = errors.New("duplicate date")

	// ErrEmptyInput is returned when a file has no header row.
	ErrEmptyInput = errors.New("empty input")
)

// ParseError describes a cell that failed to parse.
type ParseError struct {
	File   string
	Line   int
	Column string
	Value  string
	Err    error
}

func (e *ParseError) Error() string {
	return fmt.Sprintf("%s:%d: column %q: %v: %q", e.File, e.Line, e.Column, e.Err, e.Value)
}

func (e *ParseError) Unwrap() error {
	return e.Err
}

// MissingColumnError is returned when a required header is absent.
type MissingColumnError struct {
	File   string
	Column string
}

func (e *MissingColumnError) Error() string {
	return fmt.Sprintf("%s: missing required column %q", e.File, e.Column)
}
