package planning

import "errors"

var (
	// ErrInvalidRange reports a missing or inverted date range.
	ErrInvalidRange = errors.New("invalid date range")
	// ErrInvalidDuration reports a non-positive slot duration.
	ErrInvalidDuration = errors.New("duration must be positive")
)
