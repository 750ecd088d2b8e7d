package proto

import (
	"errors"
	"fmt"
)

var ErrProtocolViolation = errors.New("protocol violation")

// Raised by the codec when a request or status line cannot be understood.
type ProtocolViolationError struct {
	// The offending input, as far as it was read.
	Input  string
	Reason string
}

func (e *ProtocolViolationError) Error() string {
	if e.Input == "" {
		return fmt.Sprintf("protocol violation: %s", e.Reason)
	}
	return fmt.Sprintf("protocol violation: %s (%q)", e.Reason, e.Input)
}

func (e *ProtocolViolationError) Is(target error) bool {
	return target == ErrProtocolViolation
}

func violation(input, reason string) error {
	return &ProtocolViolationError{Input: input, Reason: reason}
}
