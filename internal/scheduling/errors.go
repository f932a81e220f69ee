package scheduling

import (
	"errors"
	"fmt"
)

// ErrorKind classifies failures surfaced to booking callers.
type ErrorKind string

const (
	// ValidationError marks malformed or missing caller input.
	ValidationError ErrorKind = "validation_error"
	// ConfigurationError marks inconsistent tenant setup (timezone, hours).
	ConfigurationError ErrorKind = "configuration_error"
	// SlotTaken marks a slot lost to a concurrent booking.
	SlotTaken ErrorKind = "slot_taken"
	// NotFound marks a missing or out-of-scope record.
	NotFound ErrorKind = "not_found"
)

// AvailabilityError is the typed error returned by the scheduling engine.
type AvailabilityError struct {
	Kind ErrorKind
	Op   string
	Msg  string
	Err  error
}

func (e *AvailabilityError) Error() string {
	msg := e.Msg
	if msg == "" && e.Err != nil {
		msg = e.Err.Error()
	} else if e.Err != nil {
		msg = msg + ": " + e.Err.Error()
	}
	if e.Op == "" {
		return fmt.Sprintf("%s: %s", e.Kind, msg)
	}
	return fmt.Sprintf("%s: %s: %s", e.Op, e.Kind, msg)
}

func (e *AvailabilityError) Unwrap() error { return e.Err }

// Is matches any AvailabilityError of the same kind, so errors.Is(err, ErrSlotTaken) works.
func (e *AvailabilityError) Is(target error) bool {
	t, ok := target.(*AvailabilityError)
	if !ok {
		return false
	}
	return t.Kind == e.Kind && t.Op == "" && t.Msg == "" && t.Err == nil
}

var (
	ErrValidation    = &AvailabilityError{Kind: ValidationError}
	ErrConfiguration = &AvailabilityError{Kind: ConfigurationError}
	ErrSlotTaken     = &AvailabilityError{Kind: SlotTaken}
	ErrNotFound      = &AvailabilityError{Kind: NotFound}
)

// Invalid builds a ValidationError.
func Invalid(op, format string, args ...any) error {
	return &AvailabilityError{Kind: ValidationError, Op: op, Msg: fmt.Sprintf(format, args...)}
}

// Misconfigured builds a ConfigurationError wrapping cause.
func Misconfigured(op string, cause error, format string, args ...any) error {
	return &AvailabilityError{Kind: ConfigurationError, Op: op, Msg: fmt.Sprintf(format, args...), Err: cause}
}

// Taken builds a SlotTaken error.
func Taken(op string, cause error) error {
	return &AvailabilityError{Kind: SlotTaken, Op: op, Msg: "requested slot is no longer available", Err: cause}
}

// Missing builds a NotFound error for the named record.
func Missing(op, what string) error {
	return &AvailabilityError{Kind: NotFound, Op: op, Msg: what + " not found"}
}

// KindOf returns the kind of the first AvailabilityError in err's chain, or "".
func KindOf(err error) ErrorKind {
	var ae *AvailabilityError
	if errors.As(err, &ae) {
		return ae.Kind
	}
	return ""
}

// IsKind reports whether err carries the given kind.
func IsKind(err error, kind ErrorKind) bool {
	return KindOf(err) == kind
}
