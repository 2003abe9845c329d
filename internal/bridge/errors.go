package bridge

import (
	"errors"
	"fmt"
	"time"
)

// NotFoundError means no capability provider appeared within the detection
// window. The extension (or bridge daemon) is simply not there.
type NotFoundError struct {
	Timeout time.Duration
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("bodhi bridge not detected within %s", e.Timeout)
}

// TimeoutError means a provider was found but did not identify itself in
// time. Distinguished from NotFoundError so callers can tell "absent" from
// "present but unresponsive".
type TimeoutError struct {
	Timeout time.Duration
	Cause   error
}

func (e *TimeoutError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("bodhi bridge did not identify itself within %s: %v", e.Timeout, e.Cause)
	}
	return fmt.Sprintf("bodhi bridge did not identify itself within %s", e.Timeout)
}

func (e *TimeoutError) Unwrap() error { return e.Cause }

// UnavailableError means the provider vanished between detection and use.
type UnavailableError struct {
	Op string
}

func (e *UnavailableError) Error() string {
	return fmt.Sprintf("bodhi bridge unavailable for %s: provider no longer present", e.Op)
}

// IsNotFound reports whether err is a detection NotFoundError.
func IsNotFound(err error) bool {
	var e *NotFoundError
	return errors.As(err, &e)
}

// IsTimeout reports whether err is an identification TimeoutError.
func IsTimeout(err error) bool {
	var e *TimeoutError
	return errors.As(err, &e)
}

// IsUnavailable reports whether err is an UnavailableError.
func IsUnavailable(err error) bool {
	var e *UnavailableError
	return errors.As(err, &e)
}
