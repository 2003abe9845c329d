package oauth

import "errors"

// SecurityError marks a failed anti-CSRF check (state mismatch). It is kept
// apart from ProtocolError because it may indicate an attack rather than a
// transient provider fault.
type SecurityError struct {
	Message string
}

func (e *SecurityError) Error() string { return e.Message }

// ProtocolError marks a malformed or unexpected provider/resource-server
// response: missing scope, missing access token, non-2xx token exchange.
type ProtocolError struct {
	Message string
	Cause   error
}

func (e *ProtocolError) Error() string {
	if e.Cause != nil {
		return e.Message + ": " + e.Cause.Error()
	}
	return e.Message
}

func (e *ProtocolError) Unwrap() error { return e.Cause }

// IsSecurityError reports whether err is a SecurityError.
func IsSecurityError(err error) bool {
	var e *SecurityError
	return errors.As(err, &e)
}

// IsProtocolError reports whether err is a ProtocolError.
func IsProtocolError(err error) bool {
	var e *ProtocolError
	return errors.As(err, &e)
}
