// Package callback implements the /callback contract: the sole entry point
// for redeeming the authorization code after the identity provider redirect.
package callback

import "fmt"

// Result is the processing state of a callback, expressed as a closed sum
// type so consumers match exhaustively instead of poking at string keys.
type Result interface {
	isResult()
}

// Processing means the callback has not completed yet.
type Processing struct{}

// Succeeded means the code was exchanged and the session is authenticated.
type Succeeded struct{}

// Failed carries the terminal error for this callback.
type Failed struct {
	Err error
}

func (Processing) isResult() {}
func (Succeeded) isResult()  {}
func (Failed) isResult()     {}

// Describe renders a result for logs and the browser-facing response page.
func Describe(r Result) string {
	switch v := r.(type) {
	case Processing:
		return "processing login callback"
	case Succeeded:
		return "login complete"
	case Failed:
		return fmt.Sprintf("login failed: %v", v.Err)
	default:
		return fmt.Sprintf("unknown callback state %T", r)
	}
}
