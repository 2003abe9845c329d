package callback

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"sync"

	"github.com/bodhiapps/bodhi-auth/internal/log"
)

// Exchanger redeems an authorization code. Satisfied by
// oauth.SessionManager.
type Exchanger interface {
	ExchangeCodeForTokens(ctx context.Context, code, state string) error
}

// Handler serves the /callback route. It parses code/state (or the
// provider's error report), drives the exchange, and records the outcome.
// Duplicate deliveries are harmless: the exchange itself is idempotent.
type Handler struct {
	exchanger  Exchanger
	onComplete func(Result)
	once       sync.Once

	mu     sync.Mutex
	result Result
}

// NewHandler creates a callback handler. onComplete fires exactly once, on
// the first terminal result; it may be nil.
func NewHandler(exchanger Exchanger, onComplete func(Result)) *Handler {
	return &Handler{
		exchanger:  exchanger,
		onComplete: onComplete,
		result:     Processing{},
	}
}

// Result returns the current processing state.
func (h *Handler) Result() Result {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.result
}

func (h *Handler) complete(r Result) {
	h.mu.Lock()
	h.result = r
	h.mu.Unlock()
	if h.onComplete != nil {
		h.once.Do(func() { h.onComplete(r) })
	}
}

// ServeHTTP implements http.Handler for the /callback route.
func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	query := r.URL.Query()

	if errCode := query.Get("error"); errCode != "" {
		desc := query.Get("error_description")
		if desc == "" {
			desc = errCode
		}
		h.fail(w, fmt.Errorf("authorization failed: %s", desc))
		return
	}

	code := query.Get("code")
	state := query.Get("state")
	if code == "" || state == "" {
		h.fail(w, errors.New("callback missing code or state parameter"))
		return
	}

	if err := h.exchanger.ExchangeCodeForTokens(r.Context(), code, state); err != nil {
		h.fail(w, err)
		return
	}

	h.complete(Succeeded{})
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	fmt.Fprint(w, "<html><body><p>Login complete. You can close this window.</p></body></html>")
}

func (h *Handler) fail(w http.ResponseWriter, err error) {
	log.LogErrorWithFields("callback", "Callback processing failed", map[string]any{
		"error": err.Error(),
	})
	h.complete(Failed{Err: err})
	http.Error(w, Describe(Failed{Err: err}), http.StatusBadRequest)
}
