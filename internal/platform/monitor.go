// Package platform turns bridge detection into a small observable signal:
// detecting, ready (with a usable client), or error. UIs subscribe to it;
// the coordinator's bridge-ready handling hangs off the ready transition.
package platform

import (
	"context"
	"sync"
	"time"

	"github.com/bodhiapps/bodhi-auth/internal/bridge"
	"github.com/bodhiapps/bodhi-auth/internal/log"
)

// State is the detection state.
type State string

const (
	StateDetecting State = "detecting"
	StateReady     State = "ready"
	StateError     State = "error"
)

// Status carries the state plus whichever of client and error applies.
type Status struct {
	State  State
	Client *bridge.Client
	Err    error
}

// Monitor runs bridge detection once and publishes the outcome.
type Monitor struct {
	locator bridge.Locator
	timeout time.Duration

	mu          sync.Mutex
	status      Status
	subscribers []func(Status)
}

// NewMonitor creates a monitor in the detecting state.
func NewMonitor(locator bridge.Locator, timeout time.Duration) *Monitor {
	return &Monitor{
		locator: locator,
		timeout: timeout,
		status:  Status{State: StateDetecting},
	}
}

// Subscribe registers a callback for status changes.
func (m *Monitor) Subscribe(fn func(Status)) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.subscribers = append(m.subscribers, fn)
}

// Status returns the current detection status.
func (m *Monitor) Status() Status {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.status
}

// Run performs detection and publishes the resulting status.
func (m *Monitor) Run(ctx context.Context) Status {
	client, err := bridge.Detect(ctx, m.locator, m.timeout)

	var status Status
	if err != nil {
		status = Status{State: StateError, Err: err}
		log.LogWarnWithFields("platform", "Bridge detection failed", map[string]any{
			"error":   err.Error(),
			"timeout": m.timeout.String(),
		})
	} else {
		status = Status{State: StateReady, Client: client}
		log.LogInfoWithFields("platform", "Bridge ready", map[string]any{
			"extensionId": client.Handle().ExtensionID,
		})
	}

	m.mu.Lock()
	m.status = status
	subs := make([]func(Status), len(m.subscribers))
	copy(subs, m.subscribers)
	m.mu.Unlock()

	for _, fn := range subs {
		fn(status)
	}
	return status
}
