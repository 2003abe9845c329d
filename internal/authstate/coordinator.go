// Package authstate layers a reactive state machine over the OAuth session
// manager: a single status + user-info + error snapshot with login/logout
// actions, consumed by UIs and the CLI.
package authstate

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"

	"golang.org/x/sync/singleflight"

	"github.com/bodhiapps/bodhi-auth/internal/log"
	"github.com/bodhiapps/bodhi-auth/internal/oauth"
)

// Status is the coordinator's authentication status.
type Status string

const (
	StatusUnauthenticated Status = "unauthenticated"
	StatusAuthenticating  Status = "authenticating"
	StatusAuthenticated   Status = "authenticated"
	StatusError           Status = "error"
)

// Snapshot is the externally visible state: status plus whichever of user
// info and error applies.
type Snapshot struct {
	Status   Status
	UserInfo *oauth.UserInfo
	Err      error
}

// Navigator performs the full top-level browser navigation to the
// authorization URL. It is injected because navigation belongs to the host
// environment, not the core.
type Navigator interface {
	Navigate(url string) error
}

// NavigatorFunc adapts a function to the Navigator interface.
type NavigatorFunc func(url string) error

func (f NavigatorFunc) Navigate(url string) error { return f(url) }

// Session is the slice of the session manager the coordinator drives.
type Session interface {
	RequestResourceAccess(ctx context.Context, b oauth.Bridge) (string, error)
	BuildAuthURL() (string, error)
	IsAuthenticated() bool
	GetUserInfo() *oauth.UserInfo
	FetchUserInfo(ctx context.Context, b oauth.Bridge) (*oauth.UserInfo, error)
	Logout()
}

// Coordinator projects the session onto a reactive snapshot. Constructed
// explicitly at app start; Close discards it, after which results of still
// in-flight operations are ignored rather than committed.
type Coordinator struct {
	session   Session
	navigator Navigator

	mu          sync.Mutex
	bridge      oauth.Bridge
	snapshot    Snapshot
	subscribers []func(Snapshot)

	closed atomic.Bool
	group  singleflight.Group
}

// NewCoordinator creates a coordinator in the unauthenticated state.
func NewCoordinator(session Session, navigator Navigator) *Coordinator {
	return &Coordinator{
		session:   session,
		navigator: navigator,
		snapshot:  Snapshot{Status: StatusUnauthenticated},
	}
}

// Subscribe registers a callback invoked on every committed snapshot change.
func (c *Coordinator) Subscribe(fn func(Snapshot)) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.subscribers = append(c.subscribers, fn)
}

// Snapshot returns the current state.
func (c *Coordinator) Snapshot() Snapshot {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.snapshot
}

// Close marks the coordinator discarded. In-flight operations keep running
// but their results are no longer committed.
func (c *Coordinator) Close() {
	c.closed.Store(true)
}

// setSnapshot commits a state change unless the coordinator was closed
// after the operation that produced it started.
func (c *Coordinator) setSnapshot(s Snapshot) {
	if c.closed.Load() {
		return
	}
	c.mu.Lock()
	c.snapshot = s
	subs := make([]func(Snapshot), len(c.subscribers))
	copy(subs, c.subscribers)
	c.mu.Unlock()

	log.LogDebugWithFields("authstate", "State changed", map[string]any{
		"status": string(s.Status),
	})
	for _, fn := range subs {
		fn(s)
	}
}

// HandleBridgeReady records the detected bridge and restores any existing
// session: cached tokens plus cached user info authenticate immediately,
// tokens alone trigger a live fetch, and a failed fetch invalidates the
// whole session.
func (c *Coordinator) HandleBridgeReady(ctx context.Context, b oauth.Bridge) {
	c.mu.Lock()
	c.bridge = b
	c.mu.Unlock()
	c.syncSession(ctx, b)
}

// CompleteLogin re-synchronizes state after the callback exchange settled.
func (c *Coordinator) CompleteLogin(ctx context.Context) {
	c.mu.Lock()
	b := c.bridge
	c.mu.Unlock()
	if b == nil {
		return
	}
	c.syncSession(ctx, b)
}

// syncSession is deduplicated: overlapping checks (duplicate mounts,
// bridge-ready races) share one flight.
func (c *Coordinator) syncSession(ctx context.Context, b oauth.Bridge) {
	c.group.Do("sync", func() (any, error) {
		if !c.session.IsAuthenticated() {
			c.setSnapshot(Snapshot{Status: StatusUnauthenticated})
			return nil, nil
		}
		if info := c.session.GetUserInfo(); info != nil {
			c.setSnapshot(Snapshot{Status: StatusAuthenticated, UserInfo: info})
			return nil, nil
		}

		c.setSnapshot(Snapshot{Status: StatusAuthenticating})
		info, err := c.session.FetchUserInfo(ctx, b)
		if err != nil {
			// Tokens that cannot fetch a profile are treated as invalid.
			c.session.Logout()
			c.setSnapshot(Snapshot{Status: StatusError, Err: fmt.Errorf("session invalid: %w", err)})
			return nil, nil
		}
		c.setSnapshot(Snapshot{Status: StatusAuthenticated, UserInfo: info})
		return nil, nil
	})
}

// Login negotiates resource access, builds the authorization URL, and hands
// it to the navigator. Failures surface in the snapshot; nothing retries
// automatically.
func (c *Coordinator) Login(ctx context.Context) error {
	c.mu.Lock()
	b := c.bridge
	c.mu.Unlock()

	if b == nil {
		err := errors.New("bodhi bridge not detected: install the extension or start the bridge daemon, then retry")
		c.setSnapshot(Snapshot{Status: StatusError, Err: err})
		return err
	}

	c.setSnapshot(Snapshot{Status: StatusAuthenticating})

	if _, err := c.session.RequestResourceAccess(ctx, b); err != nil {
		err = fmt.Errorf("failed to negotiate resource access: %w", err)
		c.setSnapshot(Snapshot{Status: StatusError, Err: err})
		return err
	}

	url, err := c.session.BuildAuthURL()
	if err != nil {
		err = fmt.Errorf("failed to build authorization URL: %w", err)
		c.setSnapshot(Snapshot{Status: StatusError, Err: err})
		return err
	}

	if err := c.navigator.Navigate(url); err != nil {
		err = fmt.Errorf("failed to open authorization URL: %w", err)
		c.setSnapshot(Snapshot{Status: StatusError, Err: err})
		return err
	}

	// Status stays authenticating until the callback completes the flow.
	return nil
}

// Logout synchronously clears the session and resets to unauthenticated.
func (c *Coordinator) Logout() {
	c.session.Logout()
	c.setSnapshot(Snapshot{Status: StatusUnauthenticated})
}
