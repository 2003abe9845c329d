// Package bridge detects and wraps the Bodhi capability provider: the
// host-injected surface (a browser extension, or a local bridge daemon
// standing in for one) that proxies API calls to the Bodhi platform.
package bridge

import (
	"context"
	"encoding/json"
	"time"

	"github.com/bodhiapps/bodhi-auth/internal/log"
)

// pollInterval is how often detection re-probes for the provider. Injection
// timing relative to startup is not observable any other way, so we poll.
const pollInterval = 100 * time.Millisecond

// Response is a single proxied API response.
type Response struct {
	Body    json.RawMessage   `json:"body"`
	Headers map[string]string `json:"headers,omitempty"`
	Status  int               `json:"status"`
}

// Chunk is one record of a streamed response.
type Chunk struct {
	Body    json.RawMessage   `json:"body"`
	Headers map[string]string `json:"headers,omitempty"`
	Status  int               `json:"status,omitempty"`
}

// ServerState reports the backing Bodhi server's lifecycle state.
type ServerState struct {
	Status  string `json:"status"`
	Version string `json:"version,omitempty"`
}

// Known ServerState.Status values.
const (
	ServerStatusSetup         = "setup"
	ServerStatusReady         = "ready"
	ServerStatusResourceAdmin = "resource-admin"
	ServerStatusError         = "error"
	ServerStatusUnreachable   = "unreachable"
)

// Stream is a lazy, finite, non-restartable sequence of response chunks.
// Next returns io.EOF when the sequence ends. Abandoning a stream mid-way
// (Close before EOF) is not an error.
type Stream interface {
	Next() (*Chunk, error)
	Close() error
}

// Provider is the capability surface exposed by the host. Implementations
// are probed repeatedly, so all methods must be safe to call at any time.
type Provider interface {
	ExtensionID(ctx context.Context) (string, error)
	SendAPIRequest(ctx context.Context, method, endpoint string, body any, headers map[string]string) (*Response, error)
	SendStreamRequest(ctx context.Context, method, endpoint string, body any, headers map[string]string) (Stream, error)
	Ping(ctx context.Context) (string, error)
	ServerState(ctx context.Context) (*ServerState, error)
}

// Locator probes for the provider without blocking. It returns nil while the
// provider is absent; the provider may also disappear again after detection.
type Locator interface {
	Locate() Provider
}

// LocatorFunc adapts a function to the Locator interface.
type LocatorFunc func() Provider

func (f LocatorFunc) Locate() Provider { return f() }

// Handle identifies a detected capability provider. Immutable once created.
type Handle struct {
	ExtensionID string
}

// Client wraps a detected provider. Every operation re-probes the locator so
// a provider that unloaded after detection surfaces as UnavailableError
// instead of a stale call.
type Client struct {
	locator Locator
	handle  Handle
}

// Detect polls for a capability provider until timeout, then fetches its
// extension id under a second, independent timeout. The two phases fail
// differently: NotFoundError when nothing appeared, TimeoutError when a
// provider appeared but would not identify itself.
func Detect(ctx context.Context, locator Locator, timeout time.Duration) (*Client, error) {
	provider, err := waitForProvider(ctx, locator, timeout)
	if err != nil {
		return nil, err
	}

	idCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	id, err := provider.ExtensionID(idCtx)
	if err != nil {
		// Any identification failure is normalized: the caller only needs
		// to know the provider is present but unresponsive.
		return nil, &TimeoutError{Timeout: timeout, Cause: err}
	}

	log.LogInfoWithFields("bridge", "Capability provider detected", map[string]any{
		"extensionId": id,
	})

	return &Client{locator: locator, handle: Handle{ExtensionID: id}}, nil
}

func waitForProvider(ctx context.Context, locator Locator, timeout time.Duration) (Provider, error) {
	if p := locator.Locate(); p != nil {
		return p, nil
	}

	deadline := time.NewTimer(timeout)
	defer deadline.Stop()
	ticker := time.NewTicker(pollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-deadline.C:
			return nil, &NotFoundError{Timeout: timeout}
		case <-ticker.C:
			if p := locator.Locate(); p != nil {
				return p, nil
			}
		}
	}
}

// Handle returns the detection handle.
func (c *Client) Handle() Handle { return c.handle }

func (c *Client) provider(op string) (Provider, error) {
	if p := c.locator.Locate(); p != nil {
		return p, nil
	}
	return nil, &UnavailableError{Op: op}
}

// SendAPIRequest proxies a single request/response API call.
func (c *Client) SendAPIRequest(ctx context.Context, method, endpoint string, body any, headers map[string]string) (*Response, error) {
	p, err := c.provider("api request")
	if err != nil {
		return nil, err
	}
	log.LogDebugWithFields("bridge", "Sending API request", map[string]any{
		"method":   method,
		"endpoint": endpoint,
	})
	return p.SendAPIRequest(ctx, method, endpoint, body, headers)
}

// SendStreamRequest proxies a streaming API call.
func (c *Client) SendStreamRequest(ctx context.Context, method, endpoint string, body any, headers map[string]string) (Stream, error) {
	p, err := c.provider("stream request")
	if err != nil {
		return nil, err
	}
	log.LogDebugWithFields("bridge", "Sending stream request", map[string]any{
		"method":   method,
		"endpoint": endpoint,
	})
	return p.SendStreamRequest(ctx, method, endpoint, body, headers)
}

// Ping is a passthrough diagnostic call.
func (c *Client) Ping(ctx context.Context) (string, error) {
	p, err := c.provider("ping")
	if err != nil {
		return "", err
	}
	return p.Ping(ctx)
}

// ServerState is a passthrough diagnostic call.
func (c *Client) ServerState(ctx context.Context) (*ServerState, error) {
	p, err := c.provider("server state")
	if err != nil {
		return nil, err
	}
	return p.ServerState(ctx)
}
