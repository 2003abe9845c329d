package bridge

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

// apiEnvelope is the wire form of a proxied request sent to the daemon.
type apiEnvelope struct {
	Method   string            `json:"method"`
	Endpoint string            `json:"endpoint"`
	Body     any               `json:"body,omitempty"`
	Headers  map[string]string `json:"headers,omitempty"`
}

// HTTPProvider speaks to a local bridge daemon over HTTP. The daemon plays
// the role the injected extension object plays in a browser: it proxies
// Bodhi API calls and answers identity/diagnostic probes.
type HTTPProvider struct {
	baseURL string
	token   string
	client  *http.Client
}

// HTTPProviderOption configures an HTTPProvider.
type HTTPProviderOption func(*HTTPProvider)

// WithHTTPClient sets the underlying HTTP client.
func WithHTTPClient(c *http.Client) HTTPProviderOption {
	return func(p *HTTPProvider) {
		p.client = c
	}
}

// WithToken sets the bearer token sent on every daemon request.
func WithToken(token string) HTTPProviderOption {
	return func(p *HTTPProvider) {
		p.token = token
	}
}

// NewHTTPProvider creates a provider for the daemon at baseURL.
func NewHTTPProvider(baseURL string, opts ...HTTPProviderOption) *HTTPProvider {
	p := &HTTPProvider{
		baseURL: strings.TrimRight(baseURL, "/"),
		client:  &http.Client{},
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

func (p *HTTPProvider) newRequest(ctx context.Context, method, path string, body any) (*http.Request, error) {
	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return nil, fmt.Errorf("failed to marshal request body: %w", err)
		}
		reader = bytes.NewReader(data)
	}
	req, err := http.NewRequestWithContext(ctx, method, p.baseURL+path, reader)
	if err != nil {
		return nil, err
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if p.token != "" {
		req.Header.Set("Authorization", "Bearer "+p.token)
	}
	return req, nil
}

func (p *HTTPProvider) doJSON(ctx context.Context, method, path string, body, out any) error {
	req, err := p.newRequest(ctx, method, path, body)
	if err != nil {
		return err
	}
	resp, err := p.client.Do(req)
	if err != nil {
		return fmt.Errorf("bridge daemon request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		data, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		return fmt.Errorf("bridge daemon returned status %d: %s", resp.StatusCode, data)
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("failed to decode bridge daemon response: %w", err)
	}
	return nil
}

// ExtensionID fetches the daemon's stable identifier.
func (p *HTTPProvider) ExtensionID(ctx context.Context) (string, error) {
	var payload struct {
		ExtensionID string `json:"extension_id"`
	}
	if err := p.doJSON(ctx, http.MethodGet, "/id", nil, &payload); err != nil {
		return "", err
	}
	if payload.ExtensionID == "" {
		return "", fmt.Errorf("bridge daemon returned empty extension id")
	}
	return payload.ExtensionID, nil
}

// SendAPIRequest proxies a single API call through the daemon.
func (p *HTTPProvider) SendAPIRequest(ctx context.Context, method, endpoint string, body any, headers map[string]string) (*Response, error) {
	envelope := apiEnvelope{Method: method, Endpoint: endpoint, Body: body, Headers: headers}
	var out Response
	if err := p.doJSON(ctx, http.MethodPost, "/api", envelope, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// SendStreamRequest proxies a streaming API call. The daemon answers with
// server-sent events, one chunk per data line.
func (p *HTTPProvider) SendStreamRequest(ctx context.Context, method, endpoint string, body any, headers map[string]string) (Stream, error) {
	envelope := apiEnvelope{Method: method, Endpoint: endpoint, Body: body, Headers: headers}
	req, err := p.newRequest(ctx, http.MethodPost, "/stream", envelope)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Accept", "text/event-stream")

	resp, err := p.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("bridge daemon stream request failed: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		data, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		resp.Body.Close()
		return nil, fmt.Errorf("bridge daemon returned status %d: %s", resp.StatusCode, data)
	}
	return &sseStream{body: resp.Body, scanner: bufio.NewScanner(resp.Body)}, nil
}

// Ping is a cheap liveness probe.
func (p *HTTPProvider) Ping(ctx context.Context) (string, error) {
	var payload struct {
		Message string `json:"message"`
	}
	if err := p.doJSON(ctx, http.MethodGet, "/ping", nil, &payload); err != nil {
		return "", err
	}
	return payload.Message, nil
}

// ServerState reports the backing server's state as seen by the daemon.
func (p *HTTPProvider) ServerState(ctx context.Context) (*ServerState, error) {
	var state ServerState
	if err := p.doJSON(ctx, http.MethodGet, "/state", nil, &state); err != nil {
		return nil, err
	}
	return &state, nil
}

// sseStream reads "data:" framed chunks from an event-stream body.
type sseStream struct {
	body    io.ReadCloser
	scanner *bufio.Scanner
	closed  bool
}

func (s *sseStream) Next() (*Chunk, error) {
	if s.closed {
		return nil, io.EOF
	}
	for s.scanner.Scan() {
		line := strings.TrimSpace(s.scanner.Text())
		if line == "" {
			continue
		}
		data, ok := strings.CutPrefix(line, "data: ")
		if !ok {
			continue
		}
		var chunk Chunk
		if err := json.Unmarshal([]byte(data), &chunk); err != nil {
			return nil, fmt.Errorf("failed to decode stream chunk: %w", err)
		}
		return &chunk, nil
	}
	if err := s.scanner.Err(); err != nil {
		return nil, err
	}
	return nil, io.EOF
}

func (s *sseStream) Close() error {
	if s.closed {
		return nil
	}
	s.closed = true
	return s.body.Close()
}

// HTTPLocator probes the daemon with a short-lived ping. It returns a
// provider only while the daemon answers, which makes an unloaded daemon
// look exactly like a vanished capability object.
type HTTPLocator struct {
	provider *HTTPProvider
	probe    time.Duration
}

// NewHTTPLocator creates a locator for the daemon at baseURL.
func NewHTTPLocator(baseURL, token string) *HTTPLocator {
	opts := []HTTPProviderOption{}
	if token != "" {
		opts = append(opts, WithToken(token))
	}
	return &HTTPLocator{
		provider: NewHTTPProvider(baseURL, opts...),
		probe:    500 * time.Millisecond,
	}
}

// Locate implements Locator.
func (l *HTTPLocator) Locate() Provider {
	ctx, cancel := context.WithTimeout(context.Background(), l.probe)
	defer cancel()
	if _, err := l.provider.Ping(ctx); err != nil {
		return nil
	}
	return l.provider
}
