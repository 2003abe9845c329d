// Package oauth orchestrates the client side of the Bodhi authorization code
// flow: resource-access negotiation through the bridge, authorization URL
// construction with PKCE, code-for-token exchange against the identity
// provider, and the persisted session built from the results.
package oauth

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"sync/atomic"

	"golang.org/x/oauth2"

	"github.com/bodhiapps/bodhi-auth/internal/bridge"
	"github.com/bodhiapps/bodhi-auth/internal/config"
	"github.com/bodhiapps/bodhi-auth/internal/log"
	"github.com/bodhiapps/bodhi-auth/internal/pkce"
	"github.com/bodhiapps/bodhi-auth/internal/store"
)

// Bodhi API endpoints reached through the bridge.
const (
	resourceAccessEndpoint = "/bodhi/v1/auth/request-access"
	userInfoEndpoint       = "/bodhi/v1/user"
)

// baseScopes are requested on every authorization, ahead of the negotiated
// resource scope.
var baseScopes = []string{"openid", "email", "profile", "roles", "scope_user_user"}

// UserInfo is the cached profile for the authenticated user.
type UserInfo struct {
	Email     string `json:"email"`
	Role      string `json:"role"`
	TokenType string `json:"token_type"`
	LoggedIn  bool   `json:"logged_in"`
}

// Bridge is the slice of the bridge client the session manager needs.
type Bridge interface {
	SendAPIRequest(ctx context.Context, method, endpoint string, body any, headers map[string]string) (*bridge.Response, error)
}

// SessionManager drives the OAuth flow and owns the persisted session.
// Construct one per application; there is no package-level instance.
type SessionManager struct {
	clientID      string
	authEndpoint  string
	tokenEndpoint string
	redirectURI   string
	store         store.Store
	httpClient    *http.Client

	// exchanging serializes code exchange: a second concurrent call is a
	// silent no-op, not an error.
	exchanging atomic.Bool
}

// Option configures a SessionManager.
type Option func(*SessionManager)

// WithHTTPClient sets the client used for the token exchange (tests point
// this at a fake identity provider).
func WithHTTPClient(c *http.Client) Option {
	return func(m *SessionManager) {
		m.httpClient = c
	}
}

// NewSessionManager creates a session manager over the given store.
func NewSessionManager(cfg *config.Config, st store.Store, opts ...Option) *SessionManager {
	m := &SessionManager{
		clientID:      cfg.ClientID,
		authEndpoint:  cfg.AuthEndpoint,
		tokenEndpoint: cfg.TokenEndpoint,
		redirectURI:   cfg.RedirectURI(),
		store:         st,
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// RequestResourceAccess negotiates the per-application resource scope. The
// returned scope is persisted and reused until logout.
func (m *SessionManager) RequestResourceAccess(ctx context.Context, b Bridge) (string, error) {
	resp, err := b.SendAPIRequest(ctx, http.MethodPost, resourceAccessEndpoint,
		map[string]string{"app_client_id": m.clientID}, nil)
	if err != nil {
		return "", fmt.Errorf("failed to request resource access: %w", err)
	}

	var payload struct {
		Scope string `json:"scope"`
	}
	if len(resp.Body) > 0 {
		if err := json.Unmarshal(resp.Body, &payload); err != nil {
			return "", &ProtocolError{Message: "failed to parse resource access response", Cause: err}
		}
	}
	if payload.Scope == "" {
		return "", &ProtocolError{Message: "resource access response missing scope"}
	}

	m.store.Set(store.KeyResourceScope, payload.Scope)
	log.LogInfoWithFields("oauth", "Resource access granted", map[string]any{
		"scope": payload.Scope,
	})
	return payload.Scope, nil
}

// BuildAuthURL generates a fresh PKCE pair, persists its transients, and
// composes the authorization URL. The caller navigates the browser to it;
// this is a full top-level navigation, never a fetch.
func (m *SessionManager) BuildAuthURL() (string, error) {
	scope, ok := m.store.Get(store.KeyResourceScope)
	if !ok {
		return "", errors.New("no resource scope available: call RequestResourceAccess first")
	}

	pair, err := pkce.NewPair()
	if err != nil {
		return "", fmt.Errorf("failed to generate PKCE pair: %w", err)
	}
	m.store.Set(store.KeyOAuthState, pair.State)
	m.store.Set(store.KeyCodeVerifier, pair.Verifier)

	conf := m.oauth2Config(scope)
	url := conf.AuthCodeURL(pair.State,
		oauth2.SetAuthURLParam("code_challenge", pair.Challenge),
		oauth2.SetAuthURLParam("code_challenge_method", "S256"),
	)

	log.LogDebugWithFields("oauth", "Authorization URL built", map[string]any{
		"redirectUri": m.redirectURI,
	})
	return url, nil
}

// ExchangeCodeForTokens redeems the authorization code. It is idempotent
// when already authenticated and a no-op while another exchange is in
// flight; both cases return nil without touching the network. The state
// check runs before any network call.
func (m *SessionManager) ExchangeCodeForTokens(ctx context.Context, code, state string) error {
	if m.IsAuthenticated() {
		log.LogDebug("Already authenticated, skipping token exchange")
		return nil
	}
	if !m.exchanging.CompareAndSwap(false, true) {
		log.LogDebug("Token exchange already in progress, skipping")
		return nil
	}
	defer m.exchanging.Store(false)

	storedState, ok := m.store.Get(store.KeyOAuthState)
	if !ok || storedState != state {
		return &SecurityError{Message: "Invalid state parameter"}
	}
	verifier, ok := m.store.Get(store.KeyCodeVerifier)
	if !ok {
		return &ProtocolError{Message: "no code verifier found for this login attempt"}
	}

	if m.httpClient != nil {
		ctx = context.WithValue(ctx, oauth2.HTTPClient, m.httpClient)
	}
	scope, _ := m.store.Get(store.KeyResourceScope)
	conf := m.oauth2Config(scope)
	token, err := conf.Exchange(ctx, code, oauth2.VerifierOption(verifier))
	if err != nil {
		var retrieveErr *oauth2.RetrieveError
		if errors.As(err, &retrieveErr) {
			return &ProtocolError{Message: fmt.Sprintf("token exchange failed with status %d: %s",
				retrieveErr.Response.StatusCode, retrieveErr.Body)}
		}
		return &ProtocolError{Message: "token exchange failed", Cause: err}
	}
	if token.AccessToken == "" {
		return &ProtocolError{Message: "token response missing access token"}
	}

	m.store.Set(store.KeyAccessToken, token.AccessToken)
	if token.RefreshToken != "" {
		m.store.Set(store.KeyRefreshToken, token.RefreshToken)
	}
	// The PKCE transients are single-use.
	m.store.Delete(store.KeyOAuthState)
	m.store.Delete(store.KeyCodeVerifier)

	log.LogInfoWithFields("oauth", "Token exchange completed", map[string]any{
		"hasRefreshToken": token.RefreshToken != "",
	})
	return nil
}

// GetAccessToken returns the persisted access token, if any.
func (m *SessionManager) GetAccessToken() (string, bool) {
	return m.store.Get(store.KeyAccessToken)
}

// IsAuthenticated reports token presence, which is the sole authentication
// predicate.
func (m *SessionManager) IsAuthenticated() bool {
	_, ok := m.store.Get(store.KeyAccessToken)
	return ok
}

// GetUserInfo returns the cached user info, or nil when absent. Corrupt
// cached data degrades to nil instead of surfacing.
func (m *SessionManager) GetUserInfo() *UserInfo {
	raw, ok := m.store.Get(store.KeyUserInfo)
	if !ok {
		return nil
	}
	var info UserInfo
	if err := json.Unmarshal([]byte(raw), &info); err != nil {
		log.LogDebugWithFields("oauth", "Cached user info corrupt, treating as absent", map[string]any{
			"error": err.Error(),
		})
		return nil
	}
	return &info
}

// SetUserInfo persists the cached user info.
func (m *SessionManager) SetUserInfo(info *UserInfo) {
	data, err := json.Marshal(info)
	if err != nil {
		log.LogErrorWithFields("oauth", "Failed to marshal user info", map[string]any{
			"error": err.Error(),
		})
		return
	}
	m.store.Set(store.KeyUserInfo, string(data))
}

// FetchUserInfo loads the profile from the user-info endpoint through the
// bridge and caches it. Requires an access token.
func (m *SessionManager) FetchUserInfo(ctx context.Context, b Bridge) (*UserInfo, error) {
	token, ok := m.GetAccessToken()
	if !ok {
		return nil, errors.New("not authenticated: no access token")
	}

	resp, err := b.SendAPIRequest(ctx, http.MethodGet, userInfoEndpoint, nil,
		map[string]string{"Authorization": "Bearer " + token})
	if err != nil {
		return nil, fmt.Errorf("failed to fetch user info: %w", err)
	}
	if resp.Status != 0 && (resp.Status < 200 || resp.Status >= 300) {
		return nil, &ProtocolError{Message: fmt.Sprintf("user info request failed with status %d", resp.Status)}
	}

	var payload struct {
		Email string `json:"email"`
		Role  string `json:"role"`
	}
	if len(resp.Body) > 0 {
		if err := json.Unmarshal(resp.Body, &payload); err != nil {
			return nil, &ProtocolError{Message: "failed to parse user info response", Cause: err}
		}
	}

	info := &UserInfo{
		Email:     payload.Email,
		Role:      payload.Role,
		TokenType: "bearer",
		LoggedIn:  true,
	}
	if info.Email == "" {
		info.Email = "Unknown"
	}
	if info.Role == "" {
		info.Role = "user"
	}

	m.SetUserInfo(info)
	log.LogInfoWithFields("oauth", "User info fetched", map[string]any{
		"email": info.Email,
		"role":  info.Role,
	})
	return info, nil
}

// Logout removes every session key and clears the in-flight exchange flag.
func (m *SessionManager) Logout() {
	for _, key := range store.Keys {
		m.store.Delete(key)
	}
	m.exchanging.Store(false)
	log.Logf("Session cleared")
}

// oauth2Config builds the provider config. Public client: the client id
// travels in the request body, there is no secret.
func (m *SessionManager) oauth2Config(resourceScope string) oauth2.Config {
	scopes := make([]string, 0, len(baseScopes)+1)
	scopes = append(scopes, baseScopes...)
	if resourceScope != "" {
		scopes = append(scopes, resourceScope)
	}
	return oauth2.Config{
		ClientID:    m.clientID,
		RedirectURL: m.redirectURI,
		Scopes:      scopes,
		Endpoint: oauth2.Endpoint{
			AuthURL:   m.authEndpoint,
			TokenURL:  m.tokenEndpoint,
			AuthStyle: oauth2.AuthStyleInParams,
		},
	}
}
