package authstate

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bodhiapps/bodhi-auth/internal/bridge"
	"github.com/bodhiapps/bodhi-auth/internal/oauth"
)

type fakeSession struct {
	mu sync.Mutex

	authenticated bool
	cachedInfo    *oauth.UserInfo
	fetchedInfo   *oauth.UserInfo
	fetchErr      error
	scopeErr      error
	authURLErr    error

	loggedOut      bool
	accessRequests int
	fetchRequests  int
}

func (s *fakeSession) RequestResourceAccess(ctx context.Context, b oauth.Bridge) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.accessRequests++
	if s.scopeErr != nil {
		return "", s.scopeErr
	}
	return "scope_resource_abc123", nil
}

func (s *fakeSession) BuildAuthURL() (string, error) {
	if s.authURLErr != nil {
		return "", s.authURLErr
	}
	return "https://id.example.test/auth?state=xyz", nil
}

func (s *fakeSession) IsAuthenticated() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.authenticated
}

func (s *fakeSession) GetUserInfo() *oauth.UserInfo {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.cachedInfo
}

func (s *fakeSession) FetchUserInfo(ctx context.Context, b oauth.Bridge) (*oauth.UserInfo, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.fetchRequests++
	if s.fetchErr != nil {
		return nil, s.fetchErr
	}
	return s.fetchedInfo, nil
}

func (s *fakeSession) Logout() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.loggedOut = true
	s.authenticated = false
	s.cachedInfo = nil
}

type nopBridge struct{}

func (nopBridge) SendAPIRequest(ctx context.Context, method, endpoint string, body any, headers map[string]string) (*bridge.Response, error) {
	return &bridge.Response{Status: 200}, nil
}

type recordingNavigator struct {
	urls []string
	err  error
}

func (n *recordingNavigator) Navigate(url string) error {
	n.urls = append(n.urls, url)
	return n.err
}

func TestHandleBridgeReady(t *testing.T) {
	t.Run("no session stays unauthenticated", func(t *testing.T) {
		c := NewCoordinator(&fakeSession{}, &recordingNavigator{})
		c.HandleBridgeReady(context.Background(), nopBridge{})
		assert.Equal(t, StatusUnauthenticated, c.Snapshot().Status)
	})

	t.Run("tokens plus cached info authenticate immediately", func(t *testing.T) {
		session := &fakeSession{
			authenticated: true,
			cachedInfo:    &oauth.UserInfo{Email: "dev@getbodhi.app", Role: "user"},
		}
		c := NewCoordinator(session, &recordingNavigator{})
		c.HandleBridgeReady(context.Background(), nopBridge{})

		snap := c.Snapshot()
		assert.Equal(t, StatusAuthenticated, snap.Status)
		assert.Equal(t, "dev@getbodhi.app", snap.UserInfo.Email)
		assert.Zero(t, session.fetchRequests)
	})

	t.Run("tokens without cached info trigger a live fetch", func(t *testing.T) {
		session := &fakeSession{
			authenticated: true,
			fetchedInfo:   &oauth.UserInfo{Email: "dev@getbodhi.app", Role: "user"},
		}
		c := NewCoordinator(session, &recordingNavigator{})

		var statuses []Status
		c.Subscribe(func(s Snapshot) { statuses = append(statuses, s.Status) })
		c.HandleBridgeReady(context.Background(), nopBridge{})

		assert.Equal(t, StatusAuthenticated, c.Snapshot().Status)
		assert.Equal(t, []Status{StatusAuthenticating, StatusAuthenticated}, statuses)
		assert.Equal(t, 1, session.fetchRequests)
	})

	t.Run("failed fetch invalidates the session", func(t *testing.T) {
		session := &fakeSession{
			authenticated: true,
			fetchErr:      errors.New("status 401"),
		}
		c := NewCoordinator(session, &recordingNavigator{})
		c.HandleBridgeReady(context.Background(), nopBridge{})

		snap := c.Snapshot()
		assert.Equal(t, StatusError, snap.Status)
		require.Error(t, snap.Err)
		assert.Contains(t, snap.Err.Error(), "session invalid")
		assert.True(t, session.loggedOut)
	})
}

func TestLogin(t *testing.T) {
	t.Run("without a ready bridge", func(t *testing.T) {
		c := NewCoordinator(&fakeSession{}, &recordingNavigator{})
		err := c.Login(context.Background())
		require.Error(t, err)
		assert.Contains(t, err.Error(), "not detected")

		snap := c.Snapshot()
		assert.Equal(t, StatusError, snap.Status)
		assert.Contains(t, snap.Err.Error(), "not detected")
	})

	t.Run("happy path navigates to the authorization URL", func(t *testing.T) {
		session := &fakeSession{}
		navigator := &recordingNavigator{}
		c := NewCoordinator(session, navigator)
		c.HandleBridgeReady(context.Background(), nopBridge{})

		require.NoError(t, c.Login(context.Background()))
		require.Len(t, navigator.urls, 1)
		assert.Equal(t, "https://id.example.test/auth?state=xyz", navigator.urls[0])
		assert.Equal(t, 1, session.accessRequests)
		// Stays authenticating until the callback lands.
		assert.Equal(t, StatusAuthenticating, c.Snapshot().Status)
	})

	t.Run("resource negotiation failure surfaces as error", func(t *testing.T) {
		session := &fakeSession{scopeErr: errors.New("resource access response missing scope")}
		c := NewCoordinator(session, &recordingNavigator{})
		c.HandleBridgeReady(context.Background(), nopBridge{})

		err := c.Login(context.Background())
		require.Error(t, err)
		snap := c.Snapshot()
		assert.Equal(t, StatusError, snap.Status)
		assert.Contains(t, snap.Err.Error(), "missing scope")
	})

	t.Run("navigation failure surfaces as error", func(t *testing.T) {
		navigator := &recordingNavigator{err: errors.New("no browser")}
		c := NewCoordinator(&fakeSession{}, navigator)
		c.HandleBridgeReady(context.Background(), nopBridge{})

		err := c.Login(context.Background())
		require.Error(t, err)
		assert.Equal(t, StatusError, c.Snapshot().Status)
	})
}

func TestCompleteLogin(t *testing.T) {
	session := &fakeSession{}
	c := NewCoordinator(session, &recordingNavigator{})
	c.HandleBridgeReady(context.Background(), nopBridge{})

	// Simulate the callback having landed tokens.
	session.mu.Lock()
	session.authenticated = true
	session.fetchedInfo = &oauth.UserInfo{Email: "dev@getbodhi.app", Role: "user"}
	session.mu.Unlock()

	c.CompleteLogin(context.Background())
	snap := c.Snapshot()
	assert.Equal(t, StatusAuthenticated, snap.Status)
	assert.Equal(t, "dev@getbodhi.app", snap.UserInfo.Email)
}

func TestLogout(t *testing.T) {
	session := &fakeSession{authenticated: true, cachedInfo: &oauth.UserInfo{Email: "x"}}
	c := NewCoordinator(session, &recordingNavigator{})
	c.HandleBridgeReady(context.Background(), nopBridge{})
	require.Equal(t, StatusAuthenticated, c.Snapshot().Status)

	c.Logout()
	assert.True(t, session.loggedOut)
	snap := c.Snapshot()
	assert.Equal(t, StatusUnauthenticated, snap.Status)
	assert.Nil(t, snap.UserInfo)
}

func TestCloseSuppressesCommits(t *testing.T) {
	session := &fakeSession{authenticated: true, cachedInfo: &oauth.UserInfo{Email: "x"}}
	c := NewCoordinator(session, &recordingNavigator{})

	var notified int
	c.Subscribe(func(Snapshot) { notified++ })

	c.Close()
	c.HandleBridgeReady(context.Background(), nopBridge{})

	// The operation ran but its result was not committed.
	assert.Equal(t, StatusUnauthenticated, c.Snapshot().Status)
	assert.Zero(t, notified)
}
