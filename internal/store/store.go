// Package store persists the session's six string entries. Storage is
// modeled as synchronous and always available; backend write failures are
// logged and otherwise degrade to "value absent" on the next read.
package store

// Persisted key names. Each field of the session lives under its own key
// with no structured envelope.
const (
	KeyResourceScope = "bodhi_resource_scope"
	KeyAccessToken   = "bodhi_access_token"
	KeyRefreshToken  = "bodhi_refresh_token"
	KeyCodeVerifier  = "bodhi_code_verifier"
	KeyOAuthState    = "bodhi_oauth_state"
	KeyUserInfo      = "bodhi_user_info"
)

// Keys lists every session key, in no particular order. Logout iterates it.
var Keys = []string{
	KeyResourceScope,
	KeyAccessToken,
	KeyRefreshToken,
	KeyCodeVerifier,
	KeyOAuthState,
	KeyUserInfo,
}

// Store is a flat string key-value store. Get reports presence explicitly;
// an empty stored value is still present.
type Store interface {
	Get(key string) (string, bool)
	Set(key, value string)
	Delete(key string)
}
