// Package config holds the environment-driven configuration for the Bodhi
// auth client. All knobs come from BODHI_* variables so the same binary can
// point at a staging realm or a local bridge daemon without rebuilds.
package config

import (
	"encoding/json"
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/caarlos0/env/v11"
)

// Secret is a string type that redacts itself when printed
type Secret string

// String implements fmt.Stringer to redact the secret
func (s Secret) String() string {
	if s == "" {
		return ""
	}
	return "***"
}

// MarshalJSON implements json.Marshaler to prevent secrets in JSON logs
func (s Secret) MarshalJSON() ([]byte, error) {
	if s == "" {
		return json.Marshal("")
	}
	return json.Marshal("***")
}

// StoreKind selects the session persistence backend
type StoreKind string

const (
	StoreKindKeyring StoreKind = "keyring"
	StoreKindFile    StoreKind = "file"
	StoreKindMemory  StoreKind = "memory"
)

// Config is the full client configuration.
type Config struct {
	// ClientID is the fixed application client identifier registered with
	// the Bodhi identity provider. Public client, no secret.
	ClientID string `env:"BODHI_APP_CLIENT_ID,notEmpty"`

	// AuthEndpoint and TokenEndpoint are the identity provider's OAuth
	// endpoints, reached over plain HTTPS (not through the bridge).
	AuthEndpoint  string `env:"BODHI_AUTH_ENDPOINT" envDefault:"https://id.getbodhi.app/realms/bodhi/protocol/openid-connect/auth"`
	TokenEndpoint string `env:"BODHI_TOKEN_ENDPOINT" envDefault:"https://id.getbodhi.app/realms/bodhi/protocol/openid-connect/token"`

	// Origin is the application origin; the OAuth redirect URI is always
	// <origin>/callback.
	Origin string `env:"BODHI_APP_ORIGIN" envDefault:"http://localhost:8135"`

	// BridgeURL is the base URL of the local bridge daemon that proxies
	// Bodhi API calls. BridgeToken, when set, is sent as a bearer token on
	// every daemon request.
	BridgeURL   string `env:"BODHI_BRIDGE_URL" envDefault:"http://127.0.0.1:8225"`
	BridgeToken Secret `env:"BODHI_BRIDGE_TOKEN"`

	// DetectTimeout bounds both bridge detection phases: the poll for the
	// capability provider and the extension id fetch.
	DetectTimeout time.Duration `env:"BODHI_DETECT_TIMEOUT" envDefault:"10s"`

	// Store selects where session keys are persisted.
	Store StoreKind `env:"BODHI_STORE" envDefault:"keyring"`
}

// Load reads configuration from the environment.
func Load() (*Config, error) {
	cfg := &Config{}
	if err := env.Parse(cfg); err != nil {
		return nil, fmt.Errorf("failed to parse environment config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks cross-field constraints not expressible as env tags.
func (c *Config) Validate() error {
	if _, err := url.Parse(c.Origin); err != nil {
		return fmt.Errorf("invalid app origin %q: %w", c.Origin, err)
	}
	switch c.Store {
	case StoreKindKeyring, StoreKindFile, StoreKindMemory:
	default:
		return fmt.Errorf("invalid store kind %q (want keyring, file, or memory)", c.Store)
	}
	return nil
}

// RedirectURI returns the OAuth redirect URI derived from the origin.
func (c *Config) RedirectURI() string {
	return strings.TrimRight(c.Origin, "/") + "/callback"
}
