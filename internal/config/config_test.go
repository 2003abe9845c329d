package config

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad(t *testing.T) {
	t.Run("defaults", func(t *testing.T) {
		t.Setenv("BODHI_APP_CLIENT_ID", "app-test-client")

		cfg, err := Load()
		require.NoError(t, err)
		assert.Equal(t, "app-test-client", cfg.ClientID)
		assert.Equal(t, 10*time.Second, cfg.DetectTimeout)
		assert.Equal(t, StoreKindKeyring, cfg.Store)
		assert.Equal(t, "http://localhost:8135/callback", cfg.RedirectURI())
	})

	t.Run("missing client id fails", func(t *testing.T) {
		t.Setenv("BODHI_APP_CLIENT_ID", "")
		_, err := Load()
		assert.Error(t, err)
	})

	t.Run("overrides", func(t *testing.T) {
		t.Setenv("BODHI_APP_CLIENT_ID", "app-test-client")
		t.Setenv("BODHI_APP_ORIGIN", "https://app.example.test/")
		t.Setenv("BODHI_DETECT_TIMEOUT", "250ms")
		t.Setenv("BODHI_STORE", "memory")

		cfg, err := Load()
		require.NoError(t, err)
		assert.Equal(t, "https://app.example.test/callback", cfg.RedirectURI())
		assert.Equal(t, 250*time.Millisecond, cfg.DetectTimeout)
		assert.Equal(t, StoreKindMemory, cfg.Store)
	})

	t.Run("invalid store kind fails", func(t *testing.T) {
		t.Setenv("BODHI_APP_CLIENT_ID", "app-test-client")
		t.Setenv("BODHI_STORE", "etcd")
		_, err := Load()
		require.Error(t, err)
		assert.Contains(t, err.Error(), "invalid store kind")
	})
}

func TestSecret(t *testing.T) {
	t.Run("redacts when printed", func(t *testing.T) {
		assert.Equal(t, "***", Secret("super-secret").String())
		assert.Equal(t, "", Secret("").String())
	})

	t.Run("redacts in JSON", func(t *testing.T) {
		data, err := json.Marshal(Secret("super-secret"))
		require.NoError(t, err)
		assert.Equal(t, `"***"`, string(data))
	})
}
