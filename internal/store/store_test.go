package store

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMemoryStore(t *testing.T) {
	s := NewMemoryStore()

	t.Run("absent key", func(t *testing.T) {
		_, ok := s.Get(KeyAccessToken)
		assert.False(t, ok)
	})

	t.Run("set get delete", func(t *testing.T) {
		s.Set(KeyAccessToken, "tok")
		v, ok := s.Get(KeyAccessToken)
		assert.True(t, ok)
		assert.Equal(t, "tok", v)

		s.Delete(KeyAccessToken)
		_, ok = s.Get(KeyAccessToken)
		assert.False(t, ok)
	})

	t.Run("empty value is present", func(t *testing.T) {
		s.Set(KeyRefreshToken, "")
		v, ok := s.Get(KeyRefreshToken)
		assert.True(t, ok)
		assert.Empty(t, v)
	})
}

func TestFileStore(t *testing.T) {
	t.Run("persists across reopen", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "session.json")

		s, err := NewFileStore(path)
		require.NoError(t, err)
		s.Set(KeyOAuthState, "abc")
		s.Set(KeyCodeVerifier, "def")
		s.Delete(KeyCodeVerifier)

		reopened, err := NewFileStore(path)
		require.NoError(t, err)
		v, ok := reopened.Get(KeyOAuthState)
		assert.True(t, ok)
		assert.Equal(t, "abc", v)
		_, ok = reopened.Get(KeyCodeVerifier)
		assert.False(t, ok)
	})

	t.Run("corrupt file starts empty", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "session.json")
		require.NoError(t, os.WriteFile(path, []byte("{not json"), 0600))

		s, err := NewFileStore(path)
		require.NoError(t, err)
		_, ok := s.Get(KeyOAuthState)
		assert.False(t, ok)
	})

	t.Run("missing file is fine", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "missing", "session.json")
		require.NoError(t, os.MkdirAll(filepath.Dir(path), 0700))
		s, err := NewFileStore(path)
		require.NoError(t, err)
		_, ok := s.Get(KeyAccessToken)
		assert.False(t, ok)
	})
}

func TestKeys(t *testing.T) {
	assert.Len(t, Keys, 6)
	seen := map[string]bool{}
	for _, k := range Keys {
		assert.Contains(t, k, "bodhi_")
		assert.False(t, seen[k], "duplicate key %s", k)
		seen[k] = true
	}
}
