package store

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/adrg/xdg"

	"github.com/bodhiapps/bodhi-auth/internal/log"
)

// Ensure FileStore implements Store
var _ Store = (*FileStore)(nil)

// FileStore persists keys as a single JSON document on disk so PKCE
// transients survive the authorization round-trip across process restarts.
// Writes go through a temp file plus rename.
type FileStore struct {
	path   string
	mu     sync.Mutex
	values map[string]string
}

// DefaultFilePath returns the XDG state location for the session file.
func DefaultFilePath() (string, error) {
	path, err := xdg.StateFile(filepath.Join("bodhi", "session.json"))
	if err != nil {
		return "", fmt.Errorf("failed to resolve state file path: %w", err)
	}
	return path, nil
}

// NewFileStore opens (or creates) the store at path. A corrupt file is
// treated as empty rather than an error.
func NewFileStore(path string) (*FileStore, error) {
	s := &FileStore{path: path, values: make(map[string]string)}

	data, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return s, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read session file: %w", err)
	}
	if err := json.Unmarshal(data, &s.values); err != nil {
		log.LogWarnWithFields("store", "Session file corrupt, starting empty", map[string]any{
			"path":  path,
			"error": err.Error(),
		})
		s.values = make(map[string]string)
	}
	return s, nil
}

func (s *FileStore) Get(key string) (string, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	v, ok := s.values[key]
	return v, ok
}

func (s *FileStore) Set(key, value string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.values[key] = value
	s.flushLocked()
}

func (s *FileStore) Delete(key string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.values, key)
	s.flushLocked()
}

func (s *FileStore) flushLocked() {
	data, err := json.MarshalIndent(s.values, "", "  ")
	if err != nil {
		log.LogErrorWithFields("store", "Failed to marshal session file", map[string]any{
			"error": err.Error(),
		})
		return
	}
	tmp := s.path + ".tmp"
	if err := os.WriteFile(tmp, data, 0600); err != nil {
		log.LogErrorWithFields("store", "Failed to write session file", map[string]any{
			"path":  s.path,
			"error": err.Error(),
		})
		return
	}
	if err := os.Rename(tmp, s.path); err != nil {
		log.LogErrorWithFields("store", "Failed to replace session file", map[string]any{
			"path":  s.path,
			"error": err.Error(),
		})
	}
}
