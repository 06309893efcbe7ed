package session

import (
	"errors"
	"os"
	"path/filepath"
	"sync"

	"github.com/BurntSushi/toml"
	"github.com/google/uuid"
)

// Persisted session keys.
const (
	KeyDeviceID = "device_id"
	KeyServer   = "server"
	KeyToken    = "token"
	KeyUserID   = "user_id"
)

// Store persists session key-value state across process restarts. It is an
// explicit dependency of the auth machinery, never ambient state.
type Store interface {
	Load() (map[string]string, error)
	Save(key, value string) error
	Clear(keys ...string) error
}

// FileStore keeps session state in a TOML file.
type FileStore struct {
	path string
	mu   sync.Mutex
}

// NewFileStore creates a store backed by path. The file is created on first
// save.
func NewFileStore(path string) (*FileStore, error) {
	if path == "" {
		return nil, errors.New("store path required")
	}
	return &FileStore{path: path}, nil
}

// DefaultPath returns the default session file location.
func DefaultPath() (string, error) {
	if dir := os.Getenv("XDG_CONFIG_HOME"); dir != "" {
		return filepath.Join(dir, "botify", "session.toml"), nil
	}

	home, err := os.UserHomeDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(home, ".config", "botify", "session.toml"), nil
}

// Load reads all persisted values. A missing file yields an empty map.
func (s *FileStore) Load() (map[string]string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.loadLocked()
}

// Save writes a single key, preserving the others.
func (s *FileStore) Save(key, value string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	values, err := s.loadLocked()
	if err != nil {
		return err
	}
	values[key] = value
	return s.writeLocked(values)
}

// Clear removes the named keys, preserving the others.
func (s *FileStore) Clear(keys ...string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	values, err := s.loadLocked()
	if err != nil {
		return err
	}
	for _, key := range keys {
		delete(values, key)
	}
	return s.writeLocked(values)
}

func (s *FileStore) loadLocked() (map[string]string, error) {
	values := map[string]string{}
	if _, err := os.Stat(s.path); err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return values, nil
		}
		return nil, err
	}
	if _, err := toml.DecodeFile(s.path, &values); err != nil {
		return nil, err
	}
	return values, nil
}

func (s *FileStore) writeLocked(values map[string]string) error {
	if err := os.MkdirAll(filepath.Dir(s.path), 0o755); err != nil {
		return err
	}
	file, err := os.OpenFile(s.path, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, 0o600)
	if err != nil {
		return err
	}
	defer file.Close()
	return toml.NewEncoder(file).Encode(values)
}

// EnsureDeviceID returns the persisted device identity, generating and
// persisting a fresh UUID on first run. The id is never regenerated unless
// cleared externally.
func EnsureDeviceID(store Store) (string, error) {
	values, err := store.Load()
	if err != nil {
		return "", err
	}
	if id := values[KeyDeviceID]; id != "" {
		return id, nil
	}

	id := uuid.NewString()
	if err := store.Save(KeyDeviceID, id); err != nil {
		return "", err
	}
	return id, nil
}
