package session

import (
	"path/filepath"
	"testing"
)

func newTestStore(t *testing.T) *FileStore {
	t.Helper()
	store, err := NewFileStore(filepath.Join(t.TempDir(), "session.toml"))
	if err != nil {
		t.Fatalf("new store: %v", err)
	}
	return store
}

func TestStoreMissingFileIsEmpty(t *testing.T) {
	store := newTestStore(t)

	values, err := store.Load()
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if len(values) != 0 {
		t.Fatalf("expected empty values, got %v", values)
	}
}

func TestStoreSaveAndClear(t *testing.T) {
	store := newTestStore(t)

	for key, value := range map[string]string{
		KeyServer:   "http://media.local",
		KeyDeviceID: "dev-1",
		KeyToken:    "tok",
		KeyUserID:   "user-1",
	} {
		if err := store.Save(key, value); err != nil {
			t.Fatalf("save %s: %v", key, err)
		}
	}

	if err := store.Clear(KeyToken, KeyUserID); err != nil {
		t.Fatalf("clear: %v", err)
	}

	values, err := store.Load()
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if _, ok := values[KeyToken]; ok {
		t.Fatalf("expected token cleared")
	}
	if _, ok := values[KeyUserID]; ok {
		t.Fatalf("expected user id cleared")
	}
	if values[KeyServer] != "http://media.local" || values[KeyDeviceID] != "dev-1" {
		t.Fatalf("clear must preserve other keys, got %v", values)
	}
}

func TestEnsureDeviceIDStable(t *testing.T) {
	store := newTestStore(t)

	first, err := EnsureDeviceID(store)
	if err != nil {
		t.Fatalf("ensure: %v", err)
	}
	if first == "" {
		t.Fatalf("expected generated id")
	}

	second, err := EnsureDeviceID(store)
	if err != nil {
		t.Fatalf("ensure again: %v", err)
	}
	if second != first {
		t.Fatalf("device id must be stable: %q != %q", second, first)
	}
}
