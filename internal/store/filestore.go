package store

import (
	"encoding/json"
	"os"
	"path/filepath"
	"sync"

	"trading-journal/internal/errors"
	"trading-journal/internal/models"
)

// FileStore persists the state document to a single JSON file. Writes go
// through a temp file and rename, so a crash mid-write leaves the previous
// document intact.
type FileStore struct {
	path string
	mu   sync.Mutex
}

// NewFileStore creates a file-backed store at path. The file does not need
// to exist yet; the first Load returns an empty document.
func NewFileStore(path string) (*FileStore, error) {
	if path == "" {
		return nil, errors.NewValidationError("path", path, "state path must not be empty")
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, errors.Wrap(err, "failed to create state directory")
	}
	return &FileStore{path: path}, nil
}

// Load reads and parses the state file.
func (f *FileStore) Load() (*State, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.load()
}

func (f *FileStore) load() (*State, error) {
	data, err := os.ReadFile(f.path)
	if os.IsNotExist(err) {
		return NewState(), nil
	}
	if err != nil {
		return nil, errors.Wrap(err, "failed to read state file")
	}
	if len(data) == 0 {
		return NewState(), nil
	}

	state := NewState()
	if err := json.Unmarshal(data, state); err != nil {
		return nil, errors.Wrapf(err, "failed to parse state file %s", f.path)
	}
	return state, nil
}

// Save writes the document atomically.
func (f *FileStore) Save(state *State) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.save(state)
}

func (f *FileStore) save(state *State) error {
	data, err := json.MarshalIndent(state, "", "  ")
	if err != nil {
		return errors.Wrap(err, "failed to encode state")
	}

	tmp, err := os.CreateTemp(filepath.Dir(f.path), ".state-*.json")
	if err != nil {
		return errors.Wrap(err, "failed to create temp state file")
	}
	tmpName := tmp.Name()
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return errors.Wrap(err, "failed to write state")
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return errors.Wrap(err, "failed to close temp state file")
	}
	if err := os.Chmod(tmpName, 0o600); err != nil {
		os.Remove(tmpName)
		return errors.Wrap(err, "failed to set state file mode")
	}
	if err := os.Rename(tmpName, f.path); err != nil {
		os.Remove(tmpName)
		return errors.Wrap(err, "failed to replace state file")
	}
	return nil
}

// Update runs fn on the freshest document and persists the result. The
// whole read-modify-write is under one lock, so concurrent updates cannot
// interleave. An error from fn abandons the update without writing.
func (f *FileStore) Update(fn func(*State) error) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	state, err := f.load()
	if err != nil {
		return err
	}
	if err := fn(state); err != nil {
		return err
	}
	return f.save(state)
}

// UpdateUser is Update scoped to one user, creating the user when absent.
func (f *FileStore) UpdateUser(username string, fn func(*models.UserState) error) error {
	return f.Update(func(s *State) error {
		return fn(s.User(username))
	})
}
