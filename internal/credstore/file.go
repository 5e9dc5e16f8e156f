package credstore

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/zippro/homeai"
)

// DefaultStoreVersion is the current file format version.
const DefaultStoreVersion = 1

// storeData is the on-disk format.
type storeData struct {
	Version  int                       `json:"version"`
	Sessions map[string]homeai.Session `json:"sessions"`
}

// FileStore keeps sessions in a single JSON file readable only by the owner.
// Every mutation is written to a temp file, fsynced and renamed over the
// original, so a crash leaves either the old or the new file.
type FileStore struct {
	mu   sync.Mutex
	path string
}

// NewFileStore creates the store directory if needed. The file itself is
// created on the first Save.
func NewFileStore(path string) (*FileStore, error) {
	if path == "" {
		return nil, fmt.Errorf("credstore: file path is required")
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
		return nil, fmt.Errorf("create directory: %w", err)
	}
	return &FileStore{path: path}, nil
}

// Path returns the store file path.
func (s *FileStore) Path() string {
	return s.path
}

// Load returns the session stored for baseURL.
func (s *FileStore) Load(_ context.Context, baseURL string) (homeai.Session, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	data, err := s.read()
	if err != nil {
		return homeai.Session{}, err
	}
	sess, ok := data.Sessions[baseURL]
	if !ok || !sess.Valid() {
		return homeai.Session{}, ErrNotFound
	}
	return sess, nil
}

// Save stores sess for baseURL, replacing any previous session.
func (s *FileStore) Save(_ context.Context, baseURL string, sess homeai.Session) error {
	if !sess.Valid() {
		return fmt.Errorf("credstore: refusing to store a session without token")
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	data, err := s.read()
	if err != nil {
		return err
	}
	data.Sessions[baseURL] = sess
	return s.write(data)
}

// Clear removes the session stored for baseURL. Clearing a missing session
// is not an error.
func (s *FileStore) Clear(_ context.Context, baseURL string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	data, err := s.read()
	if err != nil {
		return err
	}
	if _, ok := data.Sessions[baseURL]; !ok {
		return nil
	}
	delete(data.Sessions, baseURL)
	return s.write(data)
}

// Close implements Store.
func (s *FileStore) Close() error {
	return nil
}

func (s *FileStore) read() (*storeData, error) {
	empty := &storeData{Version: DefaultStoreVersion, Sessions: map[string]homeai.Session{}}

	raw, err := os.ReadFile(s.path)
	if os.IsNotExist(err) {
		return empty, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read file: %w", err)
	}
	if len(raw) == 0 {
		return empty, nil
	}

	var data storeData
	if err := json.Unmarshal(raw, &data); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrStoreCorrupted, err)
	}
	if data.Version > DefaultStoreVersion {
		return nil, fmt.Errorf("%w: unsupported version %d", ErrStoreCorrupted, data.Version)
	}
	if data.Sessions == nil {
		data.Sessions = map[string]homeai.Session{}
	}
	data.Version = DefaultStoreVersion
	return &data, nil
}

func (s *FileStore) write(data *storeData) error {
	raw, err := json.MarshalIndent(data, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal: %w", err)
	}

	tmpPath := s.path + ".tmp"

	f, err := os.OpenFile(tmpPath, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, 0o600)
	if err != nil {
		return fmt.Errorf("%w: create temp: %v", ErrStorePersist, err)
	}

	if _, err := f.Write(raw); err != nil {
		_ = f.Close()
		_ = os.Remove(tmpPath)
		return fmt.Errorf("%w: write: %v", ErrStorePersist, err)
	}

	if err := f.Sync(); err != nil {
		_ = f.Close()
		_ = os.Remove(tmpPath)
		return fmt.Errorf("%w: fsync: %v", ErrStorePersist, err)
	}

	if err := f.Close(); err != nil {
		_ = os.Remove(tmpPath)
		return fmt.Errorf("%w: close: %v", ErrStorePersist, err)
	}

	if err := os.Rename(tmpPath, s.path); err != nil {
		_ = os.Remove(tmpPath)
		return fmt.Errorf("%w: rename: %v", ErrStorePersist, err)
	}
	return nil
}
