// Package session owns the on-disk credential directories, one per pairing attempt.
package session

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"sync"

	"github.com/parnexcodes/pairlink/internal/logging"
)

// DirPrefix is prepended to the session id to name its directory
const DirPrefix = "session-"

var validID = regexp.MustCompile(`^[A-Za-z0-9_-]+$`)

// ErrInvalidID is returned for ids that cannot be used as a directory name
var ErrInvalidID = errors.New("invalid session id")

// ErrDestroyed is returned when writing through a handle after teardown
var ErrDestroyed = errors.New("session destroyed")

// Store manages session directories under a single root
type Store struct {
	root       string
	bundleName string
}

// Handle is the exclusive owner of one session directory
type Handle struct {
	ID   string
	Path string

	store     *Store
	mu        sync.Mutex
	destroyed bool
}

// NewStore creates the root directory if needed
func NewStore(root, bundleName string) (*Store, error) {
	if bundleName == "" || filepath.Base(bundleName) != bundleName {
		return nil, fmt.Errorf("invalid bundle name %q", bundleName)
	}
	abs, err := filepath.Abs(root)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve session root: %w", err)
	}
	if err := os.MkdirAll(abs, 0o700); err != nil {
		return nil, fmt.Errorf("failed to create session root: %w", err)
	}
	return &Store{root: abs, bundleName: bundleName}, nil
}

// Root returns the absolute session root
func (s *Store) Root() string {
	return s.root
}

// BundleName returns the credential bundle file name used in every session
func (s *Store) BundleName() string {
	return s.bundleName
}

// PathFor returns the directory a session with the given id lives in
func (s *Store) PathFor(id string) string {
	return filepath.Join(s.root, DirPrefix+id)
}

// Create removes any stale directory for id and returns a handle to a fresh one
func (s *Store) Create(id string) (*Handle, error) {
	if !validID.MatchString(id) {
		return nil, fmt.Errorf("%w: %q", ErrInvalidID, id)
	}

	path := s.PathFor(id)

	// Stale credentials from an aborted attempt must never leak into this one
	if err := os.RemoveAll(path); err != nil {
		return nil, fmt.Errorf("failed to clear stale session %s: %w", id, err)
	}
	if err := os.MkdirAll(path, 0o700); err != nil {
		return nil, fmt.Errorf("failed to create session %s: %w", id, err)
	}

	logging.SessionCreated(id, path)
	return &Handle{ID: id, Path: path, store: s}, nil
}

// Exists reports whether the handle's directory is still on disk
func (s *Store) Exists(h *Handle) bool {
	if h == nil {
		return false
	}
	h.mu.Lock()
	destroyed := h.destroyed
	h.mu.Unlock()
	if destroyed {
		return false
	}
	info, err := os.Stat(h.Path)
	return err == nil && info.IsDir()
}

// Destroy removes the handle's directory. It is idempotent and never fails
// the caller; filesystem errors are only logged.
func (s *Store) Destroy(h *Handle) {
	if h == nil {
		return
	}
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.destroyed {
		return
	}
	h.destroyed = true

	if err := os.RemoveAll(h.Path); err != nil && !errors.Is(err, os.ErrNotExist) {
		logging.ErrorContext("session_destroy", err, map[string]interface{}{
			"session_id": h.ID,
			"path":       h.Path,
		})
		return
	}
	logging.SessionDestroyed(h.ID, h.Path)
}

// BundlePath returns where the credential bundle is persisted
func (h *Handle) BundlePath() string {
	return filepath.Join(h.Path, h.store.bundleName)
}

// SaveCredentials atomically replaces the credential bundle
func (h *Handle) SaveCredentials(data []byte) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.destroyed {
		return ErrDestroyed
	}

	tmp, err := os.CreateTemp(h.Path, "."+h.store.bundleName+".*")
	if err != nil {
		return fmt.Errorf("failed to create temp bundle: %w", err)
	}
	tmpName := tmp.Name()
	defer os.Remove(tmpName)

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return fmt.Errorf("failed to write bundle: %w", err)
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return fmt.Errorf("failed to sync bundle: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("failed to close bundle: %w", err)
	}
	if err := os.Rename(tmpName, h.BundlePath()); err != nil {
		return fmt.Errorf("failed to replace bundle: %w", err)
	}
	return nil
}

// LoadCredentials returns the persisted bundle, or nil if none was written yet
func (h *Handle) LoadCredentials() ([]byte, error) {
	data, err := os.ReadFile(h.BundlePath())
	if errors.Is(err, os.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read bundle: %w", err)
	}
	return data, nil
}
