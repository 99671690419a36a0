package cursor

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/gofrs/flock"
)

// LockFileName is created next to the timestamp cursor.
const LockFileName = ".ldap-sync.lock"

// ErrLocked is returned by Lock when another process holds the cursor directory.
var ErrLocked = errors.New("cursor directory is locked by another ldap-sync instance")

type instanceLock struct {
	fl *flock.Flock
}

// Lock takes an exclusive, non-blocking lock on the cursor directory.
// Only one sync process may own a set of cursor files.
func (s *Store) Lock() error {
	p, err := s.Path(KindTimestamp)
	if err != nil {
		return err
	}

	dir := filepath.Dir(p)
	if err = os.MkdirAll(dir, dirPerm); err != nil {
		return fmt.Errorf("failed to create cursor directory %s: %w", dir, err)
	}

	fl := flock.New(filepath.Join(dir, LockFileName))

	locked, err := fl.TryLock()
	if err != nil {
		return fmt.Errorf("failed to lock cursor directory %s: %w", dir, err)
	}

	if !locked {
		return fmt.Errorf("%w: %s", ErrLocked, dir)
	}

	s.lock = &instanceLock{fl: fl}

	return nil
}

// Unlock releases the lock taken by Lock. It is a no-op without a lock.
func (s *Store) Unlock() error {
	if s.lock == nil {
		return nil
	}

	err := s.lock.fl.Unlock()
	s.lock = nil

	if err != nil {
		return fmt.Errorf("failed to unlock cursor directory: %w", err)
	}

	return nil
}
