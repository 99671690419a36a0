// Package cursor persists the incremental synchronization position.
//
// Two kinds of cursor exist: the opaque DirSync cookie returned by Active
// Directory (KindPush) and the generalized-time timestamp used to build a
// modifyTimestamp filter (KindTimestamp). Each kind lives in its own file.
// A missing file means no prior cursor, which forces a full sync.
package cursor

import (
	"bytes"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
)

// Kind selects a cursor modality.
type Kind string

const (
	// KindPush is the binary DirSync cookie.
	KindPush Kind = "push-cursor"
	// KindTimestamp is the text modifyTimestamp cursor.
	KindTimestamp Kind = "timestamp"
)

const (
	dirPerm  = 0o750
	filePerm = 0o600
)

var (
	// ErrUnknownKind is returned for a kind without a configured path.
	ErrUnknownKind = errors.New("unknown cursor kind")
)

// Store reads and atomically writes cursor files.
type Store struct {
	paths   map[Kind]string
	lock    *instanceLock
	syncDir func(dir string) error
}

// New creates a store writing the push cursor to cookieFile and the timestamp cursor to stateFile.
func New(stateFile, cookieFile string) *Store {
	return &Store{
		paths: map[Kind]string{
			KindTimestamp: stateFile,
			KindPush:      cookieFile,
		},
		syncDir: syncDir,
	}
}

// Path returns the file backing kind.
func (s *Store) Path(kind Kind) (string, error) {
	p, ok := s.paths[kind]
	if !ok || p == "" {
		return "", fmt.Errorf("%w: %q", ErrUnknownKind, kind)
	}

	return p, nil
}

// Load returns the stored cursor for kind. found is false when no cursor was saved yet.
// Timestamp cursors are returned without surrounding whitespace.
func (s *Store) Load(kind Kind) (value []byte, found bool, err error) {
	p, err := s.Path(kind)
	if err != nil {
		return nil, false, err
	}

	data, err := os.ReadFile(p) //nolint:gosec // path comes from configuration
	if errors.Is(err, fs.ErrNotExist) {
		return nil, false, nil
	}

	if err != nil {
		return nil, false, fmt.Errorf("failed to read %s cursor: %w", kind, err)
	}

	if kind == KindTimestamp {
		data = bytes.TrimSpace(data)
	}

	if data == nil {
		data = []byte{}
	}

	return data, true, nil
}

// Save replaces the stored cursor for kind.
// The value is written to a temporary file in the target directory, synced and
// renamed over the target, so readers see either the old or the new cursor.
func (s *Store) Save(kind Kind, value []byte) error {
	p, err := s.Path(kind)
	if err != nil {
		return err
	}

	dir := filepath.Dir(p)
	if err = os.MkdirAll(dir, dirPerm); err != nil {
		return fmt.Errorf("failed to create cursor directory %s: %w", dir, err)
	}

	tmp, err := os.CreateTemp(dir, "."+filepath.Base(p)+".*.tmp")
	if err != nil {
		return fmt.Errorf("failed to create temporary %s cursor: %w", kind, err)
	}

	tmpPath := tmp.Name()

	if err = writeAndSync(tmp, value); err != nil {
		_ = os.Remove(tmpPath)

		return fmt.Errorf("failed to write %s cursor: %w", kind, err)
	}

	if err = os.Chmod(tmpPath, filePerm); err != nil {
		_ = os.Remove(tmpPath)

		return fmt.Errorf("failed to set %s cursor permissions: %w", kind, err)
	}

	if err = os.Rename(tmpPath, p); err != nil {
		_ = os.Remove(tmpPath)

		return fmt.Errorf("failed to rename %s cursor: %w", kind, err)
	}

	// the rename is durable only once the directory entry is flushed
	if err = s.syncDir(dir); err != nil {
		return fmt.Errorf("failed to sync %s cursor directory %s: %w", kind, dir, err)
	}

	return nil
}

func syncDir(dir string) error {
	d, err := os.Open(dir) //nolint:gosec // cursor directory from configuration
	if err != nil {
		return err
	}

	if err = d.Sync(); err != nil {
		_ = d.Close()

		return err
	}

	return d.Close()
}

func writeAndSync(f *os.File, value []byte) error {
	if _, err := f.Write(value); err != nil {
		_ = f.Close()

		return err
	}

	if err := f.Sync(); err != nil {
		_ = f.Close()

		return err
	}

	return f.Close()
}
