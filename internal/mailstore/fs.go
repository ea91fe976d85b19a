package mailstore

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/djherbis/times"
	"github.com/go-kit/kit/log"
	"github.com/go-kit/kit/log/level"
)

// ErrInvalidName is returned for user or folder names that would escape the mail root
var ErrInvalidName = errors.New("invalid user or folder name")

// FSStore reads messages from <root>/<user>/<folder>/<file>
type FSStore struct {
	root   string
	logger log.Logger
}

// NewFSStore creates a filesystem store rooted at root
func NewFSStore(root string, logger log.Logger) *FSStore {
	if logger == nil {
		logger = log.NewNopLogger()
	}
	return &FSStore{
		root:   root,
		logger: log.With(logger, "component", "fsstore"),
	}
}

// Root returns the mail root directory
func (s *FSStore) Root() string {
	return s.root
}

// FolderPath returns the directory holding a user's folder
func (s *FSStore) FolderPath(user, folder string) (string, error) {
	if err := CheckName(user); err != nil {
		return "", err
	}
	if err := CheckName(folder); err != nil {
		return "", err
	}
	return filepath.Join(s.root, user, folder), nil
}

// Folders lists the sub-directories of the user's directory, sorted by name
func (s *FSStore) Folders(ctx context.Context, user string) ([]string, error) {
	if err := CheckName(user); err != nil {
		return nil, err
	}

	dirEntries, err := os.ReadDir(filepath.Join(s.root, user))
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("user %s: %w", user, ErrFolderNotFound)
		}
		return nil, fmt.Errorf("failed to list folders for %s: %w", user, err)
	}

	var folders []string
	for _, de := range dirEntries {
		if de.IsDir() && !strings.HasPrefix(de.Name(), ".") {
			folders = append(folders, de.Name())
		}
	}
	return folders, nil
}

// Snapshot enumerates the message files of a folder
func (s *FSStore) Snapshot(ctx context.Context, user, folder string) (Snapshot, error) {
	dir, err := s.FolderPath(user, folder)
	if err != nil {
		return nil, err
	}

	dirEntries, err := os.ReadDir(dir)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("%s/%s: %w", user, folder, ErrFolderNotFound)
		}
		return nil, fmt.Errorf("failed to read folder %s/%s: %w", user, folder, err)
	}

	entries := make([]Entry, 0, len(dirEntries))
	for _, de := range dirEntries {
		if de.IsDir() {
			continue
		}
		entry, err := NewEntry(folder, de.Name(), filepath.Join(dir, de.Name()))
		if err != nil {
			level.Debug(s.logger).Log("msg", "skipping file", "folder", dir, "file", de.Name(), "err", err)
			continue
		}
		entries = append(entries, entry)
	}
	return NewSnapshot(entries), nil
}

// Load reads a message file and its creation time. Birth time is used where
// the filesystem records it, the modification time otherwise.
func (s *FSStore) Load(ctx context.Context, entry Entry) (*Message, error) {
	raw, err := os.ReadFile(entry.Key)
	if err != nil {
		return nil, fmt.Errorf("failed to read message %s: %w", entry.Name, err)
	}

	ts, err := times.Stat(entry.Key)
	if err != nil {
		return nil, fmt.Errorf("failed to stat message %s: %w", entry.Name, err)
	}
	created := ts.ModTime()
	if ts.HasBirthTime() {
		created = ts.BirthTime()
	}

	return &Message{
		UID:       entry.UID,
		Seq:       entry.Seq,
		Raw:       raw,
		CreatedAt: created,
	}, nil
}

// Exists reports whether a message file is already present
func (s *FSStore) Exists(ctx context.Context, user, folder, name string) (bool, error) {
	dir, err := s.FolderPath(user, folder)
	if err != nil {
		return false, err
	}
	_, err = os.Stat(filepath.Join(dir, name))
	if err == nil {
		return true, nil
	}
	if errors.Is(err, fs.ErrNotExist) {
		return false, nil
	}
	return false, err
}

// Put writes a message file through a hidden temporary file and a rename, so
// a concurrent Snapshot never sees a partial message. The folder is created
// when missing.
func (s *FSStore) Put(ctx context.Context, user, folder, name string, raw []byte) error {
	dir, err := s.FolderPath(user, folder)
	if err != nil {
		return err
	}
	if err := os.MkdirAll(dir, 0o750); err != nil {
		return fmt.Errorf("failed to create folder %s/%s: %w", user, folder, err)
	}

	tmp, err := os.CreateTemp(dir, ".tmp-*")
	if err != nil {
		return fmt.Errorf("failed to create temp file: %w", err)
	}
	defer func() { _ = os.Remove(tmp.Name()) }()

	if _, err := tmp.Write(raw); err != nil {
		_ = tmp.Close()
		return fmt.Errorf("failed to write message: %w", err)
	}
	if err := tmp.Sync(); err != nil {
		_ = tmp.Close()
		return fmt.Errorf("failed to sync message: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("failed to close message: %w", err)
	}

	if err := os.Rename(tmp.Name(), filepath.Join(dir, name)); err != nil {
		return fmt.Errorf("failed to store message %s: %w", name, err)
	}
	level.Debug(s.logger).Log("msg", "stored message", "user", user, "folder", folder, "file", name, "size", len(raw))
	return nil
}

// CheckName rejects user and folder names that are empty or contain path separators
func CheckName(name string) error {
	if name == "" || name == "." || name == ".." || strings.ContainsAny(name, `/\`) || strings.ContainsRune(name, 0) {
		return fmt.Errorf("%q: %w", name, ErrInvalidName)
	}
	return nil
}
