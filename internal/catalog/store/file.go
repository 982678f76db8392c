package store

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"regexp"

	apperrors "github.com/Adithya-Monish-Kumar-K/card-catalog-index/pkg/errors"
	"github.com/gofrs/flock"
)

var validName = regexp.MustCompile(`^[A-Za-z0-9._-]+$`)

// FileStore keeps one file per item under a directory. Writers go through a
// temp file and rename; an flock per item serialises processes sharing the
// directory (the daemon and the CLI).
type FileStore struct {
	dir    string
	logger *slog.Logger
}

func NewFileStore(dir string) (*FileStore, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("creating cache directory: %w", err)
	}
	return &FileStore{
		dir:    dir,
		logger: slog.Default().With("component", "file-store"),
	}, nil
}

func (s *FileStore) paths(name string) (data, lock string, err error) {
	if !validName.MatchString(name) {
		return "", "", fmt.Errorf("%w: cache item name %q", apperrors.ErrInvalidInput, name)
	}
	data = filepath.Join(s.dir, name+".state")
	return data, data + ".lock", nil
}

func (s *FileStore) GetItem(ctx context.Context, name string) (*State, error) {
	path, lockPath, err := s.paths(name)
	if err != nil {
		return nil, err
	}
	l := flock.New(lockPath)
	if _, err := l.TryRLockContext(ctx, lockRetryDelay); err != nil {
		return nil, fmt.Errorf("locking %s: %w", lockPath, err)
	}
	defer l.Unlock()

	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, nil
		}
		return nil, fmt.Errorf("reading %s: %w", path, err)
	}
	return Decode(data)
}

func (s *FileStore) SetItem(ctx context.Context, name string, state *State) error {
	path, lockPath, err := s.paths(name)
	if err != nil {
		return err
	}
	data, err := Encode(state)
	if err != nil {
		return err
	}
	l := flock.New(lockPath)
	if _, err := l.TryLockContext(ctx, lockRetryDelay); err != nil {
		return fmt.Errorf("locking %s: %w", lockPath, err)
	}
	defer l.Unlock()

	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return fmt.Errorf("writing %s: %w", tmp, err)
	}
	if err := os.Rename(tmp, path); err != nil {
		os.Remove(tmp)
		return fmt.Errorf("renaming %s: %w", tmp, err)
	}
	s.logger.Debug("state persisted", "name", name, "version", state.Version, "bytes", len(data))
	return nil
}

func (s *FileStore) RemoveItem(ctx context.Context, name string) error {
	path, lockPath, err := s.paths(name)
	if err != nil {
		return err
	}
	l := flock.New(lockPath)
	if _, err := l.TryLockContext(ctx, lockRetryDelay); err != nil {
		return fmt.Errorf("locking %s: %w", lockPath, err)
	}
	defer l.Unlock()

	if err := os.Remove(path); err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("removing %s: %w", path, err)
	}
	return nil
}
