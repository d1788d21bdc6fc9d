// Package storage is the local file collaborator behind literature records.
// Bytes are written by the upload layer; this package only inspects and tidies
// the tree.
package storage

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path"
	"path/filepath"
	"sort"
	"strings"

	"github.com/spf13/afero"
)

// ErrInvalidRef rejects storage references that escape the root.
var ErrInvalidRef = errors.New("invalid storage reference")

// FileStore serves a directory tree rooted at root on fs.
type FileStore struct {
	fs   afero.Fs
	root string
}

// NewFileStore returns a store over fs rooted at root. The root is created if missing.
func NewFileStore(fs afero.Fs, root string) (*FileStore, error) {
	if err := fs.MkdirAll(root, 0o755); err != nil {
		return nil, fmt.Errorf("create storage root: %w", err)
	}
	return &FileStore{fs: fs, root: root}, nil
}

// NewOSFileStore returns a store on the local disk.
func NewOSFileStore(root string) (*FileStore, error) {
	return NewFileStore(afero.NewOsFs(), root)
}

// Stat returns the size of the regular file at ref.
func (s *FileStore) Stat(_ context.Context, ref string) (int64, error) {
	full, err := s.resolve(ref)
	if err != nil {
		return 0, err
	}
	info, err := s.fs.Stat(full)
	if err != nil {
		return 0, fmt.Errorf("stat %s: %w", ref, err)
	}
	if info.IsDir() {
		return 0, fmt.Errorf("stat %s: %w", ref, ErrInvalidRef)
	}
	return info.Size(), nil
}

// CleanupEmptyDirectories removes every directory under the root that holds no
// files, deepest first, and returns how many were removed. The root itself is
// kept. A tree with nothing to remove returns 0.
func (s *FileStore) CleanupEmptyDirectories(ctx context.Context) (int, error) {
	var dirs []string
	err := afero.Walk(s.fs, s.root, func(p string, info os.FileInfo, err error) error {
		if err != nil {
			if errors.Is(err, os.ErrNotExist) {
				return nil
			}
			return err
		}
		if info.IsDir() && p != s.root {
			dirs = append(dirs, p)
		}
		return ctx.Err()
	})
	if err != nil {
		return 0, fmt.Errorf("walk storage: %w", err)
	}

	// Deepest paths first so parents emptied by this pass go too.
	sort.Slice(dirs, func(i, j int) bool {
		di, dj := depth(dirs[i]), depth(dirs[j])
		if di != dj {
			return di > dj
		}
		return dirs[i] > dirs[j]
	})

	removed := 0
	for _, dir := range dirs {
		if err := ctx.Err(); err != nil {
			return removed, err
		}
		empty, err := afero.IsEmpty(s.fs, dir)
		if err != nil {
			if errors.Is(err, os.ErrNotExist) {
				continue
			}
			return removed, fmt.Errorf("inspect %s: %w", dir, err)
		}
		if !empty {
			continue
		}
		if err := s.fs.Remove(dir); err != nil {
			if errors.Is(err, os.ErrNotExist) {
				continue
			}
			return removed, fmt.Errorf("remove %s: %w", dir, err)
		}
		removed++
	}
	return removed, nil
}

func (s *FileStore) resolve(ref string) (string, error) {
	cleaned := path.Clean("/" + strings.ReplaceAll(ref, "\\", "/"))
	if ref == "" || cleaned == "/" || strings.Contains(ref, "..") {
		return "", ErrInvalidRef
	}
	return filepath.Join(s.root, filepath.FromSlash(strings.TrimPrefix(cleaned, "/"))), nil
}

func depth(p string) int {
	return strings.Count(filepath.ToSlash(p), "/")
}
