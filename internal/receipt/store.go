package receipt

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
)

// FileStore keeps artifacts as files under a root directory. References are
// file names relative to the root.
type FileStore struct {
	root string
	ext  string
}

func NewFileStore(root string) (*FileStore, error) {
	if err := os.MkdirAll(root, 0o750); err != nil {
		return nil, fmt.Errorf("create receipt dir: %w", err)
	}
	return &FileStore{root: root, ext: ".html"}, nil
}

// Save writes blob atomically and returns its reference. Saving the same name
// twice replaces the artifact.
func (s *FileStore) Save(ctx context.Context, name string, blob []byte) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	ref, err := s.ref(name)
	if err != nil {
		return "", err
	}
	tmp, err := os.CreateTemp(s.root, ".tmp-*")
	if err != nil {
		return "", fmt.Errorf("save artifact: %w", err)
	}
	defer os.Remove(tmp.Name()) //nolint:errcheck

	if _, err := tmp.Write(blob); err != nil {
		tmp.Close()
		return "", fmt.Errorf("save artifact: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return "", fmt.Errorf("save artifact: %w", err)
	}
	if err := os.Rename(tmp.Name(), filepath.Join(s.root, ref)); err != nil {
		return "", fmt.Errorf("save artifact: %w", err)
	}
	return ref, nil
}

func (s *FileStore) Exists(ctx context.Context, ref string) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, err
	}
	if ref == "" || ref != filepath.Base(ref) {
		return false, nil
	}
	_, err := os.Stat(filepath.Join(s.root, ref))
	if errors.Is(err, fs.ErrNotExist) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("stat artifact: %w", err)
	}
	return true, nil
}

// Open returns the artifact bytes.
func (s *FileStore) Open(ctx context.Context, ref string) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if ref == "" || ref != filepath.Base(ref) {
		return nil, fs.ErrNotExist
	}
	return os.ReadFile(filepath.Join(s.root, ref))
}

func (s *FileStore) ref(name string) (string, error) {
	name = strings.TrimSpace(name)
	if name == "" || strings.ContainsAny(name, `/\`) || strings.HasPrefix(name, ".") {
		return "", fmt.Errorf("invalid artifact name %q", name)
	}
	return name + s.ext, nil
}
