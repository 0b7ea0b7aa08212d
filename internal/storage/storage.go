// Package storage keeps uploaded files outside the database.
//
// The database only records a storage-relative name such as
// "uploads/recipe/5f0c...e1.jpg". A FileStore turns that name into bytes on
// disk and into the public URL clients fetch it from.
package storage

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path"
	"path/filepath"
	"strings"

	"github.com/google/uuid"
)

// FileStore is the storage backend used for recipe images.
type FileStore interface {
	// Save writes r under name, replacing any existing file.
	Save(ctx context.Context, name string, r io.Reader) error
	// Delete removes name. Deleting a missing file is not an error.
	Delete(ctx context.Context, name string) error
	// URL returns the public URL for name.
	URL(name string) string
}

// ErrInvalidName is returned for names that would escape the storage root.
var ErrInvalidName = errors.New("storage: invalid file name")

// RecipeImageDir is where recipe images are stored, relative to the root.
const RecipeImageDir = "uploads/recipe"

// RecipeImageName returns a fresh random name for an uploaded recipe image.
// The extension of the client's filename is kept, lower-cased:
//
//	"My Photo.JPG" → "uploads/recipe/1b4e28ba-2fa1-11d2-883f-0016d3cca427.jpg"
func RecipeImageName(original string) string {
	ext := strings.ToLower(path.Ext(path.Base(filepath.ToSlash(original))))
	return path.Join(RecipeImageDir, uuid.NewString()+ext)
}

// LocalStore is a FileStore on the local filesystem.
type LocalStore struct {
	root    string
	baseURL string
}

var _ FileStore = (*LocalStore)(nil)

// NewLocalStore creates the root directory if needed. baseURL is the URL
// prefix the root is served under, e.g. "/media/".
func NewLocalStore(root, baseURL string) (*LocalStore, error) {
	if err := os.MkdirAll(root, 0o755); err != nil {
		return nil, fmt.Errorf("storage: creating root %s: %w", root, err)
	}
	return &LocalStore{root: root, baseURL: baseURL}, nil
}

// Root returns the directory files are stored in.
func (s *LocalStore) Root() string { return s.root }

// Save writes to a temporary file next to the target and renames it into
// place, so readers never see a partially written image.
func (s *LocalStore) Save(ctx context.Context, name string, r io.Reader) error {
	full, err := s.resolve(name)
	if err != nil {
		return err
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	dir := filepath.Dir(full)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("storage: creating %s: %w", dir, err)
	}

	tmp, err := os.CreateTemp(dir, ".upload-*")
	if err != nil {
		return fmt.Errorf("storage: creating temp file: %w", err)
	}
	defer os.Remove(tmp.Name()) // no-op after a successful rename

	if _, err := io.Copy(tmp, r); err != nil {
		tmp.Close()
		return fmt.Errorf("storage: writing %s: %w", name, err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("storage: closing %s: %w", name, err)
	}
	if err := os.Rename(tmp.Name(), full); err != nil {
		return fmt.Errorf("storage: moving %s into place: %w", name, err)
	}
	return nil
}

func (s *LocalStore) Delete(_ context.Context, name string) error {
	full, err := s.resolve(name)
	if err != nil {
		return err
	}
	if err := os.Remove(full); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("storage: deleting %s: %w", name, err)
	}
	return nil
}

func (s *LocalStore) URL(name string) string {
	return strings.TrimSuffix(s.baseURL, "/") + "/" + strings.TrimPrefix(name, "/")
}

// resolve maps a slash-separated name to a path under root.
func (s *LocalStore) resolve(name string) (string, error) {
	if name == "" || !fs.ValidPath(name) {
		return "", fmt.Errorf("%w: %q", ErrInvalidName, name)
	}
	return filepath.Join(s.root, filepath.FromSlash(name)), nil
}
