// Package storage keeps uploaded and generated workbooks on disk and,
// optionally, archives them to S3-compatible object storage.
package storage

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
)

var ErrInvalidName = errors.New("invalid file name")

// Media is the directory uploads are written into. Outputs land next to
// their upload.
type Media struct {
	root string
}

func NewMedia(root string) (*Media, error) {
	if err := os.MkdirAll(root, 0755); err != nil {
		return nil, fmt.Errorf("create media root: %w", err)
	}
	return &Media{root: root}, nil
}

func (m *Media) Root() string { return m.root }

// Save writes r verbatim to the media root under the base name of name,
// replacing any earlier file of that name.
func (m *Media) Save(name string, r io.Reader) (string, error) {
	base := filepath.Base(strings.ReplaceAll(name, `\`, "/"))
	if base == "." || base == "/" || base == ".." || strings.TrimSpace(base) == "" {
		return "", fmt.Errorf("%w: %q", ErrInvalidName, name)
	}

	path := filepath.Join(m.root, base)
	f, err := os.Create(path)
	if err != nil {
		return "", fmt.Errorf("failed to create file: %w", err)
	}
	defer f.Close()

	if _, err := io.Copy(f, r); err != nil {
		return "", fmt.Errorf("failed to write upload: %w", err)
	}
	return path, f.Close()
}

// Rel returns path relative to the media root using forward slashes, for
// building download links.
func (m *Media) Rel(path string) (string, error) {
	rel, err := filepath.Rel(m.root, path)
	if err != nil {
		return "", err
	}
	if strings.HasPrefix(rel, "..") {
		return "", fmt.Errorf("%s is outside the media root", path)
	}
	return filepath.ToSlash(rel), nil
}
