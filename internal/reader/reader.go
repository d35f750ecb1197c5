// Package reader turns source files into documents: a metadata header plus a text body.
package reader

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/kailas-cloud/flatrag/internal/domain"
)

// FileReader reads one family of document formats.
type FileReader interface {
	CanRead(path string) bool
	Read(path string) (domain.Document, error)
}

// Universal dispatches to the first registered reader that accepts a path.
type Universal struct {
	readers []FileReader
}

// NewUniversal creates a reader over the given readers, or the built-in set when none are given.
func NewUniversal(readers ...FileReader) *Universal {
	if len(readers) == 0 {
		readers = []FileReader{&TextReader{}, &PDFReader{}}
	}
	return &Universal{readers: readers}
}

// CanRead reports whether any registered reader accepts path.
func (u *Universal) CanRead(path string) bool {
	return u.find(path) != nil
}

// Read reads path with the matching reader.
func (u *Universal) Read(path string) (domain.Document, error) {
	r := u.find(path)
	if r == nil {
		return domain.Document{}, fmt.Errorf("%w: %s", domain.ErrUnsupportedDocument, filepath.Ext(path))
	}
	if err := checkExists(path); err != nil {
		return domain.Document{}, err
	}
	doc, err := r.Read(path)
	if err != nil {
		return domain.Document{}, err //nolint:wrapcheck // readers wrap with path context
	}
	return doc, nil
}

func (u *Universal) find(path string) FileReader {
	for _, r := range u.readers {
		if r.CanRead(path) {
			return r
		}
	}
	return nil
}

func checkExists(path string) error {
	info, err := os.Stat(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return fmt.Errorf("%w: %s", domain.ErrDocumentNotFound, path)
		}
		return fmt.Errorf("stat %s: %w", path, err)
	}
	if info.IsDir() {
		return fmt.Errorf("%w: %s is a directory", domain.ErrUnsupportedDocument, path)
	}
	return nil
}

func hasExt(path string, exts ...string) bool {
	ext := strings.ToLower(filepath.Ext(path))
	for _, e := range exts {
		if ext == e {
			return true
		}
	}
	return false
}

func newDocument(path string, meta map[string]any, body string) domain.Document {
	if meta == nil {
		meta = map[string]any{}
	}
	return domain.Document{
		Name: filepath.Base(path),
		Path: path,
		Meta: meta,
		Body: body,
	}
}
