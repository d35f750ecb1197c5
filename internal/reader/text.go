package reader

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/kailas-cloud/flatrag/internal/domain"
)

// TextReader reads plain text and markdown with an optional front matter header.
type TextReader struct{}

// CanRead accepts .txt, .md and .markdown files.
func (r *TextReader) CanRead(path string) bool {
	return hasExt(path, ".txt", ".md", ".markdown")
}

// Read splits the file into its front matter metadata and body.
func (r *TextReader) Read(path string) (domain.Document, error) {
	if err := checkExists(path); err != nil {
		return domain.Document{}, err
	}
	buf, err := os.ReadFile(filepath.Clean(path))
	if err != nil {
		return domain.Document{}, fmt.Errorf("reading text file: %w", err)
	}

	meta, body, err := SplitFrontMatter(string(buf))
	if err != nil {
		return domain.Document{}, fmt.Errorf("%s: %w", path, err)
	}
	return newDocument(path, meta, body), nil
}
