package domain

import (
	"path/filepath"
	"strings"
)

// Document is a source document split into its metadata header and text body.
type Document struct {
	Name string         // base name, used to derive the chunk-store file
	Path string         // path the document was read from
	Meta map[string]any // document-level metadata, replicated onto every chunk
	Body string
}

// DocumentName derives the chunk file stem from a document path: base name without extension.
// Paths sharing a stem (a.md and a.txt, or docs/a.md and notes/a.md) share one chunk file.
func DocumentName(path string) string {
	base := filepath.Base(path)
	return strings.TrimSuffix(base, filepath.Ext(base))
}
