package chunk

import "strings"

// Chunk is one fixed-size line window of a document with its embedding.
// Meta is the document-level metadata, identical across a document's chunks.
type Chunk struct {
	Text      string         `json:"text"`
	Embedding []float64      `json:"embedding"`
	Meta      map[string]any `json:"meta"`
}

// Windows splits body into trimmed non-empty lines and groups them into
// non-overlapping windows of size lines. The last window may be shorter.
func Windows(body string, size int) []string {
	if size <= 0 {
		size = 1
	}

	var lines []string
	for _, l := range strings.Split(body, "\n") {
		l = strings.TrimSpace(l)
		if l != "" {
			lines = append(lines, l)
		}
	}

	windows := make([]string, 0, (len(lines)+size-1)/size)
	for start := 0; start < len(lines); start += size {
		end := min(start+size, len(lines))
		windows = append(windows, strings.Join(lines[start:end], "\n"))
	}
	return windows
}
