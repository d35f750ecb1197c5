// Package chunkstore persists chunk records as newline-delimited JSON, one file per document:
// <root>/<topic>/<document>.jsonl.
package chunkstore

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"

	"github.com/kailas-cloud/flatrag/internal/domain"
	"github.com/kailas-cloud/flatrag/internal/domain/chunk"
)

const ext = ".jsonl"

// maxLineSize bounds a single stored record (embedding plus text plus metadata).
const maxLineSize = 64 << 20

// Repo implements the flat-file chunk store.
type Repo struct {
	root string

	mu    sync.Mutex
	locks map[string]*sync.RWMutex
}

// New creates a chunk store rooted at root (<dataDir>/<embeddingsDir>).
func New(root string) *Repo {
	return &Repo{root: root, locks: make(map[string]*sync.RWMutex)}
}

// Root returns the store directory.
func (r *Repo) Root() string { return r.root }

// Write replaces the chunk file of document under topic with chunks, in order.
// The file is written to a temp file and renamed, so readers never see a partial file.
func (r *Repo) Write(ctx context.Context, topic, document string, chunks []chunk.Chunk) error {
	path, err := r.docPath(topic, document)
	if err != nil {
		return err
	}
	if err := ctx.Err(); err != nil {
		return fmt.Errorf("write %s: %w", path, err)
	}

	lock := r.lock(path)
	lock.Lock()
	defer lock.Unlock()

	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("create topic dir %s: %w", dir, err)
	}

	tmp, err := os.CreateTemp(dir, "."+filepath.Base(path)+".*.tmp")
	if err != nil {
		return fmt.Errorf("create temp file: %w", err)
	}
	tmpName := tmp.Name()
	defer os.Remove(tmpName) //nolint:errcheck // no-op after a successful rename

	w := bufio.NewWriter(tmp)
	enc := json.NewEncoder(w)
	for i := range chunks {
		if err := enc.Encode(&chunks[i]); err != nil {
			_ = tmp.Close()
			return fmt.Errorf("encode chunk %d: %w", i, err)
		}
	}
	if err := w.Flush(); err != nil {
		_ = tmp.Close()
		return fmt.Errorf("flush %s: %w", tmpName, err)
	}
	if err := tmp.Sync(); err != nil {
		_ = tmp.Close()
		return fmt.Errorf("sync %s: %w", tmpName, err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("close %s: %w", tmpName, err)
	}
	if err := os.Rename(tmpName, path); err != nil {
		return fmt.Errorf("replace %s: %w", path, err)
	}
	return nil
}

// Read returns every chunk stored under topic: files in name order, then line order.
// A topic that does not exist yields no chunks. A malformed record fails the whole read.
func (r *Repo) Read(ctx context.Context, topic string) ([]chunk.Chunk, error) {
	dir, err := r.topicDir(topic)
	if err != nil {
		return nil, err
	}

	files, err := listDocuments(dir)
	if err != nil {
		return nil, err
	}

	var out []chunk.Chunk
	for _, name := range files {
		if err := ctx.Err(); err != nil {
			return nil, fmt.Errorf("read topic %s: %w", topic, err)
		}
		chunks, err := r.readFile(filepath.Join(dir, name))
		if err != nil {
			return nil, err
		}
		out = append(out, chunks...)
	}
	return out, nil
}

// Delete removes the chunk file of document under topic. Missing files are not an error.
func (r *Repo) Delete(_ context.Context, topic, document string) error {
	path, err := r.docPath(topic, document)
	if err != nil {
		return err
	}

	lock := r.lock(path)
	lock.Lock()
	defer lock.Unlock()

	if err := os.Remove(path); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("delete %s: %w", path, err)
	}
	return nil
}

// Topics lists topic directories in name order.
func (r *Repo) Topics(_ context.Context) ([]string, error) {
	entries, err := os.ReadDir(r.root)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return []string{}, nil
		}
		return nil, fmt.Errorf("list topics: %w", err)
	}

	topics := make([]string, 0, len(entries))
	for _, e := range entries {
		if e.IsDir() && !strings.HasPrefix(e.Name(), ".") {
			topics = append(topics, e.Name())
		}
	}
	return topics, nil
}

// Ping verifies the store root exists (creating it if needed) and is a directory.
func (r *Repo) Ping(_ context.Context) error {
	if err := os.MkdirAll(r.root, 0o755); err != nil {
		return fmt.Errorf("chunk store root %s: %w", r.root, err)
	}
	info, err := os.Stat(r.root)
	if err != nil {
		return fmt.Errorf("chunk store root %s: %w", r.root, err)
	}
	if !info.IsDir() {
		return fmt.Errorf("chunk store root %s is not a directory", r.root)
	}
	return nil
}

func (r *Repo) readFile(path string) ([]chunk.Chunk, error) {
	lock := r.lock(path)
	lock.RLock()
	defer lock.RUnlock()

	f, err := os.Open(filepath.Clean(path))
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			// removed between listing and reading
			return nil, nil
		}
		return nil, fmt.Errorf("open %s: %w", path, err)
	}
	defer f.Close() //nolint:errcheck // read-only

	var out []chunk.Chunk
	sc := bufio.NewScanner(f)
	sc.Buffer(make([]byte, 0, 64*1024), maxLineSize)
	line := 0
	for sc.Scan() {
		line++
		raw := sc.Bytes()
		if len(strings.TrimSpace(string(raw))) == 0 {
			continue
		}
		var c chunk.Chunk
		if err := json.Unmarshal(raw, &c); err != nil {
			return nil, &domain.CorruptRecordError{Path: path, Line: line, Err: err}
		}
		out = append(out, c)
	}
	if err := sc.Err(); err != nil {
		return nil, &domain.CorruptRecordError{Path: path, Line: line + 1, Err: err}
	}
	return out, nil
}

func (r *Repo) lock(path string) *sync.RWMutex {
	r.mu.Lock()
	defer r.mu.Unlock()
	l, ok := r.locks[path]
	if !ok {
		l = &sync.RWMutex{}
		r.locks[path] = l
	}
	return l
}

func (r *Repo) topicDir(topic string) (string, error) {
	if err := ValidateTopic(topic); err != nil {
		return "", err
	}
	return filepath.Join(r.root, topic), nil
}

func (r *Repo) docPath(topic, document string) (string, error) {
	dir, err := r.topicDir(topic)
	if err != nil {
		return "", err
	}
	name := DocumentName(document)
	if name == "" || name == "." || name == ".." {
		return "", fmt.Errorf("invalid document name %q", document)
	}
	return filepath.Join(dir, name+ext), nil
}

// ValidateTopic checks that topic maps to exactly one directory under the store root.
func ValidateTopic(topic string) error {
	switch {
	case strings.TrimSpace(topic) == "":
		return fmt.Errorf("%w: empty name", domain.ErrInvalidTopic)
	case topic == "." || topic == "..":
		return fmt.Errorf("%w: %q", domain.ErrInvalidTopic, topic)
	case strings.ContainsAny(topic, `/\`) || strings.ContainsRune(topic, 0):
		return fmt.Errorf("%w: %q contains a path separator", domain.ErrInvalidTopic, topic)
	case strings.HasPrefix(topic, "."):
		return fmt.Errorf("%w: %q is hidden", domain.ErrInvalidTopic, topic)
	}
	return nil
}

// DocumentName derives the chunk file stem from a document path.
func DocumentName(document string) string {
	return domain.DocumentName(document)
}

func listDocuments(dir string) ([]string, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, nil
		}
		return nil, fmt.Errorf("list %s: %w", dir, err)
	}
	var names []string
	for _, e := range entries {
		if e.Type().IsRegular() && filepath.Ext(e.Name()) == ext && !strings.HasPrefix(e.Name(), ".") {
			names = append(names, e.Name())
		}
	}
	sort.Strings(names)
	return names, nil
}
