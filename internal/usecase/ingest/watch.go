package ingest

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"time"

	"github.com/fsnotify/fsnotify"
	"go.uber.org/zap"

	"github.com/kailas-cloud/flatrag/internal/logger"
)

// DefaultDebounce coalesces bursts of filesystem events for one file.
const DefaultDebounce = 300 * time.Millisecond

// Watch keeps topic in sync with the readable documents in dir until ctx is done.
// Created or modified files are re-ingested; removed or renamed files are forgotten.
func (s *Service) Watch(ctx context.Context, topic, dir string, debounce time.Duration) error {
	if debounce <= 0 {
		debounce = DefaultDebounce
	}
	ctx = logger.WithTopic(ctx, topic)
	log := logger.FromContext(ctx)

	w, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("create watcher: %w", err)
	}
	defer func() { _ = w.Close() }()

	if err := w.Add(dir); err != nil {
		return fmt.Errorf("watch %s: %w", dir, err)
	}
	log.Info("Watching documents", zap.String("dir", dir))

	return s.loop(ctx, topic, w.Events, w.Errors, debounce)
}

// loop debounces events per file and syncs each file once its events settle.
// It returns when ctx is done or either channel closes.
func (s *Service) loop(
	ctx context.Context, topic string, events <-chan fsnotify.Event, errs <-chan error, debounce time.Duration,
) error {
	log := logger.FromContext(ctx)

	pending := make(map[string]*time.Timer)
	due := make(chan string)
	// done releases timers that fire after Watch has returned.
	done := make(chan struct{})
	defer func() {
		close(done)
		for _, t := range pending {
			t.Stop()
		}
	}()

	for {
		select {
		case <-ctx.Done():
			return nil

		case ev, ok := <-events:
			if !ok {
				return nil
			}
			if ev.Op == fsnotify.Chmod || !s.docs.CanRead(ev.Name) {
				continue
			}
			if t, ok := pending[ev.Name]; ok {
				t.Stop()
			}
			name := ev.Name
			pending[name] = time.AfterFunc(debounce, func() { deliver(due, done, name) })

		case path := <-due:
			delete(pending, path)
			s.sync(ctx, topic, path)

		case err, ok := <-errs:
			if !ok {
				return nil
			}
			log.Warn("Watcher error", zap.Error(err))
		}
	}
}

// deliver hands path to the loop, or gives up once the loop has returned.
func deliver(due chan<- string, done <-chan struct{}, path string) {
	select {
	case due <- path:
	case <-done:
	}
}

// sync reconciles one path: ingest it if it still exists, otherwise drop its chunks.
func (s *Service) sync(ctx context.Context, topic, path string) {
	log := logger.FromContext(ctx)

	_, err := os.Stat(path)
	switch {
	case errors.Is(err, fs.ErrNotExist):
		if err := s.Forget(ctx, topic, path); err != nil {
			log.Error("Failed to forget document", zap.String("path", path), zap.Error(err))
		}
	case err != nil:
		log.Error("Failed to stat document", zap.String("path", path), zap.Error(err))
	default:
		if _, err := s.Ingest(ctx, topic, path); err != nil {
			log.Error("Failed to re-ingest document", zap.String("path", path), zap.Error(err))
		}
	}
}
