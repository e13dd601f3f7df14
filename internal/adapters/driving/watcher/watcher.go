// Package watcher indexes documents dropped into a folder and removes them
// from the index when their files disappear.
package watcher

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/custodia-labs/sercha-rag/internal/core/domain"
	"github.com/custodia-labs/sercha-rag/internal/core/ports/driving"
	"github.com/custodia-labs/sercha-rag/internal/logger"
)

// DefaultDebounce is how long a file must stay quiet before it is indexed.
const DefaultDebounce = 500 * time.Millisecond

// Config configures a Watcher.
type Config struct {
	// Dir is the folder to watch. Subfolders are not watched.
	Dir string

	// Debounce delays indexing until writes settle.
	Debounce time.Duration

	// DeleteOnRemove removes documents whose files are deleted or renamed away.
	DeleteOnRemove bool

	// Author is recorded on every document indexed by the watcher.
	Author string
}

// changeType classifies a file system event.
type changeType int

const (
	changeIndex changeType = iota + 1
	changeRemove
)

// change is a file system event the watcher acts on.
type change struct {
	kind changeType
	path string
	name string
}

// Watcher feeds a folder into the index service.
type Watcher struct {
	cfg       Config
	indexer   driving.IndexService
	documents driving.DocumentService

	mu      sync.Mutex
	pending map[string]*time.Timer
	wg      sync.WaitGroup

	// onResult is called after every index or delete, for tests.
	onResult func(name string, err error)
}

// New creates a watcher. documents may be nil when DeleteOnRemove is false.
func New(indexer driving.IndexService, documents driving.DocumentService, cfg Config) *Watcher {
	if cfg.Debounce <= 0 {
		cfg.Debounce = DefaultDebounce
	}
	return &Watcher{
		cfg:       cfg,
		indexer:   indexer,
		documents: documents,
		pending:   make(map[string]*time.Timer),
	}
}

// Run indexes the supported files already in the folder, then watches it
// until ctx is cancelled.
func (w *Watcher) Run(ctx context.Context) error {
	info, err := os.Stat(w.cfg.Dir)
	if err != nil {
		return fmt.Errorf("watch %s: %w", w.cfg.Dir, err)
	}
	if !info.IsDir() {
		return fmt.Errorf("watch %s: %w: not a directory", w.cfg.Dir, domain.ErrInvalidInput)
	}

	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("creating watcher: %w", err)
	}
	defer fsw.Close()

	if err := fsw.Add(w.cfg.Dir); err != nil {
		return fmt.Errorf("watch %s: %w", w.cfg.Dir, err)
	}

	logger.Section("Watch " + w.cfg.Dir)
	if err := w.Scan(ctx); err != nil {
		return err
	}

	defer w.stop()
	for {
		select {
		case <-ctx.Done():
			return nil
		case event, ok := <-fsw.Events:
			if !ok {
				return nil
			}
			if c, ok := w.handleFsEvent(event); ok {
				w.schedule(ctx, c)
			}
		case err, ok := <-fsw.Errors:
			if !ok {
				return nil
			}
			logger.Warn("watcher: %v", err)
		}
	}
}

// Scan indexes every supported file currently in the folder.
func (w *Watcher) Scan(ctx context.Context) error {
	entries, err := os.ReadDir(w.cfg.Dir)
	if err != nil {
		return fmt.Errorf("scan %s: %w", w.cfg.Dir, err)
	}
	for _, e := range entries {
		if err := ctx.Err(); err != nil {
			return err
		}
		if e.IsDir() || !supported(e.Name()) {
			continue
		}
		path := filepath.Join(w.cfg.Dir, e.Name())
		w.apply(ctx, change{kind: changeIndex, path: path, name: e.Name()})
	}
	return nil
}

// handleFsEvent maps an fsnotify event to a change, skipping directories,
// hidden files, editor lock files and unsupported extensions.
func (w *Watcher) handleFsEvent(event fsnotify.Event) (change, bool) {
	name := filepath.Base(event.Name)
	if !supported(name) {
		return change{}, false
	}

	switch {
	case event.Has(fsnotify.Create), event.Has(fsnotify.Write):
		info, err := os.Stat(event.Name)
		if err != nil || info.IsDir() {
			return change{}, false
		}
		return change{kind: changeIndex, path: event.Name, name: name}, true
	case event.Has(fsnotify.Remove), event.Has(fsnotify.Rename):
		if !w.cfg.DeleteOnRemove {
			return change{}, false
		}
		return change{kind: changeRemove, path: event.Name, name: name}, true
	default:
		return change{}, false
	}
}

// schedule debounces changes per file; the last change wins.
func (w *Watcher) schedule(ctx context.Context, c change) {
	w.mu.Lock()
	defer w.mu.Unlock()

	if t, ok := w.pending[c.name]; ok && t.Stop() {
		w.wg.Done()
	}
	w.wg.Add(1)
	w.pending[c.name] = time.AfterFunc(w.cfg.Debounce, func() {
		defer w.wg.Done()
		w.mu.Lock()
		delete(w.pending, c.name)
		w.mu.Unlock()
		w.apply(ctx, c)
	})
}

// stop cancels pending timers and waits for running work.
func (w *Watcher) stop() {
	w.mu.Lock()
	for name, t := range w.pending {
		if t.Stop() {
			w.wg.Done()
		}
		delete(w.pending, name)
	}
	w.mu.Unlock()
	w.wg.Wait()
}

func (w *Watcher) apply(ctx context.Context, c change) {
	if ctx.Err() != nil {
		return
	}

	var err error
	switch c.kind {
	case changeIndex:
		err = w.index(ctx, c)
	case changeRemove:
		err = w.remove(ctx, c)
	}
	if w.onResult != nil {
		w.onResult(c.name, err)
	}
}

func (w *Watcher) index(ctx context.Context, c change) error {
	content, err := os.ReadFile(c.path)
	if err != nil {
		logger.Warn("watcher: read %s: %v", c.path, err)
		return err
	}

	doc, err := w.indexer.Index(ctx, driving.IndexRequest{
		Name:    c.name,
		Content: content,
		Author:  w.cfg.Author,
		Comment: "indexed from " + w.cfg.Dir,
	})
	if err != nil {
		logger.Error("watcher: index %s: %v", c.name, err)
		return err
	}
	logger.Info("watcher: indexed %s (%d chunks)", doc.Name, doc.ChunkCount)
	return nil
}

func (w *Watcher) remove(ctx context.Context, c change) error {
	if w.documents == nil {
		return nil
	}
	err := w.documents.Delete(ctx, c.name)
	if errors.Is(err, domain.ErrNotFound) {
		return nil
	}
	if err != nil {
		logger.Error("watcher: delete %s: %v", c.name, err)
		return err
	}
	logger.Info("watcher: removed %s", c.name)
	return nil
}

func supported(name string) bool {
	if strings.HasPrefix(name, ".") || strings.HasPrefix(name, "~$") {
		return false
	}
	_, ok := domain.DetectDocumentType(name)
	return ok
}
