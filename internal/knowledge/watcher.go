package knowledge

import (
	"context"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/fsnotify/fsnotify"

	"increm-coach/internal/model"
)

// IngestFunc stores one document, replacing any previous version of its title.
type IngestFunc func(ctx context.Context, doc model.KnowledgeDocument) error

// Watcher ingests text documents dropped into a directory. The file name
// without extension becomes the title.
type Watcher struct {
	dir      string
	category string
	ingest   IngestFunc
	debounce time.Duration
	watcher  *fsnotify.Watcher
}

var watchedExtensions = map[string]bool{".txt": true, ".md": true}

func NewWatcher(dir, category string, ingest IngestFunc) (*Watcher, error) {
	info, err := os.Stat(dir)
	if err != nil {
		return nil, fmt.Errorf("stat watch dir failed: %w", err)
	}
	if !info.IsDir() {
		return nil, fmt.Errorf("watch path %s is not a directory", dir)
	}

	w, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("create fsnotify watcher failed: %w", err)
	}
	if err := w.Add(dir); err != nil {
		_ = w.Close()
		return nil, fmt.Errorf("watch dir %s failed: %w", dir, err)
	}
	return &Watcher{
		dir:      dir,
		category: category,
		ingest:   ingest,
		debounce: 500 * time.Millisecond,
		watcher:  w,
	}, nil
}

// Run blocks until ctx is done. Bursts of write events on one file collapse
// into a single ingestion once the file has been quiet for the debounce window.
func (w *Watcher) Run(ctx context.Context) {
	defer w.watcher.Close()

	d := newDebouncer(ctx, w.debounce)
	defer d.stop()

	for {
		select {
		case <-ctx.Done():
			return
		case event, ok := <-w.watcher.Events:
			if !ok {
				return
			}
			if !watchedExtensions[strings.ToLower(filepath.Ext(event.Name))] {
				continue
			}
			if !event.Has(fsnotify.Create) && !event.Has(fsnotify.Write) {
				continue
			}
			d.touch(event.Name)
		case path := <-d.fire:
			d.done(path)
			if err := w.ingestFile(ctx, path); err != nil {
				log.Printf("knowledge watcher ingest %s failed: %v", path, err)
			}
		case err, ok := <-w.watcher.Errors:
			if !ok {
				return
			}
			log.Printf("knowledge watcher error: %v", err)
		}
	}
}

// debouncer delivers a path on fire once it has gone quiet. It is owned by
// a single goroutine; only the timer callbacks run elsewhere.
type debouncer struct {
	ctx     context.Context
	window  time.Duration
	pending map[string]*time.Timer
	fire    chan string
}

func newDebouncer(ctx context.Context, window time.Duration) *debouncer {
	return &debouncer{
		ctx:     ctx,
		window:  window,
		pending: make(map[string]*time.Timer),
		fire:    make(chan string, 16),
	}
}

// touch restarts the quiet window for path. A timer that already fired has
// a delivery in flight, which reads the file after this event, so it is
// left alone instead of being re-armed.
func (d *debouncer) touch(path string) {
	if t, ok := d.pending[path]; ok {
		if t.Stop() {
			t.Reset(d.window)
		}
		return
	}
	d.pending[path] = time.AfterFunc(d.window, func() {
		select {
		case d.fire <- path:
		case <-d.ctx.Done():
		}
	})
}

func (d *debouncer) done(path string) {
	delete(d.pending, path)
}

func (d *debouncer) stop() {
	for _, t := range d.pending {
		t.Stop()
	}
}

func (w *Watcher) ingestFile(ctx context.Context, path string) error {
	raw, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read file failed: %w", err)
	}
	content := strings.TrimSpace(string(raw))
	if content == "" {
		return nil
	}
	doc := model.KnowledgeDocument{
		Title:    TitleFromPath(path),
		Category: w.category,
		Content:  content,
	}
	if err := w.ingest(ctx, doc); err != nil {
		return err
	}
	log.Printf("knowledge watcher ingested %q", doc.Title)
	return nil
}

// TitleFromPath turns "recovery_and-sleep.md" into "recovery and sleep".
func TitleFromPath(path string) string {
	name := strings.TrimSuffix(filepath.Base(path), filepath.Ext(path))
	name = strings.NewReplacer("_", " ", "-", " ").Replace(name)
	return strings.Join(strings.Fields(name), " ")
}
