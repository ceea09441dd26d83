package store

import (
	"context"
	"errors"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/rs/zerolog/log"

	"github.com/dokzlo13/monitord/internal/display"
)

// Watcher reloads schedule files edited on disk into the registry. Reloaded
// schedules are picked up by the next scheduler tick.
type Watcher struct {
	files    *Files
	registry *display.Registry
	debounce time.Duration

	mu      sync.Mutex
	pending map[string]*time.Timer
	wg      sync.WaitGroup
}

// NewWatcher creates a watcher over the files' directory.
func NewWatcher(files *Files, registry *display.Registry, debounce time.Duration) *Watcher {
	if debounce <= 0 {
		debounce = 500 * time.Millisecond
	}
	return &Watcher{
		files:    files,
		registry: registry,
		debounce: debounce,
		pending:  make(map[string]*time.Timer),
	}
}

// Run watches until ctx is cancelled.
func (w *Watcher) Run(ctx context.Context) error {
	fw, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	defer fw.Close()

	if err := fw.Add(w.files.Dir()); err != nil {
		return err
	}

	log.Info().Str("dir", w.files.Dir()).Msg("Watching schedule files")

	for {
		select {
		case <-ctx.Done():
			w.stopPending()
			return nil

		case event, ok := <-fw.Events:
			if !ok {
				return nil
			}
			if !isScheduleFile(event.Name) {
				continue
			}
			if event.Has(fsnotify.Write) || event.Has(fsnotify.Create) || event.Has(fsnotify.Rename) {
				w.schedule(event.Name)
			}

		case err, ok := <-fw.Errors:
			if !ok {
				return nil
			}
			log.Warn().Err(err).Msg("Schedule watcher error")
		}
	}
}

// schedule debounces reloads per file, editors often write in several steps.
func (w *Watcher) schedule(path string) {
	w.mu.Lock()
	defer w.mu.Unlock()

	if t, ok := w.pending[path]; ok && t.Stop() {
		w.wg.Done()
	}

	w.wg.Add(1)
	var t *time.Timer
	t = time.AfterFunc(w.debounce, func() {
		defer w.wg.Done()

		w.mu.Lock()
		if w.pending[path] == t {
			delete(w.pending, path)
		}
		w.mu.Unlock()

		w.Reload(path)
	})
	w.pending[path] = t
}

func (w *Watcher) stopPending() {
	w.mu.Lock()
	for path, t := range w.pending {
		if t.Stop() {
			w.wg.Done()
		}
		delete(w.pending, path)
	}
	w.mu.Unlock()

	w.wg.Wait()
}

// Reload loads one file into the registry. Files of displays that are not
// currently attached are ignored.
func (w *Watcher) Reload(path string) bool {
	name := filepath.Base(path)

	var longID string
	for _, d := range w.registry.Displays() {
		if strings.EqualFold(d.Info.ConfigFileName(), name) {
			longID = d.Info.LongID()
			break
		}
	}
	if longID == "" {
		log.Debug().Str("path", path).Msg("Schedule file for detached display, ignoring")
		return false
	}

	// The registry lock also covers saves made by edits, so the file read
	// here is never older than the registry state it replaces.
	err := w.registry.Refresh(longID, w.files.Load)
	if errors.Is(err, ErrNotFound) {
		return false
	}
	if err != nil {
		log.Warn().Err(err).Str("path", path).Msg("Ignoring invalid schedule file")
		return false
	}

	log.Info().Str("display", longID).Msg("Reloaded display schedule")
	return true
}

func isScheduleFile(path string) bool {
	return strings.EqualFold(filepath.Ext(path), ".json")
}
