// Package watcher surfaces out-of-band filesystem changes. The dataset root
// is shared with external tools (and projects can be removed by hand), so any
// change under it that did not come through the command channel still has to
// invalidate connected clients.
package watcher

import (
	"io/fs"
	"log"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
)

const (
	debounceDelay = 250 * time.Millisecond

	// How long after a Suppress call events for a project are treated as
	// the server's own writes rather than external changes.
	suppressWindow = 2 * debounceDelay
)

// The training job writes the model here; those writes are not dataset
// changes clients need to re-fetch for.
const modelDirName = "model"

// Watcher watches the dataset root recursively and calls notify with the
// affected project, debounced per project so a burst of writes produces one
// invalidation.
type Watcher struct {
	root   string
	notify func(project string)
	fsw    *fsnotify.Watcher

	mu         sync.Mutex
	timers     map[string]*time.Timer
	suppressed map[string]time.Time
	closed     bool
}

func New(root string, notify func(project string)) (*Watcher, error) {
	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}

	w := &Watcher{
		root:       root,
		notify:     notify,
		fsw:        fsw,
		timers:     make(map[string]*time.Timer),
		suppressed: make(map[string]time.Time),
	}

	if err := w.addRecursive(root); err != nil {
		fsw.Close()
		return nil, err
	}
	return w, nil
}

// Start consumes filesystem events until Close is called.
func (w *Watcher) Start() {
	for {
		select {
		case event, ok := <-w.fsw.Events:
			if !ok {
				return
			}
			w.handle(event)
		case err, ok := <-w.fsw.Errors:
			if !ok {
				return
			}
			log.Printf("[WATCH] Watcher error: %v", err)
		}
	}
}

func (w *Watcher) Close() error {
	w.mu.Lock()
	w.closed = true
	for _, timer := range w.timers {
		timer.Stop()
	}
	w.mu.Unlock()
	return w.fsw.Close()
}

func (w *Watcher) handle(event fsnotify.Event) {
	if event.Op&(fsnotify.Create|fsnotify.Remove|fsnotify.Rename|fsnotify.Write) == 0 {
		return
	}

	// Directories created out of band (new labels, new projects) join the
	// watch as they appear.
	if event.Op&fsnotify.Create != 0 {
		if info, err := os.Stat(event.Name); err == nil && info.IsDir() {
			w.addRecursive(event.Name)
		}
	}

	project, sub := w.split(event.Name)
	if project == "" {
		return
	}
	if sub == modelDirName || strings.HasPrefix(sub, modelDirName+"/") {
		return
	}
	if w.recentlySuppressed(project) {
		return
	}
	w.debounce(project)
}

// Suppress marks a project as just mutated through the command channel.
// The filesystem events caused by that mutation are dropped instead of being
// re-broadcast as an external change, so a mutation batch still produces
// exactly one invalidation in the assembled server.
func (w *Watcher) Suppress(project string) {
	w.mu.Lock()
	w.suppressed[project] = time.Now()
	w.mu.Unlock()
}

func (w *Watcher) recentlySuppressed(project string) bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	marked, ok := w.suppressed[project]
	if !ok {
		return false
	}
	if time.Since(marked) > suppressWindow {
		delete(w.suppressed, project)
		return false
	}
	return true
}

func (w *Watcher) debounce(project string) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.closed {
		return
	}
	if timer, ok := w.timers[project]; ok {
		timer.Reset(debounceDelay)
		return
	}
	w.timers[project] = time.AfterFunc(debounceDelay, func() {
		w.mu.Lock()
		delete(w.timers, project)
		closed := w.closed
		w.mu.Unlock()
		if !closed {
			log.Printf("[WATCH] External change in project %s", project)
			w.notify(project)
		}
	})
}

// split maps an absolute event path to the project segment under root and
// the remainder below the project.
func (w *Watcher) split(path string) (project, sub string) {
	rel, err := filepath.Rel(w.root, path)
	if err != nil || rel == "." || strings.HasPrefix(rel, "..") {
		return "", ""
	}
	parts := strings.SplitN(filepath.ToSlash(rel), "/", 2)
	if len(parts) == 2 {
		return parts[0], parts[1]
	}
	return parts[0], ""
}

func (w *Watcher) addRecursive(root string) error {
	return filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			// The path can vanish between the event and the walk.
			return nil
		}
		if d.IsDir() {
			if err := w.fsw.Add(path); err != nil {
				log.Printf("[WATCH] Failed to watch %s: %v", path, err)
			}
		}
		return nil
	})
}
