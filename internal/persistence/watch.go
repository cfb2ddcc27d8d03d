package persistence

import (
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/wrangler-run/wrangler/pkg/logging"
)

const subsystem = "Persistence"

// WatchEnabled reports whether live reload of the definitions file is
// turned on via WRANGLER_WATCH_DEFINITIONS.
func WatchEnabled() bool {
	v := strings.ToLower(strings.TrimSpace(os.Getenv("WRANGLER_WATCH_DEFINITIONS")))
	return v == "true" || v == "1" || v == "yes"
}

// WatchDefinitions watches the definitions file for writes and invokes
// onChange with the freshly parsed document each time. It runs until
// stop is closed. Best-effort: watcher setup failures are logged, not
// fatal, since live reload is an optional convenience.
func WatchDefinitions(path string, onChange func(*Document), stop <-chan struct{}) {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		logging.Warn(subsystem, "definitions watcher unavailable: %v", err)
		return
	}
	defer watcher.Close()

	dir := filepath.Dir(path)
	if err := watcher.Add(dir); err != nil {
		logging.Warn(subsystem, "could not watch %q: %v", dir, err)
		return
	}

	var debounce *time.Timer
	reload := func() {
		doc, err := loadDocument(path)
		if err != nil {
			logging.Warn(subsystem, "reload of %q failed: %v", path, err)
			return
		}
		logging.Info(subsystem, "definitions file reloaded (%d processes)", len(doc.Processes))
		onChange(doc)
	}

	for {
		select {
		case <-stop:
			if debounce != nil {
				debounce.Stop()
			}
			return
		case ev, ok := <-watcher.Events:
			if !ok {
				return
			}
			if filepath.Clean(ev.Name) != filepath.Clean(path) {
				continue
			}
			if ev.Op&(fsnotify.Write|fsnotify.Create) == 0 {
				continue
			}
			if debounce != nil {
				debounce.Stop()
			}
			debounce = time.AfterFunc(150*time.Millisecond, reload)
		case err, ok := <-watcher.Errors:
			if !ok {
				return
			}
			logging.Warn(subsystem, "definitions watcher error: %v", err)
		}
	}
}
