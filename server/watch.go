package server

import (
	"context"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"time"

	"github.com/fsnotify/fsnotify"
)

// Debounce is how long Watch waits after the last change before reloading.
// Editors often save with several writes or a rename.
var Debounce = 100 * time.Millisecond

const reloadOps = fsnotify.Write | fsnotify.Create | fsnotify.Remove | fsnotify.Rename

// watcher tracks which directories are watched. While a dictionary is loaded
// only the root (for .ngxkit.yaml) and the dictionary's directory are
// watched; until then every directory that is not excluded is, so that a
// dictionary created later is found.
type watcher struct {
	s    *Server
	w    *fsnotify.Watcher
	root string
	dirs map[string]bool
}

func (wt *watcher) add(dir string) {
	if wt.dirs[dir] {
		return
	}
	if err := wt.w.Add(dir); err != nil {
		wt.s.log.Errorf("watching %s: %s", dir, err)
		return
	}
	wt.dirs[dir] = true
}

// addTree watches dir and the directories below it and reports whether it
// already holds a candidate dictionary.
func (wt *watcher) addTree(dir string) (found bool) {
	cfg := wt.s.Config()
	_ = filepath.WalkDir(dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return nil
		}
		if d.IsDir() {
			if path != wt.root && cfg.Excluded(path) {
				return filepath.SkipDir
			}
			wt.add(path)
			return nil
		}
		if cfg.IsLocale(path) {
			found = true
		}
		return nil
	})
	return found
}

// follow narrows the watch set to the root and the loaded dictionary's
// directory, or widens it to the whole tree while none is loaded. It reports
// whether a candidate dictionary turned up during the walk.
func (wt *watcher) follow() bool {
	source := wt.s.Source()
	if source == "" {
		return wt.addTree(wt.root)
	}

	keep := map[string]bool{wt.root: true, filepath.Dir(source): true}
	for dir := range wt.dirs {
		if !keep[dir] {
			_ = wt.w.Remove(dir)
			delete(wt.dirs, dir)
		}
	}
	for dir := range keep {
		wt.add(dir)
	}
	return false
}

// Watch reloads the dictionary whenever its file or .ngxkit.yaml changes,
// until ctx is cancelled. A failed reload keeps the previous snapshot and is
// reported to the client.
func (s *Server) Watch(ctx context.Context) error {
	w, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("creating watcher: %w", err)
	}
	defer w.Close()

	wt := &watcher{s: s, w: w, root: filepath.Clean(s.Config().Root()), dirs: make(map[string]bool)}
	if err := w.Add(wt.root); err != nil {
		return fmt.Errorf("watching %s: %w", wt.root, err)
	}
	wt.dirs[wt.root] = true

	var (
		pending       <-chan time.Time
		configChanged bool
	)
	if wt.follow() {
		pending = time.After(Debounce)
	}

	for {
		select {
		case <-ctx.Done():
			return nil

		case <-s.reloaded:
			wt.follow()

		case ev, ok := <-w.Events:
			if !ok {
				return nil
			}
			if !ev.Has(reloadOps) {
				continue
			}
			name := filepath.Clean(ev.Name)
			source := s.Source()
			switch {
			case name == filepath.Clean(s.Config().Path()):
				configChanged = true
			case source != "" && name == filepath.Clean(source):
			case source == "" && s.Config().IsLocale(name):
			case source == "" && ev.Has(fsnotify.Create) && isDir(name):
				if !wt.addTree(name) {
					continue
				}
			default:
				continue
			}
			s.log.Debugf("%s: %s", ev.Op, ev.Name)
			pending = time.After(Debounce)

		case <-pending:
			pending = nil
			if configChanged {
				configChanged = false
				s.reloadAndReport(nil, s.ReloadConfig)
			} else {
				s.reloadAndReport(nil, s.Reload)
			}

		case err, ok := <-w.Errors:
			if !ok {
				return nil
			}
			s.log.Errorf("watcher: %s", err)
		}
	}
}

func isDir(path string) bool {
	info, err := os.Stat(path)
	return err == nil && info.IsDir()
}
