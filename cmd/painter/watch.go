package main

import (
	"log/slog"
	"path/filepath"

	"github.com/fsnotify/fsnotify"
)

// watcher reports writes to a set of files. Directories are watched so
// that editors replacing a file by rename are seen too.
type watcher struct {
	w       *fsnotify.Watcher
	files   map[string]bool
	changed chan string
	done    chan struct{}
}

func newWatcher(paths ...string) (*watcher, error) {
	fw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}
	w := &watcher{
		w:       fw,
		files:   make(map[string]bool),
		changed: make(chan string, 1),
		done:    make(chan struct{}),
	}
	dirs := make(map[string]bool)
	for _, p := range paths {
		if p == "" {
			continue
		}
		abs, err := filepath.Abs(p)
		if err != nil {
			fw.Close()
			return nil, err
		}
		w.files[abs] = true
		dirs[filepath.Dir(abs)] = true
	}
	for d := range dirs {
		if err := fw.Add(d); err != nil {
			fw.Close()
			return nil, err
		}
	}
	go w.loop()
	return w, nil
}

func (w *watcher) loop() {
	defer close(w.done)
	for {
		select {
		case ev, ok := <-w.w.Events:
			if !ok {
				return
			}
			if !ev.Has(fsnotify.Write) && !ev.Has(fsnotify.Create) && !ev.Has(fsnotify.Rename) {
				continue
			}
			if !w.files[filepath.Clean(ev.Name)] {
				continue
			}
			select {
			case w.changed <- ev.Name:
			default:
			}
		case err, ok := <-w.w.Errors:
			if !ok {
				return
			}
			slog.Warn("watch error", "err", err)
		}
	}
}

// Changed returns the name of a changed file, if any changed since the
// last call. It never blocks.
func (w *watcher) Changed() (string, bool) {
	select {
	case name := <-w.changed:
		return name, true
	default:
		return "", false
	}
}

func (w *watcher) Close() error {
	err := w.w.Close()
	<-w.done
	return err
}
