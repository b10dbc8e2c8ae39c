package config

import (
	"context"
	"path/filepath"

	"github.com/fsnotify/fsnotify"
)

// Watch calls fn with a freshly loaded configuration each time the file at path is
// written or replaced, until ctx is done. The directory is watched rather than the
// file so that editors that save by renaming are followed.
func Watch(ctx context.Context, path string, fn func(*Config, error)) error {
	abs, err := filepath.Abs(path)
	if err != nil {
		return err
	}
	w, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	if err := w.Add(filepath.Dir(abs)); err != nil {
		w.Close()
		return err
	}
	go func() {
		defer w.Close()
		for {
			select {
			case <-ctx.Done():
				return
			case ev, ok := <-w.Events:
				if !ok {
					return
				}
				if filepath.Clean(ev.Name) != abs || ev.Op&(fsnotify.Write|fsnotify.Create) == 0 {
					continue
				}
				fn(Load(abs))
			case err, ok := <-w.Errors:
				if !ok {
					return
				}
				fn(nil, err)
			}
		}
	}()
	return nil
}
