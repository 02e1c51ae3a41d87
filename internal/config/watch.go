package config

import (
	"context"
	"fmt"
	"path/filepath"

	"github.com/fsnotify/fsnotify"
)

// Watch reloads the config file at path each time it is written or
// replaced, until ctx is done.
//
// Every reload that parses and validates is passed to onChange. A reload
// that fails is passed to onError and the previous config stays in effect.
// The parent directory is watched rather than the file so that editors which
// save by rename are seen.
//
// Watch returns once the watcher is running. The error is non-nil only when
// watching could not start.
func Watch(ctx context.Context, path string, onChange func(*Config), onError func(error)) error {
	abs, err := filepath.Abs(path)
	if err != nil {
		return fmt.Errorf("watch config: %w", err)
	}

	w, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("watch config: %w", err)
	}
	if err := w.Add(filepath.Dir(abs)); err != nil {
		w.Close()
		return fmt.Errorf("watch config %s: %w", abs, err)
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
				if filepath.Clean(ev.Name) != abs {
					continue
				}
				if !ev.Has(fsnotify.Write) && !ev.Has(fsnotify.Create) {
					continue
				}
				cfg, err := Load(abs)
				if err != nil {
					if onError != nil {
						onError(err)
					}
					continue
				}
				onChange(cfg)
			case err, ok := <-w.Errors:
				if !ok {
					return
				}
				if onError != nil {
					onError(fmt.Errorf("watch config %s: %w", abs, err))
				}
			}
		}
	}()

	return nil
}
