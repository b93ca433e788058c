// Copyright (C) 2025 Blueprint Labs (engineering@blueprint-sim.dev)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package catalog

import (
	"context"
	"log/slog"
	"path/filepath"
	"strings"
	"time"

	"github.com/fsnotify/fsnotify"
)

// Watcher invalidates the Loader cache when catalogue files change on
// disk, so new sessions pick up edited stages without a restart.
// Running sessions keep the catalogue they started with.
//
// Events are debounced: editors frequently emit several writes per
// save, and each burst should invalidate once.
type Watcher struct {
	loader   *Loader
	watcher  *fsnotify.Watcher
	debounce time.Duration
}

// NewWatcher creates a watcher over the loader's catalogue directory.
func NewWatcher(loader *Loader) (*Watcher, error) {
	fw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}
	if err := fw.Add(loader.dir); err != nil {
		fw.Close()
		return nil, err
	}
	return &Watcher{
		loader:   loader,
		watcher:  fw,
		debounce: 200 * time.Millisecond,
	}, nil
}

// Run processes file events until the context is cancelled.
func (w *Watcher) Run(ctx context.Context) error {
	defer w.watcher.Close()

	pending := map[string]bool{}
	var timer *time.Timer
	var fire <-chan time.Time

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()

		case ev, ok := <-w.watcher.Events:
			if !ok {
				return nil
			}
			if !strings.HasSuffix(ev.Name, ".yaml") && !strings.HasSuffix(ev.Name, ".yml") {
				continue
			}
			if ev.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Remove|fsnotify.Rename) == 0 {
				continue
			}
			pending[ev.Name] = true
			if timer == nil {
				timer = time.NewTimer(w.debounce)
			} else {
				timer.Reset(w.debounce)
			}
			fire = timer.C

		case <-fire:
			for path := range pending {
				stageID := strings.TrimSuffix(strings.TrimSuffix(filepath.Base(path), ".yaml"), ".yml")
				if stageID == "components" {
					// Component reference data feeds the estimator;
					// drop every cached stage to be safe.
					w.loader.Invalidate("")
				} else {
					w.loader.Invalidate(stageID)
				}
				slog.Info("catalogue file changed, cache invalidated", "path", path, "stage", stageID)
			}
			pending = map[string]bool{}
			fire = nil

		case err, ok := <-w.watcher.Errors:
			if !ok {
				return nil
			}
			slog.Warn("catalogue watcher error", "error", err)
		}
	}
}
