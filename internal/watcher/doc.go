// Package watcher follows the pages directory and re-syncs a page when
// its source file changes.
//
// Changes are picked up with fsnotify, falling back to polling where
// fsnotify cannot start, and debounced so an editor's burst of writes
// produces one sync:
//
//	w, err := watcher.NewPageWatcher(pagesDir, manager, watcher.Options{Debounce: 500 * time.Millisecond})
//	if err != nil {
//	    return err
//	}
//	go func() { _ = w.Run(ctx) }()
package watcher
