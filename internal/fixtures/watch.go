package fixtures

import (
	"context"
	"path/filepath"

	"github.com/fsnotify/fsnotify"
	"github.com/google/uuid"

	"github.com/ygrebnov/medley"
)

// DirWatcher is a notify-change provider backed by a real directory watch.
// Each content-changed batch carries a freshly generated item id (in the
// item's Fields under "id"), standing in for whatever identifier a real
// provider would mint for the changed entry.
type DirWatcher struct {
	WatcherID string
	Dir       string
}

func (w *DirWatcher) ID() string                     { return w.WatcherID }
func (w *DirWatcher) Name() string                   { return w.WatcherID }
func (w *DirWatcher) Rank() int                      { return 0 }
func (w *DirWatcher) Capabilities() medley.Capability { return medley.CapNotifyChange }

// NotifyChange starts an fsnotify watch on Dir and forwards every event as
// a ChangeEvent until ctx is cancelled, closing the underlying watcher on
// exit.
func (w *DirWatcher) NotifyChange(ctx context.Context, req *medley.NotifyChangeRequest) {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return
	}
	if err := watcher.Add(w.Dir); err != nil {
		watcher.Close()
		return
	}

	go func() {
		defer watcher.Close()
		for {
			select {
			case <-ctx.Done():
				return
			case ev, ok := <-watcher.Events:
				if !ok {
					return
				}
				req.Callback(medley.ChangeEvent{
					Items: []any{&Item{Title: filepath.Base(ev.Name), Fields: map[string]string{"id": uuid.NewString()}}},
					Kind:  kindFor(ev.Op),
				})
			case <-watcher.Errors:
				// best-effort: a watch error doesn't end the subscription,
				// the caller cancels via ctx when it's done.
			}
		}
	}()
}

func kindFor(op fsnotify.Op) medley.ChangeKind {
	switch {
	case op&fsnotify.Create != 0:
		return medley.ChangeKindAdded
	case op&fsnotify.Remove != 0 || op&fsnotify.Rename != 0:
		return medley.ChangeKindRemoved
	default:
		return medley.ChangeKindChanged
	}
}
