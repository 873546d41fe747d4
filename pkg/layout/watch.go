package layout

import (
	"context"
	"path/filepath"
	"time"

	"github.com/fsnotify/fsnotify"

	apperrors "github.com/odvcencio/panel/pkg/errors"
)

const defaultWatchDebounce = 150 * time.Millisecond

// ReloadFunc receives the freshly loaded roots of the watched page.
type ReloadFunc func(roots []Description)

// ErrorFunc receives load or watch failures. The watcher keeps running.
type ErrorFunc func(err error)

// Watcher reloads a layout page whenever its file changes on disk.
type Watcher struct {
	path     string
	page     string
	debounce time.Duration
	onReload ReloadFunc
	onError  ErrorFunc
}

// NewWatcher creates a watcher for one page of the layout file at path.
func NewWatcher(path, page string, onReload ReloadFunc, onError ErrorFunc) *Watcher {
	if onError == nil {
		onError = func(error) {}
	}
	return &Watcher{
		path:     path,
		page:     page,
		debounce: defaultWatchDebounce,
		onReload: onReload,
		onError:  onError,
	}
}

// SetDebounce changes how long the watcher waits for writes to settle.
func (w *Watcher) SetDebounce(d time.Duration) {
	if d > 0 {
		w.debounce = d
	}
}

// Run blocks until ctx is done. The parent directory is watched rather than
// the file so that editors which replace the file on save are followed.
func (w *Watcher) Run(ctx context.Context) error {
	fw, err := fsnotify.NewWatcher()
	if err != nil {
		return apperrors.Wrap(err, apperrors.ErrCodeLayoutLoad, "create layout watcher")
	}
	defer fw.Close()

	abs, err := filepath.Abs(w.path)
	if err != nil {
		return apperrors.Wrap(err, apperrors.ErrCodeLayoutLoad, "resolve layout path")
	}
	if err := fw.Add(filepath.Dir(abs)); err != nil {
		return apperrors.Wrap(err, apperrors.ErrCodeLayoutLoad, "watch layout directory").
			WithContext("path", abs)
	}

	var (
		timer   *time.Timer
		pending <-chan time.Time
	)
	stopTimer := func() {
		if timer != nil {
			timer.Stop()
		}
	}
	defer stopTimer()

	for {
		select {
		case <-ctx.Done():
			return nil
		case event, ok := <-fw.Events:
			if !ok {
				return nil
			}
			if filepath.Clean(event.Name) != abs {
				continue
			}
			if !event.Has(fsnotify.Write) && !event.Has(fsnotify.Create) && !event.Has(fsnotify.Rename) {
				continue
			}
			stopTimer()
			timer = time.NewTimer(w.debounce)
			pending = timer.C
		case err, ok := <-fw.Errors:
			if !ok {
				return nil
			}
			w.onError(apperrors.Wrap(err, apperrors.ErrCodeLayoutLoad, "layout watcher"))
		case <-pending:
			pending = nil
			roots, err := LoadPage(w.path, w.page)
			if err != nil {
				w.onError(err)
				continue
			}
			w.onReload(roots)
		}
	}
}
