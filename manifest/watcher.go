package manifest

import (
	"context"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/scripthost-io/scripthost/errors"
)

// DefaultDebounce collapses the bursts of write events editors and
// atomic-save tools produce into a single reload.
const DefaultDebounce = 500 * time.Millisecond

// Watcher reloads a manifest file when it changes. Each reload, or
// reload failure, is delivered to the onChange callback on the
// watcher goroutine; no callback runs after Close returns.
type Watcher struct {
	path     string
	debounce time.Duration
	onChange func(*Manifest, error)

	fsWatcher *fsnotify.Watcher
	ctx       context.Context
	cancel    context.CancelFunc
	wg        sync.WaitGroup
}

// NewWatcher creates a watcher for the manifest at path. A
// nonpositive debounce uses DefaultDebounce. The callback receives
// the reloaded manifest, or a nil manifest and the load or watch
// error.
func NewWatcher(path string, debounce time.Duration, onChange func(*Manifest, error)) (*Watcher, error) {
	if path == "" {
		return nil, errors.InvalidInput(errors.PhaseManifest, "watch path cannot be empty")
	}
	if onChange == nil {
		return nil, errors.InvalidInput(errors.PhaseManifest, "onChange callback cannot be nil")
	}
	if debounce <= 0 {
		debounce = DefaultDebounce
	}

	fsWatcher, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, errors.Wrap(errors.PhaseManifest, errors.KindRegistration, err, "create file watcher")
	}

	ctx, cancel := context.WithCancel(context.Background())
	return &Watcher{
		path:      path,
		debounce:  debounce,
		onChange:  onChange,
		fsWatcher: fsWatcher,
		ctx:       ctx,
		cancel:    cancel,
	}, nil
}

// Start begins watching. The manifest file must already exist.
func (w *Watcher) Start() error {
	if err := w.fsWatcher.Add(w.path); err != nil {
		return errors.Wrap(errors.PhaseManifest, errors.KindRegistration, err, "watch "+w.path)
	}

	w.wg.Add(1)
	go w.watchLoop()
	return nil
}

// Close stops watching and waits for the watcher goroutine.
func (w *Watcher) Close() error {
	w.cancel()
	err := w.fsWatcher.Close()
	w.wg.Wait()
	return err
}

func (w *Watcher) watchLoop() {
	defer w.wg.Done()

	// The debounce timer lives on this goroutine so callbacks cannot
	// outlive Close.
	var (
		timer *time.Timer
		fire  <-chan time.Time
		reAdd bool
	)
	defer func() {
		if timer != nil {
			timer.Stop()
		}
	}()

	for {
		select {
		case <-w.ctx.Done():
			return

		case event, ok := <-w.fsWatcher.Events:
			if !ok {
				return
			}
			if event.Name != w.path {
				continue
			}
			if event.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Remove|fsnotify.Rename) == 0 {
				continue
			}
			// Atomic saves replace the file, which arrives as a
			// remove or rename; the path must be re-added before the
			// next reload.
			if event.Op&(fsnotify.Remove|fsnotify.Rename) != 0 {
				reAdd = true
			}
			if timer == nil {
				timer = time.NewTimer(w.debounce)
			} else {
				if !timer.Stop() {
					select {
					case <-timer.C:
					default:
					}
				}
				timer.Reset(w.debounce)
			}
			fire = timer.C

		case <-fire:
			timer = nil
			fire = nil
			if reAdd {
				reAdd = false
				if err := w.fsWatcher.Add(w.path); err != nil {
					w.onChange(nil, errors.Wrap(errors.PhaseManifest, errors.KindRegistration, err, "re-watch "+w.path))
					continue
				}
			}
			w.onChange(Load(w.path))

		case err, ok := <-w.fsWatcher.Errors:
			if !ok {
				return
			}
			w.onChange(nil, errors.Wrap(errors.PhaseManifest, errors.KindRegistration, err, "watch "+w.path))
		}
	}
}
