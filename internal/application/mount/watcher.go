// Package mount waits for an asynchronously mounted volume to expose a
// marker file.
package mount

import (
	"context"
	"path/filepath"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/ahrav/mountgate/pkg/common/fsutil"
	"github.com/ahrav/mountgate/pkg/common/timeutil"
)

// Result describes the outcome of a Wait.
type Result struct {
	Found    bool
	Attempts int
	Elapsed  time.Duration
}

// Watcher polls for a marker file with a bounded number of attempts and a
// fixed delay between them. The zero value is not usable; use NewWatcher.
type Watcher struct {
	path        string
	maxAttempts int
	interval    time.Duration

	clock   timeutil.Provider
	exists  func(path string) bool
	events  bool
	onCheck func(attempt int, found bool)
}

// Option configures a Watcher.
type Option func(*Watcher)

// WithClock replaces the time source.
func WithClock(p timeutil.Provider) Option { return func(w *Watcher) { w.clock = p } }

// WithStat replaces the existence check.
func WithStat(fn func(path string) bool) Option { return func(w *Watcher) { w.exists = fn } }

// WithEvents lets filesystem notifications on the marker's directory trigger
// the next check before the interval has elapsed. Polling remains the source
// of truth; network mounts frequently do not deliver notifications at all.
func WithEvents() Option { return func(w *Watcher) { w.events = true } }

// WithCheckHook registers a callback invoked after every check.
func WithCheckHook(fn func(attempt int, found bool)) Option {
	return func(w *Watcher) { w.onCheck = fn }
}

// NewWatcher creates a watcher for path. maxAttempts below one is raised to one.
func NewWatcher(path string, maxAttempts int, interval time.Duration, opts ...Option) *Watcher {
	if maxAttempts < 1 {
		maxAttempts = 1
	}
	w := &Watcher{
		path:        path,
		maxAttempts: maxAttempts,
		interval:    interval,
		clock:       timeutil.Default(),
		exists:      fsutil.IsRegularFile,
	}
	for _, opt := range opts {
		opt(w)
	}
	return w
}

// Path returns the marker path being watched.
func (w *Watcher) Path() string { return w.path }

// Wait checks for the marker up to maxAttempts times, sleeping interval
// between checks. It never sleeps after the last check. Exhaustion and
// cancellation both return Found=false; absence is a reportable condition,
// not an error.
//
// With events enabled, a create or write of the marker itself triggers an
// extra check inside the current interval. Extra checks do not count toward
// maxAttempts, do not restart the interval, and do not invoke the check hook.
func (w *Watcher) Wait(ctx context.Context) Result {
	start := w.clock.Now()

	var (
		wake     <-chan fsnotify.Event
		wakeErrs <-chan error
	)
	if w.events {
		if fw := w.subscribe(); fw != nil {
			defer fw.Close()
			wake, wakeErrs = fw.Events, fw.Errors
		}
	}

	for attempt := 1; ; attempt++ {
		found := w.exists(w.path)
		if w.onCheck != nil {
			w.onCheck(attempt, found)
		}
		if found {
			return Result{Found: true, Attempts: attempt, Elapsed: w.clock.Now().Sub(start)}
		}
		if attempt >= w.maxAttempts {
			return Result{Attempts: attempt, Elapsed: w.clock.Now().Sub(start)}
		}

		tick := w.clock.After(w.interval)
	sleep:
		for {
			select {
			case <-ctx.Done():
				return Result{Attempts: attempt, Elapsed: w.clock.Now().Sub(start)}
			case <-tick:
				break sleep
			case ev, ok := <-wake:
				if !ok {
					wake = nil
					continue
				}
				if w.isMarkerEvent(ev) && w.exists(w.path) {
					return Result{Found: true, Attempts: attempt, Elapsed: w.clock.Now().Sub(start)}
				}
			case _, ok := <-wakeErrs:
				if !ok {
					wakeErrs = nil
				}
			}
		}
	}
}

// isMarkerEvent reports whether ev is a create or write of the marker file.
// Chmod, remove and rename events, and events for siblings, are ignored.
func (w *Watcher) isMarkerEvent(ev fsnotify.Event) bool {
	if filepath.Clean(ev.Name) != filepath.Clean(w.path) {
		return false
	}
	return ev.Has(fsnotify.Create) || ev.Has(fsnotify.Write)
}

// subscribe watches the marker's directory. A nil return means events are
// unavailable and the caller polls only.
func (w *Watcher) subscribe() *fsnotify.Watcher {
	fw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil
	}
	if err := fw.Add(filepath.Dir(w.path)); err != nil {
		fw.Close()
		return nil
	}
	return fw
}

// WaitForMarker polls for path with the default clock and reports whether it
// appeared within maxAttempts checks.
func WaitForMarker(ctx context.Context, path string, maxAttempts int, interval time.Duration) bool {
	return NewWatcher(path, maxAttempts, interval).Wait(ctx).Found
}
