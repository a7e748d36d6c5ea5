// Package readiness waits for files produced by other processes.
package readiness

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"time"

	"github.com/fsnotify/fsnotify"
)

// ErrTimeout is returned when the file did not appear in time.
var ErrTimeout = errors.New("readiness: timed out waiting for file")

// pollEvery backs up fsnotify where the directory cannot be watched.
const pollEvery = 250 * time.Millisecond

// WaitForFile blocks until path exists, timeout elapses or ctx is done.
func WaitForFile(ctx context.Context, path string, timeout time.Duration) error {
	return WaitForReplacement(ctx, path, nil, timeout)
}

// Stat returns the file currently at path, or nil when there is none. Pass
// the result to WaitForReplacement before starting the producer.
func Stat(path string) os.FileInfo {
	fi, err := os.Stat(path)
	if err != nil {
		return nil
	}
	return fi
}

// WaitForReplacement is WaitForFile ignoring prev: a file left behind by an
// earlier run does not count until it has been replaced or rewritten.
func WaitForReplacement(ctx context.Context, path string, prev os.FileInfo, timeout time.Duration) error {
	path = filepath.Clean(path)
	ready := func() bool { return fresh(path, prev) }

	var events <-chan fsnotify.Event
	var errs <-chan error
	if watcher, err := fsnotify.NewWatcher(); err == nil {
		defer watcher.Close()
		if err := watcher.Add(filepath.Dir(path)); err == nil {
			events, errs = watcher.Events, watcher.Errors
		}
	}

	// The file may have appeared before the watch was in place.
	if ready() {
		return nil
	}

	deadline := time.NewTimer(timeout)
	defer deadline.Stop()
	ticker := time.NewTicker(pollEvery)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-deadline.C:
			return ErrTimeout
		case ev, ok := <-events:
			if !ok {
				events = nil
				continue
			}
			if filepath.Clean(ev.Name) != path || !ev.Has(fsnotify.Create|fsnotify.Write) {
				continue
			}
			if ready() {
				return nil
			}
		case _, ok := <-errs:
			if !ok {
				errs = nil
			}
		case <-ticker.C:
			if ready() {
				return nil
			}
		}
	}
}

func fresh(path string, prev os.FileInfo) bool {
	fi, err := os.Stat(path)
	if err != nil {
		return false
	}
	if prev == nil {
		return true
	}
	return !os.SameFile(fi, prev) || !fi.ModTime().Equal(prev.ModTime()) || fi.Size() != prev.Size()
}
