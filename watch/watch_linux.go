// Package watch notifies a callback when a loaded shared object's backing
// file changes on disk, so a long-running host process can reload it
// without restarting. It is built on inotify, the same primitive the
// teacher's build-on-save tooling used for source file change detection,
// repurposed here to watch a single binary artifact instead of a source
// tree.
//go:build linux

package watch

import (
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"
	"unsafe"

	"golang.org/x/sys/unix"
)

// debounceWindow absorbs the burst of IN_MODIFY/IN_CLOSE_WRITE events a
// single "cp" or linker invocation produces while rewriting a file.
const debounceWindow = 500 * time.Millisecond

// Watcher watches one or more files for modification and invokes a
// callback, debounced, once a file settles.
type Watcher struct {
	fd       int
	mu       sync.Mutex
	watchMap map[int]string
	debounce map[string]*time.Timer
	onChange func(path string)
}

// New creates a Watcher that calls onChange with the absolute path of any
// watched file once it has finished being written.
func New(onChange func(path string)) (*Watcher, error) {
	fd, err := unix.InotifyInit1(unix.IN_NONBLOCK | unix.IN_CLOEXEC)
	if err != nil {
		return nil, fmt.Errorf("watch: inotify_init: %w", err)
	}
	return &Watcher{
		fd:       fd,
		watchMap: make(map[int]string),
		debounce: make(map[string]*time.Timer),
		onChange: onChange,
	}, nil
}

// Add starts watching path for modification.
func (w *Watcher) Add(path string) error {
	abs, err := filepath.Abs(path)
	if err != nil {
		return err
	}
	wd, err := unix.InotifyAddWatch(w.fd, abs, unix.IN_MODIFY|unix.IN_CLOSE_WRITE)
	if err != nil {
		return fmt.Errorf("watch: add %s: %w", abs, err)
	}
	w.mu.Lock()
	w.watchMap[wd] = abs
	w.mu.Unlock()
	return nil
}

// Run blocks, dispatching change notifications until the watcher's
// descriptor is closed.
func (w *Watcher) Run(verbose bool) {
	buf := make([]byte, unix.SizeofInotifyEvent*10)
	for {
		n, err := unix.Read(w.fd, buf)
		if err != nil {
			if err == unix.EAGAIN || err == unix.EWOULDBLOCK {
				time.Sleep(100 * time.Millisecond)
				continue
			}
			if verbose {
				fmt.Fprintf(os.Stderr, "watch: read: %v\n", err)
			}
			return
		}

		offset := 0
		for offset < n {
			event := (*unix.InotifyEvent)(unsafe.Pointer(&buf[offset]))
			offset += unix.SizeofInotifyEvent + int(event.Len)

			if event.Mask&(unix.IN_MODIFY|unix.IN_CLOSE_WRITE) != 0 {
				w.mu.Lock()
				path := w.watchMap[int(event.Wd)]
				w.mu.Unlock()
				if path != "" {
					w.debouncedCallback(path)
				}
			}
		}
	}
}

func (w *Watcher) debouncedCallback(path string) {
	w.mu.Lock()
	defer w.mu.Unlock()

	if timer, ok := w.debounce[path]; ok {
		timer.Stop()
	}
	w.debounce[path] = time.AfterFunc(debounceWindow, func() {
		w.onChange(path)
		w.mu.Lock()
		delete(w.debounce, path)
		w.mu.Unlock()
	})
}

// Close releases the watcher's inotify descriptor.
func (w *Watcher) Close() error {
	return unix.Close(w.fd)
}
