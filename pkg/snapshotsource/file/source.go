// Package file implements a snapshotsource that watches a directory of
// YAML resource bundle files, one per node group, and calls
// SetSnapshot whenever one changes.
package file

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"

	clog "github.com/xds-controlplane/control-plane/pkg/log"
	"github.com/xds-controlplane/control-plane/pkg/xds/cache"
	"github.com/xds-controlplane/control-plane/pkg/xds/hash"
)

// debounceWindow batches rapid successive fsnotify events for the same
// file (editors commonly emit write+chmod+write in quick succession)
// into a single reload, mirroring the debounce-before-push idea in
// Istio's config update path.
const debounceWindow = 200 * time.Millisecond

// Source watches dir for "<group>.yaml" files and keeps c's snapshot
// for that group in sync with the file's contents.
type Source struct {
	dir  string
	c    cache.SnapshotCache
	hash hash.NodeHash

	watcher *fsnotify.Watcher

	mu      sync.Mutex
	pending map[string]struct{}
	timer   *time.Timer

	done chan struct{}
}

// New starts watching dir and performs an initial full load of every
// bundle file already present.
func New(dir string, c cache.SnapshotCache, h hash.NodeHash) (*Source, error) {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("creating fsnotify watcher: %w", err)
	}
	if err := watcher.Add(dir); err != nil {
		watcher.Close()
		return nil, fmt.Errorf("watching %s: %w", dir, err)
	}

	s := &Source{
		dir:     dir,
		c:       c,
		hash:    h,
		watcher: watcher,
		pending: make(map[string]struct{}),
		done:    make(chan struct{}),
	}

	entries, err := os.ReadDir(dir)
	if err != nil {
		watcher.Close()
		return nil, fmt.Errorf("reading %s: %w", dir, err)
	}
	for _, e := range entries {
		if isBundleFile(e.Name()) {
			s.reload(filepath.Join(dir, e.Name()))
		}
	}

	go s.run()
	return s, nil
}

func isBundleFile(name string) bool {
	return strings.HasSuffix(name, ".yaml") || strings.HasSuffix(name, ".yml")
}

func (s *Source) run() {
	for {
		select {
		case ev, ok := <-s.watcher.Events:
			if !ok {
				return
			}
			if !isBundleFile(ev.Name) {
				continue
			}
			s.schedule(ev.Name)

		case err, ok := <-s.watcher.Errors:
			if !ok {
				return
			}
			clog.Source.Warnf("file source watch error: %v", err)

		case <-s.done:
			return
		}
	}
}

// schedule debounces path: a burst of events within debounceWindow
// collapses into one reload, analogous to PushRequest.Merge batching
// several trigger reasons into a single push.
func (s *Source) schedule(path string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.pending[path] = struct{}{}
	if s.timer != nil {
		s.timer.Stop()
	}
	s.timer = time.AfterFunc(debounceWindow, s.flush)
}

func (s *Source) flush() {
	s.mu.Lock()
	paths := s.pending
	s.pending = make(map[string]struct{})
	s.mu.Unlock()

	for path := range paths {
		s.reload(path)
	}
}

// reload loads, validates, templates, and installs the snapshot for the
// group named by path's basename. On any failure the previous snapshot
// for that group is left untouched (P11): a bad edit never takes down
// a group that was previously serving correctly.
func (s *Source) reload(path string) {
	group := strings.TrimSuffix(filepath.Base(path), filepath.Ext(path))

	raw, err := os.ReadFile(path)
	if err != nil {
		clog.Source.Warnf("reading bundle %s: %v", path, err)
		return
	}

	if err := InstallBundle(s.c, group, raw); err != nil {
		clog.Source.Warnf("installing bundle %s: %v", path, err)
		return
	}

	clog.Source.Infof("installed snapshot group=%s from %s", group, path)
}

// Close stops the watcher and its background goroutine.
func (s *Source) Close() error {
	close(s.done)
	return s.watcher.Close()
}
