package fsevents

import (
	"context"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/starford/strata/internal/checksum"
)

// Watch records file-system changes under the root until ctx is cancelled.
//
// New directories created at runtime are added to the watch list and the
// files already inside them are recorded as created. Hidden entries
// (leading dot) are ignored.
func (s *Source) Watch(ctx context.Context) error {
	w, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	defer w.Close()

	if err := addDirsRecursive(w, s.root); err != nil {
		return err
	}

	s.logger.Info("watcher: started", slog.String("root", s.root))

	for {
		select {
		case <-ctx.Done():
			s.logger.Info("watcher: stopped")
			return nil

		case ev, ok := <-w.Events:
			if !ok {
				return nil
			}
			s.handle(w, ev)

		case watchErr, ok := <-w.Errors:
			if !ok {
				return nil
			}
			s.logger.Error("watcher: error", slog.String("error", watchErr.Error()))
		}
	}
}

func (s *Source) handle(w *fsnotify.Watcher, ev fsnotify.Event) {
	absPath := ev.Name
	rel, err := filepath.Rel(s.root, absPath)
	if err != nil || hidden(rel) {
		return
	}
	rel = filepath.ToSlash(rel)

	if ev.Op&fsnotify.Create != 0 {
		if info, statErr := os.Stat(absPath); statErr == nil && info.IsDir() {
			if addErr := addDirsRecursive(w, absPath); addErr != nil {
				s.logger.Warn("watcher: add new dir failed",
					slog.String("path", absPath),
					slog.String("error", addErr.Error()))
				return
			}
			s.logger.Debug("watcher: watching new dir", slog.String("path", absPath))
			s.recordNewDir(absPath)
			return
		}
	}

	now := time.Now()
	switch {
	case ev.Op&fsnotify.Create != 0:
		s.record(Event{Path: rel, Op: OpCreated, At: now, Checksum: fileSum(absPath)})
	case ev.Op&fsnotify.Write != 0:
		s.record(Event{Path: rel, Op: OpModified, At: now, Checksum: fileSum(absPath)})
	case ev.Op&fsnotify.Remove != 0:
		s.record(Event{Path: rel, Op: OpRemoved, At: now})
	case ev.Op&fsnotify.Rename != 0:
		// Fired on the old path; the new path arrives as a Create.
		s.record(Event{Path: rel, Op: OpRenamed, At: now})
	}
}

// recordNewDir records the files found in a newly created directory.
func (s *Source) recordNewDir(dir string) {
	_ = filepath.WalkDir(dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil || d.IsDir() {
			return nil
		}
		rel, relErr := filepath.Rel(s.root, path)
		if relErr != nil || hidden(rel) {
			return nil
		}
		s.record(Event{Path: filepath.ToSlash(rel), Op: OpCreated, At: time.Now(), Checksum: fileSum(path)})
		return nil
	})
}

// maxHashSize caps the files fingerprinted for unchanged-write detection.
const maxHashSize = 8 << 20

func fileSum(path string) string {
	sum, err := checksum.File(path, maxHashSize)
	if err != nil {
		return ""
	}
	return sum
}

func hidden(rel string) bool {
	for _, part := range strings.Split(filepath.ToSlash(rel), "/") {
		if strings.HasPrefix(part, ".") && part != "." && part != ".." {
			return true
		}
	}
	return false
}

// addDirsRecursive adds root and all its non-hidden subdirectories to the watcher.
func addDirsRecursive(w *fsnotify.Watcher, root string) error {
	return filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if !d.IsDir() {
			return nil
		}
		if path != root && strings.HasPrefix(d.Name(), ".") {
			return filepath.SkipDir
		}
		return w.Add(path)
	})
}
