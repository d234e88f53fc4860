package watch

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/fsnotify/fsnotify"

	"skymatch/internal/identify"
	"skymatch/pkg/skymatch"
)

// overlaySuffix marks rendered overlays so they are never identified again
// when written into the watched directory.
const overlaySuffix = "-overlay.jpg"

// DefaultSettle is how long a file must stay unchanged before it is read.
const DefaultSettle = 500 * time.Millisecond

// Watcher identifies images as they appear in a directory. Files are
// processed one at a time in the order they settle.
type Watcher struct {
	Dir        string
	Extensions []string
	// OverlayDir receives an overlay per image when set.
	OverlayDir string
	Settle     time.Duration
	Service    *identify.Service
	Log        *slog.Logger

	pending map[string]time.Time
}

// Accepts reports whether path has one of the watched extensions.
func (w *Watcher) Accepts(path string) bool {
	if strings.HasSuffix(path, overlaySuffix) {
		return false
	}
	ext := filepath.Ext(path)
	for _, e := range w.Extensions {
		if strings.EqualFold(e, ext) {
			return true
		}
	}
	return false
}

// Scan identifies the images already present in Dir, in name order, and
// returns how many were processed.
func (w *Watcher) Scan(ctx context.Context) (int, error) {
	entries, err := os.ReadDir(w.Dir)
	if err != nil {
		return 0, err
	}
	names := make([]string, 0, len(entries))
	for _, e := range entries {
		if e.Type().IsRegular() && w.Accepts(e.Name()) {
			names = append(names, e.Name())
		}
	}
	sort.Strings(names)

	n := 0
	for _, name := range names {
		if err := ctx.Err(); err != nil {
			return n, err
		}
		w.process(ctx, filepath.Join(w.Dir, name))
		n++
	}
	return n, nil
}

// Run watches Dir until ctx is done.
func (w *Watcher) Run(ctx context.Context) error {
	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	defer fsw.Close()
	if err := fsw.Add(w.Dir); err != nil {
		return fmt.Errorf("watch %s: %w", w.Dir, err)
	}
	w.logger().Info("watching directory", "dir", w.Dir, "overlays", w.OverlayDir)

	settle := w.Settle
	if settle <= 0 {
		settle = DefaultSettle
	}
	w.pending = make(map[string]time.Time)
	ticker := time.NewTicker(settle / 2)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil

		case event, ok := <-fsw.Events:
			if !ok {
				return nil
			}
			switch {
			case event.Has(fsnotify.Create), event.Has(fsnotify.Write):
				if w.Accepts(event.Name) {
					w.pending[event.Name] = time.Now()
				}
			case event.Has(fsnotify.Remove), event.Has(fsnotify.Rename):
				delete(w.pending, event.Name)
			}

		case err, ok := <-fsw.Errors:
			if !ok {
				return nil
			}
			w.logger().Warn("filesystem watcher error", "error", err)

		case now := <-ticker.C:
			for _, path := range w.settled(now, settle) {
				w.process(ctx, path)
			}
		}
	}
}

// settled removes and returns the pending paths untouched for settle, oldest
// first.
func (w *Watcher) settled(now time.Time, settle time.Duration) []string {
	var ready []string
	for path, last := range w.pending {
		if now.Sub(last) >= settle {
			ready = append(ready, path)
		}
	}
	sort.Slice(ready, func(i, j int) bool {
		ti, tj := w.pending[ready[i]], w.pending[ready[j]]
		if ti.Equal(tj) {
			return ready[i] < ready[j]
		}
		return ti.Before(tj)
	})
	for _, path := range ready {
		delete(w.pending, path)
	}
	return ready
}

func (w *Watcher) process(ctx context.Context, path string) {
	data, err := os.ReadFile(path)
	if err != nil {
		w.logger().Warn("cannot read image", "path", path, "error", err)
		return
	}
	id, _, err := w.Service.Run(ctx, identify.Request{Source: path, Data: data})
	if err != nil || w.OverlayDir == "" {
		return
	}

	if err := os.MkdirAll(w.OverlayDir, 0o755); err != nil {
		w.logger().Warn("cannot create overlay directory", "dir", w.OverlayDir, "error", err)
		return
	}
	out := OverlayPath(w.OverlayDir, path)
	if err := skymatch.RenderOverlay(id.Extraction, id.Result, out); err != nil {
		w.logger().Warn("overlay failed", "path", path, "error", err)
		return
	}
	w.logger().Debug("overlay written", "path", out)
}

// OverlayPath names the overlay of src inside dir.
func OverlayPath(dir, src string) string {
	base := strings.TrimSuffix(filepath.Base(src), filepath.Ext(src))
	return filepath.Join(dir, base+overlaySuffix)
}

func (w *Watcher) logger() *slog.Logger {
	if w.Log != nil {
		return w.Log
	}
	return slog.Default()
}
