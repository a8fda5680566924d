// Package watch keeps target item counts current by watching their
// directory locators with fsnotify.
package watch

import (
	"context"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/starford/attune/internal/models"
	"github.com/starford/attune/internal/scan"
)

// Targets is the registry surface the watcher uses.
type Targets interface {
	List(ctx context.Context, f models.TargetFilter) ([]models.Target, error)
	RefreshItemCount(ctx context.Context, id string) (models.Target, error)
}

// Callback is called after a watcher-driven item count refresh.
type Callback func(t models.Target)

// Options tune the watcher. Zero values fall back to defaults.
type Options struct {
	// Debounce is how long a burst of changes must settle before counts
	// are refreshed.
	Debounce time.Duration
	// Resync is how often the watch set is rebuilt from the registry.
	Resync time.Duration
}

const (
	defaultDebounce = 500 * time.Millisecond
	defaultResync   = 30 * time.Second
)

// watchSet tracks which directories are watched on behalf of which targets.
type watchSet struct {
	w      *fsnotify.Watcher
	logger *slog.Logger
	// roots maps a directory locator to the targets that use it.
	roots map[string][]string
	dirs  map[string]struct{}
}

// Run watches the directory locators of active targets until ctx is
// cancelled. Changes to displayable items or directories under a locator
// schedule a debounced RefreshItemCount for every target owning it.
//
// New directories created at runtime are added to the watch list; new or
// deactivated targets are picked up at the next resync.
func Run(ctx context.Context, targets Targets, logger *slog.Logger, opts Options, cb Callback) error {
	if opts.Debounce <= 0 {
		opts.Debounce = defaultDebounce
	}
	if opts.Resync <= 0 {
		opts.Resync = defaultResync
	}

	w, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	defer w.Close()

	set := &watchSet{
		w:      w,
		logger: logger,
		roots:  make(map[string][]string),
		dirs:   make(map[string]struct{}),
	}
	set.sync(ctx, targets)
	logger.Info("watcher: started", slog.Int("roots", len(set.roots)))

	resync := time.NewTicker(opts.Resync)
	defer resync.Stop()

	pending := make(map[string]struct{})
	var flushTimer *time.Timer
	var flushCh <-chan time.Time

	schedule := func(ids []string) {
		for _, id := range ids {
			pending[id] = struct{}{}
		}
		if flushTimer == nil {
			flushTimer = time.NewTimer(opts.Debounce)
			flushCh = flushTimer.C
		} else {
			flushTimer.Reset(opts.Debounce)
		}
	}

	for {
		select {
		case <-ctx.Done():
			if flushTimer != nil {
				flushTimer.Stop()
			}
			logger.Info("watcher: stopped")
			return nil

		case <-resync.C:
			set.sync(ctx, targets)

		case <-flushCh:
			for id := range pending {
				t, err := targets.RefreshItemCount(ctx, id)
				if err != nil {
					logger.Warn("watcher: refresh failed",
						slog.String("target_id", id),
						slog.String("error", err.Error()))
					continue
				}
				logger.Debug("watcher: item count refreshed",
					slog.String("target_id", id),
					slog.Int("items", t.ItemCount))
				if cb != nil {
					cb(t)
				}
			}
			clear(pending)

		case ev, ok := <-w.Events:
			if !ok {
				return nil
			}
			owners := set.owners(ev.Name)
			if len(owners) == 0 {
				continue
			}

			if ev.Op&fsnotify.Create != 0 {
				if info, statErr := os.Stat(ev.Name); statErr == nil && info.IsDir() {
					if addErr := set.addTree(ev.Name); addErr != nil {
						logger.Warn("watcher: add new dir failed",
							slog.String("path", ev.Name),
							slog.String("error", addErr.Error()))
					}
					schedule(owners)
					continue
				}
			}

			if ev.Op&(fsnotify.Remove|fsnotify.Rename) != 0 {
				set.forget(ev.Name)
			}

			// Removed or renamed directories have no extension; refresh for
			// them too since they may have held items.
			if scan.IsItem(ev.Name) || filepath.Ext(ev.Name) == "" && ev.Op&(fsnotify.Remove|fsnotify.Rename) != 0 {
				if ev.Op&(fsnotify.Create|fsnotify.Remove|fsnotify.Rename) != 0 {
					schedule(owners)
				}
			}

		case watchErr, ok := <-w.Errors:
			if !ok {
				return nil
			}
			logger.Error("watcher: error", slog.String("error", watchErr.Error()))
		}
	}
}

// sync rebuilds the root set from the active directory targets.
func (s *watchSet) sync(ctx context.Context, targets Targets) {
	list, err := targets.List(ctx, models.TargetFilter{OnlyActive: true})
	if err != nil {
		s.logger.Warn("watcher: list targets failed", slog.String("error", err.Error()))
		return
	}

	next := make(map[string][]string)
	for _, t := range list {
		if t.SourceType != models.SourceDirectory {
			continue
		}
		root, err := filepath.Abs(t.Locator)
		if err != nil {
			continue
		}
		next[root] = append(next[root], t.ID)
	}

	for root := range next {
		if _, ok := s.dirs[root]; ok {
			continue
		}
		if err := s.addTree(root); err != nil {
			s.logger.Debug("watcher: cannot watch locator",
				slog.String("root", root),
				slog.String("error", err.Error()))
		}
	}
	s.roots = next

	for dir := range s.dirs {
		if !s.covered(dir) {
			_ = s.w.Remove(dir)
			delete(s.dirs, dir)
		}
	}
}

// owners returns the targets whose locator contains path.
func (s *watchSet) owners(path string) []string {
	var ids []string
	for root, rootIDs := range s.roots {
		if within(root, path) {
			ids = append(ids, rootIDs...)
		}
	}
	return ids
}

func (s *watchSet) covered(dir string) bool {
	for root := range s.roots {
		if within(root, dir) {
			return true
		}
	}
	return false
}

// forget drops a vanished directory and its subdirectories; fsnotify has
// already removed their watches.
func (s *watchSet) forget(path string) {
	for dir := range s.dirs {
		if within(path, dir) {
			delete(s.dirs, dir)
		}
	}
}

// addTree adds root and all its non-hidden subdirectories to the watcher.
func (s *watchSet) addTree(root string) error {
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
		if _, ok := s.dirs[path]; ok {
			return nil
		}
		if err := s.w.Add(path); err != nil {
			return err
		}
		s.dirs[path] = struct{}{}
		return nil
	})
}

func within(root, path string) bool {
	return path == root || strings.HasPrefix(path, root+string(filepath.Separator))
}
