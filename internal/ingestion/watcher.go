package ingestion

import (
	"context"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/go-git/go-git/v5/plumbing/format/gitignore"

	"github.com/Benny93/ocelgraph-go/internal/ocel"
)

// watchDebounce is how long the watcher waits for the directory to settle
// before rescanning.
const watchDebounce = 500 * time.Millisecond

// WatchDataDir monitors dataDir and calls onChange with the rescanned list
// of loadable files whenever a log file is created, written, renamed or
// removed. Blocks until the context is cancelled.
func WatchDataDir(ctx context.Context, dataDir string, onChange func([]FileEntry)) error {
	return watchDataDir(ctx, dataDir, watchDebounce, slog.Default(), onChange)
}

func watchDataDir(ctx context.Context, dataDir string, debounce time.Duration, logger *slog.Logger, onChange func([]FileEntry)) error {
	patterns, err := loadGitignore(dataDir)
	if err != nil {
		logger.Warn("reading .gitignore failed, continuing without it", slog.Any("error", err))
	}
	matcher := newMatcher(patterns)

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("creating watcher: %w", err)
	}
	defer watcher.Close()

	err = filepath.WalkDir(dataDir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if !d.IsDir() {
			return nil
		}
		if path != dataDir && shouldSkipDir(d.Name(), path, dataDir, matcher) {
			return filepath.SkipDir
		}
		return watcher.Add(path)
	})
	if err != nil {
		return fmt.Errorf("setting up watcher: %w", err)
	}

	batchTimer := time.NewTimer(debounce)
	batchTimer.Stop()
	pending := false

	logger.Info("watching data directory", slog.String("dir", dataDir))

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()

		case event, ok := <-watcher.Events:
			if !ok {
				return nil
			}

			if event.Has(fsnotify.Create) {
				if info, err := os.Stat(event.Name); err == nil && info.IsDir() {
					if !shouldSkipDir(info.Name(), event.Name, dataDir, matcher) {
						if err := watcher.Add(event.Name); err != nil {
							logger.Warn("watching new directory failed", slog.String("dir", event.Name), slog.Any("error", err))
						}
					}
					continue
				}
			}

			if !shouldWatchFile(event.Name, dataDir, matcher) {
				continue
			}
			pending = true
			batchTimer.Reset(debounce)

		case err, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			logger.Warn("watch error", slog.Any("error", err))

		case <-batchTimer.C:
			if !pending {
				continue
			}
			pending = false

			entries, err := walkDataDir(dataDir, matcher)
			if err != nil {
				logger.Warn("rescanning data directory failed", slog.Any("error", err))
				continue
			}
			logger.Debug("data directory changed", slog.Int("files", len(entries)))
			onChange(entries)
		}
	}
}

// shouldWatchFile reports whether a change to path affects the list of
// loadable files.
func shouldWatchFile(path, dataDir string, matcher gitignore.Matcher) bool {
	relPath, err := filepath.Rel(dataDir, path)
	if err != nil {
		return false
	}
	if matcher != nil && matcher.Match(splitPath(relPath), false) {
		return false
	}
	return ocel.IsSupportedFile(filepath.Base(path))
}
