// Package ingestion moves event logs from the data directory and from
// uploads into the index handle and the log store.
package ingestion

import (
	"cmp"
	"errors"
	"io/fs"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"time"

	"github.com/go-git/go-git/v5/plumbing/format/gitignore"

	"github.com/Benny93/ocelgraph-go/internal/ocel"
)

// FileEntry represents a loadable log file in the data directory.
type FileEntry struct {
	// Path is the absolute file path.
	Path string

	// Name is the slash-separated path relative to the data directory.
	// It is the name clients use to load the file.
	Name string

	// Format is derived from the file extension.
	Format ocel.Format

	Size    int64
	ModTime time.Time
}

// Default patterns to ignore (in addition to .gitignore).
var defaultIgnorePatterns = []string{
	".git/",
	".ocelgraph/",
	"node_modules/",
	".DS_Store",
	"Thumbs.db",
	"*.tmp",
	"*.part",
	"~*",
}

// Discover walks dataDir and returns every loadable log file, sorted by
// name. A missing directory yields no files.
func Discover(dataDir string) ([]FileEntry, error) {
	patterns, err := loadGitignore(dataDir)
	if err != nil {
		return nil, err
	}
	return walkDataDir(dataDir, newMatcher(patterns))
}

// AvailableNames returns the names of the given entries.
func AvailableNames(entries []FileEntry) []string {
	names := make([]string, len(entries))
	for i, e := range entries {
		names[i] = e.Name
	}
	return names
}

func newMatcher(patterns []gitignore.Pattern) gitignore.Matcher {
	all := make([]gitignore.Pattern, 0, len(defaultIgnorePatterns)+len(patterns))
	for _, p := range defaultIgnorePatterns {
		all = append(all, gitignore.ParsePattern(p, nil))
	}
	all = append(all, patterns...)
	return gitignore.NewMatcher(all)
}

func walkDataDir(dataDir string, matcher gitignore.Matcher) ([]FileEntry, error) {
	entries := []FileEntry{}

	err := filepath.WalkDir(dataDir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			if path == dataDir && errors.Is(err, fs.ErrNotExist) {
				return filepath.SkipAll
			}
			return err
		}

		if path == dataDir {
			return nil
		}

		if d.IsDir() {
			if shouldSkipDir(d.Name(), path, dataDir, matcher) {
				return filepath.SkipDir
			}
			return nil
		}

		if !ocel.IsSupportedFile(d.Name()) {
			return nil
		}

		relPath, err := filepath.Rel(dataDir, path)
		if err != nil {
			return err
		}
		if matcher.Match(splitPath(relPath), false) {
			return nil
		}

		info, err := d.Info()
		if err != nil {
			return err
		}
		format, _ := ocel.FormatFromPath(path)

		entries = append(entries, FileEntry{
			Path:    path,
			Name:    filepath.ToSlash(relPath),
			Format:  format,
			Size:    info.Size(),
			ModTime: info.ModTime(),
		})
		return nil
	})
	if err != nil {
		return nil, err
	}

	slices.SortFunc(entries, func(a, b FileEntry) int { return cmp.Compare(a.Name, b.Name) })
	return entries, nil
}

// loadGitignore loads .gitignore patterns from the data directory root.
func loadGitignore(dataDir string) ([]gitignore.Pattern, error) {
	content, err := os.ReadFile(filepath.Join(dataDir, ".gitignore"))
	if errors.Is(err, fs.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}

	var patterns []gitignore.Pattern
	for _, line := range strings.Split(string(content), "\n") {
		line = strings.TrimSpace(line)
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		patterns = append(patterns, gitignore.ParsePattern(line, nil))
	}
	return patterns, nil
}

// shouldSkipDir checks if a directory should be skipped.
func shouldSkipDir(name, path, root string, matcher gitignore.Matcher) bool {
	if name == ".git" {
		return true
	}

	relPath, err := filepath.Rel(root, path)
	if err != nil {
		return false
	}
	return matcher.Match(splitPath(relPath), true)
}

// splitPath splits a path into its components.
func splitPath(path string) []string {
	return strings.Split(path, string(filepath.Separator))
}
