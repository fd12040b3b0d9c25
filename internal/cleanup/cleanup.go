// Package cleanup purges preview thumbnails generated while browsing a
// mounted archive. It only ever deletes inside a known cache root.
package cleanup

import (
	"os"
	"path/filepath"
	"strings"

	"github.com/mitchellh/go-homedir"

	"github.com/jlettvin/browseiso/internal/log"
)

// MaybeClean removes the files directly inside path and returns how many
// were removed. Nothing is removed unless enabled is set, path is equal to
// or beneath cacheRoot after resolving both, and path is an existing
// directory. Any unmet condition silently skips the cleanup.
func MaybeClean(path, cacheRoot string, enabled bool) int {
	if !enabled {
		return 0
	}

	dir, ok := contained(path, cacheRoot)
	if !ok {
		log.Debug("cleanup skipped, path outside cache root", "path", path, "cache_root", cacheRoot)
		return 0
	}

	info, err := os.Stat(dir)
	if err != nil || !info.IsDir() {
		log.Debug("cleanup skipped, not a directory", "path", dir)
		return 0
	}

	entries, err := os.ReadDir(dir)
	if err != nil {
		log.Warn("cleanup failed to read directory", "path", dir, "error", err)
		return 0
	}

	removed := 0
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		name := filepath.Join(dir, e.Name())
		if err := os.Remove(name); err != nil {
			log.Warn("failed to remove cached artifact", "path", name, "error", err)
			continue
		}
		removed++
	}

	log.Debug("cached artifacts removed", "path", dir, "count", removed)
	return removed
}

// contained resolves path and root and reports whether path is root or lies
// beneath it, comparing whole path components. An empty path or root, or a
// root that is the filesystem root, never contains anything.
func contained(path, root string) (string, bool) {
	if path == "" || root == "" {
		return "", false
	}

	absPath, err := canonical(path)
	if err != nil {
		return "", false
	}
	absRoot, err := canonical(root)
	if err != nil {
		return "", false
	}

	if absRoot == string(filepath.Separator) {
		return "", false
	}

	return absPath, isUnderOrEqual(absPath, absRoot)
}

// canonical expands ~, makes the path absolute and resolves symlinks when
// the path exists
func canonical(path string) (string, error) {
	expanded, err := homedir.Expand(path)
	if err != nil {
		return "", err
	}

	abs, err := filepath.Abs(expanded)
	if err != nil {
		return "", err
	}

	resolved, err := filepath.EvalSymlinks(abs)
	if err != nil {
		return filepath.Clean(abs), nil
	}
	return resolved, nil
}

// isUnderOrEqual returns true if testPath is under or equal to basePath:
//   - "/home/u/.thumbnails/normal" is under "/home/u/.thumbnails"
//   - "/home/u/.thumbnailsx" is NOT under "/home/u/.thumbnails"
func isUnderOrEqual(testPath, basePath string) bool {
	if testPath == basePath {
		return true
	}

	baseWithSep := basePath
	if !strings.HasSuffix(baseWithSep, string(filepath.Separator)) {
		baseWithSep += string(filepath.Separator)
	}

	return strings.HasPrefix(testPath, baseWithSep)
}
