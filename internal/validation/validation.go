package validation

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// DefaultArchiveExtension is the extension of optical-disc images
const DefaultArchiveExtension = ".iso"

var (
	// ErrEmptySelection means the picker returned an empty path
	ErrEmptySelection = errors.New("no archive selected")
	// ErrExtension means the selection does not have an archive extension
	ErrExtension = errors.New("not an archive image")
	// ErrNotRegularFile means the selection is missing or not a regular file
	ErrNotRegularFile = errors.New("not a regular file")
)

// ValidateArchivePath validates that a selected path can be mounted:
// - Non-empty
// - Ends with one of the given extensions (case-insensitive)
// - Names an existing regular file
func ValidateArchivePath(path string, extensions []string) error {
	if path == "" {
		return ErrEmptySelection
	}

	if !HasArchiveExtension(path, extensions) {
		return fmt.Errorf("%s: %w (want one of %s)", path, ErrExtension, strings.Join(extensions, ", "))
	}

	info, err := os.Stat(path)
	if err != nil {
		return fmt.Errorf("%s: %w: %v", path, ErrNotRegularFile, err)
	}
	if !info.Mode().IsRegular() {
		return fmt.Errorf("%s: %w", path, ErrNotRegularFile)
	}

	return nil
}

// HasArchiveExtension reports whether path ends with one of extensions.
// An empty extension list falls back to DefaultArchiveExtension.
func HasArchiveExtension(path string, extensions []string) bool {
	if len(extensions) == 0 {
		extensions = []string{DefaultArchiveExtension}
	}

	ext := strings.ToLower(filepath.Ext(path))
	for _, want := range extensions {
		if ext != "" && ext == strings.ToLower(want) {
			return true
		}
	}
	return false
}
