package mount

import (
	"fmt"
	"path/filepath"

	"github.com/moby/sys/mountinfo"
)

// InfoTable implements Table on top of /proc/self/mountinfo
type InfoTable struct{}

// NewInfoTable creates a mount table reader
func NewInfoTable() *InfoTable {
	return &InfoTable{}
}

// IsMounted checks if the target is mounted. Every call re-reads the
// kernel's mount table.
func (t *InfoTable) IsMounted(target string) (bool, error) {
	absTarget, err := resolve(target)
	if err != nil {
		return false, err
	}

	mounts, err := mountinfo.GetMounts(mountinfo.SingleEntryFilter(absTarget))
	if err != nil {
		return false, fmt.Errorf("unable to parse mounts: %w", err)
	}

	return len(mounts) > 0, nil
}

// resolve returns the absolute, symlink-free form of path as the kernel
// records it in the mount table
func resolve(path string) (string, error) {
	absPath, err := filepath.Abs(path)
	if err != nil {
		return "", fmt.Errorf("get absolute path: %w", err)
	}

	// A dead FUSE mount fails stat with ENOTCONN; the lexical path is
	// still what the mount table lists.
	realPath, err := filepath.EvalSymlinks(absPath)
	if err != nil {
		return absPath, nil
	}
	return realPath, nil
}
