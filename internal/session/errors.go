package session

import (
	"errors"
	"fmt"
)

var (
	// ErrNotDirectory means the mount point exists but is not a directory
	ErrNotDirectory = errors.New("mount point is not a directory")
	// ErrBusy means something is already mounted on the mount point
	ErrBusy = errors.New("mount point already in use")
	// ErrStillMounted means the mount point survived an unmount
	ErrStillMounted = errors.New("mount point still in use after unmount")
)

// InvariantError reports a violated mount-point invariant. It indicates a
// misconfigured environment, not a recoverable runtime condition, and
// callers are expected to abort.
type InvariantError struct {
	Op         string
	MountPoint string
	Err        error
}

func (e *InvariantError) Error() string {
	return fmt.Sprintf("%s %s: %v", e.Op, e.MountPoint, e.Err)
}

func (e *InvariantError) Unwrap() error {
	return e.Err
}

// IsInvariant reports whether err carries an *InvariantError
func IsInvariant(err error) bool {
	var ie *InvariantError
	return errors.As(err, &ie)
}
