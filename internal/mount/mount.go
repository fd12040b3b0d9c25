// Package mount attaches archive images to a mount point through external
// helper programs and answers whether a path is currently mounted.
package mount

import (
	"context"

	"github.com/jlettvin/browseiso/internal/runner"
)

// Mounter defines the interface for mount/unmount operations
type Mounter interface {
	// Mount attaches the source archive to the target directory
	Mount(ctx context.Context, source, target string) runner.Result
	// Unmount detaches whatever is mounted on the target directory
	Unmount(ctx context.Context, target string) runner.Result
}

// Table answers mount-state queries against the live OS mount table.
// Implementations must not cache: a mount can disappear behind our back.
type Table interface {
	// IsMounted checks if the target is a mount point
	IsMounted(target string) (bool, error)
}
