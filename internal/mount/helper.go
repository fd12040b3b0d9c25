package mount

import (
	"context"

	"github.com/jlettvin/browseiso/internal/log"
	"github.com/jlettvin/browseiso/internal/runner"
)

// HelperMounter implements Mounter by running external helper programs
// such as fuseiso and fusermount
type HelperMounter struct {
	mountCmd   runner.Template
	unmountCmd runner.Template
	runner     runner.Runner
}

// NewHelperMounter creates a mounter from mount and unmount command templates
func NewHelperMounter(mountCmd, unmountCmd runner.Template, r runner.Runner) *HelperMounter {
	return &HelperMounter{
		mountCmd:   mountCmd,
		unmountCmd: unmountCmd,
		runner:     r,
	}
}

// Mount runs the mount helper for source on target
func (m *HelperMounter) Mount(ctx context.Context, source, target string) runner.Result {
	log.Debug("mounting archive", "source", source, "target", target)

	res := m.runner.Run(ctx, m.mountCmd.Expand(map[string]string{
		runner.Archive:    source,
		runner.MountPoint: target,
	}))
	if res.OK() {
		log.Debug("mounted successfully", "source", source, "target", target)
	}
	return res
}

// Unmount runs the unmount helper for target
func (m *HelperMounter) Unmount(ctx context.Context, target string) runner.Result {
	log.Debug("unmounting", "target", target)

	res := m.runner.Run(ctx, m.unmountCmd.Expand(map[string]string{
		runner.MountPoint: target,
	}))
	if res.OK() {
		log.Debug("unmounted successfully", "target", target)
	}
	return res
}

// Programs returns the executables the helper templates invoke
func (m *HelperMounter) Programs() []string {
	return []string{m.mountCmd.Program(), m.unmountCmd.Program()}
}
