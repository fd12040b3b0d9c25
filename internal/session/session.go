// Package session owns the lifecycle of one mounted archive: it checks the
// mount point against the live mount table before mounting, launches the
// viewer, and guarantees the mount is released on every exit path.
package session

import (
	"context"
	"errors"
	"fmt"
	"os"

	"github.com/google/uuid"

	"github.com/jlettvin/browseiso/internal/log"
	"github.com/jlettvin/browseiso/internal/mount"
	"github.com/jlettvin/browseiso/internal/runner"
)

// Viewer is the external program launched against the mount point
type Viewer struct {
	Name    string
	Command runner.Template
}

// Session pairs one mount with exactly one unmount on a single mount point.
// Whether the mount point is mounted is never cached; every decision
// re-queries the mount table.
type Session struct {
	id         string
	mountPoint string
	archive    string
	viewer     Viewer
	mounter    mount.Mounter
	table      mount.Table
	runner     runner.Runner

	acquired bool
	released bool
}

// New creates a session for mountPoint. Nothing is mounted until Mount.
func New(mountPoint string, viewer Viewer, mounter mount.Mounter, table mount.Table, r runner.Runner) *Session {
	return &Session{
		id:         uuid.NewString()[:8],
		mountPoint: mountPoint,
		viewer:     viewer,
		mounter:    mounter,
		table:      table,
		runner:     r,
	}
}

// ID returns a short identifier for log correlation
func (s *Session) ID() string { return s.id }

// MountPoint returns the directory this session mounts onto
func (s *Session) MountPoint() string { return s.mountPoint }

// Archive returns the archive currently mounted by this session, if any
func (s *Session) Archive() string { return s.archive }

// Mount attaches archive to the mount point. The mount point is created if
// missing. A non-directory or an already mounted mount point is reported as
// an *InvariantError and the mount helper is not run. A failing helper is
// logged but not returned.
func (s *Session) Mount(ctx context.Context, archive string) error {
	if s.released {
		return fmt.Errorf("session %s already released", s.id)
	}

	log.Debug("mounting archive", "session", s.id, "archive", archive, "mount_point", s.mountPoint)

	if err := s.prepareMountPoint(); err != nil {
		return err
	}

	mounted, err := s.table.IsMounted(s.mountPoint)
	if err != nil {
		return fmt.Errorf("check mount status: %w", err)
	}
	if mounted {
		return &InvariantError{Op: "mount", MountPoint: s.mountPoint, Err: ErrBusy}
	}

	s.acquired = true
	s.archive = archive

	res := s.mounter.Mount(ctx, archive, s.mountPoint)
	if !res.OK() {
		log.Warn("mount helper did not succeed", "session", s.id, "archive", archive, "result", res.String())
		return nil
	}

	log.Info("archive mounted", "session", s.id, "archive", archive, "mount_point", s.mountPoint)
	return nil
}

// LaunchViewer runs the viewer on the mount point and blocks until it exits.
// There is no timeout; only context cancellation interrupts the wait.
func (s *Session) LaunchViewer(ctx context.Context) error {
	argv := s.viewer.Command.Expand(map[string]string{
		runner.Viewer:     s.viewer.Name,
		runner.MountPoint: s.mountPoint,
		runner.Archive:    s.archive,
	})

	log.Debug("launching viewer", "session", s.id, "viewer", s.viewer.Name, "mount_point", s.mountPoint)
	res := s.runner.Run(ctx, argv)
	log.Debug("viewer closed", "session", s.id, "result", res.String())

	return ctx.Err()
}

// Unmount detaches the mount point if the mount table shows it mounted and
// then asserts it is no longer mounted. Calling it on an unmounted mount
// point is a no-op apart from the assertion.
func (s *Session) Unmount(ctx context.Context) error {
	mounted, err := s.table.IsMounted(s.mountPoint)
	if err != nil {
		return fmt.Errorf("check mount status: %w", err)
	}

	if mounted {
		res := s.mounter.Unmount(ctx, s.mountPoint)
		if !res.OK() {
			log.Warn("unmount helper did not succeed", "session", s.id, "mount_point", s.mountPoint, "result", res.String())
		}
	} else {
		log.Debug("mount point not mounted", "session", s.id, "mount_point", s.mountPoint)
	}
	s.archive = ""

	mounted, err = s.table.IsMounted(s.mountPoint)
	if err != nil {
		return fmt.Errorf("check mount status: %w", err)
	}
	if mounted {
		log.Error("mount point still mounted after unmount", "session", s.id, "mount_point", s.mountPoint)
		return &InvariantError{Op: "unmount", MountPoint: s.mountPoint, Err: ErrStillMounted}
	}

	log.Debug("mount point released", "session", s.id, "mount_point", s.mountPoint)
	return nil
}

// Close releases the session. If Mount got past its preconditions the
// mount point is unmounted; later calls do nothing.
func (s *Session) Close(ctx context.Context) error {
	if s.released {
		return nil
	}
	s.released = true

	if !s.acquired {
		return nil
	}
	return s.Unmount(ctx)
}

// Run mounts archive, calls fn, and releases the session on every exit
// path, including a panic in fn or cancellation of ctx. Release runs
// with a context detached from ctx's cancellation so the unmount helper
// can still be started after an interrupt.
func Run(ctx context.Context, s *Session, archive string, fn func(context.Context) error) (err error) {
	if err := s.Mount(ctx, archive); err != nil {
		return err
	}

	defer func() {
		if cerr := s.Close(context.WithoutCancel(ctx)); cerr != nil {
			err = errors.Join(err, cerr)
		}
	}()

	return fn(ctx)
}

// prepareMountPoint makes sure the mount point exists and is a directory
func (s *Session) prepareMountPoint() error {
	info, err := os.Stat(s.mountPoint)
	if err == nil {
		if !info.IsDir() {
			return &InvariantError{Op: "mount", MountPoint: s.mountPoint, Err: ErrNotDirectory}
		}
		return nil
	}
	if !os.IsNotExist(err) {
		return fmt.Errorf("stat mount point: %w", err)
	}

	if err := os.MkdirAll(s.mountPoint, 0755); err != nil {
		return fmt.Errorf("create mount point: %w", err)
	}
	return nil
}
