package session

import (
	"bytes"
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jlettvin/browseiso/internal/log"
	"github.com/jlettvin/browseiso/internal/runner"
)

func TestMain(m *testing.M) {
	log.Setup(false)
	os.Exit(m.Run())
}

// fakeTable is an in-memory mount table shared with fakeMounter
type fakeTable struct {
	mounted map[string]bool
	queries int
	err     error
}

func newFakeTable() *fakeTable {
	return &fakeTable{mounted: map[string]bool{}}
}

func (t *fakeTable) IsMounted(target string) (bool, error) {
	t.queries++
	if t.err != nil {
		return false, t.err
	}
	return t.mounted[target], nil
}

// fakeMounter updates fakeTable the way a real helper updates the kernel
type fakeMounter struct {
	table        *fakeTable
	mounts       []string
	unmounts     []string
	mountResult  runner.Result
	stuckMounted bool // unmount helper "succeeds" but leaves the mount behind
}

func (m *fakeMounter) Mount(_ context.Context, source, target string) runner.Result {
	m.mounts = append(m.mounts, source)
	if m.mountResult.OK() {
		m.table.mounted[target] = true
	}
	return m.mountResult
}

func (m *fakeMounter) Unmount(_ context.Context, target string) runner.Result {
	m.unmounts = append(m.unmounts, target)
	if !m.stuckMounted {
		delete(m.table.mounted, target)
	}
	return runner.Result{Kind: runner.Success}
}

// recordingRunner captures viewer invocations
type recordingRunner struct {
	calls [][]string
}

func (r *recordingRunner) Run(_ context.Context, argv []string) runner.Result {
	r.calls = append(r.calls, argv)
	return runner.Result{Kind: runner.Success}
}

type fixture struct {
	table   *fakeTable
	mounter *fakeMounter
	runner  *recordingRunner
	mp      string
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	table := newFakeTable()
	return &fixture{
		table:   table,
		mounter: &fakeMounter{table: table, mountResult: runner.Result{Kind: runner.Success}},
		runner:  &recordingRunner{},
		mp:      filepath.Join(t.TempDir(), "session1"),
	}
}

func (f *fixture) session() *Session {
	viewer := Viewer{Name: "echo", Command: runner.MustParseTemplate("{viewer} {mountpoint}")}
	return New(f.mp, viewer, f.mounter, f.table, f.runner)
}

func TestSession_MountLaunchUnmount(t *testing.T) {
	f := newFixture(t)
	var out bytes.Buffer
	viewer := Viewer{Name: "echo", Command: runner.MustParseTemplate("{viewer} {mountpoint}")}
	s := New(f.mp, viewer, f.mounter, f.table, &runner.ExecRunner{Stdout: &out, Stderr: &out})
	ctx := context.Background()

	require.NoError(t, s.Mount(ctx, "/data/sample.iso"))
	assert.Equal(t, "/data/sample.iso", s.Archive())
	assert.DirExists(t, f.mp, "mount point should be created")

	require.NoError(t, s.LaunchViewer(ctx))
	assert.Equal(t, f.mp+"\n", out.String())

	require.NoError(t, s.Unmount(ctx))

	mounted, err := f.table.IsMounted(f.mp)
	require.NoError(t, err)
	assert.False(t, mounted)
	assert.Empty(t, s.Archive())
	assert.Equal(t, []string{"/data/sample.iso"}, f.mounter.mounts, "exactly one mount")
	assert.Equal(t, []string{f.mp}, f.mounter.unmounts, "exactly one unmount")
}

func TestSession_MountTwiceIsBusy(t *testing.T) {
	f := newFixture(t)
	s := f.session()
	ctx := context.Background()

	require.NoError(t, s.Mount(ctx, "/data/sample.iso"))

	err := s.Mount(ctx, "/data/other.iso")
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrBusy)
	assert.True(t, IsInvariant(err))
	assert.Equal(t, []string{"/data/sample.iso"}, f.mounter.mounts, "second mount must not reach the helper")
}

func TestSession_MountOnExternallyMountedPoint(t *testing.T) {
	f := newFixture(t)
	f.table.mounted[f.mp] = true

	err := f.session().Mount(context.Background(), "/data/sample.iso")
	assert.ErrorIs(t, err, ErrBusy)
	assert.Empty(t, f.mounter.mounts)
}

func TestSession_MountPointNotDirectory(t *testing.T) {
	f := newFixture(t)
	require.NoError(t, os.WriteFile(f.mp, []byte("not a dir"), 0644))

	err := f.session().Mount(context.Background(), "/data/sample.iso")
	assert.ErrorIs(t, err, ErrNotDirectory)
	assert.True(t, IsInvariant(err))
	assert.Empty(t, f.mounter.mounts)
}

func TestSession_MountPointAlreadyExists(t *testing.T) {
	f := newFixture(t)
	require.NoError(t, os.MkdirAll(f.mp, 0755))

	assert.NoError(t, f.session().Mount(context.Background(), "/data/sample.iso"))
}

func TestSession_MountHelperFailureIsNotFatal(t *testing.T) {
	f := newFixture(t)
	f.mounter.mountResult = runner.Result{Kind: runner.Failed, Code: 1}
	s := f.session()
	ctx := context.Background()

	require.NoError(t, s.Mount(ctx, "/data/broken.iso"))
	require.NoError(t, s.LaunchViewer(ctx))
	require.NoError(t, s.Unmount(ctx))

	assert.Len(t, f.runner.calls, 1, "viewer still launched")
	assert.Empty(t, f.mounter.unmounts, "nothing mounted, nothing to unmount")
}

func TestSession_MountTableError(t *testing.T) {
	f := newFixture(t)
	f.table.err = errors.New("mountinfo unreadable")

	err := f.session().Mount(context.Background(), "/data/sample.iso")
	require.Error(t, err)
	assert.False(t, IsInvariant(err))
	assert.Empty(t, f.mounter.mounts)
}

func TestSession_UnmountIsIdempotent(t *testing.T) {
	f := newFixture(t)
	s := f.session()
	ctx := context.Background()

	require.NoError(t, s.Unmount(ctx))
	assert.Empty(t, f.mounter.unmounts, "unmounted point must not run the helper")

	require.NoError(t, s.Mount(ctx, "/data/sample.iso"))
	require.NoError(t, s.Unmount(ctx))
	require.NoError(t, s.Unmount(ctx))
	assert.Len(t, f.mounter.unmounts, 1)
}

func TestSession_UnmountPostconditionViolated(t *testing.T) {
	f := newFixture(t)
	f.mounter.stuckMounted = true
	s := f.session()
	ctx := context.Background()

	require.NoError(t, s.Mount(ctx, "/data/sample.iso"))

	err := s.Unmount(ctx)
	assert.ErrorIs(t, err, ErrStillMounted)
	assert.True(t, IsInvariant(err))
}

func TestSession_UnmountObservesExternalUnmount(t *testing.T) {
	f := newFixture(t)
	s := f.session()
	ctx := context.Background()

	require.NoError(t, s.Mount(ctx, "/data/sample.iso"))
	delete(f.table.mounted, f.mp)

	require.NoError(t, s.Unmount(ctx))
	assert.Empty(t, f.mounter.unmounts)
}

func TestSession_StateIsRequeried(t *testing.T) {
	f := newFixture(t)
	s := f.session()
	ctx := context.Background()

	require.NoError(t, s.Mount(ctx, "/data/sample.iso"))
	before := f.table.queries
	require.NoError(t, s.Unmount(ctx))
	assert.Equal(t, before+2, f.table.queries, "unmount queries the table before and after")
}

func TestSession_CloseUnmountsOnce(t *testing.T) {
	f := newFixture(t)
	s := f.session()
	ctx := context.Background()

	require.NoError(t, s.Mount(ctx, "/data/sample.iso"))
	require.NoError(t, s.Close(ctx))
	require.NoError(t, s.Close(ctx))

	assert.Len(t, f.mounter.unmounts, 1)
	assert.Error(t, s.Mount(ctx, "/data/sample.iso"), "released session cannot be reused")
}

func TestSession_CloseWithoutMountLeavesForeignMountAlone(t *testing.T) {
	f := newFixture(t)
	f.table.mounted[f.mp] = true
	s := f.session()

	require.NoError(t, s.Close(context.Background()))
	assert.Empty(t, f.mounter.unmounts)
}

func TestRun_ReleasesOnSuccess(t *testing.T) {
	f := newFixture(t)
	s := f.session()

	err := Run(context.Background(), s, "/data/sample.iso", s.LaunchViewer)
	require.NoError(t, err)

	assert.Len(t, f.mounter.mounts, 1)
	assert.Len(t, f.mounter.unmounts, 1)
	assert.False(t, f.table.mounted[f.mp])
	assert.Equal(t, [][]string{{"echo", f.mp}}, f.runner.calls)
}

func TestRun_ReleasesOnError(t *testing.T) {
	f := newFixture(t)
	s := f.session()
	boom := errors.New("viewer exploded")

	err := Run(context.Background(), s, "/data/sample.iso", func(context.Context) error {
		return boom
	})
	assert.ErrorIs(t, err, boom)
	assert.Len(t, f.mounter.unmounts, 1)
	assert.False(t, f.table.mounted[f.mp])
}

func TestRun_ReleasesOnPanic(t *testing.T) {
	f := newFixture(t)
	s := f.session()

	assert.Panics(t, func() {
		_ = Run(context.Background(), s, "/data/sample.iso", func(context.Context) error {
			panic("viewer crashed")
		})
	})
	assert.Len(t, f.mounter.unmounts, 1)
	assert.False(t, f.table.mounted[f.mp])
}

func TestRun_ReleasesOnCancellation(t *testing.T) {
	f := newFixture(t)
	s := f.session()
	ctx, cancel := context.WithCancel(context.Background())

	err := Run(ctx, s, "/data/sample.iso", func(ctx context.Context) error {
		cancel()
		return s.LaunchViewer(ctx)
	})
	assert.ErrorIs(t, err, context.Canceled)
	assert.Len(t, f.mounter.unmounts, 1)
}

func TestRun_JoinsReleaseError(t *testing.T) {
	f := newFixture(t)
	f.mounter.stuckMounted = true
	s := f.session()
	boom := errors.New("viewer exploded")

	err := Run(context.Background(), s, "/data/sample.iso", func(context.Context) error {
		return boom
	})
	assert.ErrorIs(t, err, boom)
	assert.ErrorIs(t, err, ErrStillMounted)
}

func TestRun_BusyMountPointSkipsBody(t *testing.T) {
	f := newFixture(t)
	f.table.mounted[f.mp] = true
	s := f.session()
	called := false

	err := Run(context.Background(), s, "/data/sample.iso", func(context.Context) error {
		called = true
		return nil
	})
	assert.ErrorIs(t, err, ErrBusy)
	assert.False(t, called)
	assert.Empty(t, f.mounter.unmounts, "a mount we did not make is not ours to release")
}

func TestNew_AssignsID(t *testing.T) {
	f := newFixture(t)
	a, b := f.session(), f.session()
	assert.Len(t, a.ID(), 8)
	assert.NotEqual(t, a.ID(), b.ID())
	assert.Equal(t, f.mp, a.MountPoint())
}
