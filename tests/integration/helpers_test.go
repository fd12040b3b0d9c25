//go:build integration

package integration

import (
	"context"
	"fmt"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
)

// env is a per-test sandbox in the VM: its own mount point, thumbnail
// cache and config file
type env struct {
	dir          string
	mountPoint   string
	cacheRoot    string
	thumbnailDir string
	configPath   string
}

// newEnv creates a sandbox and registers cleanup that releases any mount
// left behind by a failing test
func newEnv(t *testing.T, extraConfig string) *env {
	t.Helper()
	dir := fmt.Sprintf("/tmp/browseiso-%s", strings.ReplaceAll(t.Name(), "/", "_"))
	e := &env{
		dir:          dir,
		mountPoint:   dir + "/mnt",
		cacheRoot:    dir + "/cache",
		thumbnailDir: dir + "/cache/normal",
		configPath:   dir + "/config.toml",
	}

	t.Cleanup(func() {
		_, _ = testVM.Run(fmt.Sprintf("fusermount -u %s 2>/dev/null || true", e.mountPoint))
		_, _ = testVM.Run(fmt.Sprintf("rm -rf %s", e.dir))
	})

	config := fmt.Sprintf(`mount_point   = %q
cache_root    = %q
thumbnail_dir = %q
viewer        = "ls"
viewers       = ["ls", "tail"]
%s
`, e.mountPoint, e.cacheRoot, e.thumbnailDir, extraConfig)

	require.NoError(t, testVM.WriteFile(e.configPath, []byte(config), 0644), "write config")
	return e
}

// open runs `browseiso open` on archives inside isoDir
func (e *env) open(t *testing.T, flags string, archives ...string) (string, error) {
	t.Helper()
	paths := make([]string, len(archives))
	for i, a := range archives {
		paths[i] = isoDir + "/" + a
	}
	cmd := fmt.Sprintf("%s --config %s %s open %s", binaryPath, e.configPath, flags, strings.Join(paths, " "))
	ctx, cancel := context.WithTimeout(context.Background(), commandTimeout)
	defer cancel()
	return testVM.RunContext(ctx, cmd)
}

// assertNotMounted verifies nothing is mounted on path
func assertNotMounted(t *testing.T, path string) {
	t.Helper()
	output, _ := testVM.Run(fmt.Sprintf("findmnt -n --mountpoint %s", path))
	require.Empty(t, strings.TrimSpace(output), "%s should not be mounted", path)
}

// assertMounted verifies something is mounted on path
func assertMounted(t *testing.T, path string) {
	t.Helper()
	output, err := testVM.Run(fmt.Sprintf("findmnt -n --mountpoint %s", path))
	require.NoError(t, err, "%s should be mounted", path)
	require.NotEmpty(t, strings.TrimSpace(output), "%s should be mounted", path)
}

// run executes a shell command in the VM and fails the test on error
func run(t *testing.T, cmd string) string {
	t.Helper()
	output, err := testVM.Run(cmd)
	require.NoError(t, err, "%s\n%s", cmd, output)
	return output
}
