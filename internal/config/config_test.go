package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/mitchellh/go-homedir"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.toml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0644))
	return path
}

func TestLoad_MissingFile(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "absent.toml"))
	require.NoError(t, err)
	assert.Equal(t, &Config{}, cfg)
}

func TestLoad_ParsesFile(t *testing.T) {
	path := writeConfig(t, `
mount_point = "/mnt/iso"
viewer = "nautilus"
viewers = ["nautilus", "ls"]
cleanup = true
picker = "portal"
archive_extensions = [".iso", ".img"]
mount_command = "fuseiso -p {archive} {mountpoint}"
check_fuse = false
`)

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "/mnt/iso", cfg.MountPoint)
	assert.Equal(t, "nautilus", cfg.Viewer)
	assert.Equal(t, []string{"nautilus", "ls"}, cfg.Viewers)
	assert.True(t, cfg.Cleanup)
	assert.Equal(t, "portal", cfg.Picker)
	assert.Equal(t, []string{".iso", ".img"}, cfg.ArchiveExtensions)
	assert.Equal(t, "fuseiso -p {archive} {mountpoint}", cfg.MountCommand)
	assert.False(t, cfg.ShouldCheckFuse())
}

func TestLoad_InvalidTOML(t *testing.T) {
	_, err := Load(writeConfig(t, `mount_point = `))
	assert.Error(t, err)
}

func TestApplyDefaults(t *testing.T) {
	home, err := homedir.Dir()
	require.NoError(t, err)

	cfg := &Config{}
	require.NoError(t, cfg.ApplyDefaults())

	assert.Equal(t, filepath.Join(home, ".browseISO"), cfg.MountPoint)
	assert.Equal(t, filepath.Join(home, ".cache/thumbnails"), cfg.CacheRoot)
	assert.Equal(t, filepath.Join(home, ".cache/thumbnails/normal"), cfg.ThumbnailDir)
	assert.Equal(t, DefaultViewer, cfg.Viewer)
	assert.Equal(t, DefaultViewers, cfg.Viewers)
	assert.Equal(t, "auto", cfg.Picker)
	assert.Equal(t, []string{".iso"}, cfg.ArchiveExtensions)
	assert.Equal(t, DefaultMountCommand, cfg.MountCommand)
	assert.Equal(t, DefaultUnmountCommand, cfg.UnmountCommand)
	assert.Equal(t, DefaultViewerCommand, cfg.ViewerCommand)
	assert.True(t, cfg.ShouldCheckFuse())
	assert.False(t, cfg.Cleanup)

	require.NoError(t, cfg.Validate())
}

func TestMerge(t *testing.T) {
	cfg := &Config{MountPoint: "/from/file", Viewer: "nautilus", Picker: "tui", Cleanup: true}

	cfg.Merge("", "", "", false, false)
	assert.Equal(t, "/from/file", cfg.MountPoint)
	assert.Equal(t, "nautilus", cfg.Viewer)
	assert.Equal(t, "tui", cfg.Picker)
	assert.True(t, cfg.Cleanup, "unset flag keeps file value")

	cfg.Merge("/from/flag", "thunar", "portal", true, true)
	assert.Equal(t, "/from/flag", cfg.MountPoint)
	assert.Equal(t, "thunar", cfg.Viewer)
	assert.Equal(t, "portal", cfg.Picker)
	assert.True(t, cfg.Verbose)
}

func TestValidate(t *testing.T) {
	valid := func() *Config {
		cfg := &Config{}
		require.NoError(t, cfg.ApplyDefaults())
		return cfg
	}

	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr string
	}{
		{"defaults", func(*Config) {}, ""},
		{"unknown viewer", func(c *Config) { c.Viewer = "konqueror" }, "unknown viewer"},
		{"custom allow-list", func(c *Config) { c.Viewers = []string{"ls"}; c.Viewer = "ls" }, ""},
		{"unknown picker", func(c *Config) { c.Picker = "zenity" }, "picker must be one of"},
		{"empty mount point", func(c *Config) { c.MountPoint = "" }, "mount point is required"},
		{"mount command without archive", func(c *Config) { c.MountCommand = "fuseiso {mountpoint}" }, "must reference {archive}"},
		{"unmount command without mount point", func(c *Config) { c.UnmountCommand = "fusermount -u" }, "must reference {mountpoint}"},
		{"extension without dot", func(c *Config) { c.ArchiveExtensions = []string{"iso"} }, "must be a single extension"},
		{"bare dot extension", func(c *Config) { c.ArchiveExtensions = []string{"."} }, "must be a single extension"},
		{"compound extension", func(c *Config) { c.ArchiveExtensions = []string{".iso.gz"} }, "must be a single extension"},
		{"extra extensions", func(c *Config) { c.ArchiveExtensions = []string{".iso", ".IMG"} }, ""},
		{"unterminated quote", func(c *Config) { c.ViewerCommand = `"{viewer} {mountpoint}` }, "invalid viewer_command"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := valid()
			tt.mutate(cfg)
			err := cfg.Validate()
			if tt.wantErr == "" {
				assert.NoError(t, err)
				return
			}
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}

func TestTemplates(t *testing.T) {
	cfg := &Config{}
	require.NoError(t, cfg.ApplyDefaults())

	tmpl, err := cfg.Templates()
	require.NoError(t, err)
	assert.Equal(t, "fuseiso", tmpl.Mount.Program())
	assert.Equal(t, "fusermount", tmpl.Unmount.Program())
	assert.Equal(t, "{viewer}", tmpl.Viewer.Program())
}
