package config

import (
	"fmt"
	"os"
	"slices"
	"strings"

	"github.com/BurntSushi/toml"
	"github.com/mitchellh/go-homedir"

	"github.com/jlettvin/browseiso/internal/picker"
	"github.com/jlettvin/browseiso/internal/runner"
	"github.com/jlettvin/browseiso/internal/validation"
)

const (
	// DefaultConfigPath is the default location for the config file
	DefaultConfigPath = "~/.config/browseiso/config.toml"
	// DefaultMountPoint is where archives are mounted
	DefaultMountPoint = "~/.browseISO"
	// DefaultCacheRoot is the root under which preview thumbnails live
	DefaultCacheRoot = "~/.cache/thumbnails"
	// DefaultThumbnailDir is the thumbnail directory purged by cleanup
	DefaultThumbnailDir = "~/.cache/thumbnails/normal"
	// DefaultViewer is the default file browser
	DefaultViewer = "thunar"
	// DefaultMountCommand mounts an ISO image through FUSE
	DefaultMountCommand = "fuseiso {archive} {mountpoint}"
	// DefaultUnmountCommand releases a FUSE mount
	DefaultUnmountCommand = "fusermount -u {mountpoint}"
	// DefaultViewerCommand launches the viewer on the mount point
	DefaultViewerCommand = "{viewer} {mountpoint}"
)

// DefaultViewers is the viewer allow-list used when none is configured
var DefaultViewers = []string{"nautilus", "google-chrome", "thunar", "xdg-open"}

// Config holds the browser configuration. Once validated it is treated as
// immutable and passed around by value.
type Config struct {
	// MountPoint is the directory archives are mounted on
	MountPoint string `toml:"mount_point"`
	// CacheRoot bounds where cleanup may delete files
	CacheRoot string `toml:"cache_root"`
	// ThumbnailDir is the directory whose files cleanup removes
	ThumbnailDir string `toml:"thumbnail_dir"`
	// Viewer is the program launched on the mount point
	Viewer string `toml:"viewer"`
	// Viewers is the allow-list Viewer must belong to
	Viewers []string `toml:"viewers"`
	// Cleanup removes preview thumbnails after each session
	Cleanup bool `toml:"cleanup"`
	// Verbose traces activity
	Verbose bool `toml:"verbose"`
	// Picker selects the file chooser: auto, tui or portal
	Picker string `toml:"picker"`
	// ArchiveExtensions lists the accepted archive file extensions
	ArchiveExtensions []string `toml:"archive_extensions"`
	// MountCommand, UnmountCommand and ViewerCommand are command templates
	MountCommand   string `toml:"mount_command"`
	UnmountCommand string `toml:"unmount_command"`
	ViewerCommand  string `toml:"viewer_command"`
	// CheckFuse verifies /dev/fuse is usable before starting
	CheckFuse *bool `toml:"check_fuse"`
}

// Load loads configuration from a TOML file
// Returns an empty config if the file doesn't exist
func Load(path string) (*Config, error) {
	cfg := &Config{}

	expanded, err := homedir.Expand(path)
	if err != nil {
		return nil, fmt.Errorf("expand config path: %w", err)
	}

	data, err := os.ReadFile(expanded)
	if err != nil {
		if os.IsNotExist(err) {
			return cfg, nil
		}
		return nil, fmt.Errorf("read config file: %w", err)
	}

	if err := toml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parse config file: %w", err)
	}

	return cfg, nil
}

// Merge merges CLI flags into the config, with CLI flags taking precedence
// over config file values. Empty CLI values are ignored, and boolean flags
// can only switch a setting on.
func (c *Config) Merge(mountPoint, viewer, pickerKind string, cleanup, verbose bool) {
	if mountPoint != "" {
		c.MountPoint = mountPoint
	}
	if viewer != "" {
		c.Viewer = viewer
	}
	if pickerKind != "" {
		c.Picker = pickerKind
	}
	if cleanup {
		c.Cleanup = true
	}
	if verbose {
		c.Verbose = true
	}
}

// ApplyDefaults applies default values for any unset fields and expands
// ~ in paths
func (c *Config) ApplyDefaults() error {
	if c.MountPoint == "" {
		c.MountPoint = DefaultMountPoint
	}
	if c.CacheRoot == "" {
		c.CacheRoot = DefaultCacheRoot
	}
	if c.ThumbnailDir == "" {
		c.ThumbnailDir = DefaultThumbnailDir
	}
	if c.Viewer == "" {
		c.Viewer = DefaultViewer
	}
	if len(c.Viewers) == 0 {
		c.Viewers = slices.Clone(DefaultViewers)
	}
	if c.Picker == "" {
		c.Picker = picker.KindAuto
	}
	if len(c.ArchiveExtensions) == 0 {
		c.ArchiveExtensions = []string{validation.DefaultArchiveExtension}
	}
	if c.MountCommand == "" {
		c.MountCommand = DefaultMountCommand
	}
	if c.UnmountCommand == "" {
		c.UnmountCommand = DefaultUnmountCommand
	}
	if c.ViewerCommand == "" {
		c.ViewerCommand = DefaultViewerCommand
	}
	if c.CheckFuse == nil {
		enabled := true
		c.CheckFuse = &enabled
	}

	for _, p := range []*string{&c.MountPoint, &c.CacheRoot, &c.ThumbnailDir} {
		expanded, err := homedir.Expand(*p)
		if err != nil {
			return fmt.Errorf("expand %s: %w", *p, err)
		}
		*p = expanded
	}

	return nil
}

// ShouldCheckFuse returns whether the FUSE device check is enabled.
// Defaults to true when not explicitly set.
func (c *Config) ShouldCheckFuse() bool {
	if c.CheckFuse == nil {
		return true
	}
	return *c.CheckFuse
}

// Validate validates the configuration
func (c *Config) Validate() error {
	if c.MountPoint == "" {
		return fmt.Errorf("mount point is required (use --mount or set 'mount_point' in config file)")
	}

	if !slices.Contains(c.Viewers, c.Viewer) {
		return fmt.Errorf("%s: unknown viewer (allowed: %v)", c.Viewer, c.Viewers)
	}

	if !slices.Contains(picker.Kinds, c.Picker) {
		return fmt.Errorf("picker must be one of %v, got %q", picker.Kinds, c.Picker)
	}

	for _, ext := range c.ArchiveExtensions {
		if len(ext) < 2 || !strings.HasPrefix(ext, ".") || strings.ContainsRune(ext[1:], '.') {
			return fmt.Errorf("archive extension %q must be a single extension starting with '.' (e.g. %q)", ext, validation.DefaultArchiveExtension)
		}
	}

	if _, err := c.Templates(); err != nil {
		return err
	}

	return nil
}

// Templates holds the parsed command templates
type Templates struct {
	Mount   runner.Template
	Unmount runner.Template
	Viewer  runner.Template
}

// Templates parses the command templates and checks each references the
// placeholders it needs
func (c *Config) Templates() (Templates, error) {
	var t Templates
	commands := []struct {
		name     string
		raw      string
		dst      *runner.Template
		required []string
	}{
		{"mount_command", c.MountCommand, &t.Mount, []string{runner.Archive, runner.MountPoint}},
		{"unmount_command", c.UnmountCommand, &t.Unmount, []string{runner.MountPoint}},
		{"viewer_command", c.ViewerCommand, &t.Viewer, []string{runner.MountPoint}},
	}

	for _, cmd := range commands {
		tmpl, err := runner.ParseTemplate(cmd.raw)
		if err != nil {
			return Templates{}, fmt.Errorf("invalid %s: %w", cmd.name, err)
		}
		for _, ph := range cmd.required {
			if !tmpl.Has(ph) {
				return Templates{}, fmt.Errorf("invalid %s: %q must reference %s", cmd.name, cmd.raw, ph)
			}
		}
		*cmd.dst = tmpl
	}

	return t, nil
}
