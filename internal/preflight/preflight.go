// Package preflight verifies that the external programs and devices the
// browser depends on are present. It runs once at startup and fails fast.
package preflight

import (
	"fmt"
	"os/exec"

	"golang.org/x/sys/unix"

	"github.com/jlettvin/browseiso/internal/log"
)

// FuseDevice is the character device FUSE helpers open
const FuseDevice = "/dev/fuse"

// installHints maps known programs to the package that provides them
var installHints = map[string]string{
	"fuseiso":     "sudo apt-get install fuseiso",
	"fusermount":  "sudo apt-get install fuse",
	"fusermount3": "sudo apt-get install fuse3",
	"thunar":      "sudo apt-get install thunar",
	"nautilus":    "sudo apt-get install nautilus",
}

// MissingDependencyError reports a required program that is not on $PATH
type MissingDependencyError struct {
	Program string
	Hint    string
}

func (e *MissingDependencyError) Error() string {
	return fmt.Sprintf("missing dependency %q (try %s)", e.Program, e.Hint)
}

// Checker looks up programs on the system path
type Checker struct {
	lookPath func(string) (string, error)
}

// NewChecker creates a checker backed by exec.LookPath
func NewChecker() *Checker {
	return &Checker{lookPath: exec.LookPath}
}

// RequireAll returns a *MissingDependencyError for the first program in
// names that cannot be found. Empty names are ignored.
func (c *Checker) RequireAll(names []string) error {
	for _, name := range names {
		if name == "" {
			continue
		}

		path, err := c.lookPath(name)
		if err != nil {
			return &MissingDependencyError{Program: name, Hint: hintFor(name)}
		}

		log.Debug("found dependency", "program", name, "path", path)
	}
	return nil
}

func hintFor(name string) string {
	if hint, ok := installHints[name]; ok {
		return hint
	}
	return fmt.Sprintf("installing the package that provides %s", name)
}

// CheckFuseDevice verifies the current user can open the FUSE device.
// Unprivileged FUSE mounts need read/write access to it, which on most
// distributions means membership in the fuse group.
func CheckFuseDevice() error {
	return checkDevice(FuseDevice)
}

func checkDevice(path string) error {
	if err := unix.Access(path, unix.R_OK|unix.W_OK); err != nil {
		return fmt.Errorf("cannot access %s: %w (try: sudo adduser $USER fuse)", path, err)
	}
	return nil
}
