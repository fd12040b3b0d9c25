// Package picker asks the user to choose an archive image. Implementations
// range from a terminal file browser to the desktop's native file chooser.
package picker

import (
	"context"
	"fmt"
	"net/url"
	"os"
	"path/filepath"

	"github.com/mattn/go-isatty"

	"github.com/jlettvin/browseiso/internal/log"
)

// Picker kinds accepted by New
const (
	KindAuto   = "auto"
	KindTUI    = "tui"
	KindPortal = "portal"
)

// Kinds lists the valid picker kinds
var Kinds = []string{KindAuto, KindTUI, KindPortal}

// Picker chooses an archive. defaultPath is the previous selection, if any,
// and startURI the directory the search starts in. ok is false with a nil
// error when the user cancels.
type Picker interface {
	Choose(ctx context.Context, defaultPath, startURI string) (path string, ok bool, err error)
}

// New creates the picker of the given kind. KindAuto picks the terminal
// browser when stdin is a terminal and the desktop portal when a session
// bus is available.
func New(kind string, extensions []string) (Picker, error) {
	switch kind {
	case KindTUI:
		return NewTUI(extensions), nil
	case KindPortal:
		return newPortalPicker(extensions)
	case KindAuto, "":
		if isatty.IsTerminal(os.Stdin.Fd()) || isatty.IsCygwinTerminal(os.Stdin.Fd()) {
			log.Debug("stdin is a terminal, using terminal picker")
			return NewTUI(extensions), nil
		}
		if os.Getenv("DBUS_SESSION_BUS_ADDRESS") != "" {
			log.Debug("session bus available, using desktop portal picker")
			return newPortalPicker(extensions)
		}
		return nil, fmt.Errorf("no picker available: stdin is not a terminal and no session bus is set")
	default:
		return nil, fmt.Errorf("unknown picker: %s (use 'auto', 'tui' or 'portal')", kind)
	}
}

// newPortalPicker returns a nil Picker when the session bus is unreachable
func newPortalPicker(extensions []string) (Picker, error) {
	p, err := NewPortal(extensions)
	if err != nil {
		return nil, err
	}
	return p, nil
}

// DirFromURI returns the local directory named by a file:// URI, or an
// empty string for URIs that do not name a local path
func DirFromURI(uri string) string {
	u, err := url.Parse(uri)
	if err != nil || u.Scheme != "file" {
		return ""
	}
	return u.Path
}

// startDirectory picks where browsing begins: next to the previous
// selection when there is one, otherwise the start URI's directory
func startDirectory(defaultPath, startURI string) string {
	if defaultPath != "" {
		return filepath.Dir(defaultPath)
	}
	if dir := DirFromURI(startURI); dir != "" {
		return dir
	}
	return "."
}
