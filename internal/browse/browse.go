// Package browse drives the select, mount, browse, unmount cycle until the
// user cancels the picker.
package browse

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"path/filepath"
	"strings"

	"github.com/jlettvin/browseiso/internal/cleanup"
	"github.com/jlettvin/browseiso/internal/config"
	"github.com/jlettvin/browseiso/internal/log"
	"github.com/jlettvin/browseiso/internal/picker"
	"github.com/jlettvin/browseiso/internal/session"
	"github.com/jlettvin/browseiso/internal/validation"
)

// State is a step of the session loop
type State int

const (
	Selecting State = iota
	Mounting
	Browsing
	Unmounting
	Done
)

func (s State) String() string {
	switch s {
	case Selecting:
		return "selecting"
	case Mounting:
		return "mounting"
	case Browsing:
		return "browsing"
	case Unmounting:
		return "unmounting"
	case Done:
		return "done"
	default:
		return fmt.Sprintf("state(%d)", int(s))
	}
}

// Loop repeatedly asks for an archive and browses it in a fresh session
type Loop struct {
	cfg        config.Config
	picker     picker.Picker
	newSession func() *session.Session
	clean      func(path, cacheRoot string, enabled bool) int
}

// New creates a loop. newSession is called once per mount cycle.
func New(cfg config.Config, p picker.Picker, newSession func() *session.Session) *Loop {
	return &Loop{
		cfg:        cfg,
		picker:     p,
		newSession: newSession,
		clean:      cleanup.MaybeClean,
	}
}

// RunAll runs the loop once per start directory or URI, defaulting to the
// current directory
func (l *Loop) RunAll(ctx context.Context, args []string) error {
	if len(args) == 0 {
		args = []string{"."}
	}

	for _, arg := range args {
		uri, err := StartURI(arg)
		if err != nil {
			return err
		}
		log.Debug("browsing from", "uri", uri)

		if err := l.Run(ctx, uri); err != nil {
			return err
		}
	}
	return nil
}

// Run loops until the picker is cancelled. It returns an error only for
// fatal conditions: picker failures, mount-point invariant violations and
// cancellation of ctx.
func (l *Loop) Run(ctx context.Context, startURI string) error {
	var (
		visited string
		archive string
		state   = Selecting
	)

	for {
		log.Debug("session loop", "state", state)

		switch state {
		case Selecting:
			path, ok, err := l.picker.Choose(ctx, visited, startURI)
			if err != nil {
				return fmt.Errorf("choose archive: %w", err)
			}
			if !ok {
				state = Done
				continue
			}

			if err := validation.ValidateArchivePath(path, l.cfg.ArchiveExtensions); err != nil {
				log.Warn("selection is illegal", "path", path, "reason", err)
				visited = ""
				continue
			}

			archive = path
			visited = path
			state = Mounting

		case Mounting:
			if err := l.browse(ctx, archive); err != nil {
				return err
			}
			state = Unmounting

		case Unmounting:
			if n := l.clean(l.cfg.ThumbnailDir, l.cfg.CacheRoot, l.cfg.Cleanup); n > 0 {
				log.Info("removed thumbnails", "path", l.cfg.ThumbnailDir, "count", n)
			}
			state = Selecting

		case Done:
			return ctx.Err()
		}
	}
}

// browse mounts archive, runs the viewer and releases the mount
func (l *Loop) browse(ctx context.Context, archive string) error {
	s := l.newSession()
	log.Debug("starting session", "session", s.ID(), "archive", archive)

	err := session.Run(ctx, s, archive, func(ctx context.Context) error {
		log.Debug("session loop", "state", Browsing, "session", s.ID())
		return s.LaunchViewer(ctx)
	})
	if errors.Is(err, context.Canceled) && !session.IsInvariant(err) {
		return ctx.Err()
	}
	if err != nil {
		return fmt.Errorf("session %s: %w", s.ID(), err)
	}
	return nil
}

// StartURI normalizes a start argument into a URI. file:// and http(s)://
// URIs are kept; anything else is treated as a local path.
func StartURI(arg string) (string, error) {
	for _, prefix := range []string{"file://", "http://", "https://"} {
		if strings.HasPrefix(arg, prefix) {
			return arg, nil
		}
	}

	abs, err := filepath.Abs(arg)
	if err != nil {
		return "", fmt.Errorf("resolve %s: %w", arg, err)
	}
	return (&url.URL{Scheme: "file", Path: abs}).String(), nil
}
