package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/urfave/cli/v3"

	"github.com/jlettvin/browseiso/internal/browse"
	"github.com/jlettvin/browseiso/internal/config"
	"github.com/jlettvin/browseiso/internal/log"
	"github.com/jlettvin/browseiso/internal/mount"
	"github.com/jlettvin/browseiso/internal/picker"
	"github.com/jlettvin/browseiso/internal/preflight"
	"github.com/jlettvin/browseiso/internal/runner"
	"github.com/jlettvin/browseiso/internal/session"
	"github.com/jlettvin/browseiso/internal/version"
)

func main() {
	cmd := &cli.Command{
		Name:      version.Program,
		Usage:     "Browse ISO images through a temporary FUSE mount",
		ArgsUsage: "[DIR|URI ...]",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "viewer",
				Aliases: []string{"b"},
				Usage:   "File browser launched on the mount point",
			},
			&cli.BoolFlag{
				Name:    "cleanup",
				Aliases: []string{"c"},
				Usage:   "Remove preview thumbnails after each archive is closed",
			},
			&cli.StringFlag{
				Name:    "mount",
				Aliases: []string{"m"},
				Usage:   "Mount point for archives (default: " + config.DefaultMountPoint + ")",
			},
			&cli.BoolFlag{
				Name:    "verbose",
				Aliases: []string{"v"},
				Usage:   "Trace activity and echo external commands",
			},
			&cli.StringFlag{
				Name:  "config",
				Usage: "Configuration file path",
				Value: config.DefaultConfigPath,
			},
			&cli.StringFlag{
				Name:    "picker",
				Aliases: []string{"p"},
				Usage:   "File chooser: auto, tui or portal",
			},
			&cli.BoolFlag{
				Name:    "version",
				Aliases: []string{"V"},
				Usage:   "Print version information",
			},
		},
		Action: run,
		Commands: []*cli.Command{
			{
				Name:      "open",
				Usage:     "Browse the given archives in order without asking",
				ArgsUsage: "ARCHIVE ...",
				Action:    runOpen,
			},
		},
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	err := cmd.Run(ctx, os.Args)
	stop()

	code, msg := exitStatus(err)
	if msg != "" {
		fmt.Fprintln(os.Stderr, msg)
	}
	os.Exit(code)
}

// exitStatus maps the result of a run to a process exit code and the
// diagnostic to print. A mount-point invariant violation is reported even
// when it happened while shutting down after an interrupt.
func exitStatus(err error) (int, string) {
	switch {
	case err == nil:
		return 0, ""
	case session.IsInvariant(err):
		return 1, fmt.Sprintf("error: %v", err)
	case errors.Is(err, context.Canceled):
		return 130, "interrupted"
	default:
		return 1, fmt.Sprintf("error: %v", err)
	}
}

func run(ctx context.Context, cmd *cli.Command) error {
	if cmd.Bool("version") {
		fmt.Println(version.String())
		return nil
	}

	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}

	p, err := picker.New(cfg.Picker, cfg.ArchiveExtensions)
	if err != nil {
		return fmt.Errorf("create picker: %w", err)
	}
	if c, ok := p.(io.Closer); ok {
		defer c.Close()
	}

	loop, err := newLoop(cfg, p)
	if err != nil {
		return err
	}
	return loop.RunAll(ctx, cmd.Args().Slice())
}

func runOpen(ctx context.Context, cmd *cli.Command) error {
	if cmd.Args().Len() == 0 {
		return fmt.Errorf("open: at least one archive is required")
	}

	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}

	archives := make([]string, 0, cmd.Args().Len())
	for _, arg := range cmd.Args().Slice() {
		abs, err := filepath.Abs(arg)
		if err != nil {
			return fmt.Errorf("resolve %s: %w", arg, err)
		}
		archives = append(archives, abs)
	}

	loop, err := newLoop(cfg, picker.NewStatic(archives...))
	if err != nil {
		return err
	}

	start, err := browse.StartURI(filepath.Dir(archives[0]))
	if err != nil {
		return err
	}
	return loop.Run(ctx, start)
}

// loadConfig builds the effective configuration from the config file and
// the command line
func loadConfig(cmd *cli.Command) (*config.Config, error) {
	log.Setup(cmd.Bool("verbose"))

	cfg, err := config.Load(cmd.String("config"))
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}

	cfg.Merge(
		cmd.String("mount"),
		cmd.String("viewer"),
		cmd.String("picker"),
		cmd.Bool("cleanup"),
		cmd.Bool("verbose"),
	)

	if err := cfg.ApplyDefaults(); err != nil {
		return nil, fmt.Errorf("apply defaults: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	// the config file may turn on verbose output too
	log.Setup(cfg.Verbose)

	log.Debug("configuration loaded",
		"mount_point", cfg.MountPoint,
		"viewer", cfg.Viewer,
		"picker", cfg.Picker,
		"cleanup", cfg.Cleanup,
	)
	return cfg, nil
}

// newLoop checks external dependencies and wires the session loop
func newLoop(cfg *config.Config, p picker.Picker) (*browse.Loop, error) {
	tmpl, err := cfg.Templates()
	if err != nil {
		return nil, err
	}

	r := runner.NewExecRunner(cfg.Verbose)
	mounter := mount.NewHelperMounter(tmpl.Mount, tmpl.Unmount, r)
	table := mount.NewInfoTable()

	if err := preflight.NewChecker().RequireAll(mounter.Programs()); err != nil {
		return nil, err
	}
	if cfg.ShouldCheckFuse() {
		if err := preflight.CheckFuseDevice(); err != nil {
			return nil, err
		}
	}

	viewer := session.Viewer{Name: cfg.Viewer, Command: tmpl.Viewer}
	return browse.New(*cfg, p, func() *session.Session {
		return session.New(cfg.MountPoint, viewer, mounter, table, r)
	}), nil
}
