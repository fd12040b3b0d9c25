// Package runner executes external programs and classifies how they ended.
package runner

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/exec"
	"syscall"
	"time"

	"github.com/jlettvin/browseiso/internal/log"
)

// viewerGrace is how long a cancelled command gets between SIGTERM and SIGKILL
const viewerGrace = 5 * time.Second

var errEmptyCommand = errors.New("empty command")

// Runner runs an external command and blocks until it exits
type Runner interface {
	Run(ctx context.Context, argv []string) Result
}

// ExecRunner implements Runner with os/exec. The child shares the
// caller's terminal unless the streams are overridden.
type ExecRunner struct {
	Stdin  io.Reader
	Stdout io.Writer
	Stderr io.Writer
	// Echo prints every command line before it runs
	Echo bool
}

// NewExecRunner creates a runner attached to the process's standard streams
func NewExecRunner(echo bool) *ExecRunner {
	return &ExecRunner{
		Stdin:  os.Stdin,
		Stdout: os.Stdout,
		Stderr: os.Stderr,
		Echo:   echo,
	}
}

// Run executes argv. It never fails: non-zero exits, signals and spawn
// errors are reported through the returned Result and logged.
func (r *ExecRunner) Run(ctx context.Context, argv []string) Result {
	if len(argv) == 0 {
		res := Result{Kind: SpawnError, Err: errEmptyCommand}
		log.Error("execution failed", "error", res.Err)
		return res
	}

	line := Quote(argv)
	if r.Echo {
		log.Info("running command", "cmd", line)
	} else {
		log.Debug("running command", "cmd", line)
	}

	cmd := exec.CommandContext(ctx, argv[0], argv[1:]...)
	cmd.Stdin = r.Stdin
	cmd.Stdout = r.Stdout
	cmd.Stderr = r.Stderr
	cmd.Cancel = func() error {
		return cmd.Process.Signal(syscall.SIGTERM)
	}
	cmd.WaitDelay = viewerGrace

	res := classify(cmd.Run())
	switch res.Kind {
	case Success:
		log.Debug("command finished", "cmd", line)
	case Signaled:
		log.Warn("child was terminated by signal", "cmd", line, "signal", res.Code, "result", res.String())
	case Failed:
		log.Warn("child returned non-zero status", "cmd", line, "status", res.Code)
	case SpawnError:
		log.Error("execution failed", "cmd", line, "error", res.Err)
	}
	return res
}

// classify maps the error returned by exec.Cmd.Run onto a Result
func classify(err error) Result {
	if err == nil {
		return Result{Kind: Success}
	}

	var exitErr *exec.ExitError
	if errors.As(err, &exitErr) {
		if ws, ok := exitErr.Sys().(syscall.WaitStatus); ok && ws.Signaled() {
			return Result{Kind: Signaled, Code: int(ws.Signal())}
		}
		return Result{Kind: Failed, Code: exitErr.ExitCode()}
	}

	return Result{Kind: SpawnError, Err: fmt.Errorf("start: %w", err)}
}
