package runner

import (
	"fmt"
	"syscall"

	"golang.org/x/sys/unix"
)

// Kind classifies how an external command ended
type Kind int

const (
	// Success means the command exited with status 0
	Success Kind = iota
	// Signaled means the command was terminated by a signal
	Signaled
	// Failed means the command exited with a non-zero status
	Failed
	// SpawnError means the command could not be started at all
	SpawnError
)

func (k Kind) String() string {
	switch k {
	case Success:
		return "success"
	case Signaled:
		return "signaled"
	case Failed:
		return "failed"
	case SpawnError:
		return "spawn-error"
	default:
		return fmt.Sprintf("kind(%d)", int(k))
	}
}

// Result is the outcome of running an external command
type Result struct {
	Kind Kind
	// Code is the exit status for Failed and the signal number for Signaled
	Code int
	// Err is set for SpawnError
	Err error
}

// OK reports whether the command exited successfully
func (r Result) OK() bool {
	return r.Kind == Success
}

func (r Result) String() string {
	switch r.Kind {
	case Success:
		return "exited successfully"
	case Signaled:
		name := unix.SignalName(syscall.Signal(r.Code))
		if name == "" {
			name = "unknown"
		}
		return fmt.Sprintf("terminated by signal %d (%s)", r.Code, name)
	case Failed:
		return fmt.Sprintf("exited with status %d", r.Code)
	case SpawnError:
		return fmt.Sprintf("could not be started: %v", r.Err)
	default:
		return r.Kind.String()
	}
}
