//go:build integration

// Package vm boots the disposable machine browseiso is exercised in.
package vm

import (
	"context"
	"os"
)

// VM is a running machine reachable over SSH
type VM interface {
	Run(cmd string) (string, error)
	RunContext(ctx context.Context, cmd string) (string, error)
	CopyFile(localPath, remotePath string) error
	WriteFile(remotePath string, data []byte, mode os.FileMode) error
	Stop()
	WaitForSSH(ctx context.Context) error
}
