//go:build integration

package vm

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/exec"
	"path/filepath"
	"strconv"
	"sync"
	"time"

	"github.com/pkg/sftp"
	"golang.org/x/crypto/ssh"

	"github.com/jlettvin/browseiso/tests/integration/log"
)

const defaultImage = "../images/fedora-fuseiso.qcow2"

// Config describes the guest to boot
type Config struct {
	// Image is the base qcow2 image; the guest writes to a throwaway overlay
	Image    string
	SSHPort  int
	User     string
	Password string
	// BootTimeout bounds how long WaitForSSH keeps retrying
	BootTimeout time.Duration
	MemoryMB    int
	CPUs        int
}

// DefaultConfig returns the guest used by the suite. VM_IMAGE and
// VM_SSH_PORT override the image and the forwarded SSH port.
func DefaultConfig() (Config, error) {
	image := os.Getenv("VM_IMAGE")
	if image == "" {
		image = defaultImage
	}
	if _, err := os.Stat(image); errors.Is(err, os.ErrNotExist) {
		return Config{}, fmt.Errorf("VM image %s not found: build one with fuseiso and genisoimage installed or set VM_IMAGE", image)
	}
	abs, err := filepath.Abs(image)
	if err != nil {
		return Config{}, fmt.Errorf("resolve image path: %w", err)
	}

	port := 10022
	if v := os.Getenv("VM_SSH_PORT"); v != "" {
		if port, err = strconv.Atoi(v); err != nil {
			return Config{}, fmt.Errorf("invalid VM_SSH_PORT %q: %w", v, err)
		}
	}

	return Config{
		Image:       abs,
		SSHPort:     port,
		User:        "fedora",
		Password:    "fedora",
		BootTimeout: time.Minute,
		MemoryMB:    1024,
		CPUs:        2,
	}, nil
}

// QEMU is a guest booted from an overlay of the base image
type QEMU struct {
	mu      sync.Mutex
	cfg     Config
	proc    *exec.Cmd
	client  *ssh.Client
	overlay string
}

// StartQEMUVM boots the default guest
func StartQEMUVM(ctx context.Context) (*QEMU, error) {
	cfg, err := DefaultConfig()
	if err != nil {
		return nil, err
	}
	return Start(ctx, cfg)
}

// Start creates an overlay of cfg.Image and boots it. Call WaitForSSH
// before running commands.
func Start(ctx context.Context, cfg Config) (*QEMU, error) {
	overlay, err := createOverlay(ctx, cfg.Image)
	if err != nil {
		return nil, err
	}

	log.Status("Starting VM with image: %s", cfg.Image)
	proc := exec.CommandContext(ctx, "qemu-system-x86_64", qemuArgs(cfg, overlay)...)
	proc.Stdout = io.Discard
	proc.Stderr = io.Discard

	if err := proc.Start(); err != nil {
		_ = os.Remove(overlay)
		return nil, fmt.Errorf("start qemu: %w", err)
	}

	return &QEMU{cfg: cfg, proc: proc, overlay: overlay}, nil
}

// createOverlay makes a copy-on-write layer so the base image stays clean
func createOverlay(ctx context.Context, image string) (string, error) {
	overlay := filepath.Join(os.TempDir(), fmt.Sprintf("browseiso-vm-%d.qcow2", os.Getpid()))
	out, err := exec.CommandContext(ctx, "qemu-img", "create",
		"-f", "qcow2", "-b", image, "-F", "qcow2", overlay,
	).CombinedOutput()
	if err != nil {
		return "", fmt.Errorf("create overlay: %w: %s", err, out)
	}
	return overlay, nil
}

func qemuArgs(cfg Config, overlay string) []string {
	return []string{
		"-m", fmt.Sprintf("%dM", cfg.MemoryMB),
		"-smp", strconv.Itoa(cfg.CPUs),
		"-machine", "type=pc,accel=kvm",
		"-cpu", "host",
		"-drive", fmt.Sprintf("file=%s,if=virtio,cache=unsafe,format=qcow2", overlay),
		"-netdev", fmt.Sprintf("user,id=net0,hostfwd=tcp::%d-:22", cfg.SSHPort),
		"-device", "virtio-net,netdev=net0",
		"-nographic",
	}
}

// WaitForSSH retries connecting until the guest accepts SSH logins
func (vm *QEMU) WaitForSSH(ctx context.Context) error {
	clientCfg := &ssh.ClientConfig{
		User:            vm.cfg.User,
		Auth:            []ssh.AuthMethod{ssh.Password(vm.cfg.Password)},
		HostKeyCallback: ssh.InsecureIgnoreHostKey(),
		Timeout:         5 * time.Second,
	}
	addr := fmt.Sprintf("localhost:%d", vm.cfg.SSHPort)

	ctx, cancel := context.WithTimeout(ctx, vm.cfg.BootTimeout)
	defer cancel()

	log.Status("Waiting for SSH on %s...", addr)
	ticker := time.NewTicker(2 * time.Second)
	defer ticker.Stop()

	for {
		client, err := ssh.Dial("tcp", addr, clientCfg)
		if err == nil {
			vm.mu.Lock()
			vm.client = client
			vm.mu.Unlock()
			return nil
		}

		select {
		case <-ctx.Done():
			return fmt.Errorf("ssh not available after %v: %w", vm.cfg.BootTimeout, err)
		case <-ticker.C:
		}
	}
}

// Run executes a shell command in the guest and returns its combined output
func (vm *QEMU) Run(cmd string) (string, error) {
	return vm.RunContext(context.Background(), cmd)
}

// RunContext executes a shell command in the guest. When ctx ends first the
// SSH session is closed and the output gathered so far is returned with
// ctx's error.
func (vm *QEMU) RunContext(ctx context.Context, cmd string) (string, error) {
	vm.mu.Lock()
	client := vm.client
	vm.mu.Unlock()

	if client == nil {
		return "", fmt.Errorf("ssh client not connected")
	}

	session, err := client.NewSession()
	if err != nil {
		return "", fmt.Errorf("new session: %w", err)
	}
	defer func() { _ = session.Close() }()

	var out bytes.Buffer
	session.Stdout = &out
	session.Stderr = &out

	if err := session.Start(cmd); err != nil {
		return "", fmt.Errorf("start %q: %w", cmd, err)
	}

	done := make(chan error, 1)
	go func() { done <- session.Wait() }()

	select {
	case err := <-done:
		return out.String(), err
	case <-ctx.Done():
		_ = session.Close()
		<-done
		return out.String(), ctx.Err()
	}
}

// CopyFile uploads a local executable to the guest
func (vm *QEMU) CopyFile(localPath, remotePath string) error {
	data, err := os.ReadFile(localPath)
	if err != nil {
		return fmt.Errorf("read file: %w", err)
	}
	return vm.WriteFile(remotePath, data, 0755)
}

// WriteFile writes data to remotePath in the guest over SFTP, creating
// parent directories
func (vm *QEMU) WriteFile(remotePath string, data []byte, mode os.FileMode) error {
	vm.mu.Lock()
	defer vm.mu.Unlock()

	if vm.client == nil {
		return fmt.Errorf("ssh client not connected")
	}

	client, err := sftp.NewClient(vm.client)
	if err != nil {
		return fmt.Errorf("create sftp client: %w", err)
	}
	defer func() { _ = client.Close() }()

	if err := client.MkdirAll(filepath.Dir(remotePath)); err != nil {
		return fmt.Errorf("create directory for %s: %w", remotePath, err)
	}

	f, err := client.OpenFile(remotePath, os.O_WRONLY|os.O_CREATE|os.O_TRUNC)
	if err != nil {
		return fmt.Errorf("open %s: %w", remotePath, err)
	}
	defer func() { _ = f.Close() }()

	if _, err := f.Write(data); err != nil {
		return fmt.Errorf("write %s: %w", remotePath, err)
	}
	if err := f.Chmod(mode); err != nil {
		return fmt.Errorf("chmod %s: %w", remotePath, err)
	}

	return nil
}

// Stop powers the guest off, kills QEMU and removes the overlay
func (vm *QEMU) Stop() {
	vm.mu.Lock()
	defer vm.mu.Unlock()

	if vm.client != nil {
		if session, err := vm.client.NewSession(); err == nil {
			_ = session.Run("sudo systemctl poweroff")
			_ = session.Close()
			time.Sleep(2 * time.Second)
		}
		_ = vm.client.Close()
		vm.client = nil
	}

	log.Status("Shutting down VM...")
	if vm.proc != nil && vm.proc.Process != nil {
		_ = vm.proc.Process.Kill()
		_ = vm.proc.Wait()
		vm.proc = nil
	}

	if vm.overlay != "" {
		_ = os.Remove(vm.overlay)
		vm.overlay = ""
	}
}
