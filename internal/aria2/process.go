package aria2

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"runtime"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/handiism/cloudreve-downloader/internal/config"
)

var (
	// ErrNotFound is returned when the aria2 binary cannot be located.
	ErrNotFound = errors.New("aria2 binary not found")

	// ErrNotRunning is returned when aria2 was launched but cannot be detected.
	ErrNotRunning = errors.New("aria2 is not running")
)

// Process controls the lifetime of the external download manager.
type Process interface {
	// IsRunning reports whether a matching process exists.
	IsRunning(ctx context.Context) bool
	// Start launches the process and returns once it is detectable.
	Start(ctx context.Context) error
	// Stop terminates a process previously launched by Start.
	Stop() error
}

// Daemon is the Process implementation backed by the host's process table.
//
// Detection uses pgrep on Unix-like systems and tasklist on Windows. A
// daemon started here keeps running after this program exits.
type Daemon struct {
	binary string
	name   string
	port   int
	secret string
	grace  time.Duration
	// maxConcurrent is passed to aria2 as --max-concurrent-downloads when > 0.
	maxConcurrent int

	mu  sync.Mutex
	cmd *exec.Cmd
}

// NewDaemon creates a Daemon from the aria2 settings. maxConcurrent sets
// how many transfers a daemon started here runs at once; 0 keeps the aria2
// default.
func NewDaemon(cfg config.Aria2Settings, maxConcurrent int) *Daemon {
	return &Daemon{
		binary:        cfg.Binary,
		name:          cfg.ProcessName,
		port:          cfg.Port,
		secret:        cfg.Secret,
		grace:         cfg.StartupGrace,
		maxConcurrent: maxConcurrent,
	}
}

// Args returns the command line arguments used to launch aria2: RPC enabled
// on the configured local port, not listening on external interfaces, and
// the transfer concurrency limit.
func (d *Daemon) Args() []string {
	args := []string{
		"--enable-rpc",
		"--rpc-listen-all=false",
		"--rpc-listen-port=" + strconv.Itoa(d.port),
	}
	if d.maxConcurrent > 0 {
		args = append(args, "--max-concurrent-downloads="+strconv.Itoa(d.maxConcurrent))
	}
	if d.secret != "" {
		args = append(args, "--rpc-secret="+d.secret)
	}
	return args
}

// IsRunning reports whether a process named like the daemon is alive.
func (d *Daemon) IsRunning(ctx context.Context) bool {
	switch runtime.GOOS {
	case "windows":
		out, err := exec.CommandContext(ctx, "tasklist").Output()
		if err != nil {
			return false
		}
		image := strings.ToLower(d.name)
		if !strings.HasSuffix(image, ".exe") {
			image += ".exe"
		}
		return strings.Contains(strings.ToLower(string(out)), image)
	default:
		// pgrep exits 1 when nothing matches.
		return exec.CommandContext(ctx, "pgrep", "-f", d.name).Run() == nil
	}
}

// Start launches aria2, waits for the grace period and checks it came up.
//
// If the process cannot be detected afterwards it is killed and an error
// wrapping ErrNotRunning is returned.
func (d *Daemon) Start(ctx context.Context) error {
	path, err := exec.LookPath(d.binary)
	if err != nil {
		return fmt.Errorf("%w: %s: %v", ErrNotFound, d.binary, err)
	}

	// Not bound to ctx: the daemon outlives this program.
	cmd := exec.Command(path, d.Args()...)
	if err := cmd.Start(); err != nil {
		return fmt.Errorf("failed to start %s: %w", path, err)
	}

	d.mu.Lock()
	d.cmd = cmd
	d.mu.Unlock()

	// Reap the child if it exits so it does not linger as a zombie.
	go cmd.Wait()

	select {
	case <-ctx.Done():
		d.Stop()
		return ctx.Err()
	case <-time.After(d.grace):
	}

	if !d.IsRunning(ctx) {
		d.Stop()
		return fmt.Errorf("%w after %s", ErrNotRunning, d.grace)
	}
	return nil
}

// Stop kills the process launched by Start. It is a no-op otherwise.
func (d *Daemon) Stop() error {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.cmd == nil || d.cmd.Process == nil {
		return nil
	}
	err := d.cmd.Process.Kill()
	d.cmd = nil
	if err != nil && !errors.Is(err, os.ErrProcessDone) {
		return err
	}
	return nil
}
