// Package debugger wraps the gdb binary under test: querying its build
// configuration and managing an interactive session whose teardown the
// GPU lock wrapper depends on.
package debugger

import (
	"context"
	"fmt"
	"os/exec"
	"strings"
	"sync"
	"syscall"
	"time"

	"github.com/m000z0rz/rocmtest/runner"
)

// amdDbgapiMarker appears in `gdb --configuration` output when the
// debugger was built against the AMD GPU debug API.
const amdDbgapiMarker = "--with-amd-dbgapi"

// DefaultInternalFlags is a batch-safe invocation: no windows, no init
// files, quiet, unlimited screen size so output is never paginated.
var DefaultInternalFlags = []string{
	"-nw", "-nx", "-q",
	"-iex", "set height 0",
	"-iex", "set width 0",
}

// GDB locates and invokes the debugger under test.
type GDB struct {
	// Path to the gdb binary; "gdb" when empty.
	Path string

	// InternalFlags are prepended to every invocation;
	// DefaultInternalFlags when nil.
	InternalFlags []string

	// Runner executes gdb; runner.Local when nil.
	Runner runner.Runner
}

func (g *GDB) path() string {
	if g.Path != "" {
		return g.Path
	}
	return "gdb"
}

func (g *GDB) flags() []string {
	if g.InternalFlags != nil {
		return g.InternalFlags
	}
	return DefaultInternalFlags
}

func (g *GDB) runner() runner.Runner {
	if g.Runner != nil {
		return g.Runner
	}
	return runner.Local{}
}

// Configuration returns the output of the debugger's configuration
// dump.
func (g *GDB) Configuration(ctx context.Context) (string, error) {
	args := append(append([]string{}, g.flags()...), "--configuration")
	out, err := g.runner().Run(ctx, g.path(), args...)
	if err != nil {
		return "", fmt.Errorf("gdb --configuration: %w", err)
	}
	return out, nil
}

// SupportsAMDDbgapi reports whether the debugger was built with
// amd-dbgapi support, by scanning its configuration dump.
func (g *GDB) SupportsAMDDbgapi(ctx context.Context) (bool, error) {
	out, err := g.Configuration(ctx)
	if err != nil {
		return false, err
	}
	return strings.Contains(out, amdDbgapiMarker), nil
}

// Start launches an interactive debugger session on the local host.
// Sessions always run locally: they attach to the machine the harness
// itself runs on.
func (g *GDB) Start(ctx context.Context, args ...string) (*Session, error) {
	full := append(append([]string{}, g.flags()...), args...)
	cmd := exec.CommandContext(ctx, g.path(), full...)
	if err := cmd.Start(); err != nil {
		return nil, fmt.Errorf("start %s: %w", g.path(), err)
	}

	s := &Session{cmd: cmd, done: make(chan struct{})}
	go func() {
		s.waitErr = cmd.Wait()
		close(s.done)
	}()
	return s, nil
}

// exitGrace is how long Exit waits for gdb to honor SIGTERM before
// escalating to SIGKILL.
const exitGrace = 2 * time.Second

// Session is a running debugger process.
type Session struct {
	cmd      *exec.Cmd
	done     chan struct{}
	waitErr  error
	exitOnce sync.Once
}

// Exit terminates the session and waits for the process to go away.
// Idempotent, and a no-op on a nil session, so callers can request
// teardown unconditionally.
func (s *Session) Exit() error {
	if s == nil {
		return nil
	}

	s.exitOnce.Do(func() {
		select {
		case <-s.done:
			return
		default:
		}

		_ = s.cmd.Process.Signal(syscall.SIGTERM)
		select {
		case <-s.done:
		case <-time.After(exitGrace):
			_ = s.cmd.Process.Kill()
			<-s.done
		}
	})

	<-s.done
	return nil
}

// Wait blocks until the session ends on its own.
func (s *Session) Wait() error {
	if s == nil {
		return nil
	}
	<-s.done
	return s.waitErr
}
