// Package rocm decides whether GPU-debugging tests should run and
// serializes access to the shared GPU across parallel test workers.
// It is glue around external tooling (rocm_agent_enumerator, hipcc,
// the gdb binary under test); everything it shells out to sits behind
// a narrow interface so the logic is testable without a GPU.
package rocm

import (
	"context"
	"runtime"
	"sync"

	"go.uber.org/zap"

	"github.com/m000z0rz/rocmtest/debugger"
	"github.com/m000z0rz/rocmtest/gpulock"
	"github.com/m000z0rz/rocmtest/runner"
)

// Config carries the knobs a Harness needs. Everything is optional;
// zero values mean "local host, native debugging, default tools".
type Config struct {
	// Protocol is the debug target protocol of the test session.
	// Anything other than "native" means remote/indirect debugging,
	// which the GPU checks rule out up front. Empty means "native".
	Protocol string

	// OS overrides the host operating system, for tests. Empty means
	// runtime.GOOS.
	OS string

	// LockPath is the shared GPU lock file. Empty means
	// gpulock.DefaultPath(). Every worker in a run must use the same
	// path.
	LockPath string

	// Worker labels this harness in the lock file while it holds the
	// GPU.
	Worker string

	Runner     runner.Runner
	Enumerator DeviceEnumerator
	Compiler   Compiler
	GDB        *debugger.GDB
	Logger     *zap.Logger
}

// Harness gates GPU-debugging tests for one test run. Checks that
// shell out are injected so tests can fake them; the expensive
// capability verdict is computed once per Harness.
type Harness struct {
	protocol string
	hostOS   string
	lockPath string
	worker   string

	run      runner.Runner
	enum     DeviceEnumerator
	compiler Compiler
	gdb      *debugger.GDB
	log      *zap.Logger

	capOnce   sync.Once
	capResult Capability
	capErr    error

	// the active debugger session, torn down before the GPU lock is
	// released; test workers are separate processes, so this needs no
	// in-process locking
	session interface{ Exit() error }
}

// New builds a Harness from cfg, filling in defaults for anything
// unset.
func New(cfg Config) *Harness {
	h := &Harness{
		protocol: cfg.Protocol,
		hostOS:   cfg.OS,
		lockPath: cfg.LockPath,
		worker:   cfg.Worker,
		run:      cfg.Runner,
		enum:     cfg.Enumerator,
		compiler: cfg.Compiler,
		gdb:      cfg.GDB,
		log:      cfg.Logger,
	}

	if h.protocol == "" {
		h.protocol = "native"
	}
	if h.hostOS == "" {
		h.hostOS = runtime.GOOS
	}
	if h.lockPath == "" {
		h.lockPath = gpulock.DefaultPath()
	}
	if h.run == nil {
		h.run = runner.Local{}
	}
	if h.enum == nil {
		h.enum = &AgentEnumerator{Runner: h.run}
	}
	if h.compiler == nil {
		h.compiler = &HIPCC{Runner: h.run}
	}
	if h.gdb == nil {
		h.gdb = &debugger.GDB{Runner: h.run}
	}
	if h.log == nil {
		h.log = zap.NewNop()
	}

	return h
}

// GDB returns the debugger this harness probes and runs.
func (h *Harness) GDB() *debugger.GDB {
	return h.gdb
}

// LockPath returns the shared GPU lock file this harness uses.
func (h *Harness) LockPath() string {
	return h.lockPath
}

// WithGPULock runs fn with exclusive ownership of the shared GPU.
// The acquire blocks until the lock is available. On every exit path,
// including a panic in fn, the active debugger session is terminated
// first and the lock released after; a dangling session would keep the
// GPU busy for the next worker.
func (h *Harness) WithGPULock(fn func() error) error {
	lock := gpulock.New(h.lockPath, h.worker)
	release, err := lock.Acquire()
	if err != nil {
		return err
	}
	h.log.Debug("gpu lock acquired", zap.String("path", h.lockPath))

	// LIFO: ExitDebugger fires before release
	defer func() {
		_ = release()
		h.log.Debug("gpu lock released", zap.String("path", h.lockPath))
	}()
	defer h.ExitDebugger()

	return fn()
}

// StartDebugger launches a debugger session and registers it for
// teardown by WithGPULock. Any previous session is terminated first.
func (h *Harness) StartDebugger(ctx context.Context, args ...string) (*debugger.Session, error) {
	h.ExitDebugger()

	s, err := h.gdb.Start(ctx, args...)
	if err != nil {
		return nil, err
	}
	h.session = s
	return s, nil
}

// ExitDebugger terminates the active debugger session, if any.
// Idempotent; with no session it is a no-op.
func (h *Harness) ExitDebugger() {
	if h.session == nil {
		return
	}
	if err := h.session.Exit(); err != nil {
		h.log.Warn("debugger session teardown", zap.Error(err))
	}
	h.session = nil
}
