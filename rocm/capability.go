package rocm

import (
	"context"
	"strings"

	"go.uber.org/zap"
)

// Capability is the outcome of the HIP capability probe: either the
// host can run GPU-debugging tests, or it cannot and Reason says why.
// A false result is normal on most hosts, not an error.
type Capability struct {
	OK     bool
	Reason string
}

// Probe check names, in evaluation order. Each check is cheaper than
// the next, so an early failure rules out a whole class of environment
// without ever reaching the compile step.
const (
	StepProtocol = "target protocol"
	StepPlatform = "host platform"
	StepDebugger = "debugger build"
	StepTargets  = "amdgpu targets"
	StepCompile  = "hip compile"
)

// ProbeSteps lists the checks Probe evaluates, in order.
var ProbeSteps = []string{
	StepProtocol,
	StepPlatform,
	StepDebugger,
	StepTargets,
	StepCompile,
}

// Probe failure reasons, surfaced by test frameworks as skip
// explanations.
const (
	ReasonRemoteDebugging = "remote debugging"
	ReasonNotLinux        = "target platform is not Linux"
	ReasonNoAMDDbgapi     = "amd-dbgapi not supported"
	ReasonNoTargets       = "no suitable amdgpu targets found"
	ReasonCompileFailed   = "failed to compile hip program"
)

// ProbeStep reports the outcome of one evaluated check.
type ProbeStep struct {
	Name   string
	OK     bool
	Reason string
}

// ProbeObserver is called once per evaluated check, in order. Checks
// after the first failure are never evaluated and never reported.
type ProbeObserver func(ProbeStep)

// HIPCapability reports whether this host can run HIP debugging tests,
// with a diagnostic reason on a negative verdict. The probe runs once
// per Harness; every later call returns the cached verdict. The error
// is non-nil only when an external tool was found but failed, which
// aborts the evaluation rather than producing a verdict.
func (h *Harness) HIPCapability(ctx context.Context) (Capability, error) {
	h.capOnce.Do(func() {
		h.capResult, h.capErr = h.Probe(ctx, nil)
	})
	return h.capResult, h.capErr
}

// Probe evaluates the capability checks in order, short-circuiting at
// the first failure, and reports each evaluated check to observe (which
// may be nil). Unlike HIPCapability it is not memoized; the doctor uses
// it to display live per-check progress.
func (h *Harness) Probe(ctx context.Context, observe ProbeObserver) (Capability, error) {
	if observe == nil {
		observe = func(ProbeStep) {}
	}

	fail := func(step, reason string) Capability {
		observe(ProbeStep{Name: step, Reason: reason})
		h.log.Debug("capability check failed",
			zap.String("check", step), zap.String("reason", reason))
		return Capability{Reason: reason}
	}
	pass := func(step string) {
		observe(ProbeStep{Name: step, OK: true})
	}

	if h.protocol != "native" {
		return fail(StepProtocol, ReasonRemoteDebugging), nil
	}
	pass(StepProtocol)

	if h.hostOS != "linux" {
		return fail(StepPlatform, ReasonNotLinux), nil
	}
	pass(StepPlatform)

	supported, err := h.gdb.SupportsAMDDbgapi(ctx)
	if err != nil || !supported {
		if err != nil {
			h.log.Debug("gdb configuration query failed", zap.Error(err))
		}
		return fail(StepDebugger, ReasonNoAMDDbgapi), nil
	}
	pass(StepDebugger)

	targets, err := h.Targets(ctx)
	if err != nil {
		observe(ProbeStep{Name: StepTargets, Reason: err.Error()})
		return Capability{}, err
	}
	if len(targets) == 0 {
		return fail(StepTargets, ReasonNoTargets), nil
	}
	pass(StepTargets)

	offload := "--offload-arch=" + strings.Join(targets, ",")
	if err := h.compiler.Compile(ctx, hipProbeSource, offload); err != nil {
		h.log.Debug("hip probe compile failed", zap.Error(err))
		return fail(StepCompile, ReasonCompileFailed), nil
	}
	pass(StepCompile)

	return Capability{OK: true}, nil
}
