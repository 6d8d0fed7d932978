package rocm

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/m000z0rz/rocmtest/debugger"
)

const gdbWithDbgapi = `This GDB was configured as follows:
   configure --host=x86_64-linux-gnu --target=x86_64-linux-gnu
             --with-amd-dbgapi
             --with-expat
`

const gdbWithoutDbgapi = `This GDB was configured as follows:
   configure --host=x86_64-linux-gnu --target=x86_64-linux-gnu
             --without-amd-dbgapi
             --with-expat
`

// probeHarness wires a harness whose every check would pass, so each
// test can break exactly one of them.
func probeHarness(t *testing.T, mutate func(*Config)) (*Harness, *fakeRunner, *fakeEnumerator, *fakeCompiler) {
	t.Helper()
	clearTargetEnv(t)

	run := &fakeRunner{outputs: map[string]string{"gdb": gdbWithDbgapi}}
	enum := &fakeEnumerator{targets: []string{"gfx90a", "gfx1100"}}
	comp := &fakeCompiler{}

	cfg := Config{
		OS:         "linux",
		Runner:     run,
		Enumerator: enum,
		Compiler:   comp,
		GDB:        &debugger.GDB{Runner: run},
		Logger:     zaptest.NewLogger(t),
	}
	if mutate != nil {
		mutate(&cfg)
	}
	return New(cfg), run, enum, comp
}

func TestProbeAllChecksPass(t *testing.T) {
	h, _, _, comp := probeHarness(t, nil)

	verdict, err := h.Probe(context.Background(), nil)
	require.NoError(t, err)
	assert.True(t, verdict.OK)
	assert.Empty(t, verdict.Reason)

	require.Equal(t, 1, comp.calls)
	assert.Equal(t, []string{"--offload-arch=gfx90a,gfx1100"}, comp.flags)
	assert.Contains(t, comp.source, "hipDeviceSynchronize")
}

func TestProbeRemoteDebugging(t *testing.T) {
	h, run, enum, comp := probeHarness(t, func(cfg *Config) {
		cfg.Protocol = "remote"
	})

	verdict, err := h.Probe(context.Background(), nil)
	require.NoError(t, err)
	assert.False(t, verdict.OK)
	assert.Equal(t, ReasonRemoteDebugging, verdict.Reason)

	// short-circuit: nothing past the first check runs
	assert.Empty(t, run.calls)
	assert.Zero(t, enum.calls)
	assert.Zero(t, comp.calls)
}

func TestProbeNotLinux(t *testing.T) {
	h, run, enum, comp := probeHarness(t, func(cfg *Config) {
		cfg.OS = "darwin"
	})

	verdict, err := h.Probe(context.Background(), nil)
	require.NoError(t, err)
	assert.Equal(t, ReasonNotLinux, verdict.Reason)

	assert.Empty(t, run.calls)
	assert.Zero(t, enum.calls)
	assert.Zero(t, comp.calls)
}

func TestProbeGDBWithoutDbgapi(t *testing.T) {
	h, _, enum, comp := probeHarness(t, func(cfg *Config) {
		cfg.Runner = &fakeRunner{outputs: map[string]string{"gdb": gdbWithoutDbgapi}}
		cfg.GDB = &debugger.GDB{Runner: cfg.Runner}
	})

	verdict, err := h.Probe(context.Background(), nil)
	require.NoError(t, err)
	assert.Equal(t, ReasonNoAMDDbgapi, verdict.Reason)

	assert.Zero(t, enum.calls)
	assert.Zero(t, comp.calls)
}

func TestProbeGDBQueryFailure(t *testing.T) {
	h, _, enum, comp := probeHarness(t, func(cfg *Config) {
		cfg.Runner = &fakeRunner{errs: map[string]error{"gdb": errors.New("exit status 127")}}
		cfg.GDB = &debugger.GDB{Runner: cfg.Runner}
	})

	verdict, err := h.Probe(context.Background(), nil)
	require.NoError(t, err)
	assert.Equal(t, ReasonNoAMDDbgapi, verdict.Reason)

	assert.Zero(t, enum.calls)
	assert.Zero(t, comp.calls)
}

func TestProbeNoTargets(t *testing.T) {
	h, _, enum, comp := probeHarness(t, func(cfg *Config) {
		cfg.Enumerator = &fakeEnumerator{}
	})
	_ = enum

	verdict, err := h.Probe(context.Background(), nil)
	require.NoError(t, err)
	assert.Equal(t, ReasonNoTargets, verdict.Reason)
	assert.Zero(t, comp.calls, "the compile step must never run without targets")
}

func TestProbeDiscoveryErrorAborts(t *testing.T) {
	h, _, _, comp := probeHarness(t, func(cfg *Config) {
		cfg.Enumerator = &fakeEnumerator{err: errors.New("rocm_agent_enumerator failed: exit status 1")}
	})

	_, err := h.Probe(context.Background(), nil)
	require.Error(t, err)
	assert.Zero(t, comp.calls)
}

func TestProbeCompileFailure(t *testing.T) {
	h, _, _, _ := probeHarness(t, func(cfg *Config) {
		cfg.Compiler = &fakeCompiler{err: errors.New("clang: error")}
	})

	verdict, err := h.Probe(context.Background(), nil)
	require.NoError(t, err)
	assert.Equal(t, ReasonCompileFailed, verdict.Reason)
}

func TestProbeObserverSeesOrderedSteps(t *testing.T) {
	h, _, _, _ := probeHarness(t, func(cfg *Config) {
		cfg.Enumerator = &fakeEnumerator{} // fails at the targets step
	})

	var seen []ProbeStep
	_, err := h.Probe(context.Background(), func(s ProbeStep) { seen = append(seen, s) })
	require.NoError(t, err)

	names := make([]string, len(seen))
	for i, s := range seen {
		names[i] = s.Name
	}
	assert.Equal(t, []string{StepProtocol, StepPlatform, StepDebugger, StepTargets}, names)

	last := seen[len(seen)-1]
	assert.False(t, last.OK)
	assert.Equal(t, ReasonNoTargets, last.Reason)
	for _, s := range seen[:len(seen)-1] {
		assert.True(t, s.OK, s.Name)
	}
}

func TestHIPCapabilityMemoized(t *testing.T) {
	h, run, enum, comp := probeHarness(t, nil)

	ctx := context.Background()
	first, err := h.HIPCapability(ctx)
	require.NoError(t, err)
	second, err := h.HIPCapability(ctx)
	require.NoError(t, err)

	assert.Equal(t, first, second)
	assert.Equal(t, 1, enum.calls)
	assert.Equal(t, 1, comp.calls)
	assert.Len(t, run.calls, 1) // one gdb configuration query
}
