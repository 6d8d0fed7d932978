package rocm

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/m000z0rz/rocmtest/runner"
)

const (
	// TargetsEnv overrides target discovery with a comma-separated
	// list of amdgpu architecture names. It takes absolute precedence
	// over the enumerator and its value is not filtered or validated.
	TargetsEnv = "HCC_AMDGPU_TARGET"

	// ROCmPathEnv points at a ROCm installation root; when set, tools
	// are taken from its bin/ directory instead of $PATH.
	ROCmPathEnv = "ROCM_PATH"

	enumeratorName = "rocm_agent_enumerator"

	// hostCPUTarget is the sentinel the enumerator prints for the host
	// CPU agent. It is not a GPU and is dropped from enumerated
	// results.
	hostCPUTarget = "gfx000"
)

// toolPath resolves a ROCm tool name, honoring the ROCM_PATH install
// root when set.
func toolPath(name string) string {
	if root := os.Getenv(ROCmPathEnv); root != "" {
		return filepath.Join(root, "bin", name)
	}
	return name
}

// DeviceEnumerator lists the amdgpu architectures present on the
// device host.
type DeviceEnumerator interface {
	Enumerate(ctx context.Context) ([]string, error)
}

// AgentEnumerator shells out to rocm_agent_enumerator. An enumerator
// that cannot be located means an empty list, not an error: hosts
// without ROCm simply have no targets, and callers degrade to "feature
// unavailable". An enumerator that runs and fails is an error.
type AgentEnumerator struct {
	// Runner executes the enumerator; runner.Local when nil.
	Runner runner.Runner
}

func (e *AgentEnumerator) Enumerate(ctx context.Context) ([]string, error) {
	run := e.Runner
	if run == nil {
		run = runner.Local{}
	}

	path := toolPath(enumeratorName)
	if _, err := run.LookPath(path); err != nil {
		return nil, nil
	}

	out, err := run.Run(ctx, path)
	if err != nil {
		return nil, fmt.Errorf("rocm_agent_enumerator failed: %w", err)
	}

	var targets []string
	for _, tok := range strings.Fields(out) {
		if tok == hostCPUTarget {
			continue
		}
		targets = append(targets, tok)
	}
	return targets, nil
}

// Targets returns the amdgpu targets tests should build for, in
// discovery order, duplicates kept. A set HCC_AMDGPU_TARGET wins
// outright and its tokens pass through verbatim, host-CPU sentinel
// included; only enumerated output is sentinel-filtered. The result
// is recomputed on every call.
func (h *Harness) Targets(ctx context.Context) ([]string, error) {
	if v, ok := os.LookupEnv(TargetsEnv); ok {
		if v == "" {
			return nil, nil
		}
		return strings.Split(v, ","), nil
	}
	return h.enum.Enumerate(ctx)
}
