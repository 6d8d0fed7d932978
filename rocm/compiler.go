package rocm

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/m000z0rz/rocmtest/runner"
)

// hipProbeSource is the minimal offload program the capability probe
// compiles: launch a trivial kernel, then check that the host-side
// synchronization succeeds.
const hipProbeSource = `#include <hip/hip_runtime.h>

__global__ void
kern ()
{
}

int
main ()
{
  kern<<<1, 1>>> ();
  return hipDeviceSynchronize () != hipSuccess;
}
`

// Compiler builds device code on the device host.
type Compiler interface {
	// Compile builds source into an executable with the given extra
	// flags. A compile failure is returned as an error; the caller
	// decides whether that is fatal or just signal.
	Compile(ctx context.Context, source string, flags ...string) error
}

// HIPCC compiles HIP source by piping it to the hipcc frontend. The
// compiled artifact is left on disk; cleaning the scratch area between
// runs is the test framework's job, not ours.
type HIPCC struct {
	// Path to hipcc; located via ROCM_PATH or $PATH when empty.
	Path string

	// OutputDir for compiled artifacts; os.TempDir() when empty.
	OutputDir string

	// Runner executes hipcc; runner.Local when nil.
	Runner runner.Runner
}

func (c *HIPCC) Compile(ctx context.Context, source string, flags ...string) error {
	run := c.Runner
	if run == nil {
		run = runner.Local{}
	}

	path := c.Path
	if path == "" {
		path = toolPath("hipcc")
	}

	dir := c.OutputDir
	if dir == "" {
		dir = os.TempDir()
	}
	out := filepath.Join(dir, fmt.Sprintf("hip-probe-%d", os.Getpid()))

	args := append([]string{"-x", "hip", "-", "-o", out}, flags...)
	if _, err := run.RunInput(ctx, source, path, args...); err != nil {
		return err
	}
	return nil
}
