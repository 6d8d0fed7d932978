package ui

import (
	"context"
	"fmt"
	"io"

	"github.com/m000z0rz/rocmtest/gpulock"
	"github.com/m000z0rz/rocmtest/rocm"
)

// Plain runs the capability checks and writes a one-shot report to w,
// one line per evaluated check. For CI logs and non-interactive
// shells. The returned Capability is the probe verdict; the error is
// non-nil only when the probe aborted on a tool failure.
func Plain(ctx context.Context, harness *rocm.Harness, w io.Writer) (rocm.Capability, error) {
	fmt.Fprintln(w, titleStyle.Render("rocmtest doctor"))
	fmt.Fprintln(w)

	verdict, probeErr := harness.Probe(ctx, func(step rocm.ProbeStep) {
		if step.OK {
			fmt.Fprintf(w, "  %s %s\n", passStyle.Render("✓"), step.Name)
		} else {
			fmt.Fprintf(w, "  %s %s: %s\n", failStyle.Render("✗"), step.Name, failStyle.Render(step.Reason))
		}
	})

	fmt.Fprintln(w)
	if rocm.DriverPresent() {
		fmt.Fprintf(w, "  amdgpu driver: %s\n", passStyle.Render("present"))
	} else {
		fmt.Fprintf(w, "  amdgpu driver: %s\n", dimStyle.Render("not visible"))
	}

	if info, err := gpulock.ReadInfo(harness.LockPath()); err == nil && info != nil {
		holder := info.Holder
		if holder == "" {
			holder = "unknown worker"
		}
		fmt.Fprintf(w, "  gpu lock: %s\n", warnStyle.Render(
			fmt.Sprintf("held by %s (pid %d on %s)", holder, info.PID, info.Host)))
	} else {
		fmt.Fprintf(w, "  gpu lock: %s\n", passStyle.Render("free"))
	}

	fmt.Fprintln(w)
	switch {
	case probeErr != nil:
		fmt.Fprintln(w, failStyle.Render(fmt.Sprintf("probe aborted: %v", probeErr)))
	case verdict.OK:
		fmt.Fprintln(w, verdictOKStyle.Render("HIP debugging tests: available"))
	default:
		fmt.Fprintln(w, verdictNoStyle.Render(fmt.Sprintf("HIP debugging tests: unavailable (%s)", verdict.Reason)))
	}

	return verdict, probeErr
}
