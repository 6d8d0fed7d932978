package rocm

import (
	"context"
	"slices"
)

// Per-feature lists of amdgpu targets known to lack a debugging
// capability. The two lists are identical today but are kept separate
// on purpose: they track different hardware features and may diverge
// as new architectures ship.

var debugMultiProcessUnsupported = []string{
	"gfx900", "gfx906", "gfx908", "gfx90a",
	"gfx1010", "gfx1011", "gfx1012",
	"gfx1030", "gfx1031", "gfx1032",
}

var preciseMemoryUnsupported = []string{
	"gfx900", "gfx906", "gfx908", "gfx90a",
	"gfx1010", "gfx1011", "gfx1012",
	"gfx1030", "gfx1031", "gfx1032",
}

// DevicesSupportDebugMultiProcess reports whether every discovered
// device supports multi-process debugging. The policy is
// all-or-nothing: one unsupported device disqualifies the host, and no
// devices at all means no support to claim.
func (h *Harness) DevicesSupportDebugMultiProcess(ctx context.Context) (bool, error) {
	return h.devicesSupport(ctx, debugMultiProcessUnsupported)
}

// DevicesSupportPreciseMemory reports whether every discovered device
// supports the precise-memory exception mode, with the same
// all-or-nothing policy.
func (h *Harness) DevicesSupportPreciseMemory(ctx context.Context) (bool, error) {
	return h.devicesSupport(ctx, preciseMemoryUnsupported)
}

func (h *Harness) devicesSupport(ctx context.Context, unsupported []string) (bool, error) {
	targets, err := h.Targets(ctx)
	if err != nil {
		return false, err
	}
	if len(targets) == 0 {
		return false, nil
	}
	for _, t := range targets {
		if slices.Contains(unsupported, t) {
			return false, nil
		}
	}
	return true, nil
}
