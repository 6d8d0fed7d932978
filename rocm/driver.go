package rocm

import "github.com/prometheus/procfs/sysfs"

// DriverPresent reports whether the amdgpu kernel driver exposes any
// DRM cards on the local host. Purely informational for the doctor;
// the capability verdict never depends on it, since enumeration goes
// through the ROCm tooling.
func DriverPresent() bool {
	fs, err := sysfs.NewFS("/sys")
	if err != nil {
		return false
	}

	stats, err := fs.ClassDRMCardAMDGPUStats()
	return err == nil && len(stats) > 0
}
