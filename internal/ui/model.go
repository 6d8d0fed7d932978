// Package ui renders the doctor report: the capability checks as they
// run, plus GPU driver and lock status for the host.
package ui

import (
	"github.com/charmbracelet/bubbles/spinner"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/m000z0rz/rocmtest/gpulock"
	"github.com/m000z0rz/rocmtest/internal"
	"github.com/m000z0rz/rocmtest/rocm"
)

type checkState int

const (
	checkPending checkState = iota
	checkRunning
	checkPassed
	checkFailed
	checkSkipped
)

type check struct {
	name   string
	state  checkState
	reason string
}

type StepMsg rocm.ProbeStep

type VerdictMsg struct {
	Capability rocm.Capability
	Err        error
}

type DriverMsg bool

type LockInfoMsg struct {
	Info *gpulock.Info
}

type UpdateCheckMsg internal.UpdateInfo

type Model struct {
	harness *rocm.Harness
	spinner spinner.Model

	checks []check
	events chan tea.Msg

	verdict  *rocm.Capability
	probeErr error

	driverPresent *bool
	lockChecked   bool
	lockInfo      *gpulock.Info

	updateInfo internal.UpdateInfo
}

func NewModel(harness *rocm.Harness) Model {
	s := spinner.New()
	s.Spinner = spinner.Dot
	s.Style = lipgloss.NewStyle().Foreground(lipgloss.Color("205"))

	checks := make([]check, len(rocm.ProbeSteps))
	for i, name := range rocm.ProbeSteps {
		checks[i] = check{name: name, state: checkPending}
	}
	checks[0].state = checkRunning

	return Model{
		harness: harness,
		spinner: s,
		checks:  checks,
		events:  make(chan tea.Msg, len(rocm.ProbeSteps)+1),
	}
}

func (m Model) Init() tea.Cmd {
	return tea.Batch(
		m.spinner.Tick,
		m.startProbe(),
		m.probeDriver(),
		m.readLockInfo(),
		m.checkForUpdates(),
		m.waitForEvent(),
	)
}

// Verdict returns the probe outcome once the program has finished.
func (m Model) Verdict() (rocm.Capability, error) {
	if m.verdict == nil {
		return rocm.Capability{}, m.probeErr
	}
	return *m.verdict, m.probeErr
}
