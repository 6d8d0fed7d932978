package ui

import (
	tea "github.com/charmbracelet/bubbletea"

	"github.com/m000z0rz/rocmtest/internal"
	"github.com/m000z0rz/rocmtest/rocm"
)

func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		switch msg.String() {
		case "ctrl+c", "q":
			return m, tea.Quit
		}

	case StepMsg:
		step := rocm.ProbeStep(msg)
		for i := range m.checks {
			if m.checks[i].name != step.Name {
				continue
			}
			if step.OK {
				m.checks[i].state = checkPassed
			} else {
				m.checks[i].state = checkFailed
				m.checks[i].reason = step.Reason
			}
			if i+1 < len(m.checks) && step.OK {
				m.checks[i+1].state = checkRunning
			}
			break
		}
		return m, m.waitForEvent()

	case VerdictMsg:
		verdict := msg.Capability
		m.verdict = &verdict
		m.probeErr = msg.Err
		// checks after a short-circuited failure were never evaluated
		for i := range m.checks {
			if m.checks[i].state == checkPending || m.checks[i].state == checkRunning {
				m.checks[i].state = checkSkipped
			}
		}
		return m, m.quitWhenSettled()

	case DriverMsg:
		present := bool(msg)
		m.driverPresent = &present
		return m, m.quitWhenSettled()

	case LockInfoMsg:
		m.lockChecked = true
		m.lockInfo = msg.Info
		return m, m.quitWhenSettled()

	case UpdateCheckMsg:
		m.updateInfo = internal.UpdateInfo(msg)
	}

	var spinnerCmd tea.Cmd
	m.spinner, spinnerCmd = m.spinner.Update(msg)
	return m, spinnerCmd
}

// quitWhenSettled exits once the verdict and both info rows are in.
// The update check is network-bound and never holds up the report.
func (m Model) quitWhenSettled() tea.Cmd {
	if m.verdict != nil && m.driverPresent != nil && m.lockChecked {
		return tea.Quit
	}
	return nil
}
