package ui

import (
	"context"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/m000z0rz/rocmtest/gpulock"
	"github.com/m000z0rz/rocmtest/internal"
	"github.com/m000z0rz/rocmtest/rocm"
)

// startProbe runs the capability checks in the background, feeding one
// StepMsg per evaluated check and a final VerdictMsg into the event
// channel. waitForEvent pumps them into Update one at a time.
func (m Model) startProbe() tea.Cmd {
	return func() tea.Msg {
		go func() {
			verdict, err := m.harness.Probe(context.Background(), func(step rocm.ProbeStep) {
				m.events <- StepMsg(step)
			})
			m.events <- VerdictMsg{Capability: verdict, Err: err}
		}()
		return nil
	}
}

func (m Model) waitForEvent() tea.Cmd {
	return func() tea.Msg {
		return <-m.events
	}
}

func (m Model) probeDriver() tea.Cmd {
	return func() tea.Msg {
		return DriverMsg(rocm.DriverPresent())
	}
}

func (m Model) readLockInfo() tea.Cmd {
	return func() tea.Msg {
		info, err := gpulock.ReadInfo(m.harness.LockPath())
		if err != nil {
			return LockInfoMsg{}
		}
		return LockInfoMsg{Info: info}
	}
}

func (m Model) checkForUpdates() tea.Cmd {
	return func() tea.Msg {
		return UpdateCheckMsg(internal.CheckForUpdates())
	}
}
