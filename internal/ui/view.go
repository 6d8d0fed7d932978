package ui

import (
	"fmt"
	"strings"

	"github.com/m000z0rz/rocmtest/internal"
)

func (m Model) View() string {
	var b strings.Builder

	b.WriteString(titleStyle.Render("rocmtest doctor"))
	b.WriteString("\n\n")

	for _, c := range m.checks {
		b.WriteString(m.renderCheck(c))
		b.WriteString("\n")
	}

	b.WriteString("\n")
	b.WriteString(m.renderDriverRow())
	b.WriteString("\n")
	b.WriteString(m.renderLockRow())
	b.WriteString("\n")

	if m.verdict != nil {
		b.WriteString("\n")
		b.WriteString(m.renderVerdict())
		b.WriteString("\n")
	}

	b.WriteString(dimStyle.Render(fmt.Sprintf("\nv%s", internal.ShortVersion())))
	b.WriteString(m.renderUpdateNotification())
	b.WriteString("\n")

	return b.String()
}

func (m Model) renderCheck(c check) string {
	label := fmt.Sprintf("%-16s", c.name)
	switch c.state {
	case checkRunning:
		return fmt.Sprintf("  %s %s", m.spinner.View(), label)
	case checkPassed:
		return fmt.Sprintf("  %s %s", passStyle.Render("✓"), label)
	case checkFailed:
		return fmt.Sprintf("  %s %s %s", failStyle.Render("✗"), label, failStyle.Render(c.reason))
	case checkSkipped:
		return dimStyle.Render(fmt.Sprintf("  - %s skipped", label))
	default:
		return dimStyle.Render(fmt.Sprintf("  • %s", label))
	}
}

func (m Model) renderDriverRow() string {
	if m.driverPresent == nil {
		return dimStyle.Render("  amdgpu driver: checking...")
	}
	if *m.driverPresent {
		return fmt.Sprintf("  amdgpu driver: %s", passStyle.Render("present"))
	}
	return fmt.Sprintf("  amdgpu driver: %s", dimStyle.Render("not visible"))
}

func (m Model) renderLockRow() string {
	if !m.lockChecked {
		return dimStyle.Render("  gpu lock: checking...")
	}
	if m.lockInfo == nil {
		return fmt.Sprintf("  gpu lock: %s", passStyle.Render("free"))
	}
	holder := m.lockInfo.Holder
	if holder == "" {
		holder = "unknown worker"
	}
	return fmt.Sprintf("  gpu lock: %s", warnStyle.Render(
		fmt.Sprintf("held by %s (pid %d on %s)", holder, m.lockInfo.PID, m.lockInfo.Host)))
}

func (m Model) renderVerdict() string {
	if m.probeErr != nil {
		return failStyle.Render(fmt.Sprintf("probe aborted: %v", m.probeErr))
	}
	if m.verdict.OK {
		return verdictOKStyle.Render("HIP debugging tests: available")
	}
	return verdictNoStyle.Render(fmt.Sprintf("HIP debugging tests: unavailable (%s)", m.verdict.Reason))
}

func (m Model) renderUpdateNotification() string {
	if !m.updateInfo.Available {
		return ""
	}

	currentVer := m.updateInfo.CurrentVersion
	if !strings.HasPrefix(currentVer, "v") {
		currentVer = "v" + currentVer
	}

	return updateStyle.Render(fmt.Sprintf("\n⬆  Update available! %s → %s",
		currentVer, m.updateInfo.LatestVersion))
}
