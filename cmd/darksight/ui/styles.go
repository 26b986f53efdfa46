// Package ui provides the terminal styling for darksight scan reports.
package ui

import (
	"fmt"

	"github.com/charmbracelet/lipgloss"

	"darksight/internal/audit"
)

var (
	// Semantic colors
	Safe        = lipgloss.Color("#8BC34A") // Lime Green
	Caution     = lipgloss.Color("#FFC107") // Yellow
	Compromised = lipgloss.Color("#e53935") // Red
	Info        = lipgloss.Color("#2196F3") // Blue
	Muted       = lipgloss.Color("#808a9d")

	titleStyle = lipgloss.NewStyle().Bold(true)
	mutedStyle = lipgloss.NewStyle().Foreground(Muted)
	truthStyle = lipgloss.NewStyle().Italic(true)

	safeBadge        = badge(Safe)
	cautionBadge     = badge(Caution)
	compromisedBadge = badge(Compromised)

	severityStyles = map[audit.Severity]lipgloss.Style{
		audit.SeverityHigh:   lipgloss.NewStyle().Foreground(Compromised).Bold(true),
		audit.SeverityMedium: lipgloss.NewStyle().Foreground(Caution),
		audit.SeverityLow:    lipgloss.NewStyle().Foreground(Info),
	}
)

func badge(c lipgloss.Color) lipgloss.Style {
	return lipgloss.NewStyle().Foreground(lipgloss.Color("#141d2b")).Background(c).Bold(true).Padding(0, 1)
}

// StatusBadge renders the tri-state classification as a colored badge.
func StatusBadge(s audit.ViewportStatus) string {
	switch s {
	case audit.StatusCompromised:
		return compromisedBadge.Render(string(s))
	case audit.StatusCaution:
		return cautionBadge.Render(string(s))
	default:
		return safeBadge.Render(string(s))
	}
}

// Title renders a section heading.
func Title(s string) string { return titleStyle.Render(s) }

// Dim renders secondary detail.
func Dim(s string) string { return mutedStyle.Render(s) }

// FindingLine renders one finding as a single report line.
func FindingLine(f audit.Finding) string {
	sev, ok := severityStyles[f.Severity]
	if !ok {
		sev = mutedStyle
	}
	line := fmt.Sprintf("%s %s", sev.Render(fmt.Sprintf("[%s]", f.Severity)), f.Category)
	if !f.Box.IsZero() {
		line += mutedStyle.Render(fmt.Sprintf(" @ y%d-%d x%d-%d", f.Box[0], f.Box[2], f.Box[1], f.Box[3]))
	}
	if f.Truth != "" {
		line += "\n    " + truthStyle.Render(f.Truth)
	}
	if f.Remediation != "" {
		line += "\n    " + mutedStyle.Render("→ "+f.Remediation)
	}
	return line
}

// AnchorLine renders one catalog anchor for the history view.
func AnchorLine(a audit.Anchor) string {
	label := a.Name
	if label == "" {
		label = a.ID
	}
	line := fmt.Sprintf("  %s %s", label, mutedStyle.Render(a.Price))
	if a.Violated {
		line += " " + severityStyles[audit.SeverityHigh].Render(fmt.Sprintf("(was %s)", a.OrigPrice))
	}
	return line
}
