package tui

import "charm.land/lipgloss/v2"

type theme struct {
	brand lipgloss.Style

	panelBox      lipgloss.Style
	panelBoxFocus lipgloss.Style
	panelTitle    lipgloss.Style
	panelSubtle   lipgloss.Style

	rowNormal   lipgloss.Style
	rowSelected lipgloss.Style

	footerInfo lipgloss.Style
	footerErr  lipgloss.Style
	footerKey  lipgloss.Style
}

func newTheme() theme {
	accent := lipgloss.Color("86")
	muted := lipgloss.Color("245")
	danger := lipgloss.Color("203")

	return theme{
		brand: lipgloss.NewStyle().Bold(true).Foreground(accent),

		panelBox: lipgloss.NewStyle().
			Border(lipgloss.RoundedBorder()).
			BorderForeground(muted).
			Padding(0, 1),
		panelBoxFocus: lipgloss.NewStyle().
			Border(lipgloss.RoundedBorder()).
			BorderForeground(accent).
			Padding(0, 1),
		panelTitle:  lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("255")),
		panelSubtle: lipgloss.NewStyle().Foreground(muted),

		rowNormal:   lipgloss.NewStyle().Foreground(lipgloss.Color("252")),
		rowSelected: lipgloss.NewStyle().Bold(true).Foreground(accent),

		footerInfo: lipgloss.NewStyle().Foreground(muted),
		footerErr:  lipgloss.NewStyle().Foreground(danger),
		footerKey:  lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("252")),
	}
}
