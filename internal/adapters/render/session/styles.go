package session

import "github.com/charmbracelet/lipgloss"

type styles struct {
	title      lipgloss.Style
	header     lipgloss.Style
	mode       lipgloss.Style
	detail     lipgloss.Style
	winner     lipgloss.Style
	warning    lipgloss.Style
	section    lipgloss.Style
	empty      lipgloss.Style
	podKey     lipgloss.Style
	podMeta    lipgloss.Style
	lit        lipgloss.Style
	online     lipgloss.Style
	offline    lipgloss.Style
	barBracket lipgloss.Style
	barFill    lipgloss.Style
	barEmpty   lipgloss.Style
}

func newStyles() styles {
	return styles{
		title:      lipgloss.NewStyle().Bold(true),
		header:     lipgloss.NewStyle().Foreground(lipgloss.Color("241")),
		mode:       lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("39")),
		detail:     lipgloss.NewStyle().Foreground(lipgloss.Color("252")),
		winner:     lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("220")),
		warning:    lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("203")),
		section:    lipgloss.NewStyle().MarginTop(1),
		empty:      lipgloss.NewStyle().Faint(true),
		podKey:     lipgloss.NewStyle().Foreground(lipgloss.Color("250")),
		podMeta:    lipgloss.NewStyle().Foreground(lipgloss.Color("245")),
		lit:        lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("214")),
		online:     lipgloss.NewStyle().Foreground(lipgloss.Color("78")),
		offline:    lipgloss.NewStyle().Foreground(lipgloss.Color("203")),
		barBracket: lipgloss.NewStyle().Foreground(lipgloss.Color("244")),
		barFill:    lipgloss.NewStyle().Foreground(lipgloss.Color("159")),
		barEmpty:   lipgloss.NewStyle().Foreground(lipgloss.Color("238")),
	}
}
