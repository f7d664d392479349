package ui

import "github.com/charmbracelet/lipgloss"

// Styles defines all lipgloss styles used in the CLI
var Styles = struct {
	Bold       lipgloss.Style
	Title      lipgloss.Style
	Dim        lipgloss.Style
	SuccessBox lipgloss.Style
	ErrorBox   lipgloss.Style
	Card       lipgloss.Style
}{
	Bold:  lipgloss.NewStyle().Bold(true),
	Title: lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("86")),
	Dim:   lipgloss.NewStyle().Foreground(lipgloss.Color("240")),

	SuccessBox: lipgloss.NewStyle().
		Border(lipgloss.RoundedBorder()).
		BorderForeground(lipgloss.Color("42")).
		Padding(0, 1).
		Width(60),

	ErrorBox: lipgloss.NewStyle().
		Border(lipgloss.RoundedBorder()).
		BorderForeground(lipgloss.Color("196")).
		Padding(0, 1).
		Width(60),

	Card: lipgloss.NewStyle().
		Border(lipgloss.RoundedBorder()).
		BorderForeground(lipgloss.Color("63")).
		Padding(0, 1).
		Width(60),
}
