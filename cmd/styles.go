package cmd

import "github.com/charmbracelet/lipgloss"

var (
	headingStyle = lipgloss.NewStyle().Bold(true)
	totalStyle   = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("10"))
	runningStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("11"))
	mutedStyle   = lipgloss.NewStyle().Faint(true)
)
