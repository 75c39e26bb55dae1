package presenter

import "github.com/charmbracelet/lipgloss"

var (
	colorText  = lipgloss.Color("#cdd6f4")
	colorMuted = lipgloss.Color("#a6adc8")
	colorCalm  = lipgloss.Color("#94e2d5")
	colorWarn  = lipgloss.Color("#fab387")
	colorTrack = lipgloss.Color("#45475a")

	boxStyle = lipgloss.NewStyle().
			BorderStyle(lipgloss.RoundedBorder()).
			BorderForeground(colorCalm).
			Foreground(colorText).
			Padding(1, 3)

	titleStyle    = lipgloss.NewStyle().Foreground(colorCalm).Bold(true)
	hintStyle     = lipgloss.NewStyle().Foreground(colorMuted)
	messageStyle  = lipgloss.NewStyle().Foreground(colorWarn).Bold(true)
	selectedStyle = lipgloss.NewStyle().Foreground(colorCalm).Bold(true)
	barFillStyle  = lipgloss.NewStyle().Foreground(colorCalm)
	barTrackStyle = lipgloss.NewStyle().Foreground(colorTrack)
)
