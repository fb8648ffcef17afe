package ui

import "github.com/charmbracelet/lipgloss/v2"

// Color constants
const (
	ColorBlack      = "0"
	ColorRed        = "1"
	ColorDarkerBlue = "4"
	ColorCyan       = "6"
	ColorGrey       = "7"
	ColorYellow     = "11"
	ColorWhite      = "15"
)

// Common styles
var (
	HeaderStyle = lipgloss.NewStyle().
			Background(lipgloss.Color(ColorDarkerBlue)).
			Foreground(lipgloss.Color(ColorWhite)).
			Bold(true)

	ContentStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color(ColorGrey))

	FooterStyle = lipgloss.NewStyle().
			Background(lipgloss.Color(ColorBlack)).
			Foreground(lipgloss.Color(ColorGrey))

	// Table styles for list snapshots
	TableHeaderStyle = lipgloss.NewStyle().
				Foreground(lipgloss.Color(ColorCyan)).
				Bold(true)

	TableCellStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color(ColorGrey))

	BorderStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color(ColorCyan))

	// State lines
	LoadingStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color(ColorYellow)).
			Italic(true)

	ErrorStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color(ColorRed)).
			Bold(true)

	SectionTitleStyle = lipgloss.NewStyle().
				Foreground(lipgloss.Color(ColorWhite)).
				Underline(true)
)
