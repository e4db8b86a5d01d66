package output

import "github.com/charmbracelet/lipgloss"

// Color constants using ANSI 256-color palette.
const (
	ColorPrimary = lipgloss.Color("39")
	ColorSuccess = lipgloss.Color("42")
	ColorWarning = lipgloss.Color("214")
	ColorDanger  = lipgloss.Color("196")
	ColorMuted   = lipgloss.Color("245")
)

// Box styles for containing grouped content.
var (
	HeaderBox = lipgloss.NewStyle().
			Border(lipgloss.RoundedBorder()).
			BorderForeground(ColorPrimary).
			Padding(0, 1).
			MarginBottom(1)

	FooterBox = lipgloss.NewStyle().
			Border(lipgloss.RoundedBorder()).
			BorderForeground(ColorMuted).
			Padding(0, 1).
			MarginTop(1)
)

// Text styles.
var (
	LabelStyle    = lipgloss.NewStyle().Foreground(ColorMuted)
	ValueStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("255"))
	SuccessStyle  = lipgloss.NewStyle().Foreground(ColorSuccess)
	WarningStyle  = lipgloss.NewStyle().Foreground(ColorWarning)
	ErrorStyle    = lipgloss.NewStyle().Foreground(ColorDanger)
	MutedStyle    = lipgloss.NewStyle().Foreground(ColorMuted)
	PathStyle     = lipgloss.NewStyle().Foreground(lipgloss.Color("255"))
	ChecksumStyle = lipgloss.NewStyle().Foreground(ColorPrimary)

	TableHeaderStyle = lipgloss.NewStyle().
				Bold(true).
				Foreground(ColorMuted).
				PaddingRight(2)
)

// statusStyle returns the style used for a row status.
func statusStyle(s Status) lipgloss.Style {
	switch s {
	case StatusCreated, StatusOK:
		return SuccessStyle
	case StatusUpdated, StatusPending:
		return WarningStyle
	case StatusDeleted, StatusMismatch, StatusMissing:
		return ErrorStyle
	default:
		return MutedStyle
	}
}
