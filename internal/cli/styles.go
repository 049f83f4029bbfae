// Package cli provides styled terminal output using lipgloss.
package cli

import (
	"strings"

	"github.com/charmbracelet/lipgloss"
)

var (
	// PrimaryColor is the main theme color.
	PrimaryColor = lipgloss.Color("#00A8E8")
	// SuccessColor indicates successful operations.
	SuccessColor = lipgloss.Color("#06D6A0") // Green
	// WarningColor indicates warnings or caution messages.
	WarningColor = lipgloss.Color("#FFD166") // Amber
	// ErrorColor indicates errors or failure messages.
	ErrorColor = lipgloss.Color("#EF476F") // Red
	// InfoColor indicates informational messages.
	InfoColor = lipgloss.Color("#8ECAE6") // Light blue
	// SubtleColor indicates less prominent UI elements.
	SubtleColor = lipgloss.Color("#6C757D") // Gray

	// TitleStyle is used for section titles.
	TitleStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(PrimaryColor).
			MarginBottom(1)

	// SubtitleStyle is used for secondary headings.
	SubtitleStyle = lipgloss.NewStyle().
			Foreground(SubtleColor).
			MarginBottom(1)

	// SuccessStyle formats success messages.
	SuccessStyle = lipgloss.NewStyle().
			Foreground(SuccessColor)

	// WarningStyle formats warning messages.
	WarningStyle = lipgloss.NewStyle().
			Foreground(WarningColor)

	// ErrorStyle formats error messages.
	ErrorStyle = lipgloss.NewStyle().
			Foreground(ErrorColor)

	// InfoStyle formats informational messages.
	InfoStyle = lipgloss.NewStyle().
			Foreground(InfoColor)

	// SubtleStyle formats less prominent text.
	SubtleStyle = lipgloss.NewStyle().
			Foreground(SubtleColor)

	// BoldStyle makes text bold.
	BoldStyle = lipgloss.NewStyle().
			Bold(true)

	// BoxStyle is used for bordered content boxes.
	BoxStyle = lipgloss.NewStyle().
			Border(lipgloss.RoundedBorder()).
			BorderForeground(lipgloss.Color("#333")).
			Padding(1, 2)

	// TableHeaderStyle is used for table headers.
	TableHeaderStyle = lipgloss.NewStyle().
				Bold(true).
				BorderStyle(lipgloss.NormalBorder()).
				BorderBottom(true).
				BorderForeground(lipgloss.Color("#333"))

	// TableCellStyle formats table rows.
	TableCellStyle = lipgloss.NewStyle().
			PaddingRight(2)

	// PromptStyle is used for user prompts.
	PromptStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(PrimaryColor)
)

// Icons.
const (
	SuccessIcon = "✓"
	ErrorIcon   = "✗"
	WarningIcon = "⚠️"
	InfoIcon    = "ℹ️"
	RateIcon    = "💱"
	ChartIcon   = "📊"
	FolderIcon  = "🗄️"
)

// FormatSuccess formats a success message with icon.
func FormatSuccess(message string) string {
	return SuccessStyle.Render(SuccessIcon + " " + message)
}

// FormatError formats an error message with icon.
func FormatError(message string) string {
	return ErrorStyle.Render(ErrorIcon + " " + message)
}

// FormatWarning formats a warning message with icon.
func FormatWarning(message string) string {
	return WarningStyle.Render(WarningIcon + " " + message)
}

// FormatInfo formats an info message with icon.
func FormatInfo(message string) string {
	return InfoStyle.Render(InfoIcon + " " + message)
}

// FormatTitle formats a title with the rate icon.
func FormatTitle(title string) string {
	return TitleStyle.Render(RateIcon + " " + title)
}

// FormatPrompt formats a prompt message.
func FormatPrompt(prompt string) string {
	return PromptStyle.Render(prompt + " →")
}

// RenderBox renders content in a styled box.
func RenderBox(title, content string) string {
	boxTitle := TitleStyle.
		UnsetMargins().
		Render(title)

	boxContent := lipgloss.JoinVertical(
		lipgloss.Left,
		boxTitle,
		content,
	)

	return BoxStyle.Render(boxContent)
}

// RenderTable renders rows under styled headers with aligned columns.
func RenderTable(headers []string, rows [][]string) string {
	widths := make([]int, len(headers))
	for i, h := range headers {
		widths[i] = lipgloss.Width(h)
	}
	for _, row := range rows {
		for i, cell := range row {
			if i < len(widths) && lipgloss.Width(cell) > widths[i] {
				widths[i] = lipgloss.Width(cell)
			}
		}
	}

	pad := func(s string, width int) string {
		return s + strings.Repeat(" ", width-lipgloss.Width(s))
	}

	headerCells := make([]string, len(headers))
	for i, h := range headers {
		headerCells[i] = pad(h, widths[i])
	}

	lines := make([]string, 0, len(rows)+1)
	lines = append(lines, TableHeaderStyle.Render(strings.Join(headerCells, "  ")))

	for _, row := range rows {
		cells := make([]string, len(row))
		for i, cell := range row {
			if i < len(widths) {
				cells[i] = pad(cell, widths[i])
			} else {
				cells[i] = cell
			}
		}
		lines = append(lines, TableCellStyle.Render(strings.Join(cells, "  ")))
	}

	return strings.Join(lines, "\n")
}
