package styles

import (
	"fmt"
	"io"
	"os"

	"github.com/charmbracelet/lipgloss"
)

var defaultStyle = lipgloss.NewStyle().
	Foreground(lipgloss.Color("#7D56F4"))

var errorStyle = lipgloss.NewStyle().
	Foreground(lipgloss.Color("#F45E6E"))

var successStyle = lipgloss.NewStyle().
	Foreground(lipgloss.Color("#6ef4a1ff"))

var infoStyle = lipgloss.NewStyle().
	Foreground(lipgloss.Color("#6EC4F4"))

var headerStyle = lipgloss.NewStyle().
	Bold(true).
	Foreground(lipgloss.Color("#7D56F4"))

var dimStyle = lipgloss.NewStyle().
	Foreground(lipgloss.Color("#8A8A8A"))

func pick(style string) lipgloss.Style {
	switch style {
	case "error":
		return errorStyle
	case "success":
		return successStyle
	case "info":
		return infoStyle
	case "header":
		return headerStyle
	case "dim":
		return dimStyle
	default:
		return defaultStyle
	}
}

// PrintFS prints a styled, formatted line to stdout.
func PrintFS(style string, format string, a ...interface{}) {
	FprintFS(os.Stdout, style, format, a...)
}

// FprintFS is PrintFS with an explicit destination.
func FprintFS(w io.Writer, style string, format string, a ...interface{}) {
	fmt.Fprintln(w, SprintfS(style, format, a...))
}

func SprintfS(style string, format string, a ...interface{}) string {
	return pick(style).Render(fmt.Sprintf(format, a...))
}
