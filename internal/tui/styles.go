package tui

import "github.com/charmbracelet/lipgloss"

// Styles contains all the lipgloss styles for the TUI.
type Styles struct {
	// App
	App lipgloss.Style

	// Title
	Title lipgloss.Style

	// Connection badges
	StatusOnline  lipgloss.Style
	StatusOffline lipgloss.Style
	StatusFailed  lipgloss.Style

	// Direction pad
	PadKey    lipgloss.Style
	PadActive lipgloss.Style

	// Servos
	Section     lipgloss.Style
	Label       lipgloss.Style
	LabelActive lipgloss.Style
	Value       lipgloss.Style

	Muted   lipgloss.Style
	Warning lipgloss.Style

	// Help
	Help lipgloss.Style
}

// DefaultStyles returns the default color scheme.
func DefaultStyles() Styles {
	subtle := lipgloss.AdaptiveColor{Light: "#9B9B9B", Dark: "#5C5C5C"}
	highlight := lipgloss.AdaptiveColor{Light: "#874BFD", Dark: "#7D56F4"}
	special := lipgloss.AdaptiveColor{Light: "#43BF6D", Dark: "#73F59F"}
	text := lipgloss.AdaptiveColor{Light: "#343433", Dark: "#C1C6B2"}

	return Styles{
		App: lipgloss.NewStyle().
			Padding(1, 2),

		Title: lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("#FAFAFA")).
			Background(highlight).
			Padding(0, 1),

		StatusOnline: lipgloss.NewStyle().
			Foreground(special).
			Bold(true),

		StatusOffline: lipgloss.NewStyle().
			Foreground(lipgloss.Color("#FF6B6B")).
			Bold(true),

		StatusFailed: lipgloss.NewStyle().
			Foreground(lipgloss.Color("#FFCC00")).
			Bold(true),

		PadKey: lipgloss.NewStyle().
			Foreground(text).
			Border(lipgloss.RoundedBorder()).
			BorderForeground(subtle).
			Width(3).
			Align(lipgloss.Center),

		PadActive: lipgloss.NewStyle().
			Foreground(lipgloss.Color("#FAFAFA")).
			Background(highlight).
			Bold(true).
			Border(lipgloss.RoundedBorder()).
			BorderForeground(highlight).
			Width(3).
			Align(lipgloss.Center),

		Section: lipgloss.NewStyle().
			Foreground(highlight).
			Bold(true).
			MarginTop(1),

		Label: lipgloss.NewStyle().
			Foreground(subtle).
			Width(10),

		LabelActive: lipgloss.NewStyle().
			Foreground(highlight).
			Bold(true).
			Width(10),

		Value: lipgloss.NewStyle().
			Foreground(text).
			Width(6).
			Align(lipgloss.Right),

		Muted: lipgloss.NewStyle().
			Foreground(subtle),

		Warning: lipgloss.NewStyle().
			Foreground(lipgloss.Color("#FFCC00")),

		Help: lipgloss.NewStyle().
			Foreground(subtle).
			MarginTop(1),
	}
}
