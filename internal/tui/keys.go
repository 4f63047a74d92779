package tui

import "github.com/charmbracelet/bubbles/key"

// KeyMap defines all keybindings for the TUI.
type KeyMap struct {
	Up    key.Binding
	Down  key.Binding
	Left  key.Binding
	Right key.Binding
	Stop  key.Binding

	NextAxis key.Binding
	PrevAxis key.Binding
	Inc      key.Binding
	Dec      key.Binding
	IncBig   key.Binding
	DecBig   key.Binding

	PairDirection key.Binding
	PairServo     key.Binding
	DropDirection key.Binding
	DropServo     key.Binding

	Dismiss key.Binding
	Help    key.Binding
	Quit    key.Binding
}

// DefaultKeyMap returns the default keybindings.
func DefaultKeyMap() KeyMap {
	return KeyMap{
		Up: key.NewBinding(
			key.WithKeys("up"),
			key.WithHelp("↑", "up"),
		),
		Down: key.NewBinding(
			key.WithKeys("down"),
			key.WithHelp("↓", "down"),
		),
		Left: key.NewBinding(
			key.WithKeys("left"),
			key.WithHelp("←", "left"),
		),
		Right: key.NewBinding(
			key.WithKeys("right"),
			key.WithHelp("→", "right"),
		),
		Stop: key.NewBinding(
			key.WithKeys(" "),
			key.WithHelp("space", "stop"),
		),
		NextAxis: key.NewBinding(
			key.WithKeys("tab"),
			key.WithHelp("tab", "next servo"),
		),
		PrevAxis: key.NewBinding(
			key.WithKeys("shift+tab"),
			key.WithHelp("shift+tab", "prev servo"),
		),
		Inc: key.NewBinding(
			key.WithKeys("l"),
			key.WithHelp("l", "+1°"),
		),
		Dec: key.NewBinding(
			key.WithKeys("h"),
			key.WithHelp("h", "-1°"),
		),
		IncBig: key.NewBinding(
			key.WithKeys("L"),
			key.WithHelp("L", "+10°"),
		),
		DecBig: key.NewBinding(
			key.WithKeys("H"),
			key.WithHelp("H", "-10°"),
		),
		PairDirection: key.NewBinding(
			key.WithKeys("c"),
			key.WithHelp("c", "pair direction"),
		),
		PairServo: key.NewBinding(
			key.WithKeys("v"),
			key.WithHelp("v", "pair servo"),
		),
		DropDirection: key.NewBinding(
			key.WithKeys("C"),
			key.WithHelp("C", "drop direction"),
		),
		DropServo: key.NewBinding(
			key.WithKeys("V"),
			key.WithHelp("V", "drop servo"),
		),
		Dismiss: key.NewBinding(
			key.WithKeys("esc"),
			key.WithHelp("esc", "dismiss"),
		),
		Help: key.NewBinding(
			key.WithKeys("?"),
			key.WithHelp("?", "help"),
		),
		Quit: key.NewBinding(
			key.WithKeys("q", "ctrl+c"),
			key.WithHelp("q", "quit"),
		),
	}
}

// ShortHelp returns keybindings to show in the help view (horizontal).
func (k KeyMap) ShortHelp() []key.Binding {
	return []key.Binding{k.Stop, k.NextAxis, k.Dec, k.Inc, k.PairDirection, k.PairServo, k.Help, k.Quit}
}

// FullHelp returns keybindings for the expanded help view.
func (k KeyMap) FullHelp() [][]key.Binding {
	return [][]key.Binding{
		{k.Up, k.Down, k.Left, k.Right, k.Stop},
		{k.NextAxis, k.PrevAxis, k.Dec, k.Inc, k.DecBig, k.IncBig},
		{k.PairDirection, k.PairServo, k.DropDirection, k.DropServo},
		{k.Dismiss, k.Help, k.Quit},
	}
}
