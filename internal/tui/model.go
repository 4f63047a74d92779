package tui

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/charmbracelet/bubbles/help"
	"github.com/charmbracelet/bubbles/key"
	"github.com/charmbracelet/bubbles/progress"
	"github.com/charmbracelet/bubbles/spinner"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/chaz8081/bleremote/internal/ble"
	"github.com/chaz8081/bleremote/internal/control"
	"github.com/chaz8081/bleremote/internal/protocol"
)

// Remote is the control surface the TUI drives. *control.Controller
// implements it.
type Remote interface {
	Snapshot() control.State
	Changes() <-chan struct{}
	PressDirection(d protocol.Direction) error
	NudgeAngle(i, delta int) error
	RequestPair(ctx context.Context, role ble.Role) error
	RequestDisconnect(role ble.Role) error
	DismissNotice()
}

var _ Remote = (*control.Controller)(nil)

const defaultBarWidth = 30

// Model is the main Bubbletea model for the TUI.
type Model struct {
	ctx    context.Context
	remote Remote

	// State
	state   control.State
	axis    int               // selected servo
	pairing map[ble.Role]bool // pair commands in flight

	// Components
	keys    KeyMap
	help    help.Model
	spinner spinner.Model
	bar     progress.Model
	styles  Styles
}

// --- Custom messages for async operations ---

// stateChangedMsg signals the controller state changed.
type stateChangedMsg struct{}

// pairDoneMsg signals a pairing attempt finished.
type pairDoneMsg struct {
	role ble.Role
	err  error
}

// disconnectDoneMsg signals an explicit disconnect finished.
type disconnectDoneMsg struct {
	role ble.Role
	err  error
}

// NewModel creates a new TUI model over remote. ctx bounds pairing attempts.
func NewModel(ctx context.Context, remote Remote) Model {
	h := help.New()
	h.ShowAll = false // Use ShortHelp for horizontal layout

	s := spinner.New()
	s.Spinner = spinner.Dot
	s.Style = lipgloss.NewStyle().Foreground(lipgloss.Color("#7D56F4"))

	bar := progress.New(
		progress.WithDefaultGradient(),
		progress.WithWidth(defaultBarWidth),
		progress.WithoutPercentage(),
	)

	return Model{
		ctx:     ctx,
		remote:  remote,
		state:   remote.Snapshot(),
		pairing: make(map[ble.Role]bool),
		keys:    DefaultKeyMap(),
		help:    h,
		spinner: s,
		bar:     bar,
		styles:  DefaultStyles(),
	}
}

// Init initializes the model.
func (m Model) Init() tea.Cmd {
	return tea.Batch(waitForChange(m.remote.Changes()), m.spinner.Tick)
}

// waitForChange blocks until the controller signals a change.
func waitForChange(ch <-chan struct{}) tea.Cmd {
	return func() tea.Msg {
		if _, ok := <-ch; !ok {
			return nil
		}
		return stateChangedMsg{}
	}
}

func pairCmd(ctx context.Context, remote Remote, role ble.Role) tea.Cmd {
	return func() tea.Msg {
		return pairDoneMsg{role: role, err: remote.RequestPair(ctx, role)}
	}
}

func disconnectCmd(remote Remote, role ble.Role) tea.Cmd {
	return func() tea.Msg {
		return disconnectDoneMsg{role: role, err: remote.RequestDisconnect(role)}
	}
}

// Update handles messages and updates the model.
func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		return m.handleKey(msg)

	case tea.WindowSizeMsg:
		m.help.Width = msg.Width
		if w := msg.Width - 30; w > 10 && w < defaultBarWidth {
			m.bar.Width = w
		}
		return m, nil

	case stateChangedMsg:
		m.state = m.remote.Snapshot()
		return m, waitForChange(m.remote.Changes())

	case pairDoneMsg:
		delete(m.pairing, msg.role)
		if msg.err != nil {
			slog.Debug("[TUI] pairing finished with error", "role", msg.role, "error", msg.err)
		}
		m.state = m.remote.Snapshot()
		return m, nil

	case disconnectDoneMsg:
		if msg.err != nil {
			slog.Warn("[TUI] disconnect failed", "role", msg.role, "error", msg.err)
		}
		m.state = m.remote.Snapshot()
		return m, nil

	case spinner.TickMsg:
		var cmd tea.Cmd
		m.spinner, cmd = m.spinner.Update(msg)
		return m, cmd
	}

	return m, nil
}

func (m Model) handleKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch {
	case key.Matches(msg, m.keys.Quit):
		return m, tea.Quit

	case key.Matches(msg, m.keys.Up):
		return m.press(protocol.DirectionUp)
	case key.Matches(msg, m.keys.Down):
		return m.press(protocol.DirectionDown)
	case key.Matches(msg, m.keys.Left):
		return m.press(protocol.DirectionLeft)
	case key.Matches(msg, m.keys.Right):
		return m.press(protocol.DirectionRight)
	case key.Matches(msg, m.keys.Stop):
		return m.press(protocol.DirectionStop)

	case key.Matches(msg, m.keys.NextAxis):
		m.axis = (m.axis + 1) % protocol.AxisCount
	case key.Matches(msg, m.keys.PrevAxis):
		m.axis = (m.axis + protocol.AxisCount - 1) % protocol.AxisCount

	case key.Matches(msg, m.keys.Inc):
		return m.nudge(1)
	case key.Matches(msg, m.keys.Dec):
		return m.nudge(-1)
	case key.Matches(msg, m.keys.IncBig):
		return m.nudge(10)
	case key.Matches(msg, m.keys.DecBig):
		return m.nudge(-10)

	case key.Matches(msg, m.keys.PairDirection):
		return m.pair(ble.RoleDirection)
	case key.Matches(msg, m.keys.PairServo):
		return m.pair(ble.RoleServo)
	case key.Matches(msg, m.keys.DropDirection):
		return m, disconnectCmd(m.remote, ble.RoleDirection)
	case key.Matches(msg, m.keys.DropServo):
		return m, disconnectCmd(m.remote, ble.RoleServo)

	case key.Matches(msg, m.keys.Dismiss):
		m.remote.DismissNotice()
		m.state = m.remote.Snapshot()
	case key.Matches(msg, m.keys.Help):
		m.help.ShowAll = !m.help.ShowAll
	}
	return m, nil
}

// press and nudge ignore ErrNotConnected: the controller has already turned
// it into a notice and kept the local state.
func (m Model) press(d protocol.Direction) (tea.Model, tea.Cmd) {
	if err := m.remote.PressDirection(d); err != nil && !errors.Is(err, ble.ErrNotConnected) {
		slog.Debug("[TUI] press failed", "direction", d, "error", err)
	}
	m.state = m.remote.Snapshot()
	return m, nil
}

func (m Model) nudge(delta int) (tea.Model, tea.Cmd) {
	if err := m.remote.NudgeAngle(m.axis, delta); err != nil && !errors.Is(err, ble.ErrNotConnected) {
		slog.Debug("[TUI] nudge failed", "axis", m.axis, "error", err)
	}
	m.state = m.remote.Snapshot()
	return m, nil
}

func (m Model) pair(role ble.Role) (tea.Model, tea.Cmd) {
	if m.pairing[role] {
		return m, nil
	}
	m.pairing[role] = true
	return m, pairCmd(m.ctx, m.remote, role)
}

// View renders the model.
func (m Model) View() string {
	var b strings.Builder

	b.WriteString(m.renderTitleBar())
	b.WriteString("\n")

	b.WriteString(m.styles.Section.Render("Direction"))
	b.WriteString("\n")
	b.WriteString(m.renderPad())
	b.WriteString("\n")

	b.WriteString(m.styles.Section.Render("Servos"))
	b.WriteString("\n")
	b.WriteString(m.renderServos())

	if m.state.Notice != "" {
		b.WriteString("\n")
		b.WriteString(m.styles.Warning.Render(m.state.Notice))
		b.WriteString("  ")
		b.WriteString(m.styles.Muted.Render(fmt.Sprintf("[%s to dismiss]", m.keys.Dismiss.Help().Key)))
		b.WriteString("\n")
	}

	helpView := m.styles.Help.Render(m.help.View(m.keys))
	return m.styles.App.Render(b.String() + "\n" + helpView)
}

// renderTitleBar renders the title followed by one badge per role.
func (m Model) renderTitleBar() string {
	parts := []string{m.styles.Title.Render("BLE Remote")}
	for _, role := range ble.Roles() {
		parts = append(parts, m.renderBadge(role))
	}
	return strings.Join(parts, "  ")
}

func (m Model) renderBadge(role ble.Role) string {
	state := m.state.Connection[role]
	if m.pairing[role] || state == ble.StateConnecting {
		return m.spinner.View() + " " + m.styles.Warning.Render(role.String()+" pairing...")
	}
	switch state {
	case ble.StateConnected:
		badge := m.styles.StatusOnline.Render("● " + role.String() + " Online")
		if name := m.state.Devices[role]; name != "" {
			badge += " " + m.styles.Muted.Render(name)
		}
		return badge
	case ble.StateFailed:
		return m.styles.StatusFailed.Render("✕ " + role.String() + " Failed")
	default:
		return m.styles.StatusOffline.Render("○ " + role.String() + " Offline")
	}
}

// renderPad renders the five direction buttons, highlighting the one
// pressed within the pulse window.
func (m Model) renderPad() string {
	button := func(d protocol.Direction, glyph string) string {
		if m.state.Pressed && m.state.Active == d {
			return m.styles.PadActive.Render(glyph)
		}
		return m.styles.PadKey.Render(glyph)
	}
	spacer := lipgloss.NewStyle().Width(5).Render("")

	top := lipgloss.JoinHorizontal(lipgloss.Top, spacer, button(protocol.DirectionUp, "▲"))
	middle := lipgloss.JoinHorizontal(lipgloss.Top,
		button(protocol.DirectionLeft, "◀"),
		button(protocol.DirectionStop, "■"),
		button(protocol.DirectionRight, "▶"),
	)
	bottom := lipgloss.JoinHorizontal(lipgloss.Top, spacer, button(protocol.DirectionDown, "▼"))
	return lipgloss.JoinVertical(lipgloss.Left, top, middle, bottom)
}

func (m Model) renderServos() string {
	var b strings.Builder
	for i, angle := range m.state.Angles {
		label := fmt.Sprintf("Servo %d", i+1)
		if i == m.axis {
			b.WriteString(m.styles.LabelActive.Render("> " + label))
		} else {
			b.WriteString(m.styles.Label.Render("  " + label))
		}
		b.WriteString(m.bar.ViewAs(float64(angle) / protocol.MaxAngle))
		b.WriteString(m.styles.Value.Render(fmt.Sprintf("%d°", angle)))
		b.WriteString("\n")
	}
	return b.String()
}
