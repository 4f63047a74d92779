// Package control holds the remote's process-local control state (servo
// angles, the pulsing direction indicator, per-role connectedness) and the
// gesture handlers that turn UI input into peripheral commands.
package control

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/chaz8081/bleremote/internal/ble"
	"github.com/chaz8081/bleremote/internal/protocol"
)

// ErrInvalidAxis is returned for a servo index outside [0, AxisCount).
var ErrInvalidAxis = errors.New("control: invalid servo axis")

// Session is the subset of *ble.Session the controller drives.
type Session interface {
	Role() ble.Role
	State() ble.State
	Send(payload []byte) error
	Pair(ctx context.Context) error
	Disconnect() error
	Subscribe(fn func(ble.Event))
}

// Compile-time interface satisfaction check.
var _ Session = (*ble.Session)(nil)

// Options configures a Controller.
type Options struct {
	Pulse         time.Duration // how long a pressed direction stays highlighted; 0 disables
	InitialAngles protocol.Angles
}

// DefaultOptions returns the stock pulse and centred servos.
func DefaultOptions() Options {
	return Options{
		Pulse:         200 * time.Millisecond,
		InitialAngles: protocol.DefaultAngles(),
	}
}

// State is a point-in-time copy of the control state for rendering.
type State struct {
	Angles     protocol.Angles
	Active     protocol.Direction
	Pressed    bool // Active is meaningful only while Pressed
	Connection map[ble.Role]ble.State
	Devices    map[ble.Role]string
	Notice     string
}

// Controller owns the control state and routes gestures to the sessions.
// Safe for concurrent use.
type Controller struct {
	sessions map[ble.Role]Session
	opts     Options

	mu       sync.Mutex
	angles   protocol.Angles
	active   protocol.Direction
	pressed  bool
	pressGen uint64
	pulse    *time.Timer
	conn     map[ble.Role]ble.State
	devices  map[ble.Role]string
	notice   string

	changes chan struct{}
}

// New creates a Controller over the Direction and Servo sessions and
// subscribes to their lifecycle events.
func New(direction, servo Session, opts Options) (*Controller, error) {
	if direction == nil || servo == nil {
		return nil, errors.New("control: both sessions are required")
	}
	if direction.Role() != ble.RoleDirection || servo.Role() != ble.RoleServo {
		return nil, fmt.Errorf("control: sessions have roles %s/%s, want Direction/Servo", direction.Role(), servo.Role())
	}
	if !opts.InitialAngles.Valid() {
		return nil, fmt.Errorf("control: initial angles %v out of range", opts.InitialAngles)
	}
	if opts.Pulse < 0 {
		opts.Pulse = 0
	}

	c := &Controller{
		sessions: map[ble.Role]Session{
			ble.RoleDirection: direction,
			ble.RoleServo:     servo,
		},
		opts:    opts,
		angles:  opts.InitialAngles,
		conn:    make(map[ble.Role]ble.State),
		devices: make(map[ble.Role]string),
		changes: make(chan struct{}, 1),
	}
	for role, s := range c.sessions {
		c.conn[role] = s.State()
		s.Subscribe(c.HandleEvent)
	}
	return c, nil
}

// Changes delivers a coalesced signal whenever the state changes.
func (c *Controller) Changes() <-chan struct{} {
	return c.changes
}

func (c *Controller) notify() {
	select {
	case c.changes <- struct{}{}:
	default:
	}
}

// Snapshot returns a copy of the current state.
func (c *Controller) Snapshot() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	st := State{
		Angles:     c.angles,
		Active:     c.active,
		Pressed:    c.pressed,
		Connection: make(map[ble.Role]ble.State, len(c.conn)),
		Devices:    make(map[ble.Role]string, len(c.devices)),
		Notice:     c.notice,
	}
	for r, s := range c.conn {
		st.Connection[r] = s
	}
	for r, d := range c.devices {
		st.Devices[r] = d
	}
	return st
}

// PressDirection highlights d, schedules the highlight to clear after the
// pulse, and sends d to the Direction peripheral without waiting for it.
// The returned error is the send outcome (ErrNotConnected when unpaired).
func (c *Controller) PressDirection(d protocol.Direction) error {
	if !d.Valid() {
		return fmt.Errorf("control: invalid direction %d", uint8(d))
	}

	c.mu.Lock()
	c.active = d
	c.pressed = true
	c.pressGen++
	gen := c.pressGen
	if c.pulse != nil {
		c.pulse.Stop()
	}
	if c.opts.Pulse > 0 {
		c.pulse = time.AfterFunc(c.opts.Pulse, func() { c.clearPulse(gen) })
	}
	// Enqueue under the lock so send order always matches press order.
	err := c.sessions[ble.RoleDirection].Send(protocol.EncodeDirection(d))
	c.noteSendLocked(ble.RoleDirection, err)
	c.mu.Unlock()

	c.notify()
	return err
}

func (c *Controller) clearPulse(gen uint64) {
	c.mu.Lock()
	if gen != c.pressGen {
		c.mu.Unlock()
		return
	}
	c.pressed = false
	c.mu.Unlock()
	c.notify()
}

// SetAngle sets servo axis i (0-based) to val, clamped to the servo range,
// and sends the entire vector to the Servo peripheral. The local vector is
// updated even when the peripheral is not connected.
func (c *Controller) SetAngle(i, val int) error {
	if i < 0 || i >= protocol.AxisCount {
		return fmt.Errorf("%w: %d", ErrInvalidAxis, i)
	}
	c.mu.Lock()
	err := c.setAngleLocked(i, protocol.ClampAngle(val))
	c.mu.Unlock()
	c.notify()
	return err
}

// NudgeAngle moves axis i by delta degrees, clamped to the servo range.
func (c *Controller) NudgeAngle(i, delta int) error {
	if i < 0 || i >= protocol.AxisCount {
		return fmt.Errorf("%w: %d", ErrInvalidAxis, i)
	}
	c.mu.Lock()
	err := c.setAngleLocked(i, protocol.ClampAngle(c.angles[i]+delta))
	c.mu.Unlock()
	c.notify()
	return err
}

// SetAngles replaces the whole vector and sends it once.
func (c *Controller) SetAngles(a protocol.Angles) error {
	if !a.Valid() {
		return fmt.Errorf("control: angles %v: %w", a, protocol.ErrAngleRange)
	}
	c.mu.Lock()
	c.angles = a
	err := c.sessions[ble.RoleServo].Send(protocol.EncodeAngles(a))
	c.noteSendLocked(ble.RoleServo, err)
	c.mu.Unlock()
	c.notify()
	return err
}

func (c *Controller) setAngleLocked(i, val int) error {
	c.angles[i] = val
	err := c.sessions[ble.RoleServo].Send(protocol.EncodeAngles(c.angles))
	c.noteSendLocked(ble.RoleServo, err)
	return err
}

// noteSendLocked turns a dropped send into a lightweight notice.
func (c *Controller) noteSendLocked(role ble.Role, err error) {
	if err == nil {
		return
	}
	if errors.Is(err, ble.ErrNotConnected) {
		slog.Debug("[CTRL] send dropped, not connected", "role", role)
		c.notice = fmt.Sprintf("%s not connected", role)
		return
	}
	slog.Warn("[CTRL] send failed", "role", role, "error", err)
	c.notice = fmt.Sprintf("%s: %v", role, err)
}

// RequestPair pairs the session for role. Failures are reported through
// the returned error and the notice; they are never fatal.
func (c *Controller) RequestPair(ctx context.Context, role ble.Role) error {
	s, ok := c.sessions[role]
	if !ok {
		return fmt.Errorf("control: unknown role %s", role)
	}
	err := s.Pair(ctx)
	if errors.Is(err, ble.ErrPairInProgress) {
		c.mu.Lock()
		c.notice = fmt.Sprintf("%s pairing already in progress", role)
		c.mu.Unlock()
		c.notify()
	}
	return err
}

// RequestDisconnect closes the link for role.
func (c *Controller) RequestDisconnect(role ble.Role) error {
	s, ok := c.sessions[role]
	if !ok {
		return fmt.Errorf("control: unknown role %s", role)
	}
	return s.Disconnect()
}

// HandleEvent folds a session lifecycle event into the state.
func (c *Controller) HandleEvent(ev ble.Event) {
	c.mu.Lock()
	switch ev.Type {
	case ble.EventStateChanged:
		c.conn[ev.Role] = ev.State
		switch ev.State {
		case ble.StateConnected:
			c.devices[ev.Role] = ev.Device.Name
			c.notice = fmt.Sprintf("%s connected", ev.Role)
		case ble.StateDisconnected:
			delete(c.devices, ev.Role)
		}
	case ble.EventPairFailed:
		c.conn[ev.Role] = ev.State
		delete(c.devices, ev.Role)
		c.notice = fmt.Sprintf("%s pairing failed: %v", ev.Role, ev.Err)
	case ble.EventLinkLost:
		c.conn[ev.Role] = ev.State
		delete(c.devices, ev.Role)
		c.notice = fmt.Sprintf("%s link lost", ev.Role)
	case ble.EventWriteFailed:
		// Every gesture resends full state, so a failed write is only traced.
		slog.Debug("[CTRL] write failed", "role", ev.Role, "error", ev.Err)
		c.mu.Unlock()
		return
	}
	c.mu.Unlock()
	c.notify()
}

// DismissNotice clears the one-shot notice.
func (c *Controller) DismissNotice() {
	c.mu.Lock()
	c.notice = ""
	c.mu.Unlock()
	c.notify()
}

// Close stops the pulse timer.
func (c *Controller) Close() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.pulse != nil {
		c.pulse.Stop()
	}
}
