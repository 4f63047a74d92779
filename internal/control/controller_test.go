package control

import (
	"bytes"
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/chaz8081/bleremote/internal/ble"
	"github.com/chaz8081/bleremote/internal/protocol"
)

// fakeSession records sent payloads and lets tests drive lifecycle events.
type fakeSession struct {
	role ble.Role

	mu        sync.Mutex
	state     ble.State
	sent      [][]byte
	pairErr   error
	listeners []func(ble.Event)
}

func newFakeSession(role ble.Role) *fakeSession {
	return &fakeSession{role: role}
}

func (f *fakeSession) Role() ble.Role { return f.role }

func (f *fakeSession) State() ble.State {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.state
}

func (f *fakeSession) Send(payload []byte) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.state != ble.StateConnected {
		return ble.ErrNotConnected
	}
	cp := make([]byte, len(payload))
	copy(cp, payload)
	f.sent = append(f.sent, cp)
	return nil
}

func (f *fakeSession) Pair(ctx context.Context) error {
	f.emit(ble.Event{Type: ble.EventStateChanged, State: ble.StateConnecting})
	f.mu.Lock()
	err := f.pairErr
	f.mu.Unlock()
	if err != nil {
		f.setState(ble.StateFailed)
		f.emit(ble.Event{Type: ble.EventPairFailed, State: ble.StateFailed, Err: err})
		return err
	}
	f.setState(ble.StateConnected)
	f.emit(ble.Event{Type: ble.EventStateChanged, State: ble.StateConnected, Device: ble.Device{Name: "ESP-" + f.role.String()}})
	return nil
}

func (f *fakeSession) Disconnect() error {
	f.setState(ble.StateDisconnected)
	f.emit(ble.Event{Type: ble.EventStateChanged, State: ble.StateDisconnected})
	return nil
}

func (f *fakeSession) Subscribe(fn func(ble.Event)) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.listeners = append(f.listeners, fn)
}

func (f *fakeSession) setState(s ble.State) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.state = s
}

func (f *fakeSession) emit(ev ble.Event) {
	ev.Role = f.role
	f.mu.Lock()
	ls := append([]func(ble.Event){}, f.listeners...)
	f.mu.Unlock()
	for _, fn := range ls {
		fn(ev)
	}
}

func (f *fakeSession) payloads() [][]byte {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([][]byte, len(f.sent))
	copy(out, f.sent)
	return out
}

func newTestController(t *testing.T, opts Options) (*Controller, *fakeSession, *fakeSession) {
	t.Helper()
	dir := newFakeSession(ble.RoleDirection)
	servo := newFakeSession(ble.RoleServo)
	c, err := New(dir, servo, opts)
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	t.Cleanup(c.Close)
	return c, dir, servo
}

func TestNewValidatesSessions(t *testing.T) {
	dir := newFakeSession(ble.RoleDirection)
	servo := newFakeSession(ble.RoleServo)

	if _, err := New(servo, dir, DefaultOptions()); err == nil {
		t.Error("New() with swapped roles should fail")
	}
	if _, err := New(nil, servo, DefaultOptions()); err == nil {
		t.Error("New() with nil session should fail")
	}
	opts := DefaultOptions()
	opts.InitialAngles[0] = 200
	if _, err := New(dir, servo, opts); err == nil {
		t.Error("New() with out-of-range initial angles should fail")
	}
}

func TestInitialState(t *testing.T) {
	c, _, _ := newTestController(t, DefaultOptions())
	st := c.Snapshot()
	if st.Angles != protocol.DefaultAngles() {
		t.Errorf("Angles = %v, want %v", st.Angles, protocol.DefaultAngles())
	}
	if st.Pressed {
		t.Error("no direction should be active initially")
	}
	for _, r := range ble.Roles() {
		if st.Connection[r] != ble.StateDisconnected {
			t.Errorf("Connection[%s] = %v, want disconnected", r, st.Connection[r])
		}
	}
}

func TestPairThenPressDirections(t *testing.T) {
	c, dir, _ := newTestController(t, DefaultOptions())

	if err := c.RequestPair(context.Background(), ble.RoleDirection); err != nil {
		t.Fatalf("RequestPair() error = %v", err)
	}
	st := c.Snapshot()
	if st.Connection[ble.RoleDirection] != ble.StateConnected {
		t.Fatalf("Connection[Direction] = %v, want connected", st.Connection[ble.RoleDirection])
	}
	if st.Devices[ble.RoleDirection] != "ESP-Direction" {
		t.Errorf("Devices[Direction] = %q, want ESP-Direction", st.Devices[ble.RoleDirection])
	}
	if st.Notice != "Direction connected" {
		t.Errorf("Notice = %q, want %q", st.Notice, "Direction connected")
	}

	if err := c.PressDirection(protocol.DirectionUp); err != nil {
		t.Fatalf("PressDirection(up) error = %v", err)
	}
	if err := c.PressDirection(protocol.DirectionStop); err != nil {
		t.Fatalf("PressDirection(stop) error = %v", err)
	}

	got := dir.payloads()
	want := [][]byte{{1}, {0}}
	if len(got) != len(want) {
		t.Fatalf("sent = %v, want %v", got, want)
	}
	for i := range want {
		if !bytes.Equal(got[i], want[i]) {
			t.Errorf("sent[%d] = %v, want %v", i, got[i], want[i])
		}
	}
}

func TestSetAngleWithoutServoSession(t *testing.T) {
	c, _, servo := newTestController(t, DefaultOptions())

	err := c.SetAngle(2, 45)
	if !errors.Is(err, ble.ErrNotConnected) {
		t.Fatalf("SetAngle() error = %v, want ErrNotConnected", err)
	}
	st := c.Snapshot()
	if want := (protocol.Angles{90, 90, 45, 90, 90}); st.Angles != want {
		t.Errorf("Angles = %v, want %v", st.Angles, want)
	}
	if len(servo.payloads()) != 0 {
		t.Errorf("sent = %v, want none", servo.payloads())
	}
	if st.Notice != "Servo not connected" {
		t.Errorf("Notice = %q, want %q", st.Notice, "Servo not connected")
	}
}

func TestSetAngleSendsWholeVector(t *testing.T) {
	c, _, servo := newTestController(t, DefaultOptions())
	if err := c.RequestPair(context.Background(), ble.RoleServo); err != nil {
		t.Fatalf("RequestPair() error = %v", err)
	}

	_ = c.SetAngle(0, 10)
	_ = c.SetAngle(1, 170)

	got := servo.payloads()
	if len(got) != 2 {
		t.Fatalf("sent %d payloads, want 2 (one per change)", len(got))
	}
	if want := []byte{10, 90, 90, 90, 90}; !bytes.Equal(got[0], want) {
		t.Errorf("sent[0] = %v, want %v", got[0], want)
	}
	if want := []byte{10, 170, 90, 90, 90}; !bytes.Equal(got[1], want) {
		t.Errorf("sent[1] = %v, want %v", got[1], want)
	}
}

func TestSetAngleClampsAndValidatesAxis(t *testing.T) {
	c, _, _ := newTestController(t, DefaultOptions())

	_ = c.SetAngle(4, 250)
	_ = c.SetAngle(3, -20)
	st := c.Snapshot()
	if st.Angles[4] != 180 || st.Angles[3] != 0 {
		t.Errorf("Angles = %v, want axis 3 = 0 and axis 4 = 180", st.Angles)
	}

	for _, i := range []int{-1, protocol.AxisCount} {
		if err := c.SetAngle(i, 10); !errors.Is(err, ErrInvalidAxis) {
			t.Errorf("SetAngle(%d) error = %v, want ErrInvalidAxis", i, err)
		}
	}
}

func TestNudgeAngle(t *testing.T) {
	c, _, servo := newTestController(t, DefaultOptions())
	_ = c.RequestPair(context.Background(), ble.RoleServo)

	_ = c.NudgeAngle(0, 10)
	_ = c.NudgeAngle(0, 100)
	if got := c.Snapshot().Angles[0]; got != 180 {
		t.Errorf("Angles[0] = %d, want 180", got)
	}
	sent := servo.payloads()
	if last := sent[len(sent)-1]; last[0] != 180 {
		t.Errorf("last payload = %v, want axis 1 = 180", last)
	}
}

func TestSetAngles(t *testing.T) {
	c, _, servo := newTestController(t, DefaultOptions())
	_ = c.RequestPair(context.Background(), ble.RoleServo)

	if err := c.SetAngles(protocol.Angles{1, 2, 3, 4, 5}); err != nil {
		t.Fatalf("SetAngles() error = %v", err)
	}
	if err := c.SetAngles(protocol.Angles{1, 2, 3, 4, 181}); !errors.Is(err, protocol.ErrAngleRange) {
		t.Errorf("SetAngles(out of range) error = %v, want ErrAngleRange", err)
	}
	if got := servo.payloads(); len(got) != 1 || !bytes.Equal(got[0], []byte{1, 2, 3, 4, 5}) {
		t.Errorf("sent = %v, want [[1 2 3 4 5]]", got)
	}
}

func TestRepeatedChangesConverge(t *testing.T) {
	c, _, servo := newTestController(t, DefaultOptions())
	_ = c.RequestPair(context.Background(), ble.RoleServo)

	var wg sync.WaitGroup
	for v := 0; v <= 180; v++ {
		wg.Add(1)
		go func(v int) {
			defer wg.Done()
			_ = c.SetAngle(1, v)
		}(v)
	}
	wg.Wait()
	_ = c.SetAngle(1, 33)

	sent := servo.payloads()
	last := sent[len(sent)-1]
	if last[1] != 33 || c.Snapshot().Angles[1] != 33 {
		t.Errorf("last payload = %v, state = %v; want axis 2 = 33", last, c.Snapshot().Angles)
	}
}

func TestDirectionPulseClears(t *testing.T) {
	opts := DefaultOptions()
	opts.Pulse = 20 * time.Millisecond
	c, _, _ := newTestController(t, opts)

	_ = c.PressDirection(protocol.DirectionLeft)
	st := c.Snapshot()
	if !st.Pressed || st.Active != protocol.DirectionLeft {
		t.Fatalf("Active = %v, Pressed = %v; want left pressed", st.Active, st.Pressed)
	}

	deadline := time.Now().Add(time.Second)
	for c.Snapshot().Pressed {
		if time.Now().After(deadline) {
			t.Fatal("active direction was never cleared")
		}
		time.Sleep(5 * time.Millisecond)
	}
}

func TestDirectionPulseDisabled(t *testing.T) {
	opts := DefaultOptions()
	opts.Pulse = 0
	c, _, _ := newTestController(t, opts)

	_ = c.PressDirection(protocol.DirectionDown)
	time.Sleep(20 * time.Millisecond)
	if st := c.Snapshot(); !st.Pressed || st.Active != protocol.DirectionDown {
		t.Errorf("Active = %v, Pressed = %v; want down to stay pressed", st.Active, st.Pressed)
	}
}

func TestPressDirectionWhileDisconnected(t *testing.T) {
	c, dir, _ := newTestController(t, DefaultOptions())

	err := c.PressDirection(protocol.DirectionRight)
	if !errors.Is(err, ble.ErrNotConnected) {
		t.Fatalf("PressDirection() error = %v, want ErrNotConnected", err)
	}
	if len(dir.payloads()) != 0 {
		t.Error("no payload should be sent while disconnected")
	}
	if st := c.Snapshot(); !st.Pressed || st.Active != protocol.DirectionRight {
		t.Error("indicator should still pulse for an unsent press")
	}
}

func TestPressInvalidDirection(t *testing.T) {
	c, _, _ := newTestController(t, DefaultOptions())
	if err := c.PressDirection(protocol.Direction(7)); err == nil {
		t.Error("PressDirection(7) should fail")
	}
}

func TestPairFailureNotice(t *testing.T) {
	c, _, servo := newTestController(t, DefaultOptions())
	servo.pairErr = errors.New("user cancelled")

	if err := c.RequestPair(context.Background(), ble.RoleServo); err == nil {
		t.Fatal("RequestPair() should fail")
	}
	st := c.Snapshot()
	if st.Connection[ble.RoleServo] != ble.StateFailed {
		t.Errorf("Connection[Servo] = %v, want failed", st.Connection[ble.RoleServo])
	}
	if !strings.Contains(st.Notice, "Servo pairing failed") {
		t.Errorf("Notice = %q, want pairing failure notice", st.Notice)
	}
	if st.Connection[ble.RoleDirection] != ble.StateDisconnected {
		t.Error("Direction state must not change on Servo failure")
	}
}

func TestLinkLostEvent(t *testing.T) {
	c, dir, _ := newTestController(t, DefaultOptions())
	_ = c.RequestPair(context.Background(), ble.RoleDirection)
	_ = c.RequestPair(context.Background(), ble.RoleServo)

	dir.setState(ble.StateDisconnected)
	dir.emit(ble.Event{Type: ble.EventLinkLost, State: ble.StateDisconnected})

	st := c.Snapshot()
	if st.Connection[ble.RoleDirection] != ble.StateDisconnected {
		t.Errorf("Connection[Direction] = %v, want disconnected", st.Connection[ble.RoleDirection])
	}
	if st.Connection[ble.RoleServo] != ble.StateConnected {
		t.Errorf("Connection[Servo] = %v, want connected", st.Connection[ble.RoleServo])
	}
	if st.Notice != "Direction link lost" {
		t.Errorf("Notice = %q, want %q", st.Notice, "Direction link lost")
	}
}

func TestWriteFailedEventIsSilent(t *testing.T) {
	c, _, servo := newTestController(t, DefaultOptions())
	_ = c.RequestPair(context.Background(), ble.RoleServo)
	c.DismissNotice()

	servo.emit(ble.Event{Type: ble.EventWriteFailed, State: ble.StateConnected, Err: errors.New("busy")})

	st := c.Snapshot()
	if st.Notice != "" {
		t.Errorf("Notice = %q, want none", st.Notice)
	}
	if st.Connection[ble.RoleServo] != ble.StateConnected {
		t.Errorf("Connection[Servo] = %v, want connected", st.Connection[ble.RoleServo])
	}
}

func TestRequestDisconnect(t *testing.T) {
	c, _, _ := newTestController(t, DefaultOptions())
	_ = c.RequestPair(context.Background(), ble.RoleServo)

	if err := c.RequestDisconnect(ble.RoleServo); err != nil {
		t.Fatalf("RequestDisconnect() error = %v", err)
	}
	st := c.Snapshot()
	if st.Connection[ble.RoleServo] != ble.StateDisconnected {
		t.Errorf("Connection[Servo] = %v, want disconnected", st.Connection[ble.RoleServo])
	}
	if _, ok := st.Devices[ble.RoleServo]; ok {
		t.Error("device name should be cleared on disconnect")
	}
}

func TestChangesNotifies(t *testing.T) {
	c, _, _ := newTestController(t, DefaultOptions())
	_ = c.SetAngle(0, 1)
	select {
	case <-c.Changes():
	case <-time.After(time.Second):
		t.Fatal("no change notification after SetAngle")
	}
}
