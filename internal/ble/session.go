package ble

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"
)

var (
	// ErrNotConnected is returned by Send when the session has no live link.
	ErrNotConnected = errors.New("ble: not connected")
	// ErrPairInProgress is returned when Pair is called while another Pair runs.
	ErrPairInProgress = errors.New("ble: pairing already in progress")
	// ErrPairAborted is returned when Disconnect or Close interrupts Pair.
	ErrPairAborted = errors.New("ble: pairing aborted")
)

// State is the connection state of a Session.
type State int

const (
	StateDisconnected State = iota
	StateConnecting
	StateConnected
	StateFailed
)

func (s State) String() string {
	switch s {
	case StateDisconnected:
		return "disconnected"
	case StateConnecting:
		return "connecting"
	case StateConnected:
		return "connected"
	case StateFailed:
		return "failed"
	default:
		return fmt.Sprintf("State(%d)", int(s))
	}
}

// EventType classifies a session lifecycle Event.
type EventType int

const (
	EventStateChanged EventType = iota
	EventPairFailed
	EventWriteFailed
	EventLinkLost
)

// Event reports a lifecycle change or a failure on one Session.
type Event struct {
	Role   Role
	Type   EventType
	State  State
	Device Device
	Err    error
}

// SessionOptions configures Session behavior.
type SessionOptions struct {
	ConnectTimeout time.Duration // bound on transport connect + resolution
	QueuePolicy    QueuePolicy
	QueueSize      int // FIFO capacity; ignored by QueueLatest
}

// DefaultSessionOptions returns sensible defaults.
func DefaultSessionOptions() SessionOptions {
	return SessionOptions{
		ConnectTimeout: 10 * time.Second,
		QueuePolicy:    QueueLatest,
		QueueSize:      16,
	}
}

// Session manages the connection to the peripheral of one Role and
// serializes writes to its characteristic. Safe for concurrent use.
type Session struct {
	role    Role
	ids     Identifiers
	adapter Adapter
	picker  Picker
	opts    SessionOptions

	mu        sync.Mutex
	state     State
	conn      Connection
	char      Characteristic
	device    Device
	gen       uint64 // bumped whenever the live link is replaced or dropped
	listeners []func(Event)

	queue    *writeQueue
	stop     chan struct{}
	stopOnce sync.Once
	loopDone chan struct{}
}

// NewSession creates a disconnected Session and starts its writer.
// Call Close to release it.
func NewSession(role Role, ids Identifiers, adapter Adapter, picker Picker, opts SessionOptions) *Session {
	defaults := DefaultSessionOptions()
	if opts.ConnectTimeout <= 0 {
		opts.ConnectTimeout = defaults.ConnectTimeout
	}
	if opts.QueuePolicy == "" {
		opts.QueuePolicy = defaults.QueuePolicy
	}
	if opts.QueueSize <= 0 {
		opts.QueueSize = defaults.QueueSize
	}
	s := &Session{
		role:     role,
		ids:      ids,
		adapter:  adapter,
		picker:   picker,
		opts:     opts,
		queue:    newWriteQueue(opts.QueuePolicy, opts.QueueSize),
		stop:     make(chan struct{}),
		loopDone: make(chan struct{}),
	}
	go s.writeLoop()
	return s
}

// Role returns the session's role.
func (s *Session) Role() Role { return s.role }

// State returns the current connection state.
func (s *Session) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// Device returns the peripheral of the current link, if any.
func (s *Session) Device() (Device, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.device, s.state == StateConnected
}

// Subscribe registers fn for every subsequent Event. fn runs on the
// goroutine that caused the event and must not block.
func (s *Session) Subscribe(fn func(Event)) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.listeners = append(s.listeners, fn)
}

func (s *Session) emit(ev Event) {
	ev.Role = s.role
	s.mu.Lock()
	listeners := make([]func(Event), len(s.listeners))
	copy(listeners, s.listeners)
	s.mu.Unlock()
	for _, fn := range listeners {
		fn(ev)
	}
}

// Pair picks a peripheral advertising the role's service, connects to it
// and resolves the role's characteristic. It may be called in any state;
// calling it while connected re-pairs. On return the session is either
// connected or failed. Pairing errors are returned, never panicked.
func (s *Session) Pair(ctx context.Context) error {
	s.mu.Lock()
	if s.state == StateConnecting {
		s.mu.Unlock()
		return ErrPairInProgress
	}
	s.gen++
	gen := s.gen
	old := s.conn
	s.conn, s.char, s.device = nil, nil, Device{}
	s.state = StateConnecting
	s.queue.clear()
	s.mu.Unlock()

	// Close the old link before connecting: the platform may hand back the
	// same link for a peripheral that is still connected.
	if old != nil {
		if err := old.Disconnect(); err != nil {
			slog.Debug("[BLE] closing replaced connection", "role", s.role, "error", err)
		}
	}
	s.emit(Event{Type: EventStateChanged, State: StateConnecting})
	slog.Info("[BLE] pairing", "role", s.role, "service", s.ids.Service)

	l, err := s.establish(ctx, gen)
	if err != nil {
		s.fail(gen, err)
		return err
	}

	s.mu.Lock()
	if s.gen != gen {
		s.mu.Unlock()
		_ = l.conn.Disconnect()
		slog.Info("[BLE] pairing superseded", "role", s.role)
		return ErrPairAborted
	}
	if l.dropped.Load() {
		s.mu.Unlock()
		err := fmt.Errorf("ble: %s peripheral dropped the link while pairing", s.role)
		_ = l.conn.Disconnect()
		s.fail(gen, err)
		return err
	}
	s.conn, s.char, s.device = l.conn, l.char, l.dev
	s.state = StateConnected
	s.mu.Unlock()

	slog.Info("[BLE] connected", "role", s.role, "name", l.dev.Name, "address", l.dev.Address)
	s.emit(Event{Type: EventStateChanged, State: StateConnected, Device: l.dev})
	return nil
}

// link is a connection established by one Pair attempt.
type link struct {
	dev     Device
	conn    Connection
	char    Characteristic
	dropped atomic.Bool // set by the link's drop callback
}

// establish runs pick → connect → resolve, closing the link on partial failure.
// The drop callback is registered as soon as the link exists.
func (s *Session) establish(ctx context.Context, gen uint64) (*link, error) {
	dev, err := s.picker.Pick(ctx, s.role, s.ids.Service)
	if err != nil {
		return nil, fmt.Errorf("ble: pick %s peripheral: %w", s.role, err)
	}

	connCtx, cancel := context.WithTimeout(ctx, s.opts.ConnectTimeout)
	defer cancel()

	conn, err := s.adapter.Connect(connCtx, dev.Address)
	if err != nil {
		return nil, fmt.Errorf("ble: connect %s peripheral: %w", s.role, err)
	}
	l := &link{dev: dev, conn: conn}
	conn.OnDisconnect(func() {
		l.dropped.Store(true)
		s.linkLost(gen)
	})

	char, err := conn.DiscoverCharacteristic(s.ids.Service, s.ids.Characteristic)
	if err != nil {
		_ = conn.Disconnect()
		return nil, fmt.Errorf("ble: resolve %s characteristic: %w", s.role, err)
	}
	l.char = char
	return l, nil
}

// fail drops any stale link and settles the session in StateFailed.
func (s *Session) fail(gen uint64, err error) {
	s.mu.Lock()
	if s.gen != gen {
		// Disconnect or Close already settled the session.
		s.mu.Unlock()
		return
	}
	s.gen++
	old := s.conn
	s.conn, s.char, s.device = nil, nil, Device{}
	s.state = StateFailed
	s.queue.clear()
	s.mu.Unlock()

	if old != nil {
		_ = old.Disconnect()
	}
	slog.Warn("[BLE] pairing failed", "role", s.role, "error", err)
	s.emit(Event{Type: EventPairFailed, State: StateFailed, Err: err})
}

// linkLost handles an unexpected drop of the link created by generation gen.
func (s *Session) linkLost(gen uint64) {
	s.mu.Lock()
	if s.gen != gen || s.state != StateConnected {
		s.mu.Unlock()
		return
	}
	s.gen++
	dev := s.device
	s.conn, s.char, s.device = nil, nil, Device{}
	s.state = StateDisconnected
	n := s.queue.clear()
	s.mu.Unlock()

	if n > 0 {
		slog.Debug("[BLE] dropped pending writes", "role", s.role, "count", n)
	}
	slog.Warn("[BLE] link lost", "role", s.role, "address", dev.Address)
	s.emit(Event{Type: EventLinkLost, State: StateDisconnected, Device: dev})
}

// Send queues payload for the characteristic and returns without waiting
// for the write. When the session is not connected the payload is dropped
// and ErrNotConnected is returned.
func (s *Session) Send(payload []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state != StateConnected {
		return fmt.Errorf("%s: %w", s.role, ErrNotConnected)
	}

	cp := make([]byte, len(payload))
	copy(cp, payload)
	if dropped := s.queue.push(queuedWrite{gen: s.gen, data: cp}); dropped > 0 {
		slog.Debug("[BLE] superseded pending write", "role", s.role, "dropped", dropped)
	}
	return nil
}

// Flush waits until every queued payload has been written or dropped.
func (s *Session) Flush(ctx context.Context) error {
	return s.queue.wait(ctx)
}

// Pending returns the number of payloads waiting behind the in-flight write.
func (s *Session) Pending() int {
	return s.queue.len()
}

func (s *Session) writeLoop() {
	defer close(s.loopDone)
	for {
		select {
		case <-s.stop:
			return
		case <-s.queue.wake:
		}
		for {
			w, ok := s.queue.next()
			if !ok {
				break
			}
			s.write(w)
			s.queue.done()
		}
	}
}

// write performs one characteristic write on the link w was sent on.
// Failures are reported, not retried.
func (s *Session) write(w queuedWrite) {
	payload := w.data
	s.mu.Lock()
	char := s.char
	if w.gen != s.gen {
		char = nil
	}
	s.mu.Unlock()
	if char == nil {
		slog.Debug("[BLE] write dropped, link gone", "role", s.role, "bytes", len(payload))
		return
	}
	if err := char.Write(payload); err != nil {
		slog.Warn("[BLE] write failed", "role", s.role, "error", err)
		s.emit(Event{Type: EventWriteFailed, State: s.State(), Err: fmt.Errorf("ble: write %s: %w", s.role, err)})
		return
	}
	slog.Debug("[BLE] wrote", "role", s.role, "payload", fmt.Sprintf("%x", payload))
}

// Disconnect closes the link, discards pending writes and leaves the
// session disconnected. An in-flight Pair returns ErrPairAborted.
func (s *Session) Disconnect() error {
	s.mu.Lock()
	prev := s.state
	s.gen++
	old := s.conn
	s.conn, s.char, s.device = nil, nil, Device{}
	s.state = StateDisconnected
	s.queue.clear()
	s.mu.Unlock()

	var err error
	if old != nil {
		if err = old.Disconnect(); err != nil {
			err = fmt.Errorf("ble: disconnect %s: %w", s.role, err)
		}
		slog.Info("[BLE] disconnected", "role", s.role)
	}
	if prev != StateDisconnected {
		s.emit(Event{Type: EventStateChanged, State: StateDisconnected})
	}
	return err
}

// Close disconnects and stops the writer. The session is unusable afterwards.
func (s *Session) Close() error {
	err := s.Disconnect()
	s.stopOnce.Do(func() { close(s.stop) })
	<-s.loopDone
	return err
}
