package control

import (
	"bytes"
	"context"
	"sync"
	"testing"
	"time"

	"github.com/chaz8081/bleremote/internal/ble"
)

// gatedChar holds every write until the test releases it.
type gatedChar struct {
	mu     sync.Mutex
	gate   chan struct{}
	writes [][]byte
}

func (c *gatedChar) Write(data []byte) error {
	<-c.gate
	c.mu.Lock()
	defer c.mu.Unlock()
	c.writes = append(c.writes, append([]byte(nil), data...))
	return nil
}

func (c *gatedChar) all() [][]byte {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([][]byte(nil), c.writes...)
}

type stubConn struct{ char *gatedChar }

func (c stubConn) DiscoverCharacteristic(string, string) (ble.Characteristic, error) {
	return c.char, nil
}
func (stubConn) Disconnect() error    { return nil }
func (stubConn) OnDisconnect(func()) {}

type stubAdapter struct{ char *gatedChar }

func (stubAdapter) Enable() error { return nil }
func (stubAdapter) Scan(_ context.Context, svc string) ([]ble.Device, error) {
	return []ble.Device{{Name: "ESP", Address: svc}}, nil
}
func (a stubAdapter) Connect(context.Context, string) (ble.Connection, error) {
	return stubConn{char: a.char}, nil
}

func TestQuickSuccessionConvergesThroughSession(t *testing.T) {
	char := &gatedChar{gate: make(chan struct{})}
	adapter := stubAdapter{char: char}
	picker := ble.NewScanPicker(adapter, time.Millisecond)

	dir := ble.NewSession(ble.RoleDirection, ble.DefaultIdentifiers(ble.RoleDirection), adapter, picker, ble.DefaultSessionOptions())
	servo := ble.NewSession(ble.RoleServo, ble.DefaultIdentifiers(ble.RoleServo), adapter, picker, ble.DefaultSessionOptions())
	defer dir.Close()
	defer servo.Close()

	c, err := New(dir, servo, DefaultOptions())
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	defer c.Close()

	if err := c.RequestPair(context.Background(), ble.RoleServo); err != nil {
		t.Fatalf("RequestPair() error = %v", err)
	}
	if got := c.Snapshot().Connection[ble.RoleServo]; got != ble.StateConnected {
		t.Fatalf("Connection[Servo] = %v, want connected", got)
	}

	_ = c.SetAngle(0, 10)
	_ = c.SetAngle(1, 170)
	close(char.gate)

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	if err := servo.Flush(ctx); err != nil {
		t.Fatalf("Flush() error = %v", err)
	}

	writes := char.all()
	if len(writes) == 0 {
		t.Fatal("no payload reached the characteristic")
	}
	if want := []byte{10, 170, 90, 90, 90}; !bytes.Equal(writes[len(writes)-1], want) {
		t.Errorf("final payload = %v, want %v", writes[len(writes)-1], want)
	}
}
