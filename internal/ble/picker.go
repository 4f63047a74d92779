package ble

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"
)

var (
	// ErrNoDevice is returned when no peripheral advertises the role's service.
	ErrNoDevice = errors.New("ble: no matching peripheral found")
	// ErrPickCancelled is returned when device selection is aborted.
	ErrPickCancelled = errors.New("ble: device selection cancelled")
)

// Picker chooses the peripheral to pair with for a role. It stands in for
// the platform's nearby-device chooser, scoped to the role's service UUID.
type Picker interface {
	Pick(ctx context.Context, role Role, serviceUUID string) (Device, error)
}

// ScanPicker scans for a fixed window and picks the strongest signal.
// Concurrent Picks take turns, since an adapter runs one scan at a time.
type ScanPicker struct {
	Adapter     Adapter
	ScanTimeout time.Duration

	mu sync.Mutex // held for the whole scan
}

// NewScanPicker creates a ScanPicker; a non-positive timeout defaults to 5s.
func NewScanPicker(adapter Adapter, scanTimeout time.Duration) *ScanPicker {
	if scanTimeout <= 0 {
		scanTimeout = 5 * time.Second
	}
	return &ScanPicker{Adapter: adapter, ScanTimeout: scanTimeout}
}

// Pick implements Picker.
func (p *ScanPicker) Pick(ctx context.Context, role Role, serviceUUID string) (Device, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if ctx.Err() != nil {
		return Device{}, fmt.Errorf("%w: %w", ErrPickCancelled, ctx.Err())
	}

	devices, err := ScanForDevices(ctx, p.Adapter, serviceUUID, p.ScanTimeout)
	if err != nil {
		return Device{}, err
	}
	if ctx.Err() != nil {
		return Device{}, fmt.Errorf("%w: %w", ErrPickCancelled, ctx.Err())
	}
	if len(devices) == 0 {
		return Device{}, fmt.Errorf("%w for %s (service %s)", ErrNoDevice, role, serviceUUID)
	}

	best := devices[0]
	for _, d := range devices[1:] {
		if d.RSSI > best.RSSI {
			best = d
		}
	}
	slog.Info("[BLE] picked peripheral", "role", role, "name", best.Name, "address", best.Address, "rssi", best.RSSI, "candidates", len(devices))
	return best, nil
}

// Compile-time check that ScanPicker implements Picker.
var _ Picker = (*ScanPicker)(nil)

// ScanForDevices scans for peripherals advertising serviceUUID for timeout,
// or until ctx is done.
func ScanForDevices(ctx context.Context, adapter Adapter, serviceUUID string, timeout time.Duration) ([]Device, error) {
	if err := adapter.Enable(); err != nil {
		return nil, fmt.Errorf("ble: enable adapter: %w", err)
	}

	scanCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	devices, err := adapter.Scan(scanCtx, serviceUUID)
	if err != nil {
		return nil, fmt.Errorf("ble: scan: %w", err)
	}
	return devices, nil
}
