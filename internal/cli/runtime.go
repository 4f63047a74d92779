package cli

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/chaz8081/bleremote/internal/ble"
	"github.com/chaz8081/bleremote/internal/config"
	"github.com/chaz8081/bleremote/internal/control"
)

// flushTimeout bounds how long a one-shot command waits for its write.
const flushTimeout = 5 * time.Second

// setupLogging installs the default slog logger. While the TUI owns the
// terminal, logs go to log_file (or nowhere when unset).
func setupLogging(cfg *config.Config, tui bool) (func(), error) {
	var w io.Writer = os.Stderr
	closeFn := func() {}

	if tui {
		w = io.Discard
		if cfg.LogFile != "" {
			if err := os.MkdirAll(filepath.Dir(cfg.LogFile), 0o755); err != nil {
				return nil, fmt.Errorf("creating log dir: %w", err)
			}
			f, err := os.OpenFile(cfg.LogFile, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
			if err != nil {
				return nil, fmt.Errorf("opening log file: %w", err)
			}
			w = f
			closeFn = func() { _ = f.Close() }
		}
	}

	handler := slog.NewTextHandler(w, &slog.HandlerOptions{Level: config.ParseLogLevel(cfg.LogLevel)})
	slog.SetDefault(slog.New(handler))
	return closeFn, nil
}

// signalContext returns a context cancelled on SIGINT or SIGTERM.
func signalContext() (context.Context, context.CancelFunc) {
	return signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
}

// remote is the wired-up pair of sessions and the controller driving them.
type remote struct {
	direction *ble.Session
	servo     *ble.Session
	ctrl      *control.Controller
}

func newRemote(cfg *config.Config, adapter ble.Adapter) (*remote, error) {
	angles, err := cfg.Angles()
	if err != nil {
		return nil, err
	}
	picker := ble.NewScanPicker(adapter, time.Duration(cfg.BLE.ScanTimeout))
	opts := cfg.SessionOptions()

	r := &remote{
		direction: ble.NewSession(ble.RoleDirection, cfg.Identifiers(ble.RoleDirection), adapter, picker, opts),
		servo:     ble.NewSession(ble.RoleServo, cfg.Identifiers(ble.RoleServo), adapter, picker, opts),
	}
	r.ctrl, err = control.New(r.direction, r.servo, control.Options{
		Pulse:         time.Duration(cfg.Control.Pulse),
		InitialAngles: angles,
	})
	if err != nil {
		r.closeSessions()
		return nil, err
	}
	return r, nil
}

func (r *remote) Close() {
	r.ctrl.Close()
	r.closeSessions()
}

func (r *remote) closeSessions() {
	for _, s := range []*ble.Session{r.direction, r.servo} {
		if err := s.Close(); err != nil {
			slog.Debug("[CLI] closing session", "role", s.Role(), "error", err)
		}
	}
}

// sendOnce pairs the peripheral for role, writes payload, waits for the
// write to drain and disconnects.
func sendOnce(ctx context.Context, cfg *config.Config, adapter ble.Adapter, role ble.Role, payload []byte) error {
	picker := ble.NewScanPicker(adapter, time.Duration(cfg.BLE.ScanTimeout))
	s := ble.NewSession(role, cfg.Identifiers(role), adapter, picker, cfg.SessionOptions())
	defer s.Close()

	var writeErr error
	s.Subscribe(func(ev ble.Event) {
		if ev.Type == ble.EventWriteFailed {
			writeErr = ev.Err
		}
	})

	if err := s.Pair(ctx); err != nil {
		return err
	}
	if dev, ok := s.Device(); ok {
		fmt.Printf("Connected to %s (%s)\n", dev.Name, dev.Address)
	}

	if err := s.Send(payload); err != nil {
		return err
	}
	flushCtx, cancel := context.WithTimeout(ctx, flushTimeout)
	defer cancel()
	if err := s.Flush(flushCtx); err != nil {
		return fmt.Errorf("waiting for write: %w", err)
	}
	if writeErr != nil {
		return fmt.Errorf("write %s: %w", role, writeErr)
	}
	fmt.Printf("Sent %v to %s\n", payload, role)
	return s.Disconnect()
}
