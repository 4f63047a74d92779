// Package cli defines the bleremote command line.
package cli

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/chaz8081/bleremote/internal/ble"
	"github.com/chaz8081/bleremote/internal/config"
	"github.com/chaz8081/bleremote/internal/protocol"
	"github.com/chaz8081/bleremote/internal/tui"
)

// CLI is the root command structure for bleremote.
type CLI struct {
	Config   string `short:"c" type:"path" help:"Path to config file (default: ~/.config/bleremote/config.yaml)"`
	LogLevel string `name:"log-level" help:"Override log_level (debug, info, warn, error)"`

	// Default command - TUI
	Tui TuiCmd `cmd:"" default:"withargs" help:"Launch the interactive remote (default)"`

	Scan      ScanCmd      `cmd:"" help:"List nearby peripherals advertising a role's service"`
	Direction DirectionCmd `cmd:"" help:"Pair the Direction peripheral and send one command"`
	Angles    AnglesCmd    `cmd:"" help:"Pair the Servo peripheral and send all five angles"`
	Cfg       ConfigCmd    `cmd:"" name:"config" help:"Config file management"`
}

// load reads the config selected by the global flags and validates it.
func (c *CLI) load() (*config.Config, error) {
	cfg, err := loadConfig(c.Config)
	if err != nil {
		return nil, err
	}
	if c.LogLevel != "" {
		cfg.LogLevel = c.LogLevel
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config validation: %w", err)
	}
	return cfg, nil
}

// --- TUI Command ---

type TuiCmd struct{}

func (c *TuiCmd) Run(globals *CLI) error {
	cfg, err := globals.load()
	if err != nil {
		return err
	}
	closeLog, err := setupLogging(cfg, true)
	if err != nil {
		return err
	}
	defer closeLog()

	ctx, stop := signalContext()
	defer stop()

	r, err := newRemote(cfg, ble.NewTinyGoAdapter())
	if err != nil {
		return err
	}
	defer r.Close()

	return tui.Run(ctx, r.ctrl)
}

// --- Scan Command ---

type ScanCmd struct {
	Role    string        `arg:"" help:"direction or servo"`
	Timeout time.Duration `short:"t" help:"Scan duration (default: ble.scan_timeout)"`
}

func (c *ScanCmd) Run(globals *CLI) error {
	role, err := ble.ParseRole(c.Role)
	if err != nil {
		return err
	}
	cfg, err := globals.load()
	if err != nil {
		return err
	}
	closeLog, err := setupLogging(cfg, false)
	if err != nil {
		return err
	}
	defer closeLog()

	timeout := time.Duration(cfg.BLE.ScanTimeout)
	if c.Timeout > 0 {
		timeout = c.Timeout
	}

	ctx, stop := signalContext()
	defer stop()

	svc := cfg.Identifiers(role).Service
	fmt.Printf("Scanning %s for %s peripherals (service %s)...\n", timeout, role, svc)
	devices, err := ble.ScanForDevices(ctx, ble.NewTinyGoAdapter(), svc, timeout)
	if err != nil {
		return err
	}
	if len(devices) == 0 {
		fmt.Println("No devices found.")
		return nil
	}
	for _, d := range devices {
		name := d.Name
		if name == "" {
			name = "(unnamed)"
		}
		fmt.Printf("  %-24s %s  %d dBm\n", name, d.Address, d.RSSI)
	}
	return nil
}

// --- One-shot send commands ---

type DirectionCmd struct {
	Command string `arg:"" help:"stop, up, left, right, down (or 0-4)"`
}

func (c *DirectionCmd) Run(globals *CLI) error {
	d, err := protocol.ParseDirection(c.Command)
	if err != nil {
		return err
	}
	cfg, err := globals.load()
	if err != nil {
		return err
	}
	closeLog, err := setupLogging(cfg, false)
	if err != nil {
		return err
	}
	defer closeLog()

	ctx, stop := signalContext()
	defer stop()

	return sendOnce(ctx, cfg, ble.NewTinyGoAdapter(), ble.RoleDirection, protocol.EncodeDirection(d))
}

type AnglesCmd struct {
	Values []string `arg:"" help:"Five angles in degrees, 0-180"`
}

func (c *AnglesCmd) Run(globals *CLI) error {
	a, err := protocol.ParseAngles(c.Values)
	if err != nil {
		return err
	}
	cfg, err := globals.load()
	if err != nil {
		return err
	}
	closeLog, err := setupLogging(cfg, false)
	if err != nil {
		return err
	}
	defer closeLog()

	ctx, stop := signalContext()
	defer stop()

	return sendOnce(ctx, cfg, ble.NewTinyGoAdapter(), ble.RoleServo, protocol.EncodeAngles(a))
}

// --- Config Commands ---

type ConfigCmd struct {
	Init ConfigInitCmd `cmd:"" help:"Write the default config file if none exists"`
	Show ConfigShowCmd `cmd:"" help:"Print the effective config"`
}

type ConfigInitCmd struct{}

func (c *ConfigInitCmd) Run() error {
	path, err := config.WriteDefault()
	if err != nil {
		return err
	}
	if path == "" {
		fmt.Printf("Config already exists at %s\n", config.DefaultConfigPath())
		return nil
	}
	fmt.Printf("Wrote default config to %s\n", path)
	return nil
}

type ConfigShowCmd struct{}

func (c *ConfigShowCmd) Run(globals *CLI) error {
	cfg, err := globals.load()
	if err != nil {
		return err
	}
	data, err := yaml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("encoding config: %w", err)
	}
	fmt.Print(string(data))
	return nil
}

// loadConfig loads path, or the default config file when path is empty,
// falling back to built-in defaults when no file exists.
func loadConfig(path string) (*config.Config, error) {
	if path != "" {
		return config.Load(path)
	}

	defaultPath := config.DefaultConfigPath()
	if _, err := os.Stat(defaultPath); err == nil {
		cfg, err := config.Load(defaultPath)
		if err != nil {
			return nil, fmt.Errorf("loading %s: %w", defaultPath, err)
		}
		return cfg, nil
	}

	return config.Default(), nil
}
