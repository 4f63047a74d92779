package config

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
	"tinygo.org/x/bluetooth"

	"github.com/chaz8081/bleremote/internal/ble"
	"github.com/chaz8081/bleremote/internal/protocol"
)

// Config holds all application configuration.
type Config struct {
	Direction PeripheralConfig `yaml:"direction"`
	Servo     PeripheralConfig `yaml:"servo"`
	BLE       BLEConfig        `yaml:"ble"`
	Control   ControlConfig    `yaml:"control"`
	LogLevel  string           `yaml:"log_level"`
	LogFile   string           `yaml:"log_file"` // used while the TUI owns the terminal
}

// PeripheralConfig holds the GATT identifiers for one role.
type PeripheralConfig struct {
	ServiceUUID        string `yaml:"service_uuid"`
	CharacteristicUUID string `yaml:"characteristic_uuid"`
}

// BLEConfig holds discovery, connection and write-queue settings.
type BLEConfig struct {
	ScanTimeout    Duration `yaml:"scan_timeout"`
	ConnectTimeout Duration `yaml:"connect_timeout"`
	QueuePolicy    string   `yaml:"queue_policy"` // "latest" or "fifo"
	QueueSize      int      `yaml:"queue_size"`
}

// ControlConfig holds UI-facing control settings.
type ControlConfig struct {
	Pulse         Duration `yaml:"pulse"`
	InitialAngles []int    `yaml:"initial_angles"`
}

// Duration is a time.Duration that reads and writes as "200ms", "5s".
type Duration time.Duration

func (d Duration) MarshalYAML() (any, error) {
	return time.Duration(d).String(), nil
}

func (d *Duration) UnmarshalYAML(value *yaml.Node) error {
	var s string
	if err := value.Decode(&s); err != nil {
		return err
	}
	parsed, err := time.ParseDuration(s)
	if err != nil {
		return fmt.Errorf("line %d: %w", value.Line, err)
	}
	*d = Duration(parsed)
	return nil
}

// DefaultConfigDir returns the default config directory path.
func DefaultConfigDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ""
	}
	return filepath.Join(home, ".config", "bleremote")
}

// DefaultConfigPath returns the default config file path.
func DefaultConfigPath() string {
	return filepath.Join(DefaultConfigDir(), "config.yaml")
}

// Default returns a Config with sensible default values.
func Default() *Config {
	dir := ble.DefaultIdentifiers(ble.RoleDirection)
	servo := ble.DefaultIdentifiers(ble.RoleServo)
	angles := protocol.DefaultAngles()

	return &Config{
		Direction: PeripheralConfig{
			ServiceUUID:        dir.Service,
			CharacteristicUUID: dir.Characteristic,
		},
		Servo: PeripheralConfig{
			ServiceUUID:        servo.Service,
			CharacteristicUUID: servo.Characteristic,
		},
		BLE: BLEConfig{
			ScanTimeout:    Duration(5 * time.Second),
			ConnectTimeout: Duration(10 * time.Second),
			QueuePolicy:    string(ble.QueueLatest),
			QueueSize:      16,
		},
		Control: ControlConfig{
			Pulse:         Duration(200 * time.Millisecond),
			InitialAngles: angles[:],
		},
		LogLevel: "info",
	}
}

// Load reads and parses a YAML config file. Missing fields are filled
// with defaults. Tilde (~) in log_file is expanded to the user's home directory.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config file: %w", err)
	}

	cfg := Default()
	// Start the angle list nil so an omitted initial_angles is told apart
	// from one present in the file.
	defaults := cfg.Control.InitialAngles
	cfg.Control.InitialAngles = nil
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parsing config file: %w", err)
	}
	if cfg.Control.InitialAngles == nil {
		cfg.Control.InitialAngles = defaults
	}

	cfg.LogFile = expandTilde(cfg.LogFile)

	return cfg, nil
}

// Validate checks the config for invalid values.
func (c *Config) Validate() error {
	for _, p := range []struct {
		name string
		cfg  PeripheralConfig
	}{{"direction", c.Direction}, {"servo", c.Servo}} {
		if _, err := bluetooth.ParseUUID(p.cfg.ServiceUUID); err != nil {
			return fmt.Errorf("%s.service_uuid %q: %w", p.name, p.cfg.ServiceUUID, err)
		}
		if _, err := bluetooth.ParseUUID(p.cfg.CharacteristicUUID); err != nil {
			return fmt.Errorf("%s.characteristic_uuid %q: %w", p.name, p.cfg.CharacteristicUUID, err)
		}
	}
	if strings.EqualFold(c.Direction.ServiceUUID, c.Servo.ServiceUUID) {
		return errors.New("direction.service_uuid and servo.service_uuid must differ")
	}

	if c.BLE.ScanTimeout <= 0 {
		return fmt.Errorf("ble.scan_timeout must be > 0")
	}
	if c.BLE.ConnectTimeout <= 0 {
		return fmt.Errorf("ble.connect_timeout must be > 0")
	}
	if _, err := ble.ParseQueuePolicy(c.BLE.QueuePolicy); err != nil {
		return fmt.Errorf("ble.queue_policy must be \"latest\" or \"fifo\", got %q", c.BLE.QueuePolicy)
	}
	if c.BLE.QueueSize <= 0 {
		return fmt.Errorf("ble.queue_size must be > 0")
	}

	if c.Control.Pulse < 0 {
		return fmt.Errorf("control.pulse must not be negative")
	}
	if _, err := c.Angles(); err != nil {
		return err
	}

	switch c.LogLevel {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("log_level must be debug, info, warn, or error, got %q", c.LogLevel)
	}

	return nil
}

// Identifiers returns the configured UUIDs for role.
func (c *Config) Identifiers(role ble.Role) ble.Identifiers {
	p := c.Direction
	if role == ble.RoleServo {
		p = c.Servo
	}
	return ble.Identifiers{Service: p.ServiceUUID, Characteristic: p.CharacteristicUUID}
}

// SessionOptions converts the ble section into session options.
func (c *Config) SessionOptions() ble.SessionOptions {
	policy, _ := ble.ParseQueuePolicy(c.BLE.QueuePolicy)
	return ble.SessionOptions{
		ConnectTimeout: time.Duration(c.BLE.ConnectTimeout),
		QueuePolicy:    policy,
		QueueSize:      c.BLE.QueueSize,
	}
}

// Angles returns control.initial_angles as a vector.
func (c *Config) Angles() (protocol.Angles, error) {
	var a protocol.Angles
	if len(c.Control.InitialAngles) != protocol.AxisCount {
		return a, fmt.Errorf("control.initial_angles must have %d values, got %d", protocol.AxisCount, len(c.Control.InitialAngles))
	}
	copy(a[:], c.Control.InitialAngles)
	if !a.Valid() {
		return a, fmt.Errorf("control.initial_angles must be within [%d, %d], got %v", protocol.MinAngle, protocol.MaxAngle, c.Control.InitialAngles)
	}
	return a, nil
}

// WriteDefault writes the default config to DefaultConfigPath if no file
// exists there yet. It returns the written path, or "" if a file was
// already present.
func WriteDefault() (string, error) {
	path := DefaultConfigPath()
	if _, err := os.Stat(path); err == nil {
		return "", nil
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return "", fmt.Errorf("creating config dir: %w", err)
	}

	data, err := yaml.Marshal(Default())
	if err != nil {
		return "", fmt.Errorf("encoding default config: %w", err)
	}
	content := append([]byte("# bleremote configuration\n"), data...)
	if err := os.WriteFile(path, content, 0o644); err != nil {
		return "", fmt.Errorf("writing config file: %w", err)
	}
	return path, nil
}

// ParseLogLevel maps a log_level string to a slog level, defaulting to info.
func ParseLogLevel(level string) slog.Level {
	switch level {
	case "debug":
		return slog.LevelDebug
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// expandTilde replaces a leading ~ with the user's home directory.
func expandTilde(path string) string {
	if !strings.HasPrefix(path, "~") {
		return path
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return path
	}
	return filepath.Join(home, path[1:])
}
