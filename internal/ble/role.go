package ble

import (
	"fmt"
	"strings"
)

// Role identifies which peripheral a Session talks to.
type Role int

const (
	RoleDirection Role = iota
	RoleServo
)

// Roles returns every role in display order.
func Roles() []Role {
	return []Role{RoleDirection, RoleServo}
}

func (r Role) String() string {
	switch r {
	case RoleDirection:
		return "Direction"
	case RoleServo:
		return "Servo"
	default:
		return fmt.Sprintf("Role(%d)", int(r))
	}
}

// ParseRole parses "direction" or "servo" (case-insensitive).
func ParseRole(s string) (Role, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "direction", "dir":
		return RoleDirection, nil
	case "servo", "servos":
		return RoleServo, nil
	}
	return 0, fmt.Errorf("ble: unknown role %q (want direction or servo)", s)
}

// Identifiers are the GATT UUIDs a role's peripheral is matched and written by.
type Identifiers struct {
	Service        string // pairing filter
	Characteristic string // write target
}

// Default peripheral UUIDs.
const (
	DirectionServiceUUID = "0000aaaa-0000-1000-8000-00805f9b34fb"
	DirectionCharUUID    = "0000aaab-0000-1000-8000-00805f9b34fb"
	ServoServiceUUID     = "0000bbbb-0000-1000-8000-00805f9b34fb"
	ServoCharUUID        = "0000bbbc-0000-1000-8000-00805f9b34fb"
)

// DefaultIdentifiers returns the built-in UUIDs for r.
func DefaultIdentifiers(r Role) Identifiers {
	if r == RoleServo {
		return Identifiers{Service: ServoServiceUUID, Characteristic: ServoCharUUID}
	}
	return Identifiers{Service: DirectionServiceUUID, Characteristic: DirectionCharUUID}
}
