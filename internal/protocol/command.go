// Package protocol implements the fixed-width command payloads understood by
// the Direction and Servo peripherals.
package protocol

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
)

// Direction is a single movement command for the Direction peripheral.
type Direction uint8

const (
	DirectionStop  Direction = 0
	DirectionUp    Direction = 1
	DirectionLeft  Direction = 2
	DirectionRight Direction = 3
	DirectionDown  Direction = 4
)

var directionNames = [...]string{
	DirectionStop:  "stop",
	DirectionUp:    "up",
	DirectionLeft:  "left",
	DirectionRight: "right",
	DirectionDown:  "down",
}

// Valid reports whether d is one of the five known commands.
func (d Direction) Valid() bool {
	return int(d) < len(directionNames)
}

func (d Direction) String() string {
	if !d.Valid() {
		return fmt.Sprintf("direction(%d)", uint8(d))
	}
	return directionNames[d]
}

// ParseDirection accepts a command name ("up", "Stop") or its numeric code.
func ParseDirection(s string) (Direction, error) {
	s = strings.ToLower(strings.TrimSpace(s))
	for i, name := range directionNames {
		if s == name {
			return Direction(i), nil
		}
	}
	if n, err := strconv.Atoi(s); err == nil && n >= 0 && n < len(directionNames) {
		return Direction(n), nil
	}
	return 0, fmt.Errorf("protocol: unknown direction %q", s)
}

// Servo angle constraints.
const (
	AxisCount    = 5
	MinAngle     = 0
	MaxAngle     = 180
	DefaultAngle = 90
)

// ErrAngleRange is returned when a parsed angle falls outside [MinAngle, MaxAngle].
var ErrAngleRange = errors.New("protocol: angle out of range")

// Angles is the commanded position of the five servos, in axis order.
type Angles [AxisCount]int

// DefaultAngles returns every axis centred.
func DefaultAngles() Angles {
	var a Angles
	for i := range a {
		a[i] = DefaultAngle
	}
	return a
}

// Valid reports whether every element is within [MinAngle, MaxAngle].
func (a Angles) Valid() bool {
	for _, v := range a {
		if v < MinAngle || v > MaxAngle {
			return false
		}
	}
	return true
}

// ClampAngle limits v to [MinAngle, MaxAngle].
func ClampAngle(v int) int {
	if v < MinAngle {
		return MinAngle
	}
	if v > MaxAngle {
		return MaxAngle
	}
	return v
}

// ParseAngles parses exactly AxisCount decimal angles.
func ParseAngles(fields []string) (Angles, error) {
	var a Angles
	if len(fields) != AxisCount {
		return a, fmt.Errorf("protocol: need %d angles, got %d", AxisCount, len(fields))
	}
	for i, f := range fields {
		v, err := strconv.Atoi(strings.TrimSpace(f))
		if err != nil {
			return a, fmt.Errorf("protocol: axis %d: %w", i+1, err)
		}
		if v < MinAngle || v > MaxAngle {
			return a, fmt.Errorf("axis %d = %d: %w", i+1, v, ErrAngleRange)
		}
		a[i] = v
	}
	return a, nil
}

// EncodeDirection encodes a Direction command.
//
//	byte 0: command code (0..4)
func EncodeDirection(d Direction) []byte {
	return []byte{byte(d)}
}

// EncodeAngles encodes the full servo vector.
//
//	bytes 0..4: absolute angle per axis, one unsigned byte each
//
// Values are written as-is; callers keep them within [MinAngle, MaxAngle].
func EncodeAngles(a Angles) []byte {
	buf := make([]byte, 0, AxisCount)
	for _, v := range a {
		buf = append(buf, byte(v))
	}
	return buf
}
