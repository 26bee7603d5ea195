package hazard

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
)

// CommandTerminator ends every command written to the wearable.
const CommandTerminator = "#"

// MaxIntensity is the largest per-actuator value the wearable firmware accepts.
const MaxIntensity = 9

var ErrMalformedCommand = errors.New("malformed wearable command")

// Command is the three-actuator intensity triple understood by the
// wearable. Its wire form is "a,b,c#".
type Command struct {
	A, B, C int
}

// Clear silences every actuator.
var Clear = Command{}

// String renders the wire form of the command.
func (c Command) String() string {
	return fmt.Sprintf("%d,%d,%d%s", c.A, c.B, c.C, CommandTerminator)
}

// Bytes returns the raw bytes written to the transport.
func (c Command) Bytes() []byte {
	return []byte(c.String())
}

// IsClear reports whether every actuator is off.
func (c Command) IsClear() bool {
	return c == Clear
}

// ParseCommand parses the wire form "a,b,c#". The terminator is optional
// so that hand-typed admin commands are accepted.
func ParseCommand(s string) (Command, error) {
	s = strings.TrimSpace(s)
	s = strings.TrimSuffix(s, CommandTerminator)
	parts := strings.Split(s, ",")
	if len(parts) != 3 {
		return Command{}, fmt.Errorf("%w: expected 3 fields, got %d", ErrMalformedCommand, len(parts))
	}

	var vals [3]int
	for i, p := range parts {
		v, err := strconv.Atoi(strings.TrimSpace(p))
		if err != nil {
			return Command{}, fmt.Errorf("%w: field %d: %v", ErrMalformedCommand, i, err)
		}
		if v < 0 || v > MaxIntensity {
			return Command{}, fmt.Errorf("%w: field %d out of range [0,%d]: %d", ErrMalformedCommand, i, MaxIntensity, v)
		}
		vals[i] = v
	}
	return Command{A: vals[0], B: vals[1], C: vals[2]}, nil
}

// MarshalText encodes the command in wire form.
func (c Command) MarshalText() ([]byte, error) {
	return c.Bytes(), nil
}

// UnmarshalText decodes a command in wire form.
func (c *Command) UnmarshalText(b []byte) error {
	parsed, err := ParseCommand(string(b))
	if err != nil {
		return err
	}
	*c = parsed
	return nil
}
