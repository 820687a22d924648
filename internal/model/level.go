package model

import (
	"fmt"
	"strings"
)

// RiskLevel is the ordered danger level of a proposed tool call.
// Higher level = more restricted.
type RiskLevel int

const (
	L0 RiskLevel = 0 // read-only, side-effect free
	L1 RiskLevel = 1 // routine, reversible
	L2 RiskLevel = 2 // destructive or irreversible, requires approval
	L3 RiskLevel = 3 // forbidden, never executed
)

func (l RiskLevel) String() string {
	switch l {
	case L0, L1, L2, L3:
		return fmt.Sprintf("L%d", int(l))
	default:
		return fmt.Sprintf("L?(%d)", int(l))
	}
}

// Label returns a human-readable label for the level.
func (l RiskLevel) Label() string {
	switch l {
	case L0:
		return "read-only"
	case L1:
		return "routine"
	case L2:
		return "destructive"
	case L3:
		return "forbidden"
	default:
		return "unknown"
	}
}

// Valid reports whether l is one of L0..L3.
func (l RiskLevel) Valid() bool {
	return l >= L0 && l <= L3
}

// ParseLevel accepts "L0".."L3" (case-insensitive, surrounding space ignored).
func ParseLevel(s string) (RiskLevel, error) {
	switch strings.ToUpper(strings.TrimSpace(s)) {
	case "L0":
		return L0, nil
	case "L1":
		return L1, nil
	case "L2":
		return L2, nil
	case "L3":
		return L3, nil
	default:
		return 0, fmt.Errorf("invalid risk level %q", s)
	}
}

// MarshalText implements encoding.TextMarshaler.
func (l RiskLevel) MarshalText() ([]byte, error) {
	if !l.Valid() {
		return nil, fmt.Errorf("invalid risk level %d", int(l))
	}
	return []byte(l.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (l *RiskLevel) UnmarshalText(b []byte) error {
	parsed, err := ParseLevel(string(b))
	if err != nil {
		return err
	}
	*l = parsed
	return nil
}

// MaxLevel returns the highest of the given levels. Empty input yields L0.
func MaxLevel(levels ...RiskLevel) RiskLevel {
	max := L0
	for _, l := range levels {
		if l > max {
			max = l
		}
	}
	return max
}

// RequiresApproval reports whether a call at this level needs human sign-off
// before it may run. Advisory: Forbidden is the check that keeps L3 from running.
func RequiresApproval(l RiskLevel) bool {
	return l == L2
}

// Forbidden reports whether a call at this level must never execute.
func Forbidden(l RiskLevel) bool {
	return l >= L3
}
