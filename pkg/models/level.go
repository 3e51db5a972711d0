package models

import (
	"fmt"
	"strings"
)

// TraceLevel is the severity of a record. Levels are distinct bits so that a
// set of levels (e.g. the levels found in a session) fits in one value.
type TraceLevel uint8

const (
	LevelOff     TraceLevel = 0
	LevelFatal   TraceLevel = 1
	LevelError   TraceLevel = 2
	LevelWarn    TraceLevel = 4
	LevelInfo    TraceLevel = 8
	LevelDebug   TraceLevel = 16
	LevelVerbose TraceLevel = 32
)

var levelNames = []struct {
	level TraceLevel
	name  string
}{
	{LevelFatal, "fatal"},
	{LevelError, "error"},
	{LevelWarn, "warn"},
	{LevelInfo, "info"},
	{LevelDebug, "debug"},
	{LevelVerbose, "verbose"},
}

// String returns the level name, or a "+"-joined list for a level set.
func (l TraceLevel) String() string {
	if l == LevelOff {
		return "off"
	}
	var parts []string
	rest := l
	for _, ln := range levelNames {
		if l&ln.level != 0 {
			parts = append(parts, ln.name)
			rest &^= ln.level
		}
	}
	if rest != 0 {
		parts = append(parts, fmt.Sprintf("0x%02x", uint8(rest)))
	}
	return strings.Join(parts, "+")
}

// Has reports whether every bit of other is set in l.
func (l TraceLevel) Has(other TraceLevel) bool {
	return other != 0 && l&other == other
}

// MarshalText renders the level by name.
func (l TraceLevel) MarshalText() ([]byte, error) {
	return []byte(l.String()), nil
}

// ParseTraceLevel converts a level name to a TraceLevel.
func ParseTraceLevel(name string) (TraceLevel, error) {
	n := strings.ToLower(strings.TrimSpace(name))
	if n == "warning" {
		n = "warn"
	}
	if n == "off" {
		return LevelOff, nil
	}
	for _, ln := range levelNames {
		if ln.name == n {
			return ln.level, nil
		}
	}
	return LevelOff, fmt.Errorf("unknown trace level %q", name)
}
