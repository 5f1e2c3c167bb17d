package trace

import (
	"fmt"
	"strings"
)

// Level controls tracing verbosity.
type Level uint8

const (
	LevelOff Level = iota
	LevelPhase
	LevelWorker
	LevelShard
)

// String returns the string representation of Level.
func (l Level) String() string {
	switch l {
	case LevelOff:
		return "off"
	case LevelPhase:
		return "phase"
	case LevelWorker:
		return "worker"
	case LevelShard:
		return "shard"
	default:
		return "unknown"
	}
}

// ParseLevel converts a string to a Level.
func ParseLevel(s string) (Level, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "off":
		return LevelOff, nil
	case "phase":
		return LevelPhase, nil
	case "worker":
		return LevelWorker, nil
	case "shard":
		return LevelShard, nil
	default:
		return LevelOff, fmt.Errorf("invalid trace level: %q (expected: off|phase|worker|shard)", s)
	}
}

// ShouldEmit reports whether events of scope pass this level.
func (l Level) ShouldEmit(scope Scope) bool {
	switch l {
	case LevelPhase:
		return scope <= ScopePhase
	case LevelWorker:
		return scope <= ScopeWorker
	case LevelShard:
		return true
	default:
		return false
	}
}
