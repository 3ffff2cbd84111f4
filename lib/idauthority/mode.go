package idauthority

import (
	"fmt"
	"strings"

	"github.com/ValentinKolb/dLock/lib/store"
)

// ConflictAvoidanceMode decides how counter keys are tagged and which
// consistency level the allocation asks the store for.
type ConflictAvoidanceMode uint8

const (
	// None uses no tag. Every process competes for the same counter.
	None ConflictAvoidanceMode = iota
	// LocalManual uses an operator assigned tag with local-key consistency.
	// Two processes sharing a tag can receive overlapping blocks.
	LocalManual
	// GlobalManual uses an operator assigned tag with key consistency.
	// Shared tags only cost throughput.
	GlobalManual
	// GlobalAuto draws a random tag per attempt, with key consistency.
	GlobalAuto
)

func (m ConflictAvoidanceMode) String() string {
	switch m {
	case None:
		return "none"
	case LocalManual:
		return "local-manual"
	case GlobalManual:
		return "global-manual"
	case GlobalAuto:
		return "global-auto"
	default:
		return fmt.Sprintf("unknown(%d)", m)
	}
}

// ParseConflictAvoidanceMode parses the names returned by String.
// Case and the use of '_' instead of '-' are ignored.
func ParseConflictAvoidanceMode(s string) (ConflictAvoidanceMode, error) {
	switch strings.ReplaceAll(strings.ToLower(strings.TrimSpace(s)), "_", "-") {
	case "none", "":
		return None, nil
	case "local-manual":
		return LocalManual, nil
	case "global-manual":
		return GlobalManual, nil
	case "global-auto":
		return GlobalAuto, nil
	default:
		return None, fmt.Errorf("invalid conflict avoidance mode %q (expected one of: none, local-manual, global-manual, global-auto)", s)
	}
}

// Consistency returns the level used for the locks and counters of the mode.
func (m ConflictAvoidanceMode) Consistency() store.Consistency {
	if m == LocalManual {
		return store.ConsistencyLocalKey
	}
	return store.ConsistencyKey
}

// Tagged reports whether the mode puts a tag into counter keys and IDs.
func (m ConflictAvoidanceMode) Tagged() bool {
	return m != None
}
