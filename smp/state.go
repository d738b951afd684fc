package smp

import (
	"sync/atomic"

	"coresmp/hal"
)

// CoreState is the lifecycle state of one core.
type CoreState uint8

const (
	Offline CoreState = iota
	Starting
	Online
	Stopping
)

func (s CoreState) String() string {
	switch s {
	case Offline:
		return "offline"
	case Starting:
		return "starting"
	case Online:
		return "online"
	case Stopping:
		return "stopping"
	default:
		return "unknown"
	}
}

// StateTable holds one atomic state cell per core plus the online count.
//
// The online counter is adjusted after a transition crosses the Online
// boundary, so a reader may briefly observe the counter lagging a cell by
// one transition; it never drifts further.
type StateTable struct {
	cells  []atomic.Uint32
	online atomic.Int64
	log    hal.Logger
}

// NewStateTable creates a table with every core Offline.
func NewStateTable(cores int, log hal.Logger) *StateTable {
	if log == nil {
		log = hal.NopLogger{}
	}
	return &StateTable{cells: make([]atomic.Uint32, cores), log: log}
}

// State returns the current state of a core. Out-of-range ids read Offline,
// which lets callers loop over mask bits without range checks.
func (t *StateTable) State(core int) CoreState {
	if core < 0 || core >= len(t.cells) {
		return Offline
	}
	return CoreState(t.cells[core].Load())
}

func legalTransition(from, to CoreState) bool {
	switch {
	case from == Offline && to == Starting:
		return true
	case from == Starting && to == Online:
		return true
	case from == Online && to == Stopping:
		return true
	case from == Stopping && to == Offline:
		return true
	case from == Starting && to == Offline: // bring-up aborted
		return true
	}
	return false
}

// Transition compare-and-swaps a core's state cell from from to to.
// Illegal pairs, out-of-range ids, and lost races all return false with no
// side effects.
func (t *StateTable) Transition(core int, from, to CoreState) bool {
	if core < 0 || core >= len(t.cells) {
		return false
	}
	if !legalTransition(from, to) {
		return false
	}
	if !t.cells[core].CompareAndSwap(uint32(from), uint32(to)) {
		return false
	}
	if to == Online {
		t.online.Add(1)
	} else if from == Online {
		t.online.Add(-1)
	}
	t.log.Infof("core %d: %s -> %s", core, from, to)
	return true
}

// IsOnline reports whether a core is Online.
func (t *StateTable) IsOnline(core int) bool {
	return t.State(core) == Online
}

// OnlineCount returns the number of Online cores.
func (t *StateTable) OnlineCount() int {
	return int(t.online.Load())
}

// Len returns the number of cores tracked.
func (t *StateTable) Len() int { return len(t.cells) }
