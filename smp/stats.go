package smp

import "sync/atomic"

// Stats aggregates the subsystem counters. All fields are monotonic.
type Stats struct {
	ipiSent         atomic.Uint64
	ipiReceived     atomic.Uint64
	tlbShootdowns   atomic.Uint64
	contextSwitches atomic.Uint64
}

func (s *Stats) IpiSent() uint64         { return s.ipiSent.Load() }
func (s *Stats) IpiReceived() uint64     { return s.ipiReceived.Load() }
func (s *Stats) TlbShootdowns() uint64   { return s.tlbShootdowns.Load() }
func (s *Stats) ContextSwitches() uint64 { return s.contextSwitches.Load() }

// NoteContextSwitch bumps the context switch counter. The counter is
// reserved for the external scheduler; nothing in this package bumps it.
func (s *Stats) NoteContextSwitch() {
	s.contextSwitches.Add(1)
}

// Snapshot is a point-in-time copy of the counters, suitable for export.
type Snapshot struct {
	TotalCores      int    `json:"total_cores"`
	OnlineCores     int    `json:"online_cores"`
	IpiSent         uint64 `json:"ipi_sent"`
	IpiReceived     uint64 `json:"ipi_received"`
	TlbShootdowns   uint64 `json:"tlb_shootdowns"`
	ContextSwitches uint64 `json:"context_switches"`
}
