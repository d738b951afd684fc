// Package smp is the multi-core coordination core: topology discovery,
// per-core lifecycle state, IPI dispatch, and the SMP primitives built on
// top of them. Everything architecture-specific lives behind the hal
// interfaces injected at init.
package smp

import (
	"fmt"
	"math/bits"
	"runtime"
	"sync/atomic"
	"time"

	"coresmp/hal"
)

// Config wires the collaborators into a System.
type Config struct {
	Probe      hal.ArchProbe
	Controller hal.InterruptController // may be bound later via BindController
	Memory     hal.MemoryOps           // nil means TLB flushes are no-ops
	Logger     hal.Logger              // nil means silent

	// Hooks overrides the default receive-side behavior. When OnWake is nil
	// the System installs a minimal bring-up that completes the
	// Starting → Online transition on the woken core.
	Hooks Hooks
}

// System composes the registry, state table, and dispatch engine, and
// provides the coordination primitives.
type System struct {
	reg    *Registry
	states *StateTable
	engine *Engine
	stats  *Stats
	log    hal.Logger
}

// New probes the topology, allocates the state table and mailboxes, binds
// the controller if one was supplied, and marks the boot core online.
func New(cfg Config) (*System, error) {
	log := cfg.Logger
	if log == nil {
		log = hal.NopLogger{}
	}
	if cfg.Probe == nil {
		return nil, fmt.Errorf("smp: nil arch probe")
	}

	reg := NewRegistry(log)
	if err := reg.Init(cfg.Probe); err != nil {
		return nil, err
	}
	topo := reg.Topology()

	states := NewStateTable(topo.TotalCores, log)
	stats := &Stats{}
	engine := NewEngine(reg, states, stats, cfg.Memory, log)

	hooks := cfg.Hooks
	if hooks.OnWake == nil {
		hooks.OnWake = func(core int) {
			states.Transition(core, Starting, Online)
		}
	}
	engine.SetHooks(hooks)

	if cfg.Controller != nil {
		if err := engine.BindController(cfg.Controller); err != nil {
			return nil, err
		}
	}

	states.Transition(0, Offline, Starting)
	states.Transition(0, Starting, Online)

	s := &System{reg: reg, states: states, engine: engine, stats: stats, log: log}
	log.Infof("smp: up with %d cores, boot core online", topo.TotalCores)
	return s, nil
}

// BindController binds the interrupt controller after construction. One-shot.
func (s *System) BindController(ctrl hal.InterruptController) error {
	return s.engine.BindController(ctrl)
}

// Topology returns the frozen machine topology.
func (s *System) Topology() CpuTopology { return s.reg.Topology() }

// Cores returns the frozen descriptor table. The caller must not modify it.
func (s *System) Cores() []CoreDescriptor { return s.reg.Cores() }

// State returns the lifecycle state of one core.
func (s *System) State(core int) CoreState { return s.states.State(core) }

// IsOnline reports whether a core is online.
func (s *System) IsOnline(core int) bool { return s.states.IsOnline(core) }

// OnlineCount returns the number of online cores.
func (s *System) OnlineCount() int { return s.states.OnlineCount() }

// Transition exposes the state table's CAS transition, for external
// bring-up and teardown code.
func (s *System) Transition(core int, from, to CoreState) bool {
	return s.states.Transition(core, from, to)
}

// Send delivers a message of the given kind to every core in mask.
func (s *System) Send(mask uint64, kind Kind, payload uint64) error {
	return s.engine.Send(mask, kind, payload)
}

// SendUser delivers a user-defined message keyed by tag.
func (s *System) SendUser(mask uint64, tag uint8, payload uint64) error {
	return s.engine.SendUser(mask, tag, payload)
}

// SendCall delivers fn to every core in mask.
func (s *System) SendCall(mask uint64, fn func()) error {
	return s.engine.SendCall(mask, fn)
}

// RegisterUserHandler installs the handler for one user-defined tag.
func (s *System) RegisterUserHandler(tag uint8, fn UserHandler) {
	s.engine.RegisterUserHandler(tag, fn)
}

// ProcessInbox drains and executes this core's pending messages. Call it
// from the core's IPI interrupt handler.
func (s *System) ProcessInbox(core int) {
	s.engine.ProcessInbox(core)
}

// Stats returns a point-in-time snapshot of the subsystem counters.
func (s *System) Stats() Snapshot {
	return Snapshot{
		TotalCores:      s.reg.Topology().TotalCores,
		OnlineCores:     s.states.OnlineCount(),
		IpiSent:         s.stats.IpiSent(),
		IpiReceived:     s.stats.IpiReceived(),
		TlbShootdowns:   s.stats.TlbShootdowns(),
		ContextSwitches: s.stats.ContextSwitches(),
	}
}

// NoteContextSwitch bumps the reserved context switch counter on behalf of
// the external scheduler.
func (s *System) NoteContextSwitch() { s.stats.NoteContextSwitch() }

// Wake asks an offline secondary core to start: Offline → Starting, then a
// Wake IPI. The bring-up code (the OnWake hook by default) completes
// Starting → Online. Waking the boot core or a core that is not Offline
// returns ErrInvalidTarget.
func (s *System) Wake(core int) error {
	if core <= 0 || core >= s.reg.Topology().TotalCores {
		return ErrInvalidTarget
	}
	if !s.states.Transition(core, Offline, Starting) {
		return ErrInvalidTarget
	}
	return s.engine.Send(1<<uint(core), KindWake, 0)
}

// Shutdown asks an online secondary core to stop: Online → Stopping, then a
// Shutdown IPI. The receiver runs the OnShutdown hook and completes
// Stopping → Offline. Stopping the boot core or a core that is not Online
// returns ErrInvalidTarget.
func (s *System) Shutdown(core int) error {
	if core <= 0 || core >= s.reg.Topology().TotalCores {
		return ErrInvalidTarget
	}
	if !s.states.Transition(core, Online, Stopping) {
		return ErrInvalidTarget
	}
	return s.engine.Send(1<<uint(core), KindShutdown, 0)
}

// ShutdownSecondaries stops every online core except the boot core,
// returning the first error encountered.
func (s *System) ShutdownSecondaries() error {
	var firstErr error
	for core := 1; core < s.reg.Topology().TotalCores; core++ {
		if !s.states.IsOnline(core) {
			continue
		}
		if err := s.Shutdown(core); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}

// TlbShootdownAll sends a TLB shootdown to every core, the caller's
// included; the caller's local flush happens on its next ProcessInbox.
func (s *System) TlbShootdownAll() error {
	return s.engine.Send(s.allMask(), KindTLBShootdown, 0)
}

// CallOn delivers fn to every core in mask. Asynchronous: it returns after
// enqueue, and callers needing completion must synchronize themselves (or
// use Rendezvous).
func (s *System) CallOn(mask uint64, fn func()) error {
	return s.engine.SendCall(mask, fn)
}

// CallOnAll delivers fn to every core.
func (s *System) CallOnAll(fn func()) error {
	return s.engine.SendCall(s.allMask(), fn)
}

// ForceRescheduleAll sends a Reschedule to every core.
func (s *System) ForceRescheduleAll() error {
	return s.engine.Send(s.allMask(), KindReschedule, 0)
}

// WaitAllOnline spin-waits until every core is online, yielding between
// polls. Returns ErrTimeout if the deadline elapses first; an already-past
// deadline times out without side effects.
func (s *System) WaitAllOnline(timeout time.Duration) error {
	total := s.reg.Topology().TotalCores
	deadline := time.Now().Add(timeout)
	for s.states.OnlineCount() < total {
		if timeout <= 0 || !time.Now().Before(deadline) {
			return ErrTimeout
		}
		runtime.Gosched()
	}
	return nil
}

// Rendezvous is an all-online-cores barrier: it delivers a marker call to
// every online core and spin-waits until each has executed it. Must not be
// called from inside an IPI handler, since the caller's own core could
// never drain its marker.
func (s *System) Rendezvous(timeout time.Duration) error {
	mask := s.onlineMask()
	if mask == 0 {
		return ErrNoTargets
	}
	var arrived atomic.Int64
	if err := s.engine.SendCall(mask, func() { arrived.Add(1) }); err != nil {
		return err
	}
	want := int64(bits.OnesCount64(mask))
	deadline := time.Now().Add(timeout)
	for arrived.Load() < want {
		if timeout <= 0 || !time.Now().Before(deadline) {
			return ErrTimeout
		}
		runtime.Gosched()
	}
	return nil
}

func (s *System) allMask() uint64 {
	total := s.reg.Topology().TotalCores
	if total >= MaxCores {
		return ^uint64(0)
	}
	return (uint64(1) << uint(total)) - 1
}

func (s *System) onlineMask() uint64 {
	var mask uint64
	for core := 0; core < s.reg.Topology().TotalCores; core++ {
		if s.states.IsOnline(core) {
			mask |= 1 << uint(core)
		}
	}
	return mask
}
