package smp

import (
	"fmt"
	"math/bits"
	"sync"
	"sync/atomic"

	"coresmp/hal"
)

// UserHandler processes a user-defined IPI message on the receiving core.
type UserHandler func(core int, payload uint64)

// Hooks connect the engine to its out-of-scope collaborators. Each hook runs
// on the receiving core, inside ProcessInbox. A nil hook means the message
// kind is effect-free.
type Hooks struct {
	// OnWake runs when a Wake message arrives on a core that was asked to
	// start. It is the bring-up trampoline's responsibility to complete the
	// Starting → Online transition.
	OnWake func(core int)

	// OnShutdown runs before the engine completes the Stopping → Offline
	// transition for a core that was asked to stop.
	OnShutdown func(core int)

	// OnReschedule hands a Reschedule message to the external scheduler.
	OnReschedule func(core int)
}

// Engine delivers IPI messages: enqueue into per-core mailboxes, signal the
// interrupt controller, drain and execute on the receiving core.
type Engine struct {
	states *StateTable
	stats  *Stats
	mem    hal.MemoryOps
	log    hal.Logger
	hooks  Hooks
	total  int

	ctrlMu sync.Mutex
	ctrl   hal.InterruptController

	boxes    []*mailbox
	handlers [256]atomic.Value // UserHandler per tag
}

// NewEngine creates an engine for an initialized registry. Calling it before
// Registry.Init is a programming error (Topology panics).
func NewEngine(reg *Registry, states *StateTable, stats *Stats, mem hal.MemoryOps, log hal.Logger) *Engine {
	if log == nil {
		log = hal.NopLogger{}
	}
	if mem == nil {
		mem = hal.NopMemory{}
	}
	total := reg.Topology().TotalCores
	e := &Engine{
		states: states,
		stats:  stats,
		mem:    mem,
		log:    log,
		total:  total,
		boxes:  make([]*mailbox, total),
	}
	for i := range e.boxes {
		e.boxes[i] = newMailbox()
	}
	return e
}

// SetHooks installs the collaborator hooks. Not safe concurrently with
// message processing; call during wiring.
func (e *Engine) SetHooks(h Hooks) { e.hooks = h }

// BindController binds the interrupt controller. One-shot.
func (e *Engine) BindController(ctrl hal.InterruptController) error {
	e.ctrlMu.Lock()
	defer e.ctrlMu.Unlock()
	if e.ctrl != nil {
		return ErrAlreadyInitialized
	}
	e.ctrl = ctrl
	return nil
}

func (e *Engine) controller() hal.InterruptController {
	e.ctrlMu.Lock()
	defer e.ctrlMu.Unlock()
	return e.ctrl
}

// RegisterUserHandler installs the handler for one user-defined tag,
// replacing any previous one.
func (e *Engine) RegisterUserHandler(tag uint8, fn UserHandler) {
	e.handlers[tag].Store(fn)
}

func (e *Engine) userHandler(tag uint8) UserHandler {
	if v := e.handlers[tag].Load(); v != nil {
		if fn, ok := v.(UserHandler); ok {
			return fn
		}
	}
	return nil
}

// Send delivers a message of the given kind to every core in mask.
func (e *Engine) Send(mask uint64, kind Kind, payload uint64) error {
	return e.dispatch(Message{Kind: kind, TargetMask: mask, Payload: payload})
}

// SendUser delivers a user-defined message keyed by tag.
func (e *Engine) SendUser(mask uint64, tag uint8, payload uint64) error {
	return e.dispatch(Message{Kind: KindUser, Tag: tag, TargetMask: mask, Payload: payload})
}

// SendCall delivers fn to every core in mask. fn must remain valid until
// every recipient has executed it.
func (e *Engine) SendCall(mask uint64, fn func()) error {
	if fn == nil {
		return ErrNilCall
	}
	return e.dispatch(Message{Kind: KindCall, TargetMask: mask, Call: fn})
}

// dispatch enqueues the message for every core in its mask, then asks the
// controller to signal each recipient. Cores observed Offline at signal
// time are enqueued but not signalled: the target may still be
// transitioning, and a core that never comes up simply never drains.
func (e *Engine) dispatch(msg Message) error {
	mask := msg.TargetMask
	if mask == 0 {
		return ErrNoTargets
	}
	if e.total < MaxCores && mask>>uint(e.total) != 0 {
		return ErrInvalidTarget
	}
	ctrl := e.controller()
	if ctrl == nil {
		return ErrNoController
	}

	// Enqueue before signalling so a core that takes the interrupt
	// immediately finds its copy waiting.
	for m := mask; m != 0; m &= m - 1 {
		e.boxes[bits.TrailingZeros64(m)].send(msg)
	}

	var signalled int
	var firstErr error
	for m := mask; m != 0; m &= m - 1 {
		core := bits.TrailingZeros64(m)
		if e.states.State(core) == Offline {
			continue
		}
		if err := ctrl.Signal(core); err != nil {
			if firstErr == nil {
				firstErr = err
			}
			continue
		}
		signalled++
	}

	if firstErr != nil {
		if signalled > 0 {
			e.stats.ipiSent.Add(1)
		}
		return fmt.Errorf("%w: %v", ErrControllerFailure, firstErr)
	}
	e.stats.ipiSent.Add(1)
	return nil
}

// ProcessInbox drains every pending message addressed to core, executing
// each in enqueue order. It is meant to be called from the core's IPI
// interrupt handler and holds no locks while handlers run.
func (e *Engine) ProcessInbox(core int) {
	if core < 0 || core >= e.total {
		return
	}
	mb := e.boxes[core]
	for {
		msg, ok := mb.tryRecv()
		if !ok {
			return
		}
		e.stats.ipiReceived.Add(1)
		e.execute(core, msg)
	}
}

func (e *Engine) execute(core int, msg Message) {
	defer func() {
		if r := recover(); r != nil {
			e.log.Errorf("ipi: handler panic on core %d (%s): %v", core, msg.Kind, r)
		}
	}()

	switch msg.Kind {
	case KindWake:
		if e.hooks.OnWake != nil {
			e.hooks.OnWake(core)
		}
	case KindShutdown:
		if e.hooks.OnShutdown != nil {
			e.hooks.OnShutdown(core)
		}
		e.states.Transition(core, Stopping, Offline)
	case KindReschedule:
		if e.hooks.OnReschedule != nil {
			e.hooks.OnReschedule(core)
		}
	case KindTLBShootdown:
		e.mem.FlushLocalTLB()
		e.stats.tlbShootdowns.Add(1)
	case KindCall:
		if msg.Call != nil {
			msg.Call()
		}
	case KindUser:
		if fn := e.userHandler(msg.Tag); fn != nil {
			fn(core, msg.Payload)
		} else {
			e.log.Warnf("ipi: no handler for user tag %d on core %d, dropping", msg.Tag, core)
		}
	default:
		e.log.Warnf("ipi: unknown message kind %d on core %d, dropping", msg.Kind, core)
	}
}
