package hal

import (
	"runtime"
	"sync"
	"sync/atomic"
)

// MachineConfig controls the simulated SMP machine.
type MachineConfig struct {
	// Pin binds each core goroutine to the matching host CPU. Best effort;
	// failures are logged and ignored.
	Pin    bool
	Logger Logger
}

// Machine simulates an SMP machine on the host: one OS-thread-locked
// goroutine per core, each with a one-deep interrupt line. Raising a line
// that is already pending coalesces, as hardware interrupts do; the inbox
// handler is expected to drain everything pending when it runs.
//
// Machine implements InterruptController.
type Machine struct {
	cfg     MachineConfig
	lines   []chan struct{}
	stop    chan struct{}
	wg      sync.WaitGroup
	started atomic.Bool
	stopped atomic.Bool
}

// NewMachine creates a machine with the given number of cores.
func NewMachine(cores int, cfg MachineConfig) *Machine {
	if cores <= 0 {
		panic("hal: machine needs at least one core")
	}
	if cfg.Logger == nil {
		cfg.Logger = NopLogger{}
	}
	m := &Machine{
		cfg:   cfg,
		lines: make([]chan struct{}, cores),
		stop:  make(chan struct{}),
	}
	for i := range m.lines {
		m.lines[i] = make(chan struct{}, 1)
	}
	return m
}

// Cores returns the number of simulated cores.
func (m *Machine) Cores() int { return len(m.lines) }

// Signal raises the interrupt line of one core. Safe from any goroutine.
func (m *Machine) Signal(core int) error {
	if core < 0 || core >= len(m.lines) {
		return ErrNoSuchCore
	}
	select {
	case m.lines[core] <- struct{}{}:
	default:
		// Already pending; the interrupt coalesces.
	}
	return nil
}

// Start launches the per-core loops. handler runs on the target core's
// thread each time its line is raised, playing the part of the IPI
// interrupt handler. Start is one-shot; repeated calls do nothing.
func (m *Machine) Start(handler func(core int)) {
	if handler == nil {
		panic("hal: nil inbox handler")
	}
	if !m.started.CompareAndSwap(false, true) {
		return
	}
	for core := range m.lines {
		m.wg.Add(1)
		go m.run(core, handler)
	}
}

func (m *Machine) run(core int, handler func(int)) {
	defer m.wg.Done()
	runtime.LockOSThread()
	defer runtime.UnlockOSThread()
	if m.cfg.Pin {
		if err := pinThread(core); err != nil {
			m.cfg.Logger.Warnf("machine: pin core %d: %v", core, err)
		}
	}
	for {
		select {
		case <-m.stop:
			return
		case <-m.lines[core]:
			handler(core)
		}
	}
}

// Stop halts every core loop and waits for them to exit.
func (m *Machine) Stop() {
	if !m.stopped.CompareAndSwap(false, true) {
		return
	}
	close(m.stop)
	m.wg.Wait()
}
