package hal

import "errors"

// Logger provides best-effort info/warn/error sinks. It never fails and is
// never a substitute for a return value.
type Logger interface {
	Infof(format string, args ...any)
	Warnf(format string, args ...any)
	Errorf(format string, args ...any)
}

// TopologyReport is the answer to the one question the core asks at init.
type TopologyReport struct {
	SocketCount    int
	CoresPerSocket int
	ThreadsPerCore int

	// ControllerIDs holds one opaque controller identifier per logical core
	// in dense core order (APIC ID, MPIDR affinity bits, hart ID). May be
	// nil, in which case the core id doubles as the controller id.
	ControllerIDs []uint32
}

// ArchProbe discovers the machine topology. Called exactly once, at init.
type ArchProbe interface {
	Discover() (TopologyReport, error)
}

// InterruptController delivers the IPI vector to a single core.
//
// Signal must be safe to call concurrently from any core. Whether a
// self-signal is suppressed is up to the implementation.
type InterruptController interface {
	Signal(core int) error
}

// MemoryOps is the narrow slice of the memory subsystem the core needs.
type MemoryOps interface {
	FlushLocalTLB()
}

// NopLogger discards all log lines.
type NopLogger struct{}

func (NopLogger) Infof(string, ...any)  {}
func (NopLogger) Warnf(string, ...any)  {}
func (NopLogger) Errorf(string, ...any) {}

// NopMemory ignores TLB flushes. Suitable for host runs, where there is no
// TLB of our own to shoot down.
type NopMemory struct{}

func (NopMemory) FlushLocalTLB() {}

var ErrNoSuchCore = errors.New("hal: no such core")
