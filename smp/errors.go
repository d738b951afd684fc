package smp

import "errors"

var (
	// ErrInvalidTopology is returned when the probe reports inconsistent counts.
	ErrInvalidTopology = errors.New("smp: invalid topology")

	// ErrAlreadyInitialized is returned on a second one-shot initialization.
	ErrAlreadyInitialized = errors.New("smp: already initialized")

	// ErrNoTargets is returned when a send mask names no cores.
	ErrNoTargets = errors.New("smp: no targets in mask")

	// ErrInvalidTarget is returned when a mask or core id names a core that
	// does not exist, or when a primitive is pointed at the boot core.
	ErrInvalidTarget = errors.New("smp: invalid target core")

	// ErrControllerFailure wraps an interrupt controller error from Signal.
	ErrControllerFailure = errors.New("smp: interrupt controller failure")

	// ErrNoController is returned when sending before a controller is bound.
	ErrNoController = errors.New("smp: no interrupt controller bound")

	// ErrNilCall is returned when a call send carries no function.
	ErrNilCall = errors.New("smp: nil call function")

	// ErrTimeout is returned when a bounded wait elapses.
	ErrTimeout = errors.New("smp: timeout")
)
