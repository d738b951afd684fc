package smp

import (
	"fmt"
	"sync"
	"sync/atomic"

	"coresmp/hal"
)

// MaxCores bounds the subsystem to the width of a target mask.
const MaxCores = 64

// CpuTopology describes the machine shape. Immutable after init.
//
// A "core" throughout this package is a logical execution unit (a hardware
// thread), addressed by a dense 0-based id; TotalCores counts those, so
// TotalCores = SocketCount × CoresPerSocket × ThreadsPerCore.
type CpuTopology struct {
	SocketCount    int
	CoresPerSocket int
	ThreadsPerCore int
	TotalCores     int
	TotalThreads   int
}

// CoreDescriptor describes one logical core. Immutable after init.
type CoreDescriptor struct {
	CoreID     int
	SocketID   int
	ThreadID   int
	IsBootCore bool

	// ControllerID is the opaque identifier the interrupt controller uses
	// to address this core.
	ControllerID uint32
}

// Registry discovers and holds the topology, exactly once.
type Registry struct {
	mu    sync.Mutex
	ready atomic.Bool
	topo  CpuTopology
	cores []CoreDescriptor
	log   hal.Logger
}

// NewRegistry creates an uninitialized registry.
func NewRegistry(log hal.Logger) *Registry {
	if log == nil {
		log = hal.NopLogger{}
	}
	return &Registry{log: log}
}

// Init queries the probe and freezes the topology. The second call fails
// with ErrAlreadyInitialized; an inconsistent report fails with
// ErrInvalidTopology and leaves the registry uninitialized.
func (r *Registry) Init(probe hal.ArchProbe) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.ready.Load() {
		r.log.Warnf("topology: init called twice")
		return ErrAlreadyInitialized
	}

	report, err := probe.Discover()
	if err != nil {
		return fmt.Errorf("smp: topology probe: %w", err)
	}
	topo, cores, err := buildTopology(report)
	if err != nil {
		return err
	}

	r.topo = topo
	r.cores = cores
	r.ready.Store(true)
	r.log.Infof("topology: %d sockets, %d cores/socket, %d threads/core (%d logical cores)",
		topo.SocketCount, topo.CoresPerSocket, topo.ThreadsPerCore, topo.TotalCores)
	return nil
}

func buildTopology(report hal.TopologyReport) (CpuTopology, []CoreDescriptor, error) {
	if report.SocketCount < 1 || report.CoresPerSocket < 1 || report.ThreadsPerCore < 1 {
		return CpuTopology{}, nil, ErrInvalidTopology
	}
	total := report.SocketCount * report.CoresPerSocket * report.ThreadsPerCore
	if total < 1 || total > MaxCores {
		return CpuTopology{}, nil, ErrInvalidTopology
	}
	if report.ControllerIDs != nil && len(report.ControllerIDs) != total {
		return CpuTopology{}, nil, ErrInvalidTopology
	}

	topo := CpuTopology{
		SocketCount:    report.SocketCount,
		CoresPerSocket: report.CoresPerSocket,
		ThreadsPerCore: report.ThreadsPerCore,
		TotalCores:     total,
		TotalThreads:   total,
	}

	perSocket := report.CoresPerSocket * report.ThreadsPerCore
	cores := make([]CoreDescriptor, total)
	for id := range cores {
		ctrlID := uint32(id)
		if report.ControllerIDs != nil {
			ctrlID = report.ControllerIDs[id]
		}
		cores[id] = CoreDescriptor{
			CoreID:       id,
			SocketID:     id / perSocket,
			ThreadID:     id % report.ThreadsPerCore,
			IsBootCore:   id == 0,
			ControllerID: ctrlID,
		}
	}
	return topo, cores, nil
}

// Ready reports whether Init has completed successfully.
func (r *Registry) Ready() bool { return r.ready.Load() }

// Topology returns the frozen topology. Calling it before a successful Init
// is a programming error and panics.
func (r *Registry) Topology() CpuTopology {
	if !r.ready.Load() {
		panic("smp: topology registry not initialized")
	}
	return r.topo
}

// Cores returns the frozen descriptor table in dense core order. The caller
// must not modify it. Panics before a successful Init.
func (r *Registry) Cores() []CoreDescriptor {
	if !r.ready.Load() {
		panic("smp: topology registry not initialized")
	}
	return r.cores
}
