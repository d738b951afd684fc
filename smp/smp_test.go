package smp

import (
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"coresmp/hal"
)

func TestNewBootCoreOnline(t *testing.T) {
	sys, _ := newTestSystem(t, 8, Config{})

	if got := sys.State(0); got != Online {
		t.Fatalf("State(0) = %v, want Online", got)
	}
	for core := 1; core < 8; core++ {
		if got := sys.State(core); got != Offline {
			t.Fatalf("State(%d) = %v, want Offline", core, got)
		}
	}
	if got := sys.OnlineCount(); got != 1 {
		t.Fatalf("OnlineCount() = %d, want 1", got)
	}
}

func TestNewInvalidProbe(t *testing.T) {
	_, err := New(Config{Probe: hal.StaticProbe{Sockets: 0, Cores: 4, Threads: 1}})
	if !errors.Is(err, ErrInvalidTopology) {
		t.Fatalf("New() error = %v, want ErrInvalidTopology", err)
	}
}

func TestWakeBootCore(t *testing.T) {
	sys, _ := newTestSystem(t, 4, Config{})

	if err := sys.Wake(0); !errors.Is(err, ErrInvalidTarget) {
		t.Fatalf("Wake(0) error = %v, want ErrInvalidTarget", err)
	}
}

func TestWakeOutOfRange(t *testing.T) {
	sys, _ := newTestSystem(t, 4, Config{})

	if err := sys.Wake(4); !errors.Is(err, ErrInvalidTarget) {
		t.Fatalf("Wake(4) error = %v, want ErrInvalidTarget", err)
	}
}

func TestWakeNotOffline(t *testing.T) {
	sys, _ := newTestSystem(t, 4, Config{})
	bringAllOnline(t, sys)

	if err := sys.Wake(2); !errors.Is(err, ErrInvalidTarget) {
		t.Fatalf("Wake(2) on online core error = %v, want ErrInvalidTarget", err)
	}
}

func TestShutdownBootCore(t *testing.T) {
	sys, _ := newTestSystem(t, 4, Config{})

	if err := sys.Shutdown(0); !errors.Is(err, ErrInvalidTarget) {
		t.Fatalf("Shutdown(0) error = %v, want ErrInvalidTarget", err)
	}
}

func TestShutdownOfflineCore(t *testing.T) {
	sys, _ := newTestSystem(t, 4, Config{})

	if err := sys.Shutdown(1); !errors.Is(err, ErrInvalidTarget) {
		t.Fatalf("Shutdown(1) on offline core error = %v, want ErrInvalidTarget", err)
	}
}

func TestShutdownSecondaries(t *testing.T) {
	sys, _ := newTestSystem(t, 4, Config{})
	bringAllOnline(t, sys)

	if err := sys.ShutdownSecondaries(); err != nil {
		t.Fatalf("ShutdownSecondaries() error = %v, want nil", err)
	}
	for core := 1; core < 4; core++ {
		sys.ProcessInbox(core)
	}
	if got := sys.OnlineCount(); got != 1 {
		t.Fatalf("OnlineCount() = %d after secondaries stopped, want 1", got)
	}
	if got := sys.State(0); got != Online {
		t.Fatalf("State(0) = %v, want Online", got)
	}
}

func TestTlbShootdownRepeated(t *testing.T) {
	const rounds = 5
	mem := &countMemory{}
	sys, _ := newTestSystem(t, 4, Config{Memory: mem})
	bringAllOnline(t, sys)

	for i := 0; i < rounds; i++ {
		if err := sys.TlbShootdownAll(); err != nil {
			t.Fatalf("TlbShootdownAll() round %d error = %v, want nil", i, err)
		}
		for core := 0; core < 4; core++ {
			sys.ProcessInbox(core)
		}
	}
	if got, want := sys.Stats().TlbShootdowns, uint64(rounds*4); got != want {
		t.Fatalf("TlbShootdowns = %d after %d rounds, want %d", got, rounds, want)
	}
}

func TestWaitAllOnlineTimeout(t *testing.T) {
	sys, _ := newTestSystem(t, 4, Config{})
	snapBefore := sys.Stats()

	if err := sys.WaitAllOnline(-time.Millisecond); !errors.Is(err, ErrTimeout) {
		t.Fatalf("WaitAllOnline(past deadline) error = %v, want ErrTimeout", err)
	}
	if got := sys.Stats(); got != snapBefore {
		t.Fatalf("Stats() changed across timed-out wait: %+v -> %+v", snapBefore, got)
	}
}

func TestWaitAllOnlineSatisfied(t *testing.T) {
	sys, _ := newTestSystem(t, 4, Config{})
	bringAllOnline(t, sys)

	if err := sys.WaitAllOnline(time.Second); err != nil {
		t.Fatalf("WaitAllOnline() error = %v, want nil", err)
	}
}

func TestWaitAllOnlineConcurrentBringUp(t *testing.T) {
	sys, _ := newTestSystem(t, 4, Config{})

	go func() {
		for core := 1; core < 4; core++ {
			if sys.Wake(core) == nil {
				sys.ProcessInbox(core)
			}
		}
	}()
	if err := sys.WaitAllOnline(5 * time.Second); err != nil {
		t.Fatalf("WaitAllOnline() error = %v, want nil", err)
	}
	if got := sys.OnlineCount(); got != 4 {
		t.Fatalf("OnlineCount() = %d, want 4", got)
	}
}

func TestRendezvousTimesOutWithoutDrain(t *testing.T) {
	sys, _ := newTestSystem(t, 4, Config{})
	bringAllOnline(t, sys)

	// Nobody drains the inboxes, so the markers never execute.
	if err := sys.Rendezvous(10 * time.Millisecond); !errors.Is(err, ErrTimeout) {
		t.Fatalf("Rendezvous() error = %v, want ErrTimeout", err)
	}
}

func TestRendezvousCompletes(t *testing.T) {
	sys, _ := newTestSystem(t, 4, Config{})
	bringAllOnline(t, sys)

	done := make(chan error, 1)
	go func() { done <- sys.Rendezvous(5 * time.Second) }()
	deadline := time.After(5 * time.Second)
	for {
		select {
		case err := <-done:
			if err != nil {
				t.Fatalf("Rendezvous() error = %v, want nil", err)
			}
			return
		case <-deadline:
			t.Fatalf("Rendezvous() did not complete")
		default:
			for core := 0; core < 4; core++ {
				sys.ProcessInbox(core)
			}
		}
	}
}

func TestStatsSnapshot(t *testing.T) {
	sys, _ := newTestSystem(t, 4, Config{})
	bringAllOnline(t, sys)

	sys.NoteContextSwitch()
	sys.NoteContextSwitch()

	snap := sys.Stats()
	if snap.TotalCores != 4 {
		t.Fatalf("Snapshot.TotalCores = %d, want 4", snap.TotalCores)
	}
	if snap.OnlineCores != 4 {
		t.Fatalf("Snapshot.OnlineCores = %d, want 4", snap.OnlineCores)
	}
	if snap.ContextSwitches != 2 {
		t.Fatalf("Snapshot.ContextSwitches = %d, want 2", snap.ContextSwitches)
	}
	// Three wakes were sent and received bringing the secondaries up.
	if snap.IpiSent != 3 || snap.IpiReceived != 3 {
		t.Fatalf("Snapshot sent/received = %d/%d, want 3/3", snap.IpiSent, snap.IpiReceived)
	}
}

func TestCustomWakeHook(t *testing.T) {
	var woken atomic.Int64
	sys, _ := newTestSystem(t, 2, Config{
		Hooks: Hooks{OnWake: func(core int) {
			woken.Add(1)
			// Custom bring-up decides to abort instead of going online.
		}},
	})

	if err := sys.Wake(1); err != nil {
		t.Fatalf("Wake(1) error = %v, want nil", err)
	}
	sys.ProcessInbox(1)

	if got := woken.Load(); got != 1 {
		t.Fatalf("wake hook ran %d times, want 1", got)
	}
	if got := sys.State(1); got != Starting {
		t.Fatalf("State(1) = %v with custom hook, want Starting", got)
	}
	if !sys.Transition(1, Starting, Offline) {
		t.Fatalf("Transition(1, Starting, Offline) = false, want true")
	}
}
