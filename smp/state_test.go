package smp

import "testing"

func TestStateTableInitialState(t *testing.T) {
	st := NewStateTable(4, nil)

	for core := 0; core < 4; core++ {
		if got := st.State(core); got != Offline {
			t.Fatalf("State(%d) = %v, want Offline", core, got)
		}
	}
	if got := st.OnlineCount(); got != 0 {
		t.Fatalf("OnlineCount() = %d, want 0", got)
	}
}

func TestStateTableLifecycle(t *testing.T) {
	st := NewStateTable(4, nil)

	steps := []struct {
		from, to CoreState
		online   int
	}{
		{Offline, Starting, 0},
		{Starting, Online, 1},
		{Online, Stopping, 0},
		{Stopping, Offline, 0},
	}
	for _, step := range steps {
		if !st.Transition(1, step.from, step.to) {
			t.Fatalf("Transition(1, %v, %v) = false, want true", step.from, step.to)
		}
		if got := st.State(1); got != step.to {
			t.Fatalf("State(1) = %v after %v -> %v, want %v", got, step.from, step.to, step.to)
		}
		if got := st.OnlineCount(); got != step.online {
			t.Fatalf("OnlineCount() = %d after %v -> %v, want %d", got, step.from, step.to, step.online)
		}
	}
}

func TestStateTableAbortedBringUp(t *testing.T) {
	st := NewStateTable(2, nil)

	if !st.Transition(1, Offline, Starting) {
		t.Fatalf("Transition(1, Offline, Starting) = false, want true")
	}
	if !st.Transition(1, Starting, Offline) {
		t.Fatalf("Transition(1, Starting, Offline) = false, want true")
	}
	if got := st.State(1); got != Offline {
		t.Fatalf("State(1) = %v, want Offline", got)
	}
	if got := st.OnlineCount(); got != 0 {
		t.Fatalf("OnlineCount() = %d, want 0", got)
	}
}

func TestStateTableIllegalTransitions(t *testing.T) {
	st := NewStateTable(2, nil)

	illegal := []struct{ from, to CoreState }{
		{Offline, Online},
		{Offline, Stopping},
		{Starting, Stopping},
		{Online, Offline},
		{Online, Starting},
		{Stopping, Online},
		{Stopping, Starting},
		{Online, Online},
	}
	for _, tc := range illegal {
		if st.Transition(0, tc.from, tc.to) {
			t.Fatalf("Transition(0, %v, %v) = true, want false", tc.from, tc.to)
		}
	}
	if got := st.State(0); got != Offline {
		t.Fatalf("State(0) = %v after illegal transitions, want Offline", got)
	}
}

func TestStateTableStaleFrom(t *testing.T) {
	st := NewStateTable(2, nil)

	if !st.Transition(0, Offline, Starting) {
		t.Fatalf("Transition(0, Offline, Starting) = false, want true")
	}
	// The cell is Starting now; a racer still holding from=Offline loses.
	if st.Transition(0, Offline, Starting) {
		t.Fatalf("Transition(0, Offline, Starting) = true on stale from, want false")
	}
}

func TestStateTableOutOfRange(t *testing.T) {
	st := NewStateTable(2, nil)

	if got := st.State(-1); got != Offline {
		t.Fatalf("State(-1) = %v, want Offline", got)
	}
	if got := st.State(2); got != Offline {
		t.Fatalf("State(2) = %v, want Offline", got)
	}
	if st.Transition(2, Offline, Starting) {
		t.Fatalf("Transition(2, ...) = true, want false")
	}
	if st.IsOnline(5) {
		t.Fatalf("IsOnline(5) = true, want false")
	}
}
