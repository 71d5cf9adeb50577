package models

import "testing"

func TestCanAdvanceEscrow(t *testing.T) {
	tests := []struct {
		from     string
		to       string
		expected bool
	}{
		// Happy path
		{EscrowStateCreated, EscrowStateFunded, true},
		{EscrowStateFunded, EscrowStateDisputed, true},
		{EscrowStateFunded, EscrowStateReleased, true},
		{EscrowStateDisputed, EscrowStateResolved, true},

		// Skipping ranks is allowed, chain events are authoritative
		{EscrowStateCreated, EscrowStateReleased, true},
		{EscrowStateCreated, EscrowStateCancelled, true},
		{EscrowStateCreated, EscrowStateAutoCancelled, true},
		{EscrowStateFunded, EscrowStateCancelled, true},

		// Never backward
		{EscrowStateFunded, EscrowStateCreated, false},
		{EscrowStateDisputed, EscrowStateFunded, false},

		// Terminal states never move, not even laterally
		{EscrowStateReleased, EscrowStateCancelled, false},
		{EscrowStateCancelled, EscrowStateAutoCancelled, false},
		{EscrowStateAutoCancelled, EscrowStateCancelled, false},
		{EscrowStateResolved, EscrowStateReleased, false},
		{EscrowStateReleased, EscrowStateCreated, false},

		// Same state is not an advance
		{EscrowStateCreated, EscrowStateCreated, false},
		{EscrowStateFunded, EscrowStateFunded, false},

		// Unknown states
		{"nonexistent", EscrowStateFunded, false},
		{EscrowStateCreated, "nonexistent", false},
	}

	for _, tt := range tests {
		t.Run(tt.from+"->"+tt.to, func(t *testing.T) {
			result := CanAdvanceEscrow(tt.from, tt.to)
			if result != tt.expected {
				t.Errorf("CanAdvanceEscrow(%q, %q) = %v, want %v", tt.from, tt.to, result, tt.expected)
			}
		})
	}
}

func TestIsTerminalEscrowState(t *testing.T) {
	tests := []struct {
		state    string
		expected bool
	}{
		{EscrowStateCreated, false},
		{EscrowStateFunded, false},
		{EscrowStateDisputed, false},
		{EscrowStateReleased, true},
		{EscrowStateResolved, true},
		{EscrowStateCancelled, true},
		{EscrowStateAutoCancelled, true},
		{"nonexistent", false},
	}

	for _, tt := range tests {
		t.Run(tt.state, func(t *testing.T) {
			if got := IsTerminalEscrowState(tt.state); got != tt.expected {
				t.Errorf("IsTerminalEscrowState(%q) = %v, want %v", tt.state, got, tt.expected)
			}
		})
	}
}

func TestAllEscrowStatesHaveRank(t *testing.T) {
	allStates := []string{
		EscrowStateCreated, EscrowStateFunded, EscrowStateDisputed,
		EscrowStateReleased, EscrowStateResolved, EscrowStateCancelled, EscrowStateAutoCancelled,
	}

	for _, state := range allStates {
		if EscrowStateRank(state) == 0 {
			t.Errorf("state %q missing from escrowStateRank map", state)
		}
	}
}

func TestTerminalEscrowStatesShareTopRank(t *testing.T) {
	top := EscrowStateRank(EscrowStateReleased)
	for _, state := range []string{EscrowStateResolved, EscrowStateCancelled, EscrowStateAutoCancelled} {
		if EscrowStateRank(state) != top {
			t.Errorf("terminal state %q has rank %d, want %d", state, EscrowStateRank(state), top)
		}
	}
}
