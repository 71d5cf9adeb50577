package models

import "testing"

func TestCanAdvanceLeg(t *testing.T) {
	tests := []struct {
		from     string
		to       string
		expected bool
	}{
		// Happy path
		{LegStateCreated, LegStateFunded, true},
		{LegStateFunded, LegStateFiatPaid, true},
		{LegStateFiatPaid, LegStateDisputed, true},
		{LegStateFiatPaid, LegStateCompleted, true},
		{LegStateDisputed, LegStateResolved, true},

		// Cancellation from any non-terminal state
		{LegStateCreated, LegStateCancelled, true},
		{LegStateFunded, LegStateCancelled, true},
		{LegStateFiatPaid, LegStateCancelled, true},

		// Never backward
		{LegStateFunded, LegStateCreated, false},
		{LegStateFiatPaid, LegStateFunded, false},
		{LegStateDisputed, LegStateFiatPaid, false},

		// Terminal legs never move
		{LegStateCompleted, LegStateCancelled, false},
		{LegStateCancelled, LegStateCompleted, false},
		{LegStateReleased, LegStateCompleted, false},
		{LegStateResolved, LegStateCancelled, false},

		// Unknown states
		{"nonexistent", LegStateFunded, false},
		{LegStateCreated, "nonexistent", false},
	}

	for _, tt := range tests {
		t.Run(tt.from+"->"+tt.to, func(t *testing.T) {
			result := CanAdvanceLeg(tt.from, tt.to)
			if result != tt.expected {
				t.Errorf("CanAdvanceLeg(%q, %q) = %v, want %v", tt.from, tt.to, result, tt.expected)
			}
		})
	}
}

func TestLegRankOrdering(t *testing.T) {
	ordered := []string{LegStateCreated, LegStateFunded, LegStateFiatPaid, LegStateDisputed, LegStateCompleted}
	for i := 1; i < len(ordered); i++ {
		prev, cur := ordered[i-1], ordered[i]
		if LegStateRank(prev) >= LegStateRank(cur) {
			t.Errorf("rank(%q) = %d should be below rank(%q) = %d",
				prev, LegStateRank(prev), cur, LegStateRank(cur))
		}
	}
}

func TestAllLegStatesHaveRank(t *testing.T) {
	allStates := []string{
		LegStateCreated, LegStateFunded, LegStateFiatPaid, LegStateDisputed,
		LegStateReleased, LegStateCompleted, LegStateResolved, LegStateCancelled,
	}

	for _, state := range allStates {
		if LegStateRank(state) == 0 {
			t.Errorf("state %q missing from legStateRank map", state)
		}
	}
}
