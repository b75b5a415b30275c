// Copyright (c) 2026 Daniel Alarcon Rubio / Relabs Tech
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

package ekf

import "testing"

func TestHistoryStoreRespectsMinInterval(t *testing.T) {
	h := NewHistory()
	s1 := NewState()
	s1.Pos()[0] = 1
	h.Store(1000, s1)

	s2 := NewState()
	s2.Pos()[0] = 2
	h.Store(1005, s2) // within historyMinIntervalMs of the first store, dropped

	got := h.Recall(1005, NewState())
	if got.Pos()[0] != 1 {
		t.Fatalf("Recall after too-close second Store returned Pos[0]=%v, want 1 (second store should have been dropped)", got.Pos()[0])
	}

	s3 := NewState()
	s3.Pos()[0] = 3
	h.Store(1000+historyMinIntervalMs, s3)
	got = h.Recall(1000+historyMinIntervalMs, NewState())
	if got.Pos()[0] != 3 {
		t.Fatalf("Recall after a properly spaced Store returned Pos[0]=%v, want 3", got.Pos()[0])
	}
}

func TestHistoryRecallFallsBackToLiveWhenTooOld(t *testing.T) {
	h := NewHistory()
	stored := NewState()
	stored.Pos()[0] = 1
	h.Store(0, stored)

	live := NewState()
	live.Pos()[0] = 99

	got := h.Recall(historyMaxAgeMs+1, live)
	if got.Pos()[0] != 99 {
		t.Fatalf("Recall beyond historyMaxAgeMs returned Pos[0]=%v, want live's 99", got.Pos()[0])
	}
}

func TestHistoryRecallPicksClosestEntry(t *testing.T) {
	h := NewHistory()
	for i := 0; i < 5; i++ {
		s := NewState()
		s.Pos()[0] = float64(i)
		h.Store(int64(i*historyMinIntervalMs), s)
	}
	got := h.Recall(2*historyMinIntervalMs+2, NewState())
	if got.Pos()[0] != 2 {
		t.Fatalf("Recall picked Pos[0]=%v, want the closest stored entry (2)", got.Pos()[0])
	}
}

// Store then Reset then Recall(now) must return exactly the state passed to
// Reset, per spec.md section 8's round-trip property.
func TestHistoryResetThenRecallReturnsExactCurrentState(t *testing.T) {
	h := NewHistory()
	h.Store(0, NewState())
	h.Store(historyMinIntervalMs, NewState())

	current := NewState()
	current.Pos()[0], current.Pos()[1], current.Pos()[2] = 10, 20, 30
	current.Vel()[0] = 5

	h.Reset(current, 500)

	got := h.Recall(500, NewState())
	if got.Pos()[0] != 10 || got.Pos()[1] != 20 || got.Pos()[2] != 30 || got.Vel()[0] != 5 {
		t.Fatalf("Recall(now) after Reset = %+v, want the exact state passed to Reset", got)
	}
}

func TestHistoryRingWrapsWithoutPanicking(t *testing.T) {
	h := NewHistory()
	for i := 0; i < historySlots*3; i++ {
		s := NewState()
		s.Pos()[0] = float64(i)
		h.Store(int64(i*historyMinIntervalMs), s)
	}
	// The most recent store should still be recallable.
	last := int64((historySlots*3 - 1) * historyMinIntervalMs)
	got := h.Recall(last, NewState())
	if got.Pos()[0] != float64(historySlots*3-1) {
		t.Fatalf("Recall after wrap = %v, want the most recent entry", got.Pos()[0])
	}
}
