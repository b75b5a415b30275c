// Copyright (c) 2026 Daniel Alarcon Rubio / Relabs Tech
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

package ekf

// historySlots is the fixed ring size from spec.md section 3: a 50-entry
// ring of state snapshots with their storage timestamp.
const historySlots = 50

// historyMinIntervalMs is the minimum spacing between stored snapshots
// (spec.md section 4.3).
const historyMinIntervalMs = 10

// historyMaxAgeMs is the maximum timestamp distance recall() will accept
// before falling back to the live state (spec.md section 4.3).
const historyMaxAgeMs = 200

type historyEntry struct {
	valid bool
	tMs   int64
	state State
}

// History is an index-based ring buffer of state snapshots, per the
// DESIGN NOTES' instruction against intrusive linked structures; lookup is
// a bounded linear scan over historySlots entries, which is intentional
// (spec.md section 9).
type History struct {
	slots       [historySlots]historyEntry
	next        int
	lastStoreMs int64
}

// NewHistory returns an empty ring.
func NewHistory() *History {
	return &History{lastStoreMs: -1 << 62}
}

// Store writes the current state to the next ring slot if at least
// historyMinIntervalMs has elapsed since the last store, overwriting the
// oldest entry on wrap (spec.md section 4.3).
func (h *History) Store(nowMs int64, s State) {
	if nowMs-h.lastStoreMs < historyMinIntervalMs {
		return
	}
	h.slots[h.next] = historyEntry{valid: true, tMs: nowMs, state: s}
	h.next = (h.next + 1) % historySlots
	h.lastStoreMs = nowMs
}

// Recall returns the snapshot whose timestamp is closest to targetMs,
// provided that distance is under historyMaxAgeMs; otherwise it returns
// live, the current state (spec.md section 4.3).
func (h *History) Recall(targetMs int64, live State) State {
	best := -1
	var bestDiff int64 = 1 << 62
	for i := range h.slots {
		if !h.slots[i].valid {
			continue
		}
		diff := targetMs - h.slots[i].tMs
		if diff < 0 {
			diff = -diff
		}
		if diff < bestDiff {
			bestDiff = diff
			best = i
		}
	}
	if best >= 0 && bestDiff < historyMaxAgeMs {
		return h.slots[best].state
	}
	return live
}

// Reset zeroes the buffer and stores current at slot 0 (spec.md section
// 4.3), used by the supervisor on IMU stall and measurement timeout.
func (h *History) Reset(current State, nowMs int64) {
	for i := range h.slots {
		h.slots[i] = historyEntry{}
	}
	h.slots[0] = historyEntry{valid: true, tMs: nowMs, state: current}
	h.next = 1
	h.lastStoreMs = nowMs
}
