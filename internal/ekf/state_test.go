// Copyright (c) 2026 Daniel Alarcon Rubio / Relabs Tech
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

package ekf

import "testing"

func TestNewStateIdentity(t *testing.T) {
	s := NewState()
	q := s.Quat()
	if q[0] != 1 || q[1] != 0 || q[2] != 0 || q[3] != 0 {
		t.Fatalf("NewState quaternion = %v, want identity", q)
	}
	for i := 4; i < NumStates; i++ {
		if s.X[i] != 0 {
			t.Fatalf("NewState X[%d] = %v, want 0", i, s.X[i])
		}
	}
}

// Every named accessor must be a view into State.X, never a copy, per
// DESIGN.md Open Question 3.
func TestStateAccessorsAliasBackingArray(t *testing.T) {
	s := NewState()

	s.Quat()[1] = 0.5
	if s.X[IdxQ1] != 0.5 {
		t.Fatalf("Quat() write did not alias X[IdxQ1]")
	}

	s.Vel()[2] = -3
	if s.X[IdxVD] != -3 {
		t.Fatalf("Vel() write did not alias X[IdxVD]")
	}

	s.Pos()[0] = 10
	if s.X[IdxPN] != 10 {
		t.Fatalf("Pos() write did not alias X[IdxPN]")
	}

	s.GyroBias()[1] = 0.01
	if s.X[IdxGBY] != 0.01 {
		t.Fatalf("GyroBias() write did not alias X[IdxGBY]")
	}

	s.Wind()[0] = 2
	if s.X[IdxWN] != 2 {
		t.Fatalf("Wind() write did not alias X[IdxWN]")
	}

	s.EarthField()[2] = 0.4
	if s.X[IdxMD] != 0.4 {
		t.Fatalf("EarthField() write did not alias X[IdxMD]")
	}

	s.BodyField()[0] = 0.1
	if s.X[IdxMBX] != 0.1 {
		t.Fatalf("BodyField() write did not alias X[IdxMBX]")
	}

	s.SetAccelZBias(0.2)
	if s.X[IdxABZ] != 0.2 || s.AccelZBias() != 0.2 {
		t.Fatalf("SetAccelZBias/AccelZBias disagree with X[IdxABZ]")
	}
}

func TestStateCloneIsIndependent(t *testing.T) {
	s := NewState()
	s.Vel()[0] = 5
	c := s.Clone()
	c.Vel()[0] = 99
	if s.Vel()[0] != 5 {
		t.Fatalf("mutating a clone affected the original: got %v", s.Vel()[0])
	}
}
