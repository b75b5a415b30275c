// Copyright (c) 2026 Daniel Alarcon Rubio / Relabs Tech
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

package ekf

import (
	"math"
	"testing"
)

func TestQuatNormalize(t *testing.T) {
	q := []float64{2, 0, 0, 0}
	quatNormalize(q)
	if math.Abs(quatNorm(q)-1) > 1e-12 {
		t.Fatalf("quatNormalize left norm %v, want 1", quatNorm(q))
	}

	// Degenerate (near-zero) quaternion resets to identity.
	z := []float64{1e-15, 0, 0, 0}
	quatNormalize(z)
	if z[0] != 1 || z[1] != 0 || z[2] != 0 || z[3] != 0 {
		t.Fatalf("quatNormalize of near-zero quaternion = %v, want identity", z)
	}
}

func TestQuatMultiplyIdentity(t *testing.T) {
	id := [4]float64{1, 0, 0, 0}
	a := [4]float64{0.7071, 0.7071, 0, 0}
	got := quatMultiply(id, a)
	for i := range got {
		if math.Abs(got[i]-a[i]) > 1e-9 {
			t.Fatalf("identity*a = %v, want %v", got, a)
		}
	}
}

func TestDeltaQuatFromRotVecSmallAngle(t *testing.T) {
	dq := deltaQuatFromRotVec([3]float64{0, 0, 0})
	if dq != [4]float64{1, 0, 0, 0} {
		t.Fatalf("zero rotation vector = %v, want identity", dq)
	}

	theta := 0.1
	dq = deltaQuatFromRotVec([3]float64{0, 0, theta})
	wantW := math.Cos(theta / 2)
	wantZ := math.Sin(theta / 2)
	if math.Abs(dq[0]-wantW) > 1e-9 || math.Abs(dq[3]-wantZ) > 1e-9 {
		t.Fatalf("deltaQuatFromRotVec(z=%v) = %v, want w=%v z=%v", theta, dq, wantW, wantZ)
	}
}

func TestDcmFromQuatIdentity(t *testing.T) {
	m := dcmFromQuat([]float64{1, 0, 0, 0})
	want := [3][3]float64{{1, 0, 0}, {0, 1, 0}, {0, 0, 1}}
	if m != want {
		t.Fatalf("dcmFromQuat(identity) = %v, want %v", m, want)
	}
}

func TestEulerQuatRoundTrip(t *testing.T) {
	cases := []struct{ roll, pitch, yaw float64 }{
		{0, 0, 0},
		{0.1, -0.2, 0.3},
		{0.5, 0.4, -1.2},
		{-0.3, 0.6, 2.9},
	}
	for _, c := range cases {
		q := eulerToQuat321(c.roll, c.pitch, c.yaw)
		roll, pitch, yaw := eulerFromQuat(q[:])
		if math.Abs(roll-c.roll) > 1e-9 || math.Abs(pitch-c.pitch) > 1e-9 || math.Abs(yaw-c.yaw) > 1e-9 {
			t.Fatalf("round-trip(%v) = (%v,%v,%v), want (%v,%v,%v)",
				c, roll, pitch, yaw, c.roll, c.pitch, c.yaw)
		}
	}
}

func TestEulerSequenceNearGimbalLock(t *testing.T) {
	if eulerSequenceFor(0, 86*math.Pi/180) != 312 {
		t.Fatalf("pitch near +90deg should select the 312 sequence")
	}
	if eulerSequenceFor(0, 0) != 321 {
		t.Fatalf("level attitude should select the 321 sequence")
	}
}

func TestConingCorrectionZeroWhenNoPriorRotation(t *testing.T) {
	dTheta := [3]float64{0.01, 0.02, 0.03}
	got := coningCorrection(dTheta, [3]float64{})
	if got != dTheta {
		t.Fatalf("coningCorrection with zero prior = %v, want %v unchanged", got, dTheta)
	}
}

func TestMatVec3Transpose(t *testing.T) {
	// For a pure rotation (orthonormal) DCM, matVec3T(m, matVec3(m, v)) == v.
	q := eulerToQuat321(0.3, -0.2, 1.1)
	m := dcmFromQuat(q[:])
	v := [3]float64{1, 2, 3}
	rotated := matVec3(m, v)
	back := matVec3T(m, rotated)
	for i := 0; i < 3; i++ {
		if math.Abs(back[i]-v[i]) > 1e-9 {
			t.Fatalf("matVec3T(m, matVec3(m, v)) = %v, want %v", back, v)
		}
	}
}
