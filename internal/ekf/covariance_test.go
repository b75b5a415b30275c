// Copyright (c) 2026 Daniel Alarcon Rubio / Relabs Tech
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

package ekf

import (
	"math"
	"testing"
)

func TestNewCovarianceIsDiagonal(t *testing.T) {
	p := NewCovariance()
	for i := 0; i < NumStates; i++ {
		for j := 0; j < NumStates; j++ {
			if i == j {
				continue
			}
			if p[i][j] != 0 {
				t.Fatalf("NewCovariance()[%d][%d] = %v, want 0 (off-diagonal)", i, j, p[i][j])
			}
		}
	}
	if p[IdxQ0][IdxQ0] <= 0 || p[IdxPD][IdxPD] <= 0 {
		t.Fatalf("NewCovariance diagonal entries must be positive")
	}
}

func TestConingTrigger(t *testing.T) {
	if coningTrigger([3]float64{0.001, 0.001, 0.001}, 0.01, 0.01) {
		t.Fatalf("coningTrigger fired with small angle and short accumulated dt")
	}
	if !coningTrigger([3]float64{0.06, 0, 0}, 0.01, 0.01) {
		t.Fatalf("coningTrigger did not fire when accumulated delta-angle exceeds 0.05 rad")
	}
	if !coningTrigger([3]float64{0, 0, 0}, 0.06, 0.02) {
		t.Fatalf("coningTrigger did not fire when sumDt+nextDt exceeds 0.07s")
	}
}

// Property 2 and 3 (spec.md section 8): P stays symmetric and every
// diagonal entry stays within its per-group clamp after Predict.
func TestPredictStaysSymmetricAndClamped(t *testing.T) {
	p := NewCovariance()
	params := DefaultParams(VehicleCopter)
	q := []float64{1, 0, 0, 0}

	for step := 0; step < 50; step++ {
		p = p.Predict(&params, q, [3]float64{0.001, -0.002, 0.0005}, [3]float64{0.01, 0, -0.02}, 0.5, 0.0025, false, false, false, 0)
	}

	for i := 0; i < NumStates; i++ {
		for j := 0; j < NumStates; j++ {
			if math.Abs(p[i][j]-p[j][i]) > 1e-9 {
				t.Fatalf("P[%d][%d]=%v and P[%d][%d]=%v differ by more than 1e-9", i, j, p[i][j], j, i, p[j][i])
			}
		}
	}

	for i := 0; i < NumStates; i++ {
		lo, hi := diagClamp(i, 0.0025)
		if p[i][i] < lo-1e-9 || p[i][i] > hi+1e-9 {
			t.Fatalf("P[%d][%d]=%v outside its clamp [%v,%v]", i, i, p[i][i], lo, hi)
		}
	}
}

func TestPredictFreezesHorizontalPositionVarianceAboveThreshold(t *testing.T) {
	p := NewCovariance()
	p[IdxPN][IdxPN] = 6e5
	p[IdxPE][IdxPE] = 6e5
	before := p

	params := DefaultParams(VehicleCopter)
	q := []float64{1, 0, 0, 0}
	got := p.Predict(&params, q, [3]float64{}, [3]float64{}, 0.5, 0.0025, false, true, true, 0)

	if got[IdxPN][IdxPN] != before[IdxPN][IdxPN] || got[IdxPE][IdxPE] != before[IdxPE][IdxPE] {
		t.Fatalf("horizontal position variance changed despite exceeding the 1e6 freeze threshold: got PN=%v PE=%v, want frozen at %v/%v",
			got[IdxPN][IdxPN], got[IdxPE][IdxPE], before[IdxPN][IdxPN], before[IdxPE][IdxPE])
	}
}

func TestProcessNoiseDoublesGyroBiasOnGround(t *testing.T) {
	params := DefaultParams(VehicleCopter)
	air := processNoise(&params, 0.01, false, 0, true, true)
	ground := processNoise(&params, 0.01, true, 0, true, true)
	if ground[IdxGBX] != 2*air[IdxGBX] {
		t.Fatalf("on-ground gyro-bias process noise = %v, want exactly 2x the in-air value %v", ground[IdxGBX], air[IdxGBX])
	}
}

func TestProcessNoiseInhibitsWindAndMag(t *testing.T) {
	params := DefaultParams(VehicleCopter)
	q := processNoise(&params, 0.01, false, 0, true, true)
	if q[IdxWN] != 0 || q[IdxMN] != 0 || q[IdxMBX] != 0 {
		t.Fatalf("inhibited wind/mag process noise = %v/%v/%v, want all 0", q[IdxWN], q[IdxMN], q[IdxMBX])
	}
	q = processNoise(&params, 0.01, false, 0, false, false)
	if q[IdxWN] == 0 || q[IdxMN] == 0 {
		t.Fatalf("uninhibited wind/mag process noise should be nonzero")
	}
}
