// Copyright (c) 2026 Daniel Alarcon Rubio / Relabs Tech
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

package ekf

import (
	"math"
	"testing"
)

func TestFaultsBitmapOrder(t *testing.T) {
	cases := []struct {
		faults Faults
		want   uint8
	}{
		{Faults{}, 0},
		{Faults{Diverged: true}, 1 << 0},
		{Faults{LargeCovariance: true}, 1 << 1},
		{Faults{BadMagX: true}, 1 << 2},
		{Faults{BadMagY: true}, 1 << 3},
		{Faults{BadMagZ: true}, 1 << 4},
		{Faults{BadAirspeed: true}, 1 << 5},
		{Faults{BadSideslip: true}, 1 << 6},
		{Faults{Diverged: true, BadSideslip: true}, 1<<0 | 1<<6},
	}
	for _, c := range cases {
		if got := c.faults.Bitmap(); got != c.want {
			t.Fatalf("%+v.Bitmap() = %#x, want %#x", c.faults, got, c.want)
		}
	}
	// Supplemented fault bits are tracked on the struct but intentionally
	// excluded from the 7-bit wire bitmap (spec.md section 4.7 lists
	// exactly seven bits; DeadReckoning/VibrationHigh ride on Output's own
	// fields instead).
	if got := (Faults{DeadReckoning: true, VibrationHigh: true}).Bitmap(); got != 0 {
		t.Fatalf("supplemented fault bits leaked into Bitmap(): got %#x, want 0", got)
	}
}

func newTestEstimator() *Estimator {
	return NewEstimator(
		DefaultParams(VehicleCopter),
		constIMUSource{sample: ImuSample{DtSec: 0.0025}},
		noGPSSource{}, noBaroSource{}, noMagSource{}, noAirspeedSource{},
		&stepClock{stepMs: 2},
		levelAttitude{},
	)
}

func TestGroundAirScoreThresholds(t *testing.T) {
	e := newTestEstimator()

	if got := e.groundAirScore(); got != 0 {
		t.Fatalf("groundAirScore at rest = %v, want 0", got)
	}

	e.state.Vel()[1] = 10 // v^2 = 100 > 81
	if got := e.groundAirScore(); got != 3 {
		t.Fatalf("groundAirScore at 10 m/s = %v, want 3", got)
	}

	e.state.Vel()[1] = 0
	e.state.Pos()[2] = -20 // altitude 20m > 15m threshold
	if got := e.groundAirScore(); got != 1 {
		t.Fatalf("groundAirScore at 20m altitude = %v, want 1", got)
	}
}

func TestUpdateGroundAirModeHysteresis(t *testing.T) {
	e := newTestEstimator()
	e.onGround = true

	// Score of 2 (v^2=36..81 bucket) is not enough to leave ground
	// (requires 3), but is enough to stay airborne once already there.
	e.state.Vel()[1] = 7 // v^2 = 49, bucket score 2
	e.updateGroundAirMode()
	if e.inAir {
		t.Fatalf("score of 2 should not transition from on-ground to in-air (needs 3)")
	}

	e.inAir = true
	e.updateGroundAirMode()
	if !e.inAir {
		t.Fatalf("score of 2 should hold the in-air state once already airborne (needs only 2)")
	}
}

func TestOnExitGroundBootstrapsWindWhenAirspeedUnavailable(t *testing.T) {
	e := newTestEstimator()
	e.airspeedAvailable = false
	e.state.Vel()[0] = 5
	e.state.Vel()[1] = 0

	e.onExitGround()

	wind := e.state.Wind()
	if wind[0] >= 0 {
		t.Fatalf("wind bootstrap should oppose the ground velocity direction, got wind[0]=%v", wind[0])
	}
	if e.cov[IdxWN][IdxWN] != 64 || e.cov[IdxWE][IdxWE] != 64 {
		t.Fatalf("wind covariance after bootstrap = %v/%v, want 64/64", e.cov[IdxWN][IdxWN], e.cov[IdxWE][IdxWE])
	}
}

func TestAlignYawToPreservesRollPitch(t *testing.T) {
	e := newTestEstimator()
	q := eulerToQuat321(0.2, -0.1, 0.5)
	copy(e.state.Quat(), q[:])

	e.alignYawTo(1.0)

	roll, pitch, yaw := eulerFromQuat(e.state.Quat())
	if math.Abs(roll-0.2) > 1e-9 || math.Abs(pitch-(-0.1)) > 1e-9 {
		t.Fatalf("alignYawTo changed roll/pitch: got (%v,%v), want (0.2,-0.1)", roll, pitch)
	}
	if math.Abs(yaw-1.0) > 1e-9 {
		t.Fatalf("alignYawTo yaw = %v, want 1.0", yaw)
	}
}

func TestCheckDeadReckoningRequiresBothVelPosAndHeightStale(t *testing.T) {
	e := newTestEstimator()
	e.nowMs = 100000 // 100s
	e.lastGoodVelMs = 0
	e.lastGoodHgtMs = e.nowMs // height still fresh

	e.checkDeadReckoning()
	if e.faults.DeadReckoning {
		t.Fatalf("dead-reckoning should require both vel/pos and height to be stale")
	}

	e.lastGoodHgtMs = 0
	e.checkDeadReckoning()
	if !e.faults.DeadReckoning {
		t.Fatalf("dead-reckoning should latch once both vel/pos and height exceed the timeout")
	}
}

func TestResetVelPosCovarianceNominal(t *testing.T) {
	e := newTestEstimator()
	for i := 0; i < NumStates; i++ {
		for j := 0; j < NumStates; j++ {
			e.cov[i][j] = 7
		}
	}
	e.resetVelPosCovarianceNominal()

	if e.cov[IdxQ0][IdxQ0] != 0.01 {
		t.Fatalf("quaternion variance after reset = %v, want 0.01", e.cov[IdxQ0][IdxQ0])
	}
	if e.cov[IdxVN][IdxVN] != 400 {
		t.Fatalf("velocity variance after reset = %v, want 400", e.cov[IdxVN][IdxVN])
	}
	if e.cov[IdxPD][IdxPD] != 25 {
		t.Fatalf("vertical position variance after reset = %v, want 25", e.cov[IdxPD][IdxPD])
	}
	// Off-diagonal coupling into the reset blocks must be cleared too.
	if e.cov[IdxQ0][IdxMN] != 0 || e.cov[IdxMN][IdxQ0] != 0 {
		t.Fatalf("off-diagonal coupling into the reset quaternion block was not cleared")
	}
}
