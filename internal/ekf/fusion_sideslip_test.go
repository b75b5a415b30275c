// Copyright (c) 2026 Daniel Alarcon Rubio / Relabs Tech
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

package ekf

import "testing"

func newSideslipTestEstimator(vehicle VehicleClass) *Estimator {
	return NewEstimator(
		DefaultParams(vehicle),
		constIMUSource{sample: ImuSample{DtSec: 0.0025}},
		noGPSSource{}, noBaroSource{}, noMagSource{}, noAirspeedSource{},
		&stepClock{stepMs: 2},
		levelAttitude{},
	)
}

func TestFlyForwardOnlyPlane(t *testing.T) {
	if DefaultParams(VehiclePlane).FlyForward() != true {
		t.Fatalf("plane should be FlyForward")
	}
	if DefaultParams(VehicleCopter).FlyForward() {
		t.Fatalf("copter should not be FlyForward")
	}
	if DefaultParams(VehicleRover).FlyForward() {
		t.Fatalf("rover should not be FlyForward")
	}
}

// fuseSideslipCycle is a structural assumption only exercised for plane.
func TestFuseSideslipCycleSkippedForNonPlane(t *testing.T) {
	e := newSideslipTestEstimator(VehicleCopter)
	e.state.Vel()[0] = 20
	before := e.cov
	e.fuseSideslipCycle()
	if e.cov != before {
		t.Fatalf("fuseSideslipCycle should be a no-op for a non-plane vehicle class")
	}
}

// Below 5 m/s forward body velocity the ratio is numerically unstable and
// must be skipped.
func TestFuseSideslipCycleSkipsBelowForwardSpeedFloor(t *testing.T) {
	e := newSideslipTestEstimator(VehiclePlane)
	e.state.Vel()[0] = 3
	before := e.cov
	e.fuseSideslipCycle()
	if e.cov != before {
		t.Fatalf("fuseSideslipCycle should skip fusion below the 5 m/s forward-speed floor")
	}
}

// Zero lateral velocity at forward flight speed is a perfectly consistent
// zero-sideslip observation and should reduce velocity-north variance.
func TestFuseSideslipCycleFusesCleanZeroSideslip(t *testing.T) {
	e := newSideslipTestEstimator(VehiclePlane)
	e.state.Vel()[0] = 20
	// With level attitude and purely forward flight, the zero-sideslip
	// Jacobian only touches velocity-east (see fuseSideslipCycle's dydv):
	// dcm is identity, so d(vBody.y/vBody.x)/d(vel.north) is zero.
	beforeVarVE := e.cov[IdxVE][IdxVE]

	e.fuseSideslipCycle()

	if e.cov[IdxVE][IdxVE] >= beforeVarVE {
		t.Fatalf("fuseSideslipCycle with zero sideslip did not reduce VE variance: before=%v after=%v", beforeVarVE, e.cov[IdxVE][IdxVE])
	}
	if e.faults.BadSideslip {
		t.Fatalf("a clean zero-sideslip observation should not set BadSideslip")
	}
}

// A large lateral velocity relative to forward speed exceeds the 0.5 rad
// innovation-rejection threshold and must set BadSideslip without fusing.
func TestFuseSideslipCycleRejectsLargeInnovation(t *testing.T) {
	e := newSideslipTestEstimator(VehiclePlane)
	e.state.Vel()[0] = 20
	e.state.Vel()[1] = 15 // atan2-scale sideslip well beyond 0.5 rad
	before := e.cov

	e.fuseSideslipCycle()

	if !e.faults.BadSideslip {
		t.Fatalf("a grossly inconsistent sideslip reading should set BadSideslip")
	}
	if e.cov != before {
		t.Fatalf("a rejected sideslip innovation should not mutate covariance")
	}
}
