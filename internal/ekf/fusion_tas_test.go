// Copyright (c) 2026 Daniel Alarcon Rubio / Relabs Tech
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

package ekf

import "testing"

type onceAirspeedSource struct {
	obs  AirspeedObservation
	used bool
}

func (a *onceAirspeedSource) ReadAirspeed() (AirspeedObservation, bool) {
	if a.used {
		return AirspeedObservation{}, false
	}
	a.used = true
	return a.obs, true
}

func newTASTestEstimator(air AirspeedSource) *Estimator {
	e := NewEstimator(
		DefaultParams(VehiclePlane),
		constIMUSource{sample: ImuSample{DtSec: 0.0025}},
		noGPSSource{}, noBaroSource{}, noMagSource{}, air,
		&stepClock{stepMs: 2},
		levelAttitude{},
	)
	return e
}

// Below 1 m/s predicted airspeed the pseudo-measurement is skipped
// entirely, since the heading-to-wind Jacobian is ill-defined near zero.
func TestFuseAirspeedCycleSkipsBelowOneMSPredicted(t *testing.T) {
	e := newTASTestEstimator(&onceAirspeedSource{obs: AirspeedObservation{TimestampMs: 1, TrueAirspeed: 0.5}})
	before := e.cov
	e.nowMs = 1
	e.fuseAirspeedCycle()
	if e.cov != before {
		t.Fatalf("fuseAirspeedCycle should not fuse when predicted airspeed is below 1 m/s")
	}
	if !e.airspeedAvailable {
		t.Fatalf("airspeedAvailable should be set true once a fresh airspeed sample is ingested, regardless of the 1 m/s skip")
	}
}

// A consistent airspeed reading at forward flight speed reduces variance
// and records the observed TAS.
func TestFuseAirspeedCycleFusesAboveThreshold(t *testing.T) {
	e := newTASTestEstimator(&onceAirspeedSource{obs: AirspeedObservation{TimestampMs: 1, TrueAirspeed: 20}})
	e.state.Vel()[0] = 20
	beforeVarVN := e.cov[IdxVN][IdxVN]
	e.nowMs = 1
	e.fuseAirspeedCycle()

	if e.lastObservedTAS != 20 {
		t.Fatalf("lastObservedTAS = %v, want 20", e.lastObservedTAS)
	}
	if e.cov[IdxVN][IdxVN] >= beforeVarVN {
		t.Fatalf("fuseAirspeedCycle with a consistent reading did not reduce VN variance: before=%v after=%v", beforeVarVN, e.cov[IdxVN][IdxVN])
	}
}

// The Z-accel-bias state is always inhibited for this fusion path.
func TestFuseAirspeedCycleNeverTouchesAccelZBias(t *testing.T) {
	e := newTASTestEstimator(&onceAirspeedSource{obs: AirspeedObservation{TimestampMs: 1, TrueAirspeed: 20}})
	e.state.Vel()[0] = 20
	e.cov[IdxABZ][IdxVN] = 0.3
	e.cov[IdxVN][IdxABZ] = 0.3
	beforeABZ := e.state.AccelZBias()

	e.nowMs = 1
	e.fuseAirspeedCycle()

	if e.state.AccelZBias() != beforeABZ {
		t.Fatalf("fuseAirspeedCycle moved AccelZBias despite it being inhibited: before=%v after=%v", beforeABZ, e.state.AccelZBias())
	}
}

func TestFuseAirspeedCycleNoFreshReadingIsANoOp(t *testing.T) {
	e := newTASTestEstimator(noAirspeedSource{})
	before := e.cov
	e.fuseAirspeedCycle()
	if e.cov != before {
		t.Fatalf("fuseAirspeedCycle with no fresh sample mutated covariance")
	}
	if e.airspeedAvailable {
		t.Fatalf("airspeedAvailable should stay false with no airspeed samples ever read")
	}
}
