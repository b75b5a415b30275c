// Copyright (c) 2026 Daniel Alarcon Rubio / Relabs Tech
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

package ekf

import "testing"

type alwaysMagSource struct {
	obs MagObservation
	ms  int64
}

func (m *alwaysMagSource) ReadMag() (MagObservation, bool) {
	m.ms++
	obs := m.obs
	obs.TimestampMs = m.ms
	return obs, true
}

func newMagTestEstimator(mag MagSource) *Estimator {
	return NewEstimator(
		DefaultParams(VehicleCopter),
		constIMUSource{sample: ImuSample{DtSec: 0.0025}},
		noGPSSource{}, noBaroSource{}, mag, noAirspeedSource{},
		&stepClock{stepMs: 2},
		levelAttitude{},
	)
}

// fuseMagCycle fuses one axis per call, cycling X, Y, Z across cycles.
func TestFuseMagCycleRotatesAxisEachCall(t *testing.T) {
	e := newMagTestEstimator(&alwaysMagSource{obs: MagObservation{FieldGauss: [3]float64{0.2, 0, 0.45}}})
	e.nowMs = 1
	e.state.EarthField()[0] = 0.2
	e.state.EarthField()[2] = 0.45

	if e.magAxisCycle != 0 {
		t.Fatalf("magAxisCycle should start at 0, got %v", e.magAxisCycle)
	}
	e.fuseMagCycle()
	if e.magAxisCycle != 1 {
		t.Fatalf("magAxisCycle after one fuseMagCycle = %v, want 1", e.magAxisCycle)
	}
	e.fuseMagCycle()
	if e.magAxisCycle != 2 {
		t.Fatalf("magAxisCycle after two fuseMagCycle calls = %v, want 2", e.magAxisCycle)
	}
	e.fuseMagCycle()
	if e.magAxisCycle != 0 {
		t.Fatalf("magAxisCycle should wrap back to 0 after three calls, got %v", e.magAxisCycle)
	}
}

// All three axes fusing cleanly over three cycles must report magHealthy.
func TestFuseMagCycleReportsHealthyAfterAllAxesFuse(t *testing.T) {
	e := newMagTestEstimator(&alwaysMagSource{obs: MagObservation{FieldGauss: [3]float64{0.2, 0, 0.45}}})
	e.state.EarthField()[0] = 0.2
	e.state.EarthField()[2] = 0.45

	for i := 0; i < 3; i++ {
		e.nowMs = int64(i + 1)
		e.fuseMagCycle()
	}
	if !e.magHealthy {
		t.Fatalf("magHealthy should be true once all three axes have fused within gate, faults=%+v", e.faults)
	}
}

// No fresh reading this cycle must not disturb an already-healthy status,
// and must not panic the timeout check with magUnhealthySinceMs still zero.
func TestFuseMagCycleNoFreshReadingIsANoOp(t *testing.T) {
	e := newMagTestEstimator(noMagSource{})
	before := e.state
	e.fuseMagCycle()
	if e.state != before {
		t.Fatalf("fuseMagCycle with no fresh reading mutated state")
	}
	if e.magHealthy {
		t.Fatalf("magHealthy should remain false with no readings ever fused")
	}
}

// Fixed-wing vehicles latch magFailed permanently on a sustained compass
// timeout; fuseMagCycle must then refuse to fuse at all.
func TestFuseMagCyclePlaneSkipsFusionOnceMagFailed(t *testing.T) {
	src := &alwaysMagSource{obs: MagObservation{FieldGauss: [3]float64{0.2, 0, 0.45}}}
	e := NewEstimator(
		DefaultParams(VehiclePlane),
		constIMUSource{sample: ImuSample{DtSec: 0.0025}},
		noGPSSource{}, noBaroSource{}, src, noAirspeedSource{},
		&stepClock{stepMs: 2},
		levelAttitude{},
	)
	e.state.EarthField()[0] = 0.2
	e.state.EarthField()[2] = 0.45
	e.magFailed = true
	before := e.cov

	e.nowMs = 1
	e.fuseMagCycle()

	if e.cov != before {
		t.Fatalf("fuseMagCycle should not fuse at all for a plane once magFailed is latched")
	}
}

// checkMagTimeout only latches magFailed for fixed-wing vehicles, and only
// once the unhealthy duration exceeds the 10s timeout.
func TestCheckMagTimeoutLatchesOnlyForPlaneAfterTimeout(t *testing.T) {
	copter := newMagTestEstimator(noMagSource{})
	copter.magUnhealthySinceMs = 0
	copter.nowMs = 20000
	copter.magUnhealthySinceMs = 1
	copter.checkMagTimeout()
	if copter.magFailed {
		t.Fatalf("copter should never latch magFailed from a compass timeout")
	}

	plane := NewEstimator(
		DefaultParams(VehiclePlane),
		constIMUSource{sample: ImuSample{DtSec: 0.0025}},
		noGPSSource{}, noBaroSource{}, noMagSource{}, noAirspeedSource{},
		&stepClock{stepMs: 2},
		levelAttitude{},
	)
	plane.magUnhealthySinceMs = 1
	plane.nowMs = 1
	plane.checkMagTimeout()
	if plane.magFailed {
		t.Fatalf("magFailed should not latch before the 10s timeout elapses")
	}
	plane.nowMs = 1 + 10001
	plane.checkMagTimeout()
	if !plane.magFailed {
		t.Fatalf("magFailed should latch once unhealthy duration exceeds 10s for a plane")
	}
}
