// Copyright (c) 2026 Daniel Alarcon Rubio / Relabs Tech
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

package ekf

import "testing"

type fixedGPSSource struct {
	obs GPSObservation
	ok  bool
}

func (g fixedGPSSource) ReadGPS() (GPSObservation, bool) { return g.obs, g.ok }

type fixedBaroSource struct {
	obs BaroObservation
	ok  bool
}

func (b fixedBaroSource) ReadBaro() (BaroObservation, bool) { return b.obs, b.ok }

func newIngestTestEstimator(gps GPSSource, baro BaroSource) *Estimator {
	return NewEstimator(
		DefaultParams(VehicleCopter),
		constIMUSource{sample: ImuSample{DtSec: 0.0025}},
		gps, baro, noMagSource{}, noAirspeedSource{},
		&stepClock{stepMs: 2},
		levelAttitude{},
	)
}

// ingestGPS requires both a source-reported fix and a 3D fix quality.
func TestIngestGPSRejectsNon3DFix(t *testing.T) {
	e := newIngestTestEstimator(fixedGPSSource{obs: GPSObservation{TimestampMs: 1, FixQuality3D: false}, ok: true}, fixedBaroSource{})
	if _, _, ok := e.ingestGPS(); ok {
		t.Fatalf("ingestGPS accepted a non-3D fix")
	}
}

// A timestamp that has not advanced past the last ingested fix must be
// rejected, so the same fix is never fused twice.
func TestIngestGPSRejectsStaleTimestamp(t *testing.T) {
	e := newIngestTestEstimator(fixedGPSSource{obs: GPSObservation{TimestampMs: 5, FixQuality3D: true}, ok: true}, fixedBaroSource{})
	if _, _, ok := e.ingestGPS(); !ok {
		t.Fatalf("ingestGPS rejected the first fresh fix")
	}
	if _, _, ok := e.ingestGPS(); ok {
		t.Fatalf("ingestGPS accepted a fix whose timestamp did not advance past lastGPSMs")
	}
}

func TestIngestGPSAdvancesLastGPSMs(t *testing.T) {
	e := newIngestTestEstimator(fixedGPSSource{obs: GPSObservation{TimestampMs: 42, FixQuality3D: true}, ok: true}, fixedBaroSource{})
	e.ingestGPS()
	if e.lastGPSMs != 42 {
		t.Fatalf("lastGPSMs = %v, want 42 after ingesting that fix", e.lastGPSMs)
	}
}

func TestIngestBaroRejectsStaleTimestamp(t *testing.T) {
	e := newIngestTestEstimator(fixedGPSSource{}, fixedBaroSource{obs: BaroObservation{TimestampMs: 3}, ok: true})
	if _, _, ok := e.ingestBaro(); !ok {
		t.Fatalf("ingestBaro rejected the first fresh sample")
	}
	if _, _, ok := e.ingestBaro(); ok {
		t.Fatalf("ingestBaro accepted a sample whose timestamp did not advance past lastBaroMs")
	}
}

// resetVelPosHgtFromFreshData pulls GPS/baro directly, bypassing the
// ingest "already consumed" bookkeeping entirely.
func TestResetVelPosHgtFromFreshDataBypassesIngestBookkeeping(t *testing.T) {
	e := newIngestTestEstimator(
		fixedGPSSource{obs: GPSObservation{TimestampMs: 1, VelNED: [3]float64{3, 4, 0}, PosNED: [2]float64{100, 200}, FixQuality3D: true}, ok: true},
		fixedBaroSource{obs: BaroObservation{TimestampMs: 1, AltitudeM: 30}, ok: true},
	)
	e.nowMs = 7
	e.resetVelPosHgtFromFreshData()

	if e.state.Vel()[0] != 3 || e.state.Vel()[1] != 4 {
		t.Fatalf("velocity after reset = %v, want (3,4)", e.state.Vel())
	}
	if e.state.Pos()[0] != 100 || e.state.Pos()[1] != 200 {
		t.Fatalf("position after reset = %v, want (100,200)", e.state.Pos())
	}
	if e.state.Pos()[2] != -30 {
		t.Fatalf("height after reset = %v, want -30", e.state.Pos()[2])
	}
	if e.lastGoodVelMs != 7 || e.lastGoodPosMs != 7 || e.lastGoodHgtMs != 7 {
		t.Fatalf("lastGood* timestamps not all stamped at nowMs=7: vel=%v pos=%v hgt=%v", e.lastGoodVelMs, e.lastGoodPosMs, e.lastGoodHgtMs)
	}
	if e.cov != NewCovariance() {
		t.Fatalf("covariance after reset should equal the nominal initial covariance")
	}
}

// When neither GPS nor baro has a fix available, the reset must still
// return the covariance to its nominal initial value without touching
// velocity/position/height.
func TestResetVelPosHgtFromFreshDataNoSourcesOnlyResetsCovariance(t *testing.T) {
	e := newIngestTestEstimator(fixedGPSSource{ok: false}, fixedBaroSource{ok: false})
	e.state.Vel()[0] = 9
	e.cov[IdxVN][IdxVN] = 123

	e.resetVelPosHgtFromFreshData()

	if e.state.Vel()[0] != 9 {
		t.Fatalf("velocity should be untouched when no GPS fix is available, got %v", e.state.Vel()[0])
	}
	if e.cov != NewCovariance() {
		t.Fatalf("covariance should still be reset to nominal even with no fresh GPS/baro")
	}
}
