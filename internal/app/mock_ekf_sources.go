// Copyright (c) 2026 Daniel Alarcon Rubio / Relabs Tech
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

package app

import (
	"time"

	"github.com/relabs-tech/navkf/internal/ekf"
)

// mockEKFIMUSource generates a stationary, level IMU stream (gravity on Z,
// no rotation) so the mock console can exercise the estimator's full
// ingest/strapdown/covariance/fusion cycle without hardware.
type mockEKFIMUSource struct {
	lastTick time.Time
}

func (m *mockEKFIMUSource) ReadIMU() (ekf.ImuSample, bool) {
	now := time.Now()
	var dt float64
	if m.lastTick.IsZero() {
		dt = 0
	} else {
		dt = now.Sub(m.lastTick).Seconds()
	}
	m.lastTick = now

	dv := [3]float64{0, 0, -gravityMSS * dt}
	return ekf.ImuSample{
		TimestampUs:  now.UnixMicro(),
		DeltaAngle:   [3]float64{},
		DeltaVelIMU1: dv,
		DeltaVelIMU2: dv,
		DtSec:        dt,
	}, true
}

// mockEKFGPSSource publishes one fixed-position, zero-velocity GPS fix per
// call (a stationary 8-satellite 3D fix), then returns ok=false until 200 ms
// have elapsed.
type mockEKFGPSSource struct {
	lastMs int64
}

func (m *mockEKFGPSSource) ReadGPS() (ekf.GPSObservation, bool) {
	now := time.Now().UnixMilli()
	if now-m.lastMs < 200 {
		return ekf.GPSObservation{}, false
	}
	m.lastMs = now
	return ekf.GPSObservation{
		TimestampMs:   now,
		VelNED:        [3]float64{},
		PosNED:        [2]float64{},
		FixQuality3D:  true,
		NumSatellites: 8,
	}, true
}

// mockEKFBaroSource publishes a constant zero altitude.
type mockEKFBaroSource struct {
	lastMs int64
}

func (m *mockEKFBaroSource) ReadBaro() (ekf.BaroObservation, bool) {
	now := time.Now().UnixMilli()
	if now-m.lastMs < 100 {
		return ekf.BaroObservation{}, false
	}
	m.lastMs = now
	return ekf.BaroObservation{TimestampMs: now}, true
}

// mockEKFMagSource publishes a constant north-pointing earth field.
type mockEKFMagSource struct {
	lastMs int64
}

func (m *mockEKFMagSource) ReadMag() (ekf.MagObservation, bool) {
	now := time.Now().UnixMilli()
	if now-m.lastMs < 100 {
		return ekf.MagObservation{}, false
	}
	m.lastMs = now
	return ekf.MagObservation{
		TimestampMs: now,
		FieldGauss:  [3]float64{0.2, 0, 0.45},
	}, true
}

// mockEKFAirspeedSource never reports a fresh sample: the mock console
// exercises a multirotor-class vehicle with no pitot.
type mockEKFAirspeedSource struct{}

func (mockEKFAirspeedSource) ReadAirspeed() (ekf.AirspeedObservation, bool) {
	return ekf.AirspeedObservation{}, false
}

// mockAttitudeReference reports a level attitude, matching the mock IMU.
type mockAttitudeReference struct{}

func (mockAttitudeReference) RollPitch() (float64, float64, bool) {
	return 0, 0, true
}
