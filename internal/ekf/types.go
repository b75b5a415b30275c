// Copyright (c) 2026 Daniel Alarcon Rubio / Relabs Tech
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

// Package ekf implements the 24-state (22-covaried) extended Kalman filter
// navigation estimator: inertial strapdown integration, closed-form
// covariance prediction, sequential measurement fusion against GPS, baro,
// magnetometer and airspeed, and the failure/reset supervisor that keeps
// the solution usable across sensor outages and glitches.
package ekf

// VehicleClass selects the process-noise and gating defaults in Params.
type VehicleClass int

const (
	VehicleCopter VehicleClass = iota
	VehiclePlane
	VehicleRover
)

// GPSFusionMode selects which GPS observation rows are fused.
type GPSFusionMode int

const (
	GPSFusion3DVelocity GPSFusionMode = iota
	GPSFusion2DVelocity
	GPSFusionPositionOnly
)

// MagCalMode selects when in-flight magnetometer calibration is allowed.
type MagCalMode int

const (
	MagCalSpeedAndHeight MagCalMode = iota
	MagCalManoeuvre
	MagCalNever
)

// ImuSample is one ingested inertial measurement: the delta velocities of
// two accelerometers (m/s, body frame), the averaged gyro delta angle
// (rad, body frame) and the step duration in seconds.
type ImuSample struct {
	TimestampUs int64
	DeltaAngle  [3]float64 // rad, body frame, already averaged over dt
	DeltaVelIMU1 [3]float64 // m/s, IMU1 body frame
	DeltaVelIMU2 [3]float64 // m/s, IMU2 body frame
	DtSec        float64
}

// GPSObservation is the ingested GPS fix, already converted to NED.
type GPSObservation struct {
	TimestampMs     int64
	VelNED          [3]float64 // m/s
	PosNED          [2]float64 // m, relative to home (N, E)
	FixQuality3D    bool
	NumSatellites   int
	VertVelUsable   bool
	CourseRad       float64
	GroundSpeed     float64
}

// NoiseScale returns the GPS-count-derived noise scale factor from spec
// section 4.1: 1.0 for >=6 satellites, 1.4 for 5, 2.0 for <=4.
func (g GPSObservation) NoiseScale() float64 {
	switch {
	case g.NumSatellites >= 6:
		return 1.0
	case g.NumSatellites == 5:
		return 1.4
	default:
		return 2.0
	}
}

// BaroObservation is the ingested barometric altitude sample. Raw and
// averaged views are both preserved (see DESIGN.md, Open Question 2).
type BaroObservation struct {
	TimestampMs int64
	AltitudeM   float64 // averaged / filtered, negative-down convention applied by caller
	RawAltitudeM float64 // as-sampled, before any smoothing the driver applies
}

// MagObservation is the ingested body-frame magnetometer reading in Gauss.
// No hard-iron offsets are subtracted from it, here or in the app adapter.
type MagObservation struct {
	TimestampMs int64
	FieldGauss  [3]float64
}

// AirspeedObservation is the ingested true airspeed sample.
type AirspeedObservation struct {
	TimestampMs int64
	TrueAirspeed float64 // m/s, already indicated*EAS2TAS
}

// IMUSource, GPSSource, BaroSource, MagSource and AirspeedSource are the
// per-cycle pull interfaces the estimator consumes. Each returns ok=false
// when no fresh sample is available this cycle.
type IMUSource interface {
	ReadIMU() (ImuSample, bool)
}

type GPSSource interface {
	ReadGPS() (GPSObservation, bool)
}

type BaroSource interface {
	ReadBaro() (BaroObservation, bool)
}

type MagSource interface {
	ReadMag() (MagObservation, bool)
}

type AirspeedSource interface {
	ReadAirspeed() (AirspeedObservation, bool)
}

// Clock supplies monotonic time to the estimator, matching the excluded
// collaborator layer's contract (spec.md section 6).
type Clock interface {
	NowMs() int64
	NowUs() int64
}

// AttitudeReference is the external DCM-based fallback consulted only
// during static/dynamic initialization and during reset (spec.md section 1
// and section 4.6); the core never fuses it as a measurement.
type AttitudeReference interface {
	RollPitch() (rollRad, pitchRad float64, ok bool)
}

// Faults is the 7-bit fault bitmap published on the output surface
// (spec.md section 4.7), extended with the supplemented dead-reckoning and
// vibration bits from SPEC_FULL section 4.
type Faults struct {
	Diverged        bool
	LargeCovariance bool
	BadMagX         bool
	BadMagY         bool
	BadMagZ         bool
	BadAirspeed     bool
	BadSideslip     bool

	// Supplemented, SPEC_FULL section 4.
	DeadReckoning  bool
	VibrationHigh  bool
}

// Bitmap packs the seven spec-mandated fault bits into a single byte, LSB
// first in the order listed in spec.md section 4.7.
func (f Faults) Bitmap() uint8 {
	var b uint8
	if f.Diverged {
		b |= 1 << 0
	}
	if f.LargeCovariance {
		b |= 1 << 1
	}
	if f.BadMagX {
		b |= 1 << 2
	}
	if f.BadMagY {
		b |= 1 << 3
	}
	if f.BadMagZ {
		b |= 1 << 4
	}
	if f.BadAirspeed {
		b |= 1 << 5
	}
	if f.BadSideslip {
		b |= 1 << 6
	}
	return b
}

const gravityMSS = 9.80665
