// Copyright (c) 2026 Daniel Alarcon Rubio / Relabs Tech
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

package ekf

import "math"

const earthRadiusM = 6371000.0

// Fix is the geodetic position derived from the NED solution and the
// configured home location (spec.md section 4.7).
type Fix struct {
	Lat float64 // deg
	Lon float64 // deg
	Alt float64 // m, positive up
}

// Output is the read-only snapshot published by the estimator every
// cycle (spec.md section 4.7): attitude, kinematics, sensor biases,
// innovation diagnostics and health flags.
type Output struct {
	RollRad  float64
	PitchRad float64
	YawRad   float64

	VelNED [3]float64
	PosNED [3]float64
	Fix    Fix

	GyroBiasRadS    [3]float64
	AccelZBiasIMU1  float64
	AccelZBiasIMU2  float64
	WindNE          [2]float64
	EarthFieldMGauss [3]float64
	BodyFieldMGauss  [3]float64

	VelPosInnovation fusionResult
	HeightInnovation fusionResult
	MagInnovation    [3]fusionResult
	TASInnovation    fusionResult
	SideslipInnovation fusionResult

	GlitchOffsetN float64
	GlitchOffsetE float64

	FaultBitmap   uint8
	DeadReckoning bool
	VibrationHigh bool

	Healthy           bool
	HeightDrifting    bool
	PositionDrifting  bool
}

// Snapshot builds the current Output from the estimator's internal
// state, applying the AHRS trim offsets set via SetTrim and converting
// the NED position to a geodetic fix relative to the home location set
// via SetHome (spec.md section 4.7).
func (e *Estimator) Snapshot() Output {
	roll, pitch, yaw := eulerFromQuat(e.state.Quat())
	roll += e.trimRoll
	pitch += e.trimPitch

	vel := e.state.Vel()
	pos := e.state.Pos()
	gb := e.state.GyroBias()
	wind := e.state.Wind()
	ef := e.state.EarthField()
	bf := e.state.BodyField()

	dt := e.lastDt
	if dt <= 0 {
		dt = dtMin
	}

	fix := e.geodeticFix(pos)

	return Output{
		RollRad:  roll,
		PitchRad: pitch,
		YawRad:   yaw,

		VelNED: [3]float64{vel[0], vel[1], vel[2]},
		PosNED: [3]float64{pos[0], pos[1], pos[2]},
		Fix:    fix,

		GyroBiasRadS:   [3]float64{gb[0] / dt, gb[1] / dt, gb[2] / dt},
		AccelZBiasIMU1: e.state.AccelZBias() / dt,
		AccelZBiasIMU2: e.state.AccelZBiasIMU2 / dt,
		WindNE:         [2]float64{wind[0], wind[1]},
		EarthFieldMGauss: [3]float64{ef[0] * 1000, ef[1] * 1000, ef[2] * 1000},
		BodyFieldMGauss:  [3]float64{bf[0] * 1000, bf[1] * 1000, bf[2] * 1000},

		VelPosInnovation:   e.lastFuseVelPos,
		HeightInnovation:   e.lastFuseHgt,
		MagInnovation:      e.lastFuseMag,
		TASInnovation:      e.lastFuseTAS,
		SideslipInnovation: e.lastFuseSideslip,

		GlitchOffsetN: e.glitchOffsetN,
		GlitchOffsetE: e.glitchOffsetE,

		FaultBitmap:   e.faults.Bitmap(),
		DeadReckoning: e.faults.DeadReckoning,
		VibrationHigh: e.faults.VibrationHigh,

		Healthy:          e.healthy,
		HeightDrifting:   float64(e.nowMs-e.lastGoodHgtMs)/1000.0 > e.params.DeadReckoningTimeoutSec,
		PositionDrifting: float64(e.nowMs-e.lastGoodPosMs)/1000.0 > e.params.DeadReckoningTimeoutSec,
	}
}

// geodeticFix converts the NED position to a flat-earth geodetic fix
// around the configured home location.
func (e *Estimator) geodeticFix(pos []float64) Fix {
	latRad := e.homeLat * math.Pi / 180.0
	dLat := pos[0] / earthRadiusM
	dLon := pos[1] / (earthRadiusM * math.Cos(latRad))
	return Fix{
		Lat: e.homeLat + dLat*180.0/math.Pi,
		Lon: e.homeLon + dLon*180.0/math.Pi,
		Alt: e.homeAlt - pos[2],
	}
}
