// Copyright (c) 2026 Daniel Alarcon Rubio / Relabs Tech
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

package ekf

import "math"

const magTimeoutSec = 10.0

// magCalManoeuvreRateThreshold is the minimum body angular rate (rad/s)
// the "manoeuvre" calibration mode requires before it trusts the
// earth/body field states to be observable from the current heading
// excitation (spec.md section 6).
const magCalManoeuvreRateThreshold = 0.1

// updateMagCalInhibit drives inhibitMag from the configured in-flight
// magnetometer calibration mode (spec.md section 6): "never" always
// withholds earth/body field learning, "speed and height" only allows it
// once airborne, "manoeuvre" additionally requires enough angular rate to
// observe the field states from more than one heading. Heading correction
// itself is unaffected either way, since fuseMagCycle's Kalman gain on the
// attitude states comes from their covariance coupling to the field
// states, not from inhibitMag.
func (e *Estimator) updateMagCalInhibit() {
	switch e.params.MagCalMode {
	case MagCalNever:
		e.inhibitMag = true
	case MagCalManoeuvre:
		rate2 := e.lastGyroRate[0]*e.lastGyroRate[0] + e.lastGyroRate[1]*e.lastGyroRate[1] + e.lastGyroRate[2]*e.lastGyroRate[2]
		e.inhibitMag = e.onGround || rate2 < magCalManoeuvreRateThreshold*magCalManoeuvreRateThreshold
	default: // MagCalSpeedAndHeight
		e.inhibitMag = e.onGround
	}
}

// fuseMagCycle fuses one magnetometer axis per cycle (spec.md section
// 4.5.2), cycling X, Y, Z across consecutive cycles to spread cost. The
// predicted field is h(x) = DCM(q)*B_earth + B_body; the Jacobian row is
// the corresponding row of DCM for the earth-field columns and the
// identity for the matching body-field column.
func (e *Estimator) fuseMagCycle() {
	obs, at, ok := e.ingestMag()
	if !ok {
		e.checkMagTimeout()
		return
	}

	axis := e.magAxisCycle
	e.magAxisCycle = (e.magAxisCycle + 1) % 3
	e.magFusedThisCycle = true

	dcm := dcmFromQuat(at.Quat())
	earth := at.EarthField()
	body := at.BodyField()

	predicted := dcm[axis][0]*earth[0] + dcm[axis][1]*earth[1] + dcm[axis][2]*earth[2] + body[axis]
	innov := obs.FieldGauss[axis] - predicted

	gyroMag := math.Sqrt(e.lastGyroRate[0]*e.lastGyroRate[0] + e.lastGyroRate[1]*e.lastGyroRate[1] + e.lastGyroRate[2]*e.lastGyroRate[2])
	r := e.params.MagNoise*e.params.MagNoise + (0.01*gyroMag)*(0.01*gyroMag)

	h := make([]float64, NumStates)
	h[IdxMN] = dcm[axis][0]
	h[IdxME] = dcm[axis][1]
	h[IdxMD] = dcm[axis][2]
	h[IdxMBX+axis] = 1

	weight := 1.0
	if e.magFailed {
		// Permanently disabled for fixed-wing sideslip vehicles once
		// latched; single-axis-in-gate readings outside that still fuse
		// at quarter weighting for other vehicle classes.
		if e.params.Vehicle == VehiclePlane {
			return
		}
		weight = 0.25
	}

	res := fuseScalar(&e.cov, &e.state, h, innov*weight, r, e.params.GateMag, e.lastDt, e.inhibitIndices())

	switch axis {
	case 0:
		e.lastFuseMag[0] = res
		e.faults.BadMagX = res.Gated || res.IllConditioned
	case 1:
		e.lastFuseMag[1] = res
		e.faults.BadMagY = res.Gated || res.IllConditioned
	case 2:
		e.lastFuseMag[2] = res
		e.faults.BadMagZ = res.Gated || res.IllConditioned
	}
	e.magAxisHealthy[axis] = !res.Gated && !res.IllConditioned

	if e.magAxisHealthy[0] && e.magAxisHealthy[1] && e.magAxisHealthy[2] {
		e.magHealthy = true
		e.magUnhealthySinceMs = 0
	} else {
		if e.magUnhealthySinceMs == 0 {
			e.magUnhealthySinceMs = e.nowMs
		}
		e.magHealthy = false
	}

	e.checkMagTimeout()
}

func (e *Estimator) checkMagTimeout() {
	if e.magHealthy || e.magUnhealthySinceMs == 0 {
		return
	}
	if float64(e.nowMs-e.magUnhealthySinceMs)/1000.0 > magTimeoutSec {
		if e.params.Vehicle == VehiclePlane {
			e.magFailed = true
		}
	}
}
