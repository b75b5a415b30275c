// Copyright (c) 2026 Daniel Alarcon Rubio / Relabs Tech
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

package ekf

import "math"

// InitializeStatic initializes attitude from accelerometer tilt and a
// tilt-compensated magnetometer heading while the vehicle is at rest
// (spec.md section 3's "static" lifecycle path). The tilt formula is
// adapted from the accelerometer-only attitude reference this core's
// AttitudeReference fallback also uses (see DESIGN.md).
func (e *Estimator) InitializeStatic(accel [3]float64, mag [3]float64, declinationRad float64) {
	roll := math.Atan2(accel[1], accel[2])
	pitch := math.Atan2(-accel[0], math.Sqrt(accel[1]*accel[1]+accel[2]*accel[2]))

	cr, sr := math.Cos(roll), math.Sin(roll)
	cp, sp := math.Cos(pitch), math.Sin(pitch)
	mx := mag[0]*cp + mag[1]*sr*sp + mag[2]*cr*sp
	my := mag[1]*cr - mag[2]*sr
	yaw := math.Atan2(-my, mx) + declinationRad

	q := eulerToQuat321(roll, pitch, yaw)
	dst := e.state.Quat()
	copy(dst, q[:])

	dcm := dcmFromQuat(dst)
	earth := e.state.EarthField()
	magFieldNorm := norm3(mag)
	if magFieldNorm < 1e-9 {
		magFieldNorm = 1
	}
	bodyUnit := [3]float64{mag[0] / magFieldNorm, mag[1] / magFieldNorm, mag[2] / magFieldNorm}
	earthEst := matVec3(dcm, bodyUnit)
	earth[0], earth[1], earth[2] = earthEst[0] * magFieldNorm, earthEst[1] * magFieldNorm, earthEst[2] * magFieldNorm

	e.cov = NewCovariance()
	e.hist.Reset(e.state, e.nowMs)
	e.staticMode = true
}

// InitializeDynamic re-seeds roll/pitch from the external attitude
// reference fallback while preserving the EKF's own yaw estimate, used
// both for the initial "vehicle already moving" bootstrap and for
// divergence recovery (spec.md section 4.6).
func (e *Estimator) InitializeDynamic() bool {
	if e.attitude == nil {
		return false
	}
	roll, pitch, ok := e.attitude.RollPitch()
	if !ok {
		return false
	}
	_, _, yaw := eulerFromQuat(e.state.Quat())
	q := eulerToQuat321(roll, pitch, yaw)
	dst := e.state.Quat()
	copy(dst, q[:])
	e.cov = NewCovariance()
	return true
}

// reinitializeDynamic is the divergence-recovery path of spec.md section
// 4.6: dynamic re-initialization from the attitude reference, followed by
// velocity/position/height reset from fresh GPS/baro.
func (e *Estimator) reinitializeDynamic() {
	e.InitializeDynamic()
	e.resetVelPosHgtFromFreshData()
	e.hist.Reset(e.state, e.nowMs)
}
