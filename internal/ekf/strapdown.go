// Copyright (c) 2026 Daniel Alarcon Rubio / Relabs Tech
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

package ekf

import "math"

// dtMin and dtMax bound the IMU step duration, spec.md section 4.1/8.
const (
	dtMin = 0.001
	dtMax = 1.0
)

func clampDt(dt float64) float64 {
	if dt < dtMin {
		return dtMin
	}
	if dt > dtMax {
		return dtMax
	}
	return dt
}

// strapdownMemory carries the inter-step bookkeeping the mechanization
// needs that is not part of the covaried state: the previous corrected
// delta-angle (for coning correction) and the raw/filtered NED
// acceleration used by the glitch gates and the vibration fault.
type strapdownMemory struct {
	prevDeltaAngle [3]float64
	velDotNED      [3]float64
	velDotNEDfilt  [3]float64
	initialized    bool
}

// velDotNEDfiltCoeff is the low-pass coefficient from spec.md section
// 4.2 step 8.
const velDotNEDfiltCoeff = 0.05

// Step advances s by one IMU sample following spec.md section 4.2.
// imuWeight is w, the IMU1 blending weight computed by the fusion layer
// (section 4.5.1); it defaults to 0.5 before any velocity fusion has run.
func (m *strapdownMemory) Step(s *State, p *Params, imuWeight float64, sample ImuSample) {
	dt := clampDt(sample.DtSec)

	// Step 1: subtract gyro bias and Z-accel bias estimates.
	gb := s.GyroBias()
	dTheta := [3]float64{
		sample.DeltaAngle[0] - gb[0],
		sample.DeltaAngle[1] - gb[1],
		sample.DeltaAngle[2] - gb[2],
	}
	abz1 := s.AccelZBias()
	abz2 := s.AccelZBiasIMU2
	dv1 := sample.DeltaVelIMU1
	dv2 := sample.DeltaVelIMU2
	dv1[2] -= abz1
	dv2[2] -= abz2

	// Step 2: blended delta-velocity.
	w := imuWeight
	dvBlend := [3]float64{
		w*dv1[0] + (1-w)*dv2[0],
		w*dv1[1] + (1-w)*dv2[1],
		w*dv1[2] + (1-w)*dv2[2],
	}

	// Step 3: coning correction (Earth-rate term neglected, see
	// quaternion.go doc comment on coningCorrection).
	if !m.initialized {
		m.prevDeltaAngle = dTheta
		m.initialized = true
	}
	dThetaCorr := coningCorrection(dTheta, m.prevDeltaAngle)
	m.prevDeltaAngle = dTheta

	// Step 4: delta-quaternion, left-multiply, renormalize.
	dq := deltaQuatFromRotVec(dThetaCorr)
	q := s.Quat()
	qArr := [4]float64{q[0], q[1], q[2], q[3]}
	newQ := quatMultiply(dq, qArr)
	q[0], q[1], q[2], q[3] = newQ[0], newQ[1], newQ[2], newQ[3]
	quatNormalize(q)

	// Step 5: rotate delta-velocities into NED using the pre-update DCM,
	// add gravity*dt along D.
	dcm := dcmFromQuat([]float64{qArr[0], qArr[1], qArr[2], qArr[3]})
	gravNED := [3]float64{0, 0, gravityMSS * dt}
	dvBlendNED := addVec3(matVec3(dcm, dvBlend), gravNED)
	dv1NED := addVec3(matVec3(dcm, dv1), gravNED)
	dv2NED := addVec3(matVec3(dcm, dv2), gravNED)

	// Step 6: accumulate velocity, three-way.
	vel := s.Vel()
	prevVel := [3]float64{vel[0], vel[1], vel[2]}
	vel[0] += dvBlendNED[0]
	vel[1] += dvBlendNED[1]
	vel[2] += dvBlendNED[2]
	for i := 0; i < 3; i++ {
		s.VelIMU1[i] += dv1NED[i]
		s.VelIMU2[i] += dv2NED[i]
	}

	// Step 7: trapezoidal position integration.
	pos := s.Pos()
	for i := 0; i < 3; i++ {
		pos[i] += 0.5 * (prevVel[i] + vel[i]) * dt
	}
	s.PosDIMU1 += 0.5 * (2*s.VelIMU1[2] - dv1NED[2]) * dt
	s.PosDIMU2 += 0.5 * (2*s.VelIMU2[2] - dv2NED[2]) * dt

	// Step 8: velDotNED and its low-pass.
	if dt > 0 {
		for i := 0; i < 3; i++ {
			m.velDotNED[i] = dvBlendNED[i] / dt
			m.velDotNEDfilt[i] += velDotNEDfiltCoeff * (m.velDotNED[i] - m.velDotNEDfilt[i])
		}
	}

	// Step 9: plausibility clamps.
	clampState(s, dt)
}

func addVec3(a, b [3]float64) [3]float64 {
	return [3]float64{a[0] + b[0], a[1] + b[1], a[2] + b[2]}
}

func clampF(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}

// clampState enforces the plausibility ranges of spec.md section 4.2
// step 9.
func clampState(s *State, dt float64) {
	q := s.Quat()
	for i := range q {
		q[i] = clampF(q[i], -1, 1)
	}
	vel := s.Vel()
	for i := range vel {
		vel[i] = clampF(vel[i], -500, 500)
	}
	pos := s.Pos()
	pos[0] = clampF(pos[0], -1e6, 1e6)
	pos[1] = clampF(pos[1], -1e6, 1e6)
	pos[2] = clampF(pos[2], -4e4, 1e4)
	gb := s.GyroBias()
	lim := 0.1 * dt
	for i := range gb {
		gb[i] = clampF(gb[i], -lim, lim)
	}
	abzLim := dt
	s.X[IdxABZ] = clampF(s.X[IdxABZ], -abzLim, abzLim)
	s.AccelZBiasIMU2 = clampF(s.AccelZBiasIMU2, -abzLim, abzLim)
	wind := s.Wind()
	for i := range wind {
		wind[i] = clampF(wind[i], -100, 100)
	}
	ef := s.EarthField()
	for i := range ef {
		ef[i] = clampF(ef[i], -1, 1)
	}
	bf := s.BodyField()
	for i := range bf {
		bf[i] = clampF(bf[i], -0.5, 0.5)
	}
}

// velDotNEDfiltMag returns the magnitude of the filtered NED acceleration,
// used by the bad-IMU/vibration checks.
func (m *strapdownMemory) velDotNEDfiltMag() float64 {
	v := m.velDotNEDfilt
	return math.Sqrt(v[0]*v[0] + v[1]*v[1] + v[2]*v[2])
}
