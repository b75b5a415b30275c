// Copyright (c) 2026 Daniel Alarcon Rubio / Relabs Tech
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

package ekf

import "math"

// quatNorm is the Euclidean norm of a 4-element quaternion slice.
func quatNorm(q []float64) float64 {
	return math.Sqrt(q[0]*q[0] + q[1]*q[1] + q[2]*q[2] + q[3]*q[3])
}

// quatNormalize renormalizes q in place. Invariant (spec.md section 3):
// the quaternion is renormalized after every state update.
func quatNormalize(q []float64) {
	n := quatNorm(q)
	if n < 1e-12 {
		q[0], q[1], q[2], q[3] = 1, 0, 0, 0
		return
	}
	inv := 1.0 / n
	q[0] *= inv
	q[1] *= inv
	q[2] *= inv
	q[3] *= inv
}

// quatMultiply computes a * b, Hamilton convention, w-first.
func quatMultiply(a, b [4]float64) [4]float64 {
	return [4]float64{
		a[0]*b[0] - a[1]*b[1] - a[2]*b[2] - a[3]*b[3],
		a[0]*b[1] + a[1]*b[0] + a[2]*b[3] - a[3]*b[2],
		a[0]*b[2] - a[1]*b[3] + a[2]*b[0] + a[3]*b[1],
		a[0]*b[3] + a[1]*b[2] - a[2]*b[1] + a[3]*b[0],
	}
}

// deltaQuatFromRotVec converts a small-angle rotation vector (rad) into a
// delta-quaternion, identity when |dTheta| < 1e-12 per spec.md section
// 4.2 step 4.
func deltaQuatFromRotVec(dTheta [3]float64) [4]float64 {
	mag := math.Sqrt(dTheta[0]*dTheta[0] + dTheta[1]*dTheta[1] + dTheta[2]*dTheta[2])
	if mag < 1e-12 {
		return [4]float64{1, 0, 0, 0}
	}
	halfMag := 0.5 * mag
	s := math.Sin(halfMag) / mag
	return [4]float64{math.Cos(halfMag), dTheta[0] * s, dTheta[1] * s, dTheta[2] * s}
}

// dcmFromQuat returns the body-to-NED direction cosine matrix for
// quaternion q = (w,x,y,z).
func dcmFromQuat(q []float64) [3][3]float64 {
	w, x, y, z := q[0], q[1], q[2], q[3]
	var m [3][3]float64
	m[0][0] = w*w + x*x - y*y - z*z
	m[0][1] = 2 * (x*y - w*z)
	m[0][2] = 2 * (x*z + w*y)
	m[1][0] = 2 * (x*y + w*z)
	m[1][1] = w*w - x*x + y*y - z*z
	m[1][2] = 2 * (y*z - w*x)
	m[2][0] = 2 * (x*z - w*y)
	m[2][1] = 2 * (y*z + w*x)
	m[2][2] = w*w - x*x - y*y + z*z
	return m
}

func matVec3(m [3][3]float64, v [3]float64) [3]float64 {
	return [3]float64{
		m[0][0]*v[0] + m[0][1]*v[1] + m[0][2]*v[2],
		m[1][0]*v[0] + m[1][1]*v[1] + m[1][2]*v[2],
		m[2][0]*v[0] + m[2][1]*v[1] + m[2][2]*v[2],
	}
}

// matVec3T applies the transpose of m to v (NED-to-body when m is
// body-to-NED).
func matVec3T(m [3][3]float64, v [3]float64) [3]float64 {
	return [3]float64{
		m[0][0]*v[0] + m[1][0]*v[1] + m[2][0]*v[2],
		m[0][1]*v[0] + m[1][1]*v[1] + m[2][1]*v[2],
		m[0][2]*v[0] + m[1][2]*v[1] + m[2][2]*v[2],
	}
}

// eulerSequenceFor picks the 321 (yaw-pitch-roll) or 312 (yaw-roll-pitch)
// Euler decomposition, whichever keeps the current attitude away from its
// gimbal singularity, matching the original's in-flight yaw-reset sequence
// selection (SPEC_FULL section 4). 321 is used unless pitch is within 5
// degrees of +-90 deg, in which case 312 is used.
func eulerSequenceFor(roll321, pitch321 float64) int {
	const nearVertical = 85.0 * math.Pi / 180.0
	if math.Abs(pitch321) > nearVertical {
		return 312
	}
	return 321
}

// eulerFromQuat converts q to roll/pitch/yaw (rad) using either the 321
// or 312 rotation sequence. The state itself always stays quaternion
// (spec.md section 3); this is used by the output surface and by the yaw
// alignment and re-initialization steps in init.go and supervisor.go.
func eulerFromQuat(q []float64) (roll, pitch, yaw float64) {
	w, x, y, z := q[0], q[1], q[2], q[3]

	// 321 sequence first, to decide which sequence is appropriate.
	sinp := 2 * (w*y - z*x)
	if sinp > 1 {
		sinp = 1
	}
	if sinp < -1 {
		sinp = -1
	}
	pitch321 := math.Asin(sinp)
	roll321 := math.Atan2(2*(w*x+y*z), 1-2*(x*x+y*y))

	seq := eulerSequenceFor(roll321, pitch321)
	if seq == 321 {
		yaw321 := math.Atan2(2*(w*z+x*y), 1-2*(y*y+z*z))
		return roll321, pitch321, yaw321
	}

	// 312 sequence: yaw-roll-pitch, avoids the singularity near +-90 deg
	// pitch by solving for roll from the y-z plane instead.
	sinr := 2 * (w*x + y*z)
	if sinr > 1 {
		sinr = 1
	}
	if sinr < -1 {
		sinr = -1
	}
	roll312 := math.Asin(sinr)
	pitch312 := math.Atan2(-2*(x*z-w*y), 1-2*(x*x+y*y))
	yaw312 := math.Atan2(-2*(x*y-w*z), 1-2*(x*x+z*z))
	return roll312, pitch312, yaw312
}

// eulerToQuat321 builds a unit quaternion from roll/pitch/yaw (rad) using
// the 321 (yaw-pitch-roll) rotation sequence.
func eulerToQuat321(roll, pitch, yaw float64) [4]float64 {
	cr, sr := math.Cos(roll*0.5), math.Sin(roll*0.5)
	cp, sp := math.Cos(pitch*0.5), math.Sin(pitch*0.5)
	cy, sy := math.Cos(yaw*0.5), math.Sin(yaw*0.5)
	return [4]float64{
		cr*cp*cy + sr*sp*sy,
		sr*cp*cy - cr*sp*sy,
		cr*sp*cy + sr*cp*sy,
		cr*cp*sy - sr*sp*cy,
	}
}

// coningCorrection implements spec.md section 4.2 step 3:
// dTheta_corr = dTheta - T_nb*omega_earth*dt + (dTheta_prev x dTheta)/12
// omega_earth (Earth rotation rate) is neglected here as the vehicle class
// this estimator targets (small UAV) operates at scales where its
// contribution is far below sensor noise floor; only the classic coning
// cross-product term is applied.
func coningCorrection(dTheta, dThetaPrev [3]float64) [3]float64 {
	cross := [3]float64{
		dThetaPrev[1]*dTheta[2] - dThetaPrev[2]*dTheta[1],
		dThetaPrev[2]*dTheta[0] - dThetaPrev[0]*dTheta[2],
		dThetaPrev[0]*dTheta[1] - dThetaPrev[1]*dTheta[0],
	}
	return [3]float64{
		dTheta[0] + cross[0]/12,
		dTheta[1] + cross[1]/12,
		dTheta[2] + cross[2]/12,
	}
}
