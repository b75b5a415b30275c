// Copyright (c) 2026 Daniel Alarcon Rubio / Relabs Tech
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

package ekf

// Covariance is the 22x22 symmetric state covariance, kept as a plain
// array rather than a dense gonum matrix: the sparsity of its transition
// Jacobian is the point of this component (spec.md section 4.4), and a
// fixed-size array keeps that sparsity visible in the code rather than
// buried behind a general-purpose matrix type. See DESIGN.md for the
// documented deviation from literal closed-form transcription.
type Covariance [NumStates][NumStates]float64

// NewCovariance returns a diagonal initial covariance, matching "created
// at estimator construction ... with a diagonal initial covariance"
// (spec.md section 3).
func NewCovariance() Covariance {
	var p Covariance
	diag := [NumStates]float64{
		0.01, 0.01, 0.01, 0.01, // quaternion
		1, 1, 1, // velocity
		25, 25, 25, // position
		1e-4, 1e-4, 1e-4, // gyro bias
		1e-4, // accel-Z bias
		4, 4, // wind
		0.04, 0.04, 0.04, // earth field
		0.01, 0.01, 0.01, // body field
	}
	for i := 0; i < NumStates; i++ {
		p[i][i] = diag[i]
	}
	return p
}

// coningTrigger fires prediction when the accumulated delta-angle
// magnitude exceeds 0.05 rad or the accumulated dt would exceed 0.07 s at
// the next step (spec.md section 4.4).
func coningTrigger(sumDeltaAngle [3]float64, sumDt, nextDt float64) bool {
	mag2 := sumDeltaAngle[0]*sumDeltaAngle[0] + sumDeltaAngle[1]*sumDeltaAngle[1] + sumDeltaAngle[2]*sumDeltaAngle[2]
	if mag2 > 0.05*0.05 {
		return true
	}
	return sumDt+nextDt > 0.07
}

// quatLeftMulMatrix returns L(a) such that quatMultiply(a, b) == L(a)*b
// for any b, viewed as a linear map on b.
func quatLeftMulMatrix(a [4]float64) [4][4]float64 {
	w, x, y, z := a[0], a[1], a[2], a[3]
	return [4][4]float64{
		{w, -x, -y, -z},
		{x, w, -z, y},
		{y, z, w, -x},
		{z, -y, x, w},
	}
}

// quatRightMulMatrix returns R(b) such that quatMultiply(a, b) == R(b)*a
// for any a, viewed as a linear map on a.
func quatRightMulMatrix(b [4]float64) [4][4]float64 {
	w, x, y, z := b[0], b[1], b[2], b[3]
	return [4][4]float64{
		{w, -x, -y, -z},
		{x, w, z, -y},
		{y, -z, w, x},
		{z, y, -x, w},
	}
}

// xi0 is the small-angle rotation-vector-to-quaternion-derivative map:
// d(dq)/d(dTheta) at dTheta=0, dq ~= (1, dTheta/2).
var xi0 = [4][3]float64{
	{0, 0, 0},
	{0.5, 0, 0},
	{0, 0.5, 0},
	{0, 0, 0.5},
}

// rotateJacobian returns d(R(q)v)/dq, a 3x4 matrix, for fixed v, computed
// from the explicit quadratic-in-q DCM entries of dcmFromQuat.
func rotateJacobian(q []float64, v [3]float64) [3][4]float64 {
	w, x, y, z := q[0], q[1], q[2], q[3]
	// dM[row][col] w.r.t. q0..q3, from dcmFromQuat's closed-form entries.
	dM00 := [4]float64{2 * w, 2 * x, -2 * y, -2 * z}
	dM01 := [4]float64{-2 * z, 2 * y, 2 * x, -2 * w}
	dM02 := [4]float64{2 * y, 2 * z, 2 * w, 2 * x}
	dM10 := [4]float64{2 * z, 2 * y, 2 * x, 2 * w}
	dM11 := [4]float64{2 * w, -2 * x, 2 * y, -2 * z}
	dM12 := [4]float64{-2 * x, -2 * w, 2 * z, 2 * y}
	dM20 := [4]float64{-2 * y, 2 * z, -2 * w, 2 * x}
	dM21 := [4]float64{2 * x, 2 * w, 2 * z, 2 * y}
	dM22 := [4]float64{2 * w, -2 * x, -2 * y, 2 * z}

	var out [3][4]float64
	for k := 0; k < 4; k++ {
		out[0][k] = dM00[k]*v[0] + dM01[k]*v[1] + dM02[k]*v[2]
		out[1][k] = dM10[k]*v[0] + dM11[k]*v[1] + dM12[k]*v[2]
		out[2][k] = dM20[k]*v[0] + dM21[k]*v[1] + dM22[k]*v[2]
	}
	return out
}

// buildJacobian assembles the sparse 22x22 transition Jacobian F from the
// named sub-expressions above: quaternion kinematics are exact (the
// update is a quaternion left-multiplication, so F_qq/F_qb fall out of
// quatLeftMulMatrix/quatRightMulMatrix directly), the velocity block uses
// the analytic DCM-vs-quaternion Jacobian, and position-vs-velocity is
// the dt identity from trapezoidal integration. Everything else
// propagates as a random walk (F diagonal = 1), its uncertainty growth
// coming entirely from the process-noise injection in propagateP.
func buildJacobian(q []float64, dq [4]float64, sumDV [3]float64, imuWeight, dt float64) Covariance {
	var f Covariance
	for i := 0; i < NumStates; i++ {
		f[i][i] = 1
	}

	qArr := [4]float64{q[0], q[1], q[2], q[3]}
	Lqq := quatLeftMulMatrix(dq)
	for r := 0; r < 4; r++ {
		for c := 0; c < 4; c++ {
			f[IdxQ0+r][IdxQ0+c] = Lqq[r][c]
		}
	}

	Rq := quatRightMulMatrix(qArr)
	// F_qb = R(q) * (-xi0), 4x3.
	for r := 0; r < 4; r++ {
		for c := 0; c < 3; c++ {
			var sum float64
			for k := 0; k < 4; k++ {
				sum += Rq[r][k] * (-xi0[k][c])
			}
			f[IdxQ0+r][IdxGBX+c] = sum
		}
	}

	fvq := rotateJacobian(q, sumDV)
	for r := 0; r < 3; r++ {
		for c := 0; c < 4; c++ {
			f[IdxVN+r][IdxQ0+c] = fvq[r][c]
		}
	}

	dcm := dcmFromQuat(q)
	for r := 0; r < 3; r++ {
		f[IdxVN+r][IdxABZ] = -imuWeight * dcm[r][2]
	}

	for i := 0; i < 3; i++ {
		f[IdxPN+i][IdxVN+i] = dt
	}

	return f
}

// processNoise returns the diagonal process-noise injection Q for one
// prediction interval of duration dt, per the variances listed in
// spec.md section 4.4.
func processNoise(p *Params, dt float64, onGround bool, hgtRateFilt float64, inhibitWind, inhibitMag bool) [NumStates]float64 {
	var q [NumStates]float64
	const floor = 1e-9
	for i := IdxQ0; i <= IdxQ3; i++ {
		q[i] = floor
	}
	for i := IdxVN; i <= IdxVD; i++ {
		q[i] = floor
	}
	for i := IdxPN; i <= IdxPD; i++ {
		q[i] = floor
	}

	gbq := p.gyroBiasPNoise(onGround) * dt
	for i := IdxGBX; i <= IdxGBZ; i++ {
		q[i] = gbq
	}

	q[IdxABZ] = p.AccelBiasPNoise * dt

	if !inhibitWind {
		windQ := p.WindPNoise * dt * (1 + p.WindPNoiseHgtRateScale*absF(hgtRateFilt))
		q[IdxWN] = windQ
		q[IdxWE] = windQ
	}

	if !inhibitMag {
		for i := IdxMN; i <= IdxMD; i++ {
			q[i] = p.EarthFieldPNoise
		}
		for i := IdxMBX; i <= IdxMBZ; i++ {
			q[i] = p.BodyFieldPNoise
		}
	}

	return q
}

func absF(v float64) float64 {
	if v < 0 {
		return -v
	}
	return v
}

// diagClamp are the per-group bounds of spec.md section 4.4.
func diagClamp(i int, dt float64) (lo, hi float64) {
	switch {
	case i <= IdxQ3:
		return 0, 1
	case i <= IdxVD:
		return 0, 1e3
	case i <= IdxPD:
		return 0, 1e6
	case i <= IdxGBZ:
		v := 0.175 * dt
		return 0, v * v
	case i == IdxABZ:
		v := 10 * dt
		return 0, v * v
	case i <= IdxWE:
		return 0, 1e3
	case i <= IdxMD:
		return 0, 1e3
	default:
		return 0, 1
	}
}

// Predict computes P+ = F*P*F^T + Q, then symmetrizes and clamps, per
// spec.md section 4.4. sumDTheta/sumDV are the accumulated delta-angle
// and delta-velocity since the last prediction; dt is the accumulated
// time. hgtRateFilt is the 10-second filtered vertical velocity used by
// the wind process-noise scaler.
func (p Covariance) Predict(params *Params, q []float64, sumDTheta, sumDV [3]float64, imuWeight, dt float64, onGround, inhibitWind, inhibitMag bool, hgtRateFilt float64) Covariance {
	dq := deltaQuatFromRotVec(sumDTheta)
	f := buildJacobian(q, dq, sumDV, imuWeight, dt)

	var fp Covariance
	for i := 0; i < NumStates; i++ {
		for j := 0; j < NumStates; j++ {
			var sum float64
			for k := 0; k < NumStates; k++ {
				if f[i][k] == 0 {
					continue
				}
				sum += f[i][k] * p[k][j]
			}
			fp[i][j] = sum
		}
	}

	var fpft Covariance
	for i := 0; i < NumStates; i++ {
		for j := 0; j < NumStates; j++ {
			var sum float64
			for k := 0; k < NumStates; k++ {
				if f[j][k] == 0 {
					continue
				}
				sum += fp[i][k] * f[j][k]
			}
			fpft[i][j] = sum
		}
	}

	qnoise := processNoise(params, dt, onGround, hgtRateFilt, inhibitWind, inhibitMag)
	for i := 0; i < NumStates; i++ {
		fpft[i][i] += qnoise[i]
	}

	// Horizontal position variance freeze, spec.md section 4.4: keep the
	// previous row/column 7,8 if the sum exceeds 1e6.
	if fpft[IdxPN][IdxPN]+fpft[IdxPE][IdxPE] > 1e6 {
		for k := 0; k < NumStates; k++ {
			fpft[IdxPN][k] = p[IdxPN][k]
			fpft[k][IdxPN] = p[k][IdxPN]
			fpft[IdxPE][k] = p[IdxPE][k]
			fpft[k][IdxPE] = p[k][IdxPE]
		}
	}

	// Force symmetry: average each off-diagonal pair, keep the diagonal.
	for i := 0; i < NumStates; i++ {
		for j := i + 1; j < NumStates; j++ {
			avg := 0.5 * (fpft[i][j] + fpft[j][i])
			fpft[i][j] = avg
			fpft[j][i] = avg
		}
	}

	// Diagonal clamps per group.
	for i := 0; i < NumStates; i++ {
		lo, hi := diagClamp(i, dt)
		fpft[i][i] = clampF(fpft[i][i], lo, hi)
	}

	return fpft
}
