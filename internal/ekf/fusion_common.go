// Copyright (c) 2026 Daniel Alarcon Rubio / Relabs Tech
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

package ekf

import "gonum.org/v1/gonum/mat"

// fusionResult carries the outcome of one scalar Kalman update, used by
// every fusion_*.go module to report back to the supervisor and the
// output surface's innovation/test-ratio fields.
type fusionResult struct {
	Innovation    float64
	InnovationVar float64
	TestRatio     float64 // innovation^2 / (gate^2 * S)
	Gated         bool    // true if the gate rejected the sample
	IllConditioned bool   // true if S <= R and the step was aborted
}

// fuseScalar performs one scalar measurement update against p and s using
// observation Jacobian row h (length NumStates), innovation y = z-h(x),
// measurement noise r and consistency gate gateSigma standard deviations.
// It follows spec.md section 4.5's common structure: innovation variance,
// chi-square gate, Kalman gain column, state/covariance update, forced
// symmetry and diagonal clamp. inhibitIdx lists state indices whose gain
// must be zeroed regardless of the computed K (wind/mag inhibit flags,
// section 4.5.1).
func fuseScalar(p *Covariance, s *State, h []float64, y, r, gateSigma float64, dt float64, inhibitIdx []int) fusionResult {
	hv := mat.NewVecDense(NumStates, h)
	// mat.NewDense needs a contiguous flat slice; build it explicitly
	// since p is a [22][22]float64 array of arrays.
	flat := make([]float64, NumStates*NumStates)
	for i := 0; i < NumStates; i++ {
		copy(flat[i*NumStates:(i+1)*NumStates], p[i][:])
	}
	pm := mat.NewDense(NumStates, NumStates, flat)

	var ph mat.VecDense
	ph.MulVec(pm, hv)

	var s2 float64
	for i := 0; i < NumStates; i++ {
		s2 += h[i] * ph.AtVec(i)
	}
	innovVar := s2 + r

	if innovVar <= r {
		// Ill-conditioned: bump the diagonal and abort this step.
		for i := 0; i < NumStates; i++ {
			if h[i] != 0 {
				p[i][i] += 0.1 * r
			}
		}
		return fusionResult{Innovation: y, InnovationVar: innovVar, IllConditioned: true}
	}

	testRatio := (y * y) / (gateSigma * gateSigma * innovVar)
	if testRatio >= 1 {
		return fusionResult{Innovation: y, InnovationVar: innovVar, TestRatio: testRatio, Gated: true}
	}

	k := make([]float64, NumStates)
	for i := 0; i < NumStates; i++ {
		k[i] = ph.AtVec(i) / innovVar
	}
	for _, idx := range inhibitIdx {
		k[idx] = 0
	}

	for i := 0; i < NumStates; i++ {
		s.X[i] += k[i] * y
	}
	quatNormalize(s.Quat())
	clampState(s, dt)

	// P' = P - K*(H*P), applied directly to the array.
	hp := make([]float64, NumStates)
	for j := 0; j < NumStates; j++ {
		var sum float64
		for i := 0; i < NumStates; i++ {
			sum += h[i] * p[i][j]
		}
		hp[j] = sum
	}
	for i := 0; i < NumStates; i++ {
		for j := 0; j < NumStates; j++ {
			p[i][j] -= k[i] * hp[j]
		}
	}

	for i := 0; i < NumStates; i++ {
		for j := i + 1; j < NumStates; j++ {
			avg := 0.5 * (p[i][j] + p[j][i])
			p[i][j] = avg
			p[j][i] = avg
		}
	}
	for i := 0; i < NumStates; i++ {
		lo, hi := diagClamp(i, dt)
		p[i][i] = clampF(p[i][i], lo, hi)
	}

	return fusionResult{Innovation: y, InnovationVar: innovVar, TestRatio: testRatio}
}
