// Copyright (c) 2026 Daniel Alarcon Rubio / Relabs Tech
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

package ekf

import "math"

const sideslipInnovRejectRad = 0.5
const sideslipRNoise = 0.03 // (10 deg)^2 in rad^2

// FlyForward reports whether the configured vehicle class is assumed to
// have near-zero sideslip in steady flight.
func (p *Params) FlyForward() bool {
	return p.Vehicle == VehiclePlane
}

// fuseSideslipCycle fuses the synthetic zero-sideslip pseudo-measurement
// (spec.md section 4.5.4). Unlike every other fusion path it uses the
// current attitude directly rather than a history-buffer replay, because
// it encodes a structural assumption about the vehicle rather than a
// timed sensor reading.
func (e *Estimator) fuseSideslipCycle() {
	if !e.params.FlyForward() {
		return
	}

	dcm := dcmFromQuat(e.state.Quat())
	vel := e.state.Vel()
	wind := e.state.Wind()
	vRelNED := [3]float64{vel[0] - wind[0], vel[1] - wind[1], vel[2]}
	vBody := matVec3T(dcm, vRelNED)

	if vBody[0] <= 5.0 {
		return
	}

	predicted := vBody[1] / vBody[0]
	// Synthetic measurement is always zero sideslip.
	innov := 0 - predicted
	if math.Abs(innov) > sideslipInnovRejectRad {
		e.faults.BadSideslip = true
		return
	}

	// Jacobian of v_body_y/v_body_x wrt velocity and wind states, through
	// the current (un-delayed) body-to-NED rotation.
	h := make([]float64, NumStates)
	invVx := 1.0 / vBody[0]
	dydv := [3]float64{
		dcm[0][1]*invVx - vBody[1]*invVx*invVx*dcm[0][0],
		dcm[1][1]*invVx - vBody[1]*invVx*invVx*dcm[1][0],
		dcm[2][1]*invVx - vBody[1]*invVx*invVx*dcm[2][0],
	}
	h[IdxVN] = dydv[0]
	h[IdxVE] = dydv[1]
	h[IdxVD] = dydv[2]
	h[IdxWN] = -dydv[0]
	h[IdxWE] = -dydv[1]

	inhibit := e.inhibitIndices()
	res := fuseScalar(&e.cov, &e.state, h, innov, sideslipRNoise, e.params.GateSideslip, e.lastDt, inhibit)
	e.lastFuseSideslip = res
	e.faults.BadSideslip = res.Gated || res.IllConditioned
}
