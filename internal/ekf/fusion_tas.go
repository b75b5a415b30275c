// Copyright (c) 2026 Daniel Alarcon Rubio / Relabs Tech
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

package ekf

import "math"

// fuseAirspeedCycle fuses a true-airspeed scalar pseudo-measurement
// (spec.md section 4.5.3): predicted TAS = |v_NED - v_wind|, fused only
// when the prediction exceeds 1 m/s. The Z-accel-bias gain is forced to
// zero for stability; mag gains are zero whenever inhibitMag is set.
func (e *Estimator) fuseAirspeedCycle() {
	obs, at, ok := e.ingestAirspeed()
	if !ok {
		return
	}
	e.airspeedAvailable = true
	e.lastObservedTAS = obs.TrueAirspeed

	vel := at.Vel()
	wind := at.Wind()
	vAirN := vel[0] - wind[0]
	vAirE := vel[1] - wind[1]
	vAirD := vel[2]
	predicted := math.Sqrt(vAirN*vAirN + vAirE*vAirE + vAirD*vAirD)
	if predicted <= 1.0 {
		return
	}

	h := make([]float64, NumStates)
	h[IdxVN] = vAirN / predicted
	h[IdxVE] = vAirE / predicted
	h[IdxVD] = vAirD / predicted
	h[IdxWN] = -vAirN / predicted
	h[IdxWE] = -vAirE / predicted

	r := e.params.AirspeedNoise * e.params.AirspeedNoise
	innov := obs.TrueAirspeed - predicted

	inhibit := e.inhibitIndices()
	inhibit = append(inhibit, IdxABZ)

	res := fuseScalar(&e.cov, &e.state, h, innov, r, e.params.GateAirspeed, e.lastDt, inhibit)
	e.lastFuseTAS = res
	e.faults.BadAirspeed = res.Gated || res.IllConditioned
}
