// Copyright (c) 2026 Daniel Alarcon Rubio / Relabs Tech
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

package ekf

import "math"

// accScaleHoriz/accScaleVert are the accelNav-dependent noise scale
// factors of spec.md section 4.5.1.
const (
	accScaleHoriz = 0.05
	accScaleVert  = 0.07
	accScalePos   = 0.05
)

func hRow(idx int) []float64 {
	h := make([]float64, NumStates)
	h[idx] = 1
	return h
}

// fuseVelPosHgtCycle runs the velocity/position/height fusion path,
// spec.md section 4.5.1. It pulls GPS and baro (if fresh this cycle),
// computes the dual-IMU blend weight from the per-IMU velocity
// innovations, applies the GPS-glitch gate with offset decay, and the
// tilt-gated, magnitude-limited Z-accel-bias gain.
func (e *Estimator) fuseVelPosHgtCycle() {
	accNav := e.mem.velDotNEDfiltMag()

	var obsVel [3]float64
	var obsPos [2]float64
	haveVelPos := false
	var atVelPos State
	vertVelUsable := true

	if e.staticMode {
		obsVel = [3]float64{0, 0, 0}
		obsPos = [2]float64{0, 0}
		haveVelPos = true
		atVelPos = e.state
	} else if obs, at, ok := e.ingestGPS(); ok {
		obsVel = obs.VelNED
		obsPos[0] = obs.PosNED[0] + e.glitchOffsetN
		obsPos[1] = obs.PosNED[1] + e.glitchOffsetE
		haveVelPos = true
		atVelPos = at
		e.noiseScaleGPS = obs.NoiseScale()
		vertVelUsable = obs.VertVelUsable
	}

	haveHgt := false
	var obsHgt float64
	var atHgt State
	if obs, at, ok := e.ingestBaro(); ok {
		obsHgt = -obs.AltitudeM
		haveHgt = true
		atHgt = at
	}

	if !haveVelPos && !haveHgt {
		return
	}

	// GPS fusion mode gates which velocity rows are usable at all
	// (spec.md section 6): position-only withholds velocity entirely,
	// 2D velocity withholds the vertical row, 3D velocity additionally
	// requires the source to report a usable vertical-velocity solution.
	fuseVel := haveVelPos && e.params.GPSFusionMode != GPSFusionPositionOnly
	fuseVertVel := fuseVel && e.params.GPSFusionMode == GPSFusion3DVelocity && vertVelUsable

	// Dual-IMU weighting from per-IMU velocity innovations (spec.md
	// section 4.5.1), updated whenever a velocity observation is fresh;
	// restricted to the horizontal plane when vertical velocity isn't
	// being fused this cycle.
	if fuseVel {
		rV := e.params.GPSVelNoiseHoriz*e.params.GPSVelNoiseHoriz*e.noiseScaleGPS*e.noiseScaleGPS + (accScaleHoriz * accNav) * (accScaleHoriz * accNav)
		var e1, e2 float64
		if fuseVertVel {
			e1 = vecDiff3Mag(atVelPos.VelIMU1, obsVel)
			e2 = vecDiff3Mag(atVelPos.VelIMU2, obsVel)
		} else {
			e1 = vecDiff2Mag(atVelPos.VelIMU1, obsVel)
			e2 = vecDiff2Mag(atVelPos.VelIMU2, obsVel)
		}
		k1 := rV / (rV + e1*e1)
		k2 := rV / (rV + e2*e2)
		if k1+k2 > 1e-12 {
			e.imuWeight = k1 / (k1 + k2)
		}
	}

	// Bad-IMU override: vertical-velocity and baro innovations both
	// exceed 3 sigma with the same sign. Only meaningful when a vertical
	// velocity observation is actually being fused this cycle.
	badIMU := false
	if fuseVertVel && haveHgt {
		rVvert := e.params.GPSVelNoiseVert*e.params.GPSVelNoiseVert + (accScaleVert * accNav) * (accScaleVert * accNav)
		rH := e.params.BaroAltNoise * e.params.BaroAltNoise
		vInnov := obsVel[2] - atVelPos.Vel()[2]
		hInnov := obsHgt - atHgt.Pos()[2]
		if vInnov*hInnov > 0 && vInnov*vInnov > 9*rVvert && hInnov*hInnov > 9*rH {
			badIMU = true
		}
	}

	if fuseVel {
		e.fuseVelocity(obsVel, accNav, fuseVertVel)
	}
	if haveVelPos {
		e.fusePosition(obsPos, accNav, badIMU)
	}
	if haveHgt {
		e.fuseHeight(obsHgt, badIMU)
	}
}

func vecDiff3Mag(a, b [3]float64) float64 {
	dx, dy, dz := a[0]-b[0], a[1]-b[1], a[2]-b[2]
	return math.Sqrt(dx*dx + dy*dy + dz*dz)
}

func vecDiff2Mag(a, b [3]float64) float64 {
	dx, dy := a[0]-b[0], a[1]-b[1]
	return math.Sqrt(dx*dx + dy*dy)
}

func (e *Estimator) fuseVelocity(obsVel [3]float64, accNav float64, fuseVertical bool) {
	vel := e.state.Vel()
	rHoriz := e.params.GPSVelNoiseHoriz*e.params.GPSVelNoiseHoriz + (accScaleHoriz * accNav) * (accScaleHoriz * accNav)

	inhibit := e.inhibitIndices()
	var last fusionResult
	last = fuseScalar(&e.cov, &e.state, hRow(IdxVN), obsVel[0]-vel[0], rHoriz, e.params.GateVelocity, e.lastDt, inhibit)
	last = fuseScalar(&e.cov, &e.state, hRow(IdxVE), obsVel[1]-vel[1], rHoriz, e.params.GateVelocity, e.lastDt, inhibit)
	if fuseVertical {
		rVert := e.params.GPSVelNoiseVert*e.params.GPSVelNoiseVert + (accScaleVert * accNav) * (accScaleVert * accNav)
		last = fuseScalar(&e.cov, &e.state, hRow(IdxVD), obsVel[2]-vel[2], rVert, e.params.GateVelocity, e.lastDt, inhibit)
	}
	e.lastFuseVelPos = last
	if !last.Gated && !last.IllConditioned {
		e.lastGoodVelMs = e.nowMs
	}
}

func (e *Estimator) fusePosition(obsPos [2]float64, accNav float64, badIMU bool) {
	pos := e.state.Pos()
	r := e.params.GPSPosNoise*e.params.GPSPosNoise + (accScalePos * accNav) * (accScalePos * accNav)

	innovN := obsPos[0] - pos[0]
	innovE := obsPos[1] - pos[1]
	innov2 := innovN*innovN + innovE*innovE

	accelGlitchMax := e.params.GlitchAccelGateCmSS / 100.0
	dtFailS := float64(e.nowMs-e.lastGoodPosMs) / 1000.0
	if dtFailS < 0 {
		dtFailS = 0
	}
	gateLimit := e.params.GatePosition*e.params.GPSPosNoise + 0.005*(1+0.1*accNav)*accelGlitchMax*dtFailS*dtFailS
	passed := badIMU || innov2 <= gateLimit*gateLimit

	retryTimeout := 10.0
	if e.airspeedAvailable {
		retryTimeout = 20.0
	}

	if !passed {
		if dtFailS > retryTimeout {
			// Bring GPS back in-frame gradually: decay the glitch offset
			// toward the raw GPS position at ~1 m/s, capped at 100 m.
			e.glitchOffsetN = decayOffset(e.glitchOffsetN, innovN, 1.0)
			e.glitchOffsetE = decayOffset(e.glitchOffsetE, innovE, 1.0)
			e.glitchOffsetN = clampF(e.glitchOffsetN, -100, 100)
			e.glitchOffsetE = clampF(e.glitchOffsetE, -100, 100)
		}
		return
	}

	inhibit := e.inhibitIndices()
	fuseScalar(&e.cov, &e.state, hRow(IdxPN), innovN, r, e.params.GatePosition, e.lastDt, inhibit)
	fuseScalar(&e.cov, &e.state, hRow(IdxPE), innovE, r, e.params.GatePosition, e.lastDt, inhibit)
	e.lastGoodPosMs = e.nowMs
	e.glitchOffsetN = decayOffset(e.glitchOffsetN, 0, 1.0)
	e.glitchOffsetE = decayOffset(e.glitchOffsetE, 0, 1.0)
}

// decayOffset moves off toward target at up to rate units/s (dt assumed
// ~1 cycle, approximated here by a fixed per-cycle step since fusion runs
// at the measurement rate rather than the IMU rate).
func decayOffset(off, target, rate float64) float64 {
	const cycleSec = 0.2
	step := rate * cycleSec
	if off > target+step {
		return off - step
	}
	if off < target-step {
		return off + step
	}
	return target
}

func (e *Estimator) fuseHeight(obsHgt float64, badIMU bool) {
	pos := e.state.Pos()
	r := e.params.BaroAltNoise * e.params.BaroAltNoise
	innov := obsHgt - pos[2]

	gate := e.params.GateHeight
	if badIMU {
		gate = 1e6 // bypass the gate per the bad-IMU override
	}

	abzBefore := e.state.AccelZBias()
	dcm := dcmFromQuat(e.state.Quat())
	tiltOK := dcm[2][2] > 0.5

	inhibit := e.inhibitIndices()
	if !tiltOK {
		inhibit = append(inhibit, IdxABZ)
	}

	res := fuseScalar(&e.cov, &e.state, hRow(IdxPD), innov, r, gate, e.lastDt, inhibit)
	e.lastFuseHgt = res
	if !res.Gated && !res.IllConditioned {
		e.lastGoodHgtMs = e.nowMs
	}

	// Z-accel-bias gain is clamped to [-1,0] and magnitude-limited to
	// 0.02*dt*dtVelPos per spec.md section 4.5.1.
	if tiltOK {
		delta := e.state.AccelZBias() - abzBefore
		limit := 0.02 * e.sumDt * e.sumDt
		if limit <= 0 {
			limit = 0.02
		}
		delta = clampF(delta, -limit, limit)
		newAbz := clampF(abzBefore+delta, -1, 0)
		e.state.SetAccelZBias(newAbz)
	}
}

// inhibitIndices returns the state indices whose Kalman gain must be
// zeroed this cycle because their inhibit flag is set (spec.md section
// 3/4.5.1): wind when inhibitWind, mag states when inhibitMag.
func (e *Estimator) inhibitIndices() []int {
	var idx []int
	if e.inhibitWind {
		idx = append(idx, IdxWN, IdxWE)
	}
	if e.inhibitMag {
		idx = append(idx, IdxMN, IdxME, IdxMD, IdxMBX, IdxMBY, IdxMBZ)
	}
	return idx
}
