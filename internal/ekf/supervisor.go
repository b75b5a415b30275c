// Copyright (c) 2026 Daniel Alarcon Rubio / Relabs Tech
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

package ekf

import "math"

const divergenceThreshold = 1e8
const divergenceHoldSec = 10.0
const biasRateWindowSec = 10.0

// groundAirScoreInAir/groundAirScoreOnGround are the hysteresis
// thresholds of spec.md section 4.6: a score >=2 holds the in-air state,
// a score >=3 is required to transition into it from on-ground.
const (
	groundAirScoreInAir   = 2
	groundAirScoreOnGround = 3
)

func norm3(v [3]float64) float64 {
	return math.Sqrt(v[0]*v[0] + v[1]*v[1] + v[2]*v[2])
}

// runSupervisor implements the Failure & Reset Supervisor, spec.md
// section 4.6: divergence detection and dynamic reinitialization, the
// ground/in-air mode transition with its yaw-alignment and wind
// bootstrap side effects, and the supplemented dead-reckoning and
// vibration fault bits from SPEC_FULL section 4.
func (e *Estimator) runSupervisor(dt float64) {
	e.checkDivergence()
	e.updateGroundAirMode()
	e.checkDeadReckoning()

	e.faults.VibrationHigh = e.mem.velDotNEDfiltMag() > e.params.VibrationHighThreshold

	var largeCov bool
	for i := 0; i < NumStates; i++ {
		_, hi := diagClamp(i, dt)
		if hi > 0 && e.cov[i][i] > 0.9*hi {
			largeCov = true
			break
		}
	}
	e.faults.LargeCovariance = largeCov

	e.healthy = !e.faults.Diverged
}

func (e *Estimator) checkDivergence() {
	diverged := false
	for i := 0; i < NumStates; i++ {
		for j := 0; j < NumStates; j++ {
			if i == j {
				continue
			}
			if math.Abs(e.cov[i][j]) > divergenceThreshold {
				diverged = true
			}
		}
	}

	if e.prevBiasCheckMs == 0 {
		e.prevBiasCheckMs = e.nowMs
		gb := e.state.GyroBias()
		e.prevBiasSample = [3]float64{gb[0], gb[1], gb[2]}
	} else if elapsed := float64(e.nowMs-e.prevBiasCheckMs) / 1000.0; elapsed >= biasRateWindowSec {
		gb := e.state.GyroBias()
		delta := [3]float64{gb[0] - e.prevBiasSample[0], gb[1] - e.prevBiasSample[1], gb[2] - e.prevBiasSample[2]}
		if norm3(delta)/elapsed > 1.0 {
			diverged = true
		}
		e.prevBiasCheckMs = e.nowMs
		e.prevBiasSample = [3]float64{gb[0], gb[1], gb[2]}
	}

	if diverged {
		if !e.faults.Diverged {
			e.reinitializeDynamic()
		}
		e.faults.Diverged = true
		e.divergedSinceMs = e.nowMs
		return
	}

	if e.faults.Diverged && float64(e.nowMs-e.divergedSinceMs)/1000.0 >= divergenceHoldSec {
		e.faults.Diverged = false
	}
}

// groundAirScore combines the signals of spec.md section 4.6 into a
// single integer: airspeed above 8 m/s, ground-velocity magnitude past
// three escalating thresholds, and altitude past 15 m.
func (e *Estimator) groundAirScore() int {
	score := 0
	if e.airspeedAvailable && e.lastObservedTAS > 8 {
		score++
	}
	vel := e.state.Vel()
	v2 := vel[0]*vel[0] + vel[1]*vel[1] + vel[2]*vel[2]
	switch {
	case v2 > 81:
		score += 3
	case v2 > 36:
		score += 2
	case v2 > 9:
		score++
	}
	if math.Abs(e.state.Pos()[2]) > 15 {
		score++
	}
	return score
}

func (e *Estimator) updateGroundAirMode() {
	score := e.groundAirScore()
	required := groundAirScoreOnGround
	if e.inAir {
		required = groundAirScoreInAir
	}
	newInAir := score >= required

	if newInAir && !e.inAir {
		e.onExitGround()
	}
	e.inAir = newInAir
	e.onGround = !newInAir
}

// onExitGround implements the yaw-alignment and wind-bootstrap side
// effects of transitioning off the ground (spec.md section 4.6).
func (e *Estimator) onExitGround() {
	vel := e.state.Vel()
	groundSpeed2 := vel[0]*vel[0] + vel[1]*vel[1]

	if !e.magHealthy && groundSpeed2 > 16 {
		gpsCourse := math.Atan2(vel[1], vel[0])
		_, _, yaw := eulerFromQuat(e.state.Quat())
		diff := angleDiff(gpsCourse, yaw)
		if math.Abs(diff) > 45*math.Pi/180 {
			e.alignYawTo(gpsCourse)
			e.resetVelPosCovarianceNominal()
		}
	}

	if !e.airspeedAvailable {
		speed := math.Sqrt(groundSpeed2)
		if speed > 1e-3 {
			wind := e.state.Wind()
			wind[0] = -vel[0] / speed * 3.0
			wind[1] = -vel[1] / speed * 3.0
		}
		e.cov[IdxWN][IdxWN] = 64
		e.cov[IdxWE][IdxWE] = 64
	}
}

func angleDiff(a, b float64) float64 {
	d := a - b
	for d > math.Pi {
		d -= 2 * math.Pi
	}
	for d < -math.Pi {
		d += 2 * math.Pi
	}
	return d
}

// alignYawTo replaces the quaternion's yaw component with target,
// keeping the current roll/pitch (321 sequence).
func (e *Estimator) alignYawTo(targetYaw float64) {
	roll, pitch, _ := eulerFromQuat(e.state.Quat())
	q := eulerToQuat321(roll, pitch, targetYaw)
	dst := e.state.Quat()
	copy(dst, q[:])
}

// resetVelPosCovarianceNominal resets indices 0-9's covariance to the
// nominal values of spec.md section 4.6.
func (e *Estimator) resetVelPosCovarianceNominal() {
	for i := IdxQ0; i <= IdxQ3; i++ {
		for j := 0; j < NumStates; j++ {
			e.cov[i][j] = 0
			e.cov[j][i] = 0
		}
		e.cov[i][i] = 0.01
	}
	for i := IdxVN; i <= IdxVD; i++ {
		for j := 0; j < NumStates; j++ {
			e.cov[i][j] = 0
			e.cov[j][i] = 0
		}
		e.cov[i][i] = 400
	}
	for i := IdxPN; i <= IdxPE; i++ {
		for j := 0; j < NumStates; j++ {
			e.cov[i][j] = 0
			e.cov[j][i] = 0
		}
		e.cov[i][i] = 400
	}
	for j := 0; j < NumStates; j++ {
		e.cov[IdxPD][j] = 0
		e.cov[j][IdxPD] = 0
	}
	e.cov[IdxPD][IdxPD] = 25
}

// checkDeadReckoning implements the supplemented dead-reckoning fault
// (SPEC_FULL section 4): both velocity/position and height fusion gated
// out simultaneously for longer than DeadReckoningTimeoutSec.
func (e *Estimator) checkDeadReckoning() {
	velPosStale := float64(e.nowMs-e.lastGoodVelMs)/1000.0 > e.params.DeadReckoningTimeoutSec
	hgtStale := float64(e.nowMs-e.lastGoodHgtMs)/1000.0 > e.params.DeadReckoningTimeoutSec
	e.faults.DeadReckoning = velPosStale && hgtStale
}
