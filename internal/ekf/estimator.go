// Copyright (c) 2026 Daniel Alarcon Rubio / Relabs Tech
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

package ekf

// Estimator is the top-level navigation estimator: one state, one
// covariance, one history ring, driven by a single per-IMU-sample entry
// point (spec.md section 5 -- no internal threads, no suspension points).
type Estimator struct {
	params Params
	state  State
	cov    Covariance
	hist   *History
	mem    strapdownMemory

	imu       IMUSource
	gpsSrc    GPSSource
	baroSrc   BaroSource
	magSrc    MagSource
	airSrc    AirspeedSource
	clock     Clock
	attitude  AttitudeReference

	imuWeight float64 // w, IMU1 blending weight (spec.md section 4.5.1)

	// Covariance-prediction accumulators (spec.md section 4.4).
	sumDTheta [3]float64
	sumDV     [3]float64
	sumDt     float64

	onGround   bool
	inAir      bool
	staticMode bool

	inhibitWind bool
	inhibitMag  bool

	hgtRateFilt float64 // 10s filtered vertical velocity, for wind noise scaler

	glitchOffsetN, glitchOffsetE float64
	lastGoodPosMs                int64
	lastGoodVelMs                int64
	lastGoodHgtMs                int64

	magHealthy          bool
	magAxisHealthy      [3]bool
	magUnhealthySinceMs int64
	magFailed           bool // latched permanently on fixed-wing compass timeout

	divergedSinceMs int64
	faults          Faults

	nowMs int64

	lastGPSMs  int64
	lastBaroMs int64
	lastMagMs  int64
	lastAirMs  int64

	magAxisCycle  int
	magFusedThisCycle bool

	lastFuseVelPos fusionResult
	lastFuseHgt    fusionResult
	lastFuseMag    [3]fusionResult
	lastFuseTAS    fusionResult
	lastFuseSideslip fusionResult

	homeLat, homeLon, homeAlt float64
	trimRoll, trimPitch       float64

	healthy bool

	lastDt            float64
	noiseScaleGPS     float64
	airspeedAvailable bool
	lastObservedTAS   float64
	lastGyroRate      [3]float64 // rad/s, this cycle's averaged body rate

	prevBiasCheckMs int64
	prevBiasSample  [3]float64
}

// NewEstimator constructs an estimator with zeroed state, diagonal
// covariance, an empty history ring and the given parameter set and
// input collaborators (spec.md section 3's construction lifecycle).
func NewEstimator(params Params, imu IMUSource, gpsSrc GPSSource, baroSrc BaroSource, magSrc MagSource, airSrc AirspeedSource, clock Clock, attitude AttitudeReference) *Estimator {
	params.Clamp()
	return &Estimator{
		params:      params,
		state:       NewState(),
		cov:         NewCovariance(),
		hist:        NewHistory(),
		imu:         imu,
		gpsSrc:      gpsSrc,
		baroSrc:     baroSrc,
		magSrc:      magSrc,
		airSrc:      airSrc,
		clock:       clock,
		attitude:    attitude,
		imuWeight:     0.5,
		inhibitWind:   true,
		inhibitMag:    false,
		healthy:       false,
		noiseScaleGPS: 1.0,
	}
}

// SetHome records the home geodetic location used by the output surface
// (spec.md section 6); SetTrim records the AHRS trim offsets.
func (e *Estimator) SetHome(lat, lon, alt float64) {
	e.homeLat, e.homeLon, e.homeAlt = lat, lon, alt
}

func (e *Estimator) SetTrim(rollRad, pitchRad float64) {
	e.trimRoll, e.trimPitch = rollRad, pitchRad
}

// SetStaticMode toggles static mode per spec.md section 4.6: when true,
// positions/velocities are fused toward zero and only position-height
// observations run.
func (e *Estimator) SetStaticMode(static bool) {
	e.staticMode = static
}

// Update is the single entry point invoked per IMU sample (spec.md
// section 5). It returns false if no fresh IMU sample was available this
// cycle, in which case nothing was mutated.
func (e *Estimator) Update() bool {
	sample, ok := e.imu.ReadIMU()
	if !ok {
		return false
	}
	e.nowMs = e.clock.NowMs()

	// dt=0 is a no-op on state and covariance (spec.md section 8).
	if sample.DtSec == 0 {
		return true
	}
	dt := clampDt(sample.DtSec)
	e.lastDt = dt

	// IMU stall: spec.md section 4.6/7.
	if sample.DtSec > 0.2 {
		e.resetVelPosHgtFromFreshData()
		e.hist.Reset(e.state, e.nowMs)
		e.sumDTheta = [3]float64{}
		e.sumDV = [3]float64{}
		e.sumDt = 0
		return true
	}

	// 1. Ingest + 2. Strapdown.
	e.mem.Step(&e.state, &e.params, e.imuWeight, sample)
	e.lastGyroRate = [3]float64{sample.DeltaAngle[0] / dt, sample.DeltaAngle[1] / dt, sample.DeltaAngle[2] / dt}
	e.sumDTheta[0] += sample.DeltaAngle[0]
	e.sumDTheta[1] += sample.DeltaAngle[1]
	e.sumDTheta[2] += sample.DeltaAngle[2]
	e.sumDV[0] += sample.DeltaVelIMU1[0]*e.imuWeight + sample.DeltaVelIMU2[0]*(1-e.imuWeight)
	e.sumDV[1] += sample.DeltaVelIMU1[1]*e.imuWeight + sample.DeltaVelIMU2[1]*(1-e.imuWeight)
	e.sumDV[2] += sample.DeltaVelIMU1[2]*e.imuWeight + sample.DeltaVelIMU2[2]*(1-e.imuWeight)
	e.sumDt += dt

	// 3. History store.
	e.hist.Store(e.nowMs, e.state)

	// Height-rate 10s filter feeding the wind process-noise scaler.
	alphaHgt := 0.1 * dt
	e.hgtRateFilt += alphaHgt * (e.state.Vel()[2] - e.hgtRateFilt)

	// 4. Covariance prediction, triggered per spec.md section 4.4.
	if coningTrigger(e.sumDTheta, e.sumDt, dt) {
		e.cov = e.cov.Predict(&e.params, e.state.Quat(), e.sumDTheta, e.sumDV, e.imuWeight, e.sumDt, e.onGround, e.inhibitWind, e.inhibitMag, e.hgtRateFilt)
		e.sumDTheta = [3]float64{}
		e.sumDV = [3]float64{}
		e.sumDt = 0
	}

	// 5. Measurement fusion, fixed order: velocity/position/height, then
	// one magnetometer axis, then airspeed, then synthetic sideslip.
	e.updateMagCalInhibit()
	e.magFusedThisCycle = false
	e.fuseVelPosHgtCycle()
	e.fuseMagCycle()
	if !e.magFusedThisCycle {
		e.fuseAirspeedCycle()
		e.fuseSideslipCycle()
	}

	// 6. Supervisor checks.
	e.runSupervisor(dt)

	return true
}
