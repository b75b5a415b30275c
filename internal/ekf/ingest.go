// Copyright (c) 2026 Daniel Alarcon Rubio / Relabs Tech
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

package ekf

// Measurement Ingest (spec.md section 4.1): for each sensor, decide
// whether a fresh sample is available this cycle (its source timestamp
// advanced, and for GPS, fix quality is at least 3D), and if so recall
// the state snapshot the measurement should be fused against.

func (e *Estimator) ingestGPS() (GPSObservation, State, bool) {
	obs, ok := e.gpsSrc.ReadGPS()
	if !ok || obs.TimestampMs <= e.lastGPSMs || !obs.FixQuality3D {
		return GPSObservation{}, State{}, false
	}
	e.lastGPSMs = obs.TimestampMs
	at := e.hist.Recall(e.nowMs-int64(e.params.DelayPositionMs), e.state)
	return obs, at, true
}

func (e *Estimator) ingestBaro() (BaroObservation, State, bool) {
	obs, ok := e.baroSrc.ReadBaro()
	if !ok || obs.TimestampMs <= e.lastBaroMs {
		return BaroObservation{}, State{}, false
	}
	e.lastBaroMs = obs.TimestampMs
	at := e.hist.Recall(e.nowMs-int64(e.params.DelayHeightMs), e.state)
	return obs, at, true
}

func (e *Estimator) ingestMag() (MagObservation, State, bool) {
	obs, ok := e.magSrc.ReadMag()
	if !ok || obs.TimestampMs <= e.lastMagMs {
		return MagObservation{}, State{}, false
	}
	e.lastMagMs = obs.TimestampMs
	at := e.hist.Recall(e.nowMs-int64(e.params.DelayMagMs), e.state)
	return obs, at, true
}

func (e *Estimator) ingestAirspeed() (AirspeedObservation, State, bool) {
	obs, ok := e.airSrc.ReadAirspeed()
	if !ok || obs.TimestampMs <= e.lastAirMs {
		return AirspeedObservation{}, State{}, false
	}
	e.lastAirMs = obs.TimestampMs
	at := e.hist.Recall(e.nowMs-int64(e.params.DelayAirspeedMs), e.state)
	return obs, at, true
}

// resetVelPosHgtFromFreshData implements the IMU-stall and
// measurement-timeout reset rule (spec.md section 4.6/7): pull the
// freshest GPS/baro sample available and reset velocity, position and
// height directly from it, bypassing the history/fusion path.
func (e *Estimator) resetVelPosHgtFromFreshData() {
	if obs, ok := e.gpsSrc.ReadGPS(); ok {
		vel := e.state.Vel()
		vel[0], vel[1] = obs.VelNED[0], obs.VelNED[1]
		pos := e.state.Pos()
		pos[0], pos[1] = obs.PosNED[0], obs.PosNED[1]
		e.lastGoodPosMs = e.nowMs
		e.lastGoodVelMs = e.nowMs
	}
	if obs, ok := e.baroSrc.ReadBaro(); ok {
		pos := e.state.Pos()
		pos[2] = -obs.AltitudeM
		e.lastGoodHgtMs = e.nowMs
	}
	e.cov = NewCovariance()
}
