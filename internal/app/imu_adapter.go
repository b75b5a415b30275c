// Copyright (c) 2026 Daniel Alarcon Rubio / Relabs Tech
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

package app

import (
	"math"
	"time"

	"github.com/relabs-tech/navkf/internal/airspeed"
	"github.com/relabs-tech/navkf/internal/config"
	"github.com/relabs-tech/navkf/internal/ekf"
	imu_raw "github.com/relabs-tech/navkf/internal/imu"
	"github.com/relabs-tech/navkf/internal/sensors"
)

// accelLSBPerG and gyroLSBPerDegS are the MPU9250 sensitivity tables for
// the four configurable full-scale ranges (datasheet section 6.3).
var accelLSBPerG = [4]float64{16384, 8192, 4096, 2048}
var gyroLSBPerDegS = [4]float64{131.0, 65.5, 32.8, 16.4}

const gravityMSS = 9.80665

// EKFIMUAdapter converts raw left/right IMU counts (internal/imu.IMURaw)
// into the SI-unit, dual-accelerometer ekf.ImuSample spec.md sections
// 4.1/4.2 need, scaling counts using the configured accel/gyro full-scale
// ranges (see internal/sensors/imu_source.go for the register-level
// counterpart of these same ranges).
type EKFIMUAdapter struct {
	manager *sensors.IMUManager
	cfg     *config.Config

	lastTick time.Time
}

// NewEKFIMUAdapter wires the shared IMU manager into an ekf.IMUSource.
func NewEKFIMUAdapter(manager *sensors.IMUManager, cfg *config.Config) *EKFIMUAdapter {
	return &EKFIMUAdapter{manager: manager, cfg: cfg}
}

// ReadIMU implements ekf.IMUSource: it reads the left IMU for gyro and as
// the primary accelerometer, and the right IMU (when available) as the
// second accelerometer for the dual-IMU blend; when only one IMU is
// present the same reading is used for both.
func (a *EKFIMUAdapter) ReadIMU() (ekf.ImuSample, bool) {
	if !a.manager.IsLeftIMUAvailable() {
		return ekf.ImuSample{}, false
	}
	left, err := a.manager.ReadLeftIMU()
	if err != nil {
		return ekf.ImuSample{}, false
	}

	right := left
	if a.manager.IsRightIMUAvailable() {
		if r, err := a.manager.ReadRightIMU(); err == nil {
			right = r
		}
	}

	now := time.Now()
	var dt float64
	if a.lastTick.IsZero() {
		dt = 0
	} else {
		dt = now.Sub(a.lastTick).Seconds()
	}
	a.lastTick = now

	accelScale := gravityMSS / accelLSBPerG[a.cfg.IMUAccelRange&3]
	gyroScale := (math.Pi / 180.0) / gyroLSBPerDegS[a.cfg.IMUGyroRange&3]

	dTheta := [3]float64{
		float64(left.Gx) * gyroScale * dt,
		float64(left.Gy) * gyroScale * dt,
		float64(left.Gz) * gyroScale * dt,
	}
	dv1 := accelToDeltaV(left, accelScale, dt)
	dv2 := accelToDeltaV(right, accelScale, dt)

	return ekf.ImuSample{
		TimestampUs:  now.UnixMicro(),
		DeltaAngle:   dTheta,
		DeltaVelIMU1: dv1,
		DeltaVelIMU2: dv2,
		DtSec:        dt,
	}, true
}

func accelToDeltaV(raw imu_raw.IMURaw, scale, dt float64) [3]float64 {
	return [3]float64{
		float64(raw.Ax) * scale * dt,
		float64(raw.Ay) * scale * dt,
		float64(raw.Az) * scale * dt,
	}
}

// magScaleGauss converts a raw AK8963 magnetometer count to Gauss,
// matching the resolution selected by config.Config.MagScale (0=14-bit,
// 1=16-bit).
func magScaleGauss(scale byte) float64 {
	const microTeslaToGauss = 1.0 / 100.0
	if scale == 1 {
		return 0.15 * microTeslaToGauss
	}
	return 0.6 * microTeslaToGauss
}

// EKFMagAdapter adapts the left IMU's onboard AK8963 magnetometer reading
// into an ekf.MagSource.
type EKFMagAdapter struct {
	manager *sensors.IMUManager
	cfg     *config.Config
	lastRaw imu_raw.IMURaw
	primed  bool
}

func NewEKFMagAdapter(manager *sensors.IMUManager, cfg *config.Config) *EKFMagAdapter {
	return &EKFMagAdapter{manager: manager, cfg: cfg}
}

func (a *EKFMagAdapter) ReadMag() (ekf.MagObservation, bool) {
	if !a.manager.IsLeftIMUAvailable() {
		return ekf.MagObservation{}, false
	}
	raw, err := a.manager.ReadLeftIMU()
	if err != nil {
		return ekf.MagObservation{}, false
	}
	if a.primed && raw == a.lastRaw {
		return ekf.MagObservation{}, false
	}
	a.lastRaw = raw
	a.primed = true

	// IMURaw carries the magnetometer as microtesla x10 (see
	// internal/sensors/imu_source.go); 1 uT = 0.01 Gauss.
	const scale = 0.1 * 0.01
	return ekf.MagObservation{
		TimestampMs: time.Now().UnixMilli(),
		FieldGauss: [3]float64{
			float64(raw.Mx) * scale,
			float64(raw.My) * scale,
			float64(raw.Mz) * scale,
		},
	}, true
}

// EKFBaroAdapter adapts the averaged left/right BMP readings into an
// ekf.BaroSource, averaging the two when both are available the same way
// the strapdown layer averages the two accelerometers.
type EKFBaroAdapter struct {
	baseAltitudeM float64
	lastPressure  float64
	primed        bool
}

func NewEKFBaroAdapter() *EKFBaroAdapter {
	return &EKFBaroAdapter{}
}

// lastAltitude returns the most recent pressure-altitude estimate (m,
// absolute, before the local base-altitude offset), used by the airspeed
// adapter's EAS2TAS correction.
func (a *EKFBaroAdapter) lastAltitude() float64 {
	if !a.primed {
		return 0
	}
	return 44330.0 * (1.0 - math.Pow(a.lastPressure/101325.0, 0.1903))
}

func (a *EKFBaroAdapter) ReadBaro() (ekf.BaroObservation, bool) {
	left, errL := sensors.ReadLeftEnv()
	right, errR := sensors.ReadRightEnv()
	if errL != nil && errR != nil {
		return ekf.BaroObservation{}, false
	}

	pressure := left.Pressure
	switch {
	case errL != nil:
		pressure = right.Pressure
	case errR == nil:
		pressure = 0.5 * (left.Pressure + right.Pressure)
	}
	if pressure <= 0 {
		return ekf.BaroObservation{}, false
	}
	if a.primed && pressure == a.lastPressure {
		return ekf.BaroObservation{}, false
	}
	a.lastPressure = pressure
	a.primed = true

	const seaLevelPa = 101325.0
	altitude := 44330.0 * (1.0 - math.Pow(pressure/seaLevelPa, 0.1903))
	if a.baseAltitudeM == 0 {
		a.baseAltitudeM = altitude
	}

	return ekf.BaroObservation{
		TimestampMs:  time.Now().UnixMilli(),
		AltitudeM:    altitude - a.baseAltitudeM,
		RawAltitudeM: altitude,
	}, true
}

// EKFAirspeedAdapter adapts the pitot differential-pressure sensor into
// an ekf.AirspeedSource, applying the ISA EAS2TAS correction using the
// baro adapter's current altitude.
type EKFAirspeedAdapter struct {
	baro       *EKFBaroAdapter
	lastSample float64
	primed     bool
}

func NewEKFAirspeedAdapter(baro *EKFBaroAdapter) *EKFAirspeedAdapter {
	return &EKFAirspeedAdapter{baro: baro}
}

func (a *EKFAirspeedAdapter) ReadAirspeed() (ekf.AirspeedObservation, bool) {
	raw, err := sensors.ReadAirspeed()
	if err != nil || raw.DiffPressurePa <= 0 {
		return ekf.AirspeedObservation{}, false
	}
	if a.primed && raw.DiffPressurePa == a.lastSample {
		return ekf.AirspeedObservation{}, false
	}
	a.lastSample = raw.DiffPressurePa
	a.primed = true

	eas := raw.IndicatedAirspeed()
	scale := 1.0
	if a.baro != nil {
		scale = airspeed.EAS2TAS(a.baro.lastAltitude(), raw.TemperatureC)
	}
	return ekf.AirspeedObservation{
		TimestampMs:  time.Now().UnixMilli(),
		TrueAirspeed: eas * scale,
	}, true
}
