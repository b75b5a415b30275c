// Copyright (c) 2026 Daniel Alarcon Rubio / Relabs Tech
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

package app

import (
	"encoding/json"
	"log"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"
	"github.com/relabs-tech/navkf/internal/config"
	"github.com/relabs-tech/navkf/internal/ekf"
	"github.com/relabs-tech/navkf/internal/orientation"
	"github.com/relabs-tech/navkf/internal/sensors"
)

// systemClock supplies wall-clock time to the estimator.
type systemClock struct{}

func (systemClock) NowMs() int64 { return time.Now().UnixMilli() }
func (systemClock) NowUs() int64 { return time.Now().UnixMicro() }

func vehicleClassFromConfig(name string) ekf.VehicleClass {
	switch name {
	case "plane":
		return ekf.VehiclePlane
	case "rover":
		return ekf.VehicleRover
	default:
		return ekf.VehicleCopter
	}
}

func gpsFusionModeFromConfig(name string) ekf.GPSFusionMode {
	switch name {
	case "2d_velocity":
		return ekf.GPSFusion2DVelocity
	case "position_only":
		return ekf.GPSFusionPositionOnly
	default:
		return ekf.GPSFusion3DVelocity
	}
}

func magCalModeFromConfig(name string) ekf.MagCalMode {
	switch name {
	case "manoeuvre":
		return ekf.MagCalManoeuvre
	case "never":
		return ekf.MagCalNever
	default:
		return ekf.MagCalSpeedAndHeight
	}
}

// ekfParamsFromConfig builds an ekf.Params from the EKF_* config keys,
// falling back to ekf.DefaultParams for any zero-valued field so that an
// operator only needs to override what they're tuning.
func ekfParamsFromConfig(cfg *config.Config) ekf.Params {
	vehicle := vehicleClassFromConfig(cfg.EKFVehicleClass)
	p := ekf.DefaultParams(vehicle)

	if cfg.EKFGPSVelNoiseHoriz > 0 {
		p.GPSVelNoiseHoriz = cfg.EKFGPSVelNoiseHoriz
	}
	if cfg.EKFGPSVelNoiseVert > 0 {
		p.GPSVelNoiseVert = cfg.EKFGPSVelNoiseVert
	}
	if cfg.EKFGPSPosNoise > 0 {
		p.GPSPosNoise = cfg.EKFGPSPosNoise
	}
	if cfg.EKFBaroAltNoise > 0 {
		p.BaroAltNoise = cfg.EKFBaroAltNoise
	}
	if cfg.EKFMagNoise > 0 {
		p.MagNoise = cfg.EKFMagNoise
	}
	if cfg.EKFAirspeedNoise > 0 {
		p.AirspeedNoise = cfg.EKFAirspeedNoise
	}
	if cfg.EKFDelayVelocityMs > 0 {
		p.DelayVelocityMs = cfg.EKFDelayVelocityMs
	}
	if cfg.EKFDelayPositionMs > 0 {
		p.DelayPositionMs = cfg.EKFDelayPositionMs
	}
	if cfg.EKFDelayHeightMs > 0 {
		p.DelayHeightMs = cfg.EKFDelayHeightMs
	}
	if cfg.EKFDelayMagMs > 0 {
		p.DelayMagMs = cfg.EKFDelayMagMs
	}
	if cfg.EKFDelayAirspeedMs > 0 {
		p.DelayAirspeedMs = cfg.EKFDelayAirspeedMs
	}
	if cfg.EKFGPSFusionMode != "" {
		p.GPSFusionMode = gpsFusionModeFromConfig(cfg.EKFGPSFusionMode)
	}
	if cfg.EKFMagCalMode != "" {
		p.MagCalMode = magCalModeFromConfig(cfg.EKFMagCalMode)
	}
	if cfg.EKFGlitchAccelGateCmSS > 0 {
		p.GlitchAccelGateCmSS = cfg.EKFGlitchAccelGateCmSS
	}
	if cfg.EKFGlitchRadiusGateM > 0 {
		p.GlitchRadiusGateM = cfg.EKFGlitchRadiusGateM
	}
	if cfg.EKFVibrationHighThreshold > 0 {
		p.VibrationHighThreshold = cfg.EKFVibrationHighThreshold
	}
	if cfg.EKFDeadReckoningTimeoutSec > 0 {
		p.DeadReckoningTimeoutSec = cfg.EKFDeadReckoningTimeoutSec
	}
	p.Clamp()
	return p
}

// RunEKFProducer drives the navigation estimator from the shared IMU
// manager, GPS adapter, baro/mag/airspeed adapters and the accelerometer-
// tilt attitude-reference fallback, publishing the full output surface to
// MQTT on every IMU tick (replacing imu_producer.go's orientation-only
// publish loop for vehicles that run the EKF).
func RunEKFProducer() error {
	log.Println("starting navigation estimator producer")

	cfg := config.Get()

	imuManager := sensors.GetIMUManager()
	if err := imuManager.Init(); err != nil {
		log.Printf("IMU manager init warning: %v", err)
	}

	homeLat, homeLon, homeAlt, haveHome := configHome(cfg)

	baro := NewEKFBaroAdapter()
	params := ekfParamsFromConfig(cfg)

	attitudeSrc, err := orientation.NewIMUSourceLeft()
	if err != nil {
		log.Printf("attitude-reference fallback unavailable, using mock: %v", err)
		attitudeSrc = orientation.NewMockSource()
	}

	est := ekf.NewEstimator(
		params,
		NewEKFIMUAdapter(imuManager, cfg),
		NewEKFGPSAdapter(homeLat, homeLon, homeAlt),
		baro,
		NewEKFMagAdapter(imuManager, cfg),
		NewEKFAirspeedAdapter(baro),
		systemClock{},
		ekf.NewOrientationAttitudeRef(attitudeSrc),
	)
	if haveHome {
		est.SetHome(homeLat, homeLon, homeAlt)
	}

	opts := mqtt.NewClientOptions().
		AddBroker(cfg.MQTTBroker).
		SetClientID(cfg.MQTTClientIDProducer + "-ekf")
	client := mqtt.NewClient(opts)
	if token := client.Connect(); token.Wait() && token.Error() != nil {
		log.Printf("MQTT connect error: %v", token.Error())
		return token.Error()
	}
	defer client.Disconnect(250)

	log.Println("connected to MQTT, starting estimator loop")

	ticker := time.NewTicker(time.Duration(cfg.IMUSampleInterval) * time.Millisecond)
	defer ticker.Stop()

	tickCounter := 0
	logInterval := cfg.ConsoleLogInterval / cfg.IMUSampleInterval
	if logInterval <= 0 {
		logInterval = 1
	}

	for range ticker.C {
		if !est.Update() {
			continue
		}

		out := est.Snapshot()
		payload, err := json.Marshal(out)
		if err != nil {
			log.Printf("EKF output marshal error: %v", err)
			continue
		}
		if token := client.Publish(cfg.TopicEKF, 0, true, payload); token.Wait() && token.Error() != nil {
			log.Printf("MQTT publish error (ekf): %v", token.Error())
		}

		tickCounter++
		if tickCounter >= logInterval {
			tickCounter = 0
			log.Printf("ekf R=%.2f P=%.2f Y=%.2f vN=%.2f vE=%.2f vD=%.2f healthy=%v faults=%#x",
				out.RollRad, out.PitchRad, out.YawRad,
				out.VelNED[0], out.VelNED[1], out.VelNED[2],
				out.Healthy, out.FaultBitmap,
			)
		}
	}
	return nil
}
