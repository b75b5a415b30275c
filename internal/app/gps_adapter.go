// Copyright (c) 2026 Daniel Alarcon Rubio / Relabs Tech
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

package app

import (
	"math"
	"time"

	"github.com/relabs-tech/navkf/internal/config"
	"github.com/relabs-tech/navkf/internal/ekf"
	"github.com/relabs-tech/navkf/internal/gps"
)

const earthRadiusM = 6371000.0

// EKFGPSAdapter turns the latest assembled NMEA fix (internal/gps.Fix,
// shared via gps_state.go) into the ekf.GPSObservation spec.md section
// 4.1 describes: NED velocity from speed/course, NED position relative to
// home, satellite-count noise scaling and 3D fix-quality gating.
type EKFGPSAdapter struct {
	homeLat, homeLon, homeAlt float64
	lastSeq                   uint64
}

// NewEKFGPSAdapter builds an adapter around the configured home location.
func NewEKFGPSAdapter(homeLat, homeLon, homeAlt float64) *EKFGPSAdapter {
	return &EKFGPSAdapter{homeLat: homeLat, homeLon: homeLon, homeAlt: homeAlt}
}

// ReadGPS implements ekf.GPSSource.
func (a *EKFGPSAdapter) ReadGPS() (ekf.GPSObservation, bool) {
	fix, seq := LatestGPSFix()
	if seq == 0 || seq == a.lastSeq {
		return ekf.GPSObservation{}, false
	}
	a.lastSeq = seq

	courseRad := fix.CourseDeg * math.Pi / 180.0
	groundSpeed := fix.SpeedKnots * 0.514444 // knots to m/s
	if fix.SpeedKmh > 0 {
		groundSpeed = fix.SpeedKmh / 3.6
	}

	latRad := a.homeLat * math.Pi / 180.0
	dLat := (fix.Latitude - a.homeLat) * math.Pi / 180.0
	dLon := (fix.Longitude - a.homeLon) * math.Pi / 180.0
	posN := dLat * earthRadiusM
	posE := dLon * earthRadiusM * math.Cos(latRad)

	return ekf.GPSObservation{
		TimestampMs: time.Now().UnixMilli(),
		VelNED: [3]float64{
			groundSpeed * math.Cos(courseRad),
			groundSpeed * math.Sin(courseRad),
			0,
		},
		PosNED:        [2]float64{posN, posE},
		FixQuality3D:  fix.FixType == "3D",
		NumSatellites: int(fix.NumSatellites),
		// RMC/VTG only carry ground speed and course, not climb rate, so
		// this source never has a real vertical-velocity component to
		// offer; ekf.Params.GPSFusionMode falls back to the 2D/baro-only
		// vertical solution regardless of what GPSFusionMode requests.
		VertVelUsable: false,
		CourseRad:     courseRad,
		GroundSpeed:   groundSpeed,
	}, true
}

// configHome reads GPS_HOME_* from config. It reports ok=false when no home
// location is configured (latitude and longitude both zero); home is not
// taken from a received fix in that case.
func configHome(cfg *config.Config) (float64, float64, float64, bool) {
	if cfg.GPSHomeLat == 0 && cfg.GPSHomeLon == 0 {
		return 0, 0, 0, false
	}
	return cfg.GPSHomeLat, cfg.GPSHomeLon, cfg.GPSHomeAlt, true
}

// gpsDeclinationRad returns the local magnetic declination (rad) for the
// given home location. Nothing in this package calls it: ReadGPS passes
// the GPS course to the estimator unrotated.
func gpsDeclinationRad(lat, lon float64) float64 {
	return gps.Declination(lat, lon) * math.Pi / 180.0
}
