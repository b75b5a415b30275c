// Copyright (c) 2026 Daniel Alarcon Rubio / Relabs Tech
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text


package app

import (
	"fmt"
	"time"

	"github.com/relabs-tech/navkf/internal/ekf"
)

// RunMockConsole drives the navigation estimator end to end against a
// stationary, level synthetic sensor rig (no hardware required), printing
// attitude and health to stdout on every fifth successful update (about
// every 100 ms at the 20 ms tick). This exercises the same
// estimator construction and Update/Snapshot cycle RunEKFProducer uses
// against real sensors.
func RunMockConsole() error {
	params := ekf.DefaultParams(ekf.VehicleCopter)
	est := ekf.NewEstimator(
		params,
		&mockEKFIMUSource{},
		&mockEKFGPSSource{},
		&mockEKFBaroSource{},
		&mockEKFMagSource{},
		mockEKFAirspeedSource{},
		systemClock{},
		mockAttitudeReference{},
	)
	est.InitializeStatic([3]float64{0, 0, gravityMSS}, [3]float64{0.2, 0, 0.45}, 0)

	ticker := time.NewTicker(20 * time.Millisecond)
	defer ticker.Stop()

	tick := 0
	for range ticker.C {
		if !est.Update() {
			continue
		}
		tick++
		if tick%5 != 0 {
			continue
		}
		out := est.Snapshot()
		fmt.Printf(
			"ROLL=%6.2f  PITCH=%6.2f  YAW=%6.2f  healthy=%v faults=%#x\n",
			out.RollRad*180/3.14159265358979,
			out.PitchRad*180/3.14159265358979,
			out.YawRad*180/3.14159265358979,
			out.Healthy, out.FaultBitmap,
		)
	}
	return nil
}
