// Copyright (c) 2026 Daniel Alarcon Rubio / Relabs Tech
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

package app

import (
	"sync"

	"github.com/relabs-tech/navkf/internal/gps"
)

// latestGPSFix is the most recently assembled GPS fix, published by
// RunGPSProducer and consumed by the EKF's gps_adapter.go. A single
// mutex-guarded pointer is enough here: the producer is the sole writer
// and adapters are occasional readers, the same pattern sensors.IMUManager
// uses for its left/right IMU handles.
var (
	latestGPSFixMu sync.RWMutex
	latestGPSFix   gps.Fix
	latestGPSSeq   uint64
)

func publishLatestGPSFix(fix gps.Fix) {
	latestGPSFixMu.Lock()
	defer latestGPSFixMu.Unlock()
	latestGPSFix = fix
	latestGPSSeq++
}

// LatestGPSFix returns the most recently assembled GPS fix and a
// monotonically increasing sequence number that changes every time a new
// fix is published.
func LatestGPSFix() (gps.Fix, uint64) {
	latestGPSFixMu.RLock()
	defer latestGPSFixMu.RUnlock()
	return latestGPSFix, latestGPSSeq
}
