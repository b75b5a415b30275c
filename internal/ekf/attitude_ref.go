// Copyright (c) 2026 Daniel Alarcon Rubio / Relabs Tech
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

package ekf

import (
	"math"

	"github.com/relabs-tech/navkf/internal/orientation"
)

// OrientationAttitudeRef adapts an orientation.Source (accelerometer-tilt
// roll/pitch, no fusion) into the AttitudeReference collaborator this
// core bootstraps from and falls back to on divergence recovery. See
// DESIGN.md for why this wraps the existing source rather than
// duplicating its tilt math.
type OrientationAttitudeRef struct {
	src orientation.Source
}

// NewOrientationAttitudeRef wraps src, which may be an IMU-backed source
// or a mock, as an ekf.AttitudeReference.
func NewOrientationAttitudeRef(src orientation.Source) *OrientationAttitudeRef {
	return &OrientationAttitudeRef{src: src}
}

// RollPitch satisfies AttitudeReference, converting the wrapped source's
// degree-valued Pose into radians. ok is false whenever the underlying
// source returns an error.
func (a *OrientationAttitudeRef) RollPitch() (rollRad, pitchRad float64, ok bool) {
	pose, err := a.src.Next()
	if err != nil {
		return 0, 0, false
	}
	return pose.Roll * math.Pi / 180.0, pose.Pitch * math.Pi / 180.0, true
}
