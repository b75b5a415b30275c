// Copyright (c) 2026 Daniel Alarcon Rubio / Relabs Tech
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

package ekf

import (
	"errors"
	"math"
	"testing"

	"github.com/relabs-tech/navkf/internal/orientation"
)

type fakeOrientationSource struct {
	pose orientation.Pose
	err  error
}

func (f fakeOrientationSource) Next() (orientation.Pose, error) { return f.pose, f.err }

func TestOrientationAttitudeRefConvertsDegreesToRadians(t *testing.T) {
	ref := NewOrientationAttitudeRef(fakeOrientationSource{pose: orientation.Pose{Roll: 90, Pitch: -45, Yaw: 180}})

	roll, pitch, ok := ref.RollPitch()
	if !ok {
		t.Fatalf("RollPitch() ok = false, want true")
	}
	if math.Abs(roll-math.Pi/2) > 1e-9 {
		t.Fatalf("roll = %v rad, want pi/2", roll)
	}
	if math.Abs(pitch-(-math.Pi/4)) > 1e-9 {
		t.Fatalf("pitch = %v rad, want -pi/4", pitch)
	}
}

func TestOrientationAttitudeRefReportsNotOkOnSourceError(t *testing.T) {
	ref := NewOrientationAttitudeRef(fakeOrientationSource{err: errors.New("no data")})

	roll, pitch, ok := ref.RollPitch()
	if ok {
		t.Fatalf("RollPitch() ok = true on a source error, want false")
	}
	if roll != 0 || pitch != 0 {
		t.Fatalf("RollPitch() on error = (%v,%v), want (0,0)", roll, pitch)
	}
}
