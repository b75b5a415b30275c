// Copyright (c) 2026 Daniel Alarcon Rubio / Relabs Tech
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

package ekf

import (
	"math"
	"testing"
)

func TestClampDt(t *testing.T) {
	cases := []struct{ in, want float64 }{
		{-1, dtMin},
		{0, dtMin},
		{0.0001, dtMin},
		{0.02, 0.02},
		{5, dtMax},
	}
	for _, c := range cases {
		if got := clampDt(c.in); got != c.want {
			t.Fatalf("clampDt(%v) = %v, want %v", c.in, got, c.want)
		}
	}
}

// Scenario A (spec.md section 8): stationary, level, gravity-only delta-v
// on Z and zero delta-angle must leave the vehicle at rest with an
// unchanged, identity-ish attitude, and the quaternion must stay unit
// norm (property 1).
func TestStrapdownStepStationaryLevel(t *testing.T) {
	s := NewState()
	p := DefaultParams(VehicleCopter)
	var mem strapdownMemory

	const dt = 0.0025
	sample := ImuSample{
		DeltaAngle:   [3]float64{0, 0, 0},
		DeltaVelIMU1: [3]float64{0, 0, -gravityMSS * dt},
		DeltaVelIMU2: [3]float64{0, 0, -gravityMSS * dt},
		DtSec:        dt,
	}

	for i := 0; i < 100; i++ {
		mem.Step(&s, &p, 0.5, sample)
	}

	if n := quatNorm(s.Quat()); math.Abs(n-1) > 1e-6 {
		t.Fatalf("quaternion norm after 100 steps = %v, want ~1", n)
	}

	vel := s.Vel()
	for i, v := range vel {
		if math.Abs(v) > 1e-6 {
			t.Fatalf("velocity[%d] after 100 stationary steps = %v, want ~0", i, v)
		}
	}
	pos := s.Pos()
	for i, v := range pos {
		if math.Abs(v) > 1e-6 {
			t.Fatalf("position[%d] after 100 stationary steps = %v, want ~0", i, v)
		}
	}

	roll, pitch, _ := eulerFromQuat(s.Quat())
	if math.Abs(roll) > 1e-6 || math.Abs(pitch) > 1e-6 {
		t.Fatalf("roll/pitch after 100 stationary steps = (%v,%v), want ~0", roll, pitch)
	}
}

// Scenario B (spec.md section 8): a constant yaw rate for 2s should
// accumulate to the expected yaw change within 1%.
func TestStrapdownStepPureYawRotation(t *testing.T) {
	s := NewState()
	p := DefaultParams(VehicleCopter)
	var mem strapdownMemory

	const dt = 0.0025
	const yawRate = 0.1 // rad/s
	steps := int(2.0 / dt)

	sample := ImuSample{
		DeltaAngle:   [3]float64{0, 0, yawRate * dt},
		DeltaVelIMU1: [3]float64{0, 0, -gravityMSS * dt},
		DeltaVelIMU2: [3]float64{0, 0, -gravityMSS * dt},
		DtSec:        dt,
	}
	for i := 0; i < steps; i++ {
		mem.Step(&s, &p, 0.5, sample)
	}

	roll, pitch, yaw := eulerFromQuat(s.Quat())
	wantYaw := yawRate * 2.0
	if math.Abs(yaw-wantYaw) > 0.01*wantYaw {
		t.Fatalf("yaw after 2s at %v rad/s = %v, want %v +-1%%", yawRate, yaw, wantYaw)
	}
	if math.Abs(roll) > 0.01 || math.Abs(pitch) > 0.01 {
		t.Fatalf("roll/pitch leaked into a pure yaw rotation: roll=%v pitch=%v", roll, pitch)
	}
}

func TestStrapdownStepZeroDtDoesNotPanic(t *testing.T) {
	s := NewState()
	p := DefaultParams(VehicleCopter)
	var mem strapdownMemory
	mem.Step(&s, &p, 0.5, ImuSample{DtSec: 0})
	if n := quatNorm(s.Quat()); math.Abs(n-1) > 1e-9 {
		t.Fatalf("quaternion norm after a dt=0 step = %v, want 1", n)
	}
}

func TestClampStateBoundsQuaternionAndVelocity(t *testing.T) {
	s := NewState()
	q := s.Quat()
	q[0], q[1], q[2], q[3] = 5, -5, 2, -2
	vel := s.Vel()
	vel[0], vel[1], vel[2] = 1000, -1000, 600

	clampState(&s, 0.01)

	for _, v := range s.Quat() {
		if v > 1 || v < -1 {
			t.Fatalf("clamped quaternion component %v out of [-1,1]", v)
		}
	}
	for _, v := range s.Vel() {
		if v > 500 || v < -500 {
			t.Fatalf("clamped velocity component %v out of [-500,500]", v)
		}
	}
}

func TestVelDotNEDFiltMagStartsAtZero(t *testing.T) {
	var mem strapdownMemory
	if got := mem.velDotNEDfiltMag(); got != 0 {
		t.Fatalf("velDotNEDfiltMag on a fresh strapdownMemory = %v, want 0", got)
	}
}
