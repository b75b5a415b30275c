// Copyright (c) 2026 Daniel Alarcon Rubio / Relabs Tech
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

package ekf

import "testing"

func TestDefaultParamsGateHeightByVehicle(t *testing.T) {
	if got := DefaultParams(VehicleCopter).GateHeight; got != 10 {
		t.Fatalf("copter GateHeight = %v, want 10", got)
	}
	if got := DefaultParams(VehicleRover).GateHeight; got != 10 {
		t.Fatalf("rover GateHeight = %v, want 10", got)
	}
	if got := DefaultParams(VehiclePlane).GateHeight; got != 20 {
		t.Fatalf("plane GateHeight = %v, want 20", got)
	}
}

func TestParamsClampBoundsDelays(t *testing.T) {
	p := Params{
		DelayVelocityMs: -10,
		DelayPositionMs: 900,
		DelayHeightMs:   60,
		DelayMagMs:      501,
		DelayAirspeedMs: 500,
	}
	p.Clamp()
	if p.DelayVelocityMs != 0 {
		t.Fatalf("DelayVelocityMs = %v, want clamped to 0", p.DelayVelocityMs)
	}
	if p.DelayPositionMs != 500 {
		t.Fatalf("DelayPositionMs = %v, want clamped to 500", p.DelayPositionMs)
	}
	if p.DelayHeightMs != 60 {
		t.Fatalf("DelayHeightMs = %v, want unchanged at 60", p.DelayHeightMs)
	}
	if p.DelayMagMs != 500 {
		t.Fatalf("DelayMagMs = %v, want clamped to 500", p.DelayMagMs)
	}
	if p.DelayAirspeedMs != 500 {
		t.Fatalf("DelayAirspeedMs = %v, want unchanged at 500 (already in range)", p.DelayAirspeedMs)
	}
}

func TestGyroBiasPNoiseByVehicleAndGround(t *testing.T) {
	copter := DefaultParams(VehicleCopter)
	if got := copter.gyroBiasPNoise(false); got != copter.GyroBiasPNoiseCopter {
		t.Fatalf("copter in-air gyroBiasPNoise = %v, want %v", got, copter.GyroBiasPNoiseCopter)
	}
	if got := copter.gyroBiasPNoise(true); got != 2*copter.GyroBiasPNoiseCopter {
		t.Fatalf("copter on-ground gyroBiasPNoise = %v, want 2x %v", got, copter.GyroBiasPNoiseCopter)
	}

	plane := DefaultParams(VehiclePlane)
	if got := plane.gyroBiasPNoise(false); got != plane.GyroBiasPNoisePlane {
		t.Fatalf("plane in-air gyroBiasPNoise = %v, want %v", got, plane.GyroBiasPNoisePlane)
	}
}
