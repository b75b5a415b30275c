// Copyright (c) 2026 Daniel Alarcon Rubio / Relabs Tech
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

package ekf

// Index layout of the 22-element covaried state, per spec.md section 3.
// Kept as named constants rather than magic numbers so the covariance and
// fusion code can reference rows/columns by meaning.
const (
	IdxQ0 = iota // attitude quaternion w
	IdxQ1        // attitude quaternion x
	IdxQ2        // attitude quaternion y
	IdxQ3        // attitude quaternion z
	IdxVN        // velocity north, m/s
	IdxVE        // velocity east, m/s
	IdxVD        // velocity down, m/s
	IdxPN        // position north, m
	IdxPE        // position east, m
	IdxPD        // position down, m
	IdxGBX       // gyro bias x, rad (integrated over one step)
	IdxGBY       // gyro bias y, rad
	IdxGBZ       // gyro bias z, rad
	IdxABZ       // Z-accel bias, IMU1, m/s
	IdxWN        // wind north, m/s
	IdxWE        // wind east, m/s
	IdxMN        // earth field north, Gauss
	IdxME        // earth field east, Gauss
	IdxMD        // earth field down, Gauss
	IdxMBX       // body field x, Gauss
	IdxMBY       // body field y, Gauss
	IdxMBZ       // body field z, Gauss

	NumStates = 22
)

// State is the EKF state vector. It carries exactly one backing array,
// X, and every named accessor below returns a slice view into that same
// array rather than a copy, so the indexed numeric view (used by the
// covariance and fusion math) and the named view (used by everything
// else) can never disagree -- see DESIGN.md, Open Question 3.
type State struct {
	X [NumStates]float64

	// Auxiliary state, carried alongside but not covaried (spec.md
	// section 3): a second Z-accel bias for IMU2, and per-IMU duplicates
	// of velocity and vertical position used only by the dual-IMU
	// blending test (section 4.5.1).
	AccelZBiasIMU2 float64
	VelIMU1        [3]float64
	VelIMU2        [3]float64
	PosDIMU1       float64
	PosDIMU2       float64
}

// NewState returns a state with identity attitude and all other elements
// zero, matching the "created at estimator construction with zeroed
// state" lifecycle rule (spec.md section 3).
func NewState() State {
	var s State
	s.X[IdxQ0] = 1
	return s
}

func (s *State) Quat() []float64     { return s.X[IdxQ0 : IdxQ3+1] }
func (s *State) Vel() []float64      { return s.X[IdxVN : IdxVD+1] }
func (s *State) Pos() []float64      { return s.X[IdxPN : IdxPD+1] }
func (s *State) GyroBias() []float64 { return s.X[IdxGBX : IdxGBZ+1] }
func (s *State) Wind() []float64     { return s.X[IdxWN : IdxWE+1] }
func (s *State) EarthField() []float64 { return s.X[IdxMN : IdxMD+1] }
func (s *State) BodyField() []float64  { return s.X[IdxMBX : IdxMBZ+1] }

func (s *State) AccelZBias() float64     { return s.X[IdxABZ] }
func (s *State) SetAccelZBias(v float64) { s.X[IdxABZ] = v }

// Clone returns a value copy (arrays and struct fields copy by value in
// Go), used by the history ring buffer to snapshot the live state without
// aliasing it.
func (s State) Clone() State { return s }
