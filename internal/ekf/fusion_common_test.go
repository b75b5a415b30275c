// Copyright (c) 2026 Daniel Alarcon Rubio / Relabs Tech
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

package ekf

import (
	"math"
	"testing"
)

func TestFuseScalarReducesVariance(t *testing.T) {
	p := NewCovariance()
	s := NewState()
	before := p[IdxVN][IdxVN]

	h := hRow(IdxVN)
	res := fuseScalar(&p, &s, h, 0.2, 0.09, 5, 0.0025, nil)
	if res.Gated || res.IllConditioned {
		t.Fatalf("a small, well-conditioned innovation was rejected: %+v", res)
	}
	if p[IdxVN][IdxVN] >= before {
		t.Fatalf("fuseScalar did not reduce variance: before=%v after=%v", before, p[IdxVN][IdxVN])
	}
	if s.Vel()[0] == 0 {
		t.Fatalf("fuseScalar did not move the fused state toward the observation")
	}
}

func TestFuseScalarGatesLargeInnovation(t *testing.T) {
	p := NewCovariance()
	s := NewState()
	before := s.Vel()[0]

	h := hRow(IdxVN)
	res := fuseScalar(&p, &s, h, 1000, 0.09, 5, 0.0025, nil)
	if !res.Gated {
		t.Fatalf("fuseScalar did not gate a grossly inconsistent innovation: %+v", res)
	}
	if s.Vel()[0] != before {
		t.Fatalf("a gated fusion mutated the state: before=%v after=%v", before, s.Vel()[0])
	}
}

func TestFuseScalarInhibitsRequestedIndices(t *testing.T) {
	p := NewCovariance()
	s := NewState()
	// Couple velocity-north to wind-north so the gain on IdxWN would
	// otherwise be nonzero.
	p[IdxVN][IdxWN] = 0.5
	p[IdxWN][IdxVN] = 0.5

	h := hRow(IdxVN)
	fuseScalar(&p, &s, h, 0.2, 0.09, 5, 0.0025, []int{IdxWN, IdxWE})

	if s.Wind()[0] != 0 {
		t.Fatalf("inhibited index IdxWN was updated: Wind()[0]=%v, want 0", s.Wind()[0])
	}
}

func TestFuseScalarIllConditionedAbortsStep(t *testing.T) {
	p := NewCovariance()
	for i := 0; i < NumStates; i++ {
		p[i][i] = 0
	}
	s := NewState()
	h := hRow(IdxVN)

	res := fuseScalar(&p, &s, h, 0.2, 1.0, 5, 0.0025, nil)
	if !res.IllConditioned {
		t.Fatalf("fuseScalar with zero prior variance should be ill-conditioned: %+v", res)
	}
	if p[IdxVN][IdxVN] <= 0 {
		t.Fatalf("ill-conditioned step should bump the diagonal, got %v", p[IdxVN][IdxVN])
	}
}

// Property 2 (spec.md section 8): P stays symmetric after fuseScalar.
func TestFuseScalarKeepsCovarianceSymmetric(t *testing.T) {
	p := NewCovariance()
	s := NewState()
	for i := 0; i < NumStates; i++ {
		for j := i + 1; j < NumStates; j++ {
			p[i][j] = 0.001
			p[j][i] = 0.001
		}
	}
	fuseScalar(&p, &s, hRow(IdxPN), 0.5, 1.0, 5, 0.0025, nil)

	for i := 0; i < NumStates; i++ {
		for j := 0; j < NumStates; j++ {
			if math.Abs(p[i][j]-p[j][i]) > 1e-9 {
				t.Fatalf("P[%d][%d]=%v and P[%d][%d]=%v differ after fuseScalar", i, j, p[i][j], j, i, p[j][i])
			}
		}
	}
}
