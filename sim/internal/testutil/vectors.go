// Package testutil provides shared assertion helpers for the simulator's
// test packages. It has no dependency on sim/ so that in-package tests of
// sim can import it.
package testutil

import (
	"math"
	"testing"
)

// AssertFloat64Equal compares two float64 values with relative tolerance.
func AssertFloat64Equal(t *testing.T, name string, want, got, relTol float64) {
	t.Helper()
	if want == 0 && got == 0 {
		return
	}
	diff := math.Abs(want - got)
	maxVal := math.Max(math.Abs(want), math.Abs(got))
	if diff/maxVal > relTol {
		t.Errorf("%s: got %v, want %v (diff=%v, relDiff=%v)", name, got, want, diff, diff/maxVal)
	}
}

// AssertVectorClose compares two float32 vectors element-wise with an
// absolute tolerance.
func AssertVectorClose(t *testing.T, name string, want, got []float32, absTol float64) {
	t.Helper()
	if len(want) != len(got) {
		t.Errorf("%s: length %d, want %d", name, len(got), len(want))
		return
	}
	for i := range want {
		if diff := math.Abs(float64(want[i]) - float64(got[i])); diff > absTol {
			t.Errorf("%s[%d]: got %v, want %v (diff=%v)", name, i, got[i], want[i], diff)
			return
		}
	}
}

// AssertSequenceClose compares two sequences of vectors.
func AssertSequenceClose(t *testing.T, name string, want, got [][]float32, absTol float64) {
	t.Helper()
	if len(want) != len(got) {
		t.Errorf("%s: %d vectors, want %d", name, len(got), len(want))
		return
	}
	for i := range want {
		AssertVectorClose(t, name, want[i], got[i], absTol)
	}
}
