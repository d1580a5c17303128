package amdahl

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestTheoreticalTime_SerialFloor(t *testing.T) {
	// s<1 behaves exactly as s=1.
	got0 := TheoreticalTime(6.0, 1.0, 100.0, 0.7, 0, 1.0)
	got1 := TheoreticalTime(6.0, 1.0, 100.0, 0.7, 1, 1.0)
	assert.Equal(t, got1, got0)
}

func TestTheoreticalTime_FullyParallel(t *testing.T) {
	// p=1, gamma=1: T = c_startup + t_base/s.
	got := TheoreticalTime(6.0, 1.0, 100.0, 1.0, 4, 1.0)
	assert.InDelta(t, 6.0+25.0, got, 1e-9)
}

func TestTheoreticalTime_FullySerial(t *testing.T) {
	// p=0: parallelism has no effect.
	got1 := TheoreticalTime(6.0, 1.0, 100.0, 0.0, 1, 1.0)
	got8 := TheoreticalTime(6.0, 1.0, 100.0, 0.0, 8, 1.0)
	assert.InDelta(t, got1, got8, 1e-9)
}

func TestInferP_RoundTrip(t *testing.T) {
	const cStartup, tBase, gamma, k = 6.0, 100.0, 1.0, 1.0
	for _, wantP := range []float64{0.3, 0.5, 0.7, 0.9} {
		s := 4
		tActual := TheoreticalTime(cStartup, gamma, tBase, wantP, s, k)
		gotP, ok := InferP(float64(s), tActual, cStartup, tBase, gamma, k)
		assert.True(t, ok)
		assert.InDelta(t, wantP, gotP, 1e-6)
	}
}

func TestInferP_UndefinedWhenSerial(t *testing.T) {
	_, ok := InferP(1, 50.0, 6.0, 100.0, 1.0, 1.0)
	assert.False(t, ok)
}

func TestInferP_UndefinedWhenNoBaseline(t *testing.T) {
	_, ok := InferP(4, 50.0, 6.0, 0, 1.0, 1.0)
	assert.False(t, ok)
}

func TestInferP_ClampsToRange(t *testing.T) {
	// A pathologically fast run would imply p>0.99; must clamp.
	p, ok := InferP(4, 0.0, 6.0, 100.0, 1.0, 1.0)
	assert.True(t, ok)
	assert.LessOrEqual(t, p, 0.99)
	assert.GreaterOrEqual(t, p, 0.01)
}

func TestInferK_RoundTrip(t *testing.T) {
	const cStartup, tBase, p, s = 6.0, 100.0, 0.7, 4
	for _, wantK := range []float64{0.8, 1.0, 1.5, 2.0} {
		gamma := 2.0
		tActual := TheoreticalTime(cStartup, gamma, tBase, p, s, wantK)
		gotK, ok := InferK(s, tActual, cStartup, tBase, gamma, p)
		assert.True(t, ok)
		assert.InDelta(t, wantK, gotK, 1e-6)
	}
}

func TestInferK_UndefinedWhenGammaNearOne(t *testing.T) {
	_, ok := InferK(4, 50.0, 6.0, 100.0, 1.0, 0.7)
	assert.False(t, ok)
}

func TestInferK_ClampsToRange(t *testing.T) {
	// ratio = (100000-6)/47.5 ≈ 2105, so log(ratio)/log(10) ≈ 3.32 before clamping.
	k, ok := InferK(4, 100000.0, 6.0, 100.0, 10.0, 0.7)
	assert.True(t, ok)
	assert.LessOrEqual(t, k, 3.0)
	assert.GreaterOrEqual(t, k, 0.5)
}

func TestEMA_BlendsAtAlpha(t *testing.T) {
	got := EMA(10.0, 20.0, true, 0.8)
	assert.InDelta(t, 0.8*10.0+0.2*20.0, got, 1e-9)
}

func TestEMA_PassesThroughWhenUndefined(t *testing.T) {
	got := EMA(10.0, 0.0, false, 0.8)
	assert.Equal(t, 10.0, got)
}

func TestEMA_Idempotent(t *testing.T) {
	// Feeding the current value back in should not move the average.
	got := EMA(42.0, 42.0, true, 0.5)
	assert.True(t, math.Abs(got-42.0) < 1e-9)
}

// TestScenarioD_EMAArithmetic reproduces spec scenario D exactly: p=0.5,
// alpha_p=0.5, t_base=100, c_startup=0, a single s=2 run at t_actual=60
// should infer p=0.8 and update p_obs to 0.65.
func TestScenarioD_EMAArithmetic(t *testing.T) {
	const cStartup, tBase, gamma, k = 0.0, 100.0, 1.0, 1.0
	const priorP, alphaP = 0.5, 0.5

	pCur, ok := InferP(2, 60.0, cStartup, tBase, gamma, k)
	assert.True(t, ok)
	assert.InDelta(t, 0.8, pCur, 1e-9)

	newP := EMA(priorP, pCur, ok, alphaP)
	assert.InDelta(t, 0.65, newP, 1e-9)
}
