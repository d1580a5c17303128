// Package amdahl implements the pure Amdahl's-Law-with-input-scaling model:
// theoretical time, inverse inference of p and k from a single observed
// run, and exponential moving average smoothing. No type here touches I/O
// or holds state between calls.
package amdahl

import "math"

// TheoreticalTime computes T_theory(s, gamma, p, k, tBase, cStartup):
//
//	cStartup + gamma^k * ((1-p)*tBase + (p/s)*tBase)
//
// s below 1 is treated as 1 (parallelism can't go below serial).
func TheoreticalTime(cStartup, gamma, tBase, p float64, s int, k float64) float64 {
	if s < 1 {
		s = 1
	}

	scalingFactor := math.Pow(gamma, k)
	amdahlPart := (1-p)*tBase + (p/float64(s))*tBase

	return cStartup + scalingFactor*amdahlPart
}

// InferP recovers the observed parallelizable fraction p from one execution,
// relative to the serial baseline. Returns ok=false when p cannot be
// inferred (s<=1, no baseline, or non-positive expected scale).
func InferP(s float64, tActual, cStartup, tBase, gamma, k float64) (p float64, ok bool) {
	if s <= 1 || tBase <= 0 {
		return 0, false
	}

	pureComputationTime := math.Max(0.0, tActual-cStartup)

	expectedScale := math.Pow(gamma, k)
	if expectedScale <= 0 {
		return 0, false
	}

	normalizedTime := pureComputationTime / (expectedScale * tBase)

	pCalc := (s / (s - 1)) * (1 - normalizedTime)

	return clamp(pCalc, 0.01, 0.99), true
}

// InferK recovers the observed input-scaling exponent k from one execution.
// Returns ok=false when gamma is too close to 1 (no scale change to learn
// from) or the ratio of observed to theoretical time is non-positive.
func InferK(s int, tActual, cStartup, tBase, gamma, p float64) (k float64, ok bool) {
	if gamma >= 0.99 && gamma <= 1.01 {
		return 0, false
	}

	pureTime := math.Max(1e-3, tActual-cStartup)

	theoreticalBaseAtS := (1-p)*tBase + (p/float64(s))*tBase
	if theoreticalBaseAtS <= 0 {
		return 0, false
	}

	ratio := pureTime / theoreticalBaseAtS
	if ratio <= 0 {
		return 0, false
	}

	logGamma := math.Log(gamma)
	if logGamma == 0 {
		return 0, false
	}

	kCalc := math.Log(ratio) / logGamma

	return clamp(kCalc, 0.5, 3.0), true
}

// EMA blends oldVal with currentVal at rate alpha. If currentVal is absent
// (inference failed), oldVal passes through unchanged — the model simply
// doesn't move this round.
func EMA(oldVal float64, currentVal float64, ok bool, alpha float64) float64 {
	if !ok {
		return oldVal
	}
	return alpha*oldVal + (1-alpha)*currentVal
}

func clamp(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
