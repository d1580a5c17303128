// Package residual implements the Residual Model: a Gaussian Process that
// learns the portion of execution time Amdahl's Law cannot explain, over
// the feature vector [parallelism s, input scale gamma, cluster load].
//
// There is no Go equivalent of scikit-learn's GaussianProcessRegressor in
// the retrieval pack, so this fits the same Constant*Matern(nu=2.5)+White
// kernel directly on top of gonum/mat's Cholesky solver, the substitute the
// spec's Gaussian Process library choice explicitly allows. Hyperparameters
// (amplitude, per-dimension length scales, noise level) are fixed constants
// rather than optimized by marginal-likelihood gradient ascent — sklearn's
// n_restarts_optimizer is out of scope for a from-scratch Cholesky solver.
package residual

import (
	"math"

	"gonum.org/v1/gonum/mat"
)

const (
	amplitude = 1.0
	noiseVar  = 1.0
	jitter    = 1e-10 // alpha in sklearn's GaussianProcessRegressor, for numerical stability
)

// lengthScales mirrors sklearn's Matern(length_scale=[10, 1, 10]): s and
// cluster_load vary over a much wider range than gamma, so they get wider
// length scales.
var lengthScales = [3]float64{10, 1, 10}

// Model is a Gaussian Process fit to a task's execution history. The zero
// value is untrained and predicts all-zero residuals, matching the Python
// ResidualModel before train() is ever called.
type Model struct {
	isTrained bool

	xTrain  *mat.Dense // n x 3: [s, gamma, load]
	alpha   *mat.VecDense // n x 1, solved via Cholesky(K + noiseVar*I)
	yMean   float64
	yStd    float64
}

// IsTrained reports whether Train has been called with a non-empty history.
func (m *Model) IsTrained() bool {
	return m.isTrained
}

// Row is the subset of execution-history fields the Residual Model trains
// on; kept separate from domain.HistoryRow so this package has no
// dependency on the storage layer.
type Row struct {
	Parallelism      float64
	InputScaleFactor float64
	ClusterLoad      float64
	Residual         float64
}

// Train fits the GP on history. An empty history marks the model untrained,
// matching the Python implementation's behavior of falling back to
// zero-residual predictions rather than erroring.
func (m *Model) Train(history []Row) {
	n := len(history)
	if n == 0 {
		m.isTrained = false
		return
	}

	x := mat.NewDense(n, 3, nil)
	y := make([]float64, n)
	for i, row := range history {
		x.Set(i, 0, row.Parallelism)
		x.Set(i, 1, row.InputScaleFactor)
		x.Set(i, 2, row.ClusterLoad)
		y[i] = row.Residual
	}

	yMean, yStd := meanStd(y)
	if yStd == 0 {
		yStd = 1 // avoid divide-by-zero when every residual observed so far is identical
	}
	yNorm := make([]float64, n)
	for i, v := range y {
		yNorm[i] = (v - yMean) / yStd
	}

	k := mat.NewSymDense(n, nil)
	for i := 0; i < n; i++ {
		for j := i; j < n; j++ {
			cov := kernel(x.RawRowView(i), x.RawRowView(j))
			if i == j {
				cov += noiseVar + jitter
			}
			k.SetSym(i, j, cov)
		}
	}

	var chol mat.Cholesky
	if ok := chol.Factorize(k); !ok {
		// Ill-conditioned covariance matrix (degenerate inputs); degrade to
		// untrained rather than propagate a solver error into predict().
		m.isTrained = false
		return
	}

	alpha := mat.NewVecDense(n, nil)
	yVec := mat.NewVecDense(n, yNorm)
	if err := chol.SolveVecTo(alpha, yVec); err != nil {
		m.isTrained = false
		return
	}

	m.xTrain = x
	m.alpha = alpha
	m.yMean = yMean
	m.yStd = yStd
	m.isTrained = true
}

// Predict returns one residual estimate per candidate in sCandidates, given
// a fixed gamma and cluster load shared by every candidate. Returns all
// zeros when the model has not been trained.
func (m *Model) Predict(sCandidates []int, gamma, clusterLoad float64) []float64 {
	out := make([]float64, len(sCandidates))
	if !m.isTrained {
		return out
	}

	n, _ := m.xTrain.Dims()
	kStar := make([]float64, n)
	for i, s := range sCandidates {
		xPred := [3]float64{float64(s), gamma, clusterLoad}
		for j := 0; j < n; j++ {
			kStar[j] = kernel(xPred[:], m.xTrain.RawRowView(j))
		}
		meanNorm := mat.Dot(mat.NewVecDense(n, kStar), m.alpha)
		out[i] = meanNorm*m.yStd + m.yMean
	}
	return out
}

// kernel evaluates ConstantKernel(amplitude) * Matern(nu=2.5, lengthScales)
// between two feature vectors.
func kernel(a, b []float64) float64 {
	var sumSq float64
	for i := range a {
		d := (a[i] - b[i]) / lengthScales[i]
		sumSq += d * d
	}
	r := math.Sqrt(sumSq)

	const sqrt5 = 2.23606797749979
	matern := (1 + sqrt5*r + (5.0/3.0)*r*r) * math.Exp(-sqrt5*r)

	return amplitude * amplitude * matern
}

func meanStd(v []float64) (mean, std float64) {
	n := float64(len(v))
	for _, x := range v {
		mean += x
	}
	mean /= n

	var variance float64
	for _, x := range v {
		d := x - mean
		variance += d * d
	}
	variance /= n

	return mean, math.Sqrt(variance)
}
