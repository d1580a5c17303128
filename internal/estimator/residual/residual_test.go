package residual

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestModel_UntrainedPredictsZero(t *testing.T) {
	var m Model
	got := m.Predict([]int{1, 2, 4, 8}, 1.0, 0.5)
	for _, v := range got {
		assert.Equal(t, 0.0, v)
	}
	assert.False(t, m.IsTrained())
}

func TestModel_EmptyHistoryStaysUntrained(t *testing.T) {
	var m Model
	m.Train(nil)
	assert.False(t, m.IsTrained())
}

func TestModel_TrainsOnHistory(t *testing.T) {
	var m Model
	m.Train([]Row{
		{Parallelism: 1, InputScaleFactor: 1.0, ClusterLoad: 0.2, Residual: 0.5},
		{Parallelism: 4, InputScaleFactor: 1.0, ClusterLoad: 0.3, Residual: -1.2},
		{Parallelism: 8, InputScaleFactor: 1.2, ClusterLoad: 0.4, Residual: 2.1},
	})
	assert.True(t, m.IsTrained())

	got := m.Predict([]int{1, 4, 8}, 1.0, 0.3)
	assert.Len(t, got, 3)
	for _, v := range got {
		assert.False(t, v != v) // not NaN
	}
}

func TestModel_PredictsNearObservedAtTrainingPoint(t *testing.T) {
	// A GP fit on repeated identical observations should predict close to
	// them at the same input: the normalized targets are all zero, so the
	// prediction falls back to the training mean.
	var m Model
	m.Train([]Row{
		{Parallelism: 4, InputScaleFactor: 1.0, ClusterLoad: 0.3, Residual: 3.0},
		{Parallelism: 4, InputScaleFactor: 1.0, ClusterLoad: 0.3, Residual: 3.0},
		{Parallelism: 4, InputScaleFactor: 1.0, ClusterLoad: 0.3, Residual: 3.0},
	})
	got := m.Predict([]int{4}, 1.0, 0.3)
	assert.InDelta(t, 3.0, got[0], 0.5)
}
