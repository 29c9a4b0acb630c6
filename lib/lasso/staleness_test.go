package lasso

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestObserveWithinBound(t *testing.T) {
	// rank 3 is the observer, its own slot is ignored
	tr, err := NewStalenessTracker(1, 3, SkewStrict)
	require.NoError(t, err)
	assert.Equal(t, 3, tr.NumBuckets())

	got, err := tr.Observe([]float64{3, 4, 5, 100}, 4)
	require.NoError(t, err)
	assert.Equal(t, []float64{1, 1, 1}, got)
}

func TestObserveClampsOvershoot(t *testing.T) {
	for _, policy := range []SkewPolicy{SkewClamp, SkewStrict} {
		tr, err := NewStalenessTracker(1, 0, policy)
		require.NoError(t, err)

		// the peer at 6 is one clock past the bound
		got, err := tr.Observe([]float64{4, 6, 5}, 4)
		require.NoError(t, err, "policy %s", policy)
		assert.Equal(t, []float64{0, 0, 2}, got, "policy %s", policy)
	}
}

func TestObserveOutOfBound(t *testing.T) {
	clamp, err := NewStalenessTracker(1, 0, SkewClamp)
	require.NoError(t, err)
	got, err := clamp.Observe([]float64{10, 2, 10, 7}, 10)
	require.NoError(t, err)
	assert.Equal(t, []float64{0, 1, 0}, got, "out of bound skews are dropped")

	strict, err := NewStalenessTracker(1, 0, SkewStrict)
	require.NoError(t, err)
	_, err = strict.Observe([]float64{10, 2}, 10)
	assert.True(t, IsProtocolViolation(err), "got %v", err)
	_, err = strict.Observe([]float64{10, 13}, 10)
	assert.True(t, IsProtocolViolation(err), "got %v", err)
}

func TestStalenessTrackerConfig(t *testing.T) {
	_, err := NewStalenessTracker(-1, 0, SkewClamp)
	assert.True(t, IsConfigurationError(err))
	_, err = NewStalenessTracker(0, 0, "lenient")
	assert.True(t, IsConfigurationError(err))

	p, err := ParseSkewPolicy("strict")
	require.NoError(t, err)
	assert.Equal(t, SkewStrict, p)
	_, err = ParseSkewPolicy("")
	assert.Error(t, err)
}

func TestRenderHistogram(t *testing.T) {
	tr, err := NewStalenessTracker(1, 0, SkewClamp)
	require.NoError(t, err)
	assert.Equal(t, "-1 0\n0 12\n1 3\n", tr.Render([]float64{0, 12, 3}))
}
