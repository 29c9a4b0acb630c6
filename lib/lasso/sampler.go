package lasso

// Uniform is a source of uniform draws from [0, 1).
// *rand.Rand of math/rand/v2 satisfies it.
type Uniform interface {
	Float64() float64
}

// ReservoirSampler draws subsets of feature indices without replacement.
// It is owned by a single worker and not safe for concurrent use.
type ReservoirSampler struct {
	rng Uniform
}

// NewReservoirSampler returns a sampler drawing from rng
func NewReservoirSampler(rng Uniform) *ReservoirSampler {
	return &ReservoirSampler{rng: rng}
}

// Sample returns k distinct indices of [0, n) in ascending order. Every subset
// of size k is equally likely. Sample(n, n) returns all indices without
// consuming randomness.
func (s *ReservoirSampler) Sample(n, k int) ([]int, error) {
	if n < 0 || k < 0 || k > n {
		return nil, configError("cannot sample %d of %d indices", k, n)
	}

	out := make([]int, 0, k)
	if k == n {
		for i := 0; i < n; i++ {
			out = append(out, i)
		}
		return out, nil
	}

	// selection sampling: item t is taken with probability (k-m)/(n-t),
	// the accepted indices come out ascending
	t, m := 0, 0
	for m < k {
		u := s.rng.Float64()
		if float64(n-t)*u < float64(k-m) {
			out = append(out, t)
			m++
		}
		t++
	}
	return out, nil
}

// SampleSize returns how many of n features a step updates for the given ratio.
// It is at least one and at most n.
func SampleSize(n int, ratio float64) int {
	k := int(ratio * float64(n))
	if k > n {
		k = n
	}
	if k < 1 {
		k = 1
	}
	return k
}
