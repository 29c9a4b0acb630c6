package lasso

import (
	"fmt"
	"strings"
)

// SkewPolicy decides what happens to observed clock skews outside the staleness bound.
// A worker publishes its clock before it waits, so a peer may be seen exactly one
// clock past the bound. Both policies count that peer as at the bound.
type SkewPolicy string

const (
	// SkewClamp drops all other out of bound skews from the histogram.
	SkewClamp SkewPolicy = "clamp"
	// SkewStrict treats all other out of bound skews as a protocol violation.
	SkewStrict SkewPolicy = "strict"
)

// ParseSkewPolicy parses the name of a policy
func ParseSkewPolicy(s string) (SkewPolicy, error) {
	switch p := SkewPolicy(s); p {
	case SkewClamp, SkewStrict:
		return p, nil
	default:
		return "", configError("unknown skew policy %q, use %q or %q", s, SkewClamp, SkewStrict)
	}
}

// StalenessTracker turns the peer clocks of a shared state read into
// increments of the staleness histogram. Bucket i counts skew i - staleness.
type StalenessTracker struct {
	staleness int
	rank      int
	policy    SkewPolicy
}

// NewStalenessTracker creates a tracker for the worker with the given global rank
func NewStalenessTracker(staleness, rank int, policy SkewPolicy) (*StalenessTracker, error) {
	if staleness < 0 {
		return nil, configError("staleness must not be negative, got %d", staleness)
	}
	if policy != SkewClamp && policy != SkewStrict {
		return nil, configError("unknown skew policy %q", policy)
	}
	return &StalenessTracker{staleness: staleness, rank: rank, policy: policy}, nil
}

// NumBuckets returns the length of the histogram, 2 * staleness + 1
func (t *StalenessTracker) NumBuckets() int {
	return 2*t.staleness + 1
}

// Skew returns the skew a histogram bucket counts
func (t *StalenessTracker) Skew(bucket int) int {
	return bucket - t.staleness
}

// Observe computes the histogram increment for the published clocks of all
// workers, indexed by rank. The own slot is skipped.
func (t *StalenessTracker) Observe(clocks []float64, myClock int) ([]float64, error) {
	buckets := make([]float64, t.NumBuckets())
	for peer, c := range clocks {
		if peer == t.rank {
			continue
		}
		skew := int(c) - myClock
		if skew == t.staleness+1 {
			skew = t.staleness
		}
		if skew < -t.staleness || skew > t.staleness {
			if t.policy == SkewStrict {
				return nil, protocolError("worker %d at clock %d observed worker %d at clock %d, staleness bound %d",
					t.rank, myClock, peer, int(c), t.staleness)
			}
			continue
		}
		buckets[skew+t.staleness]++
	}
	return buckets, nil
}

// Render formats a histogram as one "skew count" line per bucket
func (t *StalenessTracker) Render(histogram []float64) string {
	var sb strings.Builder
	for i, count := range histogram {
		fmt.Fprintf(&sb, "%d %s\n", t.Skew(i), formatValue(count))
	}
	return sb.String()
}
