package measure

import (
	"fmt"
	"math"
	"sync"
)

// diagRingSize is how many AC voltage samples are retained for offline
// analysis.
const diagRingSize = 100

// DiagnosticRing keeps the most recent AC voltage samples from measurement
// bursts. Oldest samples are overwritten once it fills.
type DiagnosticRing struct {
	mu      sync.Mutex
	samples [diagRingSize]float64
	index   int
	full    bool
}

func (r *DiagnosticRing) Add(v float64) {
	r.mu.Lock()
	r.samples[r.index] = v
	r.index = (r.index + 1) % diagRingSize
	if r.index == 0 {
		r.full = true
	}
	r.mu.Unlock()
}

func (r *DiagnosticRing) Full() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.full
}

// RingStats summarises the buffered samples.
type RingStats struct {
	Mean     float64
	Variance float64
	StdDev   float64
	RMS      float64
	Min      float64
	Max      float64
}

// Stats computes statistics over the whole ring. It reports false until
// the ring has filled at least once.
func (r *DiagnosticRing) Stats() (RingStats, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if !r.full {
		return RingStats{}, false
	}

	sum, sumSquares := 0.0, 0.0
	min, max := math.Inf(1), math.Inf(-1)
	for _, v := range r.samples {
		sum += v
		sumSquares += v * v
		if v < min {
			min = v
		}
		if v > max {
			max = v
		}
	}
	mean := sum / diagRingSize
	variance := sumSquares/diagRingSize - mean*mean
	return RingStats{
		Mean:     mean,
		Variance: variance,
		StdDev:   math.Sqrt(variance),
		RMS:      math.Sqrt(sumSquares / diagRingSize),
		Min:      min,
		Max:      max,
	}, true
}

// Analyze formats the ring statistics for the BUFFER_ANALYSIS response.
func (r *DiagnosticRing) Analyze() string {
	stats, ok := r.Stats()
	if !ok {
		return "BUFFER_ANALYSIS=NOT_READY"
	}
	return fmt.Sprintf("BUFFER_ANALYSIS=READY,MEAN=%.6f,STD_DEV=%.6f,RMS=%.6f,MIN=%.6f,MAX=%.6f,VARIANCE=%.8f",
		stats.Mean, stats.StdDev, stats.RMS, stats.Min, stats.Max, stats.Variance)
}
