package measure

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestDiagnosticRingNotReadyUntilFull(t *testing.T) {
	var r DiagnosticRing

	for i := 0; i < diagRingSize-1; i++ {
		r.Add(0.5)
	}
	assert.False(t, r.Full())
	_, ok := r.Stats()
	assert.False(t, ok)
	assert.Equal(t, "BUFFER_ANALYSIS=NOT_READY", r.Analyze())

	r.Add(0.5)
	assert.True(t, r.Full())
	_, ok = r.Stats()
	assert.True(t, ok)
}

func TestDiagnosticRingStats(t *testing.T) {
	var r DiagnosticRing
	for i := 0; i < diagRingSize; i++ {
		r.Add(0.25)
	}

	stats, ok := r.Stats()
	assert.True(t, ok)
	assert.InDelta(t, 0.25, stats.Mean, 1e-9)
	assert.InDelta(t, 0.0, stats.Variance, 1e-9)
	assert.InDelta(t, 0.25, stats.RMS, 1e-9)
	assert.Equal(t, 0.25, stats.Min)
	assert.Equal(t, 0.25, stats.Max)
}

func TestDiagnosticRingOverwritesOldest(t *testing.T) {
	var r DiagnosticRing
	for i := 0; i < diagRingSize; i++ {
		r.Add(1.0)
	}
	// Overwrite the whole ring with a new level.
	for i := 0; i < diagRingSize; i++ {
		r.Add(-1.0)
	}

	stats, ok := r.Stats()
	assert.True(t, ok)
	assert.InDelta(t, -1.0, stats.Mean, 1e-9)
	assert.InDelta(t, 1.0, stats.RMS, 1e-9)
}

func TestAnalyzeFormat(t *testing.T) {
	var r DiagnosticRing
	for i := 0; i < diagRingSize; i++ {
		r.Add(0.1)
	}
	out := r.Analyze()
	assert.Contains(t, out, "BUFFER_ANALYSIS=READY")
	assert.Contains(t, out, "MEAN=0.100000")
	assert.Contains(t, out, "RMS=0.100000")
}
