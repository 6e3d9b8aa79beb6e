package calibration

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestAddPointConfidence(t *testing.T) {
	l := NewLearner()
	l.AddPoint(5.0, 0.025, true)
	l.AddPoint(3.0, 0.015, false)

	points := l.Points()
	assert.Len(t, points, 2)
	assert.Equal(t, 1.0, points[0].Confidence)
	assert.False(t, points[0].AutoGenerated)
	assert.Equal(t, 0.8, points[1].Confidence)
	assert.True(t, points[1].AutoGenerated)
}

func TestLearnerEvictsOldestWhenFull(t *testing.T) {
	l := NewLearner()
	for i := 0; i < MaxLearningPoints; i++ {
		l.AddPoint(float64(i), 0.025, true)
	}
	assert.Equal(t, MaxLearningPoints, l.Count())

	l.AddPoint(1000.0, 0.025, true)
	assert.Equal(t, MaxLearningPoints, l.Count())

	// The oldest slot now holds the newest point, the rest are untouched.
	points := l.Points()
	assert.Equal(t, 1000.0, points[0].ExpectedCurrent)
	assert.Equal(t, 1.0, points[1].ExpectedCurrent)
	assert.Equal(t, float64(MaxLearningPoints-1), points[MaxLearningPoints-1].ExpectedCurrent)
}

func TestEstimateNeedsMinimumPoints(t *testing.T) {
	l := NewLearner()
	l.AddPoint(5.0, 0.025, true)
	l.AddPoint(5.0, 0.025, true)

	_, ok := l.Estimate(200.0, 0.1)
	assert.False(t, ok)
}

func TestEstimateConsistentPoints(t *testing.T) {
	l := NewLearner()
	// Three observations all implying 200 A/V.
	for i := 0; i < 3; i++ {
		l.AddPoint(5.0, 0.025, true)
	}

	learned, ok := l.Estimate(200.0, 0.1)
	assert.True(t, ok)
	assert.InDelta(t, 200.0, learned, 1e-9)
}

func TestEstimateRejectsOutlierScale(t *testing.T) {
	l := NewLearner()
	// Points implying 500 A/V against an active scale of 200 A/V.
	for i := 0; i < 3; i++ {
		l.AddPoint(5.0, 0.01, true)
	}

	_, ok := l.Estimate(200.0, 0.1)
	assert.False(t, ok)

	// The same points are fine when the active scale is close.
	learned, ok := l.Estimate(450.0, 0.1)
	assert.True(t, ok)
	assert.InDelta(t, 500.0, learned, 1e-9)
}

func TestEstimateDecaysOldPoints(t *testing.T) {
	l := NewLearner()
	clock := time.Now()
	l.now = func() time.Time { return clock }

	// One month old observation implying 100 A/V.
	clock = clock.Add(-30 * 24 * time.Hour)
	l.AddPoint(5.0, 0.05, true)

	// Two fresh observations implying 200 A/V.
	clock = clock.Add(30 * 24 * time.Hour)
	l.AddPoint(5.0, 0.025, true)
	l.AddPoint(5.0, 0.025, true)

	learned, ok := l.Estimate(200.0, 0.1)
	assert.True(t, ok)

	// An undecayed weighting would land at 150 A/V; the aged point should
	// pull far less than the fresh ones.
	assert.Greater(t, learned, 160.0)
	assert.Less(t, learned, 200.0)
}

func TestEstimateSkipsUnusableVoltages(t *testing.T) {
	l := NewLearner()
	for i := 0; i < 3; i++ {
		l.AddPoint(5.0, 0.0, true)
	}

	_, ok := l.Estimate(200.0, 0.1)
	assert.False(t, ok)
}

func TestLearnerReset(t *testing.T) {
	l := NewLearner()
	for i := 0; i < 10; i++ {
		l.AddPoint(5.0, 0.025, true)
	}
	l.Reset()
	assert.Equal(t, 0, l.Count())
	assert.Empty(t, l.Points())
}

func TestBlend(t *testing.T) {
	assert.InDelta(t, 170.0, Blend(200.0, 100.0), 1e-9)
	assert.InDelta(t, 200.0, Blend(200.0, 200.0), 1e-9)
}
