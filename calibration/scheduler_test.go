package calibration

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestSchedulerSingleFlight(t *testing.T) {
	e := newTestEngine(&sineSampler{bias: 1.65, amplitude: 0})
	s := NewScheduler(e)

	s.Start()
	assert.True(t, s.Running())
	assert.True(t, e.Store().AutoCalEnabled())

	// Starting again must not spawn a second loop.
	s.Start()
	assert.True(t, s.Running())

	s.Stop()
	assert.False(t, s.Running())
	assert.False(t, e.Store().AutoCalEnabled())

	// Stop when already stopped is a no-op.
	s.Stop()
	assert.False(t, s.Running())
}

func TestSchedulerRestarts(t *testing.T) {
	e := newTestEngine(&sineSampler{bias: 1.65, amplitude: 0})
	s := NewScheduler(e)

	s.Start()
	s.Stop()
	s.Start()
	assert.True(t, s.Running())
	assert.True(t, e.Store().AutoCalEnabled())
	s.Stop()
}

func TestShouldZeroCalibrate(t *testing.T) {
	e := newTestEngine(&sineSampler{bias: 1.65, amplitude: 0})
	s := NewScheduler(e)

	clock := time.Now()
	s.now = func() time.Time { return clock }

	// No zero readings yet.
	assert.False(t, s.shouldZeroCalibrate())

	for i := 0; i <= ConsecutiveZeroLimit; i++ {
		e.Tracker().Observe(0.0)
	}
	assert.True(t, s.shouldZeroCalibrate())

	// A recent zero calibration suppresses another one.
	e.Store().RecordZeroCal(clock)
	assert.False(t, s.shouldZeroCalibrate())

	clock = clock.Add(ZeroCalInterval + time.Minute)
	assert.True(t, s.shouldZeroCalibrate())

	e.Tracker().ResetZeros()
	assert.False(t, s.shouldZeroCalibrate())
}

func TestRunOnceZeroCalibrates(t *testing.T) {
	e := newTestEngine(&sineSampler{bias: 1.7, amplitude: 0})
	s := NewScheduler(e)

	for i := 0; i <= ConsecutiveZeroLimit; i++ {
		e.Tracker().Observe(0.0)
	}
	s.runOnce()

	assert.InDelta(t, 1.7, e.Store().BiasVoltage(), 0.001)
	assert.Equal(t, uint32(1), e.Store().Stats().AutoCalCount)
	// CalibrateZero clears the zero run.
	assert.Equal(t, uint32(0), e.Tracker().ConsecutiveZeros())
}

func TestAdjustSensitivityUp(t *testing.T) {
	e := newTestEngine(&sineSampler{bias: 1.65, amplitude: 0})
	s := NewScheduler(e)

	clock := time.Now()
	s.now = func() time.Time { return clock }

	for i := 0; i < 5; i++ {
		e.Store().RecordRecognition(true)
	}
	s.adjustSensitivity()
	assert.InDelta(t, 0.75, e.Store().Sensitivity(), 1e-9)

	// Another adjustment within the hour does nothing.
	s.adjustSensitivity()
	assert.InDelta(t, 0.75, e.Store().Sensitivity(), 1e-9)

	clock = clock.Add(2 * time.Hour)
	s.adjustSensitivity()
	assert.InDelta(t, 0.80, e.Store().Sensitivity(), 1e-9)
}

func TestAdjustSensitivityDown(t *testing.T) {
	e := newTestEngine(&sineSampler{bias: 1.65, amplitude: 0})
	s := NewScheduler(e)

	clock := time.Now()
	s.now = func() time.Time { return clock }

	for i := 0; i < 5; i++ {
		e.Store().RecordRecognition(false)
	}
	s.adjustSensitivity()
	assert.InDelta(t, 0.65, e.Store().Sensitivity(), 1e-9)
}

func TestAdjustSensitivityStableMidRange(t *testing.T) {
	e := newTestEngine(&sineSampler{bias: 1.65, amplitude: 0})
	s := NewScheduler(e)

	clock := time.Now()
	s.now = func() time.Time { return clock }

	// A middling success rate leaves the sensitivity alone.
	e.Store().RecordRecognition(true)
	e.Store().RecordRecognition(false)
	s.adjustSensitivity()
	assert.InDelta(t, DefaultSensitivity, e.Store().Sensitivity(), 1e-9)
}
