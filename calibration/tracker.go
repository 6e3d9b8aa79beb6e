package calibration

import (
	"sync"
	"time"
)

const (
	historySize = 50

	// A window classifies as a stable load when its variance is below this
	// and its mean sits in the calibration-worthy current band.
	varianceThreshold = 0.1
	minStableCurrent  = 0.5
	maxStableCurrent  = 15.0

	// Readings below this count as zero current.
	ZeroThreshold = 0.05

	// DeviceStableTime is how long a load must stay stable before it is
	// trusted for an automatic scale calibration.
	DeviceStableTime = 3 * time.Minute
)

// StableHandler receives stability events from the tracker.
//
// StableLoadCalibrate reports whether a calibration was actually performed;
// the tracker keeps the stable period active until one is, so a run that is
// too soon after the previous scale calibration can still calibrate later.
type StableHandler interface {
	StableLoadDetected(mean float64)
	StableLoadCalibrate(mean float64) bool
}

type stablePeriod struct {
	start  time.Time
	value  float64
	active bool
}

// Tracker maintains the bounded history of recent current readings and
// detects stable-load periods. It is fed from the measurement loop and read
// by the scheduler, so its state is mutex guarded.
type Tracker struct {
	mu               sync.Mutex
	history          [historySize]float64
	index            int
	full             bool
	consecutiveZeros uint32
	period           stablePeriod

	handler StableHandler
	now     func() time.Time
}

func NewTracker(handler StableHandler) *Tracker {
	return &Tracker{
		handler: handler,
		now:     time.Now,
	}
}

// Observe appends one current reading and runs the stability state machine.
func (t *Tracker) Observe(amps float64) {
	t.mu.Lock()

	t.history[t.index] = amps
	t.index = (t.index + 1) % historySize
	if t.index == 0 {
		t.full = true
	}

	if amps < ZeroThreshold {
		t.consecutiveZeros++
		t.mu.Unlock()
		return
	}
	t.consecutiveZeros = 0

	if !t.full {
		t.mu.Unlock()
		return
	}

	mean, variance := t.meanVariance()
	stable := variance < varianceThreshold && mean >= minStableCurrent && mean <= maxStableCurrent

	switch {
	case stable && !t.period.active:
		t.period = stablePeriod{start: t.now(), value: mean, active: true}
		log.Infof("Stable load detected: %.3fA (variance %.4f)", mean, variance)
		t.mu.Unlock()
		t.handler.StableLoadDetected(mean)
		return

	case stable && t.period.active:
		if t.now().Sub(t.period.start) > DeviceStableTime {
			value := mean
			t.mu.Unlock()
			// Deactivate only once a calibration happened, so a stable run
			// blocked by the minimum calibration interval can retry.
			if t.handler.StableLoadCalibrate(value) {
				t.mu.Lock()
				t.period.active = false
				t.mu.Unlock()
			}
			return
		}

	case !stable:
		t.period.active = false
	}
	t.mu.Unlock()
}

// meanVariance computes population mean and variance over the full window.
// Caller must hold the mutex.
func (t *Tracker) meanVariance() (float64, float64) {
	mean := 0.0
	for _, v := range t.history {
		mean += v
	}
	mean /= historySize

	variance := 0.0
	for _, v := range t.history {
		d := v - mean
		variance += d * d
	}
	variance /= historySize
	return mean, variance
}

// Snapshot returns the current window statistics. The values are only
// meaningful once the window has filled at least once.
func (t *Tracker) Snapshot() (mean, variance float64, full bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if !t.full {
		return 0, 0, false
	}
	mean, variance = t.meanVariance()
	return mean, variance, true
}

func (t *Tracker) ConsecutiveZeros() uint32 {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.consecutiveZeros
}

func (t *Tracker) ResetZeros() {
	t.mu.Lock()
	t.consecutiveZeros = 0
	t.mu.Unlock()
}

// StableActive reports whether a stable period is currently being tracked.
func (t *Tracker) StableActive() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.period.active
}
