package calibration

import (
	"sync"
	"time"
)

const (
	// SchedulerInterval is the auto-calibration loop period; it is also
	// the worst-case latency for the loop to notice it was stopped.
	SchedulerInterval = 30 * time.Second

	// ConsecutiveZeroLimit is how many consecutive zero readings suggest
	// bias drift worth correcting.
	ConsecutiveZeroLimit = 150

	sensitivityAdjustInterval = time.Hour
	sensitivityStep           = 0.05
	sensitivityMin            = 0.3
	sensitivityMax            = 0.9
	successRateHigh           = 0.8
	successRateLow            = 0.4
)

// Scheduler runs the background auto-calibration loop: periodic zero-drift
// correction, learning application and adaptive sensitivity tuning.
//
// Start is single-flight: enabling while a loop is already running is a
// no-op, and Stop joins the running loop before returning, so two loops can
// never run against the same shared state.
type Scheduler struct {
	engine   *Engine
	interval time.Duration

	mu      sync.Mutex
	running bool
	stop    chan struct{}
	done    chan struct{}

	lastAdjust time.Time
	now        func() time.Time
}

func NewScheduler(engine *Engine) *Scheduler {
	return &Scheduler{
		engine:   engine,
		interval: SchedulerInterval,
		now:      time.Now,
	}
}

// Start enables auto-calibration and launches the loop if it is not
// already running.
func (s *Scheduler) Start() {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.engine.Store().SetAutoCalEnabled(true)
	if s.running {
		return
	}
	s.running = true
	s.stop = make(chan struct{})
	s.done = make(chan struct{})
	go s.run(s.stop, s.done)
	log.Info("Auto-calibration scheduler started")
}

// Stop disables auto-calibration and waits for the loop to exit.
func (s *Scheduler) Stop() {
	s.mu.Lock()
	if !s.running {
		s.mu.Unlock()
		s.engine.Store().SetAutoCalEnabled(false)
		return
	}
	stop, done := s.stop, s.done
	s.mu.Unlock()

	s.engine.Store().SetAutoCalEnabled(false)
	close(stop)
	<-done

	s.mu.Lock()
	s.running = false
	s.mu.Unlock()
	log.Info("Auto-calibration scheduler stopped")
}

func (s *Scheduler) Running() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.running
}

func (s *Scheduler) run(stop, done chan struct{}) {
	defer close(done)
	for {
		select {
		case <-stop:
			return
		case <-time.After(s.interval):
		}
		if !s.engine.Store().AutoCalEnabled() {
			return
		}
		s.runOnce()
	}
}

// runOnce is one scheduler iteration.
func (s *Scheduler) runOnce() {
	if s.shouldZeroCalibrate() {
		log.Info("Performing automatic zero-point recalibration")
		if err := s.engine.CalibrateZero(); err != nil {
			log.Warnf("Automatic zero calibration aborted: %v", err)
		} else {
			s.engine.Store().IncAutoCalCount()
		}
	}

	if s.engine.Learner().Count() >= MinLearningPoints {
		s.engine.ApplyLearning()
	}

	s.adjustSensitivity()
}

// shouldZeroCalibrate checks the zero-drift condition: long enough since
// the last zero calibration and a sustained run of zero readings.
func (s *Scheduler) shouldZeroCalibrate() bool {
	stats := s.engine.Store().Stats()
	if s.now().Sub(stats.LastZeroCal) <= ZeroCalInterval {
		return false
	}
	return s.engine.Tracker().ConsecutiveZeros() > ConsecutiveZeroLimit
}

// adjustSensitivity nudges the recognition sensitivity once per hour based
// on the recent recognition success rate.
func (s *Scheduler) adjustSensitivity() {
	now := s.now()
	if now.Sub(s.lastAdjust) < sensitivityAdjustInterval {
		return
	}
	s.lastAdjust = now

	store := s.engine.Store()
	stats := store.Stats()
	total := stats.SuccessfulRecognitions + stats.FailedRecognitions
	if total == 0 {
		return
	}
	rate := float64(stats.SuccessfulRecognitions) / float64(total)
	sensitivity := store.Sensitivity()

	switch {
	case rate > successRateHigh && sensitivity < sensitivityMax:
		if err := store.SetSensitivity(sensitivity + sensitivityStep); err == nil {
			log.Infof("Increased auto-cal sensitivity to %.2f (success rate %.2f)", sensitivity+sensitivityStep, rate)
		}
	case rate < successRateLow && sensitivity > sensitivityMin:
		if err := store.SetSensitivity(sensitivity - sensitivityStep); err == nil {
			log.Infof("Decreased auto-cal sensitivity to %.2f (success rate %.2f)", sensitivity-sensitivityStep, rate)
		}
	}
}
