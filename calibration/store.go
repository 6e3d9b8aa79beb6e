// Package calibration implements the measurement self-correction engine:
// the shared calibration parameters, load stability tracking, device
// recognition, the adaptive learning estimator and the background
// auto-calibration scheduler.
package calibration

import (
	"fmt"
	"sync"
	"time"

	"github.com/sct-plug/powermon/sensor"
)

// Factory defaults and accepted ranges for manually set parameters.
const (
	DefaultBiasVoltage = 1.65 // half of the 3.3V rail
	DefaultScaleFactor = sensor.TheoreticalScale

	DefaultSensitivity  = 0.7
	DefaultLearningRate = 0.1

	MinBiasVoltage = 0.1
	MaxBiasVoltage = 3.0
	MinScaleFactor = 1.0
	MaxScaleFactor = 1000.0
)

// Statistics counts auto-calibration activity since startup or the last
// reset.
type Statistics struct {
	AutoCalCount           uint32
	SuccessfulRecognitions uint32
	FailedRecognitions     uint32
	LastZeroCal            time.Time
	LastScaleCal           time.Time
}

// Store is the single source of truth for the calibration parameters and
// the auto-calibration statistics. Every mutation goes through the one
// mutex so readers never observe a torn value.
type Store struct {
	mu sync.Mutex

	biasVoltage  float64
	scaleFactor  float64
	sensitivity  float64
	learningRate float64

	autoCalEnabled    bool
	autoDetectEnabled bool
	detectedLoad      float64
	learningPoints    func() int

	stats     Statistics
	startTime time.Time
}

func NewStore() *Store {
	return &Store{
		biasVoltage:       DefaultBiasVoltage,
		scaleFactor:       DefaultScaleFactor,
		sensitivity:       DefaultSensitivity,
		learningRate:      DefaultLearningRate,
		autoCalEnabled:    true,
		autoDetectEnabled: true,
		learningPoints:    func() int { return 0 },
		startTime:         time.Now(),
	}
}

func (s *Store) BiasVoltage() float64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.biasVoltage
}

func (s *Store) SetBiasVoltage(v float64) {
	s.mu.Lock()
	s.biasVoltage = v
	s.mu.Unlock()
	log.Infof("Bias voltage set to %.4fV", v)
}

func (s *Store) ScaleFactor() float64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.scaleFactor
}

func (s *Store) SetScaleFactor(v float64) {
	s.mu.Lock()
	s.scaleFactor = v
	s.mu.Unlock()
	log.Infof("Scale factor set to %.2f A/V", v)
}

// ManualCalibrate sets both parameters at once, rejecting values outside
// the documented ranges without touching either one.
func (s *Store) ManualCalibrate(bias, scale float64) error {
	if bias < MinBiasVoltage || bias > MaxBiasVoltage {
		return fmt.Errorf("%w: bias voltage %.4f outside [%.1f, %.1f]", ErrInvalidRange, bias, MinBiasVoltage, MaxBiasVoltage)
	}
	if scale < MinScaleFactor || scale > MaxScaleFactor {
		return fmt.Errorf("%w: scale factor %.2f outside [%.1f, %.1f]", ErrInvalidRange, scale, MinScaleFactor, MaxScaleFactor)
	}
	s.mu.Lock()
	s.biasVoltage = bias
	s.scaleFactor = scale
	s.mu.Unlock()
	log.Infof("Manual calibration: bias %.4fV, scale %.2f A/V", bias, scale)
	return nil
}

func (s *Store) Sensitivity() float64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.sensitivity
}

func (s *Store) SetSensitivity(v float64) error {
	if v < 0 || v > 1 {
		return fmt.Errorf("%w: sensitivity %.2f outside [0, 1]", ErrInvalidRange, v)
	}
	s.mu.Lock()
	s.sensitivity = v
	s.mu.Unlock()
	log.Infof("Auto-calibration sensitivity set to %.2f", v)
	return nil
}

func (s *Store) LearningRate() float64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.learningRate
}

func (s *Store) SetLearningRate(v float64) error {
	if v < 0 || v > 1 {
		return fmt.Errorf("%w: learning rate %.2f outside [0, 1]", ErrInvalidRange, v)
	}
	s.mu.Lock()
	s.learningRate = v
	s.mu.Unlock()
	log.Infof("Learning rate set to %.2f", v)
	return nil
}

func (s *Store) AutoCalEnabled() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.autoCalEnabled
}

func (s *Store) SetAutoCalEnabled(enabled bool) {
	s.mu.Lock()
	s.autoCalEnabled = enabled
	s.mu.Unlock()
	if enabled {
		log.Info("Auto-calibration enabled")
	} else {
		log.Info("Auto-calibration disabled")
	}
}

func (s *Store) AutoDetectEnabled() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.autoDetectEnabled
}

func (s *Store) SetAutoDetectEnabled(enabled bool) {
	s.mu.Lock()
	s.autoDetectEnabled = enabled
	s.mu.Unlock()
	if enabled {
		log.Info("Auto-detection enabled")
	} else {
		log.Info("Auto-detection disabled")
	}
}

func (s *Store) DetectedLoad() float64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.detectedLoad
}

func (s *Store) SetDetectedLoad(amps float64) {
	s.mu.Lock()
	s.detectedLoad = amps
	s.mu.Unlock()
}

func (s *Store) Stats() Statistics {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.stats
}

func (s *Store) IncAutoCalCount() {
	s.mu.Lock()
	s.stats.AutoCalCount++
	s.mu.Unlock()
}

func (s *Store) RecordZeroCal(t time.Time) {
	s.mu.Lock()
	s.stats.LastZeroCal = t
	s.mu.Unlock()
}

func (s *Store) RecordScaleCal(t time.Time) {
	s.mu.Lock()
	s.stats.LastScaleCal = t
	s.mu.Unlock()
}

func (s *Store) RecordRecognition(ok bool) {
	s.mu.Lock()
	if ok {
		s.stats.SuccessfulRecognitions++
	} else {
		s.stats.FailedRecognitions++
	}
	s.mu.Unlock()
}

func (s *Store) ResetStats() {
	s.mu.Lock()
	s.stats = Statistics{}
	s.mu.Unlock()
	log.Info("Auto-calibration statistics reset")
}

// Reset restores the factory bias and scale. Learning data and statistics
// are cleared separately by the engine.
func (s *Store) Reset() {
	s.mu.Lock()
	s.biasVoltage = DefaultBiasVoltage
	s.scaleFactor = DefaultScaleFactor
	s.mu.Unlock()
	log.Info("Calibration reset to factory defaults")
}

// SetLearningPointCounter wires in the learner's point count so status
// strings can report it without the store importing other state.
func (s *Store) SetLearningPointCounter(f func() int) {
	s.mu.Lock()
	s.learningPoints = f
	s.mu.Unlock()
}

// Status returns the sub-encoded calibration status field used in
// telemetry and the CAL_STATUS response.
func (s *Store) Status() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	onOff := func(b bool) string {
		if b {
			return "ON"
		}
		return "OFF"
	}
	return fmt.Sprintf("BIAS_V=%.4f,SCALE=%.2f,AUTO_CAL=%s,AUTO_DET=%s,LOAD=%.3f,LEARNING_PTS=%d",
		s.biasVoltage, s.scaleFactor, onOff(s.autoCalEnabled), onOff(s.autoDetectEnabled),
		s.detectedLoad, s.learningPoints())
}

// AutoCalStatus returns the AUTO_CAL_STATUS statistics string.
func (s *Store) AutoCalStatus() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	enabled := "NO"
	if s.autoCalEnabled {
		enabled = "YES"
	}
	uptime := time.Since(s.startTime)
	return fmt.Sprintf("ENABLED=%s,COUNT=%d,UPTIME=%dh,SUCCESS=%d,FAILED=%d,LEARNING_PTS=%d,SENSITIVITY=%.2f",
		enabled, s.stats.AutoCalCount, int(uptime.Hours()),
		s.stats.SuccessfulRecognitions, s.stats.FailedRecognitions,
		s.learningPoints(), s.sensitivity)
}
