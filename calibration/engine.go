package calibration

import (
	"fmt"
	"math"
	"time"

	"github.com/sct-plug/powermon/sensor"
)

// ZeroCalInterval is the minimum time between automatic calibrations of
// either kind.
const ZeroCalInterval = 30 * time.Minute

// Burst parameters for the direct sampling the engine does itself. The
// delays are fields on the engine so tests can zero them.
const (
	zeroCalSamples    = 100
	zeroCalMinValid   = 50
	zeroCalDelay      = 10 * time.Millisecond
	scaleCalSamples   = 50
	scaleCalMinValid  = 10
	scaleCalDelay     = 50 * time.Millisecond
	detectSamples     = 20
	detectDelay       = 100 * time.Millisecond
	minACVoltage      = 0.001
)

// Engine ties the calibration store, stability tracker, device recognizer
// and learning estimator to the sampler. All calibration paths, manual and
// automatic, go through it.
type Engine struct {
	sampler    sensor.Sampler
	store      *Store
	tracker    *Tracker
	recognizer *Recognizer
	learner    *Learner

	// Sampling delays, overridable in tests.
	zeroDelay   time.Duration
	scaleDelay  time.Duration
	detectPause time.Duration
}

func NewEngine(sampler sensor.Sampler) *Engine {
	e := &Engine{
		sampler:     sampler,
		store:       NewStore(),
		recognizer:  NewRecognizer(),
		learner:     NewLearner(),
		zeroDelay:   zeroCalDelay,
		scaleDelay:  scaleCalDelay,
		detectPause: detectDelay,
	}
	e.tracker = NewTracker(e)
	e.store.SetLearningPointCounter(e.learner.Count)
	return e
}

func (e *Engine) Store() *Store           { return e.store }
func (e *Engine) Tracker() *Tracker       { return e.tracker }
func (e *Engine) Recognizer() *Recognizer { return e.recognizer }
func (e *Engine) Learner() *Learner       { return e.learner }

// ProcessCurrent feeds one computed current reading into the stability
// tracker. Called from the measurement loop after every burst.
func (e *Engine) ProcessCurrent(amps float64) {
	if !e.store.AutoCalEnabled() {
		return
	}
	e.store.SetDetectedLoad(amps)
	e.tracker.Observe(amps)
}

// StableLoadDetected is the tracker's entry-of-stable-period event: try to
// recognize the device behind the load.
func (e *Engine) StableLoadDetected(mean float64) {
	e.AutoRecognizeAndCalibrate(mean)
}

// StableLoadCalibrate is the tracker's long-stable-period event. It
// calibrates against the stable mean unless a scale calibration already
// happened recently, and reports whether it did.
func (e *Engine) StableLoadCalibrate(mean float64) bool {
	if time.Since(e.store.Stats().LastScaleCal) < ZeroCalInterval {
		return false
	}
	log.Infof("Auto-calibrating with stable load: %.3fA", mean)
	if err := e.CalibrateScale(mean); err != nil {
		log.Warnf("Stable-load calibration aborted: %v", err)
		return false
	}
	e.store.IncAutoCalCount()
	// Record the observation the way it was seen, back-computed through the
	// committed scale.
	e.learner.AddPoint(mean, mean/e.store.ScaleFactor(), false)
	return true
}

// AutoRecognizeAndCalibrate classifies a stable current and, when the match
// is confident enough, calibrates against the profile's typical current.
func (e *Engine) AutoRecognizeAndCalibrate(amps float64) {
	profile, ok := e.recognizer.Recognize(amps)
	if !ok {
		return
	}
	log.Infof("Recognized device: %s (%.2fA typical)", profile.Name, profile.TypicalCurrent)

	confidence := Confidence(amps, profile, e.store.Sensitivity())
	if confidence <= RecognitionThreshold {
		log.Infof("Low confidence (%.2f), skipping auto-calibration", confidence)
		e.store.RecordRecognition(false)
		return
	}

	log.Infof("High confidence (%.2f), auto-calibrating with %.2fA", confidence, profile.TypicalCurrent)
	if err := e.CalibrateScale(profile.TypicalCurrent); err != nil {
		log.Warnf("Recognition calibration aborted: %v", err)
		e.store.RecordRecognition(false)
		return
	}
	e.store.RecordRecognition(true)
	e.learner.AddPoint(profile.TypicalCurrent, amps/e.store.ScaleFactor(), false)
}

// CalibrateZero measures the no-signal DC level over a long burst and
// commits it as the new bias voltage.
func (e *Engine) CalibrateZero() error {
	log.Info("Calibrating bias voltage...")

	sum := 0.0
	valid := 0
	for i := 0; i < zeroCalSamples; i++ {
		raw, err := e.sampler.ReadRaw()
		if err == nil {
			sum += float64(raw)
			valid++
		}
		time.Sleep(e.zeroDelay)
	}
	if valid <= zeroCalMinValid {
		return fmt.Errorf("%w: bias calibration got %d of %d", ErrInsufficientSamples, valid, zeroCalSamples)
	}

	bias := sum / float64(valid) / sensor.Resolution * sensor.VoltageRange
	e.store.SetBiasVoltage(bias)
	e.store.RecordZeroCal(time.Now())
	e.tracker.ResetZeros()
	log.Infof("Bias voltage calibrated to %.4fV from %d samples", bias, valid)
	return nil
}

// CalibrateScale computes a new scale factor from a known load: sample the
// AC voltage while the load draws knownAmps and take their ratio.
func (e *Engine) CalibrateScale(knownAmps float64) error {
	if knownAmps <= 0 || knownAmps > sensor.MaxCurrentAmps {
		return fmt.Errorf("%w: known current %.3fA", ErrInvalidRange, knownAmps)
	}
	log.Infof("Calibrating with known load: %.3fA", knownAmps)

	bias := e.store.BiasVoltage()
	sum := 0.0
	valid := 0
	for i := 0; i < scaleCalSamples; i++ {
		raw, err := e.sampler.ReadRaw()
		if err == nil {
			ac := math.Abs(sensor.RawToVolts(raw) - bias)
			if ac > minACVoltage {
				sum += ac
				valid++
			}
		}
		time.Sleep(e.scaleDelay)
	}
	if valid <= scaleCalMinValid {
		return fmt.Errorf("%w: scale calibration got %d of %d", ErrInsufficientSamples, valid, scaleCalSamples)
	}

	avgVoltage := sum / float64(valid)
	scale := knownAmps / avgVoltage
	e.store.SetScaleFactor(scale)
	e.store.RecordScaleCal(time.Now())
	e.learner.AddPoint(knownAmps, avgVoltage, true)
	log.Infof("Calibration complete: %.2f A/V (from %.4fV RMS)", scale, avgVoltage)
	return nil
}

// AutoDetect takes a quick averaged reading of the load current and feeds
// it through the auto-calibration path.
func (e *Engine) AutoDetect() (float64, error) {
	if !e.store.AutoDetectEnabled() {
		return 0, nil
	}

	bias := e.store.BiasVoltage()
	scale := e.store.ScaleFactor()
	sum := 0.0
	valid := 0
	for i := 0; i < detectSamples; i++ {
		raw, err := e.sampler.ReadRaw()
		if err == nil {
			amps := math.Abs(sensor.RawToVolts(raw)-bias) * scale
			if amps >= 0 && amps < sensor.MaxCurrentAmps {
				sum += amps
				valid++
			}
		}
		time.Sleep(e.detectPause)
	}
	if valid == 0 {
		return 0, fmt.Errorf("%w: load detection got no valid samples", ErrInsufficientSamples)
	}

	avg := sum / float64(valid)
	e.store.SetDetectedLoad(avg)
	log.Debugf("Detected load: %.3fA (from %d samples)", avg, valid)
	e.ProcessCurrent(avg)
	return avg, nil
}

// ApplyLearning folds the learner's current estimate into the scale factor.
func (e *Engine) ApplyLearning() {
	currentScale := e.store.ScaleFactor()
	learned, ok := e.learner.Estimate(currentScale, e.store.LearningRate())
	if !ok {
		return
	}
	blended := Blend(currentScale, learned)
	e.store.SetScaleFactor(blended)
	log.Infof("Applied learned calibration: %.2f -> %.2f A/V", currentScale, blended)
}

// ResetCalibration restores factory parameters and clears the learning
// data and statistics.
func (e *Engine) ResetCalibration() {
	e.store.Reset()
	e.learner.Reset()
	e.store.ResetStats()
}
