package calibration

import (
	"math"
	"sync"
	"time"
)

const (
	// MaxLearningPoints bounds the observation buffer; the oldest point is
	// overwritten once it fills.
	MaxLearningPoints = 50

	// MinLearningPoints is the minimum history before an estimate is made.
	MinLearningPoints = 3

	// confidenceDecay halves nothing outright; points just fade by this
	// factor per day of age.
	confidenceDecay = 0.95

	manualConfidence = 1.0
	autoConfidence   = 0.8

	// Estimates too far from the active scale are rejected as outliers.
	minScaleRatio = 0.5
	maxScaleRatio = 1.5

	// A committed estimate is smoothed into the active scale rather than
	// replacing it.
	blendOldWeight = 0.7
	blendNewWeight = 0.3

	minMeasuredVoltage = 0.001
	minDenominator     = 0.001
	minTotalWeight     = 0.1
)

// LearningPoint is one (expected current, measured RMS voltage)
// observation used to re-estimate the scale factor.
type LearningPoint struct {
	ExpectedCurrent float64
	MeasuredVoltage float64
	Timestamp       time.Time
	Confidence      float64
	AutoGenerated   bool
}

// Learner holds the bounded, time-decayed observation set.
type Learner struct {
	mu     sync.Mutex
	points [MaxLearningPoints]LearningPoint
	count  int
	index  int
	now    func() time.Time
}

func NewLearner() *Learner {
	return &Learner{now: time.Now}
}

// AddPoint records one observation. Manual calibrations get full
// confidence, auto-generated ones slightly less.
func (l *Learner) AddPoint(expectedCurrent, measuredVoltage float64, manual bool) {
	confidence := autoConfidence
	if manual {
		confidence = manualConfidence
	}
	p := LearningPoint{
		ExpectedCurrent: expectedCurrent,
		MeasuredVoltage: measuredVoltage,
		Timestamp:       l.now(),
		Confidence:      confidence,
		AutoGenerated:   !manual,
	}

	l.mu.Lock()
	if l.count < MaxLearningPoints {
		l.points[l.count] = p
		l.count++
	} else {
		l.points[l.index] = p
		l.index = (l.index + 1) % MaxLearningPoints
	}
	l.mu.Unlock()

	kind := "auto"
	if manual {
		kind = "manual"
	}
	log.Infof("Learning point added: %.3fA -> %.6fV (%s)", expectedCurrent, measuredVoltage, kind)
}

func (l *Learner) Count() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.count
}

// Points returns a copy of the stored observations.
func (l *Learner) Points() []LearningPoint {
	l.mu.Lock()
	defer l.mu.Unlock()
	out := make([]LearningPoint, l.count)
	copy(out, l.points[:l.count])
	return out
}

func (l *Learner) Reset() {
	l.mu.Lock()
	l.points = [MaxLearningPoints]LearningPoint{}
	l.count = 0
	l.index = 0
	l.mu.Unlock()
	log.Info("Learning data reset")
}

// Estimate computes a time-decayed weighted scale factor from the stored
// points. It reports false when there is not enough usable data or the
// estimate falls outside the accepted ratio band around currentScale.
func (l *Learner) Estimate(currentScale, learningRate float64) (float64, bool) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.count < MinLearningPoints {
		return 0, false
	}

	now := l.now()
	numerator, denominator, totalWeight := 0.0, 0.0, 0.0
	for i := 0; i < l.count; i++ {
		p := l.points[i]
		if p.MeasuredVoltage <= minMeasuredVoltage {
			continue
		}
		ageDays := now.Sub(p.Timestamp).Hours() / 24
		ageFactor := math.Pow(confidenceDecay, ageDays)
		weight := p.Confidence * ageFactor * learningRate

		numerator += p.ExpectedCurrent * weight
		denominator += p.MeasuredVoltage * weight
		totalWeight += weight
	}

	if denominator <= minDenominator || totalWeight <= minTotalWeight {
		return 0, false
	}

	learned := numerator / denominator
	if learned <= currentScale*minScaleRatio || learned >= currentScale*maxScaleRatio {
		log.Warnf("Learned scale %.2f A/V rejected (too different from current %.2f A/V)", learned, currentScale)
		return 0, false
	}
	return learned, true
}

// Blend folds a learned scale into the active one. Learning never jumps,
// only nudges.
func Blend(currentScale, learnedScale float64) float64 {
	return currentScale*blendOldWeight + learnedScale*blendNewWeight
}
