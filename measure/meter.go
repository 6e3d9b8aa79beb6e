// Package measure converts bursts of raw ADC samples into RMS current
// readings and keeps running measurement statistics.
package measure

import (
	"fmt"
	"math"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/sct-plug/powermon/calibration"
	"github.com/sct-plug/powermon/sensor"
)

var log = logrus.New()

// SetLogger replaces the package logger.
func SetLogger(l *logrus.Logger) {
	log = l
}

const (
	// burstSize raw samples per measurement, spaced to cover several mains
	// cycles.
	burstSize          = 100
	defaultSampleDelay = 2 * time.Millisecond

	// Every this many measurements the engine takes an independent
	// auto-detection reading.
	autoDetectEvery = 50
)

// Stats are the running measurement statistics since startup or the last
// reset.
type Stats struct {
	Measurements uint64
	AvgCurrent   float64
	MinCurrent   float64
	MaxCurrent   float64
	LastVRMS     float64
}

// Meter performs RMS current measurements against the live calibration
// parameters.
type Meter struct {
	sampler sensor.Sampler
	engine  *calibration.Engine
	delay   time.Duration

	diag DiagnosticRing

	mu          sync.Mutex
	lastVRMS    float64
	count       uint64
	accumulated float64
	minCurrent  float64
	maxCurrent  float64
}

func NewMeter(sampler sensor.Sampler, engine *calibration.Engine) *Meter {
	return &Meter{
		sampler:    sampler,
		engine:     engine,
		delay:      defaultSampleDelay,
		minCurrent: math.Inf(1),
	}
}

// Measure draws one burst of raw samples, removes the bias voltage,
// computes the RMS of the AC component and converts it to amps through the
// scale factor. Failed reads drop samples; a burst with no valid samples
// returns 0 and is logged, prior calibration is unaffected.
func (m *Meter) Measure() float64 {
	bias := m.engine.Store().BiasVoltage()

	sumSquares := 0.0
	valid := 0
	for i := 0; i < burstSize; i++ {
		raw, err := m.sampler.ReadRaw()
		if err == nil {
			ac := sensor.RawToVolts(raw) - bias
			m.diag.Add(ac)
			sumSquares += ac * ac
			valid++
		}
		time.Sleep(m.delay)
	}
	if valid == 0 {
		log.Warn("No valid ADC samples obtained")
		return 0
	}

	vrms := math.Sqrt(sumSquares / float64(valid))
	amps := vrms * m.engine.Store().ScaleFactor()

	m.mu.Lock()
	m.lastVRMS = vrms
	m.count++
	m.accumulated += amps
	if amps < m.minCurrent {
		m.minCurrent = amps
	}
	if amps > m.maxCurrent {
		m.maxCurrent = amps
	}
	count := m.count
	m.mu.Unlock()

	m.engine.ProcessCurrent(amps)

	if count%autoDetectEvery == 0 && m.engine.Store().AutoDetectEnabled() {
		if _, err := m.engine.AutoDetect(); err != nil {
			log.Warnf("Auto-detection failed: %v", err)
		}
	}

	return amps
}

// Instant converts a single raw sample to amps without touching the
// statistics or the auto-calibration path.
func (m *Meter) Instant() (float64, error) {
	raw, err := m.sampler.ReadRaw()
	if err != nil {
		return 0, err
	}
	ac := math.Abs(sensor.RawToVolts(raw) - m.engine.Store().BiasVoltage())
	return ac * m.engine.Store().ScaleFactor(), nil
}

// LastVRMS returns the RMS AC voltage from the most recent burst.
func (m *Meter) LastVRMS() float64 {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.lastVRMS
}

func (m *Meter) Stats() Stats {
	m.mu.Lock()
	defer m.mu.Unlock()
	s := Stats{
		Measurements: m.count,
		MinCurrent:   m.minCurrent,
		MaxCurrent:   m.maxCurrent,
		LastVRMS:     m.lastVRMS,
	}
	if m.count > 0 {
		s.AvgCurrent = m.accumulated / float64(m.count)
	} else {
		s.MinCurrent = 0
	}
	return s
}

// StatusString formats the statistics for the MEASUREMENT_STATS response.
func (m *Meter) StatusString() string {
	s := m.Stats()
	return fmt.Sprintf("MEASUREMENTS=%d,AVG_CURRENT=%.3f,MIN_CURRENT=%.3f,MAX_CURRENT=%.3f,LAST_VRMS=%.6f",
		s.Measurements, s.AvgCurrent, s.MinCurrent, s.MaxCurrent, s.LastVRMS)
}

func (m *Meter) ResetStats() {
	m.mu.Lock()
	m.count = 0
	m.accumulated = 0
	m.minCurrent = math.Inf(1)
	m.maxCurrent = 0
	m.mu.Unlock()
	log.Info("Measurement statistics reset")
}

// Diagnostics exposes the AC sample ring for the analysis command.
func (m *Meter) Diagnostics() *DiagnosticRing {
	return &m.diag
}

// SetSampleDelay overrides the intersample delay. Used by tests and by
// configurations with faster ADCs.
func (m *Meter) SetSampleDelay(d time.Duration) {
	m.delay = d
}
