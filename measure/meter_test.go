package measure

import (
	"errors"
	"math"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/sct-plug/powermon/calibration"
	"github.com/sct-plug/powermon/sensor"
)

// sineSampler feeds a sine of the given amplitude around the bias level,
// offset half a sample to stay clear of the zero crossings.
type sineSampler struct {
	bias      float64
	amplitude float64
	i         int
}

func (s *sineSampler) ReadRaw() (uint16, error) {
	v := s.bias + s.amplitude*math.Sin(2*math.Pi*(float64(s.i)+0.5)/20)
	s.i++
	return uint16(math.Round(v / sensor.VoltageRange * sensor.Resolution)), nil
}

type failingSampler struct{}

func (failingSampler) ReadRaw() (uint16, error) {
	return 0, errors.New("read failed")
}

func newTestMeter(sampler sensor.Sampler) *Meter {
	engine := calibration.NewEngine(sampler)
	m := NewMeter(sampler, engine)
	m.SetSampleDelay(0)
	return m
}

func TestMeasureRMS(t *testing.T) {
	amplitude := 0.5
	m := newTestMeter(&sineSampler{bias: 1.65, amplitude: amplitude})
	m.engine.Store().SetBiasVoltage(1.65)

	amps := m.Measure()

	// RMS of a sine is A/sqrt(2); default scale is 200 A/V.
	expected := amplitude / math.Sqrt2 * 200.0
	assert.InDelta(t, expected, amps, expected*0.02)
	assert.InDelta(t, amplitude/math.Sqrt2, m.LastVRMS(), amplitude*0.02)
}

func TestMeasureScalesWithCalibration(t *testing.T) {
	m := newTestMeter(&sineSampler{bias: 1.65, amplitude: 0.1})
	m.engine.Store().SetBiasVoltage(1.65)

	first := m.Measure()
	m.engine.Store().SetScaleFactor(400.0)
	second := m.Measure()

	assert.InDelta(t, first*2, second, first*0.05)
}

func TestMeasureWithNoValidSamples(t *testing.T) {
	m := newTestMeter(failingSampler{})

	assert.Equal(t, 0.0, m.Measure())
	assert.Equal(t, uint64(0), m.Stats().Measurements)
}

func TestStatsAccumulate(t *testing.T) {
	m := newTestMeter(&sineSampler{bias: 1.65, amplitude: 0.1})
	m.engine.Store().SetBiasVoltage(1.65)

	a := m.Measure()
	b := m.Measure()

	stats := m.Stats()
	assert.Equal(t, uint64(2), stats.Measurements)
	assert.InDelta(t, (a+b)/2, stats.AvgCurrent, 1e-9)
	assert.LessOrEqual(t, stats.MinCurrent, stats.MaxCurrent)

	m.ResetStats()
	stats = m.Stats()
	assert.Equal(t, uint64(0), stats.Measurements)
	assert.Equal(t, 0.0, stats.AvgCurrent)
	assert.Equal(t, 0.0, stats.MinCurrent)
}

func TestInstant(t *testing.T) {
	m := newTestMeter(&sineSampler{bias: 1.65, amplitude: 0.1})
	m.engine.Store().SetBiasVoltage(1.65)

	amps, err := m.Instant()
	assert.NoError(t, err)
	assert.GreaterOrEqual(t, amps, 0.0)

	m = newTestMeter(failingSampler{})
	_, err = m.Instant()
	assert.Error(t, err)
}

func TestStatusStringFormat(t *testing.T) {
	m := newTestMeter(&sineSampler{bias: 1.65, amplitude: 0.1})
	m.Measure()

	s := m.StatusString()
	assert.Contains(t, s, "MEASUREMENTS=1")
	assert.Contains(t, s, "AVG_CURRENT=")
	assert.Contains(t, s, "LAST_VRMS=")
}

func TestMeasureFillsDiagnostics(t *testing.T) {
	m := newTestMeter(&sineSampler{bias: 1.65, amplitude: 0.1})
	m.engine.Store().SetBiasVoltage(1.65)

	assert.False(t, m.Diagnostics().Full())
	m.Measure()
	assert.True(t, m.Diagnostics().Full())

	stats, ok := m.Diagnostics().Stats()
	assert.True(t, ok)
	assert.InDelta(t, 0.0, stats.Mean, 0.005)
	assert.InDelta(t, 0.1/math.Sqrt2, stats.RMS, 0.005)
}
