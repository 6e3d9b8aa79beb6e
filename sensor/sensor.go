// Package sensor provides access to the current-transformer ADC channel.
// All sampler implementations return one raw 12-bit-range reading per call.
package sensor

// ADC characteristics. The burden circuit sits on a 3.3V rail with the
// AC signal biased to roughly half rail.
const (
	Resolution   = 4095.0
	VoltageRange = 3.3

	// MaxCurrentAmps is the hard ceiling for a plausible reading. Anything
	// above this is treated as noise and discarded.
	MaxCurrentAmps = 100.0
)

// SCT-013-000 characteristics with a 10 ohm burden resistor.
const (
	BurdenResistorOhms   = 10.0
	TransformationRatio  = 2000.0
	MaxSecondaryCurrentA = 0.05
	MaxSecondaryVoltageV = 0.5 // 50mA * 10 ohm

	// TheoreticalScale is the A/V conversion the sensor should show before
	// any calibration: 100A primary / 0.5V RMS secondary.
	TheoreticalScale = 200.0
)

// Sampler reads one raw ADC value per call.
type Sampler interface {
	ReadRaw() (uint16, error)
}

// RawToVolts converts a raw ADC reading to the voltage at the input pin.
func RawToVolts(raw uint16) float64 {
	return float64(raw) / Resolution * VoltageRange
}
