package calibration

import (
	"errors"

	"github.com/sirupsen/logrus"
)

var log = logrus.New()

// SetLogger replaces the package logger, usually with the daemon's
// configured one.
func SetLogger(l *logrus.Logger) {
	log = l
}

var (
	// ErrInsufficientSamples means a calibration burst did not collect
	// enough valid readings. The previous calibration values are kept.
	ErrInsufficientSamples = errors.New("insufficient valid samples")

	// ErrInvalidRange means a parameter was outside its documented bounds.
	// No state is changed.
	ErrInvalidRange = errors.New("value outside valid range")
)
