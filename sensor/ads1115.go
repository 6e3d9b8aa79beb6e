package sensor

import (
	"fmt"
	"sync"
	"time"

	"periph.io/x/conn/v3/i2c"
)

const (
	DefaultADS1115Address = 0x48

	conversionReg = 0x00
	configReg     = 0x01

	// Single-shot conversion on AIN0/GND, FSR 4.096V, 860 SPS, comparator
	// disabled. The OS bit (0x8000) starts a conversion when written and
	// reads back 1 when the conversion is done.
	configSingleShot = 0x43E3
	configStartOS    = 0x8000

	ads1115FSRVolts = 4.096

	maxConversionWaits     = 10
	conversionWaitInterval = 500 * time.Microsecond
)

// ADS1115 reads the current-transformer channel from an ADS1115 ADC on the
// I2C bus.
type ADS1115 struct {
	mu  sync.Mutex
	dev *i2c.Dev
}

// ConnectADS1115 connects to an ADS1115 on the given bus and verifies that a
// device at that address answers with a sane config register.
func ConnectADS1115(bus i2c.Bus, addr uint16) (*ADS1115, error) {
	if err := bus.Tx(addr, nil, nil); err != nil {
		return nil, fmt.Errorf("failed to find ADC on i2c bus at 0x%X: %v", addr, err)
	}
	a := &ADS1115{dev: &i2c.Dev{Bus: bus, Addr: addr}}
	if err := a.writeConfig(configSingleShot); err != nil {
		return nil, err
	}
	cfg, err := a.readRegister(configReg)
	if err != nil {
		return nil, err
	}
	// Mask the OS bit, it flips on its own.
	if cfg&^configStartOS != configSingleShot {
		return nil, fmt.Errorf("ADC config readback was 0x%04X, expected 0x%04X", cfg&^configStartOS, configSingleShot)
	}
	return a, nil
}

// ReadRaw triggers a single-shot conversion and returns the result scaled to
// the 12-bit range the engine works in.
func (a *ADS1115) ReadRaw() (uint16, error) {
	a.mu.Lock()
	defer a.mu.Unlock()

	if err := a.writeConfig(configSingleShot | configStartOS); err != nil {
		return 0, err
	}
	ready := false
	for i := 0; i < maxConversionWaits; i++ {
		cfg, err := a.readRegister(configReg)
		if err != nil {
			return 0, err
		}
		if cfg&configStartOS != 0 {
			ready = true
			break
		}
		time.Sleep(conversionWaitInterval)
	}
	if !ready {
		return 0, fmt.Errorf("ADC conversion did not complete")
	}
	val, err := a.readRegister(conversionReg)
	if err != nil {
		return 0, err
	}
	// The ADS1115 returns a signed 16-bit value over the 4.096V FSR. Map it
	// onto the unipolar 12-bit range the rest of the system expects.
	volts := float64(int16(val)) / 32768.0 * ads1115FSRVolts
	if volts < 0 {
		volts = 0
	}
	if volts > VoltageRange {
		volts = VoltageRange
	}
	return uint16(volts / VoltageRange * Resolution), nil
}

func (a *ADS1115) readRegister(reg byte) (uint16, error) {
	data := make([]byte, 2)
	if err := a.dev.Tx([]byte{reg}, data); err != nil {
		return 0, err
	}
	return uint16(data[0])<<8 | uint16(data[1]), nil
}

func (a *ADS1115) writeConfig(cfg uint16) error {
	_, err := a.dev.Write([]byte{configReg, byte(cfg >> 8), byte(cfg)})
	return err
}
