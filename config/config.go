// Package config loads the daemon configuration file.
package config

import (
	"fmt"
	"time"

	"github.com/spf13/viper"
)

const (
	DefaultConfigDir = "/etc/powermon"
	configName       = "powermon"
)

// Sampler source selection.
const (
	SourceI2C    = "i2c"
	SourceSerial = "serial"
)

type Config struct {
	// ADC source: "i2c" (ADS1115) or "serial" (sampler MCU on a UART).
	ADCSource    string
	I2CAddress   uint16
	SerialDevice string
	SerialBaud   int

	RelayPin string

	TelemetryTarget   string
	TelemetryPort     int
	TelemetryInterval time.Duration
	CommandPort       int

	AutoCal      bool
	AutoDetect   bool
	Sensitivity  float64
	LearningRate float64
}

// Read loads the configuration from dir, falling back to defaults for
// anything unset. A missing config file is not an error.
func Read(dir string) (*Config, error) {
	v := viper.New()
	v.SetConfigName(configName)
	v.SetConfigType("yaml")
	v.AddConfigPath(dir)

	v.SetDefault("adc.source", SourceI2C)
	v.SetDefault("adc.i2c-address", 0x48)
	v.SetDefault("adc.serial-device", "/dev/serial0")
	v.SetDefault("adc.serial-baud", 115200)
	v.SetDefault("relay.pin", "GPIO27")
	v.SetDefault("telemetry.target", "255.255.255.255")
	v.SetDefault("telemetry.port", 3333)
	v.SetDefault("telemetry.interval", "2s")
	v.SetDefault("command.port", 3334)
	v.SetDefault("autocal.enabled", true)
	v.SetDefault("autocal.auto-detect", true)
	v.SetDefault("autocal.sensitivity", 0.7)
	v.SetDefault("autocal.learning-rate", 0.1)

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("failed to read config: %w", err)
		}
	}

	c := &Config{
		ADCSource:         v.GetString("adc.source"),
		I2CAddress:        uint16(v.GetUint("adc.i2c-address")),
		SerialDevice:      v.GetString("adc.serial-device"),
		SerialBaud:        v.GetInt("adc.serial-baud"),
		RelayPin:          v.GetString("relay.pin"),
		TelemetryTarget:   v.GetString("telemetry.target"),
		TelemetryPort:     v.GetInt("telemetry.port"),
		TelemetryInterval: v.GetDuration("telemetry.interval"),
		CommandPort:       v.GetInt("command.port"),
		AutoCal:           v.GetBool("autocal.enabled"),
		AutoDetect:        v.GetBool("autocal.auto-detect"),
		Sensitivity:       v.GetFloat64("autocal.sensitivity"),
		LearningRate:      v.GetFloat64("autocal.learning-rate"),
	}

	if c.ADCSource != SourceI2C && c.ADCSource != SourceSerial {
		return nil, fmt.Errorf("unknown adc source %q", c.ADCSource)
	}
	return c, nil
}
