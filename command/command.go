// Package command implements the text command surface the dashboard
// drives over UDP.
package command

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/sct-plug/powermon/calibration"
	"github.com/sct-plug/powermon/measure"
	"github.com/sct-plug/powermon/relay"
	"github.com/sct-plug/powermon/sensor"
)

var log = logrus.New()

// SetLogger replaces the package logger.
func SetLogger(l *logrus.Logger) {
	log = l
}

const helpText = "HELP:Commands available - RELAY_ON/OFF/TOGGLE, AUTO_CAL_ON/OFF, AUTO_DETECT, " +
	"ZERO_CAL, SCALE_CAL:X, MANUAL_CAL:bias,scale, GET_CURRENT, SCT_INFO, " +
	"SYSTEM_STATUS, LIST_DEVICES, LEARNING_STATS, RECOGNIZE_CURRENT:X, " +
	"RESET_LEARNING, APPLY_LEARNING, PING, HELP"

// Dispatcher maps command verbs onto engine, meter and relay operations.
// Execute is safe for concurrent use; every operation either succeeds
// completely or leaves state untouched.
type Dispatcher struct {
	engine    *calibration.Engine
	meter     *measure.Meter
	scheduler *calibration.Scheduler
	relay     *relay.Relay // nil when the board has no relay
	start     time.Time
}

func NewDispatcher(engine *calibration.Engine, meter *measure.Meter, scheduler *calibration.Scheduler, r *relay.Relay) *Dispatcher {
	return &Dispatcher{
		engine:    engine,
		meter:     meter,
		scheduler: scheduler,
		relay:     r,
		start:     time.Now(),
	}
}

// Execute runs one command and returns the response line. Commands are a
// verb, optionally followed by ":" and arguments.
func (d *Dispatcher) Execute(command string) string {
	command = strings.TrimSpace(command)
	verb, arg := command, ""
	if i := strings.Index(command, ":"); i >= 0 {
		verb, arg = command[:i], command[i+1:]
	}
	log.Debugf("Processing command: %s", verb)

	store := d.engine.Store()

	switch verb {
	case "ZERO_CAL", "RECALIBRATE_BIAS":
		if err := d.engine.CalibrateZero(); err != nil {
			log.Warnf("Zero calibration failed: %v", err)
			return "ZERO_CAL:ERROR,INSUFFICIENT_SAMPLES"
		}
		return fmt.Sprintf("ZERO_CAL:SUCCESS,BIAS=%.4f", store.BiasVoltage())

	case "SCALE_CAL", "CALIBRATE":
		amps, err := strconv.ParseFloat(arg, 64)
		if err != nil {
			return verb + ":ERROR,INVALID_FORMAT"
		}
		if err := d.engine.CalibrateScale(amps); err != nil {
			log.Warnf("Scale calibration failed: %v", err)
			return verb + ":ERROR,CALIBRATION_FAILED"
		}
		return fmt.Sprintf("%s:SUCCESS,SCALE=%.2f", verb, store.ScaleFactor())

	case "MANUAL_CAL":
		parts := strings.SplitN(arg, ",", 2)
		if len(parts) != 2 {
			return "MANUAL_CAL:ERROR,INVALID_FORMAT"
		}
		bias, err1 := strconv.ParseFloat(parts[0], 64)
		scale, err2 := strconv.ParseFloat(parts[1], 64)
		if err1 != nil || err2 != nil {
			return "MANUAL_CAL:ERROR,INVALID_FORMAT"
		}
		if err := store.ManualCalibrate(bias, scale); err != nil {
			return "MANUAL_CAL:ERROR,INVALID_RANGE"
		}
		return fmt.Sprintf("MANUAL_CAL:SUCCESS,BIAS=%.4f,SCALE=%.2f", bias, scale)

	case "RESET_CAL":
		d.engine.ResetCalibration()
		return fmt.Sprintf("RESET_CAL:SUCCESS,BIAS=%.4f,SCALE=%.2f", store.BiasVoltage(), store.ScaleFactor())

	case "CAL_STATUS":
		return "CAL_STATUS:" + store.Status()

	case "AUTO_CAL_STATUS":
		return "AUTO_CAL_STATUS:" + store.AutoCalStatus()

	case "AUTO_CAL_ON":
		d.scheduler.Start()
		return "AUTO_CAL_ON:SUCCESS"

	case "AUTO_CAL_OFF":
		d.scheduler.Stop()
		return "AUTO_CAL_OFF:SUCCESS"

	case "AUTO_CAL_SENSITIVITY":
		v, err := strconv.ParseFloat(arg, 64)
		if err != nil {
			return "AUTO_CAL_SENSITIVITY:ERROR,INVALID_FORMAT"
		}
		if err := store.SetSensitivity(v); err != nil {
			return "AUTO_CAL_SENSITIVITY:ERROR,INVALID_RANGE"
		}
		return fmt.Sprintf("AUTO_CAL_SENSITIVITY:SUCCESS,VALUE=%.2f", v)

	case "AUTO_CAL_LEARNING_RATE":
		v, err := strconv.ParseFloat(arg, 64)
		if err != nil {
			return "LEARNING_RATE:ERROR,INVALID_FORMAT"
		}
		if err := store.SetLearningRate(v); err != nil {
			return "LEARNING_RATE:ERROR,INVALID_RANGE"
		}
		return fmt.Sprintf("LEARNING_RATE:SUCCESS,VALUE=%.2f", v)

	case "AUTO_DETECT":
		amps, err := d.engine.AutoDetect()
		if err != nil {
			return "AUTO_DETECT:ERROR,NO_VALID_SAMPLES"
		}
		return fmt.Sprintf("AUTO_DETECT:SUCCESS,CURRENT=%.3fA", amps)

	case "AUTO_DETECT_ON":
		store.SetAutoDetectEnabled(true)
		return "AUTO_DETECT_ON:SUCCESS"

	case "AUTO_DETECT_OFF":
		store.SetAutoDetectEnabled(false)
		return "AUTO_DETECT_OFF:SUCCESS"

	case "RECOGNIZE_CURRENT":
		amps, err := strconv.ParseFloat(arg, 64)
		if err != nil {
			return "RECOGNIZE_CURRENT:ERROR,INVALID_FORMAT"
		}
		profile, ok := d.engine.Recognizer().Recognize(amps)
		if !ok {
			return "DEVICE_RECOGNIZED:NONE"
		}
		return fmt.Sprintf("DEVICE_RECOGNIZED:NAME=%s,TYPICAL=%.2fA,RANGE=%.2f-%.2fA",
			profile.Name, profile.TypicalCurrent, profile.MinCurrent, profile.MaxCurrent)

	case "LIST_DEVICES":
		return "DEVICE_LIST:" + d.engine.Recognizer().List()

	case "LEARNING_STATS":
		return fmt.Sprintf("LEARNING_STATS:POINTS=%d,RATE=%.2f,MAX_POINTS=%d",
			d.engine.Learner().Count(), store.LearningRate(), calibration.MaxLearningPoints)

	case "RESET_LEARNING":
		d.engine.Learner().Reset()
		return "RESET_LEARNING:SUCCESS"

	case "APPLY_LEARNING":
		d.engine.ApplyLearning()
		return "APPLY_LEARNING:SUCCESS"

	case "MEASUREMENT_STATS":
		return "MEASUREMENT_STATS:" + d.meter.StatusString()

	case "RESET_STATS":
		d.meter.ResetStats()
		store.ResetStats()
		return "RESET_STATS:SUCCESS"

	case "BUFFER_ANALYSIS":
		return "BUFFER_ANALYSIS:" + d.meter.Diagnostics().Analyze()

	case "GET_CURRENT":
		instant, err := d.meter.Instant()
		if err != nil {
			return "GET_CURRENT:ERROR,SENSOR_READ_FAILED"
		}
		return fmt.Sprintf("CURRENT:INSTANT=%.3fA,DETECTED=%.3fA,VRMS=%.6fV",
			instant, store.DetectedLoad(), d.meter.LastVRMS())

	case "SET_BIAS":
		v, err := strconv.ParseFloat(arg, 64)
		if err != nil {
			return "SET_BIAS:ERROR,INVALID_FORMAT"
		}
		if v < calibration.MinBiasVoltage || v > calibration.MaxBiasVoltage {
			return "SET_BIAS:ERROR,INVALID_RANGE"
		}
		store.SetBiasVoltage(v)
		return fmt.Sprintf("SET_BIAS:SUCCESS,VALUE=%.4f", v)

	case "SET_SCALE":
		v, err := strconv.ParseFloat(arg, 64)
		if err != nil {
			return "SET_SCALE:ERROR,INVALID_FORMAT"
		}
		if v < calibration.MinScaleFactor || v > calibration.MaxScaleFactor {
			return "SET_SCALE:ERROR,INVALID_RANGE"
		}
		store.SetScaleFactor(v)
		return fmt.Sprintf("SET_SCALE:SUCCESS,VALUE=%.2f", v)

	case "RELAY_ON":
		return d.setRelay("RELAY_ON", true)

	case "RELAY_OFF":
		return d.setRelay("RELAY_OFF", false)

	case "RELAY_TOGGLE":
		if d.relay == nil {
			return "RELAY_TOGGLE:ERROR,NO_RELAY"
		}
		on, err := d.relay.Toggle()
		if err != nil {
			return "RELAY_TOGGLE:ERROR,GPIO_FAILED"
		}
		state := "OFF"
		if on {
			state = "ON"
		}
		return "RELAY_TOGGLE:SUCCESS,STATE=" + state

	case "SCT_INFO":
		return fmt.Sprintf("SCT_INFO:THEORETICAL=%.1fA/V,CURRENT_SCALE=%.2fA/V,BIAS=%.4fV,BURDEN=%.1fOHM",
			sensor.TheoreticalScale, store.ScaleFactor(), store.BiasVoltage(), sensor.BurdenResistorOhms)

	case "SYSTEM_STATUS":
		onOff := func(b bool) string {
			if b {
				return "ON"
			}
			return "OFF"
		}
		return fmt.Sprintf("SYSTEM_STATUS:UPTIME=%ds,AUTO_CAL=%s,AUTO_DET=%s,CAL_COUNT=%d",
			int(time.Since(d.start).Seconds()), onOff(store.AutoCalEnabled()),
			onOff(store.AutoDetectEnabled()), store.Stats().AutoCalCount)

	case "PING":
		return "PONG:POWERMON_READY"

	case "HELP":
		return helpText

	default:
		log.Warnf("Unknown command: %s", command)
		return "ERROR:UNKNOWN_COMMAND:" + command
	}
}

func (d *Dispatcher) setRelay(verb string, on bool) string {
	if d.relay == nil {
		return verb + ":ERROR,NO_RELAY"
	}
	if err := d.relay.Set(on); err != nil {
		return verb + ":ERROR,GPIO_FAILED"
	}
	return verb + ":SUCCESS"
}
