package main

import (
	"fmt"
	"runtime"
	"strings"

	arg "github.com/alexflint/go-arg"
	"github.com/sirupsen/logrus"
	"periph.io/x/conn/v3/i2c/i2creg"
	"periph.io/x/host/v3"

	"github.com/sct-plug/powermon/calibration"
	"github.com/sct-plug/powermon/command"
	"github.com/sct-plug/powermon/config"
	"github.com/sct-plug/powermon/measure"
	"github.com/sct-plug/powermon/relay"
	"github.com/sct-plug/powermon/sensor"
	"github.com/sct-plug/powermon/telemetry"
)

var version = "<not set>"

var log = logrus.New()

type Args struct {
	ConfigDir string `arg:"-c,--config" help:"configuration folder"`
	NoRelay   bool   `arg:"--no-relay" help:"run without a relay attached"`
	LogLevel  string `arg:"-l,--log-level" default:"info" help:"Set the logging level (debug, info, warn, error)"`
}

func (Args) Version() string {
	return version
}

func procArgs() Args {
	args := Args{
		ConfigDir: config.DefaultConfigDir,
	}
	arg.MustParse(&args)
	return args
}

func setLogLevel(level string) {
	switch level {
	case "debug":
		log.SetLevel(logrus.DebugLevel)
	case "info":
		log.SetLevel(logrus.InfoLevel)
	case "warn":
		log.SetLevel(logrus.WarnLevel)
	case "error":
		log.SetLevel(logrus.ErrorLevel)
	default:
		log.SetLevel(logrus.InfoLevel)
		log.Warn("Unknown log level, defaulting to info")
	}
}

type customFormatter struct{}

func (f *customFormatter) Format(entry *logrus.Entry) ([]byte, error) {
	return []byte(fmt.Sprintf("[%s] %s\n", strings.ToUpper(entry.Level.String()), entry.Message)), nil
}

func main() {
	err := runMain()
	if err != nil {
		log.Fatal(err.Error())
	}
	// Keep the background loops running.
	runtime.Goexit()
}

func runMain() error {
	log.SetFormatter(new(customFormatter))
	args := procArgs()
	setLogLevel(args.LogLevel)

	// Library packages share the daemon logger.
	calibration.SetLogger(log)
	measure.SetLogger(log)
	telemetry.SetLogger(log)
	command.SetLogger(log)

	log.Info("Running version: ", version)

	conf, err := config.Read(args.ConfigDir)
	if err != nil {
		return err
	}

	if _, err := host.Init(); err != nil {
		return err
	}

	sampler, err := openSampler(conf)
	if err != nil {
		return err
	}

	var r *relay.Relay
	if args.NoRelay {
		log.Info("Running without relay")
	} else {
		r, err = relay.Open(conf.RelayPin)
		if err != nil {
			return err
		}
	}

	engine := calibration.NewEngine(sampler)
	store := engine.Store()
	store.SetAutoDetectEnabled(conf.AutoDetect)
	if err := store.SetSensitivity(conf.Sensitivity); err != nil {
		return err
	}
	if err := store.SetLearningRate(conf.LearningRate); err != nil {
		return err
	}

	// Startup zero-point calibration. Failure is not fatal, the factory
	// bias stays in effect until the scheduler corrects it.
	log.Info("Performing startup zero-point calibration...")
	if err := engine.CalibrateZero(); err != nil {
		log.Warnf("Startup bias calibration failed: %v", err)
	}
	log.Infof("Bias voltage: %.4fV, scale factor: %.1f A/V", store.BiasVoltage(), store.ScaleFactor())

	scheduler := calibration.NewScheduler(engine)
	if conf.AutoCal {
		scheduler.Start()
	} else {
		store.SetAutoCalEnabled(false)
	}

	meter := measure.NewMeter(sampler, engine)

	sender, err := telemetry.NewSender(conf.TelemetryTarget, conf.TelemetryPort, meter, engine)
	if err != nil {
		return err
	}
	sender.SetInterval(conf.TelemetryInterval)
	sender.Start()

	dispatcher := command.NewDispatcher(engine, meter, scheduler, r)
	server := command.NewServer(conf.CommandPort, dispatcher)
	if err := server.Start(); err != nil {
		return err
	}

	if err := startService(dispatcher, engine, meter, r); err != nil {
		return err
	}

	log.Info("Power monitor ready")
	return nil
}

func openSampler(conf *config.Config) (sensor.Sampler, error) {
	switch conf.ADCSource {
	case config.SourceSerial:
		log.Infof("Opening serial sampler on %s", conf.SerialDevice)
		return sensor.OpenSerialSampler(conf.SerialDevice, conf.SerialBaud)
	default:
		log.Info("Connecting to ADC on i2c bus")
		bus, err := i2creg.Open("")
		if err != nil {
			return nil, err
		}
		return sensor.ConnectADS1115(bus, conf.I2CAddress)
	}
}
