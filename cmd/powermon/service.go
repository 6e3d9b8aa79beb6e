package main

import (
	"errors"

	"github.com/godbus/dbus"
	"github.com/godbus/dbus/introspect"

	"github.com/sct-plug/powermon/calibration"
	"github.com/sct-plug/powermon/command"
	"github.com/sct-plug/powermon/measure"
	"github.com/sct-plug/powermon/relay"
)

const (
	dbusName = "io.sctplug.PowerMon"
	dbusPath = "/io/sctplug/PowerMon"
)

type service struct {
	dispatcher *command.Dispatcher
	engine     *calibration.Engine
	meter      *measure.Meter
	relay      *relay.Relay
}

func startService(d *command.Dispatcher, e *calibration.Engine, m *measure.Meter, r *relay.Relay) error {
	conn, err := dbus.SystemBus()
	if err != nil {
		return err
	}
	reply, err := conn.RequestName(dbusName, dbus.NameFlagDoNotQueue)
	if err != nil {
		return err
	}
	if reply != dbus.RequestNameReplyPrimaryOwner {
		return errors.New("name already taken")
	}

	s := &service{
		dispatcher: d,
		engine:     e,
		meter:      m,
		relay:      r,
	}
	conn.Export(s, dbusPath, dbusName)
	conn.Export(genIntrospectable(s), dbusPath, "org.freedesktop.DBus.Introspectable")
	return nil
}

func genIntrospectable(v interface{}) introspect.Introspectable {
	node := &introspect.Node{
		Interfaces: []introspect.Interface{{
			Name:    dbusName,
			Methods: introspect.Methods(v),
		}},
	}
	return introspect.NewIntrospectable(node)
}

// Current returns the most recent RMS current reading in amps.
func (s service) Current() (float64, *dbus.Error) {
	return s.meter.Measure(), nil
}

// CalStatus returns the calibration state as a status string.
func (s service) CalStatus() (string, *dbus.Error) {
	return s.engine.Store().Status(), nil
}

// ZeroCal recalibrates the sensor bias voltage. The load must be off.
func (s service) ZeroCal() *dbus.Error {
	if err := s.engine.CalibrateZero(); err != nil {
		return makeDbusError(".ZeroCal", err)
	}
	return nil
}

// ScaleCal calibrates the scale factor against a known load in amps.
func (s service) ScaleCal(knownAmps float64) *dbus.Error {
	if err := s.engine.CalibrateScale(knownAmps); err != nil {
		return makeDbusError(".ScaleCal", err)
	}
	return nil
}

// SetRelay switches the load relay on or off.
func (s service) SetRelay(on bool) *dbus.Error {
	if s.relay == nil {
		return makeDbusError(".SetRelay", errors.New("no relay attached"))
	}
	if err := s.relay.Set(on); err != nil {
		return makeDbusError(".SetRelay", err)
	}
	return nil
}

// Command runs a text command and returns its response, mirroring the
// UDP command interface.
func (s service) Command(cmd string) (string, *dbus.Error) {
	return s.dispatcher.Execute(cmd), nil
}

func makeDbusError(name string, err error) *dbus.Error {
	return &dbus.Error{
		Name: dbusName + name,
		Body: []interface{}{err.Error()},
	}
}
