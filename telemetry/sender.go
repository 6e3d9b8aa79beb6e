// Package telemetry periodically measures the load and broadcasts the
// reading as an ASCII key=value packet over UDP.
package telemetry

import (
	"fmt"
	"net"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/sct-plug/powermon/calibration"
	"github.com/sct-plug/powermon/measure"
)

var log = logrus.New()

// SetLogger replaces the package logger.
func SetLogger(l *logrus.Logger) {
	log = l
}

const (
	// DefaultPort is the dashboard's listening port.
	DefaultPort = 3333

	// DefaultInterval between telemetry packets. The measurement happens
	// inside this loop, so it is also the measurement cadence.
	DefaultInterval = 2 * time.Second

	// Assumed mains voltage for the derived power figure.
	mainsVoltage = 120.0

	logEveryNPackets = 50
)

// Sender runs the measurement/telemetry loop.
type Sender struct {
	conn     net.Conn
	meter    *measure.Meter
	engine   *calibration.Engine
	interval time.Duration

	mu      sync.Mutex
	running bool
	stop    chan struct{}
	done    chan struct{}

	seq   uint32
	start time.Time
}

// NewSender dials the UDP target. Use a broadcast address to reach a
// dashboard anywhere on the local network.
func NewSender(target string, port int, meter *measure.Meter, engine *calibration.Engine) (*Sender, error) {
	conn, err := net.Dial("udp", fmt.Sprintf("%s:%d", target, port))
	if err != nil {
		return nil, fmt.Errorf("failed to open telemetry socket: %v", err)
	}
	return &Sender{
		conn:     conn,
		meter:    meter,
		engine:   engine,
		interval: DefaultInterval,
		start:    time.Now(),
	}, nil
}

// SetInterval overrides the telemetry cadence.
func (s *Sender) SetInterval(d time.Duration) {
	s.interval = d
}

// Start launches the loop if it is not already running.
func (s *Sender) Start() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.running {
		return
	}
	s.running = true
	s.stop = make(chan struct{})
	s.done = make(chan struct{})
	go s.run(s.stop, s.done)
	log.Info("Telemetry sender started")
}

// Stop halts the loop and waits for it to exit.
func (s *Sender) Stop() {
	s.mu.Lock()
	if !s.running {
		s.mu.Unlock()
		return
	}
	stop, done := s.stop, s.done
	s.mu.Unlock()

	close(stop)
	<-done

	s.mu.Lock()
	s.running = false
	s.mu.Unlock()
	log.Info("Telemetry sender stopped")
}

func (s *Sender) run(stop, done chan struct{}) {
	defer close(done)
	for {
		amps := s.meter.Measure()
		packet := s.buildPacket(amps)
		if _, err := s.conn.Write([]byte(packet)); err != nil {
			log.Warnf("Failed to send telemetry packet: %v", err)
		} else if s.seq%logEveryNPackets == 0 {
			log.Infof("Sent packet %d: %.3fA, %.4fV RMS", s.seq, amps, s.meter.LastVRMS())
		}
		s.seq++

		select {
		case <-stop:
			return
		case <-time.After(s.interval):
		}
	}
}

func (s *Sender) buildPacket(amps float64) string {
	return BuildPacket(s.seq, time.Since(s.start), amps, s.meter.LastVRMS(),
		s.engine.Store().Status(), s.autoCalField())
}

func (s *Sender) autoCalField() string {
	if !s.engine.Store().AutoCalEnabled() {
		return ""
	}
	return s.engine.Store().AutoCalStatus()
}

// BuildPacket formats one telemetry packet. TIME is milliseconds since the
// sender started, matching the dashboard's expectations.
func BuildPacket(seq uint32, elapsed time.Duration, amps, vrms float64, calStatus, autoCal string) string {
	return fmt.Sprintf("SEQ=%d,TIME=%d,CURRENT=%.6f,VOLTAGE_RMS=%.6f,POWER=%.2f,CAL_STATUS=%s,AUTO_CAL=%s",
		seq, elapsed.Milliseconds(), amps, vrms, amps*mainsVoltage, calStatus, autoCal)
}
