// Package relay drives the load relay through a GPIO pin.
package relay

import (
	"fmt"
	"sync"

	"periph.io/x/conn/v3/gpio"
	"periph.io/x/conn/v3/gpio/gpioreg"
)

// DefaultPin is the relay control pin on the reference board.
const DefaultPin = "GPIO27"

type Relay struct {
	mu  sync.Mutex
	pin gpio.PinIO
	on  bool
}

// Open looks up the relay pin by name and drives it low (load off).
func Open(pinName string) (*Relay, error) {
	pin := gpioreg.ByName(pinName)
	if pin == nil {
		return nil, fmt.Errorf("failed to init relay pin %s", pinName)
	}
	if err := pin.Out(gpio.Low); err != nil {
		return nil, err
	}
	return &Relay{pin: pin}, nil
}

func (r *Relay) Set(on bool) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	level := gpio.Low
	if on {
		level = gpio.High
	}
	if err := r.pin.Out(level); err != nil {
		return err
	}
	r.on = on
	return nil
}

// Toggle flips the relay and returns the new state.
func (r *Relay) Toggle() (bool, error) {
	r.mu.Lock()
	target := !r.on
	r.mu.Unlock()
	if err := r.Set(target); err != nil {
		return false, err
	}
	return target, nil
}

func (r *Relay) On() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.on
}
