package sensor

import (
	"fmt"
	"io"
	"sync"
	"time"

	"github.com/sigurn/crc8"
	"github.com/tarm/serial"
)

const (
	DefaultSerialDevice = "/dev/serial0"
	DefaultSerialBaud   = 115200

	frameHeader       = 0xA5
	requestByte       = 0x52 // 'R'
	frameLength       = 4    // header, value high, value low, crc
	serialReadTimeout = time.Second
)

var crcTable = crc8.MakeTable(crc8.Params{
	Poly:   0x31,
	Init:   0xFF,
	RefIn:  false,
	RefOut: false,
	XorOut: 0x00,
})

// SerialSampler reads ADC values from a sampler MCU on a serial port. Each
// request returns a 4 byte frame: header, 12-bit value big endian, CRC-8
// over the first three bytes.
type SerialSampler struct {
	mu   sync.Mutex
	port io.ReadWriteCloser
}

func OpenSerialSampler(device string, baud int) (*SerialSampler, error) {
	c := &serial.Config{Name: device, Baud: baud, ReadTimeout: serialReadTimeout}
	port, err := serial.OpenPort(c)
	if err != nil {
		return nil, fmt.Errorf("failed to open sampler serial port %s: %v", device, err)
	}
	return &SerialSampler{port: port}, nil
}

func (s *SerialSampler) ReadRaw() (uint16, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	n, err := s.port.Write([]byte{requestByte})
	if err != nil {
		return 0, err
	}
	if n != 1 {
		return 0, fmt.Errorf("wrote %d bytes, expected 1", n)
	}

	frame := make([]byte, frameLength)
	read := 0
	for read < frameLength {
		n, err := s.port.Read(frame[read:])
		if err != nil {
			return 0, err
		}
		if n == 0 {
			return 0, fmt.Errorf("timeout reading sample frame, got %d of %d bytes", read, frameLength)
		}
		read += n
	}

	if frame[0] != frameHeader {
		return 0, fmt.Errorf("bad frame header 0x%02X", frame[0])
	}
	if crc := crc8.Checksum(frame[:3], crcTable); crc != frame[3] {
		return 0, fmt.Errorf("bad frame crc, got 0x%02X expected 0x%02X", frame[3], crc)
	}

	val := uint16(frame[1])<<8 | uint16(frame[2])
	if float64(val) > Resolution {
		return 0, fmt.Errorf("sample value %d outside ADC range", val)
	}
	return val, nil
}

func (s *SerialSampler) Close() error {
	return s.port.Close()
}
