package sensor

import (
	"testing"

	"github.com/sigurn/crc8"
	"github.com/stretchr/testify/assert"
)

// framePort plays the sampler MCU end of the protocol: every request byte
// is answered with the queued frame.
type framePort struct {
	frame    []byte
	requests []byte
	offset   int
}

func (p *framePort) Write(b []byte) (int, error) {
	p.requests = append(p.requests, b...)
	p.offset = 0
	return len(b), nil
}

func (p *framePort) Read(b []byte) (int, error) {
	if p.offset >= len(p.frame) {
		return 0, nil
	}
	n := copy(b, p.frame[p.offset:])
	p.offset += n
	return n, nil
}

func (p *framePort) Close() error { return nil }

func makeFrame(value uint16) []byte {
	frame := []byte{frameHeader, byte(value >> 8), byte(value)}
	return append(frame, crc8.Checksum(frame, crcTable))
}

func TestSerialReadRaw(t *testing.T) {
	port := &framePort{frame: makeFrame(2048)}
	s := &SerialSampler{port: port}

	raw, err := s.ReadRaw()
	assert.NoError(t, err)
	assert.Equal(t, uint16(2048), raw)
	assert.Equal(t, []byte{requestByte}, port.requests)
}

func TestSerialReadRawBadHeader(t *testing.T) {
	frame := makeFrame(100)
	frame[0] = 0x5A
	s := &SerialSampler{port: &framePort{frame: frame}}

	_, err := s.ReadRaw()
	assert.ErrorContains(t, err, "bad frame header")
}

func TestSerialReadRawBadCRC(t *testing.T) {
	frame := makeFrame(100)
	frame[3] ^= 0xFF
	s := &SerialSampler{port: &framePort{frame: frame}}

	_, err := s.ReadRaw()
	assert.ErrorContains(t, err, "bad frame crc")
}

func TestSerialReadRawValueOutOfRange(t *testing.T) {
	s := &SerialSampler{port: &framePort{frame: makeFrame(4096)}}

	_, err := s.ReadRaw()
	assert.ErrorContains(t, err, "outside ADC range")
}

func TestSerialReadRawTimeout(t *testing.T) {
	// An empty response drains to a zero-byte read, which is a timeout.
	s := &SerialSampler{port: &framePort{frame: nil}}

	_, err := s.ReadRaw()
	assert.ErrorContains(t, err, "timeout")
}
