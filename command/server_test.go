package command

import (
	"net"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestServerAnswersCommands(t *testing.T) {
	s := NewServer(0, newTestDispatcher())
	assert.NoError(t, s.Start())
	defer s.Stop()

	conn, err := net.Dial("udp", s.Addr().String())
	assert.NoError(t, err)
	defer conn.Close()

	_, err = conn.Write([]byte("PING"))
	assert.NoError(t, err)

	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	buf := make([]byte, 1024)
	n, err := conn.Read(buf)
	assert.NoError(t, err)
	assert.Equal(t, "PONG:POWERMON_READY", string(buf[:n]))
}

func TestServerStartIdempotent(t *testing.T) {
	s := NewServer(0, newTestDispatcher())
	assert.NoError(t, s.Start())
	addr := s.Addr()

	// A second start keeps the existing socket.
	assert.NoError(t, s.Start())
	assert.Equal(t, addr, s.Addr())

	s.Stop()
	s.Stop()
}
