package command

import (
	"fmt"
	"net"
	"sync"
)

// DefaultPort is the command listening port.
const DefaultPort = 3334

// Server receives command datagrams and answers each with the dispatcher's
// response.
type Server struct {
	dispatcher *Dispatcher
	port       int

	mu      sync.Mutex
	conn    *net.UDPConn
	running bool
	done    chan struct{}
}

func NewServer(port int, dispatcher *Dispatcher) *Server {
	return &Server{dispatcher: dispatcher, port: port}
}

// Start binds the socket and launches the receive loop.
func (s *Server) Start() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.running {
		return nil
	}
	conn, err := net.ListenUDP("udp", &net.UDPAddr{Port: s.port})
	if err != nil {
		return fmt.Errorf("failed to bind command socket: %v", err)
	}
	s.conn = conn
	s.running = true
	s.done = make(chan struct{})
	go s.run(conn, s.done)
	log.Infof("Command receiver listening on port %d", s.port)
	return nil
}

// Addr returns the bound socket address, nil before Start.
func (s *Server) Addr() net.Addr {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.conn == nil {
		return nil
	}
	return s.conn.LocalAddr()
}

// Stop closes the socket, which unblocks the loop, and waits for it.
func (s *Server) Stop() {
	s.mu.Lock()
	if !s.running {
		s.mu.Unlock()
		return
	}
	conn, done := s.conn, s.done
	s.running = false
	s.mu.Unlock()

	conn.Close()
	<-done
	log.Info("Command receiver stopped")
}

func (s *Server) run(conn *net.UDPConn, done chan struct{}) {
	defer close(done)
	buf := make([]byte, 1024)
	for {
		n, addr, err := conn.ReadFromUDP(buf)
		if err != nil {
			// A closed socket means we are shutting down; anything else is
			// transient.
			s.mu.Lock()
			running := s.running
			s.mu.Unlock()
			if !running {
				return
			}
			log.Warnf("Command receive error: %v", err)
			continue
		}
		cmd := string(buf[:n])
		log.Infof("Received command: %s", cmd)

		response := s.dispatcher.Execute(cmd)
		if _, err := conn.WriteToUDP([]byte(response), addr); err != nil {
			log.Warnf("Failed to send response: %v", err)
		}
	}
}
