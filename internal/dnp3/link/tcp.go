// Package link provides a demo TCP lower layer for the outstation engine.
// DNP3's real link/transport layers (CRC'd 292-byte blocks, multi-frame
// transport segments) are explicitly out of scope for this engine; this
// package instead frames application fragments with a 2-byte big-endian
// length prefix so the outstation context can be driven over a real socket
// without implementing either layer.
package link

import (
	"encoding/binary"
	"fmt"
	"io"
	"net"
	"sync"

	"github.com/bmironenko/dnp3/internal/dnp3/outstation"
	"github.com/bmironenko/dnp3/internal/logger"
	"github.com/google/uuid"
)

// maxFragmentSize is the largest length the 2-byte big-endian prefix can
// carry. writeFrame refuses longer fragments; every received prefix is
// within it, and this layer applies no smaller receive limit.
const maxFragmentSize = 1<<16 - 1

// Receiver is the subset of outstation.Context this layer drives. Matching
// it structurally (rather than importing *outstation.Context directly)
// keeps this package testable against a fake.
type Receiver interface {
	OnLowerLayerUp()
	OnLowerLayerDown()
	OnReceive(data []byte)
	OnSendResult(success bool)
}

var _ Receiver = (*outstation.Context)(nil)

// Server accepts a single master TCP connection at a time and relays
// length-prefixed application fragments to and from a Receiver. A second
// connection attempted while one is active is refused immediately, per the
// single-session model real outstations use.
type Server struct {
	addr string
	recv Receiver

	mu       sync.Mutex
	listener net.Listener
	conn     net.Conn
	closed   bool
	done     chan struct{}
}

// NewServer builds a demo TCP lower layer listening on addr (host:port)
// and driving recv with whatever it accepts.
func NewServer(addr string, recv Receiver) *Server {
	return &Server{addr: addr, recv: recv, done: make(chan struct{})}
}

// ListenAndServe binds the listener and accepts connections until Close is
// called. It blocks; callers typically run it in its own goroutine.
func (s *Server) ListenAndServe() error {
	listener, err := net.Listen("tcp", s.addr)
	if err != nil {
		return fmt.Errorf("link: listen on %s: %w", s.addr, err)
	}

	s.mu.Lock()
	s.listener = listener
	s.mu.Unlock()

	logger.Info("link listener up", "addr", listener.Addr().String())

	for {
		conn, err := listener.Accept()
		if err != nil {
			select {
			case <-s.done:
				return nil
			default:
				logger.Warn("link accept error", "error", err)
				continue
			}
		}
		s.handleAccept(conn)
	}
}

func (s *Server) handleAccept(conn net.Conn) {
	s.mu.Lock()
	if s.conn != nil {
		s.mu.Unlock()
		logger.Warn("link rejecting second master connection", "addr", conn.RemoteAddr())
		_ = conn.Close()
		return
	}
	sessionID := uuid.NewString()
	s.conn = conn
	s.mu.Unlock()

	logger.Info("link master connected", "addr", conn.RemoteAddr(), "session", sessionID)
	s.recv.OnLowerLayerUp()

	go s.readLoop(conn, sessionID)
}

func (s *Server) readLoop(conn net.Conn, sessionID string) {
	defer func() {
		s.mu.Lock()
		if s.conn == conn {
			s.conn = nil
		}
		s.mu.Unlock()
		_ = conn.Close()
		s.recv.OnLowerLayerDown()
		logger.Info("link master disconnected", "session", sessionID)
	}()

	var lenBuf [2]byte
	for {
		if _, err := io.ReadFull(conn, lenBuf[:]); err != nil {
			if err != io.EOF {
				logger.Debug("link read length prefix failed", "session", sessionID, "error", err)
			}
			return
		}
		n := binary.BigEndian.Uint16(lenBuf[:])
		if int(n) > maxFragmentSize {
			logger.Warn("link fragment too large, dropping connection", "session", sessionID, "length", n)
			return
		}
		frame := make([]byte, n)
		if _, err := io.ReadFull(conn, frame); err != nil {
			logger.Debug("link read fragment body failed", "session", sessionID, "error", err)
			return
		}
		s.recv.OnReceive(frame)
	}
}

// BeginTransmit implements outstation.LowerLayer. It writes the frame to
// whatever master connection is currently active, asynchronously, and
// reports the result back to the receiver via OnSendResult.
func (s *Server) BeginTransmit(data []byte) {
	s.mu.Lock()
	conn := s.conn
	s.mu.Unlock()

	go func() {
		success := conn != nil && s.writeFrame(conn, data) == nil
		s.recv.OnSendResult(success)
	}()
}

func (s *Server) writeFrame(conn net.Conn, data []byte) error {
	if len(data) > maxFragmentSize {
		return fmt.Errorf("link: fragment of %d bytes exceeds frame limit", len(data))
	}
	var lenBuf [2]byte
	binary.BigEndian.PutUint16(lenBuf[:], uint16(len(data)))
	if _, err := conn.Write(lenBuf[:]); err != nil {
		return err
	}
	_, err := conn.Write(data)
	return err
}

// Addr returns the listener's bound address, or "" before ListenAndServe
// has started listening. Useful for tests and for logging the actual port
// when addr was "host:0".
func (s *Server) Addr() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.listener == nil {
		return ""
	}
	return s.listener.Addr().String()
}

// Close stops accepting connections and closes any active master
// connection.
func (s *Server) Close() error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil
	}
	s.closed = true
	close(s.done)
	listener := s.listener
	conn := s.conn
	s.mu.Unlock()

	var err error
	if listener != nil {
		err = listener.Close()
	}
	if conn != nil {
		_ = conn.Close()
	}
	return err
}
