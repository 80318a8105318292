package etherbone

import (
	"encoding/binary"
	"io"
	"log/slog"
	"net"

	"github.com/wbtool/wbtool/pkg/wberr"
)

// Bus is the narrow subset of pkg/bridge.Bridge the hosted server needs:
// a serialized peek/poke pair. Accepting an interface instead of the
// concrete bridge type keeps this package free of a pkg/bridge import
// cycle and lets tests fake the bus.
type Bus interface {
	Peek(addr uint32) (uint32, error)
	Poke(addr, value uint32) error
}

// Server is the hosted Wishbone TCP server: it accepts
// Etherbone clients and relays their peek/poke onto a shared bus.
type Server struct {
	bus Bus
	log *slog.Logger
}

// NewServer constructs a Server relaying onto bus.
func NewServer(bus Bus, log *slog.Logger) *Server {
	if log == nil {
		log = slog.Default()
	}
	return &Server{bus: bus, log: log.With("component", "etherbone")}
}

// Serve accepts connections on ln until it returns an error (typically
// because ln was closed).
func (s *Server) Serve(ln net.Listener) error {
	for {
		conn, err := ln.Accept()
		if err != nil {
			return err
		}
		go s.handleConn(conn)
	}
}

func (s *Server) handleConn(conn net.Conn) {
	defer conn.Close()
	for {
		if err := s.handleOne(conn); err != nil {
			if err != io.EOF {
				s.log.Warn("connection error", "error", err)
			}
			return
		}
	}
}

// handleOne serves one record: read the 16-byte header, validate
// magic, read 4*(wcount+rcount) payload bytes, then dispatch.
func (s *Server) handleOne(conn net.Conn) error {
	header := make([]byte, HeaderLen)
	if _, err := io.ReadFull(conn, header); err != nil {
		return err
	}
	wcount, rcount, err := DecodeHeader(header)
	if err != nil {
		return err
	}
	body := make([]byte, 4*(wcount+rcount))
	if _, err := io.ReadFull(conn, body); err != nil {
		return err
	}

	switch {
	case wcount > 0:
		return s.handleWrites(conn, header, body, wcount)
	case rcount > 0:
		return s.handleReads(conn, header, body, rcount)
	default:
		s.log.Warn("record with neither writes nor reads")
		return wberr.ErrUnsupportedOperation
	}
}

// handleWrites treats header[12:16] as the starting address and pokes
// wcount consecutive words from body.
func (s *Server) handleWrites(conn net.Conn, header, body []byte, wcount int) error {
	addr := binary.BigEndian.Uint32(header[12:16])
	for i := 0; i < wcount; i++ {
		word := binary.BigEndian.Uint32(body[4*i : 4*i+4])
		if err := s.bus.Poke(addr, word); err != nil {
			return err
		}
		addr += 4
	}
	return nil
}

// handleReads treats body[0:4] as the starting address, reads rcount
// words, and replies by reusing the original header with wcount:=rcount,
// rcount:=0 and the words packed into the body.
func (s *Server) handleReads(conn net.Conn, header, body []byte, rcount int) error {
	addr := binary.BigEndian.Uint32(body[0:4])
	out := make([]byte, HeaderLen+4*rcount)
	copy(out, header)
	out[10] = byte(rcount)
	out[11] = 0
	for i := 0; i < rcount; i++ {
		word, err := s.bus.Peek(addr)
		if err != nil {
			return err
		}
		binary.BigEndian.PutUint32(out[HeaderLen+4*i:HeaderLen+4*i+4], word)
		addr += 4
	}
	_, err := conn.Write(out)
	return err
}
