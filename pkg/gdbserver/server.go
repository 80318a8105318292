package gdbserver

import (
	"bufio"
	"context"
	"io"
	"log/slog"
	"net"
	"sync"

	"github.com/wbtool/wbtool/pkg/debug"
)

// Server accepts a single GDB client at a time on TCP. A lost client
// is re-accepted; CPU state is preserved across reconnects.
type Server struct {
	engine       *debug.Engine
	hasMessible  bool
	messibleAddr uint32
	log          *slog.Logger
}

// NewServer constructs a Server driving engine.
func NewServer(engine *debug.Engine, hasMessible bool, messibleAddr uint32, log *slog.Logger) *Server {
	if log == nil {
		log = slog.Default()
	}
	return &Server{
		engine:       engine,
		hasMessible:  hasMessible,
		messibleAddr: messibleAddr,
		log:          log.With("component", "gdbserver"),
	}
}

// Serve accepts connections on ln, handling exactly one at a time.
func (s *Server) Serve(ln net.Listener) error {
	for {
		conn, err := ln.Accept()
		if err != nil {
			return err
		}
		s.handleConn(conn)
	}
}

// session is one GDB client connection's mutable state.
type session struct {
	engine  *debug.Engine
	log     *slog.Logger
	reader  *bufio.Reader
	writeMu sync.Mutex
	conn    net.Conn
	ackMode bool
	alive   bool
}

func (s *Server) handleConn(conn net.Conn) {
	defer conn.Close()
	sess := &session{
		engine:  s.engine,
		log:     s.log,
		reader:  bufio.NewReader(conn),
		conn:    conn,
		ackMode: true,
		alive:   true,
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	poller := debug.NewPoller(s.engine, s.hasMessible, s.messibleAddr, s.log, sess.onPollEvent)
	go poller.Run(ctx)

	for {
		payload, interrupted, err := readPacket(sess.reader)
		if err != nil {
			if err == ErrChecksumMismatch {
				sess.writeRaw("-")
				continue
			}
			if err != io.EOF {
				s.log.Warn("gdb connection error", "error", err)
			}
			return
		}
		if interrupted {
			sess.handleInterrupt()
			continue
		}
		if payload == "" {
			continue
		}
		if sess.ackMode {
			sess.writeRaw("+")
		}
		reply, hasReply := sess.dispatch(payload)
		if hasReply {
			sess.writeRaw(framePacket(reply))
		}
	}
}

// onPollEvent forwards an unsolicited poller event (breakpoint/signal
// stop, or forwarded "messible" output) to the client as its own
// packet, outside the request/reply cycle.
func (s *session) onPollEvent(ev debug.PollEvent) {
	switch {
	case ev.Stop == debug.StopBreakpoint:
		s.writeRaw(framePacket("T05"))
	case ev.Stop == debug.StopSignal:
		s.writeRaw(framePacket("T02"))
	case len(ev.Output) > 0:
		s.writeRaw(framePacket("O" + hexBytes(ev.Output)))
	}
}

func (s *session) writeRaw(str string) {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()
	io.WriteString(s.conn, str)
}

func (s *session) handleInterrupt() {
	if err := s.engine.Halt(); err != nil {
		s.log.Warn("halt on interrupt failed", "error", err)
		return
	}
	s.writeRaw(framePacket("S02"))
}
