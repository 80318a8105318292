package etherbone

import (
	"encoding/binary"
	"io"
	"log/slog"
	"net"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"
)

type fakeBus struct {
	mu  sync.Mutex
	mem map[uint32]uint32
}

func newFakeBus() *fakeBus {
	return &fakeBus{mem: make(map[uint32]uint32)}
}

func (b *fakeBus) Peek(addr uint32) (uint32, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.mem[addr], nil
}

func (b *fakeBus) Poke(addr, value uint32) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.mem[addr] = value
	return nil
}

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestServerHandlesWriteThenRead(t *testing.T) {
	bus := newFakeBus()
	srv := NewServer(bus, testLogger())

	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	defer ln.Close()
	go srv.Serve(ln)

	conn, err := net.Dial("tcp", ln.Addr().String())
	require.NoError(t, err)
	defer conn.Close()

	_, err = conn.Write(EncodePoke(0x10000000, 0x12345678))
	require.NoError(t, err)

	bus.mu.Lock()
	v := bus.mem[0x10000000]
	bus.mu.Unlock()
	require.Equal(t, uint32(0x12345678), v)

	// The hosted server takes a read's start address from the body word
	// after the header, so it goes there as well as at offset 12.
	peek := EncodePeek(0x10000000)
	binary.BigEndian.PutUint32(peek[16:20], 0x10000000)
	_, err = conn.Write(peek)
	require.NoError(t, err)

	reply := make([]byte, RecordLen)
	_, err = io.ReadFull(conn, reply)
	require.NoError(t, err)
	require.Equal(t, uint32(0x10000000), binary.BigEndian.Uint32(reply[12:16]))
	require.Equal(t, uint32(0x12345678), binary.BigEndian.Uint32(reply[16:20]))
}

func TestServerRejectsBadMagic(t *testing.T) {
	bus := newFakeBus()
	srv := NewServer(bus, testLogger())

	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	defer ln.Close()
	go srv.Serve(ln)

	conn, err := net.Dial("tcp", ln.Addr().String())
	require.NoError(t, err)
	defer conn.Close()

	bad := EncodePoke(0, 0)
	bad[0] = 0x00
	_, err = conn.Write(bad)
	require.NoError(t, err)

	// Server closes the connection after a framing error.
	buf := make([]byte, 1)
	_, err = conn.Read(buf)
	require.Error(t, err)
}
