package transport

import (
	"encoding/binary"
	"io"
	"time"

	"go.bug.st/serial"

	"github.com/wbtool/wbtool/pkg/bridge"
	"github.com/wbtool/wbtool/pkg/wberr"
)

// UART wire protocol: 8-N-1 framing; command byte
// 0x01 (write) or 0x02 (read), a word count of 1, then the
// word-aligned address addr>>2 big-endian. The low two address bits
// are dropped because the device ignores them.
const (
	uartCmdWrite = 0x01
	uartCmdRead  = 0x02

	uartReadTimeout = time.Second
)

// UART drives a serial Wishbone bridge at a device path and baud rate.
type UART struct {
	bridge.UnsupportedBurst
	cfg  bridge.UARTConfig
	port serial.Port
}

// NewUART constructs a UART device for cfg.
func NewUART(cfg bridge.UARTConfig) *UART {
	return &UART{cfg: cfg}
}

func (u *UART) Name() string { return "uart" }

// Open opens the serial port in 8-N-1 at the configured baud rate.
func (u *UART) Open() error {
	if u.port != nil {
		u.port.Close()
		u.port = nil
	}
	mode := &serial.Mode{
		BaudRate: u.cfg.Baud,
		DataBits: 8,
		Parity:   serial.NoParity,
		StopBits: serial.OneStopBit,
	}
	port, err := serial.Open(u.cfg.Path, mode)
	if err != nil {
		return err
	}
	if err := port.SetReadTimeout(uartReadTimeout); err != nil {
		port.Close()
		return err
	}
	u.port = port
	return nil
}

func (u *UART) Peek(addr uint32) (uint32, error) {
	return uartPeek(u.port, addr)
}

func (u *UART) Poke(addr, value uint32) error {
	return uartPoke(u.port, addr, value)
}

func (u *UART) Close() error {
	if u.port == nil {
		return nil
	}
	err := u.port.Close()
	u.port = nil
	return err
}

// uartPeek and uartPoke take the port as a plain io.ReadWriter so the
// framing can be exercised against an in-memory pipe in tests.

func uartPeek(rw io.ReadWriter, addr uint32) (uint32, error) {
	frame := make([]byte, 0, 6)
	frame = append(frame, uartCmdRead, 1)
	frame = binary.BigEndian.AppendUint32(frame, addr>>2)
	if err := writeAll(rw, frame); err != nil {
		return 0, err
	}
	reply := make([]byte, 4)
	if err := readAll(rw, reply); err != nil {
		return 0, err
	}
	return binary.BigEndian.Uint32(reply), nil
}

func uartPoke(rw io.ReadWriter, addr, value uint32) error {
	frame := make([]byte, 0, 10)
	frame = append(frame, uartCmdWrite, 1)
	frame = binary.BigEndian.AppendUint32(frame, addr>>2)
	frame = binary.BigEndian.AppendUint32(frame, value)
	return writeAll(rw, frame)
}

func writeAll(w io.Writer, data []byte) error {
	n, err := w.Write(data)
	if err != nil {
		return err
	}
	if n != len(data) {
		return &wberr.LengthError{Expected: len(data), Actual: n}
	}
	return nil
}

// readAll fills buf, treating a zero-byte read (how go.bug.st/serial
// reports an expired read timeout) as a timeout error so the worker
// breaks to its reconnect loop instead of spinning.
func readAll(r io.Reader, buf []byte) error {
	total := 0
	for total < len(buf) {
		n, err := r.Read(buf[total:])
		if err != nil {
			return err
		}
		if n == 0 {
			return wberr.ErrTimeout
		}
		total += n
	}
	return nil
}
