package bridge

import "github.com/wbtool/wbtool/pkg/wberr"

// Device is the narrow contract a transport worker drives. Each of
// pkg/transport's five implementations (USB, UART, Ethernet, PCIe, SPI)
// satisfies this interface; everything about reconnection, backpressure,
// and request/reply plumbing lives once in runWorker (worker.go) instead
// of being duplicated per transport.
type Device interface {
	// Open performs the transport-specific handshake: matching USB
	// identifiers, opening a serial path, binding a socket, memory
	// mapping a file, or initializing GPIO. Open may be called more
	// than once across the lifetime of a Device (once per reconnect).
	Open() error

	// Peek reads one 32-bit word at addr.
	Peek(addr uint32) (uint32, error)

	// Poke writes one 32-bit word at addr.
	Poke(addr, value uint32) error

	// BurstRead and BurstWrite implement the optional burst interface.
	// Transports that cannot batch transfers return
	// wberr.ErrProtocolNotSupported.
	BurstRead(addr uint32, length int) ([]byte, error)
	BurstWrite(addr uint32, data []byte) error

	// Close releases the underlying device. It is called once, when
	// the worker is told to Exit.
	Close() error

	// Name identifies the transport in log lines ("usb", "uart", ...).
	Name() string
}

// UnsupportedBurst is embeddable by transports with no native burst
// support (UART, SPI, Ethernet): it satisfies BurstRead/BurstWrite by always
// failing with wberr.ErrProtocolNotSupported.
type UnsupportedBurst struct{}

func (UnsupportedBurst) BurstRead(addr uint32, length int) ([]byte, error) {
	return nil, wberr.ErrProtocolNotSupported
}

func (UnsupportedBurst) BurstWrite(addr uint32, data []byte) error {
	return wberr.ErrProtocolNotSupported
}
