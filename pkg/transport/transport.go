// Package transport implements the five physical transports as
// bridge.Device values: USB control transfers, UART framing,
// Etherbone over UDP/TCP, a memory-mapped PCIe BAR, and bit-banged SPI.
// Each device only knows how to open itself and move single words (plus
// bursts where the hardware supports them); reconnection and
// request/reply plumbing live in pkg/bridge's worker.
package transport

import (
	"fmt"

	"github.com/wbtool/wbtool/pkg/bridge"
)

// New constructs the device selected by cfg.Kind. The device is not yet
// open; the bridge worker calls Open (and re-calls it on reconnect).
func New(cfg bridge.Config) (bridge.Device, error) {
	switch cfg.Kind {
	case bridge.TransportUSB:
		return NewUSB(cfg.USB), nil
	case bridge.TransportUART:
		return NewUART(cfg.UART), nil
	case bridge.TransportEthernet:
		return NewEthernet(cfg.Ethernet), nil
	case bridge.TransportPCIe:
		return NewPCIe(cfg.PCIe), nil
	case bridge.TransportSPI:
		return NewSPI(cfg.SPI), nil
	default:
		return nil, fmt.Errorf("transport: unknown transport kind %d", cfg.Kind)
	}
}
