package transport

import (
	"encoding/binary"
	"errors"
	"fmt"
	"time"

	"github.com/google/gousb"

	"github.com/wbtool/wbtool/pkg/bridge"
	"github.com/wbtool/wbtool/pkg/wberr"
)

// The debug interface is driven entirely through endpoint-zero vendor
// control transfers: bmRequestType 0x43 out / 0xc3 in, bRequest 0,
// wValue = addr[0:16], wIndex = addr[16:32], 4-byte little-endian
// payload.
const (
	usbRequestTypeOut = 0x43
	usbRequestTypeIn  = 0x80 | 0x43
	usbRequest        = 0

	usbWriteTimeout = 100 * time.Millisecond
	usbReadTimeout  = 500 * time.Millisecond

	// usbBurstChunk caps a single control transfer's payload during
	// burst operations.
	usbBurstChunk = 4096
)

// USB drives the debug bridge of a device matched by the optional
// vid/pid/bus/device filters in its config.
type USB struct {
	cfg bridge.USBConfig
	ctx *gousb.Context
	dev *gousb.Device
}

// NewUSB constructs a USB device with cfg's match filters.
func NewUSB(cfg bridge.USBConfig) *USB {
	return &USB{cfg: cfg}
}

func (u *USB) Name() string { return "usb" }

// Open enumerates the bus and claims the first device matching the
// configured identifiers.
func (u *USB) Open() error {
	if u.ctx == nil {
		u.ctx = gousb.NewContext()
	}
	if u.dev != nil {
		u.dev.Close()
		u.dev = nil
	}
	devs, err := u.ctx.OpenDevices(u.match)
	// OpenDevices can return both an error and a partial device list;
	// keep the first match if there is one.
	for i, dev := range devs {
		if i == 0 {
			u.dev = dev
			continue
		}
		dev.Close()
	}
	if u.dev == nil {
		if err != nil {
			return err
		}
		return errors.New("transport: no matching USB device found")
	}
	return nil
}

func (u *USB) match(desc *gousb.DeviceDesc) bool {
	if u.cfg.HasVID && desc.Vendor != gousb.ID(u.cfg.VID) {
		return false
	}
	if u.cfg.HasPID && desc.Product != gousb.ID(u.cfg.PID) {
		return false
	}
	if u.cfg.HasBus && desc.Bus != u.cfg.Bus {
		return false
	}
	if u.cfg.HasDevice && desc.Address != u.cfg.Device {
		return false
	}
	return true
}

// Peek issues one IN control transfer. Success requires exactly 4 bytes
// transferred.
func (u *USB) Peek(addr uint32) (uint32, error) {
	buf := make([]byte, 4)
	u.dev.ControlTimeout = usbReadTimeout
	n, err := u.dev.Control(usbRequestTypeIn, usbRequest, uint16(addr), uint16(addr>>16), buf)
	if err != nil {
		return 0, usbError(err)
	}
	if n != 4 {
		return 0, &wberr.LengthError{Expected: 4, Actual: n}
	}
	return binary.LittleEndian.Uint32(buf), nil
}

// Poke issues one OUT control transfer carrying value little-endian.
func (u *USB) Poke(addr, value uint32) error {
	buf := make([]byte, 4)
	binary.LittleEndian.PutUint32(buf, value)
	u.dev.ControlTimeout = usbWriteTimeout
	n, err := u.dev.Control(usbRequestTypeOut, usbRequest, uint16(addr), uint16(addr>>16), buf)
	if err != nil {
		return usbError(err)
	}
	if n != 4 {
		return &wberr.LengthError{Expected: 4, Actual: n}
	}
	return nil
}

// BurstRead splits the read into control transfers of at most 4096
// bytes, each at an incremented address.
func (u *USB) BurstRead(addr uint32, length int) ([]byte, error) {
	out := make([]byte, 0, length)
	u.dev.ControlTimeout = usbReadTimeout
	for length > 0 {
		chunk := length
		if chunk > usbBurstChunk {
			chunk = usbBurstChunk
		}
		buf := make([]byte, chunk)
		n, err := u.dev.Control(usbRequestTypeIn, usbRequest, uint16(addr), uint16(addr>>16), buf)
		if err != nil {
			return nil, usbError(err)
		}
		if n != chunk {
			return nil, &wberr.LengthError{Expected: chunk, Actual: n}
		}
		out = append(out, buf...)
		addr += uint32(chunk)
		length -= chunk
	}
	return out, nil
}

// BurstWrite splits data into control transfers of at most 4096 bytes.
func (u *USB) BurstWrite(addr uint32, data []byte) error {
	u.dev.ControlTimeout = usbWriteTimeout
	for len(data) > 0 {
		chunk := len(data)
		if chunk > usbBurstChunk {
			chunk = usbBurstChunk
		}
		n, err := u.dev.Control(usbRequestTypeOut, usbRequest, uint16(addr), uint16(addr>>16), data[:chunk])
		if err != nil {
			return usbError(err)
		}
		if n != chunk {
			return &wberr.LengthError{Expected: chunk, Actual: n}
		}
		addr += uint32(chunk)
		data = data[chunk:]
	}
	return nil
}

func (u *USB) Close() error {
	if u.dev != nil {
		u.dev.Close()
		u.dev = nil
	}
	if u.ctx != nil {
		err := u.ctx.Close()
		u.ctx = nil
		return err
	}
	return nil
}

// usbError maps libusb pipe/IO/no-device failures to the disconnect
// sentinel so the bridge surfaces them instead of retrying.
func usbError(err error) error {
	if errors.Is(err, gousb.ErrorPipe) || errors.Is(err, gousb.ErrorIO) || errors.Is(err, gousb.ErrorNoDevice) {
		return fmt.Errorf("%w: %v", wberr.ErrDisconnected, err)
	}
	return err
}
