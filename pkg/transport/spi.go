package transport

import (
	"fmt"
	"strconv"
	"time"

	"periph.io/x/periph/conn/gpio"
	"periph.io/x/periph/conn/gpio/gpioreg"
	"periph.io/x/periph/host"

	"github.com/wbtool/wbtool/pkg/bridge"
	"github.com/wbtool/wbtool/pkg/wberr"
)

// SPI wire protocol: command byte 0x00 (write) or
// 0x01 (read), big-endian address and value, then single-byte polls
// until the device echoes the command byte. 0xFF polls mean "still
// busy"; any other echo is a protocol error.
const (
	spiCmdWrite = 0x00
	spiCmdRead  = 0x01

	spiSyncByte = 0xAB

	// spiHalfBit is the half-bit period of the bit-banged clock.
	spiHalfBit = 333 * time.Nanosecond

	// spiPollLimit bounds the busy-poll loop after a command.
	spiPollLimit = 20000
)

// SPI bit-bangs the wishbone debug protocol over raw GPIO pins. CIPO
// absent means half-duplex: COPI flips to an input for reads. CS absent
// means a sync byte starts each transaction instead of a chip-select
// edge.
type SPI struct {
	bridge.UnsupportedBurst
	cfg bridge.SPIConfig

	copi gpio.PinIO
	cipo gpio.PinIO
	clk  gpio.PinIO
	cs   gpio.PinIO
}

// NewSPI constructs an SPI device for cfg.
func NewSPI(cfg bridge.SPIConfig) *SPI {
	return &SPI{cfg: cfg}
}

func (s *SPI) Name() string { return "spi" }

// Open initializes the periph host and claims the configured pins,
// leaving clk low, copi low and cs (if present) deasserted.
func (s *SPI) Open() error {
	if _, err := host.Init(); err != nil {
		return err
	}
	var err error
	if s.copi, err = spiPin(s.cfg.COPI); err != nil {
		return err
	}
	if s.cfg.HasCIPO {
		if s.cipo, err = spiPin(s.cfg.CIPO); err != nil {
			return err
		}
		if err := s.cipo.In(gpio.Float, gpio.NoEdge); err != nil {
			return err
		}
	}
	if s.clk, err = spiPin(s.cfg.Clk); err != nil {
		return err
	}
	if s.cfg.HasCS {
		if s.cs, err = spiPin(s.cfg.CS); err != nil {
			return err
		}
		if err := s.cs.Out(gpio.High); err != nil {
			return err
		}
	}
	if err := s.clk.Out(gpio.Low); err != nil {
		return err
	}
	return s.copi.Out(gpio.Low)
}

func spiPin(num int) (gpio.PinIO, error) {
	pin := gpioreg.ByName(strconv.Itoa(num))
	if pin == nil {
		return nil, fmt.Errorf("transport: no GPIO pin %d", num)
	}
	return pin, nil
}

func (s *SPI) Peek(addr uint32) (uint32, error) {
	if err := s.begin(); err != nil {
		return 0, err
	}
	defer s.finish()
	if err := s.writeByte(spiCmdRead); err != nil {
		return 0, err
	}
	if err := s.writeWord(addr); err != nil {
		return 0, err
	}
	if err := s.pollEcho(spiCmdRead); err != nil {
		return 0, err
	}
	return s.readWord()
}

func (s *SPI) Poke(addr, value uint32) error {
	if err := s.begin(); err != nil {
		return err
	}
	defer s.finish()
	if err := s.writeByte(spiCmdWrite); err != nil {
		return err
	}
	if err := s.writeWord(addr); err != nil {
		return err
	}
	if err := s.writeWord(value); err != nil {
		return err
	}
	return s.pollEcho(spiCmdWrite)
}

func (s *SPI) Close() error { return nil }

// begin starts a transaction: clock and data low, then either assert
// chip-select or send the sync byte.
func (s *SPI) begin() error {
	if err := s.clk.Out(gpio.Low); err != nil {
		return err
	}
	if err := s.copi.Out(gpio.Low); err != nil {
		return err
	}
	if s.cs != nil {
		return s.cs.Out(gpio.Low)
	}
	return s.writeByte(spiSyncByte)
}

// finish ends a transaction: deassert chip-select (or leave the clock
// idle) and return copi to a driven-low output.
func (s *SPI) finish() {
	if s.cs != nil {
		s.cs.Out(gpio.High)
	}
	s.clk.Out(gpio.Low)
	s.copi.Out(gpio.Low)
}

func (s *SPI) writeByte(b byte) error {
	for bit := 7; bit >= 0; bit-- {
		level := gpio.Low
		if b&(1<<uint(bit)) != 0 {
			level = gpio.High
		}
		if err := s.copi.Out(level); err != nil {
			return err
		}
		spinWait(spiHalfBit)
		if err := s.clk.Out(gpio.High); err != nil {
			return err
		}
		spinWait(spiHalfBit)
		if err := s.clk.Out(gpio.Low); err != nil {
			return err
		}
	}
	return nil
}

func (s *SPI) readByte() (byte, error) {
	in := s.cipo
	if in == nil {
		// Half-duplex: the data pin changes direction for the read.
		if err := s.copi.In(gpio.Float, gpio.NoEdge); err != nil {
			return 0, err
		}
		defer s.copi.Out(gpio.Low)
		in = s.copi
	}
	var b byte
	for bit := 7; bit >= 0; bit-- {
		if err := s.clk.Out(gpio.High); err != nil {
			return 0, err
		}
		spinWait(spiHalfBit)
		if in.Read() == gpio.High {
			b |= 1 << uint(bit)
		}
		if err := s.clk.Out(gpio.Low); err != nil {
			return 0, err
		}
		spinWait(spiHalfBit)
	}
	return b, nil
}

func (s *SPI) writeWord(v uint32) error {
	for shift := 24; shift >= 0; shift -= 8 {
		if err := s.writeByte(byte(v >> uint(shift))); err != nil {
			return err
		}
	}
	return nil
}

func (s *SPI) readWord() (uint32, error) {
	var v uint32
	for i := 0; i < 4; i++ {
		b, err := s.readByte()
		if err != nil {
			return 0, err
		}
		v = v<<8 | uint32(b)
	}
	return v, nil
}

// pollEcho reads single bytes until the device echoes cmd. 0xFF means
// the device is still working; anything else is a protocol violation.
func (s *SPI) pollEcho(cmd byte) error {
	for i := 0; i < spiPollLimit; i++ {
		b, err := s.readByte()
		if err != nil {
			return err
		}
		if b == cmd {
			return nil
		}
		if b != 0xFF {
			return fmt.Errorf("transport: spi echoed %#02x, want %#02x", b, cmd)
		}
	}
	return wberr.ErrTimeout
}

// spinWait busy-waits for d. The half-bit period is far below what a
// timer sleep can hold, so the wait spins on the monotonic clock.
func spinWait(d time.Duration) {
	end := time.Now().Add(d)
	for time.Now().Before(end) {
	}
}
