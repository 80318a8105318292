// Command wbtool bridges a host to the Wishbone bus of an FPGA SoC over
// USB, UART, Ethernet (Etherbone), PCIe or bit-banged SPI, and serves
// GDB and Etherbone clients on top of that bridge.
package main

import (
	"encoding/hex"
	"flag"
	"fmt"
	"log"
	"log/slog"
	"math/rand"
	"net"
	"os"
	"strconv"
	"strings"

	"github.com/wbtool/wbtool/pkg/bridge"
	"github.com/wbtool/wbtool/pkg/debug"
	"github.com/wbtool/wbtool/pkg/etherbone"
	"github.com/wbtool/wbtool/pkg/gdbserver"
	"github.com/wbtool/wbtool/pkg/numfmt"
	"github.com/wbtool/wbtool/pkg/transport"
)

// serverList collects repeated --server flags.
type serverList []string

func (s *serverList) String() string { return strings.Join(*s, ",") }

func (s *serverList) Set(v string) error {
	*s = append(*s, v)
	return nil
}

// numFlag accepts the CLI number syntax (0x/0X, 0b/0B, leading-zero
// octal, decimal) for addresses and values.
type numFlag struct {
	value uint64
	isSet bool
}

func (n *numFlag) String() string {
	if !n.isSet {
		return ""
	}
	return fmt.Sprintf("%#x", n.value)
}

func (n *numFlag) Set(v string) error {
	x, err := numfmt.Parse(v)
	if err != nil {
		return err
	}
	n.value = x
	n.isSet = true
	return nil
}

func main() {
	log.SetFlags(0)

	var servers serverList
	var address, value, vid, pid, debugOffset, messibleAddress numFlag
	debugOffset.value = 0xf00f0000

	serialPath := flag.String("serial", "", "serial port device path")
	baud := flag.Int("baud", 115200, "serial port baud rate")
	spiPins := flag.String("spi-pins", "", "spi pin assignment: copi,[cipo,]clk[,cs]")
	pcieBAR := flag.String("pcie-bar", "", "path to a PCIe BAR resource file")
	ethernetHost := flag.String("ethernet-host", "", "etherbone device host[:port]")
	ethernetTCP := flag.Bool("ethernet-tcp", false, "use TCP instead of UDP for etherbone")
	ethernetPort := flag.Int("ethernet-port", 1234, "default etherbone device port")
	flag.Var(&vid, "vid", "usb vendor id")
	flag.Var(&pid, "pid", "usb product id")
	usbBus := flag.Int("bus", -1, "usb bus number")
	usbDevice := flag.Int("device", -1, "usb device number")

	flag.Var(&servers, "server", "service to run: gdb, wishbone or random-test (may repeat)")
	bindAddr := flag.String("bind-addr", "127.0.0.1", "address the servers listen on")
	wishbonePort := flag.Int("wishbone-port", 1234, "hosted wishbone server port")
	gdbPort := flag.Int("gdb-port", 3333, "gdb server port")
	flag.Var(&debugOffset, "debug-offset", "vexriscv debug register block base address")
	flag.Var(&messibleAddress, "messible-address", "messible FIFO base address to forward to gdb")
	burstLength := flag.Int("burst-length", 0, "burst transfer length in bytes")
	flag.Var(&address, "address", "bus address for a one-shot peek or poke")
	flag.Var(&value, "value", "value to poke at --address")
	hexdump := flag.Bool("hexdump", false, "hex-dump one-shot read results")
	randomLoops := flag.Int("random-loops", 1000, "iterations of the random-test service")
	flag.Parse()

	cfg, err := buildConfig(transportFlags{
		serialPath:   *serialPath,
		baud:         *baud,
		spiPins:      *spiPins,
		pcieBAR:      *pcieBAR,
		ethernetHost: *ethernetHost,
		ethernetTCP:  *ethernetTCP,
		ethernetPort: *ethernetPort,
		vid:          vid,
		pid:          pid,
		usbBus:       *usbBus,
		usbDevice:    *usbDevice,
	})
	if err != nil {
		log.Fatal(err)
	}
	cfg.BurstLength = *burstLength
	cfg.DebugOffset = uint32(debugOffset.value)

	dev, err := transport.New(cfg)
	if err != nil {
		log.Fatal(err)
	}
	logger := slog.New(slog.NewTextHandler(os.Stderr, nil))
	bus := bridge.New(dev, cfg, logger)
	defer bus.Close()
	bus.Connect()

	if len(servers) == 0 {
		if !address.isSet {
			log.Fatal("usage: wbtool [transport flags] --server gdb|wishbone|random-test, or --address [--value]")
		}
		if err := oneshot(bus, address, value, *hexdump, *burstLength); err != nil {
			log.Fatal(err)
		}
		return
	}

	errCh := make(chan error, len(servers))
	for _, name := range servers {
		switch name {
		case "gdb":
			ln, err := net.Listen("tcp", net.JoinHostPort(*bindAddr, strconv.Itoa(*gdbPort)))
			if err != nil {
				log.Fatal(err)
			}
			engine := debug.New(bus, cfg.DebugOffset, logger)
			srv := gdbserver.NewServer(engine, messibleAddress.isSet, uint32(messibleAddress.value), logger)
			go func() { errCh <- srv.Serve(ln) }()
		case "wishbone":
			ln, err := net.Listen("tcp", net.JoinHostPort(*bindAddr, strconv.Itoa(*wishbonePort)))
			if err != nil {
				log.Fatal(err)
			}
			srv := etherbone.NewServer(bus, logger)
			go func() { errCh <- srv.Serve(ln) }()
		case "random-test":
			go func() { errCh <- randomTest(bus, address, *randomLoops) }()
		case "terminal", "messible", "load-file", "flash-program":
			log.Fatalf("server %q is not built into this tool", name)
		default:
			log.Fatalf("unknown server %q", name)
		}
	}
	if err := <-errCh; err != nil {
		log.Fatal(err)
	}
}

type transportFlags struct {
	serialPath   string
	baud         int
	spiPins      string
	pcieBAR      string
	ethernetHost string
	ethernetTCP  bool
	ethernetPort int
	vid, pid     numFlag
	usbBus       int
	usbDevice    int
}

// buildConfig selects exactly one transport: serial, SPI, PCIe and
// Ethernet are mutually exclusive, and USB is the default when none of
// them is given.
func buildConfig(f transportFlags) (bridge.Config, error) {
	var cfg bridge.Config
	selected := 0
	if f.serialPath != "" {
		selected++
		cfg.Kind = bridge.TransportUART
		cfg.UART = bridge.UARTConfig{Path: f.serialPath, Baud: f.baud}
	}
	if f.spiPins != "" {
		selected++
		spi, err := parseSPIPins(f.spiPins)
		if err != nil {
			return cfg, err
		}
		cfg.Kind = bridge.TransportSPI
		cfg.SPI = spi
	}
	if f.pcieBAR != "" {
		selected++
		cfg.Kind = bridge.TransportPCIe
		cfg.PCIe = bridge.PCIeConfig{Path: f.pcieBAR}
	}
	if f.ethernetHost != "" {
		selected++
		host := f.ethernetHost
		if _, _, err := net.SplitHostPort(host); err != nil {
			host = net.JoinHostPort(host, strconv.Itoa(f.ethernetPort))
		}
		proto := bridge.NetUDP
		if f.ethernetTCP {
			proto = bridge.NetTCP
		}
		cfg.Kind = bridge.TransportEthernet
		cfg.Ethernet = bridge.EthernetConfig{Address: host, Proto: proto}
	}
	if selected > 1 {
		return cfg, fmt.Errorf("wbtool: more than one transport selected")
	}
	if selected == 0 {
		cfg.Kind = bridge.TransportUSB
		cfg.USB = bridge.USBConfig{
			VID:       uint16(f.vid.value),
			HasVID:    f.vid.isSet,
			PID:       uint16(f.pid.value),
			HasPID:    f.pid.isSet,
			Bus:       f.usbBus,
			HasBus:    f.usbBus >= 0,
			Device:    f.usbDevice,
			HasDevice: f.usbDevice >= 0,
		}
	}
	return cfg, nil
}

// parseSPIPins decodes copi,[cipo,]clk[,cs]: two pins are copi,clk;
// three are copi,cipo,clk; four add cs.
func parseSPIPins(s string) (bridge.SPIConfig, error) {
	var cfg bridge.SPIConfig
	parts := strings.Split(s, ",")
	pins := make([]int, 0, len(parts))
	for _, p := range parts {
		n, err := strconv.Atoi(strings.TrimSpace(p))
		if err != nil {
			return cfg, fmt.Errorf("wbtool: bad spi pin %q", p)
		}
		pins = append(pins, n)
	}
	switch len(pins) {
	case 2:
		cfg.COPI, cfg.Clk = pins[0], pins[1]
	case 3:
		cfg.COPI, cfg.CIPO, cfg.Clk = pins[0], pins[1], pins[2]
		cfg.HasCIPO = true
	case 4:
		cfg.COPI, cfg.CIPO, cfg.Clk, cfg.CS = pins[0], pins[1], pins[2], pins[3]
		cfg.HasCIPO = true
		cfg.HasCS = true
	default:
		return cfg, fmt.Errorf("wbtool: --spi-pins wants 2 to 4 pins, got %d", len(pins))
	}
	return cfg, nil
}

// oneshot performs a single peek or poke at --address and prints the
// result.
func oneshot(bus *bridge.Bridge, address, value numFlag, hexdump bool, burstLength int) error {
	addr := uint32(address.value)
	if value.isSet {
		if err := bus.Poke(addr, uint32(value.value)); err != nil {
			return err
		}
		fmt.Printf("Value at %08x: %08x\n", addr, uint32(value.value))
		return nil
	}
	if burstLength > 0 {
		data, err := bus.BurstRead(addr, burstLength)
		if err != nil {
			return err
		}
		if hexdump {
			fmt.Print(hex.Dump(data))
			return nil
		}
		for i := 0; i+4 <= len(data); i += 4 {
			word := uint32(data[i]) | uint32(data[i+1])<<8 | uint32(data[i+2])<<16 | uint32(data[i+3])<<24
			fmt.Printf("Value at %08x: %08x\n", addr+uint32(i), word)
		}
		return nil
	}
	v, err := bus.Peek(addr)
	if err != nil {
		return err
	}
	if hexdump {
		fmt.Print(hex.Dump([]byte{byte(v), byte(v >> 8), byte(v >> 16), byte(v >> 24)}))
		return nil
	}
	fmt.Printf("Value at %08x: %08x\n", addr, v)
	return nil
}

// randomTest pokes random words at --address (default 0x1000_0000) and
// verifies each one reads back, exercising the full transport path.
func randomTest(bus *bridge.Bridge, address numFlag, loops int) error {
	addr := uint32(0x1000_0000)
	if address.isSet {
		addr = uint32(address.value)
	}
	for i := 0; i < loops; i++ {
		want := rand.Uint32()
		unlock := bus.Lock()
		err := bus.PokeLocked(addr, want)
		var got uint32
		if err == nil {
			got, err = bus.PeekLocked(addr)
		}
		unlock()
		if err != nil {
			return err
		}
		if got != want {
			return fmt.Errorf("wbtool: random test mismatch at %08x: wrote %08x, read %08x", addr, want, got)
		}
	}
	fmt.Printf("random test passed: %d loops at %08x\n", loops, addr)
	return nil
}
