package bridge

// TransportKind selects which physical transport a Config constructs.
type TransportKind int

const (
	TransportUSB TransportKind = iota
	TransportUART
	TransportEthernet
	TransportPCIe
	TransportSPI
)

// NetProto distinguishes the two Ethernet/Etherbone socket kinds.
type NetProto int

const (
	NetUDP NetProto = iota
	NetTCP
)

// Config is the tagged transport configuration: exactly one of the
// embedded sub-configs is meaningful, selected by Kind.
type Config struct {
	Kind TransportKind

	USB      USBConfig
	UART     UARTConfig
	Ethernet EthernetConfig
	PCIe     PCIeConfig
	SPI      SPIConfig

	// BurstLength is the burst length a Bridge reports through its
	// BurstLength method; zero selects 4096. The bridge passes
	// BurstRead/BurstWrite requests to the transport unsplit, whatever
	// their length.
	BurstLength int

	// DebugOffset is the VexRiscv debug register block base address.
	// It is not interpreted by the bridge itself; it is threaded through Config
	// so that callers constructing both a Bridge and a debug engine
	// share one source of truth.
	DebugOffset uint32
}

// USBConfig optionally narrows device matching by vendor/product/bus/dev.
type USBConfig struct {
	VID, PID    uint16
	HasVID      bool
	HasPID      bool
	Bus, Device int
	HasBus      bool
	HasDevice   bool
}

// UARTConfig names a serial device path and baud rate.
type UARTConfig struct {
	Path string
	Baud int
}

// EthernetConfig names a socket address and protocol for Etherbone.
type EthernetConfig struct {
	Address string
	Proto   NetProto
}

// PCIeConfig names the filesystem path to a memory-mapped BAR resource.
type PCIeConfig struct {
	Path string
}

// SPIConfig assigns the bit-banged SPI pins. CIPO and CS are optional:
// CIPO absent means half-duplex (COPI flips direction for reads); CS
// absent means a sync byte is sent instead of asserting a chip-select line.
type SPIConfig struct {
	COPI    int
	CIPO    int
	HasCIPO bool
	Clk     int
	CS      int
	HasCS   bool
}
