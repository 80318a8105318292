package transport

import (
	"io"
	"net"
	"time"

	"github.com/wbtool/wbtool/pkg/bridge"
	"github.com/wbtool/wbtool/pkg/etherbone"
)

const (
	ethDialTimeout = 5 * time.Second
	ethIOTimeout   = time.Second
)

// Ethernet speaks single-operation Etherbone records (pkg/etherbone)
// to a remote device over UDP or TCP.
type Ethernet struct {
	bridge.UnsupportedBurst
	cfg  bridge.EthernetConfig
	conn net.Conn
}

// NewEthernet constructs an Ethernet device for cfg.
func NewEthernet(cfg bridge.EthernetConfig) *Ethernet {
	return &Ethernet{cfg: cfg}
}

func (e *Ethernet) Name() string { return "ethernet" }

// Open dials the configured address. A connected UDP socket gives the
// same Write/Read shape as TCP while still sending one record per
// datagram.
func (e *Ethernet) Open() error {
	if e.conn != nil {
		e.conn.Close()
		e.conn = nil
	}
	network := "udp"
	if e.cfg.Proto == bridge.NetTCP {
		network = "tcp"
	}
	conn, err := net.DialTimeout(network, e.cfg.Address, ethDialTimeout)
	if err != nil {
		return err
	}
	e.conn = conn
	return nil
}

// Peek sends a read-count-1 record and decodes the value the device
// writes back at offsets 16..20 of the same 20-byte layout.
func (e *Ethernet) Peek(addr uint32) (uint32, error) {
	if err := e.conn.SetDeadline(time.Now().Add(ethIOTimeout)); err != nil {
		return 0, err
	}
	if _, err := e.conn.Write(etherbone.EncodePeek(addr)); err != nil {
		return 0, err
	}
	reply := make([]byte, etherbone.RecordLen)
	if e.cfg.Proto == bridge.NetTCP {
		if _, err := io.ReadFull(e.conn, reply); err != nil {
			return 0, err
		}
	} else {
		n, err := e.conn.Read(reply)
		if err != nil {
			return 0, err
		}
		reply = reply[:n]
	}
	rec, err := etherbone.DecodeSingle(reply)
	if err != nil {
		return 0, err
	}
	return rec.Value, nil
}

// Poke sends a write-count-1 record. The device does not acknowledge
// writes.
func (e *Ethernet) Poke(addr, value uint32) error {
	if err := e.conn.SetDeadline(time.Now().Add(ethIOTimeout)); err != nil {
		return err
	}
	_, err := e.conn.Write(etherbone.EncodePoke(addr, value))
	return err
}

func (e *Ethernet) Close() error {
	if e.conn == nil {
		return nil
	}
	err := e.conn.Close()
	e.conn = nil
	return err
}
