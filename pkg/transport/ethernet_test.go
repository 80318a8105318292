package transport

import (
	"net"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/wbtool/wbtool/pkg/bridge"
	"github.com/wbtool/wbtool/pkg/etherbone"
)

func dialUDPDevice(t *testing.T) (*Ethernet, net.PacketConn) {
	t.Helper()
	pc, err := net.ListenPacket("udp", "127.0.0.1:0")
	require.NoError(t, err)
	t.Cleanup(func() { pc.Close() })

	dev := NewEthernet(bridge.EthernetConfig{
		Address: pc.LocalAddr().String(),
		Proto:   bridge.NetUDP,
	})
	require.NoError(t, dev.Open())
	t.Cleanup(func() { dev.Close() })
	return dev, pc
}

func TestEthernetPokeDatagram(t *testing.T) {
	dev, pc := dialUDPDevice(t)

	require.NoError(t, dev.Poke(0x1000_0000, 0x1234_5678))

	buf := make([]byte, 64)
	n, _, err := pc.ReadFrom(buf)
	require.NoError(t, err)
	require.Equal(t, []byte{
		0x4e, 0x6f, 0x10, 0x44,
		0x00, 0x00, 0x00, 0x00,
		0x00, 0x0f, 0x01, 0x00,
		0x10, 0x00, 0x00, 0x00,
		0x12, 0x34, 0x56, 0x78,
	}, buf[:n])
}

func TestEthernetPeekRoundTrip(t *testing.T) {
	dev, pc := dialUDPDevice(t)

	// Fake device: echo each peek request with the value filled in at
	// offsets 16..20.
	go func() {
		buf := make([]byte, 64)
		n, addr, err := pc.ReadFrom(buf)
		if err != nil || n < etherbone.RecordLen {
			return
		}
		rec, err := etherbone.DecodeSingle(buf[:n])
		if err != nil || rec.ReadCount != 1 {
			return
		}
		pc.WriteTo(etherbone.EncodePeekReply(rec.Addr, 0xCAFEBABE), addr)
	}()

	value, err := dev.Peek(0x4000_0000)
	require.NoError(t, err)
	require.Equal(t, uint32(0xCAFEBABE), value)
}
