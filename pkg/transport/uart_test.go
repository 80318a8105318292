package transport

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/require"
)

// pipePort fakes the serial line: writes land in sent, reads drain
// reply.
type pipePort struct {
	sent  bytes.Buffer
	reply bytes.Reader
}

func (p *pipePort) Write(data []byte) (int, error) { return p.sent.Write(data) }
func (p *pipePort) Read(buf []byte) (int, error)   { return p.reply.Read(buf) }

func TestUARTPeekFraming(t *testing.T) {
	// Reading from 0x0000_0100 puts the word address 0x40 on the wire.
	port := &pipePort{}
	port.reply.Reset([]byte{0xDE, 0xAD, 0xBE, 0xEF})

	value, err := uartPeek(port, 0x0000_0100)
	require.NoError(t, err)
	require.Equal(t, uint32(0xDEADBEEF), value)
	require.Equal(t, []byte{0x02, 0x01, 0x00, 0x00, 0x00, 0x40}, port.sent.Bytes())
}

func TestUARTPokeFraming(t *testing.T) {
	port := &pipePort{}
	require.NoError(t, uartPoke(port, 0x0001_0000, 0x12345678))
	require.Equal(t, []byte{
		0x01, 0x01,
		0x00, 0x00, 0x40, 0x00, // 0x10000 >> 2, big-endian
		0x12, 0x34, 0x56, 0x78,
	}, port.sent.Bytes())
}

func TestUARTPeekDropsLowAddressBits(t *testing.T) {
	port := &pipePort{}
	port.reply.Reset([]byte{0, 0, 0, 1})
	_, err := uartPeek(port, 0x0000_0103)
	require.NoError(t, err)
	// Same wire address as 0x100: the device ignores the low two bits.
	require.Equal(t, []byte{0x02, 0x01, 0x00, 0x00, 0x00, 0x40}, port.sent.Bytes())
}

func TestUARTPeekShortReplyIsError(t *testing.T) {
	port := &pipePort{}
	port.reply.Reset([]byte{0xDE, 0xAD})
	_, err := uartPeek(port, 0x100)
	require.Error(t, err)
}
