// Package etherbone implements the 20-byte Etherbone wire record
// shared by the Ethernet transport and the hosted
// Wishbone TCP server.
package etherbone

import (
	"encoding/binary"

	"github.com/wbtool/wbtool/pkg/wberr"
)

const (
	magicHi      = 0x4e
	magicLo      = 0x6f
	versionFlags = 0x10
	portSizes    = 0x44
	byteEnable   = 0x0f

	// HeaderLen is the fixed 16-byte Etherbone header.
	HeaderLen = 16
	// RecordLen is the fixed 20-byte single-transaction record used by
	// the Ethernet transport (header + one address + one data word).
	RecordLen = 20
)

// Record is a decoded Etherbone header plus its address/data payload.
// The Ethernet transport only ever sends/receives a single-operation
// 20-byte Record; the hosted server (server.go)
// decodes the same 16-byte header but a variable-length body.
type Record struct {
	WriteCount int
	ReadCount  int
	Addr       uint32
	Value      uint32
}

// EncodePoke builds the 20-byte record for a single poke: write count 1,
// read count 0.
func EncodePoke(addr, value uint32) []byte {
	buf := make([]byte, RecordLen)
	encodeHeader(buf, 1, 0)
	binary.BigEndian.PutUint32(buf[12:16], addr)
	binary.BigEndian.PutUint32(buf[16:20], value)
	return buf
}

// EncodePeek builds the 20-byte record for a single peek: write count 0,
// read count 1, address at offset 12 and zero payload.
func EncodePeek(addr uint32) []byte {
	buf := make([]byte, RecordLen)
	encodeHeader(buf, 0, 1)
	binary.BigEndian.PutUint32(buf[12:16], addr)
	return buf
}

// EncodePeekReply builds the reply to a peek request: the same header
// fields, with the requested value placed at offset 16..20.
func EncodePeekReply(addr, value uint32) []byte {
	buf := make([]byte, RecordLen)
	encodeHeader(buf, 0, 1)
	binary.BigEndian.PutUint32(buf[12:16], addr)
	binary.BigEndian.PutUint32(buf[16:20], value)
	return buf
}

func encodeHeader(buf []byte, wcount, rcount byte) {
	buf[0] = magicHi
	buf[1] = magicLo
	buf[2] = versionFlags
	buf[3] = portSizes
	// buf[4:8] padding, already zero
	buf[8] = 0 // record flags
	buf[9] = byteEnable
	buf[10] = wcount
	buf[11] = rcount
}

// DecodeHeader validates the magic in the first 16 bytes of a record and
// returns its write count and read count. The address word at offset 12
// (and the payload word at 16, for the single-record case) is left to
// the caller.
func DecodeHeader(buf []byte) (wcount, rcount int, err error) {
	if len(buf) < HeaderLen {
		return 0, 0, &wberr.LengthError{Expected: HeaderLen, Actual: len(buf)}
	}
	if buf[0] != magicHi || buf[1] != magicLo {
		return 0, 0, wberr.ErrNoMagic
	}
	return int(buf[10]), int(buf[11]), nil
}

// DecodeSingle decodes a full 20-byte single-transaction Record as used
// by the Ethernet transport.
func DecodeSingle(buf []byte) (Record, error) {
	if len(buf) < RecordLen {
		return Record{}, &wberr.LengthError{Expected: RecordLen, Actual: len(buf)}
	}
	wcount, rcount, err := DecodeHeader(buf)
	if err != nil {
		return Record{}, err
	}
	return Record{
		WriteCount: wcount,
		ReadCount:  rcount,
		Addr:       binary.BigEndian.Uint32(buf[12:16]),
		Value:      binary.BigEndian.Uint32(buf[16:20]),
	}, nil
}
