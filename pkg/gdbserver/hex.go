package gdbserver

import (
	"encoding/binary"
	"encoding/hex"
)

// hexLE renders a 32-bit value as 8 lowercase hex digits in
// little-endian byte order: GDB expects register and memory-word
// replies in the target's natural byte order.
func hexLE(value uint32) string {
	var buf [4]byte
	binary.LittleEndian.PutUint32(buf[:], value)
	return hex.EncodeToString(buf[:])
}

// hexBytes renders an arbitrary byte slice as lowercase hex, used for
// O-packet console output where there is no
// register/word byte-order to preserve.
func hexBytes(data []byte) string {
	return hex.EncodeToString(data)
}

// parseHexLE parses 8 lowercase hex digits written in little-endian
// byte order back into a 32-bit value.
func parseHexLE(s string) (uint32, error) {
	raw, err := hex.DecodeString(s)
	if err != nil {
		return 0, err
	}
	var buf [4]byte
	copy(buf[:], raw)
	return binary.LittleEndian.Uint32(buf[:]), nil
}
