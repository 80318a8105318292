package riscv

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestEncodeAUIPCReadsPC(t *testing.T) {
	word := EncodeAUIPC(0, 0)
	require.Equal(t, uint32(0b0010111), word&0x7f)
	require.Equal(t, uint32(0), (word>>7)&0x1f) // rd=x0
}

func TestEncodeADDIReadsGeneralRegister(t *testing.T) {
	// addi x0, x5, 0 reads x5 into the result port.
	word := EncodeADDI(0, 5, 0)
	require.Equal(t, uint32(opOpImm), word&0x7f)
	require.Equal(t, uint32(0), (word>>7)&0x1f)  // rd
	require.Equal(t, uint32(5), (word>>15)&0x1f) // rs1
}

func TestEncodeCSRRWClobbersX1(t *testing.T) {
	// csrrw x1, mepc(0x341), x0
	word := EncodeCSRRW(X1, 0x341, 0)
	require.Equal(t, uint32(opSystem), word&0x7f)
	require.Equal(t, uint32(X1), (word>>7)&0x1f)
	require.Equal(t, uint32(0x341), word>>20)
}

func TestSplitImm32RoundTripsThroughLUIAndADDI(t *testing.T) {
	for _, value := range []uint32{0, 1, 0xdeadbeef, 0x8000_0000, 0xffff_ffff, 0x1234_5800} {
		imm20, imm12 := SplitImm32(value)
		lui := EncodeLUI(5, imm20)
		// Simulate what the CPU does: rd = imm20<<12 (lui), then
		// rd = rd + sign_extend(imm12) (addi). This must reconstruct
		// the original 32-bit value exactly.
		upper := (lui >> 12) << 12
		signed := int32(imm12<<20) >> 20
		got := uint32(int64(upper) + int64(signed))
		require.Equal(t, value, got, "value=%#x", value)
	}
}

func TestEncodeLoadsAndStoresRoundTripFields(t *testing.T) {
	lw := EncodeLW(1, 2, 4)
	require.Equal(t, uint32(opLoad), lw&0x7f)
	require.Equal(t, uint32(funct3LW), (lw>>12)&0x7)

	lbu := EncodeLBU(1, 2, 0)
	require.Equal(t, uint32(funct3LBU), (lbu>>12)&0x7)

	sw := EncodeSW(2, 1, 8)
	require.Equal(t, uint32(opStore), sw&0x7f)
	require.Equal(t, uint32(funct3SW), (sw>>12)&0x7)
	require.Equal(t, uint32(1), (sw>>20)&0x1f) // rs2
	require.Equal(t, uint32(2), (sw>>15)&0x1f) // rs1
}
