package riscv

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestDecodeExceptionNoException(t *testing.T) {
	exc := DecodeException(0, 0, 0)
	require.Equal(t, "NoException", exc.Name)
}

func TestDecodeExceptionMachineTimerInterrupt(t *testing.T) {
	exc := DecodeException(interruptBit|7, 0x8000_1000, 0)
	require.True(t, exc.Interrupt)
	require.Equal(t, "MachineTimerInterrupt", exc.Name)
	require.Contains(t, exc.Message, "0x80001000")
}

func TestDecodeExceptionMisalignedLoad(t *testing.T) {
	exc := DecodeException(4, 0x8000_0004, 0xdeadbeef)
	require.False(t, exc.Interrupt)
	require.Equal(t, "LoadAddressMisaligned", exc.Name)
	require.Contains(t, exc.Message, "0xdeadbeef")
	require.Contains(t, exc.Message, "0x80000004")
}

func TestDecodeExceptionReservedCodes(t *testing.T) {
	exc := DecodeException(interruptBit|2, 1, 1)
	require.Equal(t, "ReservedInterrupt", exc.Name)

	exc = DecodeException(10, 1, 1)
	require.Equal(t, "ReservedFault", exc.Name)

	exc = DecodeException(14, 1, 1)
	require.Equal(t, "ReservedFault", exc.Name)
}
