package riscv

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestGDBIndexMapping(t *testing.T) {
	regs := BuildRegisterFile()

	x5, ok := ByGDBIndex(regs, 5)
	require.True(t, ok)
	require.Equal(t, General, x5.Kind)
	require.Equal(t, 5, x5.Index)

	pc, ok := ByGDBIndex(regs, 32)
	require.True(t, ok)
	require.Equal(t, "pc", pc.Name)

	mepc, ok := ByGDBIndex(regs, 65+0x341)
	require.True(t, ok)
	require.Equal(t, "mepc", mepc.Name)
}

func TestAllCPURegistersSortedAndComplete(t *testing.T) {
	regs := BuildRegisterFile()
	all := AllCPURegisters(regs)
	require.Len(t, all, 33) // x0..x31 + pc
	for i := 1; i < len(all); i++ {
		require.Less(t, all[i-1], all[i])
	}
	require.Equal(t, 0, all[0])
	require.Equal(t, 32, all[len(all)-1])
}

func TestX0NotSaveRestored(t *testing.T) {
	regs := BuildRegisterFile()
	x0, ok := ByGDBIndex(regs, 0)
	require.True(t, ok)
	require.False(t, x0.SaveRestore)
}
