// Package riscv describes the RISC-V register file exposed by the
// VexRiscv debug engine and
// synthesizes the handful of RV32I instructions the engine injects to
// read and write CPU state.
package riscv

// RegisterKind distinguishes the 32 general-purpose/pc registers from
// the CSR address space.
type RegisterKind int

const (
	General RegisterKind = iota
	CSR
)

// ContentsKind classifies what a register's bits mean to GDB, mirroring
// the riscv.xml "type" attribute GDB expects.
type ContentsKind int

const (
	Int ContentsKind = iota
	DataPtr
	CodePtr
)

func (k ContentsKind) String() string {
	switch k {
	case DataPtr:
		return "data_ptr"
	case CodePtr:
		return "code_ptr"
	default:
		return "int"
	}
}

// pcGeneralIndex is the general-register slot GDB assigns to pc
// (the general index space is 0..32, with 32 = pc).
const pcGeneralIndex = 32

// csrGDBBase is added to a CSR's own index to get its GDB register
// number.
const csrGDBBase = 65

// Register is one entry of the RISC-V register file.
type Register struct {
	Kind        RegisterKind
	Index       int // general-register number (0..32) or CSR address
	Name        string
	Present     bool
	SaveRestore bool
	Contents    ContentsKind
}

// GDBIndex returns the register's GDB remote-serial-protocol index.
func (r Register) GDBIndex() int {
	if r.Kind == CSR {
		return r.Index + csrGDBBase
	}
	return r.Index
}

// generalNames are the ABI names for x0..x31; x0 is wired to zero and
// therefore present and not save/restored across a halt.
var generalNames = [32]string{
	"zero", "ra", "sp", "gp", "tp", "t0", "t1", "t2",
	"s0", "s1", "a0", "a1", "a2", "a3", "a4", "a5",
	"a6", "a7", "s2", "s3", "s4", "s5", "s6", "s7",
	"s8", "s9", "s10", "s11", "t3", "t4", "t5", "t6",
}

// csrDef is a statically-known CSR from the RISC-V privileged spec.
type csrDef struct {
	addr     int
	name     string
	contents ContentsKind
}

// knownCSRs enumerates the machine-mode CSRs the engine cares about.
// This list is intentionally the set relevant to a VexRiscv target
// without a user-mode trap delegation, not the full privileged-spec
// address space.
var knownCSRs = []csrDef{
	{0x300, "mstatus", Int},
	{0x301, "misa", Int},
	{0x304, "mie", Int},
	{0x305, "mtvec", CodePtr},
	{0x340, "mscratch", Int},
	{0x341, "mepc", CodePtr},
	{0x342, "mcause", Int},
	{0x343, "mtval", DataPtr},
	{0x344, "mip", Int},
	{0xb00, "mcycle", Int},
	{0xb02, "minstret", Int},
	{0xf11, "mvendorid", Int},
	{0xf12, "marchid", Int},
	{0xf13, "mimpid", Int},
	{0xf14, "mhartid", Int},
	{0x180, "satp", DataPtr},
}

// BuildRegisterFile returns the full static register table: x0..x31,
// pc, and every known CSR, all marked Present. Nothing probes the
// hardware to clear Present for a CSR the target does not implement.
func BuildRegisterFile() []Register {
	regs := make([]Register, 0, 32+1+len(knownCSRs))
	for i := 0; i < 32; i++ {
		regs = append(regs, Register{
			Kind:        General,
			Index:       i,
			Name:        generalNames[i],
			Present:     true,
			SaveRestore: i != 0,
			Contents:    Int,
		})
	}
	regs = append(regs, Register{
		Kind:        General,
		Index:       pcGeneralIndex,
		Name:        "pc",
		Present:     true,
		SaveRestore: true,
		Contents:    CodePtr,
	})
	for _, c := range knownCSRs {
		regs = append(regs, Register{
			Kind:        CSR,
			Index:       c.addr,
			Name:        c.name,
			Present:     true,
			SaveRestore: true,
			Contents:    c.contents,
		})
	}
	return regs
}

// AllCPURegisters returns the sorted GDB indices of the general set.
func AllCPURegisters(regs []Register) []int {
	var out []int
	for _, r := range regs {
		if r.Kind == General {
			out = append(out, r.GDBIndex())
		}
	}
	for i := 1; i < len(out); i++ {
		for j := i; j > 0 && out[j-1] > out[j]; j-- {
			out[j-1], out[j] = out[j], out[j-1]
		}
	}
	return out
}

// ByGDBIndex finds the register with the given GDB index.
func ByGDBIndex(regs []Register, idx int) (Register, bool) {
	for _, r := range regs {
		if r.GDBIndex() == idx {
			return r, true
		}
	}
	return Register{}, false
}

const (
	// X1 and X2 are the scratch registers the debug engine clobbers
	// while synthesizing instructions.
	X1 = 1
	X2 = 2

	// PC is the GDB index of the program counter.
	PC = pcGeneralIndex
)
