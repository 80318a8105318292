package riscv

// The debug engine never assembles a program: it injects one
// instruction at a time into the VexRiscv instruction/result
// register. These encoders build the RV32I word for exactly the
// opcodes that requires, by bit-field composition rather than table
// lookup.

const (
	opLUI    = 0b0110111
	opAUIPC  = 0b0010111
	opOpImm  = 0b0010011 // ADDI
	opSystem = 0b1110011 // CSRRW
	opLoad   = 0b0000011
	opStore  = 0b0100011
	opJALR   = 0b1100111

	funct3ADDI  = 0b000
	funct3CSRRW = 0b001

	funct3LB  = 0b000
	funct3LH  = 0b001
	funct3LW  = 0b010
	funct3LBU = 0b100
	funct3LHU = 0b101

	funct3SB = 0b000
	funct3SH = 0b001
	funct3SW = 0b010
)

func encodeUType(opcode, rd, imm20 uint32) uint32 {
	return (imm20 << 12) | (rd&0x1f)<<7 | opcode
}

func encodeIType(opcode, funct3, rd, rs1, imm12 uint32) uint32 {
	return (imm12&0xfff)<<20 | (rs1&0x1f)<<15 | (funct3&0x7)<<12 | (rd&0x1f)<<7 | opcode
}

func encodeSType(opcode, funct3, rs1, rs2, imm12 uint32) uint32 {
	immLo := imm12 & 0x1f
	immHi := (imm12 >> 5) & 0x7f
	return immHi<<25 | (rs2&0x1f)<<20 | (rs1&0x1f)<<15 | (funct3&0x7)<<12 | immLo<<7 | opcode
}

// EncodeLUI encodes `lui rd, imm20`. Paired with EncodeADDI, this
// materializes an arbitrary 32-bit constant into a scratch register
// before it is used as the source of a register write or a memory
// address/value.
func EncodeLUI(rd, imm20 uint32) uint32 {
	return encodeUType(opLUI, rd, imm20)
}

// EncodeAUIPC encodes `auipc rd, imm20`. The engine uses `auipc x0,0` to
// place the current pc into the result port.
func EncodeAUIPC(rd, imm20 uint32) uint32 {
	return encodeUType(opAUIPC, rd, imm20)
}

// SplitImm32 splits a 32-bit constant into the (imm20, imm12) halves
// EncodeLUI/EncodeADDI expect, accounting for ADDI's sign-extension of
// its 12-bit immediate: if bit 11 of the low half is set, the upper
// half is incremented by one to compensate.
func SplitImm32(value uint32) (imm20, imm12 uint32) {
	imm12 = value & 0xfff
	imm20 = (value >> 12) & 0xfffff
	if imm12&0x800 != 0 {
		imm20 = (imm20 + 1) & 0xfffff
	}
	return imm20, imm12
}

// EncodeADDI encodes `addi rd, rs1, imm12`. The engine uses `addi x0,
// xN, 0` to read general register xN into the result port, and `addi
// xN, xN, imm` after a LUI to materialize a 32-bit constant.
func EncodeADDI(rd, rs1, imm12 uint32) uint32 {
	return encodeIType(opOpImm, funct3ADDI, rd, rs1, imm12)
}

// EncodeJALR encodes `jalr rd, imm12(rs1)`. The engine writes pc by
// materializing the target into x1 and injecting `jalr x0, 0(x1)`.
func EncodeJALR(rd, rs1, imm12 uint32) uint32 {
	return encodeIType(opJALR, 0, rd, rs1, imm12)
}

// EncodeCSRRW encodes `csrrw rd, csr, rs1`. The engine uses `csrrw x1,
// csr, x0` to read a CSR into x1 (and the result port), clobbering x1.
func EncodeCSRRW(rd, csr, rs1 uint32) uint32 {
	return encodeIType(opSystem, funct3CSRRW, rd, rs1, csr)
}

// EncodeLW encodes `lw rd, imm12(rs1)`.
func EncodeLW(rd, rs1, imm12 uint32) uint32 {
	return encodeIType(opLoad, funct3LW, rd, rs1, imm12)
}

// EncodeLHU encodes `lhu rd, imm12(rs1)` (zero-extended halfword load;
// the unsigned load forms keep sub-word reads zero-extended).
func EncodeLHU(rd, rs1, imm12 uint32) uint32 {
	return encodeIType(opLoad, funct3LHU, rd, rs1, imm12)
}

// EncodeLBU encodes `lbu rd, imm12(rs1)`.
func EncodeLBU(rd, rs1, imm12 uint32) uint32 {
	return encodeIType(opLoad, funct3LBU, rd, rs1, imm12)
}

// EncodeSW encodes `sw rs2, imm12(rs1)`.
func EncodeSW(rs1, rs2, imm12 uint32) uint32 {
	return encodeSType(opStore, funct3SW, rs1, rs2, imm12)
}

// EncodeSH encodes `sh rs2, imm12(rs1)`.
func EncodeSH(rs1, rs2, imm12 uint32) uint32 {
	return encodeSType(opStore, funct3SH, rs1, rs2, imm12)
}

// EncodeSB encodes `sb rs2, imm12(rs1)`.
func EncodeSB(rs1, rs2, imm12 uint32) uint32 {
	return encodeSType(opStore, funct3SB, rs1, rs2, imm12)
}

// FlushSequence is the fixed opcode sequence the engine injects to
// flush the VexRiscv pipeline cache before a step/resume. 19 is
// `addi x0, x0, 0` (a NOP); 4111 (0x100f) is `fence.i`, which flushes
// the instruction fetch pipeline.
var FlushSequence = [4]uint32{4111, 19, 19, 19}
