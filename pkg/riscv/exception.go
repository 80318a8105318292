package riscv

import "fmt"

// Exception is the decoded trap cause captured at halt time.
type Exception struct {
	Code      uint32
	Interrupt bool
	Name      string
	Message   string
}

const interruptBit = uint32(1) << 31

var interruptNames = map[uint32]string{
	0:  "UserSoftwareInterrupt",
	1:  "SupervisorSoftwareInterrupt",
	3:  "MachineSoftwareInterrupt",
	4:  "UserTimerInterrupt",
	5:  "SupervisorTimerInterrupt",
	7:  "MachineTimerInterrupt",
	8:  "UserExternalInterrupt",
	9:  "SupervisorExternalInterrupt",
	11: "MachineExternalInterrupt",
}

var exceptionNames = map[uint32]string{
	0:  "InstructionAddressMisaligned",
	1:  "InstructionAccessFault",
	2:  "IllegalInstruction",
	3:  "Breakpoint",
	4:  "LoadAddressMisaligned",
	5:  "LoadAccessFault",
	6:  "StoreAddressMisaligned",
	7:  "StoreAccessFault",
	8:  "EnvironmentCallFromUMode",
	9:  "EnvironmentCallFromSMode",
	11: "EnvironmentCallFromMMode",
	12: "InstructionPageFault",
	13: "LoadPageFault",
	15: "StorePageFault",
}

var messageTemplates = map[string]string{
	"MachineSoftwareInterrupt":     "Machine swi at 0x%08x",
	"MachineTimerInterrupt":        "Machine timer interrupt at 0x%08x",
	"MachineExternalInterrupt":     "Machine external interrupt at 0x%08x",
	"LoadAddressMisaligned":        "Misaligned load address of 0x%08x at 0x%08x",
	"StoreAddressMisaligned":       "Misaligned store address of 0x%08x at 0x%08x",
	"InstructionAddressMisaligned": "Misaligned instruction address of 0x%08x at 0x%08x",
	"LoadAccessFault":              "Load access fault at address 0x%08x, pc 0x%08x",
	"StoreAccessFault":             "Store access fault at address 0x%08x, pc 0x%08x",
	"InstructionAccessFault":       "Instruction access fault at address 0x%08x, pc 0x%08x",
	"IllegalInstruction":           "Illegal instruction 0x%08x at 0x%08x",
	"Breakpoint":                   "Breakpoint hit at 0x%08x",
}

// DecodeException derives an Exception from (mcause, mepc, mtval)
// per the RISC-V privileged spec.
func DecodeException(mcause, mepc, mtval uint32) Exception {
	if mepc == 0 && mtval == 0 {
		return Exception{Name: "NoException", Message: "no exception"}
	}
	interrupt := mcause&interruptBit != 0
	code := mcause &^ interruptBit

	var name string
	table := exceptionNames
	reserved := "ReservedFault"
	if interrupt {
		table = interruptNames
		reserved = "ReservedInterrupt"
	}
	if n, ok := table[code]; ok {
		name = n
	} else {
		name = reserved
	}

	msg := messageForTemplate(name, code, mtval, mepc)
	return Exception{Code: code, Interrupt: interrupt, Name: name, Message: msg}
}

func messageForTemplate(name string, code, mtval, mepc uint32) string {
	tpl, ok := messageTemplates[name]
	if !ok {
		return fmt.Sprintf("%s (code %d) at 0x%08x", name, code, mepc)
	}
	switch name {
	case "MachineSoftwareInterrupt", "MachineTimerInterrupt", "MachineExternalInterrupt", "Breakpoint":
		return fmt.Sprintf(tpl, mepc)
	default:
		return fmt.Sprintf(tpl, mtval, mepc)
	}
}
