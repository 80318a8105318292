package riscv

import (
	"fmt"
	"strings"
)

// ThreadsXML is the literal reply to qXfer:threads:read: the target
// is single-threaded.
const ThreadsXML = `<?xml version="1.0"?><threads></threads>`

// TargetXML renders the feature description GDB fetches via
// qXfer:features:read:target.xml: a cpu feature with
// the 32 general registers plus pc, and a csr feature with every CSR
// whose Present flag is set.
func TargetXML(regs []Register) string {
	var b strings.Builder
	b.WriteString(`<?xml version="1.0"?>`)
	b.WriteString("\n<!DOCTYPE target SYSTEM \"gdb-target.dtd\">\n<target>\n")
	b.WriteString("  <feature name=\"org.gnu.gdb.riscv.cpu\">\n")
	for _, r := range regs {
		if r.Kind == General && r.Present {
			writeRegisterXML(&b, r)
		}
	}
	b.WriteString("  </feature>\n")
	b.WriteString("  <feature name=\"org.gnu.gdb.riscv.csr\">\n")
	for _, r := range regs {
		if r.Kind == CSR && r.Present {
			writeRegisterXML(&b, r)
		}
	}
	b.WriteString("  </feature>\n</target>\n")
	return b.String()
}

func writeRegisterXML(b *strings.Builder, r Register) {
	fmt.Fprintf(b, "    <reg name=\"%s\" bitsize=\"32\" regnum=\"%d\" type=\"%s\"",
		r.Name, r.GDBIndex(), r.Contents.String())
	if !r.SaveRestore {
		b.WriteString(" save-restore=\"no\"")
	}
	b.WriteString("/>\n")
}
