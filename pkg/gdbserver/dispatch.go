package gdbserver

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/wbtool/wbtool/pkg/riscv"
	"github.com/wbtool/wbtool/pkg/wberr"
)

const qSupportedReply = "PacketSize=3fff;qXfer:features:read+;qXfer:threads:read+;qXfer:memory-map:read-;QStartNoAckMode+;vContSupported+"

// dispatch decodes and executes one command packet, returning the
// payload of the reply packet and
// whether a reply should be sent at all: resume/continue commands
// produce no immediate reply, only the poller's later stop-reply.
func (s *session) dispatch(packet string) (string, bool) {
	switch {
	case strings.HasPrefix(packet, "qSupported"):
		return qSupportedReply, true
	case packet == "QStartNoAckMode":
		s.ackMode = false
		return "OK", true
	case packet == "?":
		return s.lastStatusReply(), true
	case packet == "g":
		return s.handleReadGeneralRegisters(), true
	case strings.HasPrefix(packet, "p"):
		return s.handleReadRegister(packet[1:]), true
	case strings.HasPrefix(packet, "P"):
		return s.handleWriteRegister(packet[1:]), true
	case strings.HasPrefix(packet, "m"):
		return s.handleReadMemory(packet[1:]), true
	case strings.HasPrefix(packet, "M"):
		return s.handleWriteMemory(packet[1:]), true
	case strings.HasPrefix(packet, "X"):
		return s.handleWriteMemoryBinary(packet[1:]), true
	case strings.HasPrefix(packet, "Z"):
		return s.handleBreakpoint(packet[1:], true), true
	case strings.HasPrefix(packet, "z"):
		return s.handleBreakpoint(packet[1:], false), true
	case strings.HasPrefix(packet, "H"):
		return "OK", true
	case packet == "qfThreadInfo":
		return "l", true
	case packet == "qsThreadInfo":
		return "l", true
	case packet == "qC":
		return "QC0", true
	case packet == "qAttached":
		return "1", true
	case packet == "qOffsets":
		return "Text=0;Data=0;Bss=0", true
	case strings.HasPrefix(packet, "qXfer:features:read:"):
		return s.handleXferFeatures(packet[len("qXfer:features:read:"):]), true
	case strings.HasPrefix(packet, "qXfer:threads:read::"):
		return sliceXfer(riscv.ThreadsXML, 0, len(riscv.ThreadsXML)), true
	case strings.HasPrefix(packet, "qXfer:memory-map:read::"):
		return "", true
	case strings.HasPrefix(packet, "qRcmd,"):
		return s.handleMonitor(packet[len("qRcmd,"):]), true
	case packet == "vCont?":
		return "vCont;c;C;s;S", true
	case strings.HasPrefix(packet, "vCont;c"), packet == "c":
		s.handleResume()
		return "", false
	case strings.HasPrefix(packet, "vCont;s"), packet == "s":
		return s.handleStep(), true
	case strings.HasPrefix(packet, "vCont;C"):
		s.handleResume()
		return "", false
	case packet == "vMustReplyEmpty":
		return "", true
	default:
		return "", true
	}
}

func (s *session) lastStatusReply() string {
	if !s.alive {
		return "W00"
	}
	exc := s.engine.LastException()
	signal := byte(5) // SIGTRAP
	if exc != nil && exc.Interrupt {
		signal = 2 // SIGINT-shaped report for an asynchronous trap
	}
	return fmt.Sprintf("S%02x", signal)
}

func (s *session) handleReadGeneralRegisters() string {
	values, err := s.engine.ReadGeneralRegisters()
	if err != nil {
		return errorReply(err)
	}
	var b strings.Builder
	for _, v := range values {
		b.WriteString(hexLE(v))
	}
	return b.String()
}

func (s *session) handleReadRegister(rest string) string {
	idx, err := strconv.ParseInt(rest, 16, 32)
	if err != nil {
		return errorReply(err)
	}
	v, err := s.engine.ReadRegister(int(idx))
	if err != nil {
		return errorReply(err)
	}
	return hexLE(v)
}

func (s *session) handleWriteRegister(rest string) string {
	parts := strings.SplitN(rest, "=", 2)
	if len(parts) != 2 {
		return "E01"
	}
	idx, err := strconv.ParseInt(parts[0], 16, 32)
	if err != nil {
		return errorReply(err)
	}
	value, err := parseHexLE(parts[1])
	if err != nil {
		return errorReply(err)
	}
	if err := s.engine.WriteRegister(int(idx), value); err != nil {
		return errorReply(err)
	}
	return "OK"
}

func parseAddrLen(rest string) (addr uint32, length int, ok bool) {
	parts := strings.SplitN(rest, ",", 2)
	if len(parts) != 2 {
		return 0, 0, false
	}
	a, err := strconv.ParseUint(parts[0], 16, 32)
	if err != nil {
		return 0, 0, false
	}
	l, err := strconv.ParseInt(parts[1], 16, 32)
	if err != nil {
		return 0, 0, false
	}
	return uint32(a), int(l), true
}

func (s *session) handleReadMemory(rest string) string {
	addr, length, ok := parseAddrLen(rest)
	if !ok {
		return "E01"
	}
	var b strings.Builder
	for length > 0 {
		switch {
		case length >= 4:
			v, err := s.engine.ReadMemory(addr, 4)
			if err != nil {
				return errorReply(err)
			}
			b.WriteString(hexLE(v))
			addr += 4
			length -= 4
		case length >= 2:
			v, err := s.engine.ReadMemory(addr, 2)
			if err != nil {
				return errorReply(err)
			}
			b.WriteString(hexLE(v)[:4])
			addr += 2
			length -= 2
		default:
			v, err := s.engine.ReadMemory(addr, 1)
			if err != nil {
				return errorReply(err)
			}
			b.WriteString(hexLE(v)[:2])
			addr++
			length--
		}
	}
	return b.String()
}

func (s *session) handleWriteMemory(rest string) string {
	parts := strings.SplitN(rest, ":", 2)
	if len(parts) != 2 {
		return "E01"
	}
	addr, length, ok := parseAddrLen(parts[0])
	if !ok {
		return "E01"
	}
	return s.writeMemoryHex(addr, length, parts[1])
}

func (s *session) handleWriteMemoryBinary(rest string) string {
	parts := strings.SplitN(rest, ":", 2)
	if len(parts) != 2 {
		return "E01"
	}
	addr, length, ok := parseAddrLen(parts[0])
	if !ok {
		return "E01"
	}
	data := []byte(parts[1])
	return s.writeMemoryBytes(addr, length, data)
}

func (s *session) writeMemoryHex(addr uint32, length int, hexData string) string {
	raw := make([]byte, 0, length)
	for i := 0; i+1 < len(hexData) && len(raw) < length; i += 2 {
		b, err := strconv.ParseUint(hexData[i:i+2], 16, 8)
		if err != nil {
			return errorReply(err)
		}
		raw = append(raw, byte(b))
	}
	return s.writeMemoryBytes(addr, length, raw)
}

func (s *session) writeMemoryBytes(addr uint32, length int, data []byte) string {
	pos := 0
	for pos < length && pos < len(data) {
		remaining := length - pos
		switch {
		case remaining >= 4 && pos+4 <= len(data):
			v := uint32(data[pos]) | uint32(data[pos+1])<<8 | uint32(data[pos+2])<<16 | uint32(data[pos+3])<<24
			if err := s.engine.WriteMemory(addr, v, 4); err != nil {
				return errorReply(err)
			}
			addr += 4
			pos += 4
		case remaining >= 2 && pos+2 <= len(data):
			v := uint32(data[pos]) | uint32(data[pos+1])<<8
			if err := s.engine.WriteMemory(addr, v, 2); err != nil {
				return errorReply(err)
			}
			addr += 2
			pos += 2
		default:
			if err := s.engine.WriteMemory(addr, uint32(data[pos]), 1); err != nil {
				return errorReply(err)
			}
			addr++
			pos++
		}
	}
	return "OK"
}

// handleBreakpoint implements Z/z: types 0/1 (software/
// hardware) map to the hardware slot table; watchpoint types 2..4 are
// decoded but report "no free slot" since the hardware has none.
func (s *session) handleBreakpoint(rest string, add bool) string {
	parts := strings.SplitN(rest, ",", 3)
	if len(parts) != 3 {
		return "E01"
	}
	kind, err := strconv.ParseInt(parts[0], 16, 8)
	if err != nil {
		return errorReply(err)
	}
	addr, err := strconv.ParseUint(parts[1], 16, 32)
	if err != nil {
		return errorReply(err)
	}
	if kind != 0 && kind != 1 {
		return "E0E" // watchpoint types: no free slot
	}
	if add {
		if err := s.engine.AddBreakpoint(uint32(addr)); err != nil {
			return errorReply(err)
		}
	} else {
		if err := s.engine.RemoveBreakpoint(uint32(addr)); err != nil {
			return errorReply(err)
		}
	}
	return "OK"
}

func (s *session) handleXferFeatures(rest string) string {
	parts := strings.SplitN(rest, ":", 2)
	if len(parts) != 2 || parts[0] != "target.xml" {
		return "" // unknown file: empty reply, not a protocol error
	}
	offLen := strings.SplitN(parts[1], ",", 2)
	if len(offLen) != 2 {
		return "E01"
	}
	off, err := strconv.ParseInt(offLen[0], 16, 32)
	if err != nil {
		return "E01"
	}
	length, err := strconv.ParseInt(offLen[1], 16, 32)
	if err != nil {
		return "E01"
	}
	xml := riscv.TargetXML(s.engine.Registers())
	return sliceXfer(xml, int(off), int(length))
}

func (s *session) handleMonitor(hexCmd string) string {
	outputs, err := s.runMonitor(hexCmd)
	if err != nil {
		return errorReply(err)
	}
	for _, line := range outputs {
		s.writeRaw(framePacket("O" + hexBytes([]byte(line))))
	}
	return "OK"
}

func (s *session) handleResume() string {
	if err := s.engine.Resume(); err != nil {
		s.log.Warn("resume failed", "error", err)
		return "E01"
	}
	return ""
}

func (s *session) handleStep() string {
	if err := s.engine.Step(); err != nil {
		s.log.Warn("step failed", "error", err)
		return "E01"
	}
	return "S05"
}

// errorReply maps an engine error to a GDB error number.
func errorReply(err error) string {
	switch {
	case err == wberr.ErrBreakpointExhausted:
		return "E0E"
	case err == wberr.ErrInstructionTimeout:
		return "E01"
	default:
		return "E01"
	}
}
