package debug

import "github.com/wbtool/wbtool/pkg/riscv"

const satpCSR = 0x180

// satpGDBIndex is satp's slot in the register cache when it is parked
// across a halt.
const satpGDBIndex = satpCSR + 65
const mcauseCSR = 0x342
const mepcCSR = 0x341
const mtvalCSR = 0x343
const mstatusCSR = 0x300
const mstatusMIE = 1 << 3

// Halt raises HALT_SET, flushes the pipeline cache, captures the trap
// cause, and parks the MMU if it is active.
func (e *Engine) Halt() error {
	unlock := e.bus.Lock()
	defer unlock()
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.haltLocked()
}

func (e *Engine) haltLocked() error {
	if err := e.writeStatus(bitHaltSet); err != nil {
		return err
	}
	if err := e.flushPipeline(); err != nil {
		return err
	}

	mcause, err := e.readCSRLocked(mcauseCSR)
	if err != nil {
		return err
	}
	mepc, err := e.readCSRLocked(mepcCSR)
	if err != nil {
		return err
	}
	mtval, err := e.readCSRLocked(mtvalCSR)
	if err != nil {
		return err
	}
	mstatus, err := e.readCSRLocked(mstatusCSR)
	if err != nil {
		return err
	}

	exc := riscv.DecodeException(mcause, mepc, mtval)
	interruptsDisabled := mstatus&mstatusMIE == 0
	if interruptsDisabled && (e.lastException == nil || *e.lastException != exc) {
		e.lastException = &exc
	}

	if err := e.probeMMULocked(); err != nil {
		return err
	}
	// VexRiscv cannot correctly service the debug D-cache while the
	// MMU is translating, so an enabled satp is parked with bit 31
	// cleared for the duration of the halt. The saved value goes into
	// the register cache, from where the resume path writes it back.
	if e.mmuPresent {
		satp, err := e.readCSRLocked(satpCSR)
		if err != nil {
			return err
		}
		if satp&0x8000_0000 != 0 {
			e.setCached(satpGDBIndex, satp)
			if err := e.writeCSRLocked(satpCSR, satp&^0x8000_0000); err != nil {
				return err
			}
		}
	}

	e.state = Halted
	return nil
}

// readCSRLocked/writeCSRLocked assume both the bus lock and e.mu are
// already held (used by halt/resume/probe internals, which compose
// several CSR accesses into one atomic sequence).
//
// `csrrw rd, csr, x0` swaps the CSR with zero as a side effect of
// reading it, which would silently clear mcause/mepc/mtval/satp on
// every read; a second csrrw writes the value straight back so the
// net effect on the CSR is a pure read.
func (e *Engine) readCSRLocked(csr uint32) (uint32, error) {
	if err := e.ensureCached(riscv.X1); err != nil {
		return 0, err
	}
	value, err := e.inject(riscv.EncodeCSRRW(riscv.X1, csr, 0))
	if err != nil {
		return 0, err
	}
	if err := e.materialize(riscv.X1, value); err != nil {
		return 0, err
	}
	if _, err := e.inject(riscv.EncodeCSRRW(0, csr, riscv.X1)); err != nil {
		return 0, err
	}
	return value, nil
}

func (e *Engine) writeCSRLocked(csr, value uint32) error {
	if err := e.ensureCached(riscv.X1); err != nil {
		return err
	}
	if err := e.materialize(riscv.X1, value); err != nil {
		return err
	}
	_, err := e.inject(riscv.EncodeCSRRW(0, csr, riscv.X1))
	return err
}

// probeMMULocked detects an MMU once per process by attempting to
// write ~satp and observing whether the value changed.
func (e *Engine) probeMMULocked() error {
	if e.mmuProbed {
		return nil
	}
	before, err := e.readCSRLocked(satpCSR)
	if err != nil {
		return err
	}
	if err := e.writeCSRLocked(satpCSR, ^before); err != nil {
		return err
	}
	after, err := e.readCSRLocked(satpCSR)
	if err != nil {
		return err
	}
	e.mmuPresent = after != before
	e.mmuProbed = true
	if err := e.writeCSRLocked(satpCSR, before); err != nil {
		return err
	}
	return nil
}

// restoreRunSequence performs the shared Step/Resume prelude: drain
// the register cache (pc and parked CSRs first, scratch registers
// last) and flush the pipeline.
func (e *Engine) restoreRunSequence() error {
	if err := e.restoreCache(); err != nil {
		return err
	}
	return e.flushPipeline()
}

// Resume restarts the CPU: Halted -> Running.
func (e *Engine) Resume() error {
	unlock := e.bus.Lock()
	defer unlock()
	e.mu.Lock()
	defer e.mu.Unlock()

	if err := e.restoreRunSequence(); err != nil {
		return err
	}
	if err := e.reemitBreakpointsLocked(); err != nil {
		return err
	}
	if err := e.writeStatus(bitHaltClear); err != nil {
		return err
	}
	e.state = Running
	return nil
}

// Step executes exactly one instruction: Halted -> (briefly Running)
// -> Halted.
func (e *Engine) Step() error {
	unlock := e.bus.Lock()
	defer unlock()
	e.mu.Lock()
	defer e.mu.Unlock()

	if err := e.restoreRunSequence(); err != nil {
		return err
	}
	if err := e.reemitBreakpointsLocked(); err != nil {
		return err
	}
	if err := e.writeStatus(bitHaltClear | bitStep); err != nil {
		return err
	}
	return e.haltLocked()
}

// Reset pulses the hardware reset sequence and clears all
// engine-owned state: any -> Halted.
func (e *Engine) Reset() error {
	unlock := e.bus.Lock()
	defer unlock()
	e.mu.Lock()
	defer e.mu.Unlock()

	if err := e.writeStatus(bitHaltSet); err != nil {
		return err
	}
	if err := e.writeStatus(bitHaltSet | bitResetSet); err != nil {
		return err
	}
	if err := e.writeStatus(bitResetClear); err != nil {
		return err
	}

	e.cache = make(map[int]uint32)
	e.cacheOrder = nil
	e.mmuProbed = false
	e.mmuPresent = false
	e.lastException = nil
	e.state = Halted
	return nil
}
