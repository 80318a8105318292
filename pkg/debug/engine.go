package debug

import (
	"log/slog"
	"sort"
	"sync"

	"github.com/wbtool/wbtool/pkg/bridge"
	"github.com/wbtool/wbtool/pkg/riscv"
	"github.com/wbtool/wbtool/pkg/wberr"
)

// State is the CPU state as tracked by the engine.
type State int

const (
	Unknown State = iota
	Halted
	Running
)

func (s State) String() string {
	switch s {
	case Halted:
		return "halted"
	case Running:
		return "running"
	default:
		return "unknown"
	}
}

// Engine is the VexRiscv debug engine: it owns the register cache,
// breakpoint table, CPU state, MMU flag and last-exception slot, and
// is shared by pointer between the poller and the GDB dispatcher;
// all of it survives a GDB reconnect.
type Engine struct {
	bus         *bridge.Bridge
	debugOffset uint32
	log         *slog.Logger

	mu    sync.Mutex
	regs  []riscv.Register
	state State

	cache      map[int]uint32 // gdbIndex -> pre-debug value
	cacheOrder []int

	mmuProbed  bool
	mmuPresent bool

	lastException *riscv.Exception

	breakpoints [2]Breakpoint
}

// Breakpoint is one hardware breakpoint slot.
type Breakpoint struct {
	Address   uint32
	Enabled   bool
	Allocated bool
}

// New constructs an Engine borrowing bus, with its debug register
// block at debugOffset.
func New(bus *bridge.Bridge, debugOffset uint32, log *slog.Logger) *Engine {
	if log == nil {
		log = slog.Default()
	}
	return &Engine{
		bus:         bus,
		debugOffset: debugOffset,
		log:         log.With("component", "debug"),
		regs:        riscv.BuildRegisterFile(),
		cache:       make(map[int]uint32),
		state:       Unknown,
	}
}

// State reports the current CPU state.
func (e *Engine) State() State {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.state
}

// Registers returns the engine's static register table. Every entry is
// marked Present; the engine does not probe which CSRs the hardware
// implements.
func (e *Engine) Registers() []riscv.Register {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.regs
}

// LastException returns the last recorded trap, if any.
func (e *Engine) LastException() *riscv.Exception {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.lastException
}

func (e *Engine) readStatus() (uint32, error) {
	return e.bus.PeekLocked(e.debugOffset + statusOffset)
}

func (e *Engine) writeStatus(bits uint32) error {
	return e.bus.PokeLocked(e.debugOffset+statusOffset, bits)
}

// inject pokes word into the instruction/result register, spins until
// PIP_BUSY clears, and returns the resulting result-port value.
func (e *Engine) inject(word uint32) (uint32, error) {
	if err := e.bus.PokeLocked(e.debugOffset+resultOffset, word); err != nil {
		return 0, err
	}
	for i := 0; i < injectRetries; i++ {
		status, err := e.readStatus()
		if err != nil {
			return 0, err
		}
		if status&bitPipBusy == 0 {
			return e.bus.PeekLocked(e.debugOffset + resultOffset)
		}
	}
	return 0, wberr.ErrInstructionTimeout
}

func (e *Engine) flushPipeline() error {
	for _, word := range riscv.FlushSequence {
		if _, err := e.inject(word); err != nil {
			return err
		}
	}
	return nil
}

// ensureCached caches the pre-debug value of general register idx
// (x1 or x2) the first time it is used as scratch within this halt.
func (e *Engine) ensureCached(idx int) error {
	if _, ok := e.cache[idx]; ok {
		return nil
	}
	value, err := e.inject(riscv.EncodeADDI(0, uint32(idx), 0))
	if err != nil {
		return err
	}
	e.cache[idx] = value
	e.cacheOrder = append(e.cacheOrder, idx)
	return nil
}

// setCached records value as the restore-on-resume contents of the
// register with the given GDB index.
func (e *Engine) setCached(gdbIndex int, value uint32) {
	e.cache[gdbIndex] = value
	if !contains(e.cacheOrder, gdbIndex) {
		e.cacheOrder = append(e.cacheOrder, gdbIndex)
	}
}

// materialize loads an arbitrary 32-bit constant into register rd via
// LUI+ADDI (riscv.SplitImm32).
func (e *Engine) materialize(rd int, value uint32) error {
	imm20, imm12 := riscv.SplitImm32(value)
	if _, err := e.inject(riscv.EncodeLUI(uint32(rd), imm20)); err != nil {
		return err
	}
	_, err := e.inject(riscv.EncodeADDI(uint32(rd), uint32(rd), imm12))
	return err
}

// writePC sets the program counter by materializing the target into x1
// and injecting `jalr x0, 0(x1)`. The caller is responsible for x1's
// pre-debug value being cached, since this clobbers it.
func (e *Engine) writePC(value uint32) error {
	if err := e.materialize(riscv.X1, value); err != nil {
		return err
	}
	_, err := e.inject(riscv.EncodeJALR(0, riscv.X1, 0))
	return err
}

// restoreCache writes every cached register back to the CPU: pc first
// (its jalr write goes through x1), then the remaining entries with
// gdb_index > 2 (including any parked CSR such as satp, whose write
// also clobbers x1), then x1/x2 so the scratch registers end up with
// their final values, then clears the cache.
func (e *Engine) restoreCache() error {
	if pc, ok := e.cache[riscv.PC]; ok {
		if err := e.ensureCached(riscv.X1); err != nil {
			return err
		}
		if err := e.writePC(pc); err != nil {
			return err
		}
	}
	order := append([]int(nil), e.cacheOrder...)
	sort.SliceStable(order, func(i, j int) bool {
		return rank(order[i]) < rank(order[j])
	})
	for _, idx := range order {
		if idx == riscv.PC {
			continue
		}
		reg, ok := riscv.ByGDBIndex(e.regs, idx)
		if !ok {
			continue
		}
		value := e.cache[idx]
		if reg.Kind == riscv.CSR {
			if err := e.materialize(riscv.X1, value); err != nil {
				return err
			}
			if _, err := e.inject(riscv.EncodeCSRRW(0, uint32(reg.Index), riscv.X1)); err != nil {
				return err
			}
			continue
		}
		if err := e.materialize(reg.Index, value); err != nil {
			return err
		}
	}
	e.cache = make(map[int]uint32)
	e.cacheOrder = nil
	return nil
}

func rank(gdbIndex int) int {
	if gdbIndex > 2 {
		return 0
	}
	return 1
}
