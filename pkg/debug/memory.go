package debug

import "github.com/wbtool/wbtool/pkg/riscv"

// ReadMemory reads width bytes (1, 2 or 4) at addr.
// 4-byte accesses go straight to the bus; 1/2-byte accesses are
// synthesized via LBU/LHU because the bus itself only moves 32-bit
// words.
func (e *Engine) ReadMemory(addr uint32, width int) (uint32, error) {
	unlock := e.bus.Lock()
	defer unlock()
	e.mu.Lock()
	defer e.mu.Unlock()

	if width == 4 {
		return e.bus.PeekLocked(addr)
	}

	if err := e.ensureCached(riscv.X1); err != nil {
		return 0, err
	}
	if err := e.materialize(riscv.X1, addr); err != nil {
		return 0, err
	}
	switch width {
	case 1:
		return e.inject(riscv.EncodeLBU(riscv.X1, riscv.X1, 0))
	case 2:
		return e.inject(riscv.EncodeLHU(riscv.X1, riscv.X1, 0))
	default:
		return 0, &widthError{width}
	}
}

// WriteMemory writes the low width bytes of value at addr.
func (e *Engine) WriteMemory(addr, value uint32, width int) error {
	unlock := e.bus.Lock()
	defer unlock()
	e.mu.Lock()
	defer e.mu.Unlock()

	if width == 4 {
		return e.bus.PokeLocked(addr, value)
	}

	if err := e.ensureCached(riscv.X1); err != nil {
		return err
	}
	if err := e.ensureCached(riscv.X2); err != nil {
		return err
	}
	if err := e.materialize(riscv.X1, value); err != nil {
		return err
	}
	if err := e.materialize(riscv.X2, addr); err != nil {
		return err
	}
	var err error
	switch width {
	case 1:
		_, err = e.inject(riscv.EncodeSB(riscv.X2, riscv.X1, 0))
	case 2:
		_, err = e.inject(riscv.EncodeSH(riscv.X2, riscv.X1, 0))
	default:
		return &widthError{width}
	}
	return err
}

type widthError struct{ width int }

func (e *widthError) Error() string {
	return "wbtool: unsupported memory access width"
}
