package debug

import "github.com/wbtool/wbtool/pkg/wberr"

// AddBreakpoint allocates an unused hardware slot for addr.
func (e *Engine) AddBreakpoint(addr uint32) error {
	unlock := e.bus.Lock()
	defer unlock()
	e.mu.Lock()
	defer e.mu.Unlock()

	for i := range e.breakpoints {
		if !e.breakpoints[i].Allocated {
			e.breakpoints[i] = Breakpoint{Address: addr, Enabled: true, Allocated: true}
			return e.bus.PokeLocked(e.debugOffset+breakpointSlotBase+uint32(4*i), addr|1)
		}
	}
	return wberr.ErrBreakpointExhausted
}

// RemoveBreakpoint clears the slot matching addr.
func (e *Engine) RemoveBreakpoint(addr uint32) error {
	unlock := e.bus.Lock()
	defer unlock()
	e.mu.Lock()
	defer e.mu.Unlock()

	for i := range e.breakpoints {
		if e.breakpoints[i].Allocated && e.breakpoints[i].Address == addr {
			e.breakpoints[i] = Breakpoint{}
			return e.bus.PokeLocked(e.debugOffset+breakpointSlotBase+uint32(4*i), 0)
		}
	}
	return &wberr.BreakpointNotFoundError{Address: addr}
}

// reemitBreakpointsLocked rewrites every slot's hardware word on each
// resume/step so a transient hardware reset never loses a software
// breakpoint.
func (e *Engine) reemitBreakpointsLocked() error {
	for i, bp := range e.breakpoints {
		word := uint32(0)
		if bp.Allocated && bp.Enabled {
			word = bp.Address | 1
		}
		if err := e.bus.PokeLocked(e.debugOffset+breakpointSlotBase+uint32(4*i), word); err != nil {
			return err
		}
	}
	return nil
}

// Breakpoints returns a snapshot of the hardware breakpoint table.
func (e *Engine) Breakpoints() []Breakpoint {
	e.mu.Lock()
	defer e.mu.Unlock()
	out := make([]Breakpoint, len(e.breakpoints))
	copy(out, e.breakpoints[:])
	return out
}
