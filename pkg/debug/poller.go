package debug

import (
	"context"
	"log/slog"
	"time"

	"github.com/wbtool/wbtool/pkg/riscv"
)

// pollInterval is the poller's sleep between cycles.
const pollInterval = 200 * time.Millisecond

// messibleDrainMax bounds how many bytes one poll cycle forwards from
// the auxiliary FIFO.
const messibleDrainMax = 64

// StopReason distinguishes why a PollEvent reports a halt.
type StopReason int

const (
	StopNone StopReason = iota
	StopBreakpoint
	StopSignal
)

// PollEvent is what one PollOnce cycle observed.
type PollEvent struct {
	Stop   StopReason
	Output []byte
}

// PollOnce runs a single poller cycle. messibleAddr is
// only consulted when hasMessible is true.
func (e *Engine) PollOnce(hasMessible bool, messibleAddr uint32) (PollEvent, error) {
	unlock := e.bus.Lock()
	defer unlock()
	e.mu.Lock()
	defer e.mu.Unlock()

	status, err := e.readStatus()
	if err != nil {
		return PollEvent{}, err
	}
	running := status&(bitHalt|bitPipBusy) == 0

	if e.state == Running && !running {
		ev := PollEvent{Stop: StopSignal}
		if status&bitHaltedByBreak != 0 {
			// The break instruction itself was squashed but pc had
			// already advanced; the result port still holds it.
			pc, err := e.bus.PeekLocked(e.debugOffset + resultOffset)
			if err != nil {
				return PollEvent{}, err
			}
			e.setCached(riscv.PC, pc)
			ev.Stop = StopBreakpoint
		}
		if err := e.haltLocked(); err != nil {
			return PollEvent{}, err
		}
		return ev, nil
	}

	if e.state == Halted && running {
		// Resumed outside debugger knowledge: force a halt and drop
		// whatever scratch state that external resume left behind.
		e.cache = make(map[int]uint32)
		e.cacheOrder = nil
		if err := e.haltLocked(); err != nil {
			return PollEvent{}, err
		}
		return PollEvent{}, nil
	}

	if running && hasMessible {
		out, err := e.drainMessibleLocked(messibleAddr)
		if err != nil {
			return PollEvent{}, err
		}
		if len(out) > 0 {
			return PollEvent{Output: out}, nil
		}
	}

	return PollEvent{}, nil
}

const (
	messibleStatusOffset = 8
	messibleDataOffset   = 4
	messibleNotEmpty     = 1 << 1
)

func (e *Engine) drainMessibleLocked(base uint32) ([]byte, error) {
	var out []byte
	for len(out) < messibleDrainMax {
		status, err := e.bus.PeekLocked(base + messibleStatusOffset)
		if err != nil {
			return out, err
		}
		if status&messibleNotEmpty == 0 {
			break
		}
		data, err := e.bus.PeekLocked(base + messibleDataOffset)
		if err != nil {
			return out, err
		}
		out = append(out, byte(data))
	}
	return out, nil
}

// Poller drives repeated PollOnce cycles on its own goroutine until
// stopped, forwarding events to onEvent.
type Poller struct {
	engine       *Engine
	hasMessible  bool
	messibleAddr uint32
	log          *slog.Logger
	onEvent      func(PollEvent)
}

// NewPoller constructs a Poller for engine. onEvent is invoked from the
// poller's own goroutine and must not block.
func NewPoller(engine *Engine, hasMessible bool, messibleAddr uint32, log *slog.Logger, onEvent func(PollEvent)) *Poller {
	if log == nil {
		log = slog.Default()
	}
	return &Poller{
		engine:       engine,
		hasMessible:  hasMessible,
		messibleAddr: messibleAddr,
		log:          log.With("component", "poller"),
		onEvent:      onEvent,
	}
}

// Run blocks, polling until ctx is cancelled.
func (p *Poller) Run(ctx context.Context) {
	ticker := time.NewTicker(pollInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			ev, err := p.engine.PollOnce(p.hasMessible, p.messibleAddr)
			if err != nil {
				p.log.Warn("poll cycle failed", "error", err)
				continue
			}
			if ev.Stop != StopNone || len(ev.Output) > 0 {
				p.onEvent(ev)
			}
		}
	}
}
