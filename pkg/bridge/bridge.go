package bridge

import (
	"log/slog"
	"sync"
	"sync/atomic"

	"github.com/wbtool/wbtool/pkg/wberr"
)

// defaultBurstChunk is the burst length a Bridge reports when Config's
// BurstLength is zero. The bridge does not split burst requests by it;
// the USB transport splits its own transfers at 4096 bytes.
const defaultBurstChunk = 4096

// Bridge is a shared, cheaply cloneable handle onto one transport
// worker. Cloning increments a reference count; when the last handle
// drops, the worker is told to Exit and is joined.
//
// The reply slot is a per-request, buffer-1 channel rather than a
// mutex-plus-condition-variable pair; mu is the serialization lock
// that guarantees a compound sequence of peek/pokes from one caller
// is not interleaved with another caller's.
type Bridge struct {
	reqCh    chan Request
	openedCh chan struct{}
	doneCh   chan struct{}
	refCount *int32
	once     *sync.Once
	mu       *sync.Mutex
	log      *slog.Logger

	burstLength int
}

// New constructs a Bridge for cfg and starts its transport worker. The
// returned Bridge has not yet connected; call Connect to block until the
// transport reports the device is open.
func New(dev Device, cfg Config, log *slog.Logger) *Bridge {
	if log == nil {
		log = slog.Default()
	}
	burst := cfg.BurstLength
	if burst <= 0 {
		burst = defaultBurstChunk
	}
	b := &Bridge{
		reqCh:       make(chan Request),
		openedCh:    make(chan struct{}),
		doneCh:      make(chan struct{}),
		refCount:    new(int32),
		once:        new(sync.Once),
		mu:          new(sync.Mutex),
		log:         log,
		burstLength: burst,
	}
	*b.refCount = 1
	go func() {
		runWorker(dev, b.reqCh, b.openedCh, b.log)
		close(b.doneCh)
	}()
	return b
}

// Clone returns a new handle sharing this Bridge's worker, incrementing
// the reference count.
func (b *Bridge) Clone() *Bridge {
	atomic.AddInt32(b.refCount, 1)
	clone := *b
	return &clone
}

// Close decrements the reference count. When the last clone is closed,
// the worker is sent Exit and joined.
func (b *Bridge) Close() {
	if atomic.AddInt32(b.refCount, -1) > 0 {
		return
	}
	b.once.Do(func() {
		replyCh := make(chan Reply, 1)
		b.reqCh <- Request{Kind: ReqExit, replyCh: replyCh}
		<-replyCh
		<-b.doneCh
	})
}

// Connect blocks until the transport worker reports the device opened.
// It never returns a per-request error: reconnection after the initial
// open is handled internally by the worker.
func (b *Bridge) Connect() {
	<-b.openedCh
}

// Lock acquires the bus mutex for the duration of a compound sequence of
// *Locked calls and returns the corresponding unlock function, guaranteed
// safe to call on any exit path.
func (b *Bridge) Lock() func() {
	b.mu.Lock()
	return b.mu.Unlock
}

// BurstLength reports the configured burst length (4096 when Config's
// BurstLength is zero).
func (b *Bridge) BurstLength() int { return b.burstLength }

// Peek reads one 32-bit little-endian word at addr, retrying
// indefinitely on any error except a USB disconnect.
func (b *Bridge) Peek(addr uint32) (uint32, error) {
	unlock := b.Lock()
	defer unlock()
	return b.PeekLocked(addr)
}

// PeekLocked is Peek for a caller that already holds the bus lock via
// Lock(), so several operations can be composed atomically.
func (b *Bridge) PeekLocked(addr uint32) (uint32, error) {
	for {
		reply := b.do(Request{Kind: ReqPeek, Addr: addr})
		if reply.Err == nil {
			return reply.Value, nil
		}
		if wberr.IsDisconnect(reply.Err) {
			return 0, reply.Err
		}
		// transient: re-issue against the (reconnecting) worker
	}
}

// Poke writes value to addr, with the same retry policy as Peek.
func (b *Bridge) Poke(addr, value uint32) error {
	unlock := b.Lock()
	defer unlock()
	return b.PokeLocked(addr, value)
}

// PokeLocked is Poke for a caller already holding the bus lock.
func (b *Bridge) PokeLocked(addr, value uint32) error {
	for {
		reply := b.do(Request{Kind: ReqPoke, Addr: addr, Value: value})
		if reply.Err == nil {
			return nil
		}
		if wberr.IsDisconnect(reply.Err) {
			return reply.Err
		}
	}
}

// BurstRead reads length bytes starting at addr. Transports without
// burst support return wberr.ErrProtocolNotSupported, which is not
// retried.
func (b *Bridge) BurstRead(addr uint32, length int) ([]byte, error) {
	unlock := b.Lock()
	defer unlock()
	return b.BurstReadLocked(addr, length)
}

// BurstReadLocked is BurstRead for a caller already holding the bus lock.
func (b *Bridge) BurstReadLocked(addr uint32, length int) ([]byte, error) {
	for {
		reply := b.do(Request{Kind: ReqBurstRead, Addr: addr, Length: length})
		if reply.Err == nil {
			return reply.Data, nil
		}
		if reply.Err == wberr.ErrProtocolNotSupported || wberr.IsDisconnect(reply.Err) {
			return nil, reply.Err
		}
	}
}

// BurstWrite writes data starting at addr, with the same semantics as
// BurstRead.
func (b *Bridge) BurstWrite(addr uint32, data []byte) error {
	unlock := b.Lock()
	defer unlock()
	return b.BurstWriteLocked(addr, data)
}

// BurstWriteLocked is BurstWrite for a caller already holding the bus lock.
func (b *Bridge) BurstWriteLocked(addr uint32, data []byte) error {
	for {
		reply := b.do(Request{Kind: ReqBurstWrite, Addr: addr, Data: data})
		if reply.Err == nil {
			return nil
		}
		if reply.Err == wberr.ErrProtocolNotSupported || wberr.IsDisconnect(reply.Err) {
			return reply.Err
		}
	}
}

// do posts req to the worker and waits for its reply. Posting and
// waiting happen without releasing the bus lock in between, so no
// wake-up is lost across request boundaries.
func (b *Bridge) do(req Request) Reply {
	replyCh := make(chan Reply, 1)
	req.replyCh = replyCh
	b.reqCh <- req
	return <-replyCh
}
