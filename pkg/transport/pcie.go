package transport

import (
	"fmt"
	"os"
	"sync/atomic"
	"unsafe"

	"golang.org/x/sys/unix"

	"github.com/wbtool/wbtool/pkg/bridge"
)

// PCIe memory-maps a BAR resource file (e.g.
// /sys/bus/pci/devices/..../resource0) and serves peek/poke as 32-bit
// accesses into the mapping. Atomic loads and
// stores stand in for volatile access: each word moves in exactly one
// aligned machine operation the compiler cannot elide or tear.
type PCIe struct {
	cfg bridge.PCIeConfig
	f   *os.File
	mem []byte
}

// NewPCIe constructs a PCIe device for cfg.
func NewPCIe(cfg bridge.PCIeConfig) *PCIe {
	return &PCIe{cfg: cfg}
}

func (p *PCIe) Name() string { return "pcie" }

// Open maps the whole BAR read/write and shared.
func (p *PCIe) Open() error {
	if p.mem != nil {
		p.unmap()
	}
	f, err := os.OpenFile(p.cfg.Path, os.O_RDWR|os.O_SYNC, 0)
	if err != nil {
		return err
	}
	fi, err := f.Stat()
	if err != nil {
		f.Close()
		return err
	}
	mem, err := unix.Mmap(int(f.Fd()), 0, int(fi.Size()),
		unix.PROT_READ|unix.PROT_WRITE, unix.MAP_SHARED)
	if err != nil {
		f.Close()
		return err
	}
	p.f = f
	p.mem = mem
	return nil
}

func (p *PCIe) word(addr uint32) (*uint32, error) {
	if addr%4 != 0 {
		return nil, fmt.Errorf("transport: pcie access at %#08x is not word aligned", addr)
	}
	if int(addr)+4 > len(p.mem) {
		return nil, fmt.Errorf("transport: pcie access at %#08x is beyond the %d-byte BAR", addr, len(p.mem))
	}
	return (*uint32)(unsafe.Pointer(&p.mem[addr])), nil
}

func (p *PCIe) Peek(addr uint32) (uint32, error) {
	w, err := p.word(addr)
	if err != nil {
		return 0, err
	}
	return atomic.LoadUint32(w), nil
}

func (p *PCIe) Poke(addr, value uint32) error {
	w, err := p.word(addr)
	if err != nil {
		return err
	}
	atomic.StoreUint32(w, value)
	return nil
}

// BurstRead copies out of the mapping word by word, preserving the
// one-aligned-access-per-word discipline of Peek.
func (p *PCIe) BurstRead(addr uint32, length int) ([]byte, error) {
	out := make([]byte, 0, length)
	for length > 0 {
		v, err := p.Peek(addr)
		if err != nil {
			return nil, err
		}
		chunk := 4
		if length < chunk {
			chunk = length
		}
		var word [4]byte
		word[0] = byte(v)
		word[1] = byte(v >> 8)
		word[2] = byte(v >> 16)
		word[3] = byte(v >> 24)
		out = append(out, word[:chunk]...)
		addr += 4
		length -= chunk
	}
	return out, nil
}

// BurstWrite copies into the mapping word by word; a trailing partial
// word is merged with the current hardware contents.
func (p *PCIe) BurstWrite(addr uint32, data []byte) error {
	for len(data) > 0 {
		chunk := 4
		if len(data) < chunk {
			chunk = len(data)
		}
		var v uint32
		if chunk < 4 {
			cur, err := p.Peek(addr)
			if err != nil {
				return err
			}
			v = cur
		}
		for i := 0; i < chunk; i++ {
			v = v&^(0xff<<(8*i)) | uint32(data[i])<<(8*i)
		}
		if err := p.Poke(addr, v); err != nil {
			return err
		}
		addr += 4
		data = data[chunk:]
	}
	return nil
}

func (p *PCIe) Close() error {
	return p.unmap()
}

func (p *PCIe) unmap() error {
	var err error
	if p.mem != nil {
		err = unix.Munmap(p.mem)
		p.mem = nil
	}
	if p.f != nil {
		if cerr := p.f.Close(); err == nil {
			err = cerr
		}
		p.f = nil
	}
	return err
}
