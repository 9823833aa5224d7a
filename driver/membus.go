package driver

import "sync"

// Access is one register write seen by a MemoryBus.
type Access struct {
	Addr  uint64
	Width int
	Value uint32
}

// MemoryBus is a sparse register file that records writes. It stands in for
// real devices when running the platform hooks on a host.
type MemoryBus struct {
	mu     sync.Mutex
	regs   map[uint64]uint32
	writes []Access
}

func NewMemoryBus() *MemoryBus {
	return &MemoryBus{
		regs: map[uint64]uint32{},
	}
}

// Preset sets the value later reads of addr return.
func (b *MemoryBus) Preset(addr uint64, val uint32) {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.regs[addr] = val
}

func (b *MemoryBus) Read8(addr uint64) uint8 {
	return uint8(b.Read32(addr))
}

func (b *MemoryBus) Write8(addr uint64, val uint8) {
	b.write(addr, 1, uint32(val))
}

func (b *MemoryBus) Read32(addr uint64) uint32 {
	b.mu.Lock()
	defer b.mu.Unlock()

	return b.regs[addr]
}

func (b *MemoryBus) Write32(addr uint64, val uint32) {
	b.write(addr, 4, val)
}

func (b *MemoryBus) write(addr uint64, width int, val uint32) {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.regs[addr] = val
	b.writes = append(b.writes, Access{Addr: addr, Width: width, Value: val})
}

// Writes returns every write in order.
func (b *MemoryBus) Writes() []Access {
	b.mu.Lock()
	defer b.mu.Unlock()

	return append([]Access(nil), b.writes...)
}

// Reset forgets recorded writes, register values are kept.
func (b *MemoryBus) Reset() {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.writes = nil
}
