package cache

import "github.com/sarchlab/mipssim/emu"

// MemoryBacking adapts the flat simulated memory to the BackingStore
// interface.
type MemoryBacking struct {
	memory *emu.Memory
}

// NewMemoryBacking creates a backing store over the given memory.
func NewMemoryBacking(memory *emu.Memory) *MemoryBacking {
	return &MemoryBacking{memory: memory}
}

// Read fetches size bytes starting at addr.
func (b *MemoryBacking) Read(addr uint64, size int) []byte {
	return b.memory.ReadBytes(addr, size)
}

// Write stores data starting at addr.
func (b *MemoryBacking) Write(addr uint64, data []byte) {
	b.memory.WriteBytes(addr, data)
}
