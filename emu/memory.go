// Package emu provides the architectural state of the simulated machine:
// the flat byte-addressed memory and the register file with its rename map.
package emu

import "fmt"

// Memory is a flat little-endian byte-addressed store of fixed size.
// It backs both caches; the pipeline never touches it directly except
// through cache fills and write-backs.
type Memory struct {
	data []byte
}

// NewMemory creates a memory of the given size in bytes.
func NewMemory(size int) *Memory {
	return &Memory{data: make([]byte, size)}
}

// Size returns the memory size in bytes.
func (m *Memory) Size() int {
	return len(m.data)
}

// CheckBounds returns an error if [addr, addr+size) falls outside memory.
func (m *Memory) CheckBounds(addr uint64, size int) error {
	if addr+uint64(size) > uint64(len(m.data)) || addr+uint64(size) < addr {
		return fmt.Errorf("address %#x size %d outside memory of %d bytes",
			addr, size, len(m.data))
	}
	return nil
}

// Read8 reads a byte. Out-of-bounds reads return 0.
func (m *Memory) Read8(addr uint64) uint8 {
	if addr >= uint64(len(m.data)) {
		return 0
	}
	return m.data[addr]
}

// Write8 writes a byte. Out-of-bounds writes are dropped.
func (m *Memory) Write8(addr uint64, value uint8) {
	if addr >= uint64(len(m.data)) {
		return
	}
	m.data[addr] = value
}

// Read16 reads a little-endian 16-bit value.
func (m *Memory) Read16(addr uint64) uint16 {
	return uint16(m.Read8(addr)) | uint16(m.Read8(addr+1))<<8
}

// Write16 writes a little-endian 16-bit value.
func (m *Memory) Write16(addr uint64, value uint16) {
	m.Write8(addr, uint8(value))
	m.Write8(addr+1, uint8(value>>8))
}

// Read32 reads a little-endian 32-bit value.
func (m *Memory) Read32(addr uint64) uint32 {
	return uint32(m.Read16(addr)) | uint32(m.Read16(addr+2))<<16
}

// Write32 writes a little-endian 32-bit value.
func (m *Memory) Write32(addr uint64, value uint32) {
	m.Write16(addr, uint16(value))
	m.Write16(addr+2, uint16(value>>16))
}

// Read64 reads a little-endian 64-bit value.
func (m *Memory) Read64(addr uint64) uint64 {
	return uint64(m.Read32(addr)) | uint64(m.Read32(addr+4))<<32
}

// Write64 writes a little-endian 64-bit value.
func (m *Memory) Write64(addr uint64, value uint64) {
	m.Write32(addr, uint32(value))
	m.Write32(addr+4, uint32(value>>32))
}

// ReadBytes copies size bytes starting at addr. Bytes outside memory
// read as 0.
func (m *Memory) ReadBytes(addr uint64, size int) []byte {
	out := make([]byte, size)
	for i := 0; i < size; i++ {
		out[i] = m.Read8(addr + uint64(i))
	}
	return out
}

// WriteBytes copies data into memory starting at addr.
func (m *Memory) WriteBytes(addr uint64, data []byte) {
	for i, b := range data {
		m.Write8(addr+uint64(i), b)
	}
}
