// Package cache models the L1 instruction and data caches using Akita
// cache components for tag and replacement bookkeeping.
package cache

import (
	"fmt"

	akitacache "github.com/sarchlab/akita/v4/mem/cache"
)

// HitLatency is the access latency in cycles when the block is resident.
const HitLatency uint64 = 1

// Config holds the shape of one cache.
type Config struct {
	// Size in bytes.
	Size int
	// BlockSize in bytes (cache line size).
	BlockSize int
	// Associativity (number of ways, 1 = direct mapped).
	Associativity int
	// MissPenalty is the miss latency in cycles, including the fill
	// from backing memory.
	MissPenalty uint64
}

// AccessResult contains the outcome of a cache access.
type AccessResult struct {
	// Hit indicates whether the access was a cache hit.
	Hit bool
	// Latency is the number of cycles this access takes.
	Latency uint64
	// Data is the value read (for read operations).
	Data uint64
	// Evicted is true if a valid block was evicted.
	Evicted bool
	// EvictedAddr is the block address of the evicted line.
	EvictedAddr uint64
}

// Statistics holds cache performance counters.
type Statistics struct {
	Reads      uint64
	Writes     uint64
	Hits       uint64
	Misses     uint64
	Evictions  uint64
	Writebacks uint64
}

// Accesses returns the total number of accesses.
func (s Statistics) Accesses() uint64 {
	return s.Reads + s.Writes
}

// BackingStore is the next level in the memory hierarchy.
type BackingStore interface {
	// Read fetches data from the backing store.
	Read(addr uint64, size int) []byte
	// Write stores data to the backing store.
	Write(addr uint64, data []byte)
}

// Cache is a set-associative write-back, write-allocate cache with LRU
// replacement. The Akita cache directory manages tags and victim
// selection; the data blocks live alongside, indexed by set and way.
type Cache struct {
	config    Config
	directory *akitacache.DirectoryImpl

	// dataStore is indexed by setID*associativity + wayID.
	dataStore [][]byte

	backing BackingStore
	stats   Statistics
}

// New creates a cache with the given configuration. The configuration
// is rejected if its geometry cannot form a whole number of sets.
func New(config Config, backing BackingStore) (*Cache, error) {
	if config.Size <= 0 || config.BlockSize <= 0 || config.Associativity <= 0 {
		return nil, fmt.Errorf("cache geometry must be positive")
	}
	if config.Size%(config.Associativity*config.BlockSize) != 0 {
		return nil, fmt.Errorf(
			"cache size %d not divisible into %d-way sets of %d-byte blocks",
			config.Size, config.Associativity, config.BlockSize)
	}
	if config.MissPenalty == 0 {
		return nil, fmt.Errorf("miss penalty must be > 0")
	}

	numSets := config.Size / (config.Associativity * config.BlockSize)
	totalBlocks := numSets * config.Associativity

	dataStore := make([][]byte, totalBlocks)
	for i := range dataStore {
		dataStore[i] = make([]byte, config.BlockSize)
	}

	return &Cache{
		config: config,
		directory: akitacache.NewDirectory(
			numSets,
			config.Associativity,
			config.BlockSize,
			akitacache.NewLRUVictimFinder(),
		),
		dataStore: dataStore,
		backing:   backing,
	}, nil
}

// Config returns the cache configuration.
func (c *Cache) Config() Config {
	return c.config
}

// Stats returns the cache counters.
func (c *Cache) Stats() Statistics {
	return c.stats
}

// ResetStats clears the cache counters.
func (c *Cache) ResetStats() {
	c.stats = Statistics{}
}

func (c *Cache) blockIndex(block *akitacache.Block) int {
	return block.SetID*c.config.Associativity + block.WayID
}

func (c *Cache) blockAddr(addr uint64) uint64 {
	return addr / uint64(c.config.BlockSize) * uint64(c.config.BlockSize)
}

// Read performs a cache read of size bytes at addr.
func (c *Cache) Read(addr uint64, size int) AccessResult {
	c.stats.Reads++

	block := c.directory.Lookup(0, c.blockAddr(addr))
	if block != nil && block.IsValid {
		c.stats.Hits++
		c.directory.Visit(block)

		offset := addr % uint64(c.config.BlockSize)
		data := extractData(c.dataStore[c.blockIndex(block)], offset, size)
		return AccessResult{Hit: true, Latency: HitLatency, Data: data}
	}

	c.stats.Misses++
	return c.handleMiss(addr, size, false, 0)
}

// Write performs a cache write of size bytes at addr. Write-allocate: a
// miss fetches the block first, then writes it.
func (c *Cache) Write(addr uint64, size int, data uint64) AccessResult {
	c.stats.Writes++

	block := c.directory.Lookup(0, c.blockAddr(addr))
	if block != nil && block.IsValid {
		c.stats.Hits++
		c.directory.Visit(block)

		offset := addr % uint64(c.config.BlockSize)
		storeData(c.dataStore[c.blockIndex(block)], offset, size, data)
		block.IsDirty = true
		return AccessResult{Hit: true, Latency: HitLatency}
	}

	c.stats.Misses++
	return c.handleMiss(addr, size, true, data)
}

// handleMiss fills the block from backing store, evicting the LRU victim
// and writing it back if dirty.
func (c *Cache) handleMiss(addr uint64, size int, isWrite bool, writeData uint64) AccessResult {
	result := AccessResult{Latency: c.config.MissPenalty}
	blockAddr := c.blockAddr(addr)

	victim := c.directory.FindVictim(blockAddr)
	if victim == nil {
		return result
	}
	victimData := c.dataStore[c.blockIndex(victim)]

	if victim.IsValid {
		c.stats.Evictions++
		result.Evicted = true
		result.EvictedAddr = victim.Tag

		if victim.IsDirty && c.backing != nil {
			c.stats.Writebacks++
			c.backing.Write(victim.Tag, victimData)
		}
	}

	if c.backing != nil {
		copy(victimData, c.backing.Read(blockAddr, c.config.BlockSize))
	} else {
		for i := range victimData {
			victimData[i] = 0
		}
	}

	// The tag stores the block-aligned address.
	victim.Tag = blockAddr
	victim.IsValid = true
	victim.IsDirty = false

	offset := addr % uint64(c.config.BlockSize)
	if isWrite {
		storeData(victimData, offset, size, writeData)
		victim.IsDirty = true
	} else {
		result.Data = extractData(victimData, offset, size)
	}

	c.directory.Visit(victim)
	return result
}

// Invalidate drops the line holding addr without writeback.
func (c *Cache) Invalidate(addr uint64) {
	block := c.directory.Lookup(0, c.blockAddr(addr))
	if block != nil && block.IsValid {
		block.IsValid = false
		block.IsDirty = false
	}
}

// Flush writes back all dirty blocks and invalidates the cache.
func (c *Cache) Flush() {
	for _, set := range c.directory.GetSets() {
		for _, block := range set.Blocks {
			if block.IsValid && block.IsDirty && c.backing != nil {
				c.backing.Write(block.Tag, c.dataStore[c.blockIndex(block)])
				c.stats.Writebacks++
			}
			block.IsValid = false
			block.IsDirty = false
		}
	}
}

// extractData reads a little-endian value of the given size from a block.
func extractData(data []byte, offset uint64, size int) uint64 {
	if data == nil || int(offset)+size > len(data) {
		return 0
	}

	var result uint64
	for i := 0; i < size; i++ {
		result |= uint64(data[int(offset)+i]) << (i * 8)
	}
	return result
}

// storeData writes a little-endian value of the given size into a block.
func storeData(data []byte, offset uint64, size int, value uint64) {
	if data == nil || int(offset)+size > len(data) {
		return
	}

	for i := 0; i < size; i++ {
		data[int(offset)+i] = byte(value >> (i * 8))
	}
}
