// Copyright 2023-2024, Stratum Labs, Inc.
// For license information, see https://github.com/stratumlabs/stratum/blob/master/LICENSE

package bitfield

import (
	"math/bits"

	"github.com/pkg/errors"

	"github.com/stratumlabs/stratum/chain"
)

var (
	ErrBitIndexOutOfRange   = errors.New("bit index out of range")
	ErrChunkIndexOutOfRange = errors.New("chunk index out of range")
)

const (
	// BitsPerChunk is the page size: 256 bytes of flags per chunk.
	BitsPerChunk uint32 = 2048
	BytesPerChunk       = 256
)

// Chunk is one fixed-size bit page. SetCount caches the popcount and is
// maintained incrementally on every mutation; the registry relies on it
// for O(1) accounting, so it is never recomputed from the raw bytes.
type Chunk struct {
	Registry   chain.Address
	ChunkIndex uint32
	Bits       [BytesPerChunk]byte
	SetCount   uint16
	CreatedAt  int64
}

func NewChunk(registry chain.Address, chunkIndex uint32, now int64) *Chunk {
	return &Chunk{
		Registry:   registry,
		ChunkIndex: chunkIndex,
		CreatedAt:  now,
	}
}

// IsSet reports whether bit i is set. Out-of-range indices read as unset.
func (c *Chunk) IsSet(i uint32) bool {
	if i >= BitsPerChunk {
		return false
	}
	return c.Bits[i/8]>>(i%8)&1 == 1
}

// Set flips bit i on. The return reports whether a transition occurred.
func (c *Chunk) Set(i uint32) (bool, error) {
	if i >= BitsPerChunk {
		return false, errors.Wrapf(ErrBitIndexOutOfRange, "index %v", i)
	}
	if c.IsSet(i) {
		return false, nil
	}
	c.Bits[i/8] |= 1 << (i % 8)
	c.SetCount++
	return true, nil
}

// Unset flips bit i off. The return reports whether the bit was set.
func (c *Chunk) Unset(i uint32) (bool, error) {
	if i >= BitsPerChunk {
		return false, errors.Wrapf(ErrBitIndexOutOfRange, "index %v", i)
	}
	if !c.IsSet(i) {
		return false, nil
	}
	c.Bits[i/8] &^= 1 << (i % 8)
	c.SetCount--
	return true, nil
}

// CountSet recomputes the popcount from the raw bytes. Diagnostic only;
// use SetCount for accounting.
func (c *Chunk) CountSet() uint16 {
	var total int
	for _, b := range c.Bits {
		total += bits.OnesCount8(b)
	}
	return uint16(total)
}

func (c *Chunk) IsFull() bool {
	return uint32(c.SetCount) >= BitsPerChunk
}

func (c *Chunk) IsEmpty() bool {
	return c.SetCount == 0
}

// FillRateBps is the set fraction in basis points (0-10000).
func (c *Chunk) FillRateBps() uint16 {
	return uint16(uint32(c.SetCount) * 10_000 / BitsPerChunk)
}

// GlobalIndex maps a local bit index to its registry-wide position.
func (c *Chunk) GlobalIndex(local uint32) uint64 {
	return uint64(c.ChunkIndex)*uint64(BitsPerChunk) + uint64(local)
}

// SplitIndex converts a global bit position to (chunk index, local index).
func SplitIndex(global uint64) (uint32, uint32) {
	return uint32(global / uint64(BitsPerChunk)), uint32(global % uint64(BitsPerChunk))
}
