// Copyright 2023-2024, Stratum Labs, Inc.
// For license information, see https://github.com/stratumlabs/stratum/blob/master/LICENSE

package bitfield

import (
	"encoding/binary"

	"github.com/pkg/errors"

	"github.com/stratumlabs/stratum/chain"
)

var (
	ErrInvalidCapacity   = errors.New("capacity must be a positive multiple of the chunk size")
	ErrChunkExists       = errors.New("chunk already materialized")
	ErrChunkNotFound     = errors.New("chunk not materialized")
	ErrRegistryExhausted = errors.New("registry capacity exhausted")
)

// Registry is the directory and capacity guard over a set of chunks. It
// holds no bits itself; chunks are separate accounts addressed by
// deterministic derivation from (registry, chunk index), which makes a
// duplicate chunk impossible to create.
type Registry struct {
	Owner         chain.Address
	TotalCapacity uint64
	ChunkCount    uint32
	TotalSet      uint64
	CreatedAt     int64

	materialized map[uint32]bool
}

// RegistryAddress derives the account identity for an owner's registry.
func RegistryAddress(owner chain.Address) chain.Address {
	return chain.Derive(chain.SeedBitfieldRegistry, owner.Bytes())
}

// ChunkAddress derives the account identity of one chunk page.
func ChunkAddress(registry chain.Address, chunkIndex uint32) chain.Address {
	var le [4]byte
	binary.LittleEndian.PutUint32(le[:], chunkIndex)
	return chain.Derive(chain.SeedBitfieldChunk, registry.Bytes(), le[:])
}

func NewRegistry(owner chain.Address, totalCapacity uint64, now int64) (*Registry, error) {
	if totalCapacity == 0 || totalCapacity%uint64(BitsPerChunk) != 0 {
		return nil, errors.Wrapf(ErrInvalidCapacity, "capacity %v", totalCapacity)
	}
	return &Registry{
		Owner:         owner,
		TotalCapacity: totalCapacity,
		CreatedAt:     now,
	}, nil
}

// MaxChunks is the number of chunk slots the capacity allows.
func (r *Registry) MaxChunks() uint32 {
	return uint32(r.TotalCapacity / uint64(BitsPerChunk))
}

// MaterializeChunk allocates the zeroed page for chunkIndex and records it
// in the directory. The chunk's derived identity makes the allocation
// idempotent at the account layer; a repeat here fails instead.
func (r *Registry) MaterializeChunk(chunkIndex uint32, now int64) (*Chunk, error) {
	if chunkIndex >= r.MaxChunks() {
		return nil, errors.Wrapf(ErrChunkIndexOutOfRange, "chunk %v of %v", chunkIndex, r.MaxChunks())
	}
	if r.materialized[chunkIndex] {
		return nil, errors.Wrapf(ErrChunkExists, "chunk %v", chunkIndex)
	}
	if r.materialized == nil {
		r.materialized = make(map[uint32]bool)
	}
	r.materialized[chunkIndex] = true
	r.ChunkCount++
	return NewChunk(RegistryAddress(r.Owner), chunkIndex, now), nil
}

// RecordSet notes one newly set bit for registry-wide accounting.
func (r *Registry) RecordSet() {
	r.TotalSet++
}

// RecordUnset notes one newly cleared bit.
func (r *Registry) RecordUnset() {
	if r.TotalSet > 0 {
		r.TotalSet--
	}
}

// FillRateBps is the registry-wide set fraction in basis points.
func (r *Registry) FillRateBps() uint16 {
	if r.TotalCapacity == 0 {
		return 0
	}
	return uint16(r.TotalSet * 10_000 / r.TotalCapacity)
}
