// Copyright 2023-2024, Stratum Labs, Inc.
// For license information, see https://github.com/stratumlabs/stratum/blob/master/LICENSE

package orderbook

import (
	"encoding/binary"

	"github.com/ethereum/go-ethereum/common"
	"github.com/pkg/errors"

	"github.com/stratumlabs/stratum/chain"
	"github.com/stratumlabs/stratum/merkle"
)

// Side of an order. The wire form is a single byte.
type Side uint8

const (
	Bid Side = 0
	Ask Side = 1
)

func (s Side) String() string {
	if s == Bid {
		return "bid"
	}
	return "ask"
}

func (s Side) Opposite() Side {
	return 1 - s
}

// LeafSize is the canonical encoded size of an order leaf.
const LeafSize = 81

// OrderLeaf is one order as committed into an epoch's merkle tree. It is
// never stored on chain; the canonical 81-byte encoding below is the ABI
// between the off-chain tree builder and the settlement verifier, and any
// deviation makes the proof unverifiable.
type OrderLeaf struct {
	Maker      chain.Address
	OrderID    uint64
	Side       Side
	Price      uint64
	Amount     uint64
	EpochIndex uint32
	OrderIndex uint32
	CreatedAt  int64
	ExpiresAt  int64 // 0 = never
}

// Encode produces the canonical layout: maker(32) ‖ order_id(u64) ‖
// side(u8) ‖ price(u64) ‖ amount(u64) ‖ epoch_index(u32) ‖
// order_index(u32) ‖ created_at(i64) ‖ expires_at(i64), all little-endian.
func (o *OrderLeaf) Encode() []byte {
	buf := make([]byte, 0, LeafSize)
	buf = append(buf, o.Maker.Bytes()...)
	buf = binary.LittleEndian.AppendUint64(buf, o.OrderID)
	buf = append(buf, byte(o.Side))
	buf = binary.LittleEndian.AppendUint64(buf, o.Price)
	buf = binary.LittleEndian.AppendUint64(buf, o.Amount)
	buf = binary.LittleEndian.AppendUint32(buf, o.EpochIndex)
	buf = binary.LittleEndian.AppendUint32(buf, o.OrderIndex)
	buf = binary.LittleEndian.AppendUint64(buf, uint64(o.CreatedAt))
	buf = binary.LittleEndian.AppendUint64(buf, uint64(o.ExpiresAt))
	return buf
}

// DecodeOrderLeaf parses the canonical layout. Length and side byte are
// the only degrees of freedom, so those are all it can reject.
func DecodeOrderLeaf(data []byte) (*OrderLeaf, error) {
	if len(data) != LeafSize {
		return nil, errors.Wrapf(ErrInvalidLeaf, "length %v, want %v", len(data), LeafSize)
	}
	var leaf OrderLeaf
	copy(leaf.Maker[:], data[:32])
	leaf.OrderID = binary.LittleEndian.Uint64(data[32:40])
	side := data[40]
	if side > uint8(Ask) {
		return nil, errors.Wrapf(ErrInvalidLeaf, "side byte %v", side)
	}
	leaf.Side = Side(side)
	leaf.Price = binary.LittleEndian.Uint64(data[41:49])
	leaf.Amount = binary.LittleEndian.Uint64(data[49:57])
	leaf.EpochIndex = binary.LittleEndian.Uint32(data[57:61])
	leaf.OrderIndex = binary.LittleEndian.Uint32(data[61:65])
	leaf.CreatedAt = int64(binary.LittleEndian.Uint64(data[65:73]))
	leaf.ExpiresAt = int64(binary.LittleEndian.Uint64(data[73:81]))
	return &leaf, nil
}

// Hash is the leaf's merkle tree position value.
func (o *OrderLeaf) Hash() common.Hash {
	return merkle.LeafHash(o.Encode())
}

// Expired reports whether the order is past its expiry at the given time.
func (o *OrderLeaf) Expired(now int64) bool {
	return o.ExpiresAt > 0 && now > o.ExpiresAt
}
