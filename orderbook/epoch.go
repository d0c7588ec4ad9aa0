// Copyright 2023-2024, Stratum Labs, Inc.
// For license information, see https://github.com/stratumlabs/stratum/blob/master/LICENSE

package orderbook

import (
	"github.com/ethereum/go-ethereum/common"
	"github.com/pkg/errors"

	"github.com/stratumlabs/stratum/bitfield"
)

// Epoch is one bounded batch of orders sharing a merkle root and a fill
// bitfield. It moves Open → RootPending → Finalized; transitions are
// monotonic and an epoch is never re-opened. The two-step root protocol
// lets the authority refuse a malformed root before settlement can depend
// on it.
type Epoch struct {
	OrderBook     common.Hash // backref: book account identity
	EpochIndex    uint32
	Root          common.Hash
	OrderCount    uint32
	MaxDepth      uint8
	RootSubmitted bool
	Finalized     bool
	OpenedAt      int64
	FinalizedAt   int64
}

func (e *Epoch) Status() string {
	switch {
	case e.Finalized:
		return "finalized"
	case e.RootSubmitted:
		return "root-pending"
	default:
		return "open"
	}
}

// SubmitRoot records the cranker-computed root. Allowed once, while open.
func (e *Epoch) SubmitRoot(root common.Hash, orderCount uint32, maxOrders uint32) error {
	if e.Finalized {
		return errors.Wrapf(ErrEpochAlreadyFinal, "epoch %v", e.EpochIndex)
	}
	if e.RootSubmitted {
		return errors.Wrapf(ErrRootAlreadySubmitted, "epoch %v", e.EpochIndex)
	}
	if orderCount > maxOrders {
		return errors.Wrapf(ErrOrderCountExceeded, "%v orders, max %v", orderCount, maxOrders)
	}
	e.Root = root
	e.OrderCount = orderCount
	e.RootSubmitted = true
	return nil
}

// Finalize freezes the root. After this the epoch is immutable except for
// cleanup after its settlement window closes.
func (e *Epoch) Finalize(now int64) error {
	if e.Finalized {
		return errors.Wrapf(ErrEpochAlreadyFinal, "epoch %v", e.EpochIndex)
	}
	if !e.RootSubmitted {
		return errors.Wrapf(ErrRootNotSubmitted, "epoch %v", e.EpochIndex)
	}
	e.Finalized = true
	e.FinalizedAt = now
	return nil
}

// SettleableAt reports whether proofs against this epoch are accepted at
// the given time: the root must be frozen and the settlement window open.
func (e *Epoch) SettleableAt(now, settlementTTL int64) error {
	if !e.Finalized {
		return errors.Wrapf(ErrEpochNotFinalized, "epoch %v is %v", e.EpochIndex, e.Status())
	}
	if settlementTTL > 0 && now > e.FinalizedAt+settlementTTL {
		return errors.Wrapf(ErrEpochExpired, "epoch %v finalized at %v, ttl %vs", e.EpochIndex, e.FinalizedAt, settlementTTL)
	}
	return nil
}

// ChunkSlot locates an order's fill bit within the epoch's chunks.
func ChunkSlot(orderIndex uint32) (chunkIndex, localIndex uint32) {
	return orderIndex / bitfield.BitsPerChunk, orderIndex % bitfield.BitsPerChunk
}
