// Copyright 2023-2024, Stratum Labs, Inc.
// For license information, see https://github.com/stratumlabs/stratum/blob/master/LICENSE

package orderbook

import (
	"encoding/binary"

	"github.com/stratumlabs/stratum/chain"
)

// OrderBook is the root state of one trading pair. Orders themselves live
// off chain; the book tracks epoch progression, economic parameters, and
// rolling aggregates.
type OrderBook struct {
	Authority chain.Address
	Cranker   chain.Address // authorized to submit epoch roots
	BaseMint  chain.Address
	QuoteMint chain.Address

	BaseVault  chain.Address
	QuoteVault chain.Address
	FeeVault   chain.Address

	CurrentEpoch  uint32
	EpochsCreated uint32

	TotalOrders      uint64
	TotalSettlements uint64

	TickSize       uint64
	FeeBps         uint16
	SettlementTTL  int64
	MaxEpochChunks uint32

	Expiry  ExpiryConfig // template: grace period + reward for reclaimable children
	History HistorySummary

	Active    bool
	CreatedAt int64
}

// HistorySummary keeps compact rolling aggregates on chain instead of a
// full trade history; detailed fills are emitted as events only.
type HistorySummary struct {
	TotalCount    uint64
	TotalVolume   uint64
	MinFill       uint64
	MaxFill       uint64
	LastSettledAt int64
}

func (h *HistorySummary) Record(fillAmount uint64, now int64) {
	h.TotalCount++
	if sum := h.TotalVolume + fillAmount; sum >= h.TotalVolume {
		h.TotalVolume = sum
	}
	if h.TotalCount == 1 || fillAmount < h.MinFill {
		h.MinFill = fillAmount
	}
	if fillAmount > h.MaxFill {
		h.MaxFill = fillAmount
	}
	h.LastSettledAt = now
}

func (h *HistorySummary) AverageFill() uint64 {
	if h.TotalCount == 0 {
		return 0
	}
	return h.TotalVolume / h.TotalCount
}

// BookAddress derives the order book identity for a pair.
func BookAddress(authority, baseMint, quoteMint chain.Address) chain.Address {
	return chain.Derive(chain.SeedOrderBook, authority.Bytes(), baseMint.Bytes(), quoteMint.Bytes())
}

func BaseVaultAddress(book chain.Address) chain.Address {
	return chain.Derive(chain.SeedBaseVault, book.Bytes())
}

func QuoteVaultAddress(book chain.Address) chain.Address {
	return chain.Derive(chain.SeedQuoteVault, book.Bytes())
}

// EpochAddress derives the account identity of one epoch under a book.
func EpochAddress(book chain.Address, epochIndex uint32) chain.Address {
	var le [4]byte
	binary.LittleEndian.PutUint32(le[:], epochIndex)
	return chain.Derive(chain.SeedEpoch, book.Bytes(), le[:])
}

// OrderChunkAddress derives the fill-tracking chunk for an epoch.
func OrderChunkAddress(epoch chain.Address, chunkIndex uint32) chain.Address {
	var le [4]byte
	binary.LittleEndian.PutUint32(le[:], chunkIndex)
	return chain.Derive(chain.SeedOrderChunk, epoch.Bytes(), le[:])
}

// ReceiptAddress derives the settlement receipt identity for a maker/taker
// pair. Creating the same pair twice collides here, which is what enforces
// at-most-once settlement.
func ReceiptAddress(book chain.Address, makerOrderID, takerOrderID uint64) chain.Address {
	var makerLE, takerLE [8]byte
	binary.LittleEndian.PutUint64(makerLE[:], makerOrderID)
	binary.LittleEndian.PutUint64(takerLE[:], takerOrderID)
	return chain.Derive(chain.SeedSettlement, book.Bytes(), makerLE[:], takerLE[:])
}
