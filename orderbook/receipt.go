// Copyright 2023-2024, Stratum Labs, Inc.
// For license information, see https://github.com/stratumlabs/stratum/blob/master/LICENSE

package orderbook

import (
	"github.com/stratumlabs/stratum/chain"
)

// SettlementReceipt proves a (maker, taker) order pair has settled. Its
// derived identity makes a duplicate settlement fail at creation, and its
// TTL makes the account reclaimable once it is no longer needed as a
// double-settlement guard.
type SettlementReceipt struct {
	OrderBook    chain.Address
	Maker        chain.Address
	Taker        chain.Address
	MakerOrderID uint64
	TakerOrderID uint64
	FillAmount   uint64
	FillPrice    uint64
	FeePaid      uint64
	Expiry       ExpiryConfig
	SettledAt    int64
}
