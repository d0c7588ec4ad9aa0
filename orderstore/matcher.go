// Copyright 2023-2024, Stratum Labs, Inc.
// For license information, see https://github.com/stratumlabs/stratum/blob/master/LICENSE

package orderstore

import (
	"github.com/ethereum/go-ethereum/log"

	"github.com/stratumlabs/stratum/orderbook"
)

// MatchResult pairs a resting maker with an aggressing taker. The leaves
// are the exact committed encodings, so the settlement verifier can
// re-hash them against the epoch roots.
type MatchResult struct {
	Maker      orderbook.OrderLeaf
	Taker      orderbook.OrderLeaf
	FillAmount uint64
	FillPrice  uint64
}

// Match walks both books from the top and emits every crossing fill.
// Deterministic for a given book state: bids descend by price with
// price-time priority, asks ascend, the earlier-created side is the
// maker, and the fill price is always the maker's.
//
// A committed leaf settles at most once on chain, so a partial fill
// consumes the whole slot and the unfilled remainder re-enters the
// current epoch as a fresh reduced leaf, keeping its original creation
// time (and so its time priority).
func (s *Store) Match(now int64) []MatchResult {
	s.mutex.Lock()
	defer s.mutex.Unlock()

	var results []MatchResult
	for {
		s.dropExpiredLocked(now)
		if len(s.bids) == 0 || len(s.asks) == 0 {
			break
		}
		bid, ask := s.bids[0], s.asks[0]
		if bid.Leaf.Price < ask.Leaf.Price {
			break
		}

		maker, taker := bid, ask
		if takerFirst(bid, ask) {
			maker, taker = ask, bid
		}
		fill := bid.Remaining
		if ask.Remaining < fill {
			fill = ask.Remaining
		}
		results = append(results, MatchResult{
			Maker:      maker.Leaf,
			Taker:      taker.Leaf,
			FillAmount: fill,
			FillPrice:  maker.Leaf.Price,
		})

		bid.Remaining -= fill
		ask.Remaining -= fill
		s.bids = s.bids[1:]
		s.asks = s.asks[1:]
		// both slots are consumed by the settlement; remainders come
		// back as new leaves
		s.requeueRemainderLocked(bid)
		s.requeueRemainderLocked(ask)
	}
	if len(results) > 0 {
		log.Debug("match cycle complete", "fills", len(results))
	}
	return results
}

// takerFirst reports whether the ask was resting before the bid.
func takerFirst(bid, ask *Order) bool {
	if bid.Leaf.CreatedAt != ask.Leaf.CreatedAt {
		return ask.Leaf.CreatedAt < bid.Leaf.CreatedAt
	}
	return ask.Leaf.OrderID < bid.Leaf.OrderID
}

func (s *Store) requeueRemainderLocked(order *Order) {
	if order.Remaining == 0 {
		return
	}
	leaf := order.Leaf
	_, err := s.addOrderLocked(leaf.Maker, leaf.Side, leaf.Price, order.Remaining, leaf.CreatedAt, leaf.ExpiresAt)
	if err != nil {
		log.Error("failed to requeue partial fill remainder", "order", leaf.OrderID, "err", err)
	}
}

// dropExpiredLocked removes expired heads so the walk never matches one.
func (s *Store) dropExpiredLocked(now int64) {
	for len(s.bids) > 0 && s.bids[0].Leaf.Expired(now) {
		log.Debug("dropping expired bid", "order", s.bids[0].Leaf.OrderID)
		s.bids = s.bids[1:]
	}
	for len(s.asks) > 0 && s.asks[0].Leaf.Expired(now) {
		log.Debug("dropping expired ask", "order", s.asks[0].Leaf.OrderID)
		s.asks = s.asks[1:]
	}
}
