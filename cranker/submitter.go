// Copyright 2023-2024, Stratum Labs, Inc.
// For license information, see https://github.com/stratumlabs/stratum/blob/master/LICENSE

package cranker

import (
	"context"

	"github.com/ethereum/go-ethereum/common"

	"github.com/stratumlabs/stratum/bitfield"
	"github.com/stratumlabs/stratum/chain"
	"github.com/stratumlabs/stratum/orderbook"
)

// ChainSubmitter is the cranker's interface onto the chain. The RPC
// transport and wallet signing live behind it; tests and single-process
// deployments bind it straight to the settlement engine.
type ChainSubmitter interface {
	Book(ctx context.Context) (*orderbook.OrderBook, error)
	CreateEpoch(ctx context.Context) (uint32, error)
	CreateOrderChunk(ctx context.Context, epochIndex, chunkIndex uint32) error
	SubmitEpochRoot(ctx context.Context, epochIndex uint32, root common.Hash, orderCount uint32) error
	FinalizeEpoch(ctx context.Context, epochIndex uint32) error
	SettleMatch(ctx context.Context, args orderbook.SettleArgs) error
}

// LocalSubmitter drives an in-process engine directly. The authority key
// is held alongside the cranker key so finalization requests go through
// in the same process; a production deployment splits the two.
type LocalSubmitter struct {
	engine    *orderbook.Engine
	book      chain.Address
	cranker   chain.Address
	authority chain.Address
}

func NewLocalSubmitter(engine *orderbook.Engine, book, cranker, authority chain.Address) *LocalSubmitter {
	return &LocalSubmitter{
		engine:    engine,
		book:      book,
		cranker:   cranker,
		authority: authority,
	}
}

func (s *LocalSubmitter) Book(ctx context.Context) (*orderbook.OrderBook, error) {
	return s.engine.Book(s.book)
}

func (s *LocalSubmitter) CreateEpoch(ctx context.Context) (uint32, error) {
	_, epoch, err := s.engine.CreateEpoch(s.book, s.cranker)
	if err != nil {
		return 0, err
	}
	return epoch.EpochIndex, nil
}

func (s *LocalSubmitter) CreateOrderChunk(ctx context.Context, epochIndex, chunkIndex uint32) error {
	epochAddr := orderbook.EpochAddress(s.book, epochIndex)
	_, err := s.engine.CreateOrderChunk(s.book, epochAddr, chunkIndex, s.cranker)
	return err
}

func (s *LocalSubmitter) SubmitEpochRoot(ctx context.Context, epochIndex uint32, root common.Hash, orderCount uint32) error {
	return s.engine.SubmitEpochRoot(s.book, epochIndex, root, orderCount, s.cranker)
}

func (s *LocalSubmitter) FinalizeEpoch(ctx context.Context, epochIndex uint32) error {
	return s.engine.FinalizeEpoch(s.book, epochIndex, s.authority)
}

func (s *LocalSubmitter) SettleMatch(ctx context.Context, args orderbook.SettleArgs) error {
	args.Book = s.book
	_, err := s.engine.SettleMatch(args)
	return err
}

// chunksForOrders is how many bitfield pages an epoch of n orders needs.
func chunksForOrders(n uint32) uint32 {
	if n == 0 {
		return 0
	}
	return (n + bitfield.BitsPerChunk - 1) / bitfield.BitsPerChunk
}
