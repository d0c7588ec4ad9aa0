// Copyright 2023-2024, Stratum Labs, Inc.
// For license information, see https://github.com/stratumlabs/stratum/blob/master/LICENSE

package orderstore

import (
	"sort"
	"sync"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/log"
	lru "github.com/hashicorp/golang-lru/v2"
	"github.com/pkg/errors"
	flag "github.com/spf13/pflag"

	"github.com/stratumlabs/stratum/chain"
	"github.com/stratumlabs/stratum/merkle"
	"github.com/stratumlabs/stratum/orderbook"
)

var (
	ErrUnknownEpoch = errors.New("epoch tree not available")
	ErrInvalidOrder = errors.New("invalid order parameters")
)

type Config struct {
	MaxOrdersPerEpoch uint32 `koanf:"max-orders-per-epoch"`
	SnapshotDir       string `koanf:"snapshot-dir"`
	TreeCacheSize     int    `koanf:"tree-cache-size"`
}

var DefaultConfig = Config{
	MaxOrdersPerEpoch: 2048,
	SnapshotDir:       "",
	TreeCacheSize:     64,
}

func ConfigAddOptions(prefix string, f *flag.FlagSet) {
	f.Uint32(prefix+".max-orders-per-epoch", DefaultConfig.MaxOrdersPerEpoch, "orders per epoch before rotation; one bitfield chunk tracks exactly this many at the default")
	f.String(prefix+".snapshot-dir", DefaultConfig.SnapshotDir, "directory for compressed epoch snapshots; empty disables snapshots")
	f.Int(prefix+".tree-cache-size", DefaultConfig.TreeCacheSize, "finalized epoch trees kept in memory for proof serving")
}

// Order is one resting order with its unfilled remainder. The leaf is
// what was (or will be) committed in its epoch's tree; the remainder only
// exists in the matcher's view.
type Order struct {
	Leaf      orderbook.OrderLeaf
	Remaining uint64
}

// EpochBatch is a closed epoch ready for root submission.
type EpochBatch struct {
	EpochIndex uint32
	Root       common.Hash
	OrderCount uint32
	Leaves     []orderbook.OrderLeaf
	Tree       *merkle.Tree
}

// Store is the off-chain order store: the canonical per-epoch sequence
// plus price-time-priority side books. It is single-writer; every
// mutation entry point serializes on one mutex, so no reader ever sees a
// half-inserted order.
type Store struct {
	mutex  sync.Mutex
	config *Config

	nextOrderID  uint64
	currentEpoch uint32
	current      []orderbook.OrderLeaf // insertion-ordered; index == OrderIndex

	bids []*Order // descending price, then ascending creation time
	asks []*Order // ascending price, then ascending creation time

	closed []*EpochBatch
	trees  *lru.Cache[uint32, *merkle.Tree]
}

func NewStore(config *Config) (*Store, error) {
	if config.MaxOrdersPerEpoch == 0 {
		return nil, errors.Wrap(ErrInvalidOrder, "max-orders-per-epoch must be positive")
	}
	cacheSize := config.TreeCacheSize
	if cacheSize <= 0 {
		cacheSize = DefaultConfig.TreeCacheSize
	}
	trees, err := lru.New[uint32, *merkle.Tree](cacheSize)
	if err != nil {
		return nil, err
	}
	return &Store{
		config: config,
		trees:  trees,
	}, nil
}

func (s *Store) CurrentEpoch() uint32 {
	s.mutex.Lock()
	defer s.mutex.Unlock()
	return s.currentEpoch
}

func (s *Store) CurrentEpochOrderCount() uint32 {
	s.mutex.Lock()
	defer s.mutex.Unlock()
	return uint32(len(s.current))
}

// AddOrder assigns the next order id and the order's (epoch, index) slot,
// appends it to the canonical sequence, and inserts it into its side
// book. If the current epoch is full, it rotates first, so the order
// lands in the fresh epoch.
func (s *Store) AddOrder(maker chain.Address, side orderbook.Side, price, amount uint64, now, expiresAt int64) (orderbook.OrderLeaf, error) {
	s.mutex.Lock()
	defer s.mutex.Unlock()

	if amount == 0 || price == 0 {
		return orderbook.OrderLeaf{}, errors.Wrapf(ErrInvalidOrder, "price %v amount %v", price, amount)
	}
	return s.addOrderLocked(maker, side, price, amount, now, expiresAt)
}

func (s *Store) addOrderLocked(maker chain.Address, side orderbook.Side, price, amount uint64, now, expiresAt int64) (orderbook.OrderLeaf, error) {
	if uint32(len(s.current)) >= s.config.MaxOrdersPerEpoch {
		s.rotateLocked(now)
	}
	leaf := orderbook.OrderLeaf{
		Maker:      maker,
		OrderID:    s.nextOrderID,
		Side:       side,
		Price:      price,
		Amount:     amount,
		EpochIndex: s.currentEpoch,
		OrderIndex: uint32(len(s.current)),
		CreatedAt:  now,
		ExpiresAt:  expiresAt,
	}
	s.nextOrderID++
	s.current = append(s.current, leaf)
	s.insertLocked(&Order{Leaf: leaf, Remaining: amount})
	return leaf, nil
}

// insertLocked places an order at its price-time position.
func (s *Store) insertLocked(order *Order) {
	if order.Leaf.Side == orderbook.Bid {
		i := sort.Search(len(s.bids), func(i int) bool {
			return bidBefore(order, s.bids[i])
		})
		s.bids = append(s.bids, nil)
		copy(s.bids[i+1:], s.bids[i:])
		s.bids[i] = order
		return
	}
	i := sort.Search(len(s.asks), func(i int) bool {
		return askBefore(order, s.asks[i])
	})
	s.asks = append(s.asks, nil)
	copy(s.asks[i+1:], s.asks[i:])
	s.asks[i] = order
}

func bidBefore(a, b *Order) bool {
	if a.Leaf.Price != b.Leaf.Price {
		return a.Leaf.Price > b.Leaf.Price
	}
	if a.Leaf.CreatedAt != b.Leaf.CreatedAt {
		return a.Leaf.CreatedAt < b.Leaf.CreatedAt
	}
	return a.Leaf.OrderID < b.Leaf.OrderID
}

func askBefore(a, b *Order) bool {
	if a.Leaf.Price != b.Leaf.Price {
		return a.Leaf.Price < b.Leaf.Price
	}
	if a.Leaf.CreatedAt != b.Leaf.CreatedAt {
		return a.Leaf.CreatedAt < b.Leaf.CreatedAt
	}
	return a.Leaf.OrderID < b.Leaf.OrderID
}

// BestBid returns a copy of the top of the bid book.
func (s *Store) BestBid() (Order, bool) {
	s.mutex.Lock()
	defer s.mutex.Unlock()
	if len(s.bids) == 0 {
		return Order{}, false
	}
	return *s.bids[0], true
}

func (s *Store) BestAsk() (Order, bool) {
	s.mutex.Lock()
	defer s.mutex.Unlock()
	if len(s.asks) == 0 {
		return Order{}, false
	}
	return *s.asks[0], true
}

// Rotate closes the current epoch if it has any orders, builds its tree,
// and opens the next epoch. Returns nil when there was nothing to close.
func (s *Store) Rotate(now int64) *EpochBatch {
	s.mutex.Lock()
	defer s.mutex.Unlock()
	return s.rotateLocked(now)
}

func (s *Store) rotateLocked(now int64) *EpochBatch {
	if len(s.current) == 0 {
		return nil
	}
	leaves := s.current
	blobs := make([][]byte, len(leaves))
	for i := range leaves {
		blobs[i] = leaves[i].Encode()
	}
	tree := merkle.NewTree(blobs)
	batch := &EpochBatch{
		EpochIndex: s.currentEpoch,
		Root:       tree.Root(),
		OrderCount: uint32(len(leaves)),
		Leaves:     leaves,
		Tree:       tree,
	}
	s.trees.Add(batch.EpochIndex, tree)
	s.closed = append(s.closed, batch)
	s.current = nil
	s.currentEpoch++

	if s.config.SnapshotDir != "" {
		if err := writeSnapshot(s.config.SnapshotDir, batch); err != nil {
			// snapshots are an audit artifact; rotation must not stall on them
			log.Warn("failed to write epoch snapshot", "epoch", batch.EpochIndex, "err", err)
		}
	}
	log.Info("epoch rotated", "epoch", batch.EpochIndex, "orders", batch.OrderCount, "root", batch.Root)
	return batch
}

// DrainClosed hands the caller every batch closed since the last drain.
func (s *Store) DrainClosed() []*EpochBatch {
	s.mutex.Lock()
	defer s.mutex.Unlock()
	closed := s.closed
	s.closed = nil
	return closed
}

// ProofAt serves the inclusion proof for a committed order.
func (s *Store) ProofAt(epochIndex, orderIndex uint32) (*merkle.Proof, error) {
	s.mutex.Lock()
	defer s.mutex.Unlock()
	tree, ok := s.trees.Get(epochIndex)
	if !ok {
		return nil, errors.Wrapf(ErrUnknownEpoch, "epoch %v", epochIndex)
	}
	return tree.ProofAt(orderIndex)
}

// Tree returns the cached tree for a closed epoch.
func (s *Store) Tree(epochIndex uint32) (*merkle.Tree, error) {
	s.mutex.Lock()
	defer s.mutex.Unlock()
	tree, ok := s.trees.Get(epochIndex)
	if !ok {
		return nil, errors.Wrapf(ErrUnknownEpoch, "epoch %v", epochIndex)
	}
	return tree, nil
}
