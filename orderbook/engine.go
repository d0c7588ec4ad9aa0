// Copyright 2023-2024, Stratum Labs, Inc.
// For license information, see https://github.com/stratumlabs/stratum/blob/master/LICENSE

package orderbook

import (
	"sync"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/log"
	"github.com/ethereum/go-ethereum/metrics"
	"github.com/pkg/errors"

	"github.com/stratumlabs/stratum/bitfield"
	"github.com/stratumlabs/stratum/chain"
	"github.com/stratumlabs/stratum/merkle"
)

var (
	settleSuccessCounter  = metrics.NewRegisteredCounter("stratum/settle/success", nil)
	settleRejectedCounter = metrics.NewRegisteredCounter("stratum/settle/rejected", nil)
	epochFinalizedCounter = metrics.NewRegisteredCounter("stratum/epoch/finalized", nil)
	cleanupCounter        = metrics.NewRegisteredCounter("stratum/cleanup/reclaimed", nil)
)

// Engine executes the on-chain half of the protocol. Handlers run under a
// single lock, mirroring the runtime's per-transaction serialization: a
// failed handler returns before mutating anything, so every state change
// is atomic at the transaction level.
type Engine struct {
	mutex    sync.Mutex
	clock    chain.Clock
	books    map[chain.Address]*OrderBook
	epochs   map[chain.Address]*Epoch
	chunks   map[chain.Address]*bitfield.Chunk
	receipts map[chain.Address]*SettlementReceipt
	ledgers  map[chain.Address]*chain.Ledger
	lamports *chain.Ledger
}

func NewEngine(clock chain.Clock) *Engine {
	return &Engine{
		clock:    clock,
		books:    make(map[chain.Address]*OrderBook),
		epochs:   make(map[chain.Address]*Epoch),
		chunks:   make(map[chain.Address]*bitfield.Chunk),
		receipts: make(map[chain.Address]*SettlementReceipt),
		ledgers:  make(map[chain.Address]*chain.Ledger),
		lamports: chain.NewLedger(chain.Address{}),
	}
}

// CreateBookParams is everything create_order_book needs. TickSize is the
// minimum price step and also the price scale: settlement computes quote
// volume as fillAmount * price / TickSize.
type CreateBookParams struct {
	Authority      chain.Address
	Cranker        chain.Address
	BaseMint       chain.Address
	QuoteMint      chain.Address
	FeeVault       chain.Address
	TickSize       uint64
	FeeBps         uint16
	SettlementTTL  int64
	GracePeriod    int64
	CleanupReward  uint64
	MaxEpochChunks uint32
}

func (e *Engine) CreateOrderBook(params CreateBookParams) (chain.Address, error) {
	e.mutex.Lock()
	defer e.mutex.Unlock()

	if params.TickSize == 0 {
		return chain.Address{}, ErrInvalidTickSize
	}
	if params.FeeBps > 10_000 {
		return chain.Address{}, errors.Wrapf(ErrInvalidFeeBps, "%v bps", params.FeeBps)
	}
	if params.MaxEpochChunks == 0 {
		params.MaxEpochChunks = 1
	}
	addr := BookAddress(params.Authority, params.BaseMint, params.QuoteMint)
	if _, ok := e.books[addr]; ok {
		return chain.Address{}, errors.Wrapf(ErrUnauthorized, "order book %v already exists", addr)
	}
	now := e.clock.Now()
	book := &OrderBook{
		Authority:      params.Authority,
		Cranker:        params.Cranker,
		BaseMint:       params.BaseMint,
		QuoteMint:      params.QuoteMint,
		BaseVault:      BaseVaultAddress(addr),
		QuoteVault:     QuoteVaultAddress(addr),
		FeeVault:       params.FeeVault,
		TickSize:       params.TickSize,
		FeeBps:         params.FeeBps,
		SettlementTTL:  params.SettlementTTL,
		MaxEpochChunks: params.MaxEpochChunks,
		Expiry: ExpiryConfig{
			CreatedAt:     now,
			GracePeriod:   params.GracePeriod,
			CleanupReward: params.CleanupReward,
		},
		Active:    true,
		CreatedAt: now,
	}
	e.books[addr] = book
	if _, ok := e.ledgers[params.BaseMint]; !ok {
		e.ledgers[params.BaseMint] = chain.NewLedger(params.BaseMint)
	}
	if _, ok := e.ledgers[params.QuoteMint]; !ok {
		e.ledgers[params.QuoteMint] = chain.NewLedger(params.QuoteMint)
	}
	log.Info("order book created", "book", addr, "authority", params.Authority,
		"tickSize", params.TickSize, "feeBps", params.FeeBps)
	return addr, nil
}

// Ledger exposes the balance book for one mint.
func (e *Engine) Ledger(mint chain.Address) *chain.Ledger {
	e.mutex.Lock()
	defer e.mutex.Unlock()
	return e.ledgers[mint]
}

// Lamports is the native reserve that funds cleanup rewards.
func (e *Engine) Lamports() *chain.Ledger {
	return e.lamports
}

func (e *Engine) Book(addr chain.Address) (*OrderBook, error) {
	e.mutex.Lock()
	defer e.mutex.Unlock()
	book, ok := e.books[addr]
	if !ok {
		return nil, errors.Wrapf(ErrUnknownAccount, "order book %v", addr)
	}
	return book, nil
}

func (e *Engine) Epoch(addr chain.Address) (*Epoch, error) {
	e.mutex.Lock()
	defer e.mutex.Unlock()
	epoch, ok := e.epochs[addr]
	if !ok {
		return nil, errors.Wrapf(ErrUnknownAccount, "epoch %v", addr)
	}
	return epoch, nil
}

func (e *Engine) Chunk(addr chain.Address) (*bitfield.Chunk, error) {
	e.mutex.Lock()
	defer e.mutex.Unlock()
	chunk, ok := e.chunks[addr]
	if !ok {
		return nil, errors.Wrapf(ErrUnknownAccount, "chunk %v", addr)
	}
	return chunk, nil
}

func (e *Engine) Receipt(addr chain.Address) (*SettlementReceipt, error) {
	e.mutex.Lock()
	defer e.mutex.Unlock()
	receipt, ok := e.receipts[addr]
	if !ok {
		return nil, errors.Wrapf(ErrUnknownAccount, "receipt %v", addr)
	}
	return receipt, nil
}

// CreateEpoch opens the next epoch in the book's dense sequence and
// returns its account identity. Epoch indices run 0, 1, 2, … without gaps.
func (e *Engine) CreateEpoch(bookAddr, caller chain.Address) (chain.Address, *Epoch, error) {
	e.mutex.Lock()
	defer e.mutex.Unlock()

	book, ok := e.books[bookAddr]
	if !ok {
		return chain.Address{}, nil, errors.Wrapf(ErrUnknownAccount, "order book %v", bookAddr)
	}
	if caller != book.Authority && caller != book.Cranker {
		return chain.Address{}, nil, errors.Wrap(ErrUnauthorized, "create epoch")
	}
	if !book.Active {
		return chain.Address{}, nil, ErrOrderBookInactive
	}
	epochIndex := book.EpochsCreated
	addr := EpochAddress(bookAddr, epochIndex)
	epoch := &Epoch{
		OrderBook:  common.Hash(bookAddr),
		EpochIndex: epochIndex,
		MaxDepth:   merkle.MaxSupportedDepth,
		OpenedAt:   e.clock.Now(),
	}
	e.epochs[addr] = epoch
	book.EpochsCreated++
	book.CurrentEpoch = epochIndex
	log.Debug("epoch created", "book", bookAddr, "epoch", epochIndex)
	return addr, epoch, nil
}

// CreateOrderChunk materializes the zeroed fill-tracking page for an
// epoch. The derived identity keeps one chunk per (epoch, index).
func (e *Engine) CreateOrderChunk(bookAddr, epochAddr chain.Address, chunkIndex uint32, caller chain.Address) (chain.Address, error) {
	e.mutex.Lock()
	defer e.mutex.Unlock()

	book, ok := e.books[bookAddr]
	if !ok {
		return chain.Address{}, errors.Wrapf(ErrUnknownAccount, "order book %v", bookAddr)
	}
	if caller != book.Authority && caller != book.Cranker {
		return chain.Address{}, errors.Wrap(ErrUnauthorized, "create order chunk")
	}
	if _, ok := e.epochs[epochAddr]; !ok {
		return chain.Address{}, errors.Wrapf(ErrUnknownAccount, "epoch %v", epochAddr)
	}
	if chunkIndex >= book.MaxEpochChunks {
		return chain.Address{}, errors.Wrapf(bitfield.ErrChunkIndexOutOfRange, "chunk %v, max %v per epoch", chunkIndex, book.MaxEpochChunks)
	}
	addr := OrderChunkAddress(epochAddr, chunkIndex)
	if _, ok := e.chunks[addr]; ok {
		return chain.Address{}, errors.Wrapf(bitfield.ErrChunkExists, "chunk %v of epoch %v", chunkIndex, epochAddr)
	}
	e.chunks[addr] = bitfield.NewChunk(epochAddr, chunkIndex, e.clock.Now())
	return addr, nil
}

// SubmitEpochRoot records the cranker-computed merkle root for an epoch.
func (e *Engine) SubmitEpochRoot(bookAddr chain.Address, epochIndex uint32, root common.Hash, orderCount uint32, caller chain.Address) error {
	e.mutex.Lock()
	defer e.mutex.Unlock()

	book, ok := e.books[bookAddr]
	if !ok {
		return errors.Wrapf(ErrUnknownAccount, "order book %v", bookAddr)
	}
	if caller != book.Cranker {
		return errors.Wrap(ErrUnauthorized, "submit epoch root")
	}
	epoch, ok := e.epochs[EpochAddress(bookAddr, epochIndex)]
	if !ok {
		return errors.Wrapf(ErrUnknownAccount, "epoch %v", epochIndex)
	}
	maxOrders := bitfield.BitsPerChunk * book.MaxEpochChunks
	if err := epoch.SubmitRoot(root, orderCount, maxOrders); err != nil {
		return err
	}
	book.TotalOrders += uint64(orderCount)
	log.Info("epoch root submitted", "book", bookAddr, "epoch", epochIndex,
		"root", root, "orders", orderCount)
	return nil
}

// FinalizeEpoch freezes a submitted root. Authority only: the two-step
// protocol is its chance to reject a malformed root.
func (e *Engine) FinalizeEpoch(bookAddr chain.Address, epochIndex uint32, caller chain.Address) error {
	e.mutex.Lock()
	defer e.mutex.Unlock()

	book, ok := e.books[bookAddr]
	if !ok {
		return errors.Wrapf(ErrUnknownAccount, "order book %v", bookAddr)
	}
	if caller != book.Authority {
		return errors.Wrap(ErrUnauthorized, "finalize epoch")
	}
	epoch, ok := e.epochs[EpochAddress(bookAddr, epochIndex)]
	if !ok {
		return errors.Wrapf(ErrUnknownAccount, "epoch %v", epochIndex)
	}
	if err := epoch.Finalize(e.clock.Now()); err != nil {
		return err
	}
	epochFinalizedCounter.Inc(1)
	log.Info("epoch finalized", "book", bookAddr, "epoch", epochIndex, "orders", epoch.OrderCount)
	return nil
}

// verifyLeaf checks a canonical leaf and its proof against an epoch root.
// The proof must sit at the leaf's own order index; settlement derives the
// fill bit from that index, so the binding has to hold in both places.
func verifyLeaf(epoch *Epoch, leaf *OrderLeaf, leafBytes []byte, proof *merkle.Proof) error {
	if proof == nil {
		return errors.Wrap(merkle.ErrInvalidMerkleProof, "missing proof")
	}
	if proof.LeafIndex != leaf.OrderIndex {
		return errors.Wrapf(merkle.ErrInvalidMerkleProof, "proof index %v, leaf order index %v", proof.LeafIndex, leaf.OrderIndex)
	}
	if proof.Depth() > int(epoch.MaxDepth) {
		return errors.Wrapf(merkle.ErrInvalidMerkleProof, "proof depth %v exceeds %v", proof.Depth(), epoch.MaxDepth)
	}
	if !merkle.Verify(proof.Siblings, epoch.Root, merkle.LeafHash(leafBytes), proof.LeafIndex) {
		return errors.Wrapf(merkle.ErrInvalidMerkleProof, "order %v in epoch %v", leaf.OrderID, epoch.EpochIndex)
	}
	return nil
}

// SettleArgs carries everything one settle_match invocation needs: the
// two canonical leaves with their proofs, the fill, and the token accounts
// the two legs pay out to.
type SettleArgs struct {
	Book       chain.Address
	MakerLeaf  []byte
	MakerProof *merkle.Proof
	TakerLeaf  []byte
	TakerProof *merkle.Proof
	FillAmount uint64

	MakerBase  chain.Address
	MakerQuote chain.Address
	TakerBase  chain.Address
	TakerQuote chain.Address
}

// SettleMatch verifies and settles one matched pair atomically: merkle
// inclusion of both legs, price crossing on the tick grid, fill bits, the
// two token transfers, and the at-most-once receipt.
func (e *Engine) SettleMatch(args SettleArgs) (*SettlementReceipt, error) {
	e.mutex.Lock()
	defer e.mutex.Unlock()

	receipt, err := e.settleMatch(args)
	if err != nil {
		settleRejectedCounter.Inc(1)
		return nil, err
	}
	settleSuccessCounter.Inc(1)
	return receipt, nil
}

func (e *Engine) settleMatch(args SettleArgs) (*SettlementReceipt, error) {
	book, ok := e.books[args.Book]
	if !ok {
		return nil, errors.Wrapf(ErrUnknownAccount, "order book %v", args.Book)
	}
	now := e.clock.Now()
	if !book.Active {
		return nil, ErrOrderBookInactive
	}
	if args.FillAmount == 0 {
		return nil, errors.Wrap(ErrZeroAmount, "fill")
	}

	maker, err := DecodeOrderLeaf(args.MakerLeaf)
	if err != nil {
		return nil, errors.Wrap(err, "maker")
	}
	taker, err := DecodeOrderLeaf(args.TakerLeaf)
	if err != nil {
		return nil, errors.Wrap(err, "taker")
	}
	if maker.Side == taker.Side {
		return nil, errors.Wrapf(ErrInvalidOrderSide, "both %v", maker.Side)
	}
	if maker.Amount == 0 || taker.Amount == 0 {
		return nil, ErrZeroAmount
	}

	makerEpochAddr := EpochAddress(args.Book, maker.EpochIndex)
	makerEpoch, ok := e.epochs[makerEpochAddr]
	if !ok {
		return nil, errors.Wrapf(ErrUnknownAccount, "maker epoch %v", maker.EpochIndex)
	}
	takerEpochAddr := EpochAddress(args.Book, taker.EpochIndex)
	takerEpoch, ok := e.epochs[takerEpochAddr]
	if !ok {
		return nil, errors.Wrapf(ErrUnknownAccount, "taker epoch %v", taker.EpochIndex)
	}
	if err := makerEpoch.SettleableAt(now, book.SettlementTTL); err != nil {
		return nil, errors.Wrap(err, "maker")
	}
	if err := takerEpoch.SettleableAt(now, book.SettlementTTL); err != nil {
		return nil, errors.Wrap(err, "taker")
	}

	fillPrice, err := ValidatePriceMatch(maker.Side, maker.Price, taker.Side, taker.Price)
	if err != nil {
		return nil, err
	}
	bid, ask := maker, taker
	if maker.Side == Ask {
		bid, ask = taker, maker
	}
	if err := CheckTick(bid.Price, ask.Price, book.TickSize); err != nil {
		return nil, err
	}

	if maker.Expired(now) {
		return nil, errors.Wrapf(ErrOrderExpired, "maker order %v", maker.OrderID)
	}
	if taker.Expired(now) {
		return nil, errors.Wrapf(ErrOrderExpired, "taker order %v", taker.OrderID)
	}

	if err := verifyLeaf(makerEpoch, maker, args.MakerLeaf, args.MakerProof); err != nil {
		return nil, errors.Wrap(err, "maker")
	}
	if err := verifyLeaf(takerEpoch, taker, args.TakerLeaf, args.TakerProof); err != nil {
		return nil, errors.Wrap(err, "taker")
	}

	if args.FillAmount > bid.Amount || args.FillAmount > ask.Amount {
		return nil, errors.Wrapf(ErrFillExceedsOrder, "fill %v, bid %v, ask %v", args.FillAmount, bid.Amount, ask.Amount)
	}

	// Fill bits: a set bit means the order is consumed. Partial fills
	// re-enter a later epoch as a reduced leaf, so the slot is spent
	// either way.
	makerChunkIndex, makerLocal := ChunkSlot(maker.OrderIndex)
	makerChunk, ok := e.chunks[OrderChunkAddress(makerEpochAddr, makerChunkIndex)]
	if !ok {
		return nil, errors.Wrapf(ErrUnknownAccount, "maker chunk %v", makerChunkIndex)
	}
	takerChunkIndex, takerLocal := ChunkSlot(taker.OrderIndex)
	takerChunk, ok := e.chunks[OrderChunkAddress(takerEpochAddr, takerChunkIndex)]
	if !ok {
		return nil, errors.Wrapf(ErrUnknownAccount, "taker chunk %v", takerChunkIndex)
	}
	if makerChunk.IsSet(makerLocal) {
		return nil, errors.Wrapf(ErrAlreadySettled, "maker order %v", maker.OrderID)
	}
	if takerChunk.IsSet(takerLocal) {
		return nil, errors.Wrapf(ErrAlreadySettled, "taker order %v", taker.OrderID)
	}

	receiptAddr := ReceiptAddress(args.Book, maker.OrderID, taker.OrderID)
	if _, ok := e.receipts[receiptAddr]; ok {
		return nil, errors.Wrapf(ErrAlreadySettled, "receipt %v exists", receiptAddr)
	}

	quoteVolume, err := QuoteVolume(args.FillAmount, fillPrice, book.TickSize)
	if err != nil {
		return nil, err
	}
	fee := Fee(quoteVolume, book.FeeBps)

	baseLedger := e.ledgers[book.BaseMint]
	quoteLedger := e.ledgers[book.QuoteMint]
	if baseLedger.Balance(book.BaseVault) < args.FillAmount {
		return nil, errors.Wrap(chain.ErrInsufficientVaultBalance, "base vault")
	}
	if quoteLedger.Balance(book.QuoteVault) < quoteVolume {
		return nil, errors.Wrap(chain.ErrInsufficientVaultBalance, "quote vault")
	}

	// All checks passed; every mutation below is balance-checked above
	// and cannot fail, keeping the handler atomic.
	if _, err := makerChunk.Set(makerLocal); err != nil {
		return nil, err
	}
	if _, err := takerChunk.Set(takerLocal); err != nil {
		return nil, err
	}

	baseTo, quoteTo := args.TakerBase, args.MakerQuote
	if maker.Side == Bid {
		// maker buys base, taker sells it
		baseTo, quoteTo = args.MakerBase, args.TakerQuote
	}
	if err := baseLedger.Transfer(book.BaseVault, baseTo, args.FillAmount); err != nil {
		return nil, err
	}
	if err := quoteLedger.Transfer(book.QuoteVault, quoteTo, quoteVolume-fee); err != nil {
		return nil, err
	}
	if err := quoteLedger.Transfer(book.QuoteVault, book.FeeVault, fee); err != nil {
		return nil, err
	}

	receipt := &SettlementReceipt{
		OrderBook:    args.Book,
		Maker:        maker.Maker,
		Taker:        taker.Maker,
		MakerOrderID: maker.OrderID,
		TakerOrderID: taker.OrderID,
		FillAmount:   args.FillAmount,
		FillPrice:    fillPrice,
		FeePaid:      fee,
		Expiry:       NewExpiry(now, book.SettlementTTL, book.Expiry.GracePeriod, book.Expiry.CleanupReward),
		SettledAt:    now,
	}
	e.receipts[receiptAddr] = receipt

	book.TotalSettlements++
	book.History.Record(args.FillAmount, now)

	log.Info("match settled", "book", args.Book,
		"makerOrder", maker.OrderID, "takerOrder", taker.OrderID,
		"fillAmount", args.FillAmount, "fillPrice", fillPrice, "fee", fee)
	return receipt, nil
}

// CancelArgs identifies a live order its maker wants to withdraw.
type CancelArgs struct {
	Book          chain.Address
	Leaf          []byte
	Proof         *merkle.Proof
	Caller        chain.Address
	RefundAccount chain.Address
}

// CancelOrder consumes a proven, still-unfilled order slot and refunds the
// maker's escrowed deposit.
func (e *Engine) CancelOrder(args CancelArgs) error {
	e.mutex.Lock()
	defer e.mutex.Unlock()

	book, ok := e.books[args.Book]
	if !ok {
		return errors.Wrapf(ErrUnknownAccount, "order book %v", args.Book)
	}
	leaf, err := DecodeOrderLeaf(args.Leaf)
	if err != nil {
		return err
	}
	if leaf.Maker != args.Caller {
		return errors.Wrapf(ErrNotOrderOwner, "order %v", leaf.OrderID)
	}
	epochAddr := EpochAddress(args.Book, leaf.EpochIndex)
	epoch, ok := e.epochs[epochAddr]
	if !ok {
		return errors.Wrapf(ErrUnknownAccount, "epoch %v", leaf.EpochIndex)
	}
	if !epoch.Finalized {
		return errors.Wrapf(ErrEpochNotFinalized, "epoch %v", leaf.EpochIndex)
	}
	if err := verifyLeaf(epoch, leaf, args.Leaf, args.Proof); err != nil {
		return err
	}
	chunkIndex, local := ChunkSlot(leaf.OrderIndex)
	chunk, ok := e.chunks[OrderChunkAddress(epochAddr, chunkIndex)]
	if !ok {
		return errors.Wrapf(ErrUnknownAccount, "chunk %v", chunkIndex)
	}
	if chunk.IsSet(local) {
		return errors.Wrapf(ErrAlreadySettled, "order %v", leaf.OrderID)
	}
	if err := e.refundOrder(book, leaf, args.RefundAccount); err != nil {
		return err
	}
	if _, err := chunk.Set(local); err != nil {
		return err
	}
	log.Info("order cancelled", "book", args.Book, "order", leaf.OrderID,
		"epoch", leaf.EpochIndex, "index", leaf.OrderIndex)
	return nil
}

// refundOrder returns the maker's escrowed leg for an unfilled order.
func (e *Engine) refundOrder(book *OrderBook, leaf *OrderLeaf, refundAccount chain.Address) error {
	if leaf.Side == Ask {
		ledger := e.ledgers[book.BaseMint]
		if ledger.Balance(book.BaseVault) < leaf.Amount {
			return errors.Wrap(chain.ErrInsufficientVaultBalance, "base vault refund")
		}
		return ledger.Transfer(book.BaseVault, refundAccount, leaf.Amount)
	}
	quoteVolume, err := QuoteVolume(leaf.Amount, leaf.Price, book.TickSize)
	if err != nil {
		return err
	}
	ledger := e.ledgers[book.QuoteMint]
	if ledger.Balance(book.QuoteVault) < quoteVolume {
		return errors.Wrap(chain.ErrInsufficientVaultBalance, "quote vault refund")
	}
	return ledger.Transfer(book.QuoteVault, refundAccount, quoteVolume)
}

// CleanupOrderArgs identifies an expired order anyone may reclaim.
type CleanupOrderArgs struct {
	Book          chain.Address
	Leaf          []byte
	Proof         *merkle.Proof
	Cleaner       chain.Address
	RefundAccount chain.Address
}

// CleanupExpiredOrder consumes an expired, unfilled order slot, refunds
// the maker, and pays the cleanup reward to the caller. The merkle root
// and already-settled bits are never touched.
func (e *Engine) CleanupExpiredOrder(args CleanupOrderArgs) error {
	e.mutex.Lock()
	defer e.mutex.Unlock()

	book, ok := e.books[args.Book]
	if !ok {
		return errors.Wrapf(ErrUnknownAccount, "order book %v", args.Book)
	}
	leaf, err := DecodeOrderLeaf(args.Leaf)
	if err != nil {
		return err
	}
	now := e.clock.Now()
	if leaf.ExpiresAt == 0 || now <= leaf.ExpiresAt+book.Expiry.GracePeriod {
		return errors.Wrapf(ErrCleanupBeforeExpiry, "order %v expires at %v", leaf.OrderID, leaf.ExpiresAt)
	}
	epochAddr := EpochAddress(args.Book, leaf.EpochIndex)
	epoch, ok := e.epochs[epochAddr]
	if !ok {
		return errors.Wrapf(ErrUnknownAccount, "epoch %v", leaf.EpochIndex)
	}
	if !epoch.Finalized {
		return errors.Wrapf(ErrEpochNotFinalized, "epoch %v", leaf.EpochIndex)
	}
	if err := verifyLeaf(epoch, leaf, args.Leaf, args.Proof); err != nil {
		return err
	}
	chunkIndex, local := ChunkSlot(leaf.OrderIndex)
	chunk, ok := e.chunks[OrderChunkAddress(epochAddr, chunkIndex)]
	if !ok {
		return errors.Wrapf(ErrUnknownAccount, "chunk %v", chunkIndex)
	}
	if chunk.IsSet(local) {
		return errors.Wrapf(ErrAlreadySettled, "order %v", leaf.OrderID)
	}
	reward := book.Expiry.CleanupReward
	if reward > 0 && e.lamports.Balance(args.Book) < reward {
		return errors.Wrap(chain.ErrInsufficientVaultBalance, "cleanup reward")
	}
	if err := e.refundOrder(book, leaf, args.RefundAccount); err != nil {
		return err
	}
	if _, err := chunk.Set(local); err != nil {
		return err
	}
	if reward > 0 {
		if err := e.lamports.Transfer(args.Book, args.Cleaner, reward); err != nil {
			return errors.Wrap(err, "cleanup reward")
		}
	}
	cleanupCounter.Inc(1)
	log.Info("expired order reclaimed", "book", args.Book, "order", leaf.OrderID,
		"cleaner", args.Cleaner, "reward", reward)
	return nil
}

// CleanupSettlement closes an expired receipt and pays the caller the
// cleanup reward from the book's reserve.
func (e *Engine) CleanupSettlement(receiptAddr, cleaner chain.Address) error {
	e.mutex.Lock()
	defer e.mutex.Unlock()

	receipt, ok := e.receipts[receiptAddr]
	if !ok {
		return errors.Wrapf(ErrUnknownAccount, "receipt %v", receiptAddr)
	}
	now := e.clock.Now()
	if !receipt.Expiry.CanCleanup(now) {
		return errors.Wrapf(ErrCleanupBeforeExpiry, "receipt expires at %v", receipt.Expiry.ExpiresAt)
	}
	reward := receipt.Expiry.CleanupReward
	if reward > 0 {
		if err := e.lamports.Transfer(receipt.OrderBook, cleaner, reward); err != nil {
			return errors.Wrap(err, "cleanup reward")
		}
	}
	delete(e.receipts, receiptAddr)
	cleanupCounter.Inc(1)
	log.Info("settlement receipt reclaimed", "receipt", receiptAddr,
		"cleaner", cleaner, "reward", reward)
	return nil
}
