// Copyright 2023-2024, Stratum Labs, Inc.
// For license information, see https://github.com/stratumlabs/stratum/blob/master/LICENSE

package cranker

import (
	"context"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum/log"
	"github.com/ethereum/go-ethereum/metrics"
	"github.com/pkg/errors"

	"github.com/stratumlabs/stratum/bitfield"
	"github.com/stratumlabs/stratum/chain"
	"github.com/stratumlabs/stratum/merkle"
	"github.com/stratumlabs/stratum/orderbook"
	"github.com/stratumlabs/stratum/orderstore"
	"github.com/stratumlabs/stratum/util/stopwaiter"
)

var (
	matchCyclesCounter     = metrics.NewRegisteredCounter("stratum/cranker/match/cycles", nil)
	matchFillsCounter      = metrics.NewRegisteredCounter("stratum/cranker/match/fills", nil)
	epochsSubmittedCounter = metrics.NewRegisteredCounter("stratum/cranker/epochs/submitted", nil)
	settlementsCounter     = metrics.NewRegisteredCounter("stratum/cranker/settlements", nil)
	settleErrorsCounter    = metrics.NewRegisteredCounter("stratum/cranker/settle/errors", nil)
	pendingFillsGauge      = metrics.NewRegisteredGauge("stratum/cranker/settle/pending", nil)
)

// Cranker is the off-chain driver: it collects orders into the store,
// matches them, rotates and commits epochs, and submits settlements for
// matches whose epochs have finalized. All loops share one cooperative
// lifecycle; the store is the single writer of order state.
type Cranker struct {
	stopwaiter.StopWaiter

	config    *Config
	store     *orderstore.Store
	submitter ChainSubmitter
	clock     chain.Clock

	mutex         sync.Mutex
	baseMint      chain.Address
	quoteMint     chain.Address
	pending       []orderstore.MatchResult
	unsubmitted   []*orderstore.EpochBatch
	finalized     map[uint32]bool
	epochsCreated uint32
	lastRotation  time.Time
	epochBackoff  time.Duration
	settleBackoff time.Duration
}

func NewCranker(config *Config, store *orderstore.Store, submitter ChainSubmitter, clock chain.Clock) (*Cranker, error) {
	if err := config.Validate(); err != nil {
		return nil, err
	}
	return &Cranker{
		config:    config,
		store:     store,
		submitter: submitter,
		clock:     clock,
		finalized: make(map[uint32]bool),
	}, nil
}

// loadBook caches the pair's mints for token-account derivation.
func (c *Cranker) loadBook(ctx context.Context) error {
	book, err := c.submitter.Book(ctx)
	if err != nil {
		return errors.Wrap(err, "reading order book")
	}
	c.baseMint = book.BaseMint
	c.quoteMint = book.QuoteMint
	return nil
}

func (c *Cranker) Start(ctxIn context.Context) error {
	if err := c.loadBook(ctxIn); err != nil {
		return err
	}

	c.StopWaiter.Start(ctxIn, c)
	c.lastRotation = time.Now()

	c.CallIteratively(func(ctx context.Context) time.Duration {
		c.matchOnce()
		return c.config.MatchInterval
	})
	c.CallIteratively(func(ctx context.Context) time.Duration {
		return c.epochOnce(ctx)
	})
	c.CallIteratively(func(ctx context.Context) time.Duration {
		return c.settleOnce(ctx)
	})
	log.Info("cranker started", "orderBook", c.config.OrderBookAddress,
		"matchInterval", c.config.MatchInterval,
		"rotationInterval", c.config.EpochRotationInterval)
	return nil
}

// SubmitOrder is the external order entry point.
func (c *Cranker) SubmitOrder(maker chain.Address, side orderbook.Side, price, amount uint64, expiresAt int64) (orderbook.OrderLeaf, error) {
	return c.store.AddOrder(maker, side, price, amount, c.clock.Now(), expiresAt)
}

// PendingSettlements is how many matched fills await submission.
func (c *Cranker) PendingSettlements() int {
	c.mutex.Lock()
	defer c.mutex.Unlock()
	return len(c.pending)
}

func (c *Cranker) matchOnce() {
	results := c.store.Match(c.clock.Now())
	matchCyclesCounter.Inc(1)
	if len(results) == 0 {
		return
	}
	matchFillsCounter.Inc(int64(len(results)))
	c.mutex.Lock()
	c.pending = append(c.pending, results...)
	pendingFillsGauge.Update(int64(len(c.pending)))
	c.mutex.Unlock()
	log.Debug("matched fills queued", "fills", len(results))
}

// epochOnce rotates when the epoch is full or the rotation interval has
// elapsed, then pushes every closed batch through the on-chain lifecycle.
func (c *Cranker) epochOnce(ctx context.Context) time.Duration {
	if c.store.CurrentEpochOrderCount() >= c.config.MaxOrdersPerEpoch ||
		time.Since(c.lastRotation) >= c.config.EpochRotationInterval {
		c.store.Rotate(c.clock.Now())
		c.lastRotation = time.Now()
	}

	c.mutex.Lock()
	c.unsubmitted = append(c.unsubmitted, c.store.DrainClosed()...)
	batches := c.unsubmitted
	c.mutex.Unlock()

	for len(batches) > 0 {
		batch := batches[0]
		if err := c.commitBatch(ctx, batch); err != nil {
			c.mutex.Lock()
			c.unsubmitted = batches
			c.mutex.Unlock()
			delay := c.nextEpochBackoff()
			log.Error("epoch submission failed, backing off", "epoch", batch.EpochIndex,
				"delay", delay, "err", err)
			return delay
		}
		batches = batches[1:]
		epochsSubmittedCounter.Inc(1)
	}
	c.mutex.Lock()
	c.unsubmitted = nil
	c.mutex.Unlock()
	c.epochBackoff = 0
	return c.config.EpochRotationInterval
}

// commitBatch walks one closed epoch through create → root → finalize.
// Steps already performed by an earlier attempt are detected and skipped,
// so resubmission after a transient failure is idempotent.
func (c *Cranker) commitBatch(ctx context.Context, batch *orderstore.EpochBatch) error {
	for c.epochsCreated <= batch.EpochIndex {
		index, err := c.submitter.CreateEpoch(ctx)
		if err != nil {
			return errors.Wrap(err, "create epoch")
		}
		if index != c.epochsCreated {
			return errors.Errorf("chain assigned epoch %v, expected %v", index, c.epochsCreated)
		}
		c.epochsCreated++
	}
	for chunk := uint32(0); chunk < chunksForOrders(batch.OrderCount); chunk++ {
		err := c.submitter.CreateOrderChunk(ctx, batch.EpochIndex, chunk)
		if err != nil && !errors.Is(err, bitfield.ErrChunkExists) {
			return errors.Wrap(err, "create order chunk")
		}
	}
	err := c.submitter.SubmitEpochRoot(ctx, batch.EpochIndex, batch.Root, batch.OrderCount)
	if err != nil && !errors.Is(err, orderbook.ErrRootAlreadySubmitted) && !errors.Is(err, orderbook.ErrEpochAlreadyFinal) {
		return errors.Wrap(err, "submit root")
	}
	err = c.submitter.FinalizeEpoch(ctx, batch.EpochIndex)
	if err != nil && !errors.Is(err, orderbook.ErrEpochAlreadyFinal) {
		return errors.Wrap(err, "finalize epoch")
	}
	c.mutex.Lock()
	c.finalized[batch.EpochIndex] = true
	c.mutex.Unlock()
	log.Info("epoch committed", "epoch", batch.EpochIndex, "orders", batch.OrderCount, "root", batch.Root)
	return nil
}

// settleOnce submits every pending fill whose epochs are finalized.
func (c *Cranker) settleOnce(ctx context.Context) time.Duration {
	c.mutex.Lock()
	pending := c.pending
	c.pending = nil
	c.mutex.Unlock()

	var retry []orderstore.MatchResult
	backoff := false
	for _, result := range pending {
		switch err := c.settleResult(ctx, result); {
		case err == nil:
			settlementsCounter.Inc(1)
		case errors.Is(err, orderbook.ErrAlreadySettled):
			// someone beat us to it; the outcome is what we wanted
			log.Debug("settlement already landed", "maker", result.Maker.OrderID, "taker", result.Taker.OrderID)
		case errors.Is(err, merkle.ErrInvalidMerkleProof):
			// the store's tree and the chain's root disagree: that is a
			// bug, not a retryable condition
			settleErrorsCounter.Inc(1)
			log.Error("FATAL: settlement proof rejected on chain; dropping fill",
				"maker", result.Maker.OrderID, "taker", result.Taker.OrderID, "err", err)
		case errors.Is(err, errEpochsNotFinalized):
			retry = append(retry, result)
		default:
			settleErrorsCounter.Inc(1)
			backoff = true
			retry = append(retry, result)
			log.Warn("settlement submission failed, will retry",
				"maker", result.Maker.OrderID, "taker", result.Taker.OrderID, "err", err)
		}
	}

	c.mutex.Lock()
	c.pending = append(retry, c.pending...)
	pendingFillsGauge.Update(int64(len(c.pending)))
	c.mutex.Unlock()

	if backoff {
		return c.nextSettleBackoff()
	}
	c.settleBackoff = 0
	return c.config.SettlementInterval
}

var errEpochsNotFinalized = errors.New("match epochs not finalized yet")

func (c *Cranker) settleResult(ctx context.Context, result orderstore.MatchResult) error {
	c.mutex.Lock()
	ready := c.finalized[result.Maker.EpochIndex] && c.finalized[result.Taker.EpochIndex]
	c.mutex.Unlock()
	if !ready {
		return errEpochsNotFinalized
	}
	makerProof, err := c.store.ProofAt(result.Maker.EpochIndex, result.Maker.OrderIndex)
	if err != nil {
		return errors.Wrap(err, "maker proof")
	}
	takerProof, err := c.store.ProofAt(result.Taker.EpochIndex, result.Taker.OrderIndex)
	if err != nil {
		return errors.Wrap(err, "taker proof")
	}
	return c.submitter.SettleMatch(ctx, orderbook.SettleArgs{
		MakerLeaf:  result.Maker.Encode(),
		MakerProof: makerProof,
		TakerLeaf:  result.Taker.Encode(),
		TakerProof: takerProof,
		FillAmount: result.FillAmount,
		MakerBase:  tokenAccount(c.baseMint, result.Maker.Maker),
		MakerQuote: tokenAccount(c.quoteMint, result.Maker.Maker),
		TakerBase:  tokenAccount(c.baseMint, result.Taker.Maker),
		TakerQuote: tokenAccount(c.quoteMint, result.Taker.Maker),
	})
}

func tokenAccount(mint, owner chain.Address) chain.Address {
	return chain.Derive(chain.SeedTokenAccount, mint.Bytes(), owner.Bytes())
}

func (c *Cranker) nextEpochBackoff() time.Duration {
	c.epochBackoff = nextBackoff(c.epochBackoff, c.config.ErrorDelay, c.config.MaxErrorDelay)
	return c.epochBackoff
}

func (c *Cranker) nextSettleBackoff() time.Duration {
	c.settleBackoff = nextBackoff(c.settleBackoff, c.config.ErrorDelay, c.config.MaxErrorDelay)
	return c.settleBackoff
}

// nextBackoff doubles the delay up to the configured ceiling.
func nextBackoff(current, initial, max time.Duration) time.Duration {
	if current == 0 {
		return initial
	}
	next := current * 2
	if next > max {
		return max
	}
	return next
}
