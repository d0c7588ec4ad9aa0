// Copyright 2023-2024, Stratum Labs, Inc.
// For license information, see https://github.com/stratumlabs/stratum/blob/master/LICENSE

package orderbook

import (
	"testing"

	"github.com/pkg/errors"
)

func TestValidMatchAskBid(t *testing.T) {
	// maker sells at 100, taker buys at 105: fills at maker's price
	price, err := ValidatePriceMatch(Ask, 100, Bid, 105)
	Require(t, err)
	if price != 100 {
		Fail(t, "fill price", price)
	}
}

func TestValidMatchBidAsk(t *testing.T) {
	// maker buys at 105, taker sells at 100: fills at maker's price
	price, err := ValidatePriceMatch(Bid, 105, Ask, 100)
	Require(t, err)
	if price != 105 {
		Fail(t, "fill price", price)
	}
}

func TestSameSideRejected(t *testing.T) {
	if _, err := ValidatePriceMatch(Bid, 100, Bid, 105); !errors.Is(err, ErrInvalidOrderSide) {
		Fail(t, "same side match accepted")
	}
}

func TestPriceNotCrossed(t *testing.T) {
	if _, err := ValidatePriceMatch(Ask, 105, Bid, 100); !errors.Is(err, ErrPriceNotCrossed) {
		Fail(t, "uncrossed prices accepted")
	}
	if _, err := ValidatePriceMatch(Bid, 100, Ask, 105); !errors.Is(err, ErrPriceNotCrossed) {
		Fail(t, "uncrossed prices accepted")
	}
	// equal prices cross
	if _, err := ValidatePriceMatch(Bid, 100, Ask, 100); err != nil {
		Fail(t, "equal prices rejected", err)
	}
}

func TestCheckTick(t *testing.T) {
	Require(t, CheckTick(105, 100, 5))
	Require(t, CheckTick(100, 100, 7))
	if err := CheckTick(103, 100, 5); !errors.Is(err, ErrTickViolation) {
		Fail(t, "off-tick spread accepted")
	}
	if err := CheckTick(100, 100, 0); !errors.Is(err, ErrInvalidTickSize) {
		Fail(t, "zero tick accepted")
	}
}

func TestQuoteVolume(t *testing.T) {
	// 10 base at price 100 with scale 1 = 1000 quote
	quote, err := QuoteVolume(10, 100, 1)
	Require(t, err)
	if quote != 1000 {
		Fail(t, "quote volume", quote)
	}

	quote, err = QuoteVolume(10, 100, 4)
	Require(t, err)
	if quote != 250 {
		Fail(t, "scaled quote volume", quote)
	}

	// the 128-bit intermediate keeps large products exact
	quote, err = QuoteVolume(1<<40, 1<<40, 1<<40)
	Require(t, err)
	if quote != 1<<40 {
		Fail(t, "large product quote volume", quote)
	}

	if _, err := QuoteVolume(1<<63, 1<<63, 2); !errors.Is(err, ErrOverflow) {
		Fail(t, "overflowing quotient accepted")
	}
	if _, err := QuoteVolume(1, 1, 0); !errors.Is(err, ErrInvalidTickSize) {
		Fail(t, "zero scale accepted")
	}
}

func TestFee(t *testing.T) {
	if Fee(10_000, 25) != 25 {
		Fail(t, "25bps fee on 10000", Fee(10_000, 25))
	}
	if Fee(999, 0) != 0 {
		Fail(t, "zero-bps fee nonzero")
	}
	if Fee(3, 9999) != 2 {
		// floor(3 * 9999 / 10000)
		Fail(t, "fee rounding", Fee(3, 9999))
	}
}

func TestHistorySummary(t *testing.T) {
	var h HistorySummary
	h.Record(10, 100)
	h.Record(4, 200)
	h.Record(30, 300)
	if h.TotalCount != 3 || h.TotalVolume != 44 {
		Fail(t, "totals", h.TotalCount, h.TotalVolume)
	}
	if h.MinFill != 4 || h.MaxFill != 30 {
		Fail(t, "extremes", h.MinFill, h.MaxFill)
	}
	if h.AverageFill() != 14 {
		Fail(t, "average", h.AverageFill())
	}
	if h.LastSettledAt != 300 {
		Fail(t, "last settled", h.LastSettledAt)
	}
}
