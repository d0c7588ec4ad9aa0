// Copyright 2023-2024, Stratum Labs, Inc.
// For license information, see https://github.com/stratumlabs/stratum/blob/master/LICENSE

package orderbook

import (
	"math/bits"

	"github.com/pkg/errors"
)

// ValidatePriceMatch checks that a maker/taker pair crosses and returns
// the fill price, which is always the maker's (resting) price.
func ValidatePriceMatch(makerSide Side, makerPrice uint64, takerSide Side, takerPrice uint64) (uint64, error) {
	if makerSide == takerSide {
		return 0, errors.Wrapf(ErrInvalidOrderSide, "both %v", makerSide)
	}
	bidPrice, askPrice := makerPrice, takerPrice
	if makerSide == Ask {
		bidPrice, askPrice = takerPrice, makerPrice
	}
	if bidPrice < askPrice {
		return 0, errors.Wrapf(ErrPriceNotCrossed, "bid %v < ask %v", bidPrice, askPrice)
	}
	return makerPrice, nil
}

// CheckTick enforces that the bid/ask spread is a whole number of ticks.
func CheckTick(bidPrice, askPrice, tickSize uint64) error {
	if tickSize == 0 {
		return ErrInvalidTickSize
	}
	if (bidPrice-askPrice)%tickSize != 0 {
		return errors.Wrapf(ErrTickViolation, "spread %v, tick %v", bidPrice-askPrice, tickSize)
	}
	return nil
}

// QuoteVolume computes fillAmount * price / priceScale with a 128-bit
// intermediate so the product cannot silently wrap.
func QuoteVolume(fillAmount, price, priceScale uint64) (uint64, error) {
	if priceScale == 0 {
		return 0, ErrInvalidTickSize
	}
	hi, lo := bits.Mul64(fillAmount, price)
	if hi >= priceScale {
		return 0, errors.Wrapf(ErrOverflow, "%v * %v / %v", fillAmount, price, priceScale)
	}
	quo, _ := bits.Div64(hi, lo, priceScale)
	return quo, nil
}

// Fee computes floor(quoteVolume * feeBps / 10000).
func Fee(quoteVolume uint64, feeBps uint16) uint64 {
	hi, lo := bits.Mul64(quoteVolume, uint64(feeBps))
	quo, _ := bits.Div64(hi, lo, 10_000)
	return quo
}
