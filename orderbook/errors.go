// Copyright 2023-2024, Stratum Labs, Inc.
// For license information, see https://github.com/stratumlabs/stratum/blob/master/LICENSE

package orderbook

import "github.com/pkg/errors"

var (
	ErrOrderBookInactive    = errors.New("order book is not active")
	ErrInvalidTickSize      = errors.New("tick size must be positive")
	ErrInvalidFeeBps        = errors.New("fee must not exceed 10000 bps")
	ErrInvalidOrderSide     = errors.New("maker and taker must be on opposite sides")
	ErrZeroAmount           = errors.New("order amount must be positive")
	ErrEpochNotFinalized    = errors.New("epoch is not finalized")
	ErrEpochAlreadyFinal    = errors.New("epoch is already finalized")
	ErrEpochExpired         = errors.New("epoch settlement window has closed")
	ErrRootAlreadySubmitted = errors.New("epoch root already submitted")
	ErrRootNotSubmitted     = errors.New("epoch root not submitted")
	ErrOrderCountExceeded   = errors.New("order count exceeds epoch capacity")
	ErrPriceNotCrossed      = errors.New("bid price must be >= ask price")
	ErrTickViolation        = errors.New("price spread is not a tick multiple")
	ErrOrderExpired         = errors.New("order has expired")
	ErrFillExceedsOrder     = errors.New("fill amount exceeds order remaining")
	ErrAlreadySettled       = errors.New("order pair already settled")
	ErrInvalidLeaf          = errors.New("malformed order leaf encoding")
	ErrCleanupBeforeExpiry  = errors.New("cleanup attempted before expiry")
	ErrNotOrderOwner        = errors.New("caller is not the order owner")
	ErrUnauthorized         = errors.New("unauthorized")
	ErrOverflow             = errors.New("arithmetic overflow")
	ErrUnknownAccount       = errors.New("unknown account")
)
