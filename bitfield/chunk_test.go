// Copyright 2023-2024, Stratum Labs, Inc.
// For license information, see https://github.com/stratumlabs/stratum/blob/master/LICENSE

package bitfield

import (
	"testing"

	"github.com/pkg/errors"

	"github.com/stratumlabs/stratum/chain"
	"github.com/stratumlabs/stratum/util/testhelpers"
)

func Require(t *testing.T, err error, printables ...interface{}) {
	t.Helper()
	testhelpers.RequireImpl(t, err, printables...)
}

func Fail(t *testing.T, printables ...interface{}) {
	t.Helper()
	testhelpers.FailImpl(t, printables...)
}

func TestChunkSetUnset(t *testing.T) {
	chunk := NewChunk(chain.Address(testhelpers.RandomHash()), 0, 0)

	newlySet, err := chunk.Set(42)
	Require(t, err)
	if !newlySet || !chunk.IsSet(42) || chunk.SetCount != 1 {
		Fail(t, "first set did not transition", chunk.SetCount)
	}

	newlySet, err = chunk.Set(42)
	Require(t, err)
	if newlySet || chunk.SetCount != 1 {
		Fail(t, "repeat set reported a transition")
	}

	wasSet, err := chunk.Unset(42)
	Require(t, err)
	if !wasSet || chunk.IsSet(42) || chunk.SetCount != 0 {
		Fail(t, "unset did not clear", chunk.SetCount)
	}

	wasSet, err = chunk.Unset(42)
	Require(t, err)
	if wasSet {
		Fail(t, "repeat unset reported a transition")
	}
}

func TestChunkBounds(t *testing.T) {
	chunk := NewChunk(chain.Address(testhelpers.RandomHash()), 0, 0)
	for _, i := range []uint32{0, 1, 100, 2047} {
		_, err := chunk.Set(i)
		Require(t, err, "index", i)
	}
	if _, err := chunk.Set(2048); !errors.Is(err, ErrBitIndexOutOfRange) {
		Fail(t, "set beyond page accepted")
	}
	if _, err := chunk.Unset(BitsPerChunk); !errors.Is(err, ErrBitIndexOutOfRange) {
		Fail(t, "unset beyond page accepted")
	}
	if chunk.IsSet(1 << 20) {
		Fail(t, "out of range read as set")
	}
}

func TestSetCountMatchesPopcount(t *testing.T) {
	chunk := NewChunk(chain.Address(testhelpers.RandomHash()), 0, 0)
	for i := 0; i < 4096; i++ {
		idx := uint32(testhelpers.RandomUint64(0, uint64(BitsPerChunk-1)))
		if testhelpers.RandomBool() {
			_, err := chunk.Set(idx)
			Require(t, err)
		} else {
			_, err := chunk.Unset(idx)
			Require(t, err)
		}
		if chunk.SetCount != chunk.CountSet() {
			Fail(t, "cached count diverged from popcount after op", i)
		}
	}
}

func TestSetUnsetPairRestoresState(t *testing.T) {
	chunk := NewChunk(chain.Address(testhelpers.RandomHash()), 0, 0)
	_, err := chunk.Set(100)
	Require(t, err)
	_, err = chunk.Set(200)
	Require(t, err)
	before := chunk.SetCount

	for _, i := range []uint32{0, 100, 1999} {
		was := chunk.IsSet(i)
		_, err := chunk.Set(i)
		Require(t, err)
		if !was {
			_, err = chunk.Unset(i)
			Require(t, err)
		}
		if chunk.IsSet(i) != was || chunk.SetCount != before {
			Fail(t, "set/unset pair changed state at", i)
		}
	}
}

func TestFillRate(t *testing.T) {
	chunk := NewChunk(chain.Address(testhelpers.RandomHash()), 0, 0)
	if chunk.FillRateBps() != 0 || !chunk.IsEmpty() {
		Fail(t, "fresh chunk not empty")
	}
	for i := uint32(0); i < 1024; i++ {
		_, err := chunk.Set(i)
		Require(t, err)
	}
	if chunk.FillRateBps() != 5000 {
		Fail(t, "half-full chunk reports", chunk.FillRateBps())
	}
	for i := uint32(1024); i < BitsPerChunk; i++ {
		_, err := chunk.Set(i)
		Require(t, err)
	}
	if chunk.FillRateBps() != 10_000 || !chunk.IsFull() {
		Fail(t, "full chunk reports", chunk.FillRateBps())
	}
}

func TestSplitIndexRoundTrip(t *testing.T) {
	for _, c := range []uint32{0, 1, 7, 1000} {
		for _, l := range []uint32{0, 1, 42, 2047} {
			chunk := NewChunk(chain.Address(testhelpers.RandomHash()), c, 0)
			gotChunk, gotLocal := SplitIndex(chunk.GlobalIndex(l))
			if gotChunk != c || gotLocal != l {
				Fail(t, "round trip failed", c, l, gotChunk, gotLocal)
			}
		}
	}
	if c, l := SplitIndex(2048); c != 1 || l != 0 {
		Fail(t, "split(2048) =", c, l)
	}
	if c, l := SplitIndex(4096); c != 2 || l != 0 {
		Fail(t, "split(4096) =", c, l)
	}
}
