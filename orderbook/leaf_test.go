// Copyright 2023-2024, Stratum Labs, Inc.
// For license information, see https://github.com/stratumlabs/stratum/blob/master/LICENSE

package orderbook

import (
	"bytes"
	"encoding/hex"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/pkg/errors"

	"github.com/stratumlabs/stratum/chain"
	"github.com/stratumlabs/stratum/merkle"
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

// The canonical encoding is the ABI between the tree builder and the
// settlement verifier; both the bytes and the leaf digest are pinned.
func TestLeafKnownAnswerVector(t *testing.T) {
	var maker chain.Address
	for i := range maker {
		maker[i] = 0xAA
	}
	leaf := OrderLeaf{
		Maker:      maker,
		OrderID:    1,
		Side:       Bid,
		Price:      100,
		Amount:     10,
		EpochIndex: 0,
		OrderIndex: 0,
		CreatedAt:  1700000000,
		ExpiresAt:  0,
	}
	encoded := leaf.Encode()
	if len(encoded) != LeafSize {
		Fail(t, "encoded length", len(encoded))
	}
	want, err := hex.DecodeString(
		"aaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaa" +
			"010000000000000000" +
			"6400000000000000" +
			"0a00000000000000" +
			"00000000" +
			"00000000" +
			"00f1536500000000" +
			"0000000000000000")
	Require(t, err)
	if !bytes.Equal(encoded, want) {
		Fail(t, "canonical encoding changed:", hex.EncodeToString(encoded))
	}
	if leaf.Hash() != common.HexToHash("0x7b534ea055f567b23c44a14e97e1e8adb0890b485b4920aeb9b7bd28d57ced5e") {
		Fail(t, "leaf digest changed:", leaf.Hash())
	}
}

func TestLeafRoundTrip(t *testing.T) {
	for i := 0; i < 100; i++ {
		leaf := OrderLeaf{
			Maker:      chain.Address(testhelpers.RandomHash()),
			OrderID:    testhelpers.RandomUint64(0, 1<<62),
			Side:       Side(testhelpers.RandomUint64(0, 1)),
			Price:      testhelpers.RandomUint64(1, 1<<60),
			Amount:     testhelpers.RandomUint64(1, 1<<60),
			EpochIndex: uint32(testhelpers.RandomUint64(0, 1<<31)),
			OrderIndex: uint32(testhelpers.RandomUint64(0, 2047)),
			CreatedAt:  int64(testhelpers.RandomUint64(0, 1<<40)),
			ExpiresAt:  int64(testhelpers.RandomUint64(0, 1<<40)),
		}
		decoded, err := DecodeOrderLeaf(leaf.Encode())
		Require(t, err)
		if *decoded != leaf {
			Fail(t, "round trip mismatch", leaf, *decoded)
		}
	}
}

func TestLeafDecodeRejects(t *testing.T) {
	leaf := OrderLeaf{Side: Ask, Price: 1, Amount: 1}
	encoded := leaf.Encode()

	if _, err := DecodeOrderLeaf(encoded[:80]); !errors.Is(err, ErrInvalidLeaf) {
		Fail(t, "short encoding accepted")
	}
	if _, err := DecodeOrderLeaf(append(encoded, 0)); !errors.Is(err, ErrInvalidLeaf) {
		Fail(t, "long encoding accepted")
	}
	bad := make([]byte, LeafSize)
	copy(bad, encoded)
	bad[40] = 2 // side byte
	if _, err := DecodeOrderLeaf(bad); !errors.Is(err, ErrInvalidLeaf) {
		Fail(t, "invalid side byte accepted")
	}
}

// Any single-byte deviation must change the leaf hash, since the verifier
// recomputes it from the canonical bytes.
func TestLeafByteExactIdentity(t *testing.T) {
	leaf := OrderLeaf{
		Maker:     chain.Address(testhelpers.RandomHash()),
		OrderID:   7,
		Side:      Ask,
		Price:     500,
		Amount:    3,
		CreatedAt: 12345,
	}
	encoded := leaf.Encode()
	base := merkle.LeafHash(encoded)
	for i := 0; i < LeafSize; i++ {
		mutated := make([]byte, LeafSize)
		copy(mutated, encoded)
		mutated[i] ^= 0x01
		if merkle.LeafHash(mutated) == base {
			Fail(t, "bit flip at byte", i, "did not change digest")
		}
	}
}

func TestSideHelpers(t *testing.T) {
	if Bid.Opposite() != Ask || Ask.Opposite() != Bid {
		Fail(t, "opposite sides wrong")
	}
	if Bid.String() != "bid" || Ask.String() != "ask" {
		Fail(t, "side names wrong")
	}
}

func TestExpired(t *testing.T) {
	leaf := OrderLeaf{ExpiresAt: 0}
	if leaf.Expired(1 << 40) {
		Fail(t, "never-expiring order reported expired")
	}
	leaf.ExpiresAt = 100
	if leaf.Expired(100) {
		Fail(t, "order expired exactly at boundary")
	}
	if !leaf.Expired(101) {
		Fail(t, "expired order not reported")
	}
}
