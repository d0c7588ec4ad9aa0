// Copyright 2023-2024, Stratum Labs, Inc.
// For license information, see https://github.com/stratumlabs/stratum/blob/master/LICENSE

package orderstore

import (
	"testing"

	"github.com/stratumlabs/stratum/merkle"
	"github.com/stratumlabs/stratum/orderbook"
)

func TestSnapshotRoundTrip(t *testing.T) {
	config := DefaultConfig
	config.SnapshotDir = t.TempDir()
	store, err := NewStore(&config)
	Require(t, err)

	var want []orderbook.OrderLeaf
	for i := 0; i < 7; i++ {
		leaf, err := store.AddOrder(randomMaker(), orderbook.Bid, uint64(100+i), uint64(1+i), int64(i), 0)
		Require(t, err)
		want = append(want, leaf)
	}
	batch := store.Rotate(100)
	if batch == nil {
		Fail(t, "rotation returned nil")
	}

	got, err := ReadSnapshot(config.SnapshotDir, batch.EpochIndex)
	Require(t, err)
	if len(got) != len(want) {
		Fail(t, "leaf count", len(got))
	}
	for i := range want {
		if got[i] != want[i] {
			Fail(t, "leaf", i, "differs after round trip")
		}
	}

	// replaying the snapshot reproduces the submitted root
	blobs := make([][]byte, len(got))
	for i := range got {
		blobs[i] = got[i].Encode()
	}
	if merkle.NewTree(blobs).Root() != batch.Root {
		Fail(t, "snapshot replay root differs")
	}
}

func TestReadSnapshotMissing(t *testing.T) {
	if _, err := ReadSnapshot(t.TempDir(), 3); err == nil {
		Fail(t, "missing snapshot read succeeded")
	}
}
