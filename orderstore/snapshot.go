// Copyright 2023-2024, Stratum Labs, Inc.
// For license information, see https://github.com/stratumlabs/stratum/blob/master/LICENSE

package orderstore

import (
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/andybalholm/brotli"
	"github.com/pkg/errors"

	"github.com/stratumlabs/stratum/orderbook"
)

var ErrCorruptSnapshot = errors.New("corrupt epoch snapshot")

// snapshotName is the on-disk name for one epoch's leaf sequence.
func snapshotName(epochIndex uint32) string {
	return fmt.Sprintf("epoch-%08d.bin.br", epochIndex)
}

// writeSnapshot persists a closed epoch's canonical leaf bytes,
// brotli-compressed. The file is an audit and recovery artifact: replaying
// it through the tree builder reproduces the submitted root exactly.
func writeSnapshot(dir string, batch *EpochBatch) error {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return err
	}
	path := filepath.Join(dir, snapshotName(batch.EpochIndex))
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	defer f.Close()

	w := brotli.NewWriterLevel(f, brotli.DefaultCompression)
	for i := range batch.Leaves {
		if _, err := w.Write(batch.Leaves[i].Encode()); err != nil {
			return err
		}
	}
	if err := w.Close(); err != nil {
		return err
	}
	return f.Sync()
}

// ReadSnapshot loads a persisted epoch back into its leaf sequence.
func ReadSnapshot(dir string, epochIndex uint32) ([]orderbook.OrderLeaf, error) {
	f, err := os.Open(filepath.Join(dir, snapshotName(epochIndex)))
	if err != nil {
		return nil, err
	}
	defer f.Close()

	raw, err := io.ReadAll(brotli.NewReader(f))
	if err != nil {
		return nil, err
	}
	if len(raw)%orderbook.LeafSize != 0 {
		return nil, errors.Wrapf(ErrCorruptSnapshot, "%v bytes is not a whole number of leaves", len(raw))
	}
	leaves := make([]orderbook.OrderLeaf, 0, len(raw)/orderbook.LeafSize)
	for off := 0; off < len(raw); off += orderbook.LeafSize {
		leaf, err := orderbook.DecodeOrderLeaf(raw[off : off+orderbook.LeafSize])
		if err != nil {
			return nil, errors.Wrapf(err, "leaf %v", len(leaves))
		}
		leaves = append(leaves, *leaf)
	}
	return leaves, nil
}
