// Copyright 2023-2024, Stratum Labs, Inc.
// For license information, see https://github.com/stratumlabs/stratum/blob/master/LICENSE

package merkle

import (
	"github.com/ethereum/go-ethereum/common"
	"github.com/pkg/errors"
)

var ErrLeafIndexOutOfRange = errors.New("leaf index out of range")

// Tree is the off-chain side of the commitment: it is built once from an
// ordered sequence of raw leaf blobs and then serves the root and
// positional proofs. The shape is fixed: leaves are hashed with the leaf
// prefix, adjacent pairs are folded with the node prefix, and an
// odd-length layer duplicates its last element before folding. The
// verifier assumes exactly this shape; the two are a matched pair.
type Tree struct {
	layers [][]common.Hash // layers[0] is the leaf hashes, last layer is the root
}

// NewTree builds the tree for an ordered sequence of raw leaf blobs.
// The same input always yields the same root and proofs.
func NewTree(blobs [][]byte) *Tree {
	if len(blobs) == 0 {
		return &Tree{}
	}
	leaves := make([]common.Hash, len(blobs))
	for i, blob := range blobs {
		leaves[i] = LeafHash(blob)
	}
	return NewTreeFromLeafHashes(leaves)
}

// NewTreeFromLeafHashes builds the tree over already-hashed leaves.
func NewTreeFromLeafHashes(leaves []common.Hash) *Tree {
	if len(leaves) == 0 {
		return &Tree{}
	}
	layers := [][]common.Hash{leaves}
	current := leaves
	for len(current) > 1 {
		if len(current)%2 == 1 {
			current = append(current, current[len(current)-1])
		}
		next := make([]common.Hash, len(current)/2)
		for i := range next {
			next[i] = NodeHash(current[2*i], current[2*i+1])
		}
		layers = append(layers, next)
		current = next
	}
	return &Tree{layers: layers}
}

// Root returns the 32-byte commitment, or the zero hash for an empty tree.
func (t *Tree) Root() common.Hash {
	if len(t.layers) == 0 {
		return common.Hash{}
	}
	top := t.layers[len(t.layers)-1]
	return top[0]
}

func (t *Tree) LeafCount() uint64 {
	if len(t.layers) == 0 {
		return 0
	}
	return uint64(len(t.layers[0]))
}

// Depth is the proof length for every leaf.
func (t *Tree) Depth() uint8 {
	if len(t.layers) == 0 {
		return 0
	}
	return uint8(len(t.layers) - 1)
}

// LeafHashAt returns the hash of the leaf at index i.
func (t *Tree) LeafHashAt(i uint32) (common.Hash, error) {
	if len(t.layers) == 0 || uint64(i) >= uint64(len(t.layers[0])) {
		return common.Hash{}, errors.Wrapf(ErrLeafIndexOutOfRange, "index %v of %v leaves", i, t.LeafCount())
	}
	return t.layers[0][i], nil
}

// ProofAt generates the inclusion proof for the leaf at index i. At each
// layer the recorded sibling is the adjacent node; a lone odd-indexed tail
// records itself, matching the duplication rule used during construction.
func (t *Tree) ProofAt(i uint32) (*Proof, error) {
	if len(t.layers) == 0 || uint64(i) >= uint64(len(t.layers[0])) {
		return nil, errors.Wrapf(ErrLeafIndexOutOfRange, "index %v of %v leaves", i, t.LeafCount())
	}
	siblings := make([]common.Hash, 0, len(t.layers)-1)
	idx := i
	for _, layer := range t.layers[:len(t.layers)-1] {
		sibling := idx ^ 1
		if uint64(sibling) >= uint64(len(layer)) {
			sibling = idx
		}
		siblings = append(siblings, layer[sibling])
		idx >>= 1
	}
	return &Proof{Siblings: siblings, LeafIndex: i}, nil
}
