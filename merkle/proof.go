// Copyright 2023-2024, Stratum Labs, Inc.
// For license information, see https://github.com/stratumlabs/stratum/blob/master/LICENSE

package merkle

import (
	"github.com/ethereum/go-ethereum/common"
)

// Proof is an inclusion proof: the ordered sibling hashes from the leaf's
// layer up to the layer below the root, plus the leaf's positional index.
type Proof struct {
	Siblings  []common.Hash
	LeafIndex uint32
}

// Verify recomputes the root from a leaf hash and a sibling path. At each
// level the low bit of the index selects whether the running hash is the
// left or the right input. Index bits beyond the proof length are ignored,
// so a tree may be shallower than 32 levels.
//
// An empty proof verifies only when the leaf is itself the root.
func Verify(proof []common.Hash, root, leaf common.Hash, index uint32) bool {
	acc := leaf
	idx := index
	for _, sibling := range proof {
		if idx&1 == 0 {
			acc = NodeHash(acc, sibling)
		} else {
			acc = NodeHash(sibling, acc)
		}
		idx >>= 1
	}
	return acc == root
}

// IsCorrect checks the proof against a root and leaf hash.
func (p *Proof) IsCorrect(root, leaf common.Hash) bool {
	return Verify(p.Siblings, root, leaf, p.LeafIndex)
}

// Depth is the number of tree levels the proof traverses.
func (p *Proof) Depth() int {
	return len(p.Siblings)
}
