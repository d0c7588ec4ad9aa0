// Copyright 2023-2024, Stratum Labs, Inc.
// For license information, see https://github.com/stratumlabs/stratum/blob/master/LICENSE

package merkle

import (
	"testing"

	"github.com/pkg/errors"

	"github.com/stratumlabs/stratum/chain"
	"github.com/stratumlabs/stratum/util/testhelpers"
)

func TestCommitmentLifecycle(t *testing.T) {
	owner := chain.Address(testhelpers.RandomHash())
	other := chain.Address(testhelpers.RandomHash())
	tree := NewTree([][]byte{[]byte("a"), []byte("b"), []byte("c")})

	c, err := NewCommitment(owner, 7, tree.Root(), tree.LeafCount(), 8, 1000)
	Require(t, err)

	// verification is refused until the commitment is finalized
	proof, err := tree.ProofAt(0)
	Require(t, err)
	if err := c.VerifyLeaf(proof, LeafHash([]byte("a"))); !errors.Is(err, ErrMerkleNotFinalized) {
		Fail(t, "expected not-finalized error, got", err)
	}

	// only the owner may update or finalize
	if err := c.Update(other, tree.Root(), 3, 1001); !errors.Is(err, ErrUnauthorized) {
		Fail(t, "non-owner update allowed")
	}
	Require(t, c.Update(owner, tree.Root(), 3, 1001))
	if err := c.Finalize(other, 1002); !errors.Is(err, ErrUnauthorized) {
		Fail(t, "non-owner finalize allowed")
	}
	Require(t, c.Finalize(owner, 1002))

	if err := c.Finalize(owner, 1003); !errors.Is(err, ErrMerkleFinalized) {
		Fail(t, "double finalize allowed")
	}
	if err := c.Update(owner, tree.Root(), 3, 1003); !errors.Is(err, ErrMerkleFinalized) {
		Fail(t, "update after finalize allowed")
	}

	Require(t, c.VerifyLeaf(proof, LeafHash([]byte("a"))))
	if err := c.VerifyLeaf(proof, LeafHash([]byte("x"))); !errors.Is(err, ErrInvalidMerkleProof) {
		Fail(t, "wrong leaf accepted")
	}
}

func TestCommitmentDepthBound(t *testing.T) {
	owner := chain.Address(testhelpers.RandomHash())
	if _, err := NewCommitment(owner, 0, testhelpers.RandomHash(), 0, MaxSupportedDepth+1, 0); err == nil {
		Fail(t, "oversized depth accepted")
	}
	if _, err := NewCommitment(owner, 0, testhelpers.RandomHash(), 5, 2, 0); !errors.Is(err, ErrTreeFull) {
		Fail(t, "leaf count beyond capacity accepted")
	}

	// a proof longer than the committed depth must be rejected even if it
	// would hash to the root
	tree := NewTree([][]byte{[]byte("a"), []byte("b"), []byte("c"), []byte("d")})
	c, err := NewCommitment(owner, 0, tree.Root(), 2, 1, 0)
	Require(t, err)
	Require(t, c.Finalize(owner, 1))
	proof, err := tree.ProofAt(0)
	Require(t, err)
	if err := c.VerifyLeaf(proof, LeafHash([]byte("a"))); !errors.Is(err, ErrInvalidMerkleProof) {
		Fail(t, "proof deeper than committed max accepted")
	}
}

func TestCommitmentAddress(t *testing.T) {
	owner := chain.Address(testhelpers.RandomHash())
	if CommitmentAddress(owner, 1) == CommitmentAddress(owner, 2) {
		Fail(t, "distinct seeds share an address")
	}
	if CommitmentAddress(owner, 1) != CommitmentAddress(owner, 1) {
		Fail(t, "derivation not deterministic")
	}
}

func TestMaxCapacity(t *testing.T) {
	if MaxCapacity(0) != 1 || MaxCapacity(10) != 1024 || MaxCapacity(20) != 1<<20 {
		Fail(t, "bad capacities")
	}
	if MaxCapacity(MaxSupportedDepth+1) != 0 {
		Fail(t, "unsupported depth has nonzero capacity")
	}
}
