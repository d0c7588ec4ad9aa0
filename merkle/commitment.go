// Copyright 2023-2024, Stratum Labs, Inc.
// For license information, see https://github.com/stratumlabs/stratum/blob/master/LICENSE

package merkle

import (
	"encoding/binary"

	"github.com/ethereum/go-ethereum/common"
	"github.com/pkg/errors"

	"github.com/stratumlabs/stratum/chain"
)

var (
	ErrInvalidMerkleProof = errors.New("invalid merkle proof")
	ErrMerkleFinalized    = errors.New("merkle commitment already finalized")
	ErrMerkleNotFinalized = errors.New("merkle commitment not finalized")
	ErrTreeFull           = errors.New("merkle tree capacity exceeded")
	ErrInvalidDepth       = errors.New("invalid merkle depth")
	ErrUnauthorized       = errors.New("unauthorized")
)

// MaxSupportedDepth bounds proof length; 2^20 leaves per commitment.
const MaxSupportedDepth uint8 = 20

// Commitment anchors a merkle root on chain. It is owned by a principal,
// identified by (owner, seed), and commits to an off-chain dataset with a
// fixed 32-byte footprint. The root may be replaced while the commitment
// is open; once finalized, root and leaf count are immutable and verifiers
// may rely on them.
type Commitment struct {
	Owner     chain.Address
	Seed      uint64
	Root      common.Hash
	LeafCount uint64
	MaxDepth  uint8
	Finalized bool
	CreatedAt int64
	UpdatedAt int64
}

// CommitmentAddress derives the account identity for (owner, seed).
func CommitmentAddress(owner chain.Address, seed uint64) chain.Address {
	var le [8]byte
	binary.LittleEndian.PutUint64(le[:], seed)
	return chain.Derive(chain.SeedMerkleRoot, owner.Bytes(), le[:])
}

// MaxCapacity is the leaf capacity for a given depth, zero if unsupported.
func MaxCapacity(depth uint8) uint64 {
	if depth > MaxSupportedDepth {
		return 0
	}
	return 1 << depth
}

func NewCommitment(owner chain.Address, seed uint64, root common.Hash, leafCount uint64, maxDepth uint8, now int64) (*Commitment, error) {
	if maxDepth > MaxSupportedDepth {
		return nil, errors.Wrapf(ErrInvalidDepth, "depth %v exceeds max %v", maxDepth, MaxSupportedDepth)
	}
	if leafCount > MaxCapacity(maxDepth) {
		return nil, errors.Wrapf(ErrTreeFull, "%v leaves at depth %v", leafCount, maxDepth)
	}
	return &Commitment{
		Owner:     owner,
		Seed:      seed,
		Root:      root,
		LeafCount: leafCount,
		MaxDepth:  maxDepth,
		CreatedAt: now,
		UpdatedAt: now,
	}, nil
}

// Update replaces the root. Only the owner may update, and only before
// finalization.
func (c *Commitment) Update(caller chain.Address, root common.Hash, leafCount uint64, now int64) error {
	if caller != c.Owner {
		return ErrUnauthorized
	}
	if c.Finalized {
		return ErrMerkleFinalized
	}
	if leafCount > MaxCapacity(c.MaxDepth) {
		return errors.Wrapf(ErrTreeFull, "%v leaves at depth %v", leafCount, c.MaxDepth)
	}
	c.Root = root
	c.LeafCount = leafCount
	c.UpdatedAt = now
	return nil
}

func (c *Commitment) Finalize(caller chain.Address, now int64) error {
	if caller != c.Owner {
		return ErrUnauthorized
	}
	if c.Finalized {
		return ErrMerkleFinalized
	}
	c.Finalized = true
	c.UpdatedAt = now
	return nil
}

// VerifyLeaf checks an inclusion proof against the finalized root. Proofs
// longer than the committed depth are rejected regardless of hash result.
func (c *Commitment) VerifyLeaf(proof *Proof, leaf common.Hash) error {
	if !c.Finalized {
		return ErrMerkleNotFinalized
	}
	if proof.Depth() > int(c.MaxDepth) {
		return errors.Wrapf(ErrInvalidMerkleProof, "proof depth %v exceeds committed max %v", proof.Depth(), c.MaxDepth)
	}
	if !proof.IsCorrect(c.Root, leaf) {
		return errors.Wrapf(ErrInvalidMerkleProof, "leaf %v at index %v", leaf, proof.LeafIndex)
	}
	return nil
}
