// Copyright 2023-2024, Stratum Labs, Inc.
// For license information, see https://github.com/stratumlabs/stratum/blob/master/LICENSE

package merkle

import (
	"golang.org/x/crypto/sha3"

	"github.com/ethereum/go-ethereum/common"
)

// Domain separation prefixes. A leaf is hashed as H(0x00 ‖ blob) and an
// internal node as H(0x01 ‖ left ‖ right), so a leaf preimage can never
// collide with a node preimage.
const (
	LeafPrefix byte = 0x00
	NodePrefix byte = 0x01
)

// Hash256 is the single 256-bit hash shared by the off-chain tree builder
// and the settlement verifier. Both sides must stay bit-identical.
func Hash256(data ...[]byte) common.Hash {
	var ret common.Hash
	hash := sha3.NewLegacyKeccak256()
	for _, b := range data {
		_, err := hash.Write(b)
		if err != nil {
			// This code should never be reached
			panic("error writing Hash256 data")
		}
	}
	hash.Sum(ret[:0])
	return ret
}

// LeafHash hashes a raw leaf blob with the leaf domain prefix.
func LeafHash(blob []byte) common.Hash {
	return Hash256([]byte{LeafPrefix}, blob)
}

// NodeHash combines two child hashes with the node domain prefix.
func NodeHash(left, right common.Hash) common.Hash {
	return Hash256([]byte{NodePrefix}, left.Bytes(), right.Bytes())
}
