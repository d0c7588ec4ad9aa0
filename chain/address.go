// Copyright 2023-2024, Stratum Labs, Inc.
// For license information, see https://github.com/stratumlabs/stratum/blob/master/LICENSE

package chain

import (
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/crypto"
)

// Address is a 32-byte account identity. Accounts are addressed by
// deterministic derivation from a seed tuple, so distinct tuples always
// map to distinct accounts and an account can never be materialized twice.
type Address common.Hash

func (a Address) Bytes() []byte {
	return a[:]
}

func (a Address) Hash() common.Hash {
	return common.Hash(a)
}

func (a Address) String() string {
	return hexutil.Encode(a[:])
}

func (a Address) IsZero() bool {
	return a == Address{}
}

// Derive computes the account identity for a seed tuple.
func Derive(seeds ...[]byte) Address {
	return Address(crypto.Keccak256Hash(seeds...))
}

// Seed prefixes for every derived account namespace.
var (
	SeedBitfieldRegistry = []byte("bitfield_registry")
	SeedBitfieldChunk    = []byte("bitfield_chunk")
	SeedMerkleRoot       = []byte("merkle_root")
	SeedOrderBook        = []byte("order_book")
	SeedEpoch            = []byte("epoch")
	SeedOrderChunk       = []byte("order_chunk")
	SeedSettlement       = []byte("settlement")
	SeedBaseVault        = []byte("base_vault")
	SeedQuoteVault       = []byte("quote_vault")
	SeedTokenAccount     = []byte("token_account")
)
