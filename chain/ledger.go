// Copyright 2023-2024, Stratum Labs, Inc.
// For license information, see https://github.com/stratumlabs/stratum/blob/master/LICENSE

package chain

import (
	"sync"

	"github.com/pkg/errors"
)

var ErrInsufficientVaultBalance = errors.New("insufficient vault balance")

// Ledger tracks fungible balances for one mint (or for lamports when used
// as the native reserve). Token-vault transfers are an external collaborator
// of the settlement core; this is the minimal interface it relies on.
type Ledger struct {
	mutex    sync.Mutex
	mint     Address
	balances map[Address]uint64
}

func NewLedger(mint Address) *Ledger {
	return &Ledger{
		mint:     mint,
		balances: make(map[Address]uint64),
	}
}

func (l *Ledger) Mint() Address {
	return l.mint
}

func (l *Ledger) Balance(account Address) uint64 {
	l.mutex.Lock()
	defer l.mutex.Unlock()
	return l.balances[account]
}

// Deposit credits an account, creating it on first use.
func (l *Ledger) Deposit(account Address, amount uint64) {
	l.mutex.Lock()
	defer l.mutex.Unlock()
	l.balances[account] += amount
}

func (l *Ledger) Transfer(from, to Address, amount uint64) error {
	if amount == 0 {
		return nil
	}
	l.mutex.Lock()
	defer l.mutex.Unlock()
	if l.balances[from] < amount {
		return errors.Wrapf(ErrInsufficientVaultBalance, "account %v has %v, needs %v", from, l.balances[from], amount)
	}
	l.balances[from] -= amount
	l.balances[to] += amount
	return nil
}
