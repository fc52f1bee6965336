// Package memory provides an in-process Custodian backed by maps. It is the
// default backend for tests, examples and single-node deployments.
package memory

import (
	"sort"
	"sync"

	"github.com/erain9/deepmatch/pkg/core"
)

type balanceKey struct {
	user  string
	asset string
}

// Custodian keeps available and locked balances in memory. All methods are
// safe for concurrent use.
type Custodian struct {
	mu        sync.RWMutex
	available map[balanceKey]uint64
	locked    map[balanceKey]uint64
}

// NewCustodian creates an empty in-memory custodian.
func NewCustodian() *Custodian {
	return &Custodian{
		available: make(map[balanceKey]uint64),
		locked:    make(map[balanceKey]uint64),
	}
}

// Deposit credits amount to the user's available balance. It is the funding
// entry point; the order book only ever moves existing balances.
func (c *Custodian) Deposit(user, asset string, amount uint64) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.available[balanceKey{user, asset}] += amount
}

// Withdraw debits amount from the user's available balance.
func (c *Custodian) Withdraw(user, asset string, amount uint64) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	k := balanceKey{user, asset}
	if c.available[k] < amount {
		return core.ErrInsufficientFunds
	}
	c.setAvailable(k, c.available[k]-amount)
	return nil
}

// AvailableBalance returns the user's spendable balance of asset.
func (c *Custodian) AvailableBalance(user, asset string) uint64 {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.available[balanceKey{user, asset}]
}

// LockedBalance returns the user's balance of asset held by open orders.
func (c *Custodian) LockedBalance(user, asset string) uint64 {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.locked[balanceKey{user, asset}]
}

// IncreaseAvailable credits amount to the user's available balance.
func (c *Custodian) IncreaseAvailable(user, asset string, amount uint64) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.available[balanceKey{user, asset}] += amount
}

// DecreaseAvailable debits amount from the user's available balance.
func (c *Custodian) DecreaseAvailable(user, asset string, amount uint64) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	k := balanceKey{user, asset}
	if c.available[k] < amount {
		return core.ErrInsufficientFunds
	}
	c.setAvailable(k, c.available[k]-amount)
	return nil
}

// LockBalance moves amount from available to locked.
func (c *Custodian) LockBalance(user, asset string, amount uint64) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	k := balanceKey{user, asset}
	if c.available[k] < amount {
		return core.ErrInsufficientFunds
	}
	c.setAvailable(k, c.available[k]-amount)
	c.locked[k] += amount
	return nil
}

// UnlockBalance moves amount from locked back to available.
func (c *Custodian) UnlockBalance(user, asset string, amount uint64) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	k := balanceKey{user, asset}
	if c.locked[k] < amount {
		return core.ErrInsufficientFunds
	}
	c.setLocked(k, c.locked[k]-amount)
	c.available[k] += amount
	return nil
}

// DecreaseLocked debits amount from the user's locked balance.
func (c *Custodian) DecreaseLocked(user, asset string, amount uint64) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	k := balanceKey{user, asset}
	if c.locked[k] < amount {
		return core.ErrInsufficientFunds
	}
	c.setLocked(k, c.locked[k]-amount)
	return nil
}

// Balance is one user's holding of one asset.
type Balance struct {
	User      string `json:"user"`
	Asset     string `json:"asset"`
	Available uint64 `json:"available"`
	Locked    uint64 `json:"locked"`
}

// Balances returns every nonzero holding of the user, sorted by asset.
func (c *Custodian) Balances(user string) []Balance {
	c.mu.RLock()
	defer c.mu.RUnlock()

	byAsset := make(map[string]*Balance)
	for k, v := range c.available {
		if k.user == user && v > 0 {
			byAsset[k.asset] = &Balance{User: user, Asset: k.asset, Available: v}
		}
	}
	for k, v := range c.locked {
		if k.user != user || v == 0 {
			continue
		}
		b, ok := byAsset[k.asset]
		if !ok {
			b = &Balance{User: user, Asset: k.asset}
			byAsset[k.asset] = b
		}
		b.Locked = v
	}

	out := make([]Balance, 0, len(byAsset))
	for _, b := range byAsset {
		out = append(out, *b)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Asset < out[j].Asset })
	return out
}

// setAvailable writes a balance, dropping the map entry at zero so Balances
// and the backing maps stay compact.
func (c *Custodian) setAvailable(k balanceKey, v uint64) {
	if v == 0 {
		delete(c.available, k)
		return
	}
	c.available[k] = v
}

func (c *Custodian) setLocked(k balanceKey, v uint64) {
	if v == 0 {
		delete(c.locked, k)
		return
	}
	c.locked[k] = v
}
