// Copyright (c) 2019 The Decred developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

// Package selection models how the voting and fee addresses of purchased
// tickets are chosen: by no pool, by manual entry, or by a configured pool.
package selection

import (
	"errors"
	"fmt"
	"strings"
	"sync"

	"github.com/decred/dcrpoolclient/pooldir"
)

var (
	// ErrDuplicatePool is returned when adding a pool whose host is
	// already configured.
	ErrDuplicatePool = errors.New("stake pool is already configured")

	// ErrPoolNotConfigured is returned when selecting a pool that is not
	// part of the configured set.
	ErrPoolNotConfigured = errors.New("stake pool is not configured")
)

// Selection is one of None, Manual or *PoolBound.
type Selection interface {
	selection()
}

// None purchases tickets without a pool.  The operator supplies the voting
// address.
type None struct{}

// Manual purchases tickets through a pool whose voting address, fee address
// and fee are entered by the operator.
type Manual struct{}

// PoolBound purchases tickets through a configured pool that supplies the
// voting address, fee address and fee.
type PoolBound struct {
	Pool               pooldir.StakePoolInfo
	APIToken           string
	MultisigVoteScript []byte
}

func (None) selection()       {}
func (Manual) selection()     {}
func (*PoolBound) selection() {}

// Host returns the pool's host, which identifies it in the configured set.
func (p *PoolBound) Host() string {
	return p.Pool.Host()
}

func (p *PoolBound) String() string {
	return p.Host()
}

// Name describes sel for display.
func Name(sel Selection) string {
	switch s := sel.(type) {
	case None:
		return "none"
	case Manual:
		return "manual"
	case *PoolBound:
		return s.Host()
	default:
		panic(fmt.Sprintf("unknown selection %T", sel))
	}
}

// Requirements describes which purchase inputs the operator must supply.
type Requirements struct {
	// VotingAddress is set when the operator enters the voting address.
	VotingAddress bool

	// ManualFees is set when the operator enters the pool fee address
	// and fee.
	ManualFees bool
}

// RequirementsOf returns the operator inputs required by sel.
func RequirementsOf(sel Selection) Requirements {
	switch sel.(type) {
	case None:
		return Requirements{VotingAddress: true}
	case Manual:
		return Requirements{VotingAddress: true, ManualFees: true}
	case *PoolBound:
		return Requirements{}
	default:
		panic(fmt.Sprintf("unknown selection %T", sel))
	}
}

// ConfiguredPools is the ordered set of pools the wallet is registered
// with, unique by host.  It is safe for concurrent use.
type ConfiguredPools struct {
	mu    sync.RWMutex
	pools []*PoolBound
}

// Add appends p.  Existing entries are never replaced.
func (c *ConfiguredPools) Add(p *PoolBound) error {
	host := p.Host()
	if host == "" {
		return fmt.Errorf("stake pool URL %q has no host", p.Pool.URL)
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	for _, existing := range c.pools {
		if strings.EqualFold(existing.Host(), host) {
			return fmt.Errorf("%s: %w", host, ErrDuplicatePool)
		}
	}
	c.pools = append(c.pools, p)
	return nil
}

// Remove removes the pool with the given host and reports whether it was
// configured.
func (c *ConfiguredPools) Remove(host string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	for i, p := range c.pools {
		if strings.EqualFold(p.Host(), host) {
			c.pools = append(c.pools[:i], c.pools[i+1:]...)
			return true
		}
	}
	return false
}

// Lookup returns the pool with the given host.
func (c *ConfiguredPools) Lookup(host string) (*PoolBound, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	for _, p := range c.pools {
		if strings.EqualFold(p.Host(), host) {
			return p, true
		}
	}
	return nil, false
}

// All returns the pools in the order they were added.
func (c *ConfiguredPools) All() []*PoolBound {
	c.mu.RLock()
	defer c.mu.RUnlock()
	pools := make([]*PoolBound, len(c.pools))
	copy(pools, c.pools)
	return pools
}

// Len returns the number of configured pools.
func (c *ConfiguredPools) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.pools)
}

// Model holds the active selection.  The initial selection is None.
type Model struct {
	pools   *ConfiguredPools
	current Selection
}

// NewModel returns a model choosing among pools.
func NewModel(pools *ConfiguredPools) *Model {
	return &Model{pools: pools, current: None{}}
}

// Current returns the active selection.
func (m *Model) Current() Selection {
	return m.current
}

// Requirements returns the operator inputs required by the active
// selection.
func (m *Model) Requirements() Requirements {
	return RequirementsOf(m.current)
}

// SelectNone activates None.
func (m *Model) SelectNone() {
	m.current = None{}
}

// SelectManual activates Manual.
func (m *Model) SelectManual() {
	m.current = Manual{}
}

// SelectPool activates the configured pool with the given host.
func (m *Model) SelectPool(host string) error {
	p, ok := m.pools.Lookup(host)
	if !ok {
		return fmt.Errorf("%s: %w", host, ErrPoolNotConfigured)
	}
	m.current = p
	return nil
}

// SelectDefault activates the only configured pool when exactly one is
// configured and reports whether it did.
func (m *Model) SelectDefault() bool {
	pools := m.pools.All()
	if len(pools) != 1 {
		return false
	}
	m.current = pools[0]
	return true
}
