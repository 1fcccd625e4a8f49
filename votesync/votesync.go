// Copyright (c) 2019 The Decred developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

// Package votesync keeps the vote bits registered with every configured
// stake pool in line with the vote choices recorded in the wallet.
package votesync

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/decred/dcrpoolclient/poolapi"
	"github.com/decred/dcrpoolclient/selection"
	"github.com/decred/dcrpoolclient/votebits"
)

// Wallet is the wallet state the synchronizer reads and records choices in.
type Wallet interface {
	Agendas(ctx context.Context) ([]votebits.Agenda, error)
	VoteChoices(ctx context.Context) (uint32, []votebits.ChoicePair, error)
	SetVoteChoices(ctx context.Context, pairs []votebits.ChoicePair) error
}

// Outcome is the result of pushing vote bits to one pool.
type Outcome int

const (
	// Updated means the pool accepted the vote bits.
	Updated Outcome = iota

	// Skipped means the pool's API does not accept vote bits.
	Skipped

	// Failed means the vote bits could not be set.
	Failed
)

func (o Outcome) String() string {
	switch o {
	case Updated:
		return "updated"
	case Skipped:
		return "skipped"
	case Failed:
		return "failed"
	default:
		return fmt.Sprintf("Outcome(%d)", int(o))
	}
}

// PoolResult describes the push to a single pool.
type PoolResult struct {
	Host     string
	Version  uint32
	Outcome  Outcome
	Err      error
	Duration time.Duration
}

// Result describes a synchronization.  Pools are in configured order.
type Result struct {
	VoteBits uint16
	Pools    []PoolResult
}

// SyncError is returned when at least one pool did not accept the vote
// bits.  The other pools are updated regardless.
type SyncError struct {
	Failures []PoolResult
}

func (e *SyncError) Error() string {
	msgs := make([]string, 0, len(e.Failures))
	for _, f := range e.Failures {
		msgs = append(msgs, fmt.Sprintf("%s: %v", f.Host, f.Err))
	}
	return fmt.Sprintf("vote bits not updated on %d stake pool(s): %s",
		len(e.Failures), strings.Join(msgs, "; "))
}

// Hosts returns the hosts of the failing pools.
func (e *SyncError) Hosts() []string {
	hosts := make([]string, 0, len(e.Failures))
	for _, f := range e.Failures {
		hosts = append(hosts, f.Host)
	}
	return hosts
}

// Synchronizer records vote choices in the wallet and pushes the resulting
// vote bits to the configured pools.
type Synchronizer struct {
	wallet     Wallet
	pools      *selection.ConfiguredPools
	httpClient *http.Client
}

// New returns a Synchronizer.  A nil httpClient uses http.DefaultClient.
func New(wallet Wallet, pools *selection.ConfiguredPools, httpClient *http.Client) *Synchronizer {
	return &Synchronizer{
		wallet:     wallet,
		pools:      pools,
		httpClient: httpClient,
	}
}

// SetVoteChoice records the choice in the wallet and then pushes the vote
// bits of all recorded choices to every configured pool.  Nothing is
// recorded when the choice is not defined by the wallet's agendas or the
// resulting vote bits are invalid.
func (s *Synchronizer) SetVoteChoice(ctx context.Context, agendaID, choiceID string) (*Result, error) {
	agendas, err := s.wallet.Agendas(ctx)
	if err != nil {
		return nil, err
	}
	pair := votebits.ChoicePair{AgendaID: agendaID, ChoiceID: choiceID}
	if _, _, err := votebits.Lookup(agendas, pair); err != nil {
		return nil, err
	}
	_, current, err := s.wallet.VoteChoices(ctx)
	if err != nil {
		return nil, err
	}
	bits, err := calcValid(agendas, votebits.Merge(current, pair))
	if err != nil {
		return nil, err
	}
	if err := s.wallet.SetVoteChoices(ctx, []votebits.ChoicePair{pair}); err != nil {
		return nil, err
	}
	log.Infof("Set vote choice %s=%s", agendaID, choiceID)
	return s.push(ctx, bits)
}

// Sync pushes the vote bits of the wallet's current choices to every
// configured pool.
func (s *Synchronizer) Sync(ctx context.Context) (*Result, error) {
	agendas, err := s.wallet.Agendas(ctx)
	if err != nil {
		return nil, err
	}
	_, current, err := s.wallet.VoteChoices(ctx)
	if err != nil {
		return nil, err
	}
	bits, err := calcValid(agendas, current)
	if err != nil {
		return nil, err
	}
	return s.push(ctx, bits)
}

// calcValid computes the vote bits of pairs and refuses bits that leave an
// agenda without a defined choice.  Pools reject such bits.
func calcValid(agendas []votebits.Agenda, pairs []votebits.ChoicePair) (uint16, error) {
	bits, err := votebits.Calc(agendas, pairs)
	if err != nil {
		return 0, err
	}
	if !votebits.IsValid(agendas, bits) {
		return 0, votebits.InvalidVoteBitsError(bits)
	}
	return bits, nil
}

// push sets voteBits on all configured pools concurrently and waits for
// every pool to finish.
func (s *Synchronizer) push(ctx context.Context, voteBits uint16) (*Result, error) {
	pools := s.pools.All()
	res := &Result{
		VoteBits: voteBits,
		Pools:    make([]PoolResult, len(pools)),
	}

	var wg sync.WaitGroup
	for i, p := range pools {
		wg.Add(1)
		go s.pushPool(ctx, &wg, p, voteBits, &res.Pools[i])
	}
	wg.Wait()

	var failures []PoolResult
	for _, pr := range res.Pools {
		switch pr.Outcome {
		case Updated:
			log.Infof("Vote bits %#04x set on %s (%v)", voteBits, pr.Host,
				pr.Duration)
		case Skipped:
			log.Debugf("Skipped %s: API v%d has no vote bits", pr.Host,
				pr.Version)
		case Failed:
			log.Warnf("Failed to set vote bits on %s: %v", pr.Host, pr.Err)
			failures = append(failures, pr)
		}
	}
	if len(failures) != 0 {
		return res, &SyncError{Failures: failures}
	}
	return res, nil
}

func (s *Synchronizer) pushPool(ctx context.Context, wg *sync.WaitGroup, p *selection.PoolBound, voteBits uint16, pr *PoolResult) {
	start := time.Now()
	pr.Host = p.Host()

	defer func() {
		pr.Duration = time.Since(start)
		wg.Done()
	}()

	version, err := p.Pool.BestVersion()
	if err != nil {
		pr.Outcome, pr.Err = Failed, err
		return
	}
	pr.Version = version
	if !poolapi.SupportsVoteBits(version) {
		pr.Outcome = Skipped
		return
	}
	client, err := poolapi.NewClient(version, p.Pool.URL, p.APIToken, s.httpClient)
	if err != nil {
		pr.Outcome, pr.Err = Failed, err
		return
	}
	if err := client.SetVoteBits(ctx, voteBits); err != nil {
		pr.Outcome, pr.Err = Failed, err
		return
	}
	pr.Outcome = Updated
}
