// Copyright (c) 2019 The Decred developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

// Package votebits models consensus agendas and converts between a wallet's
// per-agenda vote choices and the 16-bit vote bits carried by ticket votes.
package votebits

import (
	"fmt"
	"sort"
	"time"

	"github.com/decred/dcrd/chaincfg/v2"
	"github.com/decred/dcrd/dcrutil/v2"
)

// Choice is one of the mutually exclusive options of an agenda.
type Choice struct {
	ID          string
	Description string
	Bits        uint16
	IsAbstain   bool
	IsNo        bool
}

// Agenda is a consensus change that may be voted on.  Mask covers the bits
// owned by the agenda and every choice's Bits is a subset of it.
type Agenda struct {
	ID          string
	Description string
	Mask        uint16
	Choices     []Choice
	StartTime   time.Time
	ExpireTime  time.Time
}

// Choice returns the choice with the given id.
func (a *Agenda) Choice(id string) (*Choice, bool) {
	for i := range a.Choices {
		if a.Choices[i].ID == id {
			return &a.Choices[i], true
		}
	}
	return nil, false
}

// DefaultChoice returns the abstaining choice, used when the wallet has no
// recorded preference.
func (a *Agenda) DefaultChoice() *Choice {
	for i := range a.Choices {
		if a.Choices[i].IsAbstain {
			return &a.Choices[i]
		}
	}
	return nil
}

// ChoicePair records the choice made for one agenda.
type ChoicePair struct {
	AgendaID string
	ChoiceID string
}

// UnknownAgendaError is returned when a choice references an agenda that is
// not part of the active set.
type UnknownAgendaError string

func (e UnknownAgendaError) Error() string {
	return fmt.Sprintf("unknown agenda %q", string(e))
}

// UnknownChoiceError is returned when a choice id is not defined by its
// agenda.
type UnknownChoiceError struct {
	AgendaID string
	ChoiceID string
}

func (e *UnknownChoiceError) Error() string {
	return fmt.Sprintf("agenda %q has no choice %q", e.AgendaID, e.ChoiceID)
}

// InvalidVoteBitsError is returned when vote bits do not select a defined
// choice for every agenda.
type InvalidVoteBitsError uint16

func (e InvalidVoteBitsError) Error() string {
	return fmt.Sprintf("invalid vote bits %#04x", uint16(e))
}

// FromDeployments converts consensus deployments to agendas, preserving
// order.
func FromDeployments(deployments []chaincfg.ConsensusDeployment) []Agenda {
	agendas := make([]Agenda, 0, len(deployments))
	for i := range deployments {
		d := &deployments[i]
		a := Agenda{
			ID:          d.Vote.Id,
			Description: d.Vote.Description,
			Mask:        d.Vote.Mask,
			Choices:     make([]Choice, 0, len(d.Vote.Choices)),
			StartTime:   time.Unix(int64(d.StartTime), 0).UTC(),
			ExpireTime:  time.Unix(int64(d.ExpireTime), 0).UTC(),
		}
		for _, c := range d.Vote.Choices {
			a.Choices = append(a.Choices, Choice{
				ID:          c.Id,
				Description: c.Description,
				Bits:        c.Bits,
				IsAbstain:   c.IsAbstain,
				IsNo:        c.IsNo,
			})
		}
		agendas = append(agendas, a)
	}
	return agendas
}

// ForVersion returns the agendas of params for the given vote version.
func ForVersion(params *chaincfg.Params, voteVersion uint32) []Agenda {
	return FromDeployments(params.Deployments[voteVersion])
}

// LatestVersion returns the highest vote version params defines agendas for.
func LatestVersion(params *chaincfg.Params) uint32 {
	var latest uint32
	for v := range params.Deployments {
		if v > latest {
			latest = v
		}
	}
	return latest
}

func find(agendas []Agenda, id string) *Agenda {
	for i := range agendas {
		if agendas[i].ID == id {
			return &agendas[i]
		}
	}
	return nil
}

// Lookup returns the agenda and choice for pair.
func Lookup(agendas []Agenda, pair ChoicePair) (*Agenda, *Choice, error) {
	a := find(agendas, pair.AgendaID)
	if a == nil {
		return nil, nil, UnknownAgendaError(pair.AgendaID)
	}
	c, ok := a.Choice(pair.ChoiceID)
	if !ok {
		return nil, nil, &UnknownChoiceError{AgendaID: pair.AgendaID,
			ChoiceID: pair.ChoiceID}
	}
	return a, c, nil
}

// Calc returns the vote bits for the recorded choices.  The block valid bit
// is always set and agendas without a recorded choice contribute nothing.
// The result does not depend on the order of agendas or pairs.
func Calc(agendas []Agenda, pairs []ChoicePair) (uint16, error) {
	voteBits := uint16(dcrutil.BlockValid)
	for _, p := range pairs {
		_, c, err := Lookup(agendas, p)
		if err != nil {
			return 0, err
		}
		voteBits |= c.Bits
	}
	return voteBits, nil
}

// IsValid reports whether voteBits has the block valid bit set, selects a
// defined choice for every agenda and sets no bits outside the agendas'
// choices.
func IsValid(agendas []Agenda, voteBits uint16) bool {
	if !dcrutil.IsFlagSet16(voteBits, dcrutil.BlockValid) {
		return false
	}

	usedBits := uint16(dcrutil.BlockValid)
	for i := range agendas {
		a := &agendas[i]
		masked := voteBits & a.Mask
		var valid bool
		for _, c := range a.Choices {
			usedBits |= c.Bits
			if masked == c.Bits {
				valid = true
			}
		}
		if !valid {
			return false
		}
	}

	return voteBits&^usedBits == 0
}

// ChoicesFor decodes voteBits into the choice selected for each agenda.
// Agendas whose masked bits match no choice are left out.
func ChoicesFor(agendas []Agenda, voteBits uint16) []ChoicePair {
	pairs := make([]ChoicePair, 0, len(agendas))
	for i := range agendas {
		a := &agendas[i]
		masked := voteBits & a.Mask
		for _, c := range a.Choices {
			if masked == c.Bits {
				pairs = append(pairs, ChoicePair{AgendaID: a.ID, ChoiceID: c.ID})
				break
			}
		}
	}
	return pairs
}

// Merge returns pairs with the choice for update.AgendaID replaced or
// appended, sorted by agenda id.
func Merge(pairs []ChoicePair, update ChoicePair) []ChoicePair {
	merged := make([]ChoicePair, 0, len(pairs)+1)
	replaced := false
	for _, p := range pairs {
		if p.AgendaID == update.AgendaID {
			p = update
			replaced = true
		}
		merged = append(merged, p)
	}
	if !replaced {
		merged = append(merged, update)
	}
	sort.Slice(merged, func(i, j int) bool {
		return merged[i].AgendaID < merged[j].AgendaID
	})
	return merged
}
