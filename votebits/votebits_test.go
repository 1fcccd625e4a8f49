// Copyright (c) 2019 The Decred developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package votebits

import (
	"errors"
	"reflect"
	"testing"
	"time"

	"github.com/decred/dcrd/chaincfg/v2"
)

const (
	voteIDFixLNSeqLocks     = "fixlnseqlocks"
	voteIDHeaderCommitments = "headercommitments"
)

var tDeployments = map[uint32][]chaincfg.ConsensusDeployment{
	7: {{
		Vote: chaincfg.Vote{
			Id:          voteIDFixLNSeqLocks,
			Description: "Modify sequence lock handling as defined in DCP0004",
			Mask:        0x0006, // Bits 1 and 2
			Choices: []chaincfg.Choice{{
				Id:          "abstain",
				Description: "abstain voting for change",
				Bits:        0x0000,
				IsAbstain:   true,
			}, {
				Id:          "no",
				Description: "keep the existing consensus rules",
				Bits:        0x0002, // Bit 1
				IsNo:        true,
			}, {
				Id:          "yes",
				Description: "change to the new consensus rules",
				Bits:        0x0004, // Bit 2
			}},
		},
		StartTime:  1548633600, // Jan 28th, 2019
		ExpireTime: 1580169600, // Jan 28th, 2020
	}, {
		Vote: chaincfg.Vote{
			Id:          voteIDHeaderCommitments,
			Description: "Enable header commitments as defined in DCP0005",
			Mask:        0x0018, // Bits 3 and 4
			Choices: []chaincfg.Choice{{
				Id:          "abstain",
				Description: "abstain voting for change",
				Bits:        0x0000,
				IsAbstain:   true,
			}, {
				Id:          "no",
				Description: "keep the existing consensus rules",
				Bits:        0x0008, // Bit 3
				IsNo:        true,
			}, {
				Id:          "yes",
				Description: "change to the new consensus rules",
				Bits:        0x0010, // Bit 4
			}},
		},
		StartTime:  1567641600, // Sep 5th, 2019
		ExpireTime: 1599264000, // Sep 5th, 2020
	}},
}

func TestFromDeployments(t *testing.T) {
	agendas := FromDeployments(tDeployments[7])
	if len(agendas) != 2 {
		t.Fatalf("expected 2 agendas, got %d", len(agendas))
	}
	a := agendas[0]
	if a.ID != voteIDFixLNSeqLocks || a.Mask != 0x0006 || len(a.Choices) != 3 {
		t.Fatalf("unexpected agenda %+v", a)
	}
	if !a.StartTime.Equal(time.Date(2019, 1, 28, 0, 0, 0, 0, time.UTC)) {
		t.Errorf("unexpected start time %v", a.StartTime)
	}
	if c := a.DefaultChoice(); c == nil || c.ID != "abstain" {
		t.Errorf("unexpected default choice %v", c)
	}
	if c, ok := a.Choice("no"); !ok || !c.IsNo || c.Bits != 0x0002 {
		t.Errorf("unexpected no choice %v", c)
	}

	params := &chaincfg.Params{Deployments: tDeployments}
	if got := ForVersion(params, 2); len(got) != 0 {
		t.Errorf("expected no agendas for missing version, got %v", got)
	}
	if v := LatestVersion(params); v != 7 {
		t.Errorf("expected latest vote version 7, got %d", v)
	}
}

func TestCalc(t *testing.T) {
	agendas := FromDeployments(tDeployments[7])
	tests := []struct {
		name    string
		pairs   []ChoicePair
		want    uint16
		wantErr interface{}
	}{{
		name: "no recorded choices",
		want: 0x0001,
	}, {
		name:  "abstain contributes nothing",
		pairs: []ChoicePair{{voteIDFixLNSeqLocks, "abstain"}},
		want:  0x0001,
	}, {
		name:  "single yes",
		pairs: []ChoicePair{{voteIDFixLNSeqLocks, "yes"}},
		want:  0x0005,
	}, {
		name: "both agendas",
		pairs: []ChoicePair{
			{voteIDFixLNSeqLocks, "no"},
			{voteIDHeaderCommitments, "yes"},
		},
		want: 0x0013,
	}, {
		name:    "unknown agenda",
		pairs:   []ChoicePair{{"lnfeatures", "yes"}},
		wantErr: new(UnknownAgendaError),
	}, {
		name:    "unknown choice",
		pairs:   []ChoicePair{{voteIDFixLNSeqLocks, "maybe"}},
		wantErr: new(*UnknownChoiceError),
	}}
	for _, test := range tests {
		got, err := Calc(agendas, test.pairs)
		if test.wantErr != nil {
			if err == nil || !errors.As(err, test.wantErr) {
				t.Fatalf("%s: expected error of type %T, got %v", test.name,
					test.wantErr, err)
			}
			continue
		}
		if err != nil {
			t.Fatalf("%s: unexpected error: %v", test.name, err)
		}
		if got != test.want {
			t.Fatalf("%s: expected vote bits %#04x, got %#04x", test.name,
				test.want, got)
		}
	}
}

func TestCalcOrderIndependent(t *testing.T) {
	agendas := FromDeployments(tDeployments[7])
	reversed := []Agenda{agendas[1], agendas[0]}
	choices := []string{"abstain", "no", "yes"}
	for _, c1 := range choices {
		for _, c2 := range choices {
			pairs := []ChoicePair{
				{voteIDFixLNSeqLocks, c1},
				{voteIDHeaderCommitments, c2},
			}
			swapped := []ChoicePair{pairs[1], pairs[0]}

			a, _ := agendas[0].Choice(c1)
			b, _ := agendas[1].Choice(c2)
			want := 0x0001 | a.Bits | b.Bits

			for _, ag := range [][]Agenda{agendas, reversed} {
				for _, p := range [][]ChoicePair{pairs, swapped} {
					got, err := Calc(ag, p)
					if err != nil {
						t.Fatal(err)
					}
					if got != want {
						t.Fatalf("%s/%s: expected %#04x, got %#04x",
							c1, c2, want, got)
					}
				}
			}
		}
	}
}

func TestIsValid(t *testing.T) {
	agendas := FromDeployments(tDeployments[7])
	tests := []struct {
		voteBits uint16
		want     bool
	}{
		{0x0001, true},
		{0x0003, true},
		{0x0005, true},
		{0x0015, true},
		{0x000b, true},
		{0x0000, false}, // block valid unset
		{0x0004, false},
		{0x0007, false}, // both choices of one agenda
		{0x0019, false},
		{0x0021, false}, // bit outside every agenda
		{0x8001, false},
	}
	for _, test := range tests {
		if got := IsValid(agendas, test.voteBits); got != test.want {
			t.Errorf("IsValid(%#04x) = %v, want %v", test.voteBits, got,
				test.want)
		}
	}

	if !IsValid(nil, 0x0001) {
		t.Error("expected block valid alone to be valid without agendas")
	}
	if IsValid(nil, 0x0003) {
		t.Error("expected stray bits to be invalid without agendas")
	}
}

func TestChoicesFor(t *testing.T) {
	agendas := FromDeployments(tDeployments[7])
	got := ChoicesFor(agendas, 0x0013)
	want := []ChoicePair{
		{voteIDFixLNSeqLocks, "no"},
		{voteIDHeaderCommitments, "yes"},
	}
	if !reflect.DeepEqual(got, want) {
		t.Fatalf("expected %v, got %v", want, got)
	}

	// Decoding then recalculating is lossless for valid bits.
	for _, vb := range []uint16{0x0001, 0x0003, 0x0005, 0x0009, 0x0015} {
		bits, err := Calc(agendas, ChoicesFor(agendas, vb))
		if err != nil {
			t.Fatal(err)
		}
		if bits != vb {
			t.Errorf("expected %#04x, got %#04x", vb, bits)
		}
	}
}

func TestMerge(t *testing.T) {
	pairs := []ChoicePair{{voteIDHeaderCommitments, "no"}}
	pairs = Merge(pairs, ChoicePair{voteIDFixLNSeqLocks, "yes"})
	pairs = Merge(pairs, ChoicePair{voteIDHeaderCommitments, "abstain"})
	want := []ChoicePair{
		{voteIDFixLNSeqLocks, "yes"},
		{voteIDHeaderCommitments, "abstain"},
	}
	if !reflect.DeepEqual(pairs, want) {
		t.Fatalf("expected %v, got %v", want, pairs)
	}
}
