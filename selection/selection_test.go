// Copyright (c) 2019 The Decred developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package selection

import (
	"errors"
	"testing"

	"github.com/decred/dcrpoolclient/pooldir"
)

func poolBound(url string) *PoolBound {
	return &PoolBound{
		Pool:     pooldir.StakePoolInfo{URL: url, APIVersionsSupported: []int{1, 2}},
		APIToken: "token",
	}
}

func TestRequirementsOf(t *testing.T) {
	tests := []struct {
		sel  Selection
		want Requirements
	}{
		{None{}, Requirements{VotingAddress: true}},
		{Manual{}, Requirements{VotingAddress: true, ManualFees: true}},
		{poolBound("https://a.example.org"), Requirements{}},
	}
	for _, test := range tests {
		if got := RequirementsOf(test.sel); got != test.want {
			t.Errorf("%s: expected %+v, got %+v", Name(test.sel), test.want, got)
		}
	}
}

func TestConfiguredPools(t *testing.T) {
	var pools ConfiguredPools
	if err := pools.Add(poolBound("https://b.example.org")); err != nil {
		t.Fatal(err)
	}
	if err := pools.Add(poolBound("https://a.example.org/")); err != nil {
		t.Fatal(err)
	}

	dup := poolBound("https://B.example.org/other")
	dup.APIToken = "replacement"
	err := pools.Add(dup)
	if !errors.Is(err, ErrDuplicatePool) {
		t.Fatalf("expected ErrDuplicatePool, got %v", err)
	}
	if p, _ := pools.Lookup("b.example.org"); p.APIToken != "token" {
		t.Fatal("duplicate add replaced the existing pool")
	}

	if err := pools.Add(poolBound("not a url")); err == nil {
		t.Fatal("expected error adding a pool without a host")
	}

	all := pools.All()
	if len(all) != 2 || pools.Len() != 2 {
		t.Fatalf("expected 2 pools, got %d", len(all))
	}
	if all[0].Host() != "b.example.org" || all[1].Host() != "a.example.org" {
		t.Fatalf("insertion order not kept: %v %v", all[0], all[1])
	}

	if !pools.Remove("B.example.org") || pools.Remove("b.example.org") {
		t.Fatal("unexpected Remove result")
	}
	if _, ok := pools.Lookup("b.example.org"); ok || pools.Len() != 1 {
		t.Fatal("pool not removed")
	}
}

func TestModel(t *testing.T) {
	var pools ConfiguredPools
	m := NewModel(&pools)
	if _, ok := m.Current().(None); !ok {
		t.Fatalf("expected initial selection None, got %T", m.Current())
	}
	if m.SelectDefault() {
		t.Fatal("selected a default without pools")
	}

	err := m.SelectPool("a.example.org")
	if !errors.Is(err, ErrPoolNotConfigured) {
		t.Fatalf("expected ErrPoolNotConfigured, got %v", err)
	}
	if _, ok := m.Current().(None); !ok {
		t.Fatal("failed selection changed the active selection")
	}

	m.SelectManual()
	if !m.Requirements().ManualFees {
		t.Fatal("manual selection must require fees")
	}

	pools.Add(poolBound("https://a.example.org"))
	if !m.SelectDefault() {
		t.Fatal("expected the only pool to be selected")
	}
	if p, ok := m.Current().(*PoolBound); !ok || p.Host() != "a.example.org" {
		t.Fatalf("unexpected selection %v", m.Current())
	}

	pools.Add(poolBound("https://b.example.org"))
	m.SelectNone()
	if m.SelectDefault() {
		t.Fatal("selected a default among several pools")
	}
	if err := m.SelectPool("b.example.org"); err != nil {
		t.Fatal(err)
	}
	if Name(m.Current()) != "b.example.org" {
		t.Fatalf("unexpected selection %s", Name(m.Current()))
	}
}
