// Copyright (c) 2019 The Decred developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

// Package pooldir fetches the public stake pool directory and narrows it to
// the pools this client can use.
package pooldir

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"sort"
	"strings"

	"github.com/decred/dcrd/chaincfg/v2"
	"github.com/decred/dcrpoolclient/poolapi"
	"golang.org/x/net/context/ctxhttp"
)

// DefaultURL is the directory of stake pools published by the Decred
// project.
const DefaultURL = "https://api.decred.org/?c=gsd"

// maxDirectorySize bounds how much of the directory response is read.
const maxDirectorySize = 4 << 20

// StakePoolInfo is a directory entry describing one pool.
type StakePoolInfo struct {
	APIEnabled           bool    `json:"APIEnabled"`
	APIVersionsSupported []int   `json:"APIVersionsSupported"`
	Network              string  `json:"Network"`
	URL                  string  `json:"URL"`
	Launched             int64   `json:"Launched"`
	LastUpdated          int64   `json:"LastUpdated"`
	Immature             int     `json:"Immature"`
	Live                 int     `json:"Live"`
	Voted                int     `json:"Voted"`
	Missed               int     `json:"Missed"`
	PoolFees             float64 `json:"PoolFees"`
	ProportionLive       float64 `json:"ProportionLive"`
	ProportionMissed     float64 `json:"ProportionMissed"`
	UserCount            int     `json:"UserCount"`
	UserCountActive      int     `json:"UserCountActive"`
	Version              string  `json:"Version"`
}

// Host returns the host of the pool's URL, or the empty string if the URL
// does not parse.
func (p *StakePoolInfo) Host() string {
	u, err := url.Parse(p.URL)
	if err != nil {
		return ""
	}
	return u.Host
}

// Versions returns the advertised API versions.  Negative versions are
// dropped.
func (p *StakePoolInfo) Versions() []uint32 {
	versions := make([]uint32, 0, len(p.APIVersionsSupported))
	for _, v := range p.APIVersionsSupported {
		if v >= 0 {
			versions = append(versions, uint32(v))
		}
	}
	return versions
}

// BestVersion returns the highest advertised API version the client
// implements.
func (p *StakePoolInfo) BestVersion() (uint32, error) {
	return poolapi.BestSupportedVersion(p.Versions())
}

// Directory maps a pool's directory key to its entry.
type Directory map[string]*StakePoolInfo

// Fetch downloads the stake pool directory.  Errors are returned to the
// caller; there is no retry or caching.
func Fetch(ctx context.Context, httpClient *http.Client, directoryURL string) (Directory, error) {
	if httpClient == nil {
		httpClient = http.DefaultClient
	}
	resp, err := ctxhttp.Get(ctx, httpClient, directoryURL)
	if err != nil {
		return nil, fmt.Errorf("fetch pool directory: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("fetch pool directory: unexpected HTTP status %s",
			resp.Status)
	}

	var dir Directory
	dec := json.NewDecoder(io.LimitReader(resp.Body, maxDirectorySize))
	if err := dec.Decode(&dir); err != nil {
		return nil, fmt.Errorf("decode pool directory: %w", err)
	}
	log.Debugf("Fetched %d pools from %s", len(dir), directoryURL)
	return dir, nil
}

// Usable reports whether the client can use the pool on network: the API
// is enabled, the URL is HTTPS, the network matches and at least one
// advertised API version is supported.
func Usable(p *StakePoolInfo, network string) bool {
	if p == nil || !p.APIEnabled || p.Network != network {
		return false
	}
	u, err := url.Parse(p.URL)
	if err != nil || !strings.EqualFold(u.Scheme, "https") || u.Host == "" {
		return false
	}
	_, err = p.BestVersion()
	return err == nil
}

// Filter returns the pools of dir usable on network, ordered by host.
func Filter(dir Directory, network string) []StakePoolInfo {
	pools := make([]StakePoolInfo, 0, len(dir))
	for key, p := range dir {
		if !Usable(p, network) {
			log.Tracef("Ignoring unusable pool %s", key)
			continue
		}
		pools = append(pools, *p)
	}
	sort.Slice(pools, func(i, j int) bool {
		hi, hj := pools[i].Host(), pools[j].Host()
		if hi != hj {
			return hi < hj
		}
		return pools[i].URL < pools[j].URL
	})
	return pools
}

// Find returns the pool with the given host.
func Find(pools []StakePoolInfo, host string) (*StakePoolInfo, bool) {
	for i := range pools {
		if strings.EqualFold(pools[i].Host(), host) {
			return &pools[i], true
		}
	}
	return nil, false
}

// NetworkName returns the directory's name for the network of params.  The
// directory names every test network "testnet".
func NetworkName(params *chaincfg.Params) string {
	if strings.HasPrefix(params.Name, "testnet") {
		return "testnet"
	}
	return params.Name
}
