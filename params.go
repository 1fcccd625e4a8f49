// Copyright (c) 2019 The Decred developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package main

import (
	"github.com/decred/dcrd/chaincfg/v2"
)

// params is used to group parameters for various networks such as the main
// network and test networks.
type params struct {
	*chaincfg.Params
	WalletRPCServerPort string
}

// mainNetParams contains parameters specific to the main network
// (wire.MainNet).
var mainNetParams = params{
	Params:              chaincfg.MainNetParams(),
	WalletRPCServerPort: "9110",
}

// testNet3Params contains parameters specific to the test network (version 3)
// (wire.TestNet3).
var testNet3Params = params{
	Params:              chaincfg.TestNet3Params(),
	WalletRPCServerPort: "19110",
}

// simNetParams contains parameters specific to the simulation test network
// (wire.SimNet).
var simNetParams = params{
	Params:              chaincfg.SimNetParams(),
	WalletRPCServerPort: "19557",
}

// activeNetParams is a pointer to the parameters specific to the currently
// active decred network.
var activeNetParams = &mainNetParams

// netName returns the name used when referring to a decred network.  TestNet3
// is stored under "testnet" in the data and log directories.
func netName(chainParams *params) string {
	switch chainParams.Net {
	case testNet3Params.Net:
		return "testnet"
	default:
		return chainParams.Name
	}
}
