// Copyright (c) 2019 The Decred developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

// dcrpoolclient registers a dcrwallet with stake pools, keeps the vote bits
// the pools use in line with the wallet's vote choices, and purchases tickets
// solo, through a manually entered pool, or through a configured pool.
//
// Usage:
//   dcrpoolclient [options] <command> [arguments]
//
// Commands:
//   listpools                   list the usable stake pools of the directory
//   pools                       show the configured stake pools
//   addpool <host> <apitoken>   register with a stake pool
//   poolstats <host>            show stake pool statistics
//   agendas                     show the agendas and the wallet's vote choices
//   setvotechoice <agenda> <choice>
//                               set a vote choice on the wallet and all pools
//   syncvotebits                push the wallet's vote bits to all pools
//   purchasetickets             purchase tickets using the purchase options
//
// The API token of a pool is shown on the pool's settings page after signing
// up.  Configured pools are stored in pools.db in the network's data
// directory; set --dbdriver=mysql and --dbdsn to use a MySQL database
// instead.
//
// Purchase tickets through the only configured pool:
//   dcrpoolclient --testnet purchasetickets --numtickets=2
//
// Purchase tickets through a pool that has no API:
//   dcrpoolclient purchasetickets --pool=manual --votingaddress=<addr> \
//     --poolfeeaddress=<addr> --poolfees=7.5
package main
