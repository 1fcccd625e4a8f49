// Copyright (c) 2019 The Decred developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package walletrpc

import (
	"context"
	"encoding/hex"

	"github.com/decred/dcrd/chaincfg/chainhash"
	"github.com/decred/dcrd/dcrutil/v2"
	dcrdjson "github.com/decred/dcrd/rpc/jsonrpc/types/v2"
	walletjson "github.com/decred/dcrwallet/rpc/jsonrpc/types"
)

// Caller provides a client interface to perform JSON-RPC remote procedure calls.
type Caller interface {
	// Call performs the remote procedure call defined by method and
	// waits for a response or a broken client connection.
	// Args provides positional parameters for the call.
	// Res must be a pointer to a struct, slice, or map type to unmarshal
	// a result (if any), or nil if no result is needed.
	Call(ctx context.Context, method string, res interface{}, args ...interface{}) error
}

// RPC provides methods for calling dcrwallet JSON-RPCs without exposing the details
// of JSON encoding.
type RPC struct {
	Caller
}

// New creates a new RPC client instance from a caller.
func New(caller Caller) *RPC {
	return &RPC{caller}
}

// GetBestBlock returns the hash and height of the block in the longest (best)
// chain.
func (r *RPC) GetBestBlock(ctx context.Context) (*chainhash.Hash, int64, error) {
	res := &dcrdjson.GetBestBlockResult{}
	if err := r.Call(ctx, "getbestblock", res); err != nil {
		return nil, 0, err
	}
	hash, err := chainhash.NewHashFromStr(res.Hash)
	if err != nil {
		return nil, 0, err
	}
	return hash, res.Height, nil
}

// GetWalletFee returns the wallet's transaction fee per kilobyte.
func (r *RPC) GetWalletFee(ctx context.Context) (dcrutil.Amount, error) {
	var fee float64
	if err := r.Call(ctx, "getwalletfee", &fee); err != nil {
		return 0, err
	}
	return dcrutil.NewAmount(fee)
}

// GetNewAddress returns a new external address of account.
func (r *RPC) GetNewAddress(ctx context.Context, account string) (string, error) {
	var res string
	if err := r.Call(ctx, "getnewaddress", &res, account); err != nil {
		return "", err
	}
	return res, nil
}

// GetStakeInfo returns stake mining info from a given wallet. This includes
// various statistics on tickets it owns and votes it has produced.
func (r *RPC) GetStakeInfo(ctx context.Context) (*walletjson.GetStakeInfoResult, error) {
	res := &walletjson.GetStakeInfoResult{}
	if err := r.Call(ctx, "getstakeinfo", res); err != nil {
		return nil, err
	}
	return res, nil
}

// GetVoteChoices returns the wallet's vote version and its current choice
// for every agenda of that version.
func (r *RPC) GetVoteChoices(ctx context.Context) (*walletjson.GetVoteChoicesResult, error) {
	res := &walletjson.GetVoteChoicesResult{}
	if err := r.Call(ctx, "getvotechoices", res); err != nil {
		return nil, err
	}
	return res, nil
}

// ImportScriptRescanFrom attempts to import a byte code script into wallet. It
// also allows the user to choose whether or not they do a rescan, and which
// height to rescan from.
//
// NOTE: This function requires to the wallet to be unlocked.
func (r *RPC) ImportScriptRescanFrom(ctx context.Context, script []byte, rescan bool, scanFrom int) error {
	return r.Call(ctx, "importscript", nil, hex.EncodeToString(script), rescan, scanFrom)
}

// ListScripts returns a list of the currently known redeemscripts from the
// wallet as a slice of byte slices.
func (r *RPC) ListScripts(ctx context.Context) ([][]byte, error) {
	res := &walletjson.ListScriptsResult{}
	if err := r.Call(ctx, "listscripts", res); err != nil {
		return nil, err
	}
	redeemScripts := make([][]byte, len(res.Scripts))
	for i := range res.Scripts {
		rs := res.Scripts[i].RedeemScript
		rsB, err := hex.DecodeString(rs)
		if err != nil {
			return nil, err
		}
		redeemScripts[i] = rsB
	}
	return redeemScripts, nil
}

// PurchaseTicketCmd holds the positional parameters of purchaseticket.
type PurchaseTicketCmd struct {
	FromAccount   string
	SpendLimit    dcrutil.Amount
	MinConf       int
	TicketAddress string
	NumTickets    int
	PoolAddress   string
	// PoolFees is a percentage.
	PoolFees  float64
	Expiry    int64
	TicketFee dcrutil.Amount
}

// PurchaseTicket purchases tickets and returns their hashes in creation
// order.
//
// NOTE: This function requires to the wallet to be unlocked.
func (r *RPC) PurchaseTicket(ctx context.Context, cmd *PurchaseTicketCmd) ([]*chainhash.Hash, error) {
	var res []string
	err := r.Call(ctx, "purchaseticket", &res, cmd.FromAccount,
		cmd.SpendLimit.ToCoin(), cmd.MinConf, cmd.TicketAddress,
		cmd.NumTickets, cmd.PoolAddress, cmd.PoolFees, cmd.Expiry, "",
		cmd.TicketFee.ToCoin())
	if err != nil {
		return nil, err
	}
	hashes := make([]*chainhash.Hash, len(res))
	for i := range res {
		h, err := chainhash.NewHashFromStr(res[i])
		if err != nil {
			return nil, err
		}
		hashes[i] = h
	}
	return hashes, nil
}

// SetTxFee sets the per kB fee of regular transactions, including the
// split transaction funding tickets.
func (r *RPC) SetTxFee(ctx context.Context, fee dcrutil.Amount) error {
	return r.Call(ctx, "settxfee", nil, fee.ToCoin())
}

// SetVoteChoice records the choice for an agenda.
func (r *RPC) SetVoteChoice(ctx context.Context, agendaID, choiceID string) error {
	return r.Call(ctx, "setvotechoice", nil, agendaID, choiceID)
}

// ValidateAddress returns information about the given Decred address.
func (r *RPC) ValidateAddress(ctx context.Context, addr dcrutil.Address) (*walletjson.ValidateAddressWalletResult, error) {
	res := &walletjson.ValidateAddressWalletResult{}
	if err := r.Call(ctx, "validateaddress", res, addr.Address()); err != nil {
		return nil, err
	}
	return res, nil
}

// Version returns information about the server's JSON-RPC API versions.
func (r *RPC) Version(ctx context.Context) (map[string]dcrdjson.VersionResult, error) {
	res := make(map[string]dcrdjson.VersionResult)
	if err := r.Call(ctx, "version", &res); err != nil {
		return nil, err
	}
	return res, nil
}

// WalletLock locks the wallet.
func (r *RPC) WalletLock(ctx context.Context) error {
	return r.Call(ctx, "walletlock", nil)
}

// WalletPassphrase unlocks the wallet for timeout seconds.
func (r *RPC) WalletPassphrase(ctx context.Context, passphrase string, timeout int64) error {
	return r.Call(ctx, "walletpassphrase", nil, passphrase, timeout)
}
