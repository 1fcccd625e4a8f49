// Copyright (c) 2019 The Decred developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package walletrpc

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"math"
	"sync"

	"github.com/decred/dcrd/chaincfg/chainhash"
	"github.com/decred/dcrd/chaincfg/v2"
	"github.com/decred/dcrd/dcrutil/v2"
	"github.com/decred/dcrpoolclient/votebits"
)

// ErrScriptExists is returned by ImportScript when the wallet already holds
// the script.
var ErrScriptExists = errors.New("script already imported")

// unlockTimeout is how long the wallet stays unlocked if relocking fails.
const unlockTimeout = 60

// Wallet performs wallet operations that read or modify wallet state.  Each
// operation holds the wallet exclusively for its duration, including the
// unlocking and relocking that surround signing operations.
type Wallet struct {
	rpc    *RPC
	params *chaincfg.Params

	mu sync.Mutex
}

// NewWallet returns a Wallet making calls through caller.
func NewWallet(caller Caller, params *chaincfg.Params) *Wallet {
	return &Wallet{rpc: New(caller), params: params}
}

// exclusive runs f while holding the wallet.
func (w *Wallet) exclusive(f func() error) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	return f()
}

// unlocked runs f with the wallet unlocked by passphrase and locks it again
// afterwards.  An empty passphrase runs f on a wallet that is expected to be
// unlocked already.  Must be called from within exclusive.
func (w *Wallet) unlocked(ctx context.Context, passphrase string, f func() error) (err error) {
	if passphrase == "" {
		return f()
	}
	if err := w.rpc.WalletPassphrase(ctx, passphrase, unlockTimeout); err != nil {
		return fmt.Errorf("unlock wallet: %w", err)
	}
	defer func() {
		// Relock even when ctx is done.
		if lockErr := w.rpc.WalletLock(context.Background()); lockErr != nil {
			log.Errorf("Failed to relock wallet: %v", lockErr)
			if err == nil {
				err = fmt.Errorf("lock wallet: %w", lockErr)
			}
		}
	}()
	return f()
}

// ImportScript imports a redeem script without rescanning.  ErrScriptExists
// is returned when the wallet already holds the script.
func (w *Wallet) ImportScript(ctx context.Context, script []byte, passphrase string) error {
	return w.exclusive(func() error {
		scripts, err := w.rpc.ListScripts(ctx)
		if err != nil {
			return fmt.Errorf("listscripts: %w", err)
		}
		for _, s := range scripts {
			if bytes.Equal(s, script) {
				return ErrScriptExists
			}
		}
		return w.unlocked(ctx, passphrase, func() error {
			if err := w.rpc.ImportScriptRescanFrom(ctx, script, false, 0); err != nil {
				return fmt.Errorf("importscript: %w", err)
			}
			log.Infof("Imported redeem script %x", script)
			return nil
		})
	})
}

// PurchaseTicketsRequest describes a ticket purchase.
type PurchaseTicketsRequest struct {
	Account       string
	SpendLimit    dcrutil.Amount
	MinConf       int
	VotingAddress dcrutil.Address
	NumTickets    int
	// PoolAddress is nil when no pool fee is paid.
	PoolAddress dcrutil.Address
	// PoolFeeFraction is the pool fee as a ratio in [0, 1].
	PoolFeeFraction float64
	ExpiryHeight    int64
	SplitFee        dcrutil.Amount
	TicketFee       dcrutil.Amount
}

// PurchaseTickets purchases tickets and returns their hashes in creation
// order.  The split fee is applied before purchasing and the wallet's
// previous transaction fee is restored afterwards on every path.
func (w *Wallet) PurchaseTickets(ctx context.Context, req *PurchaseTicketsRequest, passphrase string) ([]*chainhash.Hash, error) {
	cmd := &PurchaseTicketCmd{
		FromAccount:   req.Account,
		SpendLimit:    req.SpendLimit,
		MinConf:       req.MinConf,
		TicketAddress: req.VotingAddress.Address(),
		NumTickets:    req.NumTickets,
		Expiry:        req.ExpiryHeight,
		TicketFee:     req.TicketFee,
	}
	if req.PoolAddress != nil {
		cmd.PoolAddress = req.PoolAddress.Address()
		// Percent with two decimals.
		cmd.PoolFees = math.Round(req.PoolFeeFraction*10000) / 100
	}

	var hashes []*chainhash.Hash
	err := w.exclusive(func() error {
		return w.unlocked(ctx, passphrase, func() error {
			txFee, err := w.rpc.GetWalletFee(ctx)
			if err != nil {
				return fmt.Errorf("getwalletfee: %w", err)
			}
			if err := w.rpc.SetTxFee(ctx, req.SplitFee); err != nil {
				return fmt.Errorf("settxfee: %w", err)
			}
			defer func() {
				// Purchased tickets are still returned when this fails.
				err := w.rpc.SetTxFee(context.Background(), txFee)
				if err != nil {
					log.Errorf("Failed to restore wallet tx fee %v: %v",
						txFee, err)
				}
			}()
			hashes, err = w.rpc.PurchaseTicket(ctx, cmd)
			if err != nil {
				return fmt.Errorf("purchaseticket: %w", err)
			}
			return nil
		})
	})
	if err != nil {
		return nil, err
	}
	log.Infof("Purchased %d tickets", len(hashes))
	return hashes, nil
}

// TicketPrice returns the current ticket price.
func (w *Wallet) TicketPrice(ctx context.Context) (dcrutil.Amount, error) {
	var price dcrutil.Amount
	err := w.exclusive(func() error {
		info, err := w.rpc.GetStakeInfo(ctx)
		if err != nil {
			return fmt.Errorf("getstakeinfo: %w", err)
		}
		price, err = dcrutil.NewAmount(info.Difficulty)
		return err
	})
	return price, err
}

// BestBlockHeight returns the height the wallet is synced to.
func (w *Wallet) BestBlockHeight(ctx context.Context) (int64, error) {
	var height int64
	err := w.exclusive(func() error {
		var err error
		_, height, err = w.rpc.GetBestBlock(ctx)
		if err != nil {
			return fmt.Errorf("getbestblock: %w", err)
		}
		return nil
	})
	return height, err
}

// VoteChoices returns the wallet's vote version and recorded choices.
func (w *Wallet) VoteChoices(ctx context.Context) (uint32, []votebits.ChoicePair, error) {
	var version uint32
	var pairs []votebits.ChoicePair
	err := w.exclusive(func() error {
		res, err := w.rpc.GetVoteChoices(ctx)
		if err != nil {
			return fmt.Errorf("getvotechoices: %w", err)
		}
		version = res.Version
		pairs = make([]votebits.ChoicePair, 0, len(res.Choices))
		for _, c := range res.Choices {
			pairs = append(pairs, votebits.ChoicePair{
				AgendaID: c.AgendaID,
				ChoiceID: c.ChoiceID,
			})
		}
		return nil
	})
	return version, pairs, err
}

// Agendas returns the agendas of the wallet's vote version.
func (w *Wallet) Agendas(ctx context.Context) ([]votebits.Agenda, error) {
	version, _, err := w.VoteChoices(ctx)
	if err != nil {
		return nil, err
	}
	return votebits.ForVersion(w.params, version), nil
}

// SetVoteChoices records choices in the wallet.
func (w *Wallet) SetVoteChoices(ctx context.Context, pairs []votebits.ChoicePair) error {
	return w.exclusive(func() error {
		for _, p := range pairs {
			if err := w.rpc.SetVoteChoice(ctx, p.AgendaID, p.ChoiceID); err != nil {
				return fmt.Errorf("setvotechoice %s=%s: %w", p.AgendaID,
					p.ChoiceID, err)
			}
		}
		return nil
	})
}

// PubKeyAddress returns the public key address of a new address of account,
// as required to register with a stake pool.
func (w *Wallet) PubKeyAddress(ctx context.Context, account string) (string, error) {
	var pubKeyAddr string
	err := w.exclusive(func() error {
		addrStr, err := w.rpc.GetNewAddress(ctx, account)
		if err != nil {
			return fmt.Errorf("getnewaddress: %w", err)
		}
		addr, err := dcrutil.DecodeAddress(addrStr, w.params)
		if err != nil {
			return fmt.Errorf("wallet returned invalid address %q: %v", addrStr, err)
		}
		res, err := w.rpc.ValidateAddress(ctx, addr)
		if err != nil {
			return fmt.Errorf("validateaddress: %w", err)
		}
		if !res.IsValid || !res.IsMine || res.PubKeyAddr == "" {
			return fmt.Errorf("wallet has no public key for address %s", addrStr)
		}
		pubKeyAddr = res.PubKeyAddr
		return nil
	})
	return pubKeyAddr, err
}
