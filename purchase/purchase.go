// Copyright (c) 2019 The Decred developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

// Package purchase validates ticket purchase requests and carries them out
// against the wallet, resolving the voting and pool fee addresses from the
// active stake pool selection.
package purchase

import (
	"bytes"
	"context"
	"encoding/hex"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/decred/dcrd/chaincfg/chainhash"
	"github.com/decred/dcrd/chaincfg/v2"
	"github.com/decred/dcrd/dcrutil/v2"
	"github.com/decred/dcrpoolclient/poolapi"
	"github.com/decred/dcrpoolclient/selection"
	"github.com/decred/dcrpoolclient/walletrpc"
)

const (
	// MinFeePerKB and MaxFeePerKB bound the split and ticket fees.
	MinFeePerKB dcrutil.Amount = 1e5
	MaxFeePerKB dcrutil.Amount = 1e8 - 1

	// MinExpiry is the fewest blocks an unmined ticket may stay valid.
	MinExpiry = 2

	// DefaultExpiry is the expiry used when none is configured.
	DefaultExpiry = 16

	// requiredConfs is the confirmations required of spent outputs.
	requiredConfs = 2

	// minManualFee is the smallest manually entered pool fee in
	// hundredths of a percent.
	minManualFee = 1
)

// Wallet performs the wallet side of a purchase.
type Wallet interface {
	ImportScript(ctx context.Context, script []byte, passphrase string) error
	PurchaseTickets(ctx context.Context, req *walletrpc.PurchaseTicketsRequest, passphrase string) ([]*chainhash.Hash, error)
	TicketPrice(ctx context.Context) (dcrutil.Amount, error)
	BestBlockHeight(ctx context.Context) (int64, error)
}

// Params are the operator's inputs to a purchase.
type Params struct {
	Account    string
	Selection  selection.Selection
	NumTickets int
	Expiry     int64
	TicketFee  dcrutil.Amount
	SplitFee   dcrutil.Amount

	// VotingAddress is required for None and Manual.
	VotingAddress string

	// PoolFeeAddress and PoolFees are required for Manual.  PoolFees is
	// a percentage with at most two decimals, e.g. "7.5".
	PoolFeeAddress string
	PoolFees       string
}

// FieldError describes a purchase input that fails validation.
type FieldError struct {
	Field  string
	Reason string
}

func (e *FieldError) Error() string {
	return e.Field + ": " + e.Reason
}

// ValidationErrors lists every failing purchase input.
type ValidationErrors []*FieldError

func (e ValidationErrors) Error() string {
	msgs := make([]string, len(e))
	for i, fe := range e {
		msgs[i] = fe.Error()
	}
	return "invalid purchase: " + strings.Join(msgs, "; ")
}

// Has reports whether field failed validation.
func (e ValidationErrors) Has(field string) bool {
	for _, fe := range e {
		if fe.Field == field {
			return true
		}
	}
	return false
}

// Check validates params without side effects.  A non-nil error is always
// ValidationErrors.
func Check(params *Params, chainParams *chaincfg.Params) error {
	var errs ValidationErrors
	fail := func(field, format string, args ...interface{}) {
		errs = append(errs, &FieldError{field, fmt.Sprintf(format, args...)})
	}

	if params.Account == "" {
		fail("account", "no account selected")
	}
	if params.NumTickets < 1 {
		fail("numtickets", "must purchase at least one ticket")
	}
	if params.Expiry < MinExpiry {
		fail("expiry", "must be a minimum of %d blocks", MinExpiry)
	}
	checkFee := func(field string, fee dcrutil.Amount) {
		if fee < MinFeePerKB || fee > MaxFeePerKB {
			fail(field, "%v is outside of %v to %v per kB", fee,
				MinFeePerKB, MaxFeePerKB)
		}
	}
	checkFee("ticketfee", params.TicketFee)
	checkFee("splitfee", params.SplitFee)

	checkAddress := func(field, addr string) {
		if addr == "" {
			fail(field, "address required")
			return
		}
		if _, err := dcrutil.DecodeAddress(addr, chainParams); err != nil {
			fail(field, "invalid address: %v", err)
		}
	}

	req := selection.RequirementsOf(params.Selection)
	if req.VotingAddress {
		checkAddress("votingaddress", params.VotingAddress)
	}
	if req.ManualFees {
		checkAddress("poolfeeaddress", params.PoolFeeAddress)
		fee, err := poolapi.ParseFeePercent(params.PoolFees)
		switch {
		case err != nil:
			fail("poolfees", "%v", err)
		case fee < minManualFee:
			fail("poolfees", "must be at least %s%%",
				poolapi.FormatFeePercent(minManualFee))
		}
	}

	if len(errs) != 0 {
		return errs
	}
	return nil
}

// Purchaser purchases tickets with a wallet.
type Purchaser struct {
	wallet      Wallet
	chainParams *chaincfg.Params
	httpClient  *http.Client
}

// New returns a Purchaser.  httpClient is used for pool requests; nil uses
// http.DefaultClient.
func New(wallet Wallet, chainParams *chaincfg.Params, httpClient *http.Client) *Purchaser {
	return &Purchaser{
		wallet:      wallet,
		chainParams: chainParams,
		httpClient:  httpClient,
	}
}

// Check validates params for the purchaser's network.
func (p *Purchaser) Check(params *Params) error {
	return Check(params, p.chainParams)
}

// addresses are the resolved voting and pool fee destinations.
type addresses struct {
	voting      dcrutil.Address
	poolFee     dcrutil.Address
	feeFraction float64
}

// Purchase validates params, resolves the voting and pool fee addresses and
// purchases the tickets.  The ticket hashes are returned in creation order.
func (p *Purchaser) Purchase(ctx context.Context, params *Params, passphrase string) ([]*chainhash.Hash, error) {
	if err := p.Check(params); err != nil {
		return nil, err
	}

	var addrs *addresses
	var err error
	switch sel := params.Selection.(type) {
	case selection.None:
		addrs, err = p.manualAddresses(params, false)
	case selection.Manual:
		addrs, err = p.manualAddresses(params, true)
	case *selection.PoolBound:
		addrs, err = p.poolAddresses(ctx, sel, passphrase)
	default:
		panic(fmt.Sprintf("unknown selection %T", sel))
	}
	if err != nil {
		return nil, err
	}

	price, err := p.wallet.TicketPrice(ctx)
	if err != nil {
		return nil, err
	}
	height, err := p.wallet.BestBlockHeight(ctx)
	if err != nil {
		return nil, err
	}

	req := &walletrpc.PurchaseTicketsRequest{
		Account:         params.Account,
		SpendLimit:      price,
		MinConf:         requiredConfs,
		VotingAddress:   addrs.voting,
		NumTickets:      params.NumTickets,
		PoolAddress:     addrs.poolFee,
		PoolFeeFraction: addrs.feeFraction,
		ExpiryHeight:    height + params.Expiry,
		SplitFee:        params.SplitFee,
		TicketFee:       params.TicketFee,
	}
	log.Infof("Purchasing %d tickets at %v voted by %s (%s), expiring at "+
		"height %d", req.NumTickets, price, req.VotingAddress,
		selection.Name(params.Selection), req.ExpiryHeight)
	return p.wallet.PurchaseTickets(ctx, req, passphrase)
}

// manualAddresses decodes the operator's addresses.  Params are already
// checked.
func (p *Purchaser) manualAddresses(params *Params, poolFees bool) (*addresses, error) {
	voting, err := dcrutil.DecodeAddress(params.VotingAddress, p.chainParams)
	if err != nil {
		return nil, err
	}
	addrs := &addresses{voting: voting}
	if !poolFees {
		return addrs, nil
	}
	addrs.poolFee, err = dcrutil.DecodeAddress(params.PoolFeeAddress, p.chainParams)
	if err != nil {
		return nil, err
	}
	fee, err := poolapi.ParseFeePercent(params.PoolFees)
	if err != nil {
		return nil, err
	}
	addrs.feeFraction = poolapi.FeeFraction(fee)
	return addrs, nil
}

// poolAddresses fetches the pool's purchase info and imports the voting
// script so the wallet can track the tickets.
func (p *Purchaser) poolAddresses(ctx context.Context, pool *selection.PoolBound, passphrase string) (*addresses, error) {
	version, err := pool.Pool.BestVersion()
	if err != nil {
		return nil, err
	}
	client, err := poolapi.NewClient(version, pool.Pool.URL, pool.APIToken, p.httpClient)
	if err != nil {
		return nil, err
	}
	info, err := client.PurchaseInfo(ctx)
	if err != nil {
		return nil, err
	}

	decode := func(field, s string) (dcrutil.Address, error) {
		addr, err := dcrutil.DecodeAddress(s, p.chainParams)
		if err != nil {
			return nil, &poolapi.InvalidDataError{Field: field, Err: err}
		}
		return addr, nil
	}
	voting, err := decode("TicketAddress", info.VotingAddress)
	if err != nil {
		return nil, err
	}
	poolFee, err := decode("PoolAddress", info.FeeAddress)
	if err != nil {
		return nil, err
	}
	script, err := hex.DecodeString(info.RedeemScriptHex)
	if err != nil {
		return nil, &poolapi.InvalidDataError{Field: "Script", Err: err}
	}

	scriptAddr, err := dcrutil.NewAddressScriptHash(script, p.chainParams)
	if err == nil && scriptAddr.Address() != voting.Address() {
		log.Warnf("%s: script address %s does not match ticket address %s",
			pool.Host(), scriptAddr, voting)
	}
	if len(pool.MultisigVoteScript) != 0 {
		if !bytes.Equal(pool.MultisigVoteScript, script) {
			log.Warnf("%s: voting script differs from the script saved "+
				"when the pool was added", pool.Host())
		}
		script = pool.MultisigVoteScript
	}

	err = p.wallet.ImportScript(ctx, script, passphrase)
	switch {
	case errors.Is(err, walletrpc.ErrScriptExists):
		log.Debugf("%s: voting script already imported", pool.Host())
	case err != nil:
		return nil, fmt.Errorf("import voting script: %w", err)
	}

	return &addresses{
		voting:      voting,
		poolFee:     poolFee,
		feeFraction: info.FeeFraction,
	}, nil
}
