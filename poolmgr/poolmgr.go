// Copyright (c) 2019 The Decred developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

// Package poolmgr registers the wallet with stake pools and restores the
// configured pool set from the database.
package poolmgr

import (
	"context"
	"encoding/hex"
	"errors"
	"fmt"
	"net/http"

	"github.com/decred/dcrpoolclient/models"
	"github.com/decred/dcrpoolclient/poolapi"
	"github.com/decred/dcrpoolclient/pooldir"
	"github.com/decred/dcrpoolclient/selection"
	"github.com/decred/dcrpoolclient/votesync"
	"github.com/dgrijalva/jwt-go"
	"google.golang.org/grpc/codes"
)

// ErrInvalidToken is returned for API tokens that are not JWTs.
var ErrInvalidToken = errors.New("malformed API token")

// Wallet provides the public key address registered with a pool.
type Wallet interface {
	PubKeyAddress(ctx context.Context, account string) (string, error)
}

// Store persists configured pools.
type Store interface {
	InsertStakePool(pool *models.StakePool) error
	GetStakePoolByHost(host string) (*models.StakePool, error)
	GetStakePools() ([]models.StakePool, error)
}

// Syncer pushes the wallet's vote bits to the configured pools.
type Syncer interface {
	Sync(ctx context.Context) (*votesync.Result, error)
}

// Config configures a Manager.  Syncer and HTTPClient may be nil.
type Config struct {
	Wallet     Wallet
	Store      Store
	Pools      *selection.ConfiguredPools
	Syncer     Syncer
	HTTPClient *http.Client

	// Account provides the address registered with new pools.
	Account string
}

// Manager maintains the configured pool set.
type Manager struct {
	cfg Config
}

// New returns a Manager.
func New(cfg *Config) *Manager {
	return &Manager{cfg: *cfg}
}

// checkToken rejects tokens that do not parse as a JWT.  The signature is
// only known to the pool.
func checkToken(apiToken string) error {
	_, _, err := new(jwt.Parser).ParseUnverified(apiToken, jwt.MapClaims{})
	if err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidToken, err)
	}
	return nil
}

// AddPool registers the wallet with the pool using apiToken, stores the pool
// and adds it to the configured set.  The wallet's vote bits are then
// pushed to all configured pools; a failure to do so is returned along with
// the added pool.
func (m *Manager) AddPool(ctx context.Context, info pooldir.StakePoolInfo, apiToken string) (*selection.PoolBound, error) {
	host := info.Host()
	if _, ok := m.cfg.Pools.Lookup(host); ok {
		return nil, fmt.Errorf("%s: %w", host, selection.ErrDuplicatePool)
	}
	// Stored pools that were not restored are refused as well.
	_, err := m.cfg.Store.GetStakePoolByHost(host)
	switch {
	case err == nil:
		return nil, fmt.Errorf("%s: %w (already stored)", host,
			selection.ErrDuplicatePool)
	case !errors.Is(err, models.ErrNoStakePool):
		return nil, err
	}
	if err := checkToken(apiToken); err != nil {
		return nil, err
	}
	version, err := info.BestVersion()
	if err != nil {
		return nil, fmt.Errorf("%s: %w", host, err)
	}
	client, err := poolapi.NewClient(version, info.URL, apiToken, m.cfg.HTTPClient)
	if err != nil {
		return nil, err
	}

	pubKeyAddr, err := m.cfg.Wallet.PubKeyAddress(ctx, m.cfg.Account)
	if err != nil {
		return nil, err
	}
	err = client.CreateVotingAddress(ctx, pubKeyAddr)
	switch {
	case poolapi.IsRejectedWith(err, codes.AlreadyExists):
		log.Infof("%s: address already registered", host)
	case err != nil:
		return nil, err
	default:
		log.Infof("%s: registered %s", host, pubKeyAddr)
	}

	purchaseInfo, err := client.PurchaseInfo(ctx)
	if err != nil {
		return nil, err
	}
	script, err := hex.DecodeString(purchaseInfo.RedeemScriptHex)
	if err != nil {
		return nil, &poolapi.InvalidDataError{Field: "Script", Err: err}
	}

	pool := &selection.PoolBound{
		Pool:               info,
		APIToken:           apiToken,
		MultisigVoteScript: script,
	}
	if err := m.cfg.Pools.Add(pool); err != nil {
		return nil, err
	}
	err = m.cfg.Store.InsertStakePool(&models.StakePool{
		Host:               host,
		APIKey:             apiToken,
		MultisigVoteScript: purchaseInfo.RedeemScriptHex,
	})
	if err != nil {
		m.cfg.Pools.Remove(host)
		return nil, err
	}
	log.Infof("Added stake pool %s (API v%d)", host, version)

	if m.cfg.Syncer == nil {
		return pool, nil
	}
	if _, err := m.cfg.Syncer.Sync(ctx); err != nil {
		return pool, err
	}
	return pool, nil
}

// Restore adds the stored pools that are still usable according to the
// filtered directory pools to the configured set.  It returns how many
// pools were restored.
func (m *Manager) Restore(pools []pooldir.StakePoolInfo) (int, error) {
	stored, err := m.cfg.Store.GetStakePools()
	if err != nil {
		return 0, err
	}
	var n int
	for i := range stored {
		s := &stored[i]
		info, ok := pooldir.Find(pools, s.Host)
		if !ok {
			log.Warnf("Stake pool %s is no longer listed; ignoring it", s.Host)
			continue
		}
		script, err := hex.DecodeString(s.MultisigVoteScript)
		if err != nil {
			log.Errorf("Stored voting script of %s is invalid: %v", s.Host, err)
			continue
		}
		err = m.cfg.Pools.Add(&selection.PoolBound{
			Pool:               *info,
			APIToken:           s.APIKey,
			MultisigVoteScript: script,
		})
		if errors.Is(err, selection.ErrDuplicatePool) {
			continue
		}
		if err != nil {
			return n, err
		}
		n++
	}
	log.Debugf("Restored %d of %d stored stake pools", n, len(stored))
	return n, nil
}
