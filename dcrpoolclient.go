// Copyright (c) 2019 The Decred developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package main

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"sort"
	"strings"
	"sync"

	"github.com/decred/dcrpoolclient/models"
	"github.com/decred/dcrpoolclient/poolapi"
	"github.com/decred/dcrpoolclient/pooldir"
	"github.com/decred/dcrpoolclient/poolmgr"
	"github.com/decred/dcrpoolclient/purchase"
	"github.com/decred/dcrpoolclient/selection"
	"github.com/decred/dcrpoolclient/signal"
	"github.com/decred/dcrpoolclient/votebits"
	"github.com/decred/dcrpoolclient/votesync"
	"github.com/decred/dcrpoolclient/walletrpc"
	"golang.org/x/crypto/ssh/terminal"
)

// client holds the lazily opened resources shared by the commands.
type client struct {
	cfg        *config
	ctx        context.Context
	httpClient *http.Client

	wg        sync.WaitGroup
	conn      *walletrpc.Conn
	wallet    *walletrpc.Wallet
	store     *models.Store
	directory []pooldir.StakePoolInfo
	pools     *selection.ConfiguredPools
}

func newClient(ctx context.Context, cfg *config) *client {
	return &client{
		cfg:        cfg,
		ctx:        ctx,
		httpClient: &http.Client{Timeout: cfg.PoolTimeout},
	}
}

// close releases the wallet connection and the database.
func (c *client) close() {
	if c.conn != nil {
		c.conn.Close()
	}
	if c.store != nil {
		c.store.Close()
	}
	c.wg.Wait()
}

// walletConn connects to the wallet on first use.
func (c *client) walletConn() (*walletrpc.Wallet, error) {
	if c.wallet != nil {
		return c.wallet, nil
	}
	ca, err := c.cfg.walletCA()
	if err != nil {
		return nil, err
	}
	conn, err := walletrpc.Dial(c.ctx, &c.wg, &walletrpc.RPCOptions{
		Host: c.cfg.WalletHost,
		User: c.cfg.WalletUser,
		Pass: c.cfg.WalletPass,
		CA:   ca,
	})
	if err != nil {
		return nil, fmt.Errorf("wallet connection: %v", err)
	}
	c.conn = conn
	c.wallet = walletrpc.NewWallet(conn, activeNetParams.Params)
	return c.wallet, nil
}

// storeConn opens the database on first use.
func (c *client) storeConn() (*models.Store, error) {
	if c.store != nil {
		return c.store, nil
	}
	dbMap, err := models.GetDbMap(c.cfg.DBDriver, c.cfg.DBDSN)
	if err != nil {
		return nil, err
	}
	c.store = models.NewStore(dbMap)
	return c.store, nil
}

// usablePools fetches the directory on first use and returns the pools
// usable on the active network.
func (c *client) usablePools() ([]pooldir.StakePoolInfo, error) {
	if c.directory != nil {
		return c.directory, nil
	}
	dir, err := pooldir.Fetch(c.ctx, c.httpClient, c.cfg.DirectoryURL)
	if err != nil {
		return nil, err
	}
	c.directory = pooldir.Filter(dir, pooldir.NetworkName(activeNetParams.Params))
	return c.directory, nil
}

// manager returns a pool manager over the restored configured pools.
func (c *client) manager(wallet poolmgr.Wallet, syncer poolmgr.Syncer) (*poolmgr.Manager, error) {
	store, err := c.storeConn()
	if err != nil {
		return nil, err
	}
	if c.pools == nil {
		c.pools = new(selection.ConfiguredPools)
	}
	return poolmgr.New(&poolmgr.Config{
		Wallet:     wallet,
		Store:      store,
		Pools:      c.pools,
		Syncer:     syncer,
		HTTPClient: c.httpClient,
		Account:    c.cfg.Account,
	}), nil
}

// configuredPools restores the configured pools on first use.
func (c *client) configuredPools() (*selection.ConfiguredPools, error) {
	if c.pools != nil {
		return c.pools, nil
	}
	usable, err := c.usablePools()
	if err != nil {
		return nil, err
	}
	mgr, err := c.manager(nil, nil)
	if err != nil {
		return nil, err
	}
	if _, err := mgr.Restore(usable); err != nil {
		return nil, err
	}
	return c.pools, nil
}

// synchronizer returns a vote bits synchronizer over the configured pools.
func (c *client) synchronizer() (*votesync.Synchronizer, error) {
	pools, err := c.configuredPools()
	if err != nil {
		return nil, err
	}
	wallet, err := c.walletConn()
	if err != nil {
		return nil, err
	}
	return votesync.New(wallet, pools, c.httpClient), nil
}

func (c *client) listPools(args []string) error {
	usable, err := c.usablePools()
	if err != nil {
		return err
	}
	for i := range usable {
		p := &usable[i]
		fmt.Printf("%-32s API %-8v fees %6.2f%%  missed %6.2f%%  users %d\n",
			p.Host(), p.APIVersionsSupported, p.PoolFees,
			p.ProportionMissed*100, p.UserCount)
	}
	return nil
}

func (c *client) showPools(args []string) error {
	pools, err := c.configuredPools()
	if err != nil {
		return err
	}
	if pools.Len() == 0 {
		fmt.Println("No stake pools configured")
		return nil
	}
	for _, p := range pools.All() {
		version, err := p.Pool.BestVersion()
		if err != nil {
			fmt.Printf("%s: %v\n", p.Host(), err)
			continue
		}
		fmt.Printf("%s (API v%d)\n", p.Host(), version)
		pc, err := poolapi.NewClient(version, p.Pool.URL, p.APIToken, c.httpClient)
		if err != nil {
			fmt.Printf("  %v\n", err)
			continue
		}
		info, err := pc.PurchaseInfo(c.ctx)
		if err != nil {
			fmt.Printf("  %v\n", err)
			continue
		}
		fmt.Printf("  voting address: %s\n", info.VotingAddress)
		fmt.Printf("  fee address:    %s\n", info.FeeAddress)
		fmt.Printf("  fee:            %s%%\n", poolapi.FormatFeePercent(info.FeePercent))
		fmt.Printf("  vote bits:      %#04x (version %d)\n", info.VoteBits,
			info.VoteBitsVersion)
		agendas := votebits.ForVersion(activeNetParams.Params, info.VoteBitsVersion)
		if !votebits.IsValid(agendas, info.VoteBits) {
			fmt.Printf("    invalid for the agendas of vote version %d\n",
				info.VoteBitsVersion)
			continue
		}
		for _, pair := range votebits.ChoicesFor(agendas, info.VoteBits) {
			fmt.Printf("    %s: %s\n", pair.AgendaID, pair.ChoiceID)
		}
	}
	return nil
}

func (c *client) addPool(args []string) error {
	if len(args) != 2 {
		return errors.New("usage: addpool <host> <apitoken>")
	}
	host, apiToken := args[0], args[1]
	usable, err := c.usablePools()
	if err != nil {
		return err
	}
	info, ok := pooldir.Find(usable, host)
	if !ok {
		return fmt.Errorf("%s is not a usable stake pool on %s", host,
			pooldir.NetworkName(activeNetParams.Params))
	}
	if _, err := c.configuredPools(); err != nil {
		return err
	}
	syncer, err := c.synchronizer()
	if err != nil {
		return err
	}
	mgr, err := c.manager(c.wallet, syncer)
	if err != nil {
		return err
	}
	pool, err := mgr.AddPool(c.ctx, *info, apiToken)
	var syncErr *votesync.SyncError
	switch {
	case errors.As(err, &syncErr):
		log.Warnf("Stake pool added but vote bits were not synchronized: %v",
			syncErr)
	case err != nil:
		return err
	}
	fmt.Printf("Added stake pool %s\n", pool.Host())
	return nil
}

func (c *client) poolStats(args []string) error {
	if len(args) != 1 {
		return errors.New("usage: poolstats <host>")
	}
	pools, err := c.configuredPools()
	if err != nil {
		return err
	}
	var info pooldir.StakePoolInfo
	var apiToken string
	if p, ok := pools.Lookup(args[0]); ok {
		info, apiToken = p.Pool, p.APIToken
	} else {
		p, ok := pooldir.Find(c.directory, args[0])
		if !ok {
			return fmt.Errorf("%s is not a usable stake pool", args[0])
		}
		info = *p
	}
	version, err := info.BestVersion()
	if err != nil {
		return err
	}
	pc, err := poolapi.NewClient(version, info.URL, apiToken, c.httpClient)
	if err != nil {
		return err
	}
	stats, err := pc.Stats(c.ctx)
	if err != nil {
		return err
	}
	fmt.Printf("Network:        %s\n", stats.Network)
	fmt.Printf("Status:         %s\n", stats.PoolStatus)
	fmt.Printf("API versions:   %v\n", stats.APIVersionsSupported)
	fmt.Printf("Fees:           %.2f%%\n", stats.PoolFees)
	fmt.Printf("Users:          %d\n", stats.UserCount)
	fmt.Printf("Live tickets:   %d\n", stats.Live)
	fmt.Printf("Voted:          %d\n", stats.Voted)
	fmt.Printf("Missed:         %d\n", stats.Missed)
	return nil
}

func (c *client) agendas(args []string) error {
	wallet, err := c.walletConn()
	if err != nil {
		return err
	}
	version, choices, err := wallet.VoteChoices(c.ctx)
	if err != nil {
		return err
	}
	agendas := votebits.ForVersion(activeNetParams.Params, version)
	current := make(map[string]string, len(choices))
	for _, p := range choices {
		current[p.AgendaID] = p.ChoiceID
	}
	fmt.Printf("Vote version %d\n", version)
	if latest := votebits.LatestVersion(activeNetParams.Params); version < latest {
		log.Warnf("Wallet vote version %d is older than the latest "+
			"version %d; upgrade the wallet to vote on new agendas",
			version, latest)
	}
	for i := range agendas {
		a := &agendas[i]
		if _, ok := current[a.ID]; !ok {
			if d := a.DefaultChoice(); d != nil {
				current[a.ID] = d.ID
			}
		}
		fmt.Printf("%s: %s\n", a.ID, a.Description)
		fmt.Printf("  voting %s to %s\n", a.StartTime.Format("2006-01-02"),
			a.ExpireTime.Format("2006-01-02"))
		for _, ch := range a.Choices {
			mark := " "
			if current[a.ID] == ch.ID {
				mark = "*"
			}
			fmt.Printf("  %s %-8s %s\n", mark, ch.ID, ch.Description)
		}
	}
	return nil
}

func printSyncResult(res *votesync.Result) {
	fmt.Printf("Vote bits %#04x\n", res.VoteBits)
	for _, p := range res.Pools {
		switch p.Outcome {
		case votesync.Failed:
			fmt.Printf("  %s: %v: %v\n", p.Host, p.Outcome, p.Err)
		default:
			fmt.Printf("  %s: %v\n", p.Host, p.Outcome)
		}
	}
}

func (c *client) setVoteChoice(args []string) error {
	if len(args) != 2 {
		return errors.New("usage: setvotechoice <agenda> <choice>")
	}
	syncer, err := c.synchronizer()
	if err != nil {
		return err
	}
	res, err := syncer.SetVoteChoice(c.ctx, args[0], args[1])
	if res != nil {
		printSyncResult(res)
	}
	return err
}

func (c *client) syncVoteBits(args []string) error {
	syncer, err := c.synchronizer()
	if err != nil {
		return err
	}
	res, err := syncer.Sync(c.ctx)
	if res != nil {
		printSyncResult(res)
	}
	return err
}

// selectPool activates the selection named by the pool option.
func selectPool(model *selection.Model, pool string) error {
	switch strings.ToLower(pool) {
	case "":
		if !model.SelectDefault() {
			model.SelectNone()
		}
	case "none":
		model.SelectNone()
	case "manual":
		model.SelectManual()
	default:
		return model.SelectPool(pool)
	}
	return nil
}

// purchaseParams builds the purchase parameters from the purchase options.
func purchaseParams(opts *purchaseOptions, sel selection.Selection) (*purchase.Params, error) {
	ticketFee, err := feeRate("ticketfee", opts.TicketFee)
	if err != nil {
		return nil, err
	}
	splitFee, err := feeRate("splitfee", opts.SplitFee)
	if err != nil {
		return nil, err
	}
	return &purchase.Params{
		Account:        opts.Account,
		Selection:      sel,
		NumTickets:     opts.NumTickets,
		Expiry:         opts.Expiry,
		TicketFee:      ticketFee,
		SplitFee:       splitFee,
		VotingAddress:  opts.VotingAddress,
		PoolFeeAddress: opts.PoolFeeAddress,
		PoolFees:       opts.PoolFees,
	}, nil
}

// ignoredOptions returns the purchase options that were set but are not
// used by a selection with the given requirements.
func ignoredOptions(req selection.Requirements, opts *purchaseOptions) []string {
	var ignored []string
	if !req.VotingAddress && opts.VotingAddress != "" {
		ignored = append(ignored, "votingaddress")
	}
	if !req.ManualFees {
		if opts.PoolFeeAddress != "" {
			ignored = append(ignored, "poolfeeaddress")
		}
		if opts.PoolFees != "" {
			ignored = append(ignored, "poolfees")
		}
	}
	return ignored
}

// passphrase returns the configured wallet passphrase or prompts for it.
func passphrase(configured string) (string, error) {
	if configured != "" {
		return configured, nil
	}
	for {
		fmt.Print("Enter the private passphrase of your wallet: ")
		pass, err := terminal.ReadPassword(int(os.Stdin.Fd()))
		if err != nil {
			return "", err
		}
		fmt.Print("\n")
		pass = bytes.TrimSpace(pass)
		if len(pass) == 0 {
			continue
		}
		return string(pass), nil
	}
}

func (c *client) purchaseTickets(args []string) error {
	pools, err := c.configuredPools()
	if err != nil {
		return err
	}
	model := selection.NewModel(pools)
	if err := selectPool(model, c.cfg.Purchase.Pool); err != nil {
		return err
	}
	for _, opt := range ignoredOptions(model.Requirements(), &c.cfg.Purchase) {
		log.Warnf("Ignoring --%s: not used when purchasing with %s", opt,
			selection.Name(model.Current()))
	}
	params, err := purchaseParams(&c.cfg.Purchase, model.Current())
	if err != nil {
		return err
	}
	wallet, err := c.walletConn()
	if err != nil {
		return err
	}
	purchaser := purchase.New(wallet, activeNetParams.Params, c.httpClient)
	if err := purchaser.Check(params); err != nil {
		return err
	}
	pass, err := passphrase(c.cfg.Purchase.WalletPassphrase)
	if err != nil {
		return err
	}
	hashes, err := purchaser.Purchase(c.ctx, params, pass)
	if err != nil {
		return err
	}
	fmt.Println("Success! Ticket hashes:")
	for _, h := range hashes {
		fmt.Println(h)
	}
	return nil
}

// commands maps each command to its handler and usage.
var commands = map[string]struct {
	run   func(*client, []string) error
	usage string
}{
	"listpools":       {(*client).listPools, "list the usable stake pools of the directory"},
	"pools":           {(*client).showPools, "show the configured stake pools"},
	"addpool":         {(*client).addPool, "<host> <apitoken> register with a stake pool"},
	"poolstats":       {(*client).poolStats, "<host> show stake pool statistics"},
	"agendas":         {(*client).agendas, "show the agendas and the wallet's vote choices"},
	"setvotechoice":   {(*client).setVoteChoice, "<agenda> <choice> set a vote choice on the wallet and all pools"},
	"syncvotebits":    {(*client).syncVoteBits, "push the wallet's vote bits to all pools"},
	"purchasetickets": {(*client).purchaseTickets, "purchase tickets using the purchase options"},
}

func usage() {
	names := make([]string, 0, len(commands))
	for name := range commands {
		names = append(names, name)
	}
	sort.Strings(names)
	fmt.Fprintln(os.Stderr, "Commands:")
	for _, name := range names {
		fmt.Fprintf(os.Stderr, "  %-16s %s\n", name, commands[name].usage)
	}
}

func _main() error {
	cfg, args, err := loadConfig()
	if err != nil {
		return err
	}
	if len(args) == 0 {
		usage()
		return errors.New("must provide a command")
	}
	cmd, ok := commands[args[0]]
	if !ok {
		usage()
		return fmt.Errorf("invalid command: %v", args[0])
	}

	// Get a context that will be canceled when a shutdown signal has been
	// triggered.
	go signal.ShutdownListener()
	ctx := signal.WithShutdownCancel(context.Background())

	c := newClient(ctx, cfg)
	defer c.close()
	return cmd.run(c, args[1:])
}

// describeError adds the kind of stake pool failure to err.
func describeError(err error) error {
	switch {
	case poolapi.IsConfigurationError(err):
		return fmt.Errorf("stake pool configuration error: %w", err)
	case poolapi.IsProtocolError(err):
		return fmt.Errorf("stake pool protocol error: %w", err)
	}
	return err
}

func main() {
	err := _main()
	if err != nil {
		err = describeError(err)
		// Print the error to stderr if the logs have not been
		// setup yet.
		if logRotator == nil {
			fmt.Fprintf(os.Stderr, "%v\n", err)
		} else {
			log.Error(err)
		}
	}
	if logRotator != nil {
		logRotator.Close()
	}
	if err != nil {
		os.Exit(1)
	}
}
