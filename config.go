// Copyright (c) 2013-2014 The btcsuite developers
// Copyright (c) 2015-2019 The Decred developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package main

import (
	"errors"
	"fmt"
	"io/ioutil"
	"net"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/decred/dcrd/dcrutil/v2"
	"github.com/decred/dcrpoolclient/models"
	"github.com/decred/dcrpoolclient/pooldir"
	"github.com/decred/dcrpoolclient/purchase"
	flags "github.com/jessevdk/go-flags"
)

const (
	defaultConfigFilename = "dcrpoolclient.conf"
	defaultDataDirname    = "data"
	defaultLogLevel       = "info"
	defaultLogDirname     = "logs"
	defaultLogFilename    = "dcrpoolclient.log"
	defaultDBFilename     = "pools.db"
	defaultPoolTimeout    = 30 * time.Second
	defaultAccount        = "default"
	defaultFeePerKB       = 0.001
)

var (
	defaultHomeDir       = dcrutil.AppDataDir("dcrpoolclient", false)
	defaultWalletHomeDir = dcrutil.AppDataDir("dcrwallet", false)
	defaultWalletCert    = filepath.Join(defaultWalletHomeDir, "rpc.cert")
)

// purchaseOptions are the inputs of the purchasetickets command.
type purchaseOptions struct {
	Account          string  `long:"purchaseaccount" description:"Account to purchase tickets from"`
	Pool             string  `long:"pool" description:"Host of a configured stake pool, \"manual\" or \"none\" (default: the only configured pool, otherwise none)"`
	NumTickets       int     `long:"numtickets" description:"Number of tickets to purchase"`
	Expiry           int64   `long:"expiry" description:"Number of blocks an unmined ticket remains valid"`
	TicketFee        float64 `long:"ticketfee" description:"Ticket transaction fee in DCR/kB"`
	SplitFee         float64 `long:"splitfee" description:"Split transaction fee in DCR/kB"`
	VotingAddress    string  `long:"votingaddress" description:"Address voting rights are given to (pool none or manual)"`
	PoolFeeAddress   string  `long:"poolfeeaddress" description:"Address pool fees are paid to (pool manual)"`
	PoolFees         string  `long:"poolfees" description:"Pool fee percentage with at most two decimals (pool manual)"`
	WalletPassphrase string  `long:"walletpassphrase" description:"Private passphrase of the wallet; prompted for when not set"`
}

// config defines the configuration options for dcrpoolclient.
//
// See loadConfig for details on the configuration load process.
type config struct {
	HomeDir      string          `short:"A" long:"appdata" description:"Path to application home directory"`
	ShowVersion  bool            `short:"V" long:"version" description:"Display version information and exit"`
	ConfigFile   string          `short:"C" long:"configfile" description:"Path to configuration file"`
	DataDir      string          `short:"b" long:"datadir" description:"Directory to store data"`
	LogDir       string          `long:"logdir" description:"Directory to log output."`
	TestNet      bool            `long:"testnet" description:"Use the test network"`
	SimNet       bool            `long:"simnet" description:"Use the simulation test network"`
	DebugLevel   string          `short:"d" long:"debuglevel" description:"Logging level for all subsystems {trace, debug, info, warn, error, critical} -- You may also specify <subsystem>=<level>,<subsystem2>=<level>,... to set the log level for individual subsystems -- Use show to list available subsystems"`
	WalletHost   string          `long:"wallethost" description:"Hostname for wallet server"`
	WalletUser   string          `long:"walletuser" description:"Username for wallet server"`
	WalletPass   string          `long:"walletpass" description:"Password for wallet server"`
	WalletCert   string          `long:"walletcert" description:"Certificate path for wallet server"`
	DBDriver     string          `long:"dbdriver" description:"Database driver" choice:"sqlite3" choice:"mysql"`
	DBDSN        string          `long:"dbdsn" description:"Database data source name (default: pools.db in the data directory)"`
	DirectoryURL string          `long:"directoryurl" description:"URL of the stake pool directory"`
	PoolTimeout  time.Duration   `long:"pooltimeout" description:"Timeout of requests to stake pools and the directory"`
	Account      string          `long:"account" description:"Account providing the address registered with stake pools"`
	Purchase     purchaseOptions `group:"Purchase Options"`
	Version      string
}

// cleanAndExpandPath expands environment variables and leading ~ in the
// passed path, cleans the result, and returns it.
func cleanAndExpandPath(path string) string {
	// Expand initial ~ to OS specific home directory.
	if strings.HasPrefix(path, "~") {
		homeDir := filepath.Dir(defaultHomeDir)
		path = strings.Replace(path, "~", homeDir, 1)
	}

	// NOTE: The os.ExpandEnv doesn't work with Windows-style %VARIABLE%,
	// but they variables can still be expanded via POSIX-style $VARIABLE.
	return filepath.Clean(os.ExpandEnv(path))
}

// validLogLevel returns whether or not logLevel is a valid debug log level.
func validLogLevel(logLevel string) bool {
	switch logLevel {
	case "trace":
		fallthrough
	case "debug":
		fallthrough
	case "info":
		fallthrough
	case "warn":
		fallthrough
	case "error":
		fallthrough
	case "critical":
		return true
	}
	return false
}

// supportedSubsystems returns a sorted slice of the supported subsystems for
// logging purposes.
func supportedSubsystems() []string {
	// Convert the subsystemLoggers map keys to a slice.
	subsystems := make([]string, 0, len(subsystemLoggers))
	for subsysID := range subsystemLoggers {
		subsystems = append(subsystems, subsysID)
	}

	// Sort the subsytems for stable display.
	sort.Strings(subsystems)
	return subsystems
}

// parseAndSetDebugLevels attempts to parse the specified debug level and set
// the levels accordingly.  An appropriate error is returned if anything is
// invalid.
func parseAndSetDebugLevels(debugLevel string) error {
	// When the specified string doesn't have any delimters, treat it as
	// the log level for all subsystems.
	if !strings.Contains(debugLevel, ",") && !strings.Contains(debugLevel, "=") {
		// Validate debug log level.
		if !validLogLevel(debugLevel) {
			str := "The specified debug level [%v] is invalid"
			return fmt.Errorf(str, debugLevel)
		}

		// Change the logging level for all subsystems.
		setLogLevels(debugLevel)

		return nil
	}

	// Split the specified string into subsystem/level pairs while detecting
	// issues and update the log levels accordingly.
	for _, logLevelPair := range strings.Split(debugLevel, ",") {
		if !strings.Contains(logLevelPair, "=") {
			str := "The specified debug level contains an invalid " +
				"subsystem/level pair [%v]"
			return fmt.Errorf(str, logLevelPair)
		}

		// Extract the specified subsystem and log level.
		fields := strings.Split(logLevelPair, "=")
		subsysID, logLevel := fields[0], fields[1]

		// Validate subsystem.
		if _, exists := subsystemLoggers[subsysID]; !exists {
			str := "The specified subsystem [%v] is invalid -- " +
				"supported subsytems %v"
			return fmt.Errorf(str, subsysID, supportedSubsystems())
		}

		// Validate log level.
		if !validLogLevel(logLevel) {
			str := "The specified debug level [%v] is invalid"
			return fmt.Errorf(str, logLevel)
		}

		setLogLevel(subsysID, logLevel)
	}

	return nil
}

// normalizeAddress returns addr with the passed default port appended if
// there is not already a port specified.
func normalizeAddress(addr, defaultPort string) string {
	_, _, err := net.SplitHostPort(addr)
	if err != nil {
		return net.JoinHostPort(addr, defaultPort)
	}
	return addr
}

// feeRate converts a fee in DCR/kB to an amount.
func feeRate(name string, dcrPerKB float64) (dcrutil.Amount, error) {
	fee, err := dcrutil.NewAmount(dcrPerKB)
	if err != nil {
		return 0, fmt.Errorf("invalid %s: %v", name, err)
	}
	return fee, nil
}

// newDefaultConfig returns the configuration before any file or command line
// options are applied.
func newDefaultConfig() config {
	return config{
		HomeDir:      defaultHomeDir,
		ConfigFile:   filepath.Join(defaultHomeDir, defaultConfigFilename),
		DataDir:      filepath.Join(defaultHomeDir, defaultDataDirname),
		LogDir:       filepath.Join(defaultHomeDir, defaultLogDirname),
		DebugLevel:   defaultLogLevel,
		WalletCert:   defaultWalletCert,
		DBDriver:     models.DriverSQLite,
		DirectoryURL: pooldir.DefaultURL,
		PoolTimeout:  defaultPoolTimeout,
		Account:      defaultAccount,
		Purchase: purchaseOptions{
			Account:    defaultAccount,
			NumTickets: 1,
			Expiry:     purchase.DefaultExpiry,
			TicketFee:  defaultFeePerKB,
			SplitFee:   defaultFeePerKB,
		},
		Version: version(),
	}
}

// applyNetwork selects the active network and derives the network specific
// settings.
func (cfg *config) applyNetwork() error {
	// Multiple networks can't be selected simultaneously.
	numNets := 0
	activeNetParams = &mainNetParams
	if cfg.TestNet {
		numNets++
		activeNetParams = &testNet3Params
	}
	if cfg.SimNet {
		numNets++
		activeNetParams = &simNetParams
	}
	if numNets > 1 {
		return errors.New("The testnet and simnet params can't be " +
			"used together -- choose one of the three")
	}

	// Namespace the data and log directories per network.
	cfg.DataDir = filepath.Join(cleanAndExpandPath(cfg.DataDir),
		netName(activeNetParams))
	cfg.LogDir = filepath.Join(cleanAndExpandPath(cfg.LogDir),
		netName(activeNetParams))

	if cfg.WalletHost == "" {
		cfg.WalletHost = "localhost"
	}
	cfg.WalletHost = normalizeAddress(cfg.WalletHost,
		activeNetParams.WalletRPCServerPort)

	if cfg.DBDSN == "" {
		if cfg.DBDriver != models.DriverSQLite {
			return fmt.Errorf("dbdsn is required for database driver %s",
				cfg.DBDriver)
		}
		cfg.DBDSN = filepath.Join(cfg.DataDir, defaultDBFilename)
	}
	return nil
}

// walletCA reads the wallet's RPC certificate.
func (cfg *config) walletCA() ([]byte, error) {
	ca, err := ioutil.ReadFile(cleanAndExpandPath(cfg.WalletCert))
	if err != nil {
		return nil, fmt.Errorf("unable to read walletcert: %v", err)
	}
	return ca, nil
}

// loadConfig initializes and parses the config using a config file and command
// line options.
//
// The configuration proceeds as follows:
// 	1) Start with a default config with sane settings
// 	2) Pre-parse the command line to check for an alternative config file
// 	3) Load configuration file overwriting defaults with any specified options
// 	4) Parse CLI options and overwrite/add any specified options
//
// The remaining command line arguments are the command and its arguments.
func loadConfig() (*config, []string, error) {
	// Default config.
	cfg := newDefaultConfig()

	// Pre-parse the command line options to see if an alternative config
	// file or the version flag was specified.  Any errors aside from the
	// help message error can be ignored here since they will be caught by
	// the final parse below.
	preCfg := cfg
	preParser := flags.NewParser(&preCfg, flags.HelpFlag)
	_, err := preParser.Parse()
	if err != nil {
		if e, ok := err.(*flags.Error); ok && e.Type == flags.ErrHelp {
			fmt.Fprintln(os.Stderr, err)
			os.Exit(0)
		}
	}

	// Show the version and exit if the version flag was specified.
	appName := filepath.Base(os.Args[0])
	appName = strings.TrimSuffix(appName, filepath.Ext(appName))
	usageMessage := fmt.Sprintf("Use %s -h to show usage", appName)
	if preCfg.ShowVersion {
		fmt.Println(appName, "version", version())
		os.Exit(0)
	}

	// Update the home directory if specified.  The config file is
	// relative to it unless given explicitly.
	if preCfg.HomeDir != defaultHomeDir {
		homeDir := cleanAndExpandPath(preCfg.HomeDir)
		cfg.HomeDir = homeDir
		if preCfg.ConfigFile == cfg.ConfigFile {
			preCfg.ConfigFile = filepath.Join(homeDir, defaultConfigFilename)
		}
		cfg.DataDir = filepath.Join(homeDir, defaultDataDirname)
		cfg.LogDir = filepath.Join(homeDir, defaultLogDirname)
	}

	// Load additional config from file.
	var configFileError error
	parser := flags.NewParser(&cfg, flags.Default)
	err = flags.NewIniParser(parser).ParseFile(cleanAndExpandPath(preCfg.ConfigFile))
	if err != nil {
		if _, ok := err.(*os.PathError); !ok {
			fmt.Fprintf(os.Stderr, "Error parsing config file: %v\n", err)
			fmt.Fprintln(os.Stderr, usageMessage)
			return nil, nil, err
		}
		configFileError = err
	}

	// Parse command line options again to ensure they take precedence.
	remainingArgs, err := parser.Parse()
	if err != nil {
		if e, ok := err.(*flags.Error); !ok || e.Type != flags.ErrHelp {
			fmt.Fprintln(os.Stderr, usageMessage)
		}
		return nil, nil, err
	}

	// Create the home directory if it doesn't already exist.
	funcName := "loadConfig"
	err = os.MkdirAll(cfg.HomeDir, 0700)
	if err != nil {
		str := "%s: Failed to create home directory: %v"
		err := fmt.Errorf(str, funcName, err)
		fmt.Fprintln(os.Stderr, err)
		return nil, nil, err
	}

	if err := cfg.applyNetwork(); err != nil {
		err := fmt.Errorf("%s: %v", funcName, err)
		fmt.Fprintln(os.Stderr, err)
		fmt.Fprintln(os.Stderr, usageMessage)
		return nil, nil, err
	}
	if err := os.MkdirAll(cfg.DataDir, 0700); err != nil {
		err := fmt.Errorf("%s: Failed to create data directory: %v",
			funcName, err)
		fmt.Fprintln(os.Stderr, err)
		return nil, nil, err
	}

	// Special show command to list supported subsystems and exit.
	if cfg.DebugLevel == "show" {
		fmt.Println("Supported subsystems", supportedSubsystems())
		os.Exit(0)
	}

	// Initialize log rotation.  After log rotation has been initialized,
	// the logger variables may be used.
	if err := initLogRotator(filepath.Join(cfg.LogDir, defaultLogFilename)); err != nil {
		fmt.Fprintln(os.Stderr, err)
		return nil, nil, err
	}

	// Parse, validate, and set debug log level(s).
	if err := parseAndSetDebugLevels(cfg.DebugLevel); err != nil {
		err := fmt.Errorf("%s: %v", funcName, err.Error())
		fmt.Fprintln(os.Stderr, err)
		fmt.Fprintln(os.Stderr, usageMessage)
		return nil, nil, err
	}

	// Warn about missing config file only after all other configuration is
	// done.  This prevents the warning on help messages and invalid
	// options.  Note this should go directly before the return.
	if configFileError != nil {
		log.Warnf("%v", configFileError)
	}

	return &cfg, remainingArgs, nil
}
