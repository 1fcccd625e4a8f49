// Copyright (c) 2019 The Decred developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package main

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/decred/dcrpoolclient/models"
	"github.com/decred/dcrpoolclient/poolapi"
	"github.com/decred/dcrpoolclient/pooldir"
	"github.com/decred/dcrpoolclient/poolmgr"
	"github.com/decred/dcrpoolclient/purchase"
	"github.com/decred/dcrpoolclient/signal"
	"github.com/decred/dcrpoolclient/votesync"
	"github.com/decred/dcrpoolclient/walletrpc"
	"github.com/decred/slog"
	"github.com/jrick/logrotate/rotator"
)

// logWriter implements an io.Writer that outputs to both standard output and
// the write-end pipe of an initialized log rotator.
type logWriter struct{}

func (logWriter) Write(p []byte) (n int, err error) {
	os.Stdout.Write(p)
	if logRotator != nil {
		logRotator.Write(p)
	}
	return len(p), nil
}

// Loggers per subsystem.  A single backend logger is created and all subsytem
// loggers created from it will write to the backend.  When adding new
// subsystems, add the subsystem logger variable here and to the
// subsystemLoggers map.
//
// Loggers can not be used before the log rotator has been initialized with a
// log file.  This must be performed early during application startup by
// calling initLogRotator.
var (
	// backendLog is the logging backend used to create all subsystem
	// loggers.
	backendLog = slog.NewBackend(logWriter{})

	// logRotator is one of the logging outputs.  It should be closed on
	// application shutdown.
	logRotator *rotator.Rotator

	log     = backendLog.Logger("PCLI")
	modlLog = backendLog.Logger("MODL")
	papiLog = backendLog.Logger("PAPI")
	pdirLog = backendLog.Logger("PDIR")
	pmgrLog = backendLog.Logger("PMGR")
	prchLog = backendLog.Logger("PRCH")
	sgnlLog = backendLog.Logger("SGNL")
	vsynLog = backendLog.Logger("VSYN")
	wrpcLog = backendLog.Logger("WRPC")
)

// Initialize package-global logger variables.
func init() {
	models.UseLogger(modlLog)
	poolapi.UseLogger(papiLog)
	pooldir.UseLogger(pdirLog)
	poolmgr.UseLogger(pmgrLog)
	purchase.UseLogger(prchLog)
	signal.UseLogger(sgnlLog)
	votesync.UseLogger(vsynLog)
	walletrpc.UseLogger(wrpcLog)
}

// subsystemLoggers maps each subsystem identifier to its associated logger.
var subsystemLoggers = map[string]slog.Logger{
	"PCLI": log,
	"MODL": modlLog,
	"PAPI": papiLog,
	"PDIR": pdirLog,
	"PMGR": pmgrLog,
	"PRCH": prchLog,
	"SGNL": sgnlLog,
	"VSYN": vsynLog,
	"WRPC": wrpcLog,
}

// initLogRotator initializes the logging rotater to write logs to logFile and
// create roll files in the same directory.  It must be called before the
// package-global log rotater variables are used.
func initLogRotator(logFile string) error {
	logDir, _ := filepath.Split(logFile)
	err := os.MkdirAll(logDir, 0700)
	if err != nil {
		return fmt.Errorf("failed to create log directory: %v", err)
	}
	r, err := rotator.New(logFile, 10*1024, false, 3)
	if err != nil {
		return fmt.Errorf("failed to create file rotator: %v", err)
	}

	logRotator = r
	return nil
}

// setLogLevel sets the logging level for provided subsystem.  Invalid
// subsystems are ignored.
func setLogLevel(subsystemID string, logLevel string) {
	// Ignore invalid subsystems.
	logger, ok := subsystemLoggers[subsystemID]
	if !ok {
		return
	}

	// Defaults to info if the log level is invalid.
	level, _ := slog.LevelFromString(logLevel)
	logger.SetLevel(level)
}

// setLogLevels sets the log level for all subsystem loggers to the passed
// level.
func setLogLevels(logLevel string) {
	// Configure all sub-systems with the new logging level.
	for subsystemID := range subsystemLoggers {
		setLogLevel(subsystemID, logLevel)
	}
}
