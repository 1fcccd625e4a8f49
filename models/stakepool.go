// Copyright (c) 2019 The Decred developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

// Package models persists the stake pools the wallet is registered with.
package models

import (
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/go-gorp/gorp"
	_ "github.com/go-sql-driver/mysql"
	_ "github.com/mattn/go-sqlite3"
)

// Supported database drivers.
const (
	DriverSQLite = "sqlite3"
	DriverMySQL  = "mysql"
)

// ErrNoStakePool is returned when no stake pool with the requested host is
// stored.
var ErrNoStakePool = errors.New("no such stake pool")

// StakePool is a stake pool the wallet is registered with.
type StakePool struct {
	Id                 int64 `db:"StakePoolID"`
	Host               string
	APIKey             string
	MultisigVoteScript string
	Created            int64
}

// GetDbMap opens the database and creates missing tables.
func GetDbMap(driver, dsn string) (*gorp.DbMap, error) {
	var dialect gorp.Dialect
	switch driver {
	case DriverSQLite:
		dialect = gorp.SqliteDialect{}
	case DriverMySQL:
		dialect = gorp.MySQLDialect{Engine: "InnoDB", Encoding: "UTF8MB4"}
	default:
		return nil, fmt.Errorf("unsupported database driver %q", driver)
	}

	// connect to db using standard Go database/sql API
	db, err := sql.Open(driver, dsn)
	if err != nil {
		return nil, fmt.Errorf("sql.Open failed: %v", err)
	}

	dbMap := &gorp.DbMap{Db: db, Dialect: dialect}
	addTables(dbMap)

	if err := dbMap.CreateTablesIfNotExists(); err != nil {
		db.Close()
		return nil, fmt.Errorf("create tables failed: %v", err)
	}
	log.Debugf("Opened %s database", driver)
	return dbMap, nil
}

// addTables registers the tables with dbMap.
func addTables(dbMap *gorp.DbMap) {
	t := dbMap.AddTableWithName(StakePool{}, "StakePools").SetKeys(true, "Id")
	t.ColMap("Host").SetUnique(true).SetMaxSize(255)
	t.ColMap("APIKey").SetMaxSize(1024)
	t.ColMap("MultisigVoteScript").SetMaxSize(1024)
}

// InsertStakePool stores pool.  Created is set when zero.
func InsertStakePool(dbMap *gorp.DbMap, pool *StakePool) error {
	if pool.Created == 0 {
		pool.Created = time.Now().Unix()
	}
	if err := dbMap.Insert(pool); err != nil {
		return fmt.Errorf("insert stake pool %s: %w", pool.Host, err)
	}
	log.Infof("Stored stake pool %s", pool.Host)
	return nil
}

// GetStakePools returns every stored stake pool in insertion order.
func GetStakePools(dbMap *gorp.DbMap) ([]StakePool, error) {
	var pools []StakePool
	_, err := dbMap.Select(&pools, "SELECT * FROM StakePools ORDER BY StakePoolID")
	if err != nil {
		return nil, err
	}
	return pools, nil
}

// GetStakePoolByHost returns the stored stake pool with the given host.
func GetStakePoolByHost(dbMap *gorp.DbMap, host string) (*StakePool, error) {
	var pool StakePool
	err := dbMap.SelectOne(&pool, "SELECT * FROM StakePools WHERE Host = ?", host)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%s: %w", host, ErrNoStakePool)
	}
	if err != nil {
		return nil, err
	}
	return &pool, nil
}

// Store persists stake pools through a DbMap.
type Store struct {
	dbMap *gorp.DbMap
}

// NewStore returns a Store using dbMap.
func NewStore(dbMap *gorp.DbMap) *Store {
	return &Store{dbMap: dbMap}
}

// InsertStakePool stores pool.
func (s *Store) InsertStakePool(pool *StakePool) error {
	return InsertStakePool(s.dbMap, pool)
}

// GetStakePoolByHost returns the stored stake pool with the given host.
// ErrNoStakePool is returned when none is stored.
func (s *Store) GetStakePoolByHost(host string) (*StakePool, error) {
	return GetStakePoolByHost(s.dbMap, host)
}

// GetStakePools returns every stored stake pool in insertion order.
func (s *Store) GetStakePools() ([]StakePool, error) {
	return GetStakePools(s.dbMap)
}

// Close closes the database.
func (s *Store) Close() error {
	return s.dbMap.Db.Close()
}
