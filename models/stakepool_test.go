// Copyright (c) 2019 The Decred developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package models

import (
	"errors"
	"reflect"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/go-gorp/gorp"
)

// makeDB creates a fake database for testing.
func makeDB(t *testing.T) (sqlmock.Sqlmock, *gorp.DbMap) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatal(err)
	}
	dbMap := &gorp.DbMap{
		Db:      db,
		Dialect: gorp.MySQLDialect{Engine: "InnoDB", Encoding: "UTF8MB4"},
	}
	addTables(dbMap)
	return mock, dbMap
}

var tStakePoolCol = []string{"StakePoolID", "Host", "APIKey",
	"MultisigVoteScript", "Created"}

const tScript = "512103af3c24d005ca8b755e7167617f3a5b4c60a65f8" +
	"318a7fcd1b0cacb1abd2a97fc21027b81bc16954e28adb83224814" +
	"0eb58bedb6078ae5f4dabf21fde5a8ab7135cb652ae"

func TestInsertStakePool(t *testing.T) {
	mock, dbMap := makeDB(t)
	pool := &StakePool{
		Host:               "a.example.org",
		APIKey:             "token",
		MultisigVoteScript: tScript,
		Created:            1567641600,
	}
	mock.ExpectExec("^insert into `StakePools`").
		WithArgs("a.example.org", "token", tScript, int64(1567641600)).
		WillReturnResult(sqlmock.NewResult(7, 1))

	if err := InsertStakePool(dbMap, pool); err != nil {
		t.Fatal(err)
	}
	if pool.Id != 7 {
		t.Fatalf("expected id 7, got %d", pool.Id)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectation error: %s", err)
	}
}

func TestInsertStakePoolError(t *testing.T) {
	mock, dbMap := makeDB(t)
	dbErr := errors.New("Duplicate entry 'a.example.org' for key 'Host'")
	mock.ExpectExec("^insert into `StakePools`").WillReturnError(dbErr)

	err := InsertStakePool(dbMap, &StakePool{Host: "a.example.org"})
	if !errors.Is(err, dbErr) {
		t.Fatalf("expected wrapped database error, got %v", err)
	}
}

func TestGetStakePools(t *testing.T) {
	mock, dbMap := makeDB(t)
	mock.ExpectQuery(`^SELECT (.*) FROM StakePools ORDER BY StakePoolID$`).
		WillReturnRows(sqlmock.NewRows(tStakePoolCol).
			AddRow(1, "b.example.org", "token1", tScript, 100).
			AddRow(2, "a.example.org", "token2", tScript, 200))

	pools, err := GetStakePools(dbMap)
	if err != nil {
		t.Fatal(err)
	}
	want := []StakePool{
		{1, "b.example.org", "token1", tScript, 100},
		{2, "a.example.org", "token2", tScript, 200},
	}
	if !reflect.DeepEqual(pools, want) {
		t.Fatalf("expected %v, got %v", want, pools)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectation error: %s", err)
	}
}

func TestGetStakePoolByHost(t *testing.T) {
	tests := []struct {
		name    string
		rows    *sqlmock.Rows
		want    *StakePool
		wantErr error
	}{{
		name: "ok",
		rows: sqlmock.NewRows(tStakePoolCol).
			AddRow(3, "a.example.org", "token", tScript, 300),
		want: &StakePool{3, "a.example.org", "token", tScript, 300},
	}, {
		name:    "missing",
		rows:    sqlmock.NewRows(tStakePoolCol),
		wantErr: ErrNoStakePool,
	}}
	for _, test := range tests {
		mock, dbMap := makeDB(t)
		mock.ExpectQuery(`^SELECT (.*) FROM StakePools WHERE Host = (.+)$`).
			WithArgs("a.example.org").
			WillReturnRows(test.rows)

		pool, err := GetStakePoolByHost(dbMap, "a.example.org")
		if !errors.Is(err, test.wantErr) {
			t.Fatalf("%s: expected error %v, got %v", test.name, test.wantErr, err)
		}
		if !reflect.DeepEqual(pool, test.want) {
			t.Fatalf("%s: expected %v, got %v", test.name, test.want, pool)
		}
		if err := mock.ExpectationsWereMet(); err != nil {
			t.Fatalf("%s: unmet expectation error: %s", test.name, err)
		}
	}
}

func TestGetDbMapDriver(t *testing.T) {
	if _, err := GetDbMap("postgres", ""); err == nil {
		t.Fatal("expected unsupported driver error")
	}
}

func TestStore(t *testing.T) {
	mock, dbMap := makeDB(t)
	store := NewStore(dbMap)

	mock.ExpectExec("^insert into `StakePools`").
		WillReturnResult(sqlmock.NewResult(1, 1))
	mock.ExpectQuery(`^SELECT (.*) FROM StakePools ORDER BY StakePoolID$`).
		WillReturnRows(sqlmock.NewRows(tStakePoolCol).
			AddRow(1, "a.example.org", "token", tScript, 100))
	mock.ExpectQuery(`^SELECT (.*) FROM StakePools WHERE Host = (.+)$`).
		WithArgs("b.example.org").
		WillReturnRows(sqlmock.NewRows(tStakePoolCol))
	mock.ExpectClose()

	pool := &StakePool{Host: "a.example.org", APIKey: "token",
		MultisigVoteScript: tScript}
	if err := store.InsertStakePool(pool); err != nil {
		t.Fatal(err)
	}
	if pool.Created == 0 {
		t.Fatal("creation time not set")
	}
	pools, err := store.GetStakePools()
	if err != nil {
		t.Fatal(err)
	}
	if len(pools) != 1 || pools[0].Host != "a.example.org" {
		t.Fatalf("unexpected pools %v", pools)
	}
	if _, err := store.GetStakePoolByHost("b.example.org"); !errors.Is(err, ErrNoStakePool) {
		t.Fatalf("expected ErrNoStakePool, got %v", err)
	}
	if err := store.Close(); err != nil {
		t.Fatal(err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectation error: %s", err)
	}
}
