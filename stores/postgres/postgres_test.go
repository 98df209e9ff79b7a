// Copyright (c) 2025 Michael D Henderson. All rights reserved.

package postgres_test

import (
	"context"
	"errors"
	"os"
	"testing"

	"github.com/mdhender/namesdb/stores"
	"github.com/mdhender/namesdb/stores/postgres"
	"github.com/mdhender/namesdb/stores/storetest"
)

// newTestStore connects to the database named by TEST_DATABASE_URL and
// resets both tables. Skips when the variable is not set so the suite can
// run without a Postgres instance.
func newTestStore(t *testing.T) stores.Store {
	t.Helper()
	ctx := context.Background()

	dsn := os.Getenv("TEST_DATABASE_URL")
	if dsn == "" {
		t.Skip("TEST_DATABASE_URL not set")
	}

	s, err := postgres.New(dsn)
	if err != nil {
		t.Fatalf("new store: %v", err)
	}
	if err := s.Connect(ctx); err != nil {
		t.Fatalf("connect: %v", err)
	}
	t.Cleanup(func() { s.Close() })

	for _, table := range []string{stores.TableNames, stores.TableStateNames} {
		if _, err := s.DB().ExecContext(ctx, "DROP TABLE IF EXISTS "+table); err != nil {
			t.Fatalf("drop %s: %v", table, err)
		}
	}
	if err := s.InitSchema(ctx, postgres.Schema); err != nil {
		t.Fatalf("init schema: %v", err)
	}
	return s
}

func TestConformance(t *testing.T) {
	storetest.Run(t, newTestStore)
}

func TestNewRequiresDSN(t *testing.T) {
	t.Setenv("DATABASE_URL", "")
	if _, err := postgres.New(""); !errors.Is(err, postgres.ErrNoDatabaseURL) {
		t.Errorf("new without dsn: got %v, want ErrNoDatabaseURL", err)
	}
}

func TestNewFromEnvironment(t *testing.T) {
	t.Setenv("DATABASE_URL", "postgres://localhost/names?sslmode=disable")
	if _, err := postgres.New(""); err != nil {
		t.Errorf("new from env: %v", err)
	}
}

func TestNotConnected(t *testing.T) {
	ctx := context.Background()
	s, err := postgres.New("postgres://localhost/names?sslmode=disable")
	if err != nil {
		t.Fatalf("new store: %v", err)
	}

	if _, err := s.NameRecords(ctx, "Mary"); !errors.Is(err, stores.ErrNotConnected) {
		t.Errorf("name records: got %v, want ErrNotConnected", err)
	}
	if err := s.CreateIndexes(ctx, stores.TableNames); !errors.Is(err, stores.ErrNotConnected) {
		t.Errorf("create indexes: got %v, want ErrNotConnected", err)
	}

	// close is safe without a session
	if err := s.Close(); err != nil {
		t.Errorf("close: %v", err)
	}
}
