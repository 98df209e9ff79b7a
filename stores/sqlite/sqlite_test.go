// Copyright (c) 2025 Michael D Henderson. All rights reserved.

package sqlite_test

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"testing"

	"github.com/mdhender/namesdb/model"
	"github.com/mdhender/namesdb/stores"
	"github.com/mdhender/namesdb/stores/sqlite"
	"github.com/mdhender/namesdb/stores/storetest"
)

func newTestStore(t *testing.T) stores.Store {
	t.Helper()
	ctx := context.Background()

	s := sqlite.New(filepath.Join(t.TempDir(), "names.db"))
	if err := s.Connect(ctx); err != nil {
		t.Fatalf("connect: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	if err := s.InitSchema(ctx, sqlite.Schema); err != nil {
		t.Fatalf("init schema: %v", err)
	}
	return s
}

func TestConformance(t *testing.T) {
	storetest.Run(t, newTestStore)
}

func TestNotConnected(t *testing.T) {
	ctx := context.Background()
	s := sqlite.New("")

	if _, err := s.NameRecords(ctx, "Mary"); !errors.Is(err, stores.ErrNotConnected) {
		t.Errorf("name records: got %v, want ErrNotConnected", err)
	}
	if err := s.InsertNameBatch(ctx, []model.NameRecord{{Name: "Mary", Gender: model.Female, Count: 1, Year: 1950}}); !errors.Is(err, stores.ErrNotConnected) {
		t.Errorf("insert: got %v, want ErrNotConnected", err)
	}
	if err := s.InitSchema(ctx, sqlite.Schema); !errors.Is(err, stores.ErrNotConnected) {
		t.Errorf("init schema: got %v, want ErrNotConnected", err)
	}
}

func TestCloseLifecycle(t *testing.T) {
	ctx := context.Background()
	s := sqlite.New("")

	// close before connect is a no-op
	if err := s.Close(); err != nil {
		t.Fatalf("close before connect: %v", err)
	}

	if err := s.Connect(ctx); err != nil {
		t.Fatalf("connect: %v", err)
	}
	if err := s.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}
	if err := s.Close(); err != nil {
		t.Fatalf("second close: %v", err)
	}

	// operations after close fail the same way as before connect
	if _, err := s.UniqueNameCount(ctx, 0); !errors.Is(err, stores.ErrNotConnected) {
		t.Errorf("after close: got %v, want ErrNotConnected", err)
	}

	// the engine can be reconnected
	if err := s.Connect(ctx); err != nil {
		t.Fatalf("reconnect: %v", err)
	}
	defer s.Close()
	if err := s.InitSchema(ctx, sqlite.Schema); err != nil {
		t.Fatalf("init schema after reconnect: %v", err)
	}
}

func TestInMemory(t *testing.T) {
	ctx := context.Background()
	s := sqlite.New("")
	if err := s.Connect(ctx); err != nil {
		t.Fatalf("connect: %v", err)
	}
	defer s.Close()
	if err := s.InitSchema(ctx, sqlite.Schema); err != nil {
		t.Fatalf("init schema: %v", err)
	}
	if err := s.InsertNameBatch(ctx, []model.NameRecord{{Name: "Mary", Gender: model.Female, Count: 10, Year: 1950}}); err != nil {
		t.Fatalf("insert: %v", err)
	}
	cnt, err := s.TableRowCount(ctx, stores.TableNames)
	if err != nil {
		t.Fatalf("row count: %v", err)
	}
	if cnt != 1 {
		t.Errorf("row count: got %d, want 1", cnt)
	}
}

func TestInitSchemaIdempotent(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)
	if err := s.InitSchema(ctx, sqlite.Schema); err != nil {
		t.Fatalf("second init schema: %v", err)
	}
}

func TestInitSchemaBadDDL(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)
	if err := s.InitSchema(ctx, "CREATE BOGUS"); err == nil {
		t.Error("bad ddl: got nil error")
	}
}

func TestChunkedInsert(t *testing.T) {
	// batch larger than one insert chunk still lands every row
	ctx := context.Background()
	s := newTestStore(t)

	recs := make([]model.NameRecord, 2_500)
	for i := range recs {
		recs[i] = model.NameRecord{
			Name:   fmt.Sprintf("Name%04d", i),
			Gender: model.Female,
			Count:  i,
			Year:   1950 + i%50,
		}
	}
	if err := s.InsertNameBatch(ctx, recs); err != nil {
		t.Fatalf("insert: %v", err)
	}

	cnt, err := s.TableRowCount(ctx, stores.TableNames)
	if err != nil {
		t.Fatalf("row count: %v", err)
	}
	if cnt != len(recs) {
		t.Errorf("row count: got %d, want %d", cnt, len(recs))
	}
}

func TestEmptyBatch(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)
	if err := s.InsertNameBatch(ctx, nil); err != nil {
		t.Fatalf("empty batch: %v", err)
	}
	if err := s.InsertStateBatch(ctx, nil); err != nil {
		t.Fatalf("empty state batch: %v", err)
	}
}
