// Copyright (c) 2025 Michael D Henderson. All rights reserved.

package ingest_test

import (
	"archive/zip"
	"bytes"
	"context"
	"errors"
	"reflect"
	"testing"

	"github.com/mdhender/namesdb/model"
	"github.com/mdhender/namesdb/pipelines/ingest"
	"github.com/mdhender/namesdb/stores"
	"github.com/spf13/afero"
)

// mockStore implements stores.Store for testing the pipeline.
type mockStore struct {
	connected   bool
	closes      int
	schema      string
	nameBatches [][]model.NameRecord
	stateBatches [][]model.StateRecord
	indexed     []string
	verified    []string

	insertErr error // returned by InsertNameBatch when set
}

func (m *mockStore) Connect(_ context.Context) error {
	m.connected = true
	return nil
}

func (m *mockStore) Close() error {
	m.closes++
	return nil
}

func (m *mockStore) InitSchema(_ context.Context, ddl string) error {
	m.schema = ddl
	return nil
}

func (m *mockStore) InsertNameBatch(_ context.Context, recs []model.NameRecord) error {
	if m.insertErr != nil {
		return m.insertErr
	}
	m.nameBatches = append(m.nameBatches, recs)
	return nil
}

func (m *mockStore) InsertStateBatch(_ context.Context, recs []model.StateRecord) error {
	m.stateBatches = append(m.stateBatches, recs)
	return nil
}

func (m *mockStore) CreateIndexes(_ context.Context, table string) error {
	m.indexed = append(m.indexed, table)
	return nil
}

func (m *mockStore) NameRecords(_ context.Context, _ string) ([]model.NameRecord, error) {
	return nil, nil
}

func (m *mockStore) NameTrends(_ context.Context, _ string, _ model.Gender) ([]model.YearCount, error) {
	return nil, nil
}

func (m *mockStore) NameStats(_ context.Context, _ string) (*model.NameStats, error) {
	return nil, nil
}

func (m *mockStore) GenderBreakdown(_ context.Context, _ string) ([]model.GenderBreakdown, error) {
	return nil, nil
}

func (m *mockStore) DecadeTrends(_ context.Context, _ string, _ model.Gender) ([]model.DecadeTrend, error) {
	return nil, nil
}

func (m *mockStore) TopNames(_ context.Context, _ int, _ model.Gender, _ int) ([]model.RankedName, error) {
	return nil, nil
}

func (m *mockStore) NameRank(_ context.Context, _ string, _ int, _ model.Gender) (int, bool, error) {
	return 0, false, nil
}

func (m *mockStore) NamesByState(_ context.Context, _, _ string) ([]model.StateRecord, error) {
	return nil, nil
}

func (m *mockStore) StateDistribution(_ context.Context, _ string) ([]model.StateCount, error) {
	return nil, nil
}

func (m *mockStore) SearchNames(_ context.Context, _ string, _ int) ([]model.NameSearchResult, error) {
	return nil, nil
}

func (m *mockStore) UniqueNameCount(_ context.Context, _ int) (int, error) {
	return 0, nil
}

func (m *mockStore) TableRowCount(_ context.Context, table string) (int, error) {
	m.verified = append(m.verified, table)
	var total int
	for _, b := range m.nameBatches {
		total += len(b)
	}
	for _, b := range m.stateBatches {
		total += len(b)
	}
	return total, nil
}

func (m *mockStore) DistinctYearCount(_ context.Context, _ string) (int, error) {
	return 0, nil
}

func (m *mockStore) SampleRows(_ context.Context, _ string, _ int) ([][]string, error) {
	return nil, nil
}

type zipMember struct {
	name    string
	content string
}

func writeZip(t *testing.T, fs afero.Fs, path string, members []zipMember) {
	t.Helper()
	var buf bytes.Buffer
	zw := zip.NewWriter(&buf)
	for _, m := range members {
		w, err := zw.Create(m.name)
		if err != nil {
			t.Fatalf("create zip member %s: %v", m.name, err)
		}
		if _, err := w.Write([]byte(m.content)); err != nil {
			t.Fatalf("write zip member %s: %v", m.name, err)
		}
	}
	if err := zw.Close(); err != nil {
		t.Fatalf("close zip: %v", err)
	}
	if err := afero.WriteFile(fs, path, buf.Bytes(), 0644); err != nil {
		t.Fatalf("write %s: %v", path, err)
	}
}

func newPipeline(t *testing.T, names, states []zipMember) (*ingest.Pipeline, *mockStore) {
	t.Helper()
	fs := afero.NewMemMapFs()
	writeZip(t, fs, "/data/names.zip", names)
	writeZip(t, fs, "/data/namesbystate.zip", states)

	store := &mockStore{}
	p := ingest.New(store, ingest.Config{
		NamesArchive: "/data/names.zip",
		StateArchive: "/data/namesbystate.zip",
		Schema:       "CREATE TABLE IF NOT EXISTS ssa_names (name TEXT)",
	})
	p.SetFS(fs)
	return p, store
}

func TestRun(t *testing.T) {
	p, store := newPipeline(t,
		[]zipMember{
			{name: "yob1950.txt", content: "Mary,F,1000\r\nJohn,M,900\r\n"},
			{name: "yob1951.txt", content: "Mary,F,1100\r\n"},
		},
		[]zipMember{
			{name: "CA.TXT", content: "CA,F,1950,Mary,400\r\n"},
			{name: "NY.TXT", content: "NY,F,1950,Mary,600\r\n"},
		},
	)

	if err := p.Run(context.Background()); err != nil {
		t.Fatalf("run: %v", err)
	}

	if store.schema == "" {
		t.Error("schema was not initialized")
	}

	wantNames := [][]model.NameRecord{
		{
			{Name: "Mary", Gender: model.Female, Count: 1000, Year: 1950},
			{Name: "John", Gender: model.Male, Count: 900, Year: 1950},
		},
		{
			{Name: "Mary", Gender: model.Female, Count: 1100, Year: 1951},
		},
	}
	if !reflect.DeepEqual(store.nameBatches, wantNames) {
		t.Errorf("name batches: got %+v, want %+v", store.nameBatches, wantNames)
	}

	wantStates := [][]model.StateRecord{
		{{State: "CA", Name: "Mary", Gender: model.Female, Count: 400, Year: 1950}},
		{{State: "NY", Name: "Mary", Gender: model.Female, Count: 600, Year: 1950}},
	}
	if !reflect.DeepEqual(store.stateBatches, wantStates) {
		t.Errorf("state batches: got %+v, want %+v", store.stateBatches, wantStates)
	}

	wantIndexed := []string{stores.TableNames, stores.TableStateNames}
	if !reflect.DeepEqual(store.indexed, wantIndexed) {
		t.Errorf("indexed: got %v, want %v", store.indexed, wantIndexed)
	}
	if !reflect.DeepEqual(store.verified, wantIndexed) {
		t.Errorf("verified: got %v, want %v", store.verified, wantIndexed)
	}

	if store.closes != 1 {
		t.Errorf("closes: got %d, want 1", store.closes)
	}
}

func TestSkipsFileWithoutYear(t *testing.T) {
	// a member with no 4-digit year contributes zero rows and does not
	// abort the run
	p, store := newPipeline(t,
		[]zipMember{
			{name: "readme.txt", content: "Mary,F,1000\n"},
			{name: "yob1950.txt", content: "Mary,F,1000\n"},
		},
		nil,
	)

	if err := p.Run(context.Background()); err != nil {
		t.Fatalf("run: %v", err)
	}

	if len(store.nameBatches) != 1 {
		t.Fatalf("name batches: got %d, want 1", len(store.nameBatches))
	}
	if store.nameBatches[0][0].Year != 1950 {
		t.Errorf("year: got %d, want 1950", store.nameBatches[0][0].Year)
	}
}

func TestSkipsNonDataMembers(t *testing.T) {
	p, store := newPipeline(t,
		[]zipMember{
			{name: "NationalReadMe1999.pdf", content: "not data"},
			{name: "yob1950.txt", content: "Mary,F,1000\n"},
		},
		nil,
	)

	if err := p.Run(context.Background()); err != nil {
		t.Fatalf("run: %v", err)
	}
	if len(store.nameBatches) != 1 {
		t.Errorf("name batches: got %d, want 1", len(store.nameBatches))
	}
}

func TestDropsMalformedRows(t *testing.T) {
	p, store := newPipeline(t,
		[]zipMember{
			{name: "yob1950.txt", content: "Mary,F,1000\n" +
				"too,many,fields,here\n" +
				"short,row\n" +
				"Bob,X,100\n" +
				"Carol,F,notanumber\n" +
				"Dave,M,-5\n" +
				"\n" +
				"John,M,900\n"},
		},
		nil,
	)

	if err := p.Run(context.Background()); err != nil {
		t.Fatalf("run: %v", err)
	}

	want := [][]model.NameRecord{{
		{Name: "Mary", Gender: model.Female, Count: 1000, Year: 1950},
		{Name: "John", Gender: model.Male, Count: 900, Year: 1950},
	}}
	if !reflect.DeepEqual(store.nameBatches, want) {
		t.Errorf("name batches: got %+v, want %+v", store.nameBatches, want)
	}
}

func TestDropsMalformedStateRows(t *testing.T) {
	p, store := newPipeline(t,
		nil,
		[]zipMember{
			{name: "CA.TXT", content: "CA,F,1950,Mary,400\n" +
				"CA,F,notayear,Mary,400\n" +
				"CA,F,1950,Mary\n" +
				"CA,F,1950,Mary,bad\n"},
		},
	)

	if err := p.Run(context.Background()); err != nil {
		t.Fatalf("run: %v", err)
	}

	want := [][]model.StateRecord{{
		{State: "CA", Name: "Mary", Gender: model.Female, Count: 400, Year: 1950},
	}}
	if !reflect.DeepEqual(store.stateBatches, want) {
		t.Errorf("state batches: got %+v, want %+v", store.stateBatches, want)
	}
}

func TestInsertErrorAbortsRun(t *testing.T) {
	p, store := newPipeline(t,
		[]zipMember{{name: "yob1950.txt", content: "Mary,F,1000\n"}},
		nil,
	)
	store.insertErr = errors.New("disk full")

	err := p.Run(context.Background())
	if err == nil {
		t.Fatal("run: got nil error")
	}
	var dbErr *ingest.ErrDatabase
	if !errors.As(err, &dbErr) {
		t.Errorf("run: got %T, want *ingest.ErrDatabase", err)
	}

	// the session is released even on failure
	if store.closes != 1 {
		t.Errorf("closes: got %d, want 1", store.closes)
	}

	// nothing past the national load ran
	if len(store.indexed) != 0 {
		t.Errorf("indexed: got %v, want none", store.indexed)
	}
}

func TestMissingArchive(t *testing.T) {
	fs := afero.NewMemMapFs()
	store := &mockStore{}
	p := ingest.New(store, ingest.Config{
		NamesArchive: "/data/missing.zip",
		StateArchive: "/data/missing-too.zip",
		Schema:       "CREATE TABLE IF NOT EXISTS ssa_names (name TEXT)",
	})
	p.SetFS(fs)

	err := p.Run(context.Background())
	if err == nil {
		t.Fatal("run: got nil error")
	}
	var archErr *ingest.ErrArchive
	if !errors.As(err, &archErr) {
		t.Errorf("run: got %T, want *ingest.ErrArchive", err)
	}
	if store.closes != 1 {
		t.Errorf("closes: got %d, want 1", store.closes)
	}
}
