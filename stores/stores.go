// Copyright (c) 2025 Michael D Henderson. All rights reserved.

// Package stores defines the backend contract for the names database.
// Every storage engine implements Store; callers depend only on this
// interface, never on a concrete engine. The two shipped engines
// (stores/sqlite and stores/postgres) must return identical results for
// identical data, so every operation here pins its ordering and its
// behavior on empty matches.
package stores

import (
	"context"
	"errors"

	"github.com/mdhender/namesdb/model"
)

// Table names for the two persisted entity kinds.
const (
	TableNames      = "ssa_names"
	TableStateNames = "ssa_names_by_state"
)

// ErrNotConnected is returned by any operation issued before Connect
// succeeds. This is a programmer error, not a condition to retry.
var ErrNotConnected = errors.New("store: not connected")

// ErrUnknownTable is returned by operations that take a table name when the
// name is not one of TableNames or TableStateNames.
var ErrUnknownTable = errors.New("store: unknown table")

// ValidTable reports whether table names one of the two persisted tables.
func ValidTable(table string) bool {
	return table == TableNames || table == TableStateNames
}

// Store is the capability set every storage engine must implement.
//
// Name and state arguments are literal match keys: they are passed through
// parameterized substitution only, and a key that matches nothing yields an
// empty result, not an error. Name comparison is case-insensitive on every
// engine, as if both sides were lower-cased first.
//
// A gender argument of "" means "both genders" wherever the parameter is
// optional. Note the sharp edge this inherits from the original system:
// TopNames with gender "" computes a single ranking across both genders
// combined for the year, not two merged per-gender rankings.
type Store interface {
	// Connect acquires the underlying session. Engines hold at most one
	// open session; concurrent callers serialize through it.
	Connect(ctx context.Context) error
	// Close releases the session. Safe to call multiple times and after a
	// failed Connect.
	Close() error

	// InitSchema executes a DDL script creating both tables. The script is
	// expected to be idempotent (CREATE TABLE IF NOT EXISTS style).
	InitSchema(ctx context.Context, ddl string) error
	// InsertNameBatch appends rows to ssa_names in one or more internally
	// chunked bulk statements, committing per chunk. A mid-batch failure
	// leaves a partial load; nothing is rolled back.
	InsertNameBatch(ctx context.Context, recs []model.NameRecord) error
	// InsertStateBatch is InsertNameBatch for ssa_names_by_state.
	InsertStateBatch(ctx context.Context, recs []model.StateRecord) error
	// CreateIndexes creates the (name), (year), and (name, year) indexes on
	// table. Idempotent.
	CreateIndexes(ctx context.Context, table string) error

	// NameRecords returns every national row for name, ordered by year
	// then gender.
	NameRecords(ctx context.Context, name string) ([]model.NameRecord, error)
	// NameTrends returns summed counts per year for name, ordered by year
	// ascending.
	NameTrends(ctx context.Context, name string, gender model.Gender) ([]model.YearCount, error)
	// NameStats returns aggregate statistics for name, or nil if the name
	// has no rows.
	NameStats(ctx context.Context, name string) (*model.NameStats, error)
	// GenderBreakdown returns summed counts per gender for name, ordered by
	// gender.
	GenderBreakdown(ctx context.Context, name string) ([]model.GenderBreakdown, error)
	// DecadeTrends returns summed counts per decade for name, ordered by
	// decade ascending.
	DecadeTrends(ctx context.Context, name string, gender model.Gender) ([]model.DecadeTrend, error)
	// TopNames returns up to limit names for year (and gender, if given),
	// ordered by count descending with a dense rank starting at 1 over the
	// selected partition. Ties order by name then gender so both engines
	// agree.
	TopNames(ctx context.Context, year int, gender model.Gender, limit int) ([]model.RankedName, error)
	// NameRank returns the rank of name within its year+gender partition,
	// computed exactly as TopNames would. The bool is false when the name
	// has no row in that partition.
	NameRank(ctx context.Context, name string, year int, gender model.Gender) (int, bool, error)
	// NamesByState returns state-level rows for name, optionally narrowed
	// to one state, ordered by year, state, gender.
	NamesByState(ctx context.Context, name, state string) ([]model.StateRecord, error)
	// StateDistribution returns summed counts per state for name, ordered
	// by count descending then state.
	StateDistribution(ctx context.Context, name string) ([]model.StateCount, error)
	// SearchNames returns up to limit names whose lower-cased form starts
	// with the lower-cased prefix, grouped and summed, ordered by total
	// count descending then name.
	SearchNames(ctx context.Context, prefix string, limit int) ([]model.NameSearchResult, error)
	// UniqueNameCount returns the number of distinct names, restricted to
	// year when year is non-zero.
	UniqueNameCount(ctx context.Context, year int) (int, error)

	// Verification utilities used by the ingestion pipeline.
	TableRowCount(ctx context.Context, table string) (int, error)
	DistinctYearCount(ctx context.Context, table string) (int, error)
	SampleRows(ctx context.Context, table string, limit int) ([][]string, error)
}
