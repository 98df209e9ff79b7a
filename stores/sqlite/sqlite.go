// Copyright (c) 2025 Michael D Henderson. All rights reserved.

// Package sqlite implements the backend contract against a single-file
// embedded SQLite database. Suitable for local development and
// single-server deployments; opening the same file from more than one
// process requires external serialization.
package sqlite

import (
	"context"
	"database/sql"
	_ "embed"
	"fmt"
	"os"
	"strings"

	"github.com/mdhender/namesdb/model"
	"github.com/mdhender/namesdb/stores"
	_ "modernc.org/sqlite"
)

//go:embed schema.sql
var Schema string

// insertChunk bounds the rows per bulk INSERT statement. Each chunk commits
// on its own, so a mid-batch failure leaves a partial load. Smaller than the
// Postgres chunk since there are no round trips to amortize.
const insertChunk = 1_000

// Store is the SQLite engine. It owns at most one open session; concurrent
// callers serialize through it.
type Store struct {
	path string
	db   *sql.DB
}

var _ stores.Store = (*Store)(nil)

// New returns an unconnected engine for the database file at path.
// An empty path selects an in-memory database.
func New(path string) *Store {
	return &Store{path: path}
}

// Connect opens the database, creating the file if it does not exist.
func (s *Store) Connect(ctx context.Context) error {
	if s.db != nil {
		return nil
	}

	var dsn string
	if s.path == "" {
		dsn = ":memory:"
	} else {
		// Apply PRAGMA's per-connection via DSN so the pool always has them.
		// modernc.org/sqlite supports repeated _pragma=... parameters.
		dsn = fmt.Sprintf(
			"file:%s?_pragma=journal_mode(WAL)&_pragma=synchronous(NORMAL)&_pragma=busy_timeout(5000)",
			s.path,
		)
	}

	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return fmt.Errorf("open database: %w", err)
	}
	// One session per engine instance.
	db.SetMaxOpenConns(1)
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return fmt.Errorf("ping database: %w", err)
	}

	s.db = db
	return nil
}

// Close releases the session. Safe to call multiple times and after a
// failed Connect.
func (s *Store) Close() error {
	if s.db == nil {
		return nil
	}
	db := s.db
	s.db = nil
	return db.Close()
}

// InitDatabase creates a new SQLite database file and initializes the schema.
// Returns an error if the file already exists.
func InitDatabase(ctx context.Context, path string) error {
	if path == "" {
		return fmt.Errorf("database path is required")
	}
	if _, err := os.Stat(path); err == nil {
		return fmt.Errorf("database file already exists: %s", path)
	}

	s := New(path)
	if err := s.Connect(ctx); err != nil {
		return err
	}
	defer s.Close()

	return s.InitSchema(ctx, Schema)
}

func (s *Store) conn() (*sql.DB, error) {
	if s.db == nil {
		return nil, stores.ErrNotConnected
	}
	return s.db, nil
}

// InitSchema executes a DDL script. SQLite runs the whole script in one call.
func (s *Store) InitSchema(ctx context.Context, ddl string) error {
	db, err := s.conn()
	if err != nil {
		return err
	}
	if _, err := db.ExecContext(ctx, ddl); err != nil {
		return fmt.Errorf("exec schema: %w", err)
	}
	return nil
}

// InsertNameBatch bulk-inserts national rows, chunked.
func (s *Store) InsertNameBatch(ctx context.Context, recs []model.NameRecord) error {
	db, err := s.conn()
	if err != nil {
		return err
	}
	for start := 0; start < len(recs); start += insertChunk {
		chunk := recs[start:min(start+insertChunk, len(recs))]
		var sb strings.Builder
		sb.WriteString("INSERT INTO ssa_names (name, gender, count, year) VALUES ")
		args := make([]any, 0, len(chunk)*4)
		for i, r := range chunk {
			if i > 0 {
				sb.WriteByte(',')
			}
			sb.WriteString("(?, ?, ?, ?)")
			args = append(args, r.Name, string(r.Gender), r.Count, r.Year)
		}
		if _, err := db.ExecContext(ctx, sb.String(), args...); err != nil {
			return fmt.Errorf("insert names: %w", err)
		}
	}
	return nil
}

// InsertStateBatch bulk-inserts state rows, chunked.
func (s *Store) InsertStateBatch(ctx context.Context, recs []model.StateRecord) error {
	db, err := s.conn()
	if err != nil {
		return err
	}
	for start := 0; start < len(recs); start += insertChunk {
		chunk := recs[start:min(start+insertChunk, len(recs))]
		var sb strings.Builder
		sb.WriteString("INSERT INTO ssa_names_by_state (state, name, gender, count, year) VALUES ")
		args := make([]any, 0, len(chunk)*5)
		for i, r := range chunk {
			if i > 0 {
				sb.WriteByte(',')
			}
			sb.WriteString("(?, ?, ?, ?, ?)")
			args = append(args, r.State, r.Name, string(r.Gender), r.Count, r.Year)
		}
		if _, err := db.ExecContext(ctx, sb.String(), args...); err != nil {
			return fmt.Errorf("insert state names: %w", err)
		}
	}
	return nil
}

// CreateIndexes creates the lookup indexes on table. Idempotent.
func (s *Store) CreateIndexes(ctx context.Context, table string) error {
	db, err := s.conn()
	if err != nil {
		return err
	}
	if !stores.ValidTable(table) {
		return fmt.Errorf("%w: %s", stores.ErrUnknownTable, table)
	}
	for _, ddl := range []string{
		fmt.Sprintf("CREATE INDEX IF NOT EXISTS idx_%s_name ON %s(name)", table, table),
		fmt.Sprintf("CREATE INDEX IF NOT EXISTS idx_%s_year ON %s(year)", table, table),
		fmt.Sprintf("CREATE INDEX IF NOT EXISTS idx_%s_name_year ON %s(name, year)", table, table),
	} {
		if _, err := db.ExecContext(ctx, ddl); err != nil {
			return fmt.Errorf("create index: %w", err)
		}
	}
	return nil
}

// NameRecords returns every national row for name.
func (s *Store) NameRecords(ctx context.Context, name string) ([]model.NameRecord, error) {
	db, err := s.conn()
	if err != nil {
		return nil, err
	}

	const query = `
		SELECT name, gender, count, year
		FROM ssa_names
		WHERE LOWER(name) = LOWER(?)
		ORDER BY year, gender
	`
	rows, err := db.QueryContext(ctx, query, name)
	if err != nil {
		return nil, fmt.Errorf("query name records: %w", err)
	}
	defer rows.Close()

	var recs []model.NameRecord
	for rows.Next() {
		var r model.NameRecord
		var gender string
		if err := rows.Scan(&r.Name, &gender, &r.Count, &r.Year); err != nil {
			return nil, fmt.Errorf("scan name record: %w", err)
		}
		r.Gender = model.Gender(gender)
		recs = append(recs, r)
	}
	return recs, rows.Err()
}

// NameTrends returns summed counts per year for name.
func (s *Store) NameTrends(ctx context.Context, name string, gender model.Gender) ([]model.YearCount, error) {
	db, err := s.conn()
	if err != nil {
		return nil, err
	}

	query := `SELECT year, SUM(count) FROM ssa_names WHERE LOWER(name) = LOWER(?)`
	args := []any{name}
	if gender != "" {
		query += ` AND gender = ?`
		args = append(args, string(gender))
	}
	query += ` GROUP BY year ORDER BY year`

	rows, err := db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query name trends: %w", err)
	}
	defer rows.Close()

	var trends []model.YearCount
	for rows.Next() {
		var yc model.YearCount
		if err := rows.Scan(&yc.Year, &yc.Count); err != nil {
			return nil, fmt.Errorf("scan year count: %w", err)
		}
		trends = append(trends, yc)
	}
	return trends, rows.Err()
}

// NameStats returns aggregate statistics for name, or nil if the name has
// no rows. The peak year is the year of the single row with the highest
// count, earliest year winning ties on both engines.
func (s *Store) NameStats(ctx context.Context, name string) (*model.NameStats, error) {
	db, err := s.conn()
	if err != nil {
		return nil, err
	}

	const summary = `
		SELECT SUM(count), MAX(count), MIN(year), MAX(year)
		FROM ssa_names
		WHERE LOWER(name) = LOWER(?)
	`
	var total, peakCount, firstYear, lastYear sql.NullInt64
	if err := db.QueryRowContext(ctx, summary, name).Scan(&total, &peakCount, &firstYear, &lastYear); err != nil {
		return nil, fmt.Errorf("query name stats: %w", err)
	}
	if !total.Valid {
		return nil, nil
	}

	const peak = `
		SELECT year FROM ssa_names
		WHERE LOWER(name) = LOWER(?)
		ORDER BY count DESC, year
		LIMIT 1
	`
	var peakYear int
	if err := db.QueryRowContext(ctx, peak, name).Scan(&peakYear); err != nil {
		return nil, fmt.Errorf("query peak year: %w", err)
	}

	breakdown, err := s.GenderBreakdown(ctx, name)
	if err != nil {
		return nil, err
	}

	return &model.NameStats{
		Name:            name,
		TotalCount:      int(total.Int64),
		PeakYear:        peakYear,
		PeakCount:       int(peakCount.Int64),
		FirstYear:       int(firstYear.Int64),
		LastYear:        int(lastYear.Int64),
		GenderBreakdown: breakdown,
	}, nil
}

// GenderBreakdown returns summed counts per gender for name.
func (s *Store) GenderBreakdown(ctx context.Context, name string) ([]model.GenderBreakdown, error) {
	db, err := s.conn()
	if err != nil {
		return nil, err
	}

	const query = `
		SELECT gender, SUM(count)
		FROM ssa_names
		WHERE LOWER(name) = LOWER(?)
		GROUP BY gender
		ORDER BY gender
	`
	rows, err := db.QueryContext(ctx, query, name)
	if err != nil {
		return nil, fmt.Errorf("query gender breakdown: %w", err)
	}
	defer rows.Close()

	var breakdown []model.GenderBreakdown
	for rows.Next() {
		var gb model.GenderBreakdown
		var gender string
		if err := rows.Scan(&gender, &gb.TotalCount); err != nil {
			return nil, fmt.Errorf("scan gender breakdown: %w", err)
		}
		gb.Gender = model.Gender(gender)
		breakdown = append(breakdown, gb)
	}
	return breakdown, rows.Err()
}

// DecadeTrends returns summed counts per decade for name.
func (s *Store) DecadeTrends(ctx context.Context, name string, gender model.Gender) ([]model.DecadeTrend, error) {
	db, err := s.conn()
	if err != nil {
		return nil, err
	}

	query := `SELECT (year / 10) * 10 AS decade, SUM(count) FROM ssa_names WHERE LOWER(name) = LOWER(?)`
	args := []any{name}
	if gender != "" {
		query += ` AND gender = ?`
		args = append(args, string(gender))
	}
	query += ` GROUP BY decade ORDER BY decade`

	rows, err := db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query decade trends: %w", err)
	}
	defer rows.Close()

	var trends []model.DecadeTrend
	for rows.Next() {
		var dt model.DecadeTrend
		if err := rows.Scan(&dt.Decade, &dt.Count); err != nil {
			return nil, fmt.Errorf("scan decade trend: %w", err)
		}
		trends = append(trends, dt)
	}
	return trends, rows.Err()
}

// TopNames returns up to limit ranked names for year, optionally filtered
// by gender. With gender "" the ranking mixes both genders into a single
// partition for the year.
func (s *Store) TopNames(ctx context.Context, year int, gender model.Gender, limit int) ([]model.RankedName, error) {
	db, err := s.conn()
	if err != nil {
		return nil, err
	}

	query := `
		SELECT name, gender, count,
		       ROW_NUMBER() OVER (ORDER BY count DESC, name, gender) AS rank
		FROM ssa_names
		WHERE year = ?`
	args := []any{year}
	if gender != "" {
		query += ` AND gender = ?`
		args = append(args, string(gender))
	}
	query += `
		ORDER BY rank
		LIMIT ?`
	args = append(args, limit)

	rows, err := db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query top names: %w", err)
	}
	defer rows.Close()

	var ranked []model.RankedName
	for rows.Next() {
		var rn model.RankedName
		var g string
		if err := rows.Scan(&rn.Name, &g, &rn.Count, &rn.Rank); err != nil {
			return nil, fmt.Errorf("scan ranked name: %w", err)
		}
		rn.Gender = model.Gender(g)
		ranked = append(ranked, rn)
	}
	return ranked, rows.Err()
}

// NameRank returns the rank of name within its year+gender partition.
// The bool is false when the name has no row in that partition.
func (s *Store) NameRank(ctx context.Context, name string, year int, gender model.Gender) (int, bool, error) {
	db, err := s.conn()
	if err != nil {
		return 0, false, err
	}

	const query = `
		SELECT rank FROM (
			SELECT name,
			       ROW_NUMBER() OVER (ORDER BY count DESC, name, gender) AS rank
			FROM ssa_names
			WHERE year = ? AND gender = ?
		) ranked
		WHERE LOWER(name) = LOWER(?)
	`
	var rank int
	err = db.QueryRowContext(ctx, query, year, string(gender), name).Scan(&rank)
	if err == sql.ErrNoRows {
		return 0, false, nil
	}
	if err != nil {
		return 0, false, fmt.Errorf("query name rank: %w", err)
	}
	return rank, true, nil
}

// NamesByState returns state-level rows for name, optionally narrowed to
// one state.
func (s *Store) NamesByState(ctx context.Context, name, state string) ([]model.StateRecord, error) {
	db, err := s.conn()
	if err != nil {
		return nil, err
	}

	query := `
		SELECT state, name, gender, count, year
		FROM ssa_names_by_state
		WHERE LOWER(name) = LOWER(?)`
	args := []any{name}
	if state != "" {
		query += ` AND state = ?`
		args = append(args, state)
	}
	query += ` ORDER BY year, state, gender`

	rows, err := db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query state records: %w", err)
	}
	defer rows.Close()

	var recs []model.StateRecord
	for rows.Next() {
		var r model.StateRecord
		var gender string
		if err := rows.Scan(&r.State, &r.Name, &gender, &r.Count, &r.Year); err != nil {
			return nil, fmt.Errorf("scan state record: %w", err)
		}
		r.Gender = model.Gender(gender)
		recs = append(recs, r)
	}
	return recs, rows.Err()
}

// StateDistribution returns summed counts per state for name.
func (s *Store) StateDistribution(ctx context.Context, name string) ([]model.StateCount, error) {
	db, err := s.conn()
	if err != nil {
		return nil, err
	}

	const query = `
		SELECT state, SUM(count) AS count
		FROM ssa_names_by_state
		WHERE LOWER(name) = LOWER(?)
		GROUP BY state
		ORDER BY count DESC, state
	`
	rows, err := db.QueryContext(ctx, query, name)
	if err != nil {
		return nil, fmt.Errorf("query state distribution: %w", err)
	}
	defer rows.Close()

	var counts []model.StateCount
	for rows.Next() {
		var sc model.StateCount
		if err := rows.Scan(&sc.State, &sc.Count); err != nil {
			return nil, fmt.Errorf("scan state count: %w", err)
		}
		counts = append(counts, sc)
	}
	return counts, rows.Err()
}

// SearchNames returns names matching prefix, ordered by total popularity.
func (s *Store) SearchNames(ctx context.Context, prefix string, limit int) ([]model.NameSearchResult, error) {
	db, err := s.conn()
	if err != nil {
		return nil, err
	}

	const query = `
		SELECT name, SUM(count) AS total_count
		FROM ssa_names
		WHERE LOWER(name) LIKE LOWER(?) || '%'
		GROUP BY name
		ORDER BY total_count DESC, name
		LIMIT ?
	`
	rows, err := db.QueryContext(ctx, query, prefix, limit)
	if err != nil {
		return nil, fmt.Errorf("query search names: %w", err)
	}
	defer rows.Close()

	var results []model.NameSearchResult
	for rows.Next() {
		var nr model.NameSearchResult
		if err := rows.Scan(&nr.Name, &nr.TotalCount); err != nil {
			return nil, fmt.Errorf("scan search result: %w", err)
		}
		results = append(results, nr)
	}
	return results, rows.Err()
}

// UniqueNameCount returns the number of distinct names, restricted to year
// when year is non-zero.
func (s *Store) UniqueNameCount(ctx context.Context, year int) (int, error) {
	db, err := s.conn()
	if err != nil {
		return 0, err
	}

	var cnt int
	if year != 0 {
		err = db.QueryRowContext(ctx, `SELECT COUNT(DISTINCT name) FROM ssa_names WHERE year = ?`, year).Scan(&cnt)
	} else {
		err = db.QueryRowContext(ctx, `SELECT COUNT(DISTINCT name) FROM ssa_names`).Scan(&cnt)
	}
	if err != nil {
		return 0, fmt.Errorf("query unique name count: %w", err)
	}
	return cnt, nil
}

// TableRowCount returns the number of rows in table.
func (s *Store) TableRowCount(ctx context.Context, table string) (int, error) {
	db, err := s.conn()
	if err != nil {
		return 0, err
	}
	if !stores.ValidTable(table) {
		return 0, fmt.Errorf("%w: %s", stores.ErrUnknownTable, table)
	}
	var cnt int
	if err := db.QueryRowContext(ctx, fmt.Sprintf("SELECT COUNT(*) FROM %s", table)).Scan(&cnt); err != nil {
		return 0, fmt.Errorf("query row count: %w", err)
	}
	return cnt, nil
}

// DistinctYearCount returns the number of distinct years in table.
func (s *Store) DistinctYearCount(ctx context.Context, table string) (int, error) {
	db, err := s.conn()
	if err != nil {
		return 0, err
	}
	if !stores.ValidTable(table) {
		return 0, fmt.Errorf("%w: %s", stores.ErrUnknownTable, table)
	}
	var cnt int
	if err := db.QueryRowContext(ctx, fmt.Sprintf("SELECT COUNT(DISTINCT year) FROM %s", table)).Scan(&cnt); err != nil {
		return 0, fmt.Errorf("query distinct years: %w", err)
	}
	return cnt, nil
}

// SampleRows returns up to limit rows from table, each formatted as strings.
// Used only for post-load verification logging.
func (s *Store) SampleRows(ctx context.Context, table string, limit int) ([][]string, error) {
	db, err := s.conn()
	if err != nil {
		return nil, err
	}
	if !stores.ValidTable(table) {
		return nil, fmt.Errorf("%w: %s", stores.ErrUnknownTable, table)
	}

	rows, err := db.QueryContext(ctx, fmt.Sprintf("SELECT * FROM %s LIMIT ?", table), limit)
	if err != nil {
		return nil, fmt.Errorf("query sample rows: %w", err)
	}
	defer rows.Close()

	return scanSampleRows(rows)
}

func scanSampleRows(rows *sql.Rows) ([][]string, error) {
	cols, err := rows.Columns()
	if err != nil {
		return nil, fmt.Errorf("sample columns: %w", err)
	}

	var samples [][]string
	for rows.Next() {
		values := make([]any, len(cols))
		valuePtrs := make([]any, len(cols))
		for i := range values {
			valuePtrs[i] = &values[i]
		}
		if err := rows.Scan(valuePtrs...); err != nil {
			return nil, fmt.Errorf("scan sample row: %w", err)
		}

		row := make([]string, len(cols))
		for i, v := range values {
			if v == nil {
				row[i] = "NULL"
			} else {
				row[i] = fmt.Sprintf("%v", v)
			}
		}
		samples = append(samples, row)
	}
	return samples, rows.Err()
}
