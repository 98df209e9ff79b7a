// Copyright (c) 2025 Michael D Henderson. All rights reserved.

// Package ingest loads the SSA name archives into a storage engine.
//
// The pipeline is a linear state machine: schema init, national load,
// national indexing and verification, state load, state indexing and
// verification. Row- and file-level problems are logged and skipped;
// schema, connection, and store errors abort the run. Partial loads are
// never rolled back.
package ingest

import (
	"archive/zip"
	"context"
	"fmt"
	"io"
	"log"
	"regexp"
	"strconv"
	"strings"

	"github.com/mdhender/namesdb/model"
	"github.com/mdhender/namesdb/stores"
	"github.com/spf13/afero"
	"golang.org/x/sync/errgroup"
)

// yearPattern matches the 4-digit year embedded in national member names,
// e.g. yob1880.txt.
var yearPattern = regexp.MustCompile(`\d{4}`)

// Config holds the pipeline inputs.
type Config struct {
	// NamesArchive is the national zip. Member lines are name,gender,count
	// with the year taken from the member filename.
	NamesArchive string

	// StateArchive is the state-level zip. Member lines are
	// state,gender,year,name,count.
	StateArchive string

	// Schema is the DDL script for the target engine's dialect.
	Schema string
}

// Pipeline drives a full load through a backend contract implementation.
type Pipeline struct {
	store stores.Store
	cfg   Config
	fs    afero.Fs
}

// New creates a Pipeline for an unconnected store.
func New(store stores.Store, cfg Config) *Pipeline {
	return &Pipeline{
		store: store,
		cfg:   cfg,
		fs:    afero.NewOsFs(),
	}
}

// SetFS sets the filesystem for testing.
func (p *Pipeline) SetFS(fs afero.Fs) {
	p.fs = fs
}

// Run executes the full pipeline. It owns the store session for the
// duration: Connect on entry and Close on the way out, including on
// failure.
func (p *Pipeline) Run(ctx context.Context) error {
	if err := p.store.Connect(ctx); err != nil {
		return fmt.Errorf("connect: %w", err)
	}
	defer p.store.Close()

	log.Printf("ingest: initializing database schema")
	if err := p.store.InitSchema(ctx, p.cfg.Schema); err != nil {
		return &ErrDatabase{Op: "init schema", Err: err}
	}

	if err := p.loadNames(ctx); err != nil {
		return err
	}
	if err := p.store.CreateIndexes(ctx, stores.TableNames); err != nil {
		return &ErrDatabase{Op: "create indexes " + stores.TableNames, Err: err}
	}
	if err := p.verify(ctx, stores.TableNames); err != nil {
		return err
	}

	if err := p.loadStateNames(ctx); err != nil {
		return err
	}
	if err := p.store.CreateIndexes(ctx, stores.TableStateNames); err != nil {
		return &ErrDatabase{Op: "create indexes " + stores.TableStateNames, Err: err}
	}
	if err := p.verify(ctx, stores.TableStateNames); err != nil {
		return err
	}

	return nil
}

type nameBatch struct {
	member  string
	recs    []model.NameRecord
	skipped int
}

// loadNames walks the national archive. Parsing runs one goroutine ahead
// of the database so extraction overlaps the bulk inserts; the inserts
// themselves stay serialized on this goroutine to keep one file's rows
// resident at a time.
func (p *Pipeline) loadNames(ctx context.Context) error {
	log.Printf("ingest: opening archive %s", p.cfg.NamesArchive)
	zr, closeArchive, err := p.openArchive(p.cfg.NamesArchive)
	if err != nil {
		return err
	}
	defer closeArchive()

	members := dataMembers(zr)
	log.Printf("ingest: found %d data files in archive", len(members))

	g, ctx := errgroup.WithContext(ctx)
	batches := make(chan nameBatch, 2)

	g.Go(func() error {
		defer close(batches)
		for _, member := range members {
			year, ok := yearFromFilename(member.Name)
			if !ok {
				log.Printf("ingest: skipping %s: no 4-digit year in filename", member.Name)
				continue
			}
			recs, skipped, err := parseNameMember(member, year)
			if err != nil {
				return err
			}
			select {
			case batches <- nameBatch{member: member.Name, recs: recs, skipped: skipped}:
			case <-ctx.Done():
				return ctx.Err()
			}
		}
		return nil
	})

	var files, total int
	g.Go(func() error {
		for b := range batches {
			if err := p.store.InsertNameBatch(ctx, b.recs); err != nil {
				return &ErrDatabase{Op: "insert " + b.member, Err: err}
			}
			files++
			total += len(b.recs)
			logMember(b.member, len(b.recs), b.skipped)
		}
		return nil
	})

	if err := g.Wait(); err != nil {
		return err
	}
	log.Printf("ingest: national data complete: %d files, %d records", files, total)
	return nil
}

type stateBatch struct {
	member  string
	recs    []model.StateRecord
	skipped int
}

// loadStateNames is loadNames for the state-level archive. State members
// carry the year in each row, so filenames are not matched against
// yearPattern.
func (p *Pipeline) loadStateNames(ctx context.Context) error {
	log.Printf("ingest: opening archive %s", p.cfg.StateArchive)
	zr, closeArchive, err := p.openArchive(p.cfg.StateArchive)
	if err != nil {
		return err
	}
	defer closeArchive()

	members := dataMembers(zr)
	log.Printf("ingest: found %d data files in archive", len(members))

	g, ctx := errgroup.WithContext(ctx)
	batches := make(chan stateBatch, 2)

	g.Go(func() error {
		defer close(batches)
		for _, member := range members {
			recs, skipped, err := parseStateMember(member)
			if err != nil {
				return err
			}
			select {
			case batches <- stateBatch{member: member.Name, recs: recs, skipped: skipped}:
			case <-ctx.Done():
				return ctx.Err()
			}
		}
		return nil
	})

	var files, total int
	g.Go(func() error {
		for b := range batches {
			if err := p.store.InsertStateBatch(ctx, b.recs); err != nil {
				return &ErrDatabase{Op: "insert " + b.member, Err: err}
			}
			files++
			total += len(b.recs)
			logMember(b.member, len(b.recs), b.skipped)
		}
		return nil
	})

	if err := g.Wait(); err != nil {
		return err
	}
	log.Printf("ingest: state data complete: %d files, %d records", files, total)
	return nil
}

// verify logs basic sanity-check numbers for table after a load.
func (p *Pipeline) verify(ctx context.Context, table string) error {
	total, err := p.store.TableRowCount(ctx, table)
	if err != nil {
		return &ErrDatabase{Op: "verify " + table, Err: err}
	}
	years, err := p.store.DistinctYearCount(ctx, table)
	if err != nil {
		return &ErrDatabase{Op: "verify " + table, Err: err}
	}
	samples, err := p.store.SampleRows(ctx, table, 5)
	if err != nil {
		return &ErrDatabase{Op: "verify " + table, Err: err}
	}

	log.Printf("ingest: %s: %d records across %d years", table, total, years)
	for _, row := range samples {
		log.Printf("ingest: %s: sample (%s)", table, strings.Join(row, ", "))
	}
	return nil
}

func (p *Pipeline) openArchive(path string) (*zip.Reader, func() error, error) {
	f, err := p.fs.Open(path)
	if err != nil {
		return nil, nil, &ErrArchive{Path: path, Err: err}
	}
	fi, err := f.Stat()
	if err != nil {
		f.Close()
		return nil, nil, &ErrArchive{Path: path, Err: err}
	}
	zr, err := zip.NewReader(f, fi.Size())
	if err != nil {
		f.Close()
		return nil, nil, &ErrArchive{Path: path, Err: err}
	}
	return zr, f.Close, nil
}

// dataMembers filters the archive to its .txt and .csv members.
func dataMembers(zr *zip.Reader) []*zip.File {
	var members []*zip.File
	for _, f := range zr.File {
		name := strings.ToLower(f.Name)
		if strings.HasSuffix(name, ".txt") || strings.HasSuffix(name, ".csv") {
			members = append(members, f)
		}
	}
	return members
}

// yearFromFilename extracts a 4-digit year from a member name,
// e.g. yob1880.txt.
func yearFromFilename(name string) (int, bool) {
	m := yearPattern.FindString(name)
	if m == "" {
		return 0, false
	}
	year, err := strconv.Atoi(m)
	if err != nil {
		return 0, false
	}
	return year, true
}

// parseNameMember reads one national member. Rows that do not have exactly
// three fields, a valid gender, and a non-negative count are dropped and
// counted, never fatal.
func parseNameMember(member *zip.File, year int) ([]model.NameRecord, int, error) {
	lines, err := readMember(member)
	if err != nil {
		return nil, 0, err
	}

	var recs []model.NameRecord
	var skipped int
	for _, line := range lines {
		fields := strings.Split(line, ",")
		if len(fields) != 3 {
			skipped++
			continue
		}
		gender, ok := model.ParseGender(fields[1])
		if !ok {
			skipped++
			continue
		}
		count, err := strconv.Atoi(fields[2])
		if err != nil || count < 0 {
			skipped++
			continue
		}
		recs = append(recs, model.NameRecord{
			Name:   fields[0],
			Gender: gender,
			Count:  count,
			Year:   year,
		})
	}
	return recs, skipped, nil
}

// parseStateMember reads one state-level member. Rows are
// state,gender,year,name,count; anything else is dropped and counted.
func parseStateMember(member *zip.File) ([]model.StateRecord, int, error) {
	lines, err := readMember(member)
	if err != nil {
		return nil, 0, err
	}

	var recs []model.StateRecord
	var skipped int
	for _, line := range lines {
		fields := strings.Split(line, ",")
		if len(fields) != 5 {
			skipped++
			continue
		}
		gender, ok := model.ParseGender(fields[1])
		if !ok {
			skipped++
			continue
		}
		year, err := strconv.Atoi(fields[2])
		if err != nil {
			skipped++
			continue
		}
		count, err := strconv.Atoi(fields[4])
		if err != nil || count < 0 {
			skipped++
			continue
		}
		recs = append(recs, model.StateRecord{
			State:  fields[0],
			Name:   fields[3],
			Gender: gender,
			Count:  count,
			Year:   year,
		})
	}
	return recs, skipped, nil
}

func readMember(member *zip.File) ([]string, error) {
	rc, err := member.Open()
	if err != nil {
		return nil, &ErrArchive{Path: member.Name, Err: err}
	}
	defer rc.Close()

	data, err := io.ReadAll(rc)
	if err != nil {
		return nil, &ErrArchive{Path: member.Name, Err: err}
	}

	var lines []string
	for _, line := range strings.Split(string(data), "\n") {
		line = strings.TrimRight(line, "\r")
		if line == "" {
			continue
		}
		lines = append(lines, line)
	}
	return lines, nil
}

func logMember(member string, inserted, skipped int) {
	if skipped > 0 {
		log.Printf("ingest: %s: inserted %d records, dropped %d malformed rows", member, inserted, skipped)
		return
	}
	log.Printf("ingest: %s: inserted %d records", member, inserted)
}
