// Copyright (c) 2025 Michael D Henderson. All rights reserved.

package ingest

import "fmt"

// ErrArchive is returned when an archive or one of its members cannot be
// opened or read.
type ErrArchive struct {
	Path string
	Err  error
}

func (e *ErrArchive) Error() string {
	return fmt.Sprintf("archive %s: %v", e.Path, e.Err)
}

func (e *ErrArchive) Unwrap() error {
	return e.Err
}

// ErrDatabase is returned when a store operation fails during the run.
type ErrDatabase struct {
	Op  string
	Err error
}

func (e *ErrDatabase) Error() string {
	return fmt.Sprintf("database %s: %v", e.Op, e.Err)
}

func (e *ErrDatabase) Unwrap() error {
	return e.Err
}
