// Copyright (c) 2025 Michael D Henderson. All rights reserved.

// Package namesdb is an analytical store and ingestion pipeline for the
// SSA baby-names dataset. The stores package defines the backend contract,
// with SQLite and Postgres engines that return identical results for
// identical data.
package namesdb

import (
	"github.com/maloquacious/semver"
)

var (
	version = semver.Version{
		Major: 0,
		Minor: 2,
		Patch: 0,
		Build: semver.Commit(),
	}
)

func Version() semver.Version {
	return version
}
