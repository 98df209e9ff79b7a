// Copyright (c) 2025 Michael D Henderson. All rights reserved.

// Package model defines the value types exchanged between the ingestion
// pipeline, the storage engines, and their callers. Records are immutable
// once written; the aggregate shapes are computed at query time and never
// persisted.
package model

// Gender identifies the sex recorded for a name row.
type Gender string

const (
	Male   Gender = "M"
	Female Gender = "F"
)

// ParseGender maps a raw data field to a Gender.
// Returns false for anything other than "M" or "F".
func ParseGender(s string) (Gender, bool) {
	switch s {
	case "M":
		return Male, true
	case "F":
		return Female, true
	}
	return "", false
}

// NameRecord is a single row from the national ssa_names table.
type NameRecord struct {
	Name   string `json:"name"`
	Gender Gender `json:"gender"`
	Count  int    `json:"count"`
	Year   int    `json:"year"`
}

// StateRecord is a single row from the ssa_names_by_state table.
type StateRecord struct {
	State  string `json:"state"`
	Name   string `json:"name"`
	Gender Gender `json:"gender"`
	Count  int    `json:"count"`
	Year   int    `json:"year"`
}

// YearCount is one (year, count) data point on a trend line.
// The count is summed across genders unless the query filtered on one.
type YearCount struct {
	Year  int `json:"year"`
	Count int `json:"count"`
}

// GenderBreakdown is the total count for a name for one gender, across all years.
type GenderBreakdown struct {
	Gender     Gender `json:"gender"`
	TotalCount int    `json:"total_count"`
}

// NameStats holds the high-level statistics for a name.
// PeakYear and PeakCount come from the single row with the highest count,
// not from the year with the highest summed count.
type NameStats struct {
	Name            string            `json:"name"`
	TotalCount      int               `json:"total_count"`
	PeakYear        int               `json:"peak_year"`
	PeakCount       int               `json:"peak_count"`
	FirstYear       int               `json:"first_year"`
	LastYear        int               `json:"last_year"`
	GenderBreakdown []GenderBreakdown `json:"gender_breakdown"`
}

// RankedName is a name with its rank inside a year (+ optional gender) partition.
// Rank 1 is the highest count; ranks increase without gaps.
type RankedName struct {
	Name   string `json:"name"`
	Gender Gender `json:"gender"`
	Count  int    `json:"count"`
	Rank   int    `json:"rank"`
}

// DecadeTrend is the summed count for a name within one decade.
// Decade is the year floored to a multiple of ten, e.g. 1990.
type DecadeTrend struct {
	Decade int `json:"decade"`
	Count  int `json:"count"`
}

// StateCount is the summed count for a name within one state, across years and genders.
type StateCount struct {
	State string `json:"state"`
	Count int    `json:"count"`
}

// NameSearchResult is a prefix-search hit with the name's total count.
type NameSearchResult struct {
	Name       string `json:"name"`
	TotalCount int    `json:"total_count"`
}
