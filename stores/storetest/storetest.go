// Copyright (c) 2025 Michael D Henderson. All rights reserved.

// Package storetest is a conformance suite for backend contract
// implementations. Both shipped engines run the same suite against the
// same fixture, which is what enforces the requirement that they produce
// identical results from identical data.
package storetest

import (
	"context"
	"reflect"
	"testing"

	"github.com/mdhender/namesdb/model"
	"github.com/mdhender/namesdb/stores"
)

// Factory returns a connected store with the schema applied and both
// tables empty. Each Run call consumes one store.
type Factory func(t *testing.T) stores.Store

// fixture rows. The John/Linda tie at 900 pins the deterministic tie-break
// ordering; the Mary M rows pin the combined-gender ranking behavior.
var nameFixture = []model.NameRecord{
	{Name: "Mary", Gender: model.Female, Count: 1000, Year: 1950},
	{Name: "John", Gender: model.Male, Count: 900, Year: 1950},
	{Name: "Linda", Gender: model.Female, Count: 900, Year: 1950},
	{Name: "Mark", Gender: model.Male, Count: 500, Year: 1950},
	{Name: "Mary", Gender: model.Male, Count: 80, Year: 1950},
	{Name: "Mary", Gender: model.Female, Count: 700, Year: 1955},
	{Name: "Mary", Gender: model.Female, Count: 1200, Year: 1960},
}

var stateFixture = []model.StateRecord{
	{State: "CA", Name: "Mary", Gender: model.Female, Count: 400, Year: 1950},
	{State: "NY", Name: "Mary", Gender: model.Female, Count: 600, Year: 1950},
	{State: "CA", Name: "Mary", Gender: model.Male, Count: 30, Year: 1950},
}

// Run seeds the store with the shared fixture and exercises every contract
// operation. The duplicate-ingestion case runs last because it mutates the
// fixture.
func Run(t *testing.T, factory Factory) {
	ctx := context.Background()
	store := factory(t)

	if err := store.InsertNameBatch(ctx, nameFixture); err != nil {
		t.Fatalf("insert name fixture: %v", err)
	}
	if err := store.InsertStateBatch(ctx, stateFixture); err != nil {
		t.Fatalf("insert state fixture: %v", err)
	}
	if err := store.CreateIndexes(ctx, stores.TableNames); err != nil {
		t.Fatalf("create name indexes: %v", err)
	}
	if err := store.CreateIndexes(ctx, stores.TableStateNames); err != nil {
		t.Fatalf("create state indexes: %v", err)
	}

	t.Run("name records", func(t *testing.T) {
		// mixed-case lookup exercises the case-insensitive match
		recs, err := store.NameRecords(ctx, "mARY")
		if err != nil {
			t.Fatalf("name records: %v", err)
		}
		want := []model.NameRecord{
			{Name: "Mary", Gender: model.Female, Count: 1000, Year: 1950},
			{Name: "Mary", Gender: model.Male, Count: 80, Year: 1950},
			{Name: "Mary", Gender: model.Female, Count: 700, Year: 1955},
			{Name: "Mary", Gender: model.Female, Count: 1200, Year: 1960},
		}
		if !reflect.DeepEqual(recs, want) {
			t.Errorf("name records: got %+v, want %+v", recs, want)
		}

		recs, err = store.NameRecords(ctx, "Zelda")
		if err != nil {
			t.Fatalf("name records miss: %v", err)
		}
		if len(recs) != 0 {
			t.Errorf("name records miss: got %+v, want empty", recs)
		}
	})

	t.Run("name trends", func(t *testing.T) {
		trends, err := store.NameTrends(ctx, "Mary", "")
		if err != nil {
			t.Fatalf("name trends: %v", err)
		}
		want := []model.YearCount{{Year: 1950, Count: 1080}, {Year: 1955, Count: 700}, {Year: 1960, Count: 1200}}
		if !reflect.DeepEqual(trends, want) {
			t.Errorf("name trends: got %+v, want %+v", trends, want)
		}

		trends, err = store.NameTrends(ctx, "Mary", model.Female)
		if err != nil {
			t.Fatalf("name trends gender: %v", err)
		}
		want = []model.YearCount{{Year: 1950, Count: 1000}, {Year: 1955, Count: 700}, {Year: 1960, Count: 1200}}
		if !reflect.DeepEqual(trends, want) {
			t.Errorf("name trends gender: got %+v, want %+v", trends, want)
		}
	})

	t.Run("name stats", func(t *testing.T) {
		stats, err := store.NameStats(ctx, "Mary")
		if err != nil {
			t.Fatalf("name stats: %v", err)
		}
		if stats == nil {
			t.Fatal("name stats: got nil, want stats")
		}
		want := &model.NameStats{
			Name:       "Mary",
			TotalCount: 2980,
			// 1200 in 1960 is the highest single row, even though 1950's
			// cross-gender sum is close
			PeakYear:  1960,
			PeakCount: 1200,
			FirstYear: 1950,
			LastYear:  1960,
			GenderBreakdown: []model.GenderBreakdown{
				{Gender: model.Female, TotalCount: 2900},
				{Gender: model.Male, TotalCount: 80},
			},
		}
		if !reflect.DeepEqual(stats, want) {
			t.Errorf("name stats: got %+v, want %+v", stats, want)
		}

		// sum of trends must equal stats total
		trends, err := store.NameTrends(ctx, "Mary", "")
		if err != nil {
			t.Fatalf("name trends: %v", err)
		}
		var sum int
		for _, yc := range trends {
			sum += yc.Count
		}
		if sum != stats.TotalCount {
			t.Errorf("trend sum %d != total count %d", sum, stats.TotalCount)
		}

		missing, err := store.NameStats(ctx, "Zelda")
		if err != nil {
			t.Fatalf("name stats miss: %v", err)
		}
		if missing != nil {
			t.Errorf("name stats miss: got %+v, want nil", missing)
		}
	})

	t.Run("gender breakdown", func(t *testing.T) {
		breakdown, err := store.GenderBreakdown(ctx, "Mary")
		if err != nil {
			t.Fatalf("gender breakdown: %v", err)
		}
		want := []model.GenderBreakdown{
			{Gender: model.Female, TotalCount: 2900},
			{Gender: model.Male, TotalCount: 80},
		}
		if !reflect.DeepEqual(breakdown, want) {
			t.Errorf("gender breakdown: got %+v, want %+v", breakdown, want)
		}
	})

	t.Run("decade trends", func(t *testing.T) {
		trends, err := store.DecadeTrends(ctx, "Mary", "")
		if err != nil {
			t.Fatalf("decade trends: %v", err)
		}
		want := []model.DecadeTrend{{Decade: 1950, Count: 1780}, {Decade: 1960, Count: 1200}}
		if !reflect.DeepEqual(trends, want) {
			t.Errorf("decade trends: got %+v, want %+v", trends, want)
		}

		// buckets are multiples of 10 and sum to the stats total
		var sum int
		for _, dt := range trends {
			if dt.Decade%10 != 0 {
				t.Errorf("decade %d is not a multiple of 10", dt.Decade)
			}
			sum += dt.Count
		}
		if sum != 2980 {
			t.Errorf("decade sum %d != total count 2980", sum)
		}

		trends, err = store.DecadeTrends(ctx, "Mary", model.Female)
		if err != nil {
			t.Fatalf("decade trends gender: %v", err)
		}
		want = []model.DecadeTrend{{Decade: 1950, Count: 1700}, {Decade: 1960, Count: 1200}}
		if !reflect.DeepEqual(trends, want) {
			t.Errorf("decade trends gender: got %+v, want %+v", trends, want)
		}
	})

	t.Run("top names combined genders", func(t *testing.T) {
		// gender omitted: one ranking across both genders for the year.
		// Preserved from the original system, pinned here on purpose.
		ranked, err := store.TopNames(ctx, 1950, "", 10)
		if err != nil {
			t.Fatalf("top names: %v", err)
		}
		want := []model.RankedName{
			{Name: "Mary", Gender: model.Female, Count: 1000, Rank: 1},
			{Name: "John", Gender: model.Male, Count: 900, Rank: 2},
			{Name: "Linda", Gender: model.Female, Count: 900, Rank: 3},
			{Name: "Mark", Gender: model.Male, Count: 500, Rank: 4},
			{Name: "Mary", Gender: model.Male, Count: 80, Rank: 5},
		}
		if !reflect.DeepEqual(ranked, want) {
			t.Errorf("top names: got %+v, want %+v", ranked, want)
		}

		// counts never increase, ranks increase from 1 with no gaps
		for i, rn := range ranked {
			if rn.Rank != i+1 {
				t.Errorf("rank %d at position %d", rn.Rank, i)
			}
			if i > 0 && rn.Count > ranked[i-1].Count {
				t.Errorf("count %d after %d", rn.Count, ranked[i-1].Count)
			}
		}
	})

	t.Run("top names by gender", func(t *testing.T) {
		ranked, err := store.TopNames(ctx, 1950, model.Female, 2)
		if err != nil {
			t.Fatalf("top names: %v", err)
		}
		want := []model.RankedName{
			{Name: "Mary", Gender: model.Female, Count: 1000, Rank: 1},
			{Name: "Linda", Gender: model.Female, Count: 900, Rank: 2},
		}
		if !reflect.DeepEqual(ranked, want) {
			t.Errorf("top names: got %+v, want %+v", ranked, want)
		}

		ranked, err = store.TopNames(ctx, 1899, model.Female, 10)
		if err != nil {
			t.Fatalf("top names empty year: %v", err)
		}
		if len(ranked) != 0 {
			t.Errorf("top names empty year: got %+v, want empty", ranked)
		}
	})

	t.Run("name rank", func(t *testing.T) {
		// matches the rank TopNames assigns within the same partition
		ranked, err := store.TopNames(ctx, 1950, model.Male, 100)
		if err != nil {
			t.Fatalf("top names: %v", err)
		}
		for _, rn := range ranked {
			rank, ok, err := store.NameRank(ctx, rn.Name, 1950, model.Male)
			if err != nil {
				t.Fatalf("name rank %s: %v", rn.Name, err)
			}
			if !ok || rank != rn.Rank {
				t.Errorf("name rank %s: got (%d, %v), want (%d, true)", rn.Name, rank, ok, rn.Rank)
			}
		}

		rank, ok, err := store.NameRank(ctx, "mary", 1950, model.Male)
		if err != nil {
			t.Fatalf("name rank: %v", err)
		}
		if !ok || rank != 3 {
			t.Errorf("name rank mary/M/1950: got (%d, %v), want (3, true)", rank, ok)
		}

		_, ok, err = store.NameRank(ctx, "Zelda", 1950, model.Female)
		if err != nil {
			t.Fatalf("name rank miss: %v", err)
		}
		if ok {
			t.Error("name rank miss: got ok, want absent")
		}
	})

	t.Run("names by state", func(t *testing.T) {
		recs, err := store.NamesByState(ctx, "Mary", "")
		if err != nil {
			t.Fatalf("names by state: %v", err)
		}
		want := []model.StateRecord{
			{State: "CA", Name: "Mary", Gender: model.Female, Count: 400, Year: 1950},
			{State: "CA", Name: "Mary", Gender: model.Male, Count: 30, Year: 1950},
			{State: "NY", Name: "Mary", Gender: model.Female, Count: 600, Year: 1950},
		}
		if !reflect.DeepEqual(recs, want) {
			t.Errorf("names by state: got %+v, want %+v", recs, want)
		}

		recs, err = store.NamesByState(ctx, "Mary", "CA")
		if err != nil {
			t.Fatalf("names by state CA: %v", err)
		}
		if !reflect.DeepEqual(recs, want[:2]) {
			t.Errorf("names by state CA: got %+v, want %+v", recs, want[:2])
		}
	})

	t.Run("state distribution", func(t *testing.T) {
		counts, err := store.StateDistribution(ctx, "Mary")
		if err != nil {
			t.Fatalf("state distribution: %v", err)
		}
		want := []model.StateCount{{State: "NY", Count: 600}, {State: "CA", Count: 430}}
		if !reflect.DeepEqual(counts, want) {
			t.Errorf("state distribution: got %+v, want %+v", counts, want)
		}
	})

	t.Run("search names", func(t *testing.T) {
		results, err := store.SearchNames(ctx, "MA", 10)
		if err != nil {
			t.Fatalf("search names: %v", err)
		}
		want := []model.NameSearchResult{
			{Name: "Mary", TotalCount: 2980},
			{Name: "Mark", TotalCount: 500},
		}
		if !reflect.DeepEqual(results, want) {
			t.Errorf("search names: got %+v, want %+v", results, want)
		}

		results, err = store.SearchNames(ctx, "ma", 1)
		if err != nil {
			t.Fatalf("search names limit: %v", err)
		}
		if !reflect.DeepEqual(results, want[:1]) {
			t.Errorf("search names limit: got %+v, want %+v", results, want[:1])
		}

		results, err = store.SearchNames(ctx, "zz", 10)
		if err != nil {
			t.Fatalf("search names miss: %v", err)
		}
		if len(results) != 0 {
			t.Errorf("search names miss: got %+v, want empty", results)
		}
	})

	t.Run("unique name count", func(t *testing.T) {
		for _, tc := range []struct {
			year int
			want int
		}{
			{year: 0, want: 4},
			{year: 1950, want: 4},
			{year: 1960, want: 1},
			{year: 1899, want: 0},
		} {
			cnt, err := store.UniqueNameCount(ctx, tc.year)
			if err != nil {
				t.Fatalf("unique name count %d: %v", tc.year, err)
			}
			if cnt != tc.want {
				t.Errorf("unique name count %d: got %d, want %d", tc.year, cnt, tc.want)
			}
		}
	})

	t.Run("verification utilities", func(t *testing.T) {
		cnt, err := store.TableRowCount(ctx, stores.TableNames)
		if err != nil {
			t.Fatalf("row count: %v", err)
		}
		if cnt != len(nameFixture) {
			t.Errorf("row count: got %d, want %d", cnt, len(nameFixture))
		}

		cnt, err = store.TableRowCount(ctx, stores.TableStateNames)
		if err != nil {
			t.Fatalf("state row count: %v", err)
		}
		if cnt != len(stateFixture) {
			t.Errorf("state row count: got %d, want %d", cnt, len(stateFixture))
		}

		cnt, err = store.DistinctYearCount(ctx, stores.TableNames)
		if err != nil {
			t.Fatalf("distinct years: %v", err)
		}
		if cnt != 3 {
			t.Errorf("distinct years: got %d, want 3", cnt)
		}

		samples, err := store.SampleRows(ctx, stores.TableNames, 3)
		if err != nil {
			t.Fatalf("sample rows: %v", err)
		}
		if len(samples) != 3 {
			t.Fatalf("sample rows: got %d rows, want 3", len(samples))
		}
		for _, row := range samples {
			if len(row) != 4 {
				t.Errorf("sample row: got %d columns, want 4", len(row))
			}
		}

		if _, err := store.TableRowCount(ctx, "users; DROP TABLE ssa_names"); err == nil {
			t.Error("row count on unknown table: got nil error")
		}
	})

	t.Run("index creation is idempotent", func(t *testing.T) {
		if err := store.CreateIndexes(ctx, stores.TableNames); err != nil {
			t.Fatalf("re-create indexes: %v", err)
		}
		stats, err := store.NameStats(ctx, "Mary")
		if err != nil {
			t.Fatalf("name stats: %v", err)
		}
		if stats == nil || stats.TotalCount != 2980 {
			t.Errorf("name stats after re-index: got %+v, want total 2980", stats)
		}
	})

	t.Run("duplicate ingestion double-counts", func(t *testing.T) {
		// the store does not enforce (name, gender, year) uniqueness
		if err := store.InsertNameBatch(ctx, nameFixture); err != nil {
			t.Fatalf("re-insert fixture: %v", err)
		}
		cnt, err := store.TableRowCount(ctx, stores.TableNames)
		if err != nil {
			t.Fatalf("row count: %v", err)
		}
		if cnt != 2*len(nameFixture) {
			t.Errorf("row count: got %d, want %d", cnt, 2*len(nameFixture))
		}
		stats, err := store.NameStats(ctx, "Mary")
		if err != nil {
			t.Fatalf("name stats: %v", err)
		}
		if stats == nil || stats.TotalCount != 2*2980 {
			t.Errorf("name stats after duplicate load: got %+v, want total %d", stats, 2*2980)
		}
	})
}
