// Copyright (c) 2025 Michael D Henderson. All rights reserved.

// Command namesdb loads the SSA baby-names archives into a relational
// engine and answers questions about the loaded data.
package main

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"os"
	"strings"

	"github.com/mdhender/namesdb"
	"github.com/mdhender/namesdb/model"
	"github.com/mdhender/namesdb/pipelines/ingest"
	"github.com/mdhender/namesdb/stores"
	"github.com/mdhender/namesdb/stores/postgres"
	"github.com/mdhender/namesdb/stores/sqlite"
	"github.com/spf13/cobra"
)

func main() {
	addFlags := func(cmd *cobra.Command) error {
		cmd.PersistentFlags().Bool("debug", false, "log debugging information")
		cmd.PersistentFlags().Bool("log-with-default-flags", false, "log with default flags")
		cmd.PersistentFlags().Bool("log-with-shortfile", true, "log with short file name")
		cmd.PersistentFlags().Bool("log-with-timestamp", false, "log with timestamp")
		cmd.PersistentFlags().Bool("quiet", false, "log less information")
		cmd.PersistentFlags().Bool("show-version", false, "show version")
		cmd.PersistentFlags().Bool("verbose", false, "log more information")
		return nil
	}
	var cmdRoot = &cobra.Command{
		Use:   "namesdb",
		Short: "SSA baby names database utility",
		Long:  `Load and query the Social Security Administration baby names data sets`,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			logWithDefaultFlags, _ := cmd.Flags().GetBool("log-with-default-flags")
			logWithShortFileName, _ := cmd.Flags().GetBool("log-with-shortfile")
			logWithTimestamp, _ := cmd.Flags().GetBool("log-with-timestamp")
			logFlags := 0
			if logWithShortFileName {
				logFlags |= log.Lshortfile
			}
			if logWithTimestamp {
				logFlags |= log.Ltime
			}
			if logWithDefaultFlags || logFlags == 0 {
				logFlags = log.LstdFlags
			}
			log.SetFlags(logFlags)

			if showVersion, _ := cmd.Flags().GetBool("show-version"); showVersion {
				fmt.Printf("namesdb: version %q\n", namesdb.Version().Core())
			}

			return nil
		},
	}
	cmdRoot.AddCommand(cmdInitDB())
	cmdRoot.AddCommand(cmdIngest())
	cmdRoot.AddCommand(cmdQuery())
	cmdRoot.AddCommand(cmdVersion())
	if err := addFlags(cmdRoot); err != nil {
		log.Fatal(err)
	}

	if err := cmdRoot.Execute(); err != nil {
		os.Exit(1)
	}
}

// engineFlags selects and configures a storage engine. Every command that
// touches a database shares this flag set.
type engineFlags struct {
	engine string // sqlite or postgres
	dbPath string // sqlite database file
	dsn    string // postgres connection string, falls back to DATABASE_URL
}

func (ef *engineFlags) addFlags(cmd *cobra.Command) {
	cmd.Flags().StringVar(&ef.engine, "store", "sqlite", "storage engine (sqlite or postgres)")
	cmd.Flags().StringVar(&ef.dbPath, "db", "names.db", "sqlite database file")
	cmd.Flags().StringVar(&ef.dsn, "dsn", "", "postgres connection string (default $DATABASE_URL)")
}

// open returns an unconnected engine and the DDL script for its dialect.
func (ef *engineFlags) open() (stores.Store, string, error) {
	switch ef.engine {
	case "sqlite":
		return sqlite.New(ef.dbPath), sqlite.Schema, nil
	case "postgres":
		s, err := postgres.New(ef.dsn)
		if err != nil {
			return nil, "", err
		}
		return s, postgres.Schema, nil
	default:
		return nil, "", fmt.Errorf("unknown store %q: want sqlite or postgres", ef.engine)
	}
}

func cmdInitDB() *cobra.Command {
	var ef engineFlags
	var cmd = &cobra.Command{
		Use:          "init-db",
		Short:        "create a database and initialize the schema",
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := context.Background()

			if ef.engine == "sqlite" {
				// refuses to clobber an existing file
				if err := sqlite.InitDatabase(ctx, ef.dbPath); err != nil {
					return err
				}
				log.Printf("created database %s\n", ef.dbPath)
				return nil
			}

			store, schema, err := ef.open()
			if err != nil {
				return err
			}
			if err := store.Connect(ctx); err != nil {
				return err
			}
			defer store.Close()
			if err := store.InitSchema(ctx, schema); err != nil {
				return err
			}
			log.Printf("initialized %s schema\n", ef.engine)
			return nil
		},
	}
	ef.addFlags(cmd)
	return cmd
}

func cmdIngest() *cobra.Command {
	var ef engineFlags
	var namesArchive, stateArchive string
	addFlags := func(cmd *cobra.Command) error {
		ef.addFlags(cmd)
		cmd.Flags().StringVar(&namesArchive, "names", "names.zip", "national names zip archive")
		cmd.Flags().StringVar(&stateArchive, "state-names", "namesbystate.zip", "state-level names zip archive")
		return nil
	}
	var cmd = &cobra.Command{
		Use:          "ingest",
		Short:        "load the SSA zip archives into the database",
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			store, schema, err := ef.open()
			if err != nil {
				return err
			}

			p := ingest.New(store, ingest.Config{
				NamesArchive: namesArchive,
				StateArchive: stateArchive,
				Schema:       schema,
			})
			return p.Run(context.Background())
		},
	}
	if err := addFlags(cmd); err != nil {
		log.Fatal(err)
	}
	return cmd
}

// parseGenderFlag maps the --gender flag to a model.Gender. An empty value
// means both genders.
func parseGenderFlag(s string) (model.Gender, error) {
	if s == "" {
		return "", nil
	}
	g, ok := model.ParseGender(s)
	if !ok {
		return "", fmt.Errorf("unknown gender %q: want M or F", s)
	}
	return g, nil
}

// withStore connects the selected engine, runs fn, and prints its result
// as indented JSON on stdout.
func withStore(ef *engineFlags, fn func(ctx context.Context, store stores.Store) (any, error)) error {
	ctx := context.Background()

	store, _, err := ef.open()
	if err != nil {
		return err
	}
	if err := store.Connect(ctx); err != nil {
		return err
	}
	defer store.Close()

	result, err := fn(ctx, store)
	if err != nil {
		return err
	}
	data, err := json.MarshalIndent(result, "", "  ")
	if err != nil {
		return fmt.Errorf("json: %w", err)
	}
	fmt.Println(string(data))
	return nil
}

func cmdQuery() *cobra.Command {
	var cmd = &cobra.Command{
		Use:   "query",
		Short: "query the loaded data",
	}
	cmd.AddCommand(cmdQueryRecords())
	cmd.AddCommand(cmdQueryStats())
	cmd.AddCommand(cmdQueryTrends())
	cmd.AddCommand(cmdQueryDecades())
	cmd.AddCommand(cmdQueryBreakdown())
	cmd.AddCommand(cmdQueryTop())
	cmd.AddCommand(cmdQueryRank())
	cmd.AddCommand(cmdQuerySearch())
	cmd.AddCommand(cmdQueryStates())
	cmd.AddCommand(cmdQueryDistribution())
	cmd.AddCommand(cmdQueryUnique())
	return cmd
}

func cmdQueryRecords() *cobra.Command {
	var ef engineFlags
	var cmd = &cobra.Command{
		Use:          "records <name>",
		Short:        "every national row for a name",
		SilenceUsage: true,
		Args:         cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withStore(&ef, func(ctx context.Context, store stores.Store) (any, error) {
				return store.NameRecords(ctx, args[0])
			})
		},
	}
	ef.addFlags(cmd)
	return cmd
}

func cmdQueryStats() *cobra.Command {
	var ef engineFlags
	var cmd = &cobra.Command{
		Use:          "stats <name>",
		Short:        "summary statistics for a name",
		SilenceUsage: true,
		Args:         cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withStore(&ef, func(ctx context.Context, store stores.Store) (any, error) {
				st, err := store.NameStats(ctx, args[0])
				if err != nil {
					return nil, err
				}
				if st == nil {
					return nil, fmt.Errorf("no records for %q", args[0])
				}
				return st, nil
			})
		},
	}
	ef.addFlags(cmd)
	return cmd
}

func cmdQueryTrends() *cobra.Command {
	var ef engineFlags
	var gender string
	var cmd = &cobra.Command{
		Use:          "trends <name>",
		Short:        "per-year counts for a name",
		SilenceUsage: true,
		Args:         cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			g, err := parseGenderFlag(gender)
			if err != nil {
				return err
			}
			return withStore(&ef, func(ctx context.Context, store stores.Store) (any, error) {
				return store.NameTrends(ctx, args[0], g)
			})
		},
	}
	ef.addFlags(cmd)
	cmd.Flags().StringVarP(&gender, "gender", "g", "", "restrict to one gender (M or F)")
	return cmd
}

func cmdQueryDecades() *cobra.Command {
	var ef engineFlags
	var gender string
	var cmd = &cobra.Command{
		Use:          "decades <name>",
		Short:        "per-decade counts for a name",
		SilenceUsage: true,
		Args:         cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			g, err := parseGenderFlag(gender)
			if err != nil {
				return err
			}
			return withStore(&ef, func(ctx context.Context, store stores.Store) (any, error) {
				return store.DecadeTrends(ctx, args[0], g)
			})
		},
	}
	ef.addFlags(cmd)
	cmd.Flags().StringVarP(&gender, "gender", "g", "", "restrict to one gender (M or F)")
	return cmd
}

func cmdQueryBreakdown() *cobra.Command {
	var ef engineFlags
	var cmd = &cobra.Command{
		Use:          "breakdown <name>",
		Short:        "total count per gender for a name",
		SilenceUsage: true,
		Args:         cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withStore(&ef, func(ctx context.Context, store stores.Store) (any, error) {
				return store.GenderBreakdown(ctx, args[0])
			})
		},
	}
	ef.addFlags(cmd)
	return cmd
}

func cmdQueryTop() *cobra.Command {
	var ef engineFlags
	var gender string
	var year, limit int
	var cmd = &cobra.Command{
		Use:          "top",
		Short:        "most popular names in a year",
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			g, err := parseGenderFlag(gender)
			if err != nil {
				return err
			}
			return withStore(&ef, func(ctx context.Context, store stores.Store) (any, error) {
				return store.TopNames(ctx, year, g, limit)
			})
		},
	}
	ef.addFlags(cmd)
	cmd.Flags().IntVarP(&year, "year", "y", 0, "year to rank")
	cmd.Flags().StringVarP(&gender, "gender", "g", "", "restrict to one gender (M or F)")
	cmd.Flags().IntVarP(&limit, "limit", "n", 10, "number of names to return")
	cmd.MarkFlagRequired("year")
	return cmd
}

func cmdQueryRank() *cobra.Command {
	var ef engineFlags
	var gender string
	var year int
	var cmd = &cobra.Command{
		Use:          "rank <name>",
		Short:        "a name's popularity rank in a year",
		SilenceUsage: true,
		Args:         cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			g, err := parseGenderFlag(gender)
			if err != nil {
				return err
			}
			return withStore(&ef, func(ctx context.Context, store stores.Store) (any, error) {
				rank, found, err := store.NameRank(ctx, args[0], year, g)
				if err != nil {
					return nil, err
				}
				return struct {
					Name  string `json:"name"`
					Year  int    `json:"year"`
					Rank  int    `json:"rank"`
					Found bool   `json:"found"`
				}{Name: args[0], Year: year, Rank: rank, Found: found}, nil
			})
		},
	}
	ef.addFlags(cmd)
	cmd.Flags().IntVarP(&year, "year", "y", 0, "year to rank within")
	cmd.Flags().StringVarP(&gender, "gender", "g", "", "restrict to one gender (M or F)")
	cmd.MarkFlagRequired("year")
	return cmd
}

func cmdQuerySearch() *cobra.Command {
	var ef engineFlags
	var limit int
	var cmd = &cobra.Command{
		Use:          "search <prefix>",
		Short:        "names starting with a prefix, by all-time count",
		SilenceUsage: true,
		Args:         cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withStore(&ef, func(ctx context.Context, store stores.Store) (any, error) {
				return store.SearchNames(ctx, args[0], limit)
			})
		},
	}
	ef.addFlags(cmd)
	cmd.Flags().IntVarP(&limit, "limit", "n", 20, "number of names to return")
	return cmd
}

func cmdQueryStates() *cobra.Command {
	var ef engineFlags
	var state string
	var cmd = &cobra.Command{
		Use:          "states <name>",
		Short:        "state-level rows for a name",
		SilenceUsage: true,
		Args:         cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withStore(&ef, func(ctx context.Context, store stores.Store) (any, error) {
				return store.NamesByState(ctx, args[0], strings.ToUpper(state))
			})
		},
	}
	ef.addFlags(cmd)
	cmd.Flags().StringVarP(&state, "state", "s", "", "restrict to one state (two-letter code)")
	return cmd
}

func cmdQueryDistribution() *cobra.Command {
	var ef engineFlags
	var cmd = &cobra.Command{
		Use:          "distribution <name>",
		Short:        "all-time count per state for a name",
		SilenceUsage: true,
		Args:         cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withStore(&ef, func(ctx context.Context, store stores.Store) (any, error) {
				return store.StateDistribution(ctx, args[0])
			})
		},
	}
	ef.addFlags(cmd)
	return cmd
}

func cmdQueryUnique() *cobra.Command {
	var ef engineFlags
	var year int
	var cmd = &cobra.Command{
		Use:          "unique",
		Short:        "count of distinct names",
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withStore(&ef, func(ctx context.Context, store stores.Store) (any, error) {
				n, err := store.UniqueNameCount(ctx, year)
				if err != nil {
					return nil, err
				}
				return struct {
					Year  int `json:"year"`
					Count int `json:"count"`
				}{Year: year, Count: n}, nil
			})
		},
	}
	ef.addFlags(cmd)
	cmd.Flags().IntVarP(&year, "year", "y", 0, "restrict to one year (0 means all years)")
	return cmd
}

func cmdVersion() *cobra.Command {
	showBuildInfo := false
	addFlags := func(cmd *cobra.Command) error {
		cmd.Flags().BoolVar(&showBuildInfo, "build-info", showBuildInfo, "show build information")
		return nil
	}
	var cmd = &cobra.Command{
		Use:   "version",
		Short: "display the application's version number",
		RunE: func(cmd *cobra.Command, args []string) error {
			if showBuildInfo {
				fmt.Println(namesdb.Version().String())
				return nil
			}
			fmt.Println(namesdb.Version().Core())
			return nil
		},
	}
	if err := addFlags(cmd); err != nil {
		log.Fatal(err)
	}
	return cmd
}
