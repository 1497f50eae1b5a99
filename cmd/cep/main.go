// Command cep is a thin CLI harness around the CEP engine: insert CSV
// rows, run ad-hoc SELECT queries, trigger a manual vacuum, and report
// stats.
package main

import (
	"context"
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"

	"github.com/mtsmys/cep-go/internal/catalog"
	"github.com/mtsmys/cep-go/internal/cep"
	"github.com/mtsmys/cep-go/internal/cepconfig"
	"github.com/mtsmys/cep-go/internal/ceplog"
	"github.com/mtsmys/cep-go/internal/schema"
)

var (
	configPath     string
	schemaPath     string
	dbName         string
	debugFlag      bool
	maxRecordFlag  int
	vacuumRecFlag  int64
	noPersistFlag  bool
	synchronousStr string
)

var rootCmd = &cobra.Command{
	Use:   "cep",
	Short: "cep - a SQLite-backed complex event processing engine",
	Long:  "Ingests schema-defined CSV rows into a bounded in-memory window, spilling evicted rows to a durable file-backed store.",
}

func init() {
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "", "path to a YAML engine config file")
	rootCmd.PersistentFlags().StringVar(&schemaPath, "schema", "", "path to a TOML table schema document")
	rootCmd.PersistentFlags().StringVar(&dbName, "db", "cep", "database name (file suffix .sqlite appended if absent)")
	rootCmd.PersistentFlags().BoolVar(&debugFlag, "debug", false, "enable debug logging")
	rootCmd.PersistentFlags().IntVar(&maxRecordFlag, "max-record", 0, "in-memory window size per table [1, 500)")
	rootCmd.PersistentFlags().Int64Var(&vacuumRecFlag, "vacuum-record", 0, "rows-since-last-vacuum threshold (0 selects auto-vacuum)")
	rootCmd.PersistentFlags().BoolVar(&noPersistFlag, "no-persistence", false, "disable spilling evicted rows to the file database")
	rootCmd.PersistentFlags().StringVar(&synchronousStr, "synchronous", "", "synchronous pragma override: OFF, NORMAL, or FULL")

	rootCmd.AddCommand(insertCmd(), queryCmd(), vacuumCmd(), statsCmd(), serveCmd())
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func buildEngine(ctx context.Context) (*cep.Engine, error) {
	loader := cepconfig.NewLoader()
	if err := loader.LoadFile(configPath); err != nil {
		return nil, err
	}
	flags := rootCmd.PersistentFlags()
	if flags.Changed("db") {
		loader.BindFlag("database", dbName)
	}
	if flags.Changed("debug") {
		loader.BindFlag("debug", debugFlag)
	}
	if flags.Changed("max-record") {
		loader.BindFlag("max_record", maxRecordFlag)
	}
	if flags.Changed("vacuum-record") {
		loader.BindFlag("vacuum_record", vacuumRecFlag)
	}
	if flags.Changed("no-persistence") {
		loader.BindFlag("persistence", !noPersistFlag)
	}
	if flags.Changed("synchronous") {
		loader.BindFlag("synchronous", synchronousStr)
	}
	if flags.Changed("schema") {
		loader.BindFlag("schema", schemaPath)
	}
	cfg, err := loader.Build()
	if err != nil {
		return nil, err
	}

	logger := ceplog.New(&ceplog.Config{Debug: cfg.Debug})

	var cat *catalog.Catalog
	if cfg.SchemaPath != "" {
		cat, err = schema.LoadFile(cfg.SchemaPath)
		if err != nil {
			return nil, err
		}
	} else {
		cat = catalog.New()
	}

	e, err := cep.New(ctx, cfg.DatabaseName, cat, logger, cfg.Synchronous)
	if err != nil {
		return nil, err
	}
	if err := e.SetMaxRecord(cfg.MaxRecord); err != nil {
		return nil, err
	}
	e.SetPersistence(cfg.Persistence)
	if err := e.SetVacuumRecord(cfg.VacuumRecord); err != nil {
		return nil, err
	}

	ceplog.LogEngineStarted(logger, e.GetDatabaseName(), "", cfg.MaxRecord)
	return e, nil
}

func insertCmd() *cobra.Command {
	var table string
	cmd := &cobra.Command{
		Use:   "insert",
		Short: "insert CSV rows (read from stdin) into a table",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			e, err := buildEngine(ctx)
			if err != nil {
				return err
			}
			defer e.Shutdown(ctx)

			data, err := io.ReadAll(cmd.InOrStdin())
			if err != nil {
				return err
			}
			n, err := e.InsertCSV(ctx, table, string(data))
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "inserted %d rows\n", n)
			return nil
		},
	}
	cmd.Flags().StringVar(&table, "table", "", "target table name")
	cmd.MarkFlagRequired("table")
	return cmd
}

func queryCmd() *cobra.Command {
	var query string
	cmd := &cobra.Command{
		Use:   "query",
		Short: "run a SELECT against the hot window, printing CSV",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			e, err := buildEngine(ctx)
			if err != nil {
				return err
			}
			defer e.Shutdown(ctx)

			csv, ok, err := e.Select(ctx, query)
			if err != nil {
				return err
			}
			if !ok {
				fmt.Fprintln(cmd.OutOrStdout(), "empty")
				return nil
			}
			fmt.Fprint(cmd.OutOrStdout(), csv)
			return nil
		},
	}
	cmd.Flags().StringVar(&query, "sql", "", "SELECT statement to run")
	cmd.MarkFlagRequired("sql")
	return cmd
}

func vacuumCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "vacuum",
		Short: "force a vacuum cycle outside the threshold-driven path",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			e, err := buildEngine(ctx)
			if err != nil {
				return err
			}
			defer e.Shutdown(ctx)
			if err := e.Vacuum(ctx); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "vacuumed database: %s\n", e.GetDatabaseName())
			return nil
		},
	}
}

func statsCmd() *cobra.Command {
	var checksum bool
	cmd := &cobra.Command{
		Use:   "stats",
		Short: "report engine stats",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			e, err := buildEngine(ctx)
			if err != nil {
				return err
			}
			defer e.Shutdown(ctx)

			fmt.Fprintf(cmd.OutOrStdout(), "database: %s\n", e.GetDatabaseName())
			fmt.Fprintf(cmd.OutOrStdout(), "version: %s\n", cep.GetVersion())
			if checksum {
				sum, err := e.FileChecksum()
				if err != nil {
					fmt.Fprintf(cmd.OutOrStdout(), "checksum: unavailable (%v)\n", err)
					return nil
				}
				fmt.Fprintf(cmd.OutOrStdout(), "checksum: %08x\n", sum)
			}
			return nil
		},
	}
	cmd.Flags().BoolVar(&checksum, "checksum", false, "report a CRC-32 checksum of the file database")
	return cmd
}

func serveCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "start the engine and watch the config file for hot-reloadable changes",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			e, err := buildEngine(ctx)
			if err != nil {
				return err
			}
			defer e.Shutdown(ctx)

			if configPath != "" {
				if err := e.WatchConfigFile(ctx, configPath); err != nil {
					return err
				}
			}
			<-ctx.Done()
			return nil
		},
	}
}
