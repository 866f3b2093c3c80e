package main

import (
	"context"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/tordrt/schemasync/internal/config"
	"github.com/tordrt/schemasync/internal/engine"
	"github.com/tordrt/schemasync/internal/executor"
	"github.com/tordrt/schemasync/internal/obslog"
	"github.com/tordrt/schemasync/internal/parser"
	"github.com/tordrt/schemasync/internal/report"
)

var (
	host          string
	port          int
	user          string
	password      string
	dbname        string
	envName       string
	migrationsDir string
	logLevel      string

	schemaPath    string
	migrationName string
	dryRun        bool
	force         bool
	rollbackN     int
	permissive    bool
)

var rootCmd = &cobra.Command{
	Use:   "schemasync",
	Short: "Schema-as-code migration tool for PostgreSQL",
	Long:  `schemasync derives, stores, and applies the minimal ordered DDL migration between a declarative SQL schema file and a live PostgreSQL database.`,
}

func init() {
	pf := rootCmd.PersistentFlags()
	pf.StringVar(&host, "host", "localhost", "PostgreSQL host")
	pf.IntVar(&port, "port", 5432, "PostgreSQL port")
	pf.StringVar(&user, "user", "postgres", "PostgreSQL user")
	pf.StringVar(&password, "password", "", "PostgreSQL password")
	pf.StringVar(&dbname, "dbname", "", "PostgreSQL database name")
	pf.StringVar(&envName, "env", "default", "Environment name, for diagnostics only")
	pf.StringVarP(&migrationsDir, "migrations-dir", "d", "migrations", "Migration files directory")
	pf.StringVar(&logLevel, "log-level", "info", "Log level: debug, info, warn, error")

	inspectCmd.Flags().StringVarP(&schemaPath, "schema", "s", "", "Path to a schema file naming the tables to introspect (required)")

	genCmd.Flags().StringVarP(&schemaPath, "schema", "s", "", "Path to the desired-state SQL schema file (required)")
	genCmd.Flags().StringVarP(&migrationName, "name", "n", "", "Migration name (snake_case); defaults to schema_update")
	genCmd.Flags().BoolVar(&force, "force", false, "Write the migration even if it contains a destructive change")

	migrateCmd.Flags().BoolVar(&dryRun, "dry-run", false, "Preview pending migrations without applying them")
	migrateCmd.Flags().BoolVar(&force, "force", false, "Apply despite detected drift")

	rollbackCmd.Flags().IntVarP(&rollbackN, "count", "n", 1, "Number of migrations to roll back")
	rollbackCmd.Flags().BoolVar(&force, "force", false, "Roll back despite detected drift")
	rollbackCmd.Flags().BoolVar(&permissive, "permissive", false, "Allow soft rollback when no down-migration file exists")

	rootCmd.AddCommand(planCmd, genCmd, migrateCmd, rollbackCmd, statusCmd, inspectCmd)
}

func newEngine(ctx context.Context) (*engine.Engine, *obslog.Logger, error) {
	log := obslog.New(os.Stderr, logLevel)
	env := config.Environment{
		Name: envName,
		Connection: config.Connection{
			Host:     host,
			Port:     port,
			User:     user,
			Password: password,
			Database: dbname,
		},
		MigrationsDir: migrationsDir,
	}
	e, err := engine.New(ctx, env, config.DefaultOptions(), log)
	return e, log, err
}

var planCmd = &cobra.Command{
	Use:   "plan",
	Short: "Preview pending migrations and drift, without applying anything",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		e, _, err := newEngine(ctx)
		if err != nil {
			return err
		}
		defer e.Close()

		result, err := e.Plan(ctx)
		if err != nil {
			return err
		}
		if len(result.Drifts) > 0 {
			fmt.Println("drift detected:")
			for _, d := range result.Drifts {
				fmt.Printf("  - %s\n", d)
			}
		}
		if len(result.Pending) == 0 {
			fmt.Println("no pending migrations")
			return nil
		}
		fmt.Println("pending migrations:")
		for _, m := range result.Pending {
			fmt.Printf("  %d_%s\n", m.Version, m.Name)
		}
		return nil
	},
}

var inspectCmd = &cobra.Command{
	Use:   "inspect",
	Short: "Print the live schema for the tables named in a schema file",
	RunE: func(cmd *cobra.Command, args []string) error {
		if schemaPath == "" {
			return fmt.Errorf("--schema is required")
		}
		desiredText, err := os.ReadFile(schemaPath)
		if err != nil {
			return err
		}
		parsed, err := parser.Parse(string(desiredText))
		if err != nil {
			return err
		}

		ctx := cmd.Context()
		e, _, err := newEngine(ctx)
		if err != nil {
			return err
		}
		defer e.Close()

		s, err := e.Inspect(ctx, parsed.Schema.TableNames())
		if err != nil {
			return err
		}
		return report.NewSchemaWriter(os.Stdout).Write(s)
	},
}

var genCmd = &cobra.Command{
	Use:   "gen",
	Short: "Generate a new migration file from the diff against a schema file",
	RunE: func(cmd *cobra.Command, args []string) error {
		if schemaPath == "" {
			return fmt.Errorf("--schema is required")
		}
		ctx := cmd.Context()
		e, _, err := newEngine(ctx)
		if err != nil {
			return err
		}
		defer e.Close()

		opts := config.DefaultOptions()
		opts.Force = force
		result, err := e.Gen(ctx, schemaPath, migrationName, opts)
		if err != nil {
			return err
		}
		fmt.Printf("wrote %s\n", result.Path)
		for _, w := range result.Warnings {
			fmt.Printf("warning: %s\n", w)
		}
		return nil
	},
}

var migrateCmd = &cobra.Command{
	Use:   "migrate",
	Short: "Apply pending migrations",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		e, _, err := newEngine(ctx)
		if err != nil {
			return err
		}
		defer e.Close()

		result, err := e.Migrate(ctx, dryRun, force)
		if result != nil {
			for _, name := range result.Applied {
				verb := "applied"
				if dryRun {
					verb = "would apply"
				}
				fmt.Printf("%s %s\n", verb, name)
			}
		}
		if err != nil {
			return err
		}
		return nil
	},
}

var rollbackCmd = &cobra.Command{
	Use:   "rollback",
	Short: "Roll back the last n applied migrations",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		e, _, err := newEngine(ctx)
		if err != nil {
			return err
		}
		defer e.Close()

		mode := executor.RollbackStrict
		if permissive {
			mode = executor.RollbackPermissive
		}
		result, err := e.Rollback(ctx, rollbackN, force, mode)
		if result != nil {
			for _, name := range result.Applied {
				fmt.Printf("rolled back %s\n", name)
			}
		}
		if err != nil {
			return err
		}
		return nil
	},
}

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show the reconciliation state of every known migration",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		e, _, err := newEngine(ctx)
		if err != nil {
			return err
		}
		defer e.Close()

		entries, err := e.Status(ctx)
		if err != nil {
			return err
		}
		for _, en := range entries {
			fmt.Printf("%-10s %s\n", en.Tag, en.Name)
		}
		return nil
	},
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
