package cmd

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/killallgit/sensitive-data-api/internal/database"
)

// migrateCmd represents the migrate command
var migrateCmd = &cobra.Command{
	Use:   "migrate",
	Short: "Run database migrations",
	Long: `Manage the database schema of the Sensitive Data Classifier API.

The schema is derived from the persisted models and applied with GORM
auto-migration, which only adds tables, columns and indexes.

Available subcommands:
  up      - Create missing tables, columns and indexes
  status  - Show which tables are missing`,
}

// migrateUpCmd applies pending migrations
var migrateUpCmd = &cobra.Command{
	Use:   "up",
	Short: "Apply all pending migrations",
	Long: `Apply all pending database migrations.

Creates any missing table, column or index for the persisted models,
bringing the schema up to date. Existing data is left untouched.`,
	RunE: runMigrateUp,
}

// migrateStatusCmd shows migration status
var migrateStatusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show migration status",
	Long: `Display the current status of the database schema.

Lists every persisted model table and whether it exists yet.`,
	RunE: runMigrateStatus,
}

func init() {
	rootCmd.AddCommand(migrateCmd)
	migrateCmd.AddCommand(migrateUpCmd)
	migrateCmd.AddCommand(migrateStatusCmd)

	migrateCmd.PersistentFlags().Bool("dry-run", false, "show what would be done without making changes")
}

func runMigrateUp(cmd *cobra.Command, args []string) error {
	cfg, log, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	dryRun, _ := cmd.Flags().GetBool("dry-run")

	db, err := database.Initialize(cfg.Database.Path, cfg.Database.Verbose)
	if err != nil {
		return fmt.Errorf("failed to initialize database: %w", err)
	}
	defer db.Close()

	pending := db.PendingTables()
	out := cmd.OutOrStdout()
	if dryRun {
		fmt.Fprintln(out, "Dry run mode - no changes will be made")
		for _, table := range pending {
			fmt.Fprintf(out, "  would create %s\n", table)
		}
		return nil
	}

	if err := db.Migrate(log); err != nil {
		return err
	}
	fmt.Fprintf(out, "Schema up to date (%d tables created)\n", len(pending))
	return nil
}

func runMigrateStatus(cmd *cobra.Command, args []string) error {
	cfg, _, err := loadConfig(cmd)
	if err != nil {
		return err
	}

	db, err := database.Initialize(cfg.Database.Path, cfg.Database.Verbose)
	if err != nil {
		return fmt.Errorf("failed to initialize database: %w", err)
	}
	defer db.Close()

	pending := make(map[string]bool)
	for _, table := range db.PendingTables() {
		pending[table] = true
	}

	out := cmd.OutOrStdout()
	fmt.Fprintln(out, "Database Migration Status")
	fmt.Fprintln(out, strings.Repeat("=", 50))
	fmt.Fprintf(out, "Database: %s\n\n", displayPath(cfg.Database.Path))

	for _, table := range db.Tables() {
		state := "applied"
		if pending[table] {
			state = "pending"
		}
		fmt.Fprintf(out, "  %-24s %s\n", table, state)
	}

	if len(pending) == 0 {
		fmt.Fprintln(out, "\nSchema is up to date")
	} else {
		fmt.Fprintf(out, "\n%d table(s) pending, run 'migrate up'\n", len(pending))
	}
	return nil
}


func displayPath(path string) string {
	if path == "" {
		return ":memory:"
	}
	return path
}

