package db

import (
	"fmt"
	"io"
	"strconv"
)

// RunMigrateCommand handles the 'migrate' subcommand dispatching. Output
// goes to out.
func RunMigrateCommand(args []string, dbPath string, out io.Writer) error {
	if len(args) < 1 || args[0] == "help" {
		PrintMigrateHelp(out)
		if len(args) < 1 {
			return fmt.Errorf("missing migrate action")
		}
		return nil
	}

	// Open without migrating so a dirty database can still be inspected.
	database, err := OpenDB(dbPath)
	if err != nil {
		return fmt.Errorf("failed to connect to database: %w", err)
	}
	defer database.Close()

	switch action := args[0]; action {
	case "up":
		if err := database.MigrateUp(); err != nil {
			return err
		}
	case "down":
		if err := database.MigrateDown(); err != nil {
			return err
		}
	case "status":
	case "version":
		if len(args) < 2 {
			return fmt.Errorf("usage: anomaly-report migrate version <version_number>")
		}
		v, err := strconv.ParseUint(args[1], 10, 32)
		if err != nil {
			return fmt.Errorf("invalid version number: %s", args[1])
		}
		if err := database.MigrateTo(uint(v)); err != nil {
			return err
		}
	case "force":
		if len(args) < 2 {
			return fmt.Errorf("usage: anomaly-report migrate force <version_number>")
		}
		v, err := strconv.Atoi(args[1])
		if err != nil {
			return fmt.Errorf("invalid version number: %s", args[1])
		}
		if err := database.MigrateForce(v); err != nil {
			return err
		}
	default:
		PrintMigrateHelp(out)
		return fmt.Errorf("unknown migrate action: %s", action)
	}
	return printMigrateStatus(database, out)
}

func printMigrateStatus(database *DB, out io.Writer) error {
	version, dirty, err := database.MigrateVersion()
	if err != nil {
		return fmt.Errorf("failed to get migration status: %w", err)
	}
	latest, err := LatestMigrationVersion()
	if err != nil {
		return err
	}
	fmt.Fprintln(out, "=== Migration Status ===")
	fmt.Fprintf(out, "Current version: %d\n", version)
	fmt.Fprintf(out, "Latest version:  %d\n", latest)
	fmt.Fprintf(out, "Dirty: %v\n", dirty)
	if dirty {
		fmt.Fprintln(out, "\nWARNING: a migration failed mid-execution.")
		fmt.Fprintln(out, "Inspect the database, then run: anomaly-report migrate force <version>")
	}
	return nil
}

// PrintMigrateHelp displays help for the migrate command
func PrintMigrateHelp(out io.Writer) {
	fmt.Fprint(out, `Usage: anomaly-report migrate <action> [args]

Actions:
  up                 Apply all pending migrations
  down               Roll back the most recent migration
  status             Show the current migration version
  version <n>        Migrate up or down to version n
  force <n>          Set the version without running migrations (recovery only)
  help               Show this help
`)
}
