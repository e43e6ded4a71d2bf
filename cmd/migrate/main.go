// Command migrate applies or rolls back Ashford's schema migrations using
// goose, replacing the teacher's hand-rolled cmd/migrate (which merely
// executed each .sql file in a transaction with no up/down tracking) with a
// real migration runner — goose already sits in the teacher's go.mod but
// was never wired to anything.
package main

import (
	"database/sql"
	"flag"
	"fmt"
	"os"

	_ "github.com/lib/pq"
	"github.com/pressly/goose/v3"

	"github.com/dimfeld/ashford/internal/logging"
)

func main() {
	dir := flag.String("dir", "migrations", "directory containing migration files")
	flag.Parse()

	command := "up"
	if flag.NArg() > 0 {
		command = flag.Arg(0)
	}

	dsn := os.Getenv("DATABASE_URL")
	if dsn == "" {
		logging.Error("migrate: DATABASE_URL is required")
		os.Exit(1)
	}

	db, err := sql.Open("postgres", dsn)
	if err != nil {
		logging.Error("migrate: failed to open database", "err", err.Error())
		os.Exit(1)
	}
	defer db.Close()

	if err := goose.SetDialect("postgres"); err != nil {
		logging.Error("migrate: failed to set dialect", "err", err.Error())
		os.Exit(1)
	}

	if err := runCommand(db, *dir, command, flag.Args()[intMin(1, len(flag.Args())):]); err != nil {
		logging.Error("migrate: command failed", "command", command, "err", err.Error())
		os.Exit(1)
	}
	logging.Info("migrate: done", "command", command)
}

func runCommand(db *sql.DB, dir, command string, args []string) error {
	switch command {
	case "up":
		return goose.Up(db, dir)
	case "up-by-one":
		return goose.UpByOne(db, dir)
	case "down":
		return goose.Down(db, dir)
	case "status":
		return goose.Status(db, dir)
	case "version":
		return goose.Version(db, dir)
	case "redo":
		return goose.Redo(db, dir)
	case "create":
		if len(args) < 1 {
			return fmt.Errorf("migrate: create requires a migration name")
		}
		return goose.Create(db, dir, args[0], "sql")
	default:
		return fmt.Errorf("migrate: unknown command %q", command)
	}
}

func intMin(a, b int) int {
	if a < b {
		return a
	}
	return b
}
