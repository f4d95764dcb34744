package cli

import (
	"database/sql"
	"errors"
	"log"
	"os"

	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/spf13/cobra"
)

var databaseURL string

var rootCmd = &cobra.Command{
	Use:   "fuelstation",
	Short: "Fuel station cash reconciliation service",
	Long: `fuelstation records pump readings, aggregates them into attendant shifts,
tracks cash through the handover chain from attendant to bank deposit and
closes each station-day into an immutable settlement.`,
	SilenceUsage: true,
}

func init() {
	rootCmd.PersistentFlags().StringVar(&databaseURL, "database-url", "", "PostgreSQL DSN (default $DATABASE_URL or $PG_DSN)")
}

// Execute runs the root command.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func newLogger() *log.Logger {
	return log.New(os.Stdout, "", log.LstdFlags)
}

func openDB() (*sql.DB, error) {
	dsn := databaseURL
	if dsn == "" {
		dsn = getenvDefault("DATABASE_URL", getenvDefault("PG_DSN", ""))
	}
	if dsn == "" {
		return nil, errors.New("DATABASE_URL or PG_DSN is required")
	}
	db, err := sql.Open("pgx", dsn)
	if err != nil {
		return nil, err
	}
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, err
	}
	return db, nil
}
