package cmd

import (
	"context"
	"fmt"

	"github.com/pffise-create/PinhighAI-sub003/internal/config"
	"github.com/pffise-create/PinhighAI-sub003/internal/store"
	"github.com/spf13/cobra"
)

type dbSettings struct {
	Driver        string
	URL           string
	SQLitePath    string
	MigrationsDir string
}

func (a *app) dbSettings() dbSettings {
	return dbSettings{
		Driver:        a.v.GetString("store_driver"),
		URL:           a.v.GetString("database_url"),
		SQLitePath:    a.v.GetString("sqlite_path"),
		MigrationsDir: a.v.GetString("migrations_dir"),
	}
}

var dbFlagKeys = map[string]string{
	"driver":         "store_driver",
	"database-url":   "database_url",
	"sqlite-path":    "sqlite_path",
	"migrations-dir": "migrations_dir",
}

// addDBFlags registers the database flags on c. They also resolve from
// SWING_STORE_DRIVER, SWING_DATABASE_URL, SWING_SQLITE_PATH and SWING_MIGRATIONS_DIR.
// Several commands share the keys, so binding waits until c actually runs.
func addDBFlags(a *app, c *cobra.Command) {
	f := c.Flags()
	f.String("driver", "postgres", "store driver: postgres or sqlite")
	f.String("database-url", "", "Postgres connection URL")
	f.String("sqlite-path", "swing.db", "SQLite database file")
	f.String("migrations-dir", "migrations", "directory holding Postgres migrations")
	c.PreRunE = func(cmd *cobra.Command, _ []string) error {
		for flag, key := range dbFlagKeys {
			if err := a.v.BindPFlag(key, cmd.Flags().Lookup(flag)); err != nil {
				return fmt.Errorf("bind %s: %w", flag, err)
			}
		}
		return nil
	}
}

// openStore opens the configured store with its schema applied.
func openStore(ctx context.Context, s dbSettings) (store.Store, func(), error) {
	switch s.Driver {
	case "sqlite":
		st, err := store.NewSQLiteStore(s.SQLitePath)
		if err != nil {
			return nil, nil, fmt.Errorf("open sqlite store: %w", err)
		}
		return st, func() { st.Close() }, nil

	case "postgres":
		if s.URL == "" {
			return nil, nil, fmt.Errorf("database url is required for the postgres driver")
		}
		if err := store.RunMigrations(s.URL, s.MigrationsDir); err != nil {
			return nil, nil, err
		}
		pool, err := store.Connect(ctx, config.DatabaseConfig{URL: s.URL, MaxOpenConns: 2, MaxIdleConns: 0})
		if err != nil {
			return nil, nil, err
		}
		return store.NewPostgresStore(pool), pool.Close, nil

	default:
		return nil, nil, fmt.Errorf("unsupported store driver %q", s.Driver)
	}
}
