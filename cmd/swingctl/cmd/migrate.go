package cmd

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"
)

func newMigrateCmd(a *app) *cobra.Command {
	c := &cobra.Command{
		Use:   "migrate",
		Short: "Apply pending schema migrations",
		Long: `Bring the job store schema up to date. Postgres applies the files in
--migrations-dir; SQLite creates its tables on open.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx, cancel := context.WithTimeout(cmd.Context(), a.v.GetDuration("timeout"))
			defer cancel()

			s := a.dbSettings()
			st, closeFn, err := openStore(ctx, s)
			if err != nil {
				return err
			}
			defer closeFn()
			if err := st.Ping(ctx); err != nil {
				return fmt.Errorf("ping store: %w", err)
			}
			fmt.Fprintf(a.out, "Schema is up to date (%s)\n", s.Driver)
			return nil
		},
	}
	addDBFlags(a, c)
	return c
}
