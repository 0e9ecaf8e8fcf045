package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/CNRP/ecommerce-storefront-sub001/migrations"
)

func newMigrateCmd() *cobra.Command {
	cmd := &cobra.Command{Use: "migrate", Short: "Apply or roll back the schema"}

	cmd.AddCommand(&cobra.Command{
		Use:   "up",
		Short: "Apply all pending migrations",
		RunE: func(cmd *cobra.Command, _ []string) error {
			d, err := dsn()
			if err != nil {
				return err
			}
			db, err := migrations.Open(d)
			if err != nil {
				return err
			}
			defer db.Close()
			if err := migrations.Up(db); err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), "migrations applied")
			return nil
		},
	})

	var steps int
	down := &cobra.Command{
		Use:   "down",
		Short: "Roll back migrations",
		RunE: func(cmd *cobra.Command, _ []string) error {
			d, err := dsn()
			if err != nil {
				return err
			}
			db, err := migrations.Open(d)
			if err != nil {
				return err
			}
			defer db.Close()
			if err := migrations.Down(db, steps); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "rolled back %d step(s)\n", steps)
			return nil
		},
	}
	down.Flags().IntVar(&steps, "steps", 1, "number of migrations to roll back")
	cmd.AddCommand(down)

	cmd.AddCommand(&cobra.Command{
		Use:   "version",
		Short: "Print the current schema version",
		RunE: func(cmd *cobra.Command, _ []string) error {
			d, err := dsn()
			if err != nil {
				return err
			}
			db, err := migrations.Open(d)
			if err != nil {
				return err
			}
			defer db.Close()
			v, dirty, err := migrations.Version(db)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "version=%d dirty=%t\n", v, dirty)
			return nil
		},
	})
	return cmd
}
