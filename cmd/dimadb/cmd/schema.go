package cmd

import (
	"fmt"

	"github.com/spf13/cobra"
)

var createCmd = &cobra.Command{
	Use:   "create",
	Short: "Create the database tables",
	Long:  `Create all peptide tables and indexes. Existing tables are left untouched.`,
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		w, err := openWriter(cmd.Context())
		if err != nil {
			return err
		}
		defer w.Close()

		if err := w.Create(cmd.Context()); err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "Schema created (%s)\n", w.Dialect().Name)
		return nil
	},
}

var dropCmd = &cobra.Command{
	Use:   "drop",
	Short: "Drop the database tables",
	Long:  `Drop all peptide tables and the data they hold. Missing tables are ignored.`,
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		w, err := openWriter(cmd.Context())
		if err != nil {
			return err
		}
		defer w.Close()

		if err := w.Drop(cmd.Context()); err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "Schema dropped (%s)\n", w.Dialect().Name)
		return nil
	},
}
